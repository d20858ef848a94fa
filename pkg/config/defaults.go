package config

const (
	defaultListen = ":8080"

	defaultStorageDriver = "memory"
	defaultSQLiteFile    = "relay.db"

	defaultUpstreamBaseURL = "https://openrouter.ai/api/v1"
	defaultUpstreamModel   = "openai/gpt-4o-mini"
	defaultUpstreamTimeout = 60

	defaultEventsTopic = "relay.turns"

	defaultClientTarget = "http://localhost:8080"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Relay: RelayConfig{
			Listen: defaultListen,
		},
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		Upstream: UpstreamConfig{
			BaseURL:        defaultUpstreamBaseURL,
			Model:          defaultUpstreamModel,
			Stream:         true,
			TimeoutSeconds: defaultUpstreamTimeout,
		},
		Events: EventsConfig{
			Topic: defaultEventsTopic,
		},
		Client: ClientConfig{
			Target: defaultClientTarget,
		},
	}
}
