package config

import "time"

// RecorderConfig is the root configuration for a recorder instance.
type RecorderConfig struct {
	Instance      InstanceConfig      `yaml:"instance"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	WebSocket     WebSocketConfig     `yaml:"websocket"`
	Database      DatabaseConfig      `yaml:"database"`
	Writers       WritersConfig       `yaml:"writers"`
	Poller        PollerConfig        `yaml:"poller"`
	Log           LogConfig           `yaml:"log"`
}

// InstanceConfig identifies this recorder.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// HomeAssistantConfig holds the instance endpoint and credentials. The token
// is a long-lived access token; both fields are normally injected via
// ${HOMEASSISTANT_URL} / ${HOMEASSISTANT_TOKEN}.
type HomeAssistantConfig struct {
	URL        string        `yaml:"url"`
	Token      string        `yaml:"token"`
	Timeout    time.Duration `yaml:"timeout"`     // REST request timeout
	MaxRetries int           `yaml:"max_retries"` // REST retry attempts
}

// WebSocketConfig tunes the persistent event connection.
type WebSocketConfig struct {
	AuthTimeout    time.Duration `yaml:"auth_timeout"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	PingTimeout    time.Duration `yaml:"ping_timeout"`
	MaxFrameSize   int64         `yaml:"max_frame_size"`
}

// DatabaseConfig holds the Postgres connection for recorded history.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// WritersConfig holds batch writer settings shared by the database recorders.
type WritersConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// PollerConfig holds snapshot poller settings.
type PollerConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
