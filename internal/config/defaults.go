package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHAURL          = "http://homeassistant.local:8123"
	DefaultRESTTimeout    = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultAuthTimeout    = 5 * time.Second
	DefaultCommandTimeout = 30 * time.Second
	DefaultPingInterval   = 30 * time.Second
	DefaultPingTimeout    = 10 * time.Second
	DefaultMaxFrameSize   = 20 << 20
	DefaultDBPort         = 5432
	DefaultDBSSLMode      = "prefer"
	DefaultMaxConns       = 10
	DefaultMinConns       = 2
	DefaultBatchSize      = 500
	DefaultFlushInterval  = 1 * time.Second
	DefaultBufferSize     = 10000
	DefaultPollInterval   = 15 * time.Minute
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

func (c *RecorderConfig) applyDefaults() {
	// Home Assistant defaults
	if c.HomeAssistant.URL == "" {
		c.HomeAssistant.URL = DefaultHAURL
	}
	if c.HomeAssistant.Timeout == 0 {
		c.HomeAssistant.Timeout = DefaultRESTTimeout
	}
	if c.HomeAssistant.MaxRetries == 0 {
		c.HomeAssistant.MaxRetries = DefaultMaxRetries
	}

	// WebSocket defaults
	if c.WebSocket.AuthTimeout == 0 {
		c.WebSocket.AuthTimeout = DefaultAuthTimeout
	}
	if c.WebSocket.CommandTimeout == 0 {
		c.WebSocket.CommandTimeout = DefaultCommandTimeout
	}
	if c.WebSocket.PingInterval == 0 {
		c.WebSocket.PingInterval = DefaultPingInterval
	}
	if c.WebSocket.PingTimeout == 0 {
		c.WebSocket.PingTimeout = DefaultPingTimeout
	}
	if c.WebSocket.MaxFrameSize == 0 {
		c.WebSocket.MaxFrameSize = DefaultMaxFrameSize
	}

	// Database defaults
	applyDBDefaults(&c.Database.Postgres)

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}
	if c.Writers.BufferSize == 0 {
		c.Writers.BufferSize = DefaultBufferSize
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
