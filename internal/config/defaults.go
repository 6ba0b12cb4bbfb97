package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultCommitment           = "confirmed"
	DefaultRPCTimeout           = 30 * time.Second
	DefaultMaxRetries           = 3
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultReconcileInterval    = 5 * time.Minute
	DefaultEnrichTimeout        = 30 * time.Second
	DefaultAllowlistTTL         = time.Minute
	DefaultKeepaliveInterval    = 15 * time.Second
	DefaultClientQueueSize      = 256
	DefaultWriteTimeout         = 5 * time.Second
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultReconnectMaxDelay    = 30 * time.Second
	DefaultReconnectMaxAttempts = 10
	DefaultBatchSize            = 500
	DefaultFlushInterval        = 1 * time.Second
	DefaultBufferSize           = 10000
	DefaultServerPort           = 8080
)

func (c *MonitorConfig) applyDefaults() {
	// RPC defaults
	if c.RPC.Commitment == "" {
		c.RPC.Commitment = DefaultCommitment
	}
	if c.RPC.Timeout == 0 {
		c.RPC.Timeout = DefaultRPCTimeout
	}
	if c.RPC.MaxRetries == 0 {
		c.RPC.MaxRetries = DefaultMaxRetries
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Monitor defaults
	if c.Monitor.ReconcileInterval == 0 {
		c.Monitor.ReconcileInterval = DefaultReconcileInterval
	}
	if c.Monitor.EnrichTimeout == 0 {
		c.Monitor.EnrichTimeout = DefaultEnrichTimeout
	}
	if c.Monitor.AllowlistTTL == 0 {
		c.Monitor.AllowlistTTL = DefaultAllowlistTTL
	}

	// Stream defaults
	if c.Stream.KeepaliveInterval == 0 {
		c.Stream.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if c.Stream.ClientQueueSize == 0 {
		c.Stream.ClientQueueSize = DefaultClientQueueSize
	}
	if c.Stream.WriteTimeout == 0 {
		c.Stream.WriteTimeout = DefaultWriteTimeout
	}
	if c.Stream.ReconnectBaseDelay == 0 {
		c.Stream.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Stream.ReconnectMaxDelay == 0 {
		c.Stream.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Stream.ReconnectMaxAttempts == 0 {
		c.Stream.ReconnectMaxAttempts = DefaultReconnectMaxAttempts
	}

	// Writer defaults
	if c.Writer.BatchSize == 0 {
		c.Writer.BatchSize = DefaultBatchSize
	}
	if c.Writer.FlushInterval == 0 {
		c.Writer.FlushInterval = DefaultFlushInterval
	}
	if c.Writer.BufferSize == 0 {
		c.Writer.BufferSize = DefaultBufferSize
	}

	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
}
