package config

import "time"

// MonitorConfig is the root configuration for a monitor instance.
type MonitorConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	RPC      RPCConfig      `yaml:"rpc"`
	Programs ProgramsConfig `yaml:"programs"`
	Database DBConfig       `yaml:"database"`
	Monitor  TrackerConfig  `yaml:"monitor"`
	Stream   StreamConfig   `yaml:"stream"`
	Writer   WriterConfig   `yaml:"writer"`
	Server   ServerConfig   `yaml:"server"`
}

// InstanceConfig identifies this monitor.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// RPCConfig holds Solana RPC endpoints.
type RPCConfig struct {
	HTTPURL    string        `yaml:"http_url"` // JSON-RPC over HTTP (account reads)
	WSURL      string        `yaml:"ws_url"`   // JSON-RPC over WebSocket (log subscriptions)
	Commitment string        `yaml:"commitment"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// ProgramsConfig holds the program addresses whose logs are subscribed.
type ProgramsConfig struct {
	AMM      string `yaml:"amm"`      // Conditional AMM program
	Autocrat string `yaml:"autocrat"` // Proposal lifecycle program
}

// DBConfig holds the history store connection.
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

// TrackerConfig holds enrichment and reconciliation settings.
type TrackerConfig struct {
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	EnrichTimeout     time.Duration `yaml:"enrich_timeout"`
	AllowlistTTL      time.Duration `yaml:"allowlist_ttl"`
}

// StreamConfig holds SSE hub and client settings.
type StreamConfig struct {
	KeepaliveInterval    time.Duration `yaml:"keepalive_interval"`
	ClientQueueSize      int           `yaml:"client_queue_size"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	ReconnectMaxAttempts int           `yaml:"reconnect_max_attempts"`
}

// WriterConfig holds trade-log batch writer settings.
type WriterConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}
