package models

// MConfig Structure
type MConfig struct {
	Name      string           `yaml:"name"`
	LogLevel  string           `yaml:"log_level"`
	Server    MServerConfig    `yaml:"server"`
	HTTP      MHTTPConfig      `yaml:"http"`
	Bridge    MBridgeConfig    `yaml:"bridge"`
	Security  MSecurityConfig  `yaml:"security"`
	Admission MAdmissionConfig `yaml:"admission"`
	Retry     MRetryConfig     `yaml:"retry"`
	Storage   MStorageConfig   `yaml:"storage"`
	Telegram  MTelegramConfig  `yaml:"telegram"`
	Network   MNetworkConfig   `yaml:"network"`
}

type MServerConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	ReadTimeoutSeconds int    `yaml:"read_timeout_seconds"`
	AuthTimeoutSeconds int    `yaml:"auth_timeout_seconds"`
	MaxFrameBytes      uint32 `yaml:"max_frame_bytes"`
	TLSCertFile        string `yaml:"tls_cert_file"`
	TLSKeyFile         string `yaml:"tls_key_file"`
}

type MHTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

type MBridgeConfig struct {
	ListenHost          string `yaml:"listen_host"`
	ListenPort          int    `yaml:"listen_port"`
	UpstreamHost        string `yaml:"upstream_host"`
	UpstreamPort        int    `yaml:"upstream_port"`
	UpstreamTLS         bool   `yaml:"upstream_tls"`
	TLSSkipVerify       bool   `yaml:"tls_skip_verify"`
	ReconnectSeconds    int    `yaml:"reconnect_seconds"`
	MaxReconnectSeconds int    `yaml:"max_reconnect_seconds"`
	HeartbeatSeconds    int    `yaml:"heartbeat_seconds"`
	QueueCapacity       int    `yaml:"queue_capacity"`
	MetricsAddr         string `yaml:"metrics_addr"`
}

type MSecurityConfig struct {
	SecretKey string `yaml:"secret_key"`
}

type MAdmissionConfig struct {
	MaxSignalsPerDay         int    `yaml:"max_signals_per_day"`
	MinSecondsBetweenSignals int    `yaml:"min_seconds_between_signals"`
	TradingHoursStart        string `yaml:"trading_hours_start"`
	TradingHoursEnd          string `yaml:"trading_hours_end"`
	UseTradingCalendar       bool   `yaml:"use_trading_calendar"`
}

type MRetryConfig struct {
	MaxRetries          int `yaml:"max_retries"`
	RetryDelaySeconds   int `yaml:"retry_delay_seconds"`
	SignalExpiryMinutes int `yaml:"signal_expiry_minutes"`
	QueueCapacity       int `yaml:"queue_capacity"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
}

type MTelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

type MNetworkConfig struct {
	Proxies        []string `yaml:"proxies"`
	RequestTimeout int      `yaml:"timeout"`
	MaxRetries     int      `yaml:"retries"`
	UserAgent      string   `yaml:"user_agent"`
}
