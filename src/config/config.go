package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"signal-relay/src/models"
	"signal-relay/src/protocol"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}

	// 3. Fill defaults, let the environment override secrets, validate
	config.ApplyDefaults()
	config.ApplyEnvOverrides()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// ApplyDefaults fills in every zero value that has a sane default. Admission
// limits are deliberately left alone: a zero cap/interval means "unlimited"
// on purpose, not "forgot to configure".
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "signal-relay"
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}

	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5200
	}
	if c.Server.ReadTimeoutSeconds == 0 {
		c.Server.ReadTimeoutSeconds = 60
	}
	if c.Server.AuthTimeoutSeconds == 0 {
		c.Server.AuthTimeoutSeconds = 10
	}
	if c.Server.MaxFrameBytes == 0 {
		c.Server.MaxFrameBytes = protocol.DefaultMaxFrameBytes
	}

	if c.HTTP.Host == "" {
		c.HTTP.Host = "0.0.0.0"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 5000
	}

	if c.Bridge.ListenHost == "" {
		c.Bridge.ListenHost = "127.0.0.1"
	}
	if c.Bridge.ListenPort == 0 {
		c.Bridge.ListenPort = 5050
	}
	if c.Bridge.ReconnectSeconds == 0 {
		c.Bridge.ReconnectSeconds = 10
	}
	if c.Bridge.MaxReconnectSeconds == 0 {
		c.Bridge.MaxReconnectSeconds = 60
	}
	if c.Bridge.HeartbeatSeconds == 0 {
		c.Bridge.HeartbeatSeconds = 30
	}
	if c.Bridge.QueueCapacity == 0 {
		c.Bridge.QueueCapacity = 1024
	}

	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = 5
	}
	if c.Retry.RetryDelaySeconds == 0 {
		c.Retry.RetryDelaySeconds = 10
	}
	if c.Retry.SignalExpiryMinutes == 0 {
		c.Retry.SignalExpiryMinutes = 3
	}
	if c.Retry.QueueCapacity == 0 {
		c.Retry.QueueCapacity = 1024
	}

	if c.Storage.DBType == "" {
		c.Storage.DBType = "sqlite"
	}
	if c.Storage.DBType == "sqlite" && c.Storage.DBPath == "" {
		c.Storage.DBPath = "trading_signals.db"
	}

	if c.Network.RequestTimeout == 0 {
		c.Network.RequestTimeout = 10
	}
	if c.Network.MaxRetries == 0 {
		c.Network.MaxRetries = 3
	}
	if c.Network.UserAgent == "" {
		c.Network.UserAgent = "signal-relay/1.0"
	}
}

// -----------------------------------------------------------------------------

// ApplyEnvOverrides lets the environment (or a .env file loaded by main)
// supply the secrets, so they never have to live in the committed yaml.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("SECRET_KEY"); v != "" {
		c.Security.SecretKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("DB_CONNECTION_STRING"); v != "" {
		c.Storage.DBConnectionString = v
	}
}

// -----------------------------------------------------------------------------

// Validate performs the checks both binaries care about. Role-specific
// checks live in ValidateServer / ValidateBridge.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Validate Storage configuration
	if c.Storage.DBType != "sqlite" && c.Storage.DBType != "postgres" {
		return fmt.Errorf("unsupported database type: '%s' (expected sqlite or postgres)", c.Storage.DBType)
	}
	if c.Storage.DBType == "sqlite" && c.Storage.DBPath == "" {
		return fmt.Errorf("database path cannot be empty for sqlite")
	}
	if c.Storage.DBType == "postgres" && c.Storage.DBConnectionString == "" {
		return fmt.Errorf("connection string cannot be empty for postgres")
	}

	// Validate Network configuration
	if c.Network.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	// Validate Admission configuration
	if c.Admission.MaxSignalsPerDay < 0 {
		return fmt.Errorf("max signals per day cannot be negative")
	}
	if c.Admission.MinSecondsBetweenSignals < 0 {
		return fmt.Errorf("min seconds between signals cannot be negative")
	}
	// The trading hours window is optional, but must come as a pair
	if (c.Admission.TradingHoursStart == "") != (c.Admission.TradingHoursEnd == "") {
		return fmt.Errorf("trading hours start and end must be set together")
	}
	if c.Admission.TradingHoursStart != "" {
		if _, err := time.Parse("15:04", c.Admission.TradingHoursStart); err != nil {
			return fmt.Errorf("invalid trading_hours_start '%s': expected HH:MM", c.Admission.TradingHoursStart)
		}
		if _, err := time.Parse("15:04", c.Admission.TradingHoursEnd); err != nil {
			return fmt.Errorf("invalid trading_hours_end '%s': expected HH:MM", c.Admission.TradingHoursEnd)
		}
	}

	// Validate Retry configuration
	if c.Retry.MaxRetries <= 0 {
		return fmt.Errorf("retry max_retries must be greater than 0")
	}
	if c.Retry.RetryDelaySeconds <= 0 {
		return fmt.Errorf("retry delay must be greater than 0")
	}
	if c.Retry.SignalExpiryMinutes <= 0 {
		return fmt.Errorf("signal expiry must be greater than 0")
	}
	if c.Retry.QueueCapacity <= 0 {
		return fmt.Errorf("retry queue capacity must be greater than 0")
	}

	return nil
}

// -----------------------------------------------------------------------------

// ValidateServer checks everything the VPS server binary needs on top of
// the common validation.
func (c *Config) ValidateServer() error {
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if err := validatePort("server", c.Server.Port); err != nil {
		return err
	}
	if c.HTTP.Enabled {
		if err := validatePort("http", c.HTTP.Port); err != nil {
			return err
		}
	}
	if c.Security.SecretKey == "" {
		return fmt.Errorf("secret key cannot be empty (set security.secret_key or SECRET_KEY)")
	}
	if c.Server.ReadTimeoutSeconds <= 0 {
		return fmt.Errorf("read timeout must be greater than 0")
	}
	if c.Server.AuthTimeoutSeconds <= 0 {
		return fmt.Errorf("auth timeout must be greater than 0")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		return fmt.Errorf("tls cert and key must be set together")
	}
	return nil
}

// -----------------------------------------------------------------------------

// ValidateBridge checks everything the bridge binary needs on top of the
// common validation.
func (c *Config) ValidateBridge() error {
	if c.Bridge.ListenHost == "" {
		return fmt.Errorf("bridge listen host cannot be empty")
	}
	if err := validatePort("bridge listen", c.Bridge.ListenPort); err != nil {
		return err
	}
	if c.Bridge.UpstreamHost == "" {
		return fmt.Errorf("upstream host cannot be empty")
	}
	if err := validatePort("upstream", c.Bridge.UpstreamPort); err != nil {
		return err
	}
	if c.Security.SecretKey == "" {
		return fmt.Errorf("secret key cannot be empty (set security.secret_key or SECRET_KEY)")
	}
	if c.Bridge.ReconnectSeconds <= 0 {
		return fmt.Errorf("reconnect delay must be greater than 0")
	}
	if c.Bridge.MaxReconnectSeconds < c.Bridge.ReconnectSeconds {
		return fmt.Errorf("max reconnect delay cannot be below the base delay")
	}
	if c.Bridge.HeartbeatSeconds <= 0 {
		return fmt.Errorf("heartbeat interval must be greater than 0")
	}
	if c.Bridge.QueueCapacity <= 0 {
		return fmt.Errorf("outbound queue capacity must be greater than 0")
	}
	return nil
}

// -----------------------------------------------------------------------------

func validatePort(what string, port int) error {
	if port <= 1024 || port > 65535 {
		return fmt.Errorf("invalid %s port number: %d (must be between 1025 and 65535)", what, port)
	}
	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
