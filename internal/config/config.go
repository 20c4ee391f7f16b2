// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig     `mapstructure:"server"`
	Database DatabaseConfig   `mapstructure:"database"`
	Security SecurityConfig   `mapstructure:"security"`
	Logging  LoggingConfig    `mapstructure:"logging"`
	Device   DeviceConfig     `mapstructure:"device"`
	ECR      ECRConfig        `mapstructure:"ecr"`
	Devices  []RegisterConfig `mapstructure:"devices"`
	App      AppConfig        `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host" validate:"required"`
	Port         string        `mapstructure:"port" validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	TLS          TLSConfig     `mapstructure:"tls"`
}

// TLSConfig represents TLS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// DatabaseConfig represents the print job journal database.
// When Enabled is false jobs are kept in memory only.
type DatabaseConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	DBName        string        `mapstructure:"dbname"`
	SSLMode       string        `mapstructure:"sslmode"`
	MaxOpenConns  int           `mapstructure:"max_open_conns"`
	MaxIdleConns  int           `mapstructure:"max_idle_conns"`
	MaxLifetime   time.Duration `mapstructure:"max_lifetime"`
	JobRetention  time.Duration `mapstructure:"job_retention"`
	CleanupPeriod time.Duration `mapstructure:"cleanup_period"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"required"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// DeviceConfig represents timing shared by all registers
type DeviceConfig struct {
	OperationTimeout time.Duration    `mapstructure:"operation_timeout"`
	ResponseTimeout  time.Duration    `mapstructure:"response_timeout"`
	ConnectTimeout   time.Duration    `mapstructure:"connect_timeout"`
	DefaultPort      DevicePortConfig `mapstructure:"default_ports"`
}

// DevicePortConfig represents default port configurations
type DevicePortConfig struct {
	Serial SerialPortConfig `mapstructure:"serial"`
	TCP    TCPPortConfig    `mapstructure:"tcp"`
}

// SerialPortConfig represents serial port configuration
type SerialPortConfig struct {
	BaudRate int           `mapstructure:"baud_rate"`
	DataBits int           `mapstructure:"data_bits"`
	StopBits int           `mapstructure:"stop_bits"`
	Parity   string        `mapstructure:"parity"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// TCPPortConfig represents TCP port configuration
type TCPPortConfig struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	KeepAlive      bool          `mapstructure:"keep_alive"`
}

// ECRConfig tunes the register protocol
type ECRConfig struct {
	StampSequence    bool           `mapstructure:"stamp_sequence"`
	LegacyPaperCheck bool           `mapstructure:"legacy_paper_check"`
	Messages         MessagesConfig `mapstructure:"messages"`
}

// MessagesConfig overrides the free texts of the receipt program lines.
// Empty values keep the built-in texts.
type MessagesConfig struct {
	TotalLine    string `mapstructure:"total_line"`
	ThankYouLine string `mapstructure:"thank_you_line"`
	PointsLine   string `mapstructure:"points_line"`
}

// RegisterConfig describes one cash register the service drives
type RegisterConfig struct {
	ID               string                 `mapstructure:"id"`
	Brand            string                 `mapstructure:"brand"`
	Model            string                 `mapstructure:"model"`
	Location         string                 `mapstructure:"location"`
	ConnectionType   string                 `mapstructure:"connection_type"`
	ConnectionConfig map[string]interface{} `mapstructure:"connection_config"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Version     string `mapstructure:"version" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required"`
	Debug       bool   `mapstructure:"debug"`
}

// Load loads configuration from file and environment variables.
// ECR_SERVICE_CONFIG_PATH overrides the directory searched for config.yaml.
func Load() (*Config, error) {
	path := os.Getenv("ECR_SERVICE_CONFIG_PATH")
	if path == "" {
		path = "./config"
	}
	return LoadFrom(path)
}

// LoadFrom loads config.yaml from the given directory.
// A missing file is not an error: defaults and environment still apply.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)

	// Environment variable support
	v.SetEnvPrefix("ECR_SERVICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8085")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.tls.enabled", false)

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "ecr_service")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_lifetime", "5m")
	v.SetDefault("database.job_retention", "720h")
	v.SetDefault("database.cleanup_period", "1h")

	// Security defaults
	v.SetDefault("security.allowed_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Device defaults
	v.SetDefault("device.operation_timeout", "60s")
	v.SetDefault("device.response_timeout", "5s")
	v.SetDefault("device.connect_timeout", "15s")

	v.SetDefault("device.default_ports.serial.baud_rate", 9600)
	v.SetDefault("device.default_ports.serial.data_bits", 8)
	v.SetDefault("device.default_ports.serial.stop_bits", 1)
	v.SetDefault("device.default_ports.serial.parity", "none")
	v.SetDefault("device.default_ports.serial.timeout", "5s")

	v.SetDefault("device.default_ports.tcp.connect_timeout", "10s")
	v.SetDefault("device.default_ports.tcp.read_timeout", "30s")
	v.SetDefault("device.default_ports.tcp.write_timeout", "30s")
	v.SetDefault("device.default_ports.tcp.keep_alive", true)

	// ECR defaults
	v.SetDefault("ecr.stamp_sequence", false)
	v.SetDefault("ecr.legacy_paper_check", false)

	// App defaults
	v.SetDefault("app.name", "ecr-service")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

var (
	validEnvironments    = []string{"development", "staging", "production", "test"}
	validLevels          = []string{"debug", "info", "warn", "error", "fatal"}
	validConnectionTypes = []string{"SERIAL", "TCP", "BLUETOOTH"}
)

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

// messageVerbs counts the %s verbs of a receipt text template. Any other verb
// yields -1; %% stays a literal percent sign.
func messageVerbs(template string) int {
	count := 0
	for i := 0; i < len(template); i++ {
		if template[i] != '%' {
			continue
		}
		i++
		if i == len(template) {
			return -1
		}
		switch template[i] {
		case '%':
		case 's':
			count++
		default:
			return -1
		}
	}
	return count
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if config.Database.Enabled && config.Database.Host == "" {
		return fmt.Errorf("database.host is required when the database is enabled")
	}
	if !contains(validEnvironments, config.App.Environment) {
		return fmt.Errorf("app.environment must be one of: %v", validEnvironments)
	}
	if !contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}
	if config.Device.ResponseTimeout <= 0 {
		return fmt.Errorf("device.response_timeout must be positive")
	}

	messages := []struct {
		key      string
		template string
		verbs    int
	}{
		{"ecr.messages.total_line", config.ECR.Messages.TotalLine, 2},
		{"ecr.messages.thank_you_line", config.ECR.Messages.ThankYouLine, 1},
		{"ecr.messages.points_line", config.ECR.Messages.PointsLine, 3},
	}
	for _, m := range messages {
		if m.template != "" && messageVerbs(m.template) != m.verbs {
			return fmt.Errorf("%s must contain exactly %d %%s placeholders and no other verbs", m.key, m.verbs)
		}
	}

	seen := make(map[string]bool, len(config.Devices))
	for i, dev := range config.Devices {
		if dev.ID == "" {
			return fmt.Errorf("devices[%d].id is required", i)
		}
		if seen[dev.ID] {
			return fmt.Errorf("devices[%d].id %q is duplicated", i, dev.ID)
		}
		seen[dev.ID] = true

		if !contains(validConnectionTypes, strings.ToUpper(dev.ConnectionType)) {
			return fmt.Errorf("devices[%d].connection_type must be one of: %v", i, validConnectionTypes)
		}
	}

	return nil
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.DBName, c.Database.SSLMode)
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

