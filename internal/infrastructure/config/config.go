package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // site timezone must resolve on hosts without zoneinfo

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for ShellyManager.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Registry  RegistryConfig  `yaml:"registry"`
	Shelly    ShellyConfig    `yaml:"shelly"`
	Modbus    ModbusConfig    `yaml:"modbus"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	TSDB      TSDBConfig      `yaml:"tsdb"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Meters    []MeterConfig   `yaml:"meters"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// Timezone is the IANA zone used to localise interval start timestamps.
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SchedulerConfig controls the quarter-hour fetch scheduler.
type SchedulerConfig struct {
	// Autostart arms the scheduler as soon as serve starts.
	Autostart bool `yaml:"autostart"`
}

// FetchConfig controls a single fetch cycle.
type FetchConfig struct {
	// DeviceTimeout bounds each CloseInterval call (seconds).
	DeviceTimeout int `yaml:"device_timeout"`

	// MaxConcurrency limits parallel device calls. 0 means unlimited.
	MaxConcurrency int `yaml:"max_concurrency"`

	// MirrorTimeout bounds each reading mirror per cycle (seconds).
	MirrorTimeout int `yaml:"mirror_timeout"`
}

// RegistryConfig controls how the device registry is refreshed from the database.
type RegistryConfig struct {
	// RefreshSchedule is a cron spec (or @every descriptor). Empty disables periodic refresh.
	RefreshSchedule string `yaml:"refresh_schedule"`
}

// ShellyConfig contains settings shared by all Shelly Gen2 meters.
type ShellyConfig struct {
	SwitchID int    `yaml:"switch_id"`
	Timeout  int    `yaml:"timeout"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ModbusConfig describes where Modbus TCP meters expose their energy counter.
type ModbusConfig struct {
	UnitID       uint8   `yaml:"unit_id"`
	Register     uint16  `yaml:"register"`
	RegisterType string  `yaml:"register_type"` // holding | input
	DataType     string  `yaml:"data_type"`     // uint16 | int16 | uint32 | int32 | float32
	ByteOrder    string  `yaml:"byte_order"`    // ABCD | DCBA | BADC | CDAB
	Scale        float64 `yaml:"scale"`         // multiplier to Wh
	Timeout      int     `yaml:"timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// PublishReadings mirrors every stored reading to the broker.
	PublishReadings bool `yaml:"publish_readings"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

// TSDBConfig contains VictoriaMetrics connection settings.
type TSDBConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// KafkaConfig contains Kafka producer settings for the reading mirror.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// MeterConfig seeds a meter row in the database at start-up.
type MeterConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	Active  *bool  `yaml:"active"`
}

// IsActive reports whether the seeded meter should be active (default true).
func (m MeterConfig) IsActive() bool {
	return m.Active == nil || *m.Active
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SHELLYMANAGER_SECTION_KEY
// For example: SHELLYMANAGER_DATABASE_PATH, SHELLYMANAGER_MQTT_HOST
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "ShellyManager",
			Timezone: "Europe/Berlin",
		},
		Database: DatabaseConfig{
			Path:        "./data/shellymanager.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Scheduler: SchedulerConfig{
			Autostart: true,
		},
		Fetch: FetchConfig{
			DeviceTimeout:  10,
			MaxConcurrency: 0,
			MirrorTimeout:  10,
		},
		Registry: RegistryConfig{
			RefreshSchedule: "@every 5m",
		},
		Shelly: ShellyConfig{
			SwitchID: 0,
			Timeout:  5,
		},
		Modbus: ModbusConfig{
			UnitID:       1,
			Register:     0x0048,
			RegisterType: "input",
			DataType:     "float32",
			ByteOrder:    "ABCD",
			Scale:        1000, // kWh register -> Wh
			Timeout:      5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "shellymanager",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Kafka: KafkaConfig{
			Topic: "meter-readings",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SHELLYMANAGER_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SHELLYMANAGER_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("SHELLYMANAGER_TIMEZONE"); v != "" {
		cfg.Site.Timezone = v
	}
	if v := os.Getenv("SHELLYMANAGER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Shelly
	if v := os.Getenv("SHELLYMANAGER_SHELLY_USERNAME"); v != "" {
		cfg.Shelly.Username = v
	}
	if v := os.Getenv("SHELLYMANAGER_SHELLY_PASSWORD"); v != "" {
		cfg.Shelly.Password = v
	}

	// MQTT
	if v := os.Getenv("SHELLYMANAGER_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SHELLYMANAGER_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("SHELLYMANAGER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SHELLYMANAGER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("SHELLYMANAGER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Kafka
	if v := os.Getenv("SHELLYMANAGER_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if _, err := time.LoadLocation(c.Site.Timezone); c.Site.Timezone == "" || err != nil {
		errs = append(errs, fmt.Sprintf("site.timezone %q is not a valid IANA zone", c.Site.Timezone))
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.Fetch.DeviceTimeout < 1 {
		errs = append(errs, "fetch.device_timeout must be at least 1 second")
	}
	if c.Fetch.MirrorTimeout < 1 {
		errs = append(errs, "fetch.mirror_timeout must be at least 1 second")
	}
	if c.Fetch.MaxConcurrency < 0 {
		errs = append(errs, "fetch.max_concurrency must not be negative")
	}

	if spec := strings.TrimSpace(c.Registry.RefreshSchedule); spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Sprintf("registry.refresh_schedule: %v", err))
		}
	}

	switch strings.ToLower(c.Modbus.RegisterType) {
	case "holding", "input":
	default:
		errs = append(errs, "modbus.register_type must be holding or input")
	}
	switch strings.ToLower(c.Modbus.DataType) {
	case "uint16", "int16", "uint32", "int32", "float32":
	default:
		errs = append(errs, "modbus.data_type must be uint16, int16, uint32, int32 or float32")
	}

	if c.MQTT.Enabled && (c.MQTT.QoS < 0 || c.MQTT.QoS > 2) {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}
	if c.TSDB.Enabled && c.TSDB.URL == "" {
		errs = append(errs, "tsdb.url is required when tsdb is enabled")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		errs = append(errs, "kafka.brokers and kafka.topic are required when kafka is enabled")
	}

	seen := make(map[string]bool, len(c.Meters))
	for i, m := range c.Meters {
		switch {
		case strings.TrimSpace(m.Name) == "":
			errs = append(errs, fmt.Sprintf("meters[%d].name is required", i))
		case seen[m.Name]:
			errs = append(errs, fmt.Sprintf("meters[%d].name %q is duplicated", i, m.Name))
		case strings.TrimSpace(m.Address) == "":
			errs = append(errs, fmt.Sprintf("meters[%d].address is required", i))
		}
		seen[m.Name] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Location returns the configured site time zone.
// Validate guarantees the zone loads; UTC is returned if it does not.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Site.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetDeviceTimeout returns the per-device fetch timeout as a Duration.
func (c *Config) GetDeviceTimeout() time.Duration {
	return time.Duration(c.Fetch.DeviceTimeout) * time.Second
}

// GetMirrorTimeout returns the per-mirror publish timeout as a Duration.
func (c *Config) GetMirrorTimeout() time.Duration {
	return time.Duration(c.Fetch.MirrorTimeout) * time.Second
}
