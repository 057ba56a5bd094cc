package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of hearth's configuration, read from a YAML file
// with HEARTH_ environment overrides applied on top.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// SiteConfig names the installation.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// ScheduleConfig locates the schedule document and controls startup
// behaviour.
type ScheduleConfig struct {
	// Path is the schedule document (rooms, actors, snippets).
	Path string `yaml:"path"`

	// ApplyAtStartup sends the initial evaluation results to the
	// actors. When disabled only the records are updated, actuation
	// starts with the first scheduled boundary.
	ApplyAtStartup bool `yaml:"apply_at_startup"`
}

// DatabaseConfig tunes the embedded SQLite store. BusyTimeout is
// seconds.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig holds broker, credential and delivery settings.
type MQTTConfig struct {
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig points at the broker.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig carries broker credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig shapes the backoff after a dropped broker
// connection. Delays are seconds, a zero MaxAttempts retries forever.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig configures the HTTP listener.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig points at the certificate pair for HTTPS.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig holds the HTTP server timeouts in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// Durations converts the configured second counts into the form
// http.Server wants.
func (t APITimeoutConfig) Durations() (read, write, idle time.Duration) {
	return time.Duration(t.Read) * time.Second,
		time.Duration(t.Write) * time.Second,
		time.Duration(t.Idle) * time.Second
}

// CORSConfig is the browser cross-origin allowlist.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig tunes the event stream endpoint. Intervals are
// seconds, MaxMessageSize is bytes.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig connects the optional history store. BatchSize counts
// points, FlushInterval is seconds.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig selects level, format and destination.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig carries the JWT signing settings and the static user
// list.
type SecurityConfig struct {
	JWT   JWTConfig    `yaml:"jwt"`
	Users []UserConfig `yaml:"users"`
}

// JWTConfig signs API tokens. AccessTokenTTL is minutes.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// UserConfig declares one API user. The password is stored as an
// argon2id PHC hash, never in the clear.
type UserConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	Role         string `yaml:"role"`
}

// Load builds the effective configuration: hardcoded defaults, then the
// YAML file at path, then HEARTH_ environment variables, each layer
// overriding the one below. The result is validated before it is
// returned, so a *Config in hand is safe to run with.
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

// defaultConfig returns the baseline every deployment starts from.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "hearth-001",
			Name: "Hearth",
		},
		Schedule: ScheduleConfig{
			Path:           "./schedules.yaml",
			ApplyAtStartup: true,
		},
		Database: DatabaseConfig{
			Path:        "./data/hearth.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "hearth-core",
			},
			QoS:         1,
			TopicPrefix: "hearth",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
		},
	}
}

// applyEnvOverrides lays HEARTH_ environment variables over the loaded
// file. Only set, non-empty variables take effect. Secrets (broker
// password, InfluxDB token, JWT secret) are expected to arrive this
// way so the YAML file can be committed without them.
func applyEnvOverrides(cfg *Config) {
	for _, o := range []struct {
		env    string
		target *string
	}{
		{"HEARTH_SCHEDULE_PATH", &cfg.Schedule.Path},
		{"HEARTH_DATABASE_PATH", &cfg.Database.Path},
		{"HEARTH_MQTT_HOST", &cfg.MQTT.Broker.Host},
		{"HEARTH_MQTT_USERNAME", &cfg.MQTT.Auth.Username},
		{"HEARTH_MQTT_PASSWORD", &cfg.MQTT.Auth.Password},
		{"HEARTH_API_HOST", &cfg.API.Host},
		{"HEARTH_INFLUXDB_TOKEN", &cfg.InfluxDB.Token},
		{"HEARTH_JWT_SECRET", &cfg.Security.JWT.Secret},
	} {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
}

// minJWTSecretLength guards against weak signing keys. The token gate
// is all that stands between the LAN and the heating, so a short
// secret is a hard error, not a warning.
const minJWTSecretLength = 32

// Validate reports every configuration problem at once rather than
// stopping at the first.
func (c *Config) Validate() error {
	var problems []string
	need := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	need(c.Site.ID != "", "site.id is required")
	need(c.Schedule.Path != "", "schedule.path is required")
	need(c.Database.Path != "", "database.path is required")
	need(c.MQTT.QoS >= 0 && c.MQTT.QoS <= 2, "mqtt.qos must be 0, 1, or 2")
	need(c.MQTT.TopicPrefix != "", "mqtt.topic_prefix is required")
	need(c.API.Port >= 1 && c.API.Port <= 65535, "api.port must be between 1 and 65535")

	switch {
	case c.Security.JWT.Secret == "":
		need(false, "security.jwt.secret is required (set HEARTH_JWT_SECRET environment variable)")
	case len(c.Security.JWT.Secret) < minJWTSecretLength:
		need(false, "security.jwt.secret must be at least 32 characters")
	}
	for i, u := range c.Security.Users {
		need(u.Username != "" && u.PasswordHash != "",
			fmt.Sprintf("security.users[%d] needs username and password_hash", i))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(problems, "; "))
	}
	return nil
}
