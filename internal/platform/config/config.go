package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"

	SinkLog   = "log"
	SinkFeed  = "feed"
	SinkRedis = "redis"
)

// Config はアプリケーション全体の設定を表現します。
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Database     DatabaseConfig     `yaml:"database"`
	Storage      StorageConfig      `yaml:"storage"`
	Engine       EngineConfig       `yaml:"engine"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Notification NotificationConfig `yaml:"notification"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig は gRPC サーバーに関する設定です。
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// MetricsConfig は Prometheus エンドポイントの設定です。
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
	Path       string `yaml:"path"`
}

// DatabaseConfig は PostgreSQL 接続に関する設定です。
type DatabaseConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name"`
	SSLMode            string        `yaml:"ssl_mode"`
	ApplicationName    string        `yaml:"application_name"`
	MaxOpenConns       int           `yaml:"max_open_conns"`
	MaxIdleConns       int           `yaml:"max_idle_conns"`
	ConnMaxLifetime    time.Duration `yaml:"-"`
	ConnMaxIdleTime    time.Duration `yaml:"-"`
	ConnMaxLifetimeRaw string        `yaml:"conn_max_lifetime"`
	ConnMaxIdleTimeRaw string        `yaml:"conn_max_idle_time"`
}

// StorageConfig は永続化先の選択です。
type StorageConfig struct {
	Driver string `yaml:"driver"`
}

// EngineConfig はステータスエンジンの動作設定です。
type EngineConfig struct {
	MaxVacationDays int            `yaml:"max_vacation_days"`
	Timezone        string         `yaml:"timezone"`
	SweepWorkers    int            `yaml:"sweep_workers"`
	Location        *time.Location `yaml:"-"`
}

// SchedulerConfig は日次バッチの起動設定です。
type SchedulerConfig struct {
	Enabled bool   `yaml:"enabled"`
	RunAt   string `yaml:"run_at"`
	CatchUp bool   `yaml:"catch_up"`
	Hour    int    `yaml:"-"`
	Minute  int    `yaml:"-"`
}

// NotificationConfig は通知ディスパッチャの設定です。
type NotificationConfig struct {
	QueueSize int         `yaml:"queue_size"`
	Workers   int         `yaml:"workers"`
	Sinks     []string    `yaml:"sinks"`
	Redis     RedisConfig `yaml:"redis"`
}

// RedisConfig は Redis Pub/Sub 送出先の設定です。
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// LoggingConfig はロガーの設定です。
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// envOverrides は YAML の値を上書きする環境変数です。未設定の項目は無視されます。
type envOverrides struct {
	ListenAddr       string `env:"SERVER_LISTEN_ADDR"`
	MetricsAddr      string `env:"METRICS_LISTEN_ADDR"`
	DBHost           string `env:"DB_HOST"`
	DBPort           int    `env:"DB_PORT"`
	DBUser           string `env:"DB_USER"`
	DBPassword       string `env:"DB_PASSWORD"`
	DBName           string `env:"DB_NAME"`
	DBSSLMode        string `env:"DB_SSL_MODE"`
	StorageDriver    string `env:"STORAGE_DRIVER"`
	SchedulerEnabled string `env:"SCHEDULER_ENABLED"`
	RedisAddr        string `env:"REDIS_ADDR"`
	RedisPassword    string `env:"REDIS_PASSWORD"`
	LogLevel         string `env:"LOG_LEVEL"`
	LogFormat        string `env:"LOG_FORMAT"`
}

// Load は指定されたパスから設定ファイルを読み込み、環境変数で上書きします。
func Load(path string) (*Config, error) {
	return load(path, nil)
}

// LoadEnvFiles は存在する .env ファイルだけを読み込み、読み込んだ数を返します。
func LoadEnvFiles(files ...string) (int, error) {
	existing := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return 0, fmt.Errorf("config: load env files: %w", err)
	}
	return len(existing), nil
}

func load(path string, environment map[string]string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	var overrides envOverrides
	opts := env.Options{}
	if environment != nil {
		opts.Environment = environment
	}
	if err := env.ParseWithOptions(&overrides, opts); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.applyOverrides(overrides); err != nil {
		return nil, err
	}

	if err := cfg.validateAndNormalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyOverrides(o envOverrides) error {
	setString(&c.Server.ListenAddr, o.ListenAddr)
	setString(&c.Metrics.ListenAddr, o.MetricsAddr)
	setString(&c.Database.Host, o.DBHost)
	if o.DBPort != 0 {
		c.Database.Port = o.DBPort
	}
	setString(&c.Database.User, o.DBUser)
	setString(&c.Database.Password, o.DBPassword)
	setString(&c.Database.Name, o.DBName)
	setString(&c.Database.SSLMode, o.DBSSLMode)
	setString(&c.Storage.Driver, o.StorageDriver)
	setString(&c.Notification.Redis.Addr, o.RedisAddr)
	setString(&c.Notification.Redis.Password, o.RedisPassword)
	setString(&c.Logging.Level, o.LogLevel)
	setString(&c.Logging.Format, o.LogFormat)

	if o.SchedulerEnabled != "" {
		enabled, err := strconv.ParseBool(o.SchedulerEnabled)
		if err != nil {
			return fmt.Errorf("config: SCHEDULER_ENABLED: %w", err)
		}
		c.Scheduler.Enabled = enabled
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (c *Config) validateAndNormalize() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("config: server.listen_addr must be set")
	}

	if err := c.Metrics.validateAndNormalize(); err != nil {
		return err
	}

	switch c.Storage.Driver {
	case "":
		c.Storage.Driver = StorageDriverPostgres
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		return fmt.Errorf("config: storage.driver must be %q or %q", StorageDriverPostgres, StorageDriverMemory)
	}

	if c.Storage.Driver == StorageDriverPostgres {
		db := &c.Database
		if err := db.validateAndNormalize(); err != nil {
			return err
		}
	}

	if err := c.Engine.validateAndNormalize(); err != nil {
		return err
	}
	if err := c.Scheduler.validateAndNormalize(); err != nil {
		return err
	}
	if err := c.Notification.validateAndNormalize(c.Storage.Driver); err != nil {
		return err
	}
	return c.Logging.validateAndNormalize()
}

func (m *MetricsConfig) validateAndNormalize() error {
	if !m.Enabled {
		return nil
	}
	if m.ListenAddr == "" {
		return fmt.Errorf("config: metrics.listen_addr must be set when metrics are enabled")
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
	if !strings.HasPrefix(m.Path, "/") {
		return fmt.Errorf("config: metrics.path must start with /")
	}
	return nil
}

func (d *DatabaseConfig) validateAndNormalize() error {
	if d.Host == "" {
		return fmt.Errorf("config: database.host must be set")
	}
	if d.Port == 0 {
		return fmt.Errorf("config: database.port must be set")
	}
	if d.User == "" {
		return fmt.Errorf("config: database.user must be set")
	}
	if d.Password == "" {
		return fmt.Errorf("config: database.password must be set")
	}
	if d.Name == "" {
		return fmt.Errorf("config: database.name must be set")
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}

	lifetime, err := parseDurationAllowEmpty(d.ConnMaxLifetimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_lifetime: %w", err)
	}
	d.ConnMaxLifetime = lifetime

	idleTime, err := parseDurationAllowEmpty(d.ConnMaxIdleTimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_idle_time: %w", err)
	}
	d.ConnMaxIdleTime = idleTime

	return nil
}

func (e *EngineConfig) validateAndNormalize() error {
	if e.MaxVacationDays < 0 {
		return fmt.Errorf("config: engine.max_vacation_days must not be negative")
	}
	if e.MaxVacationDays == 0 {
		e.MaxVacationDays = 45
	}
	if e.SweepWorkers < 0 {
		return fmt.Errorf("config: engine.sweep_workers must not be negative")
	}
	if e.SweepWorkers == 0 {
		e.SweepWorkers = 4
	}
	if e.Timezone == "" {
		e.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return fmt.Errorf("config: engine.timezone: %w", err)
	}
	e.Location = loc
	return nil
}

func (s *SchedulerConfig) validateAndNormalize() error {
	if s.RunAt == "" {
		s.RunAt = "00:05"
	}
	at, err := time.Parse("15:04", s.RunAt)
	if err != nil {
		return fmt.Errorf("config: scheduler.run_at must be HH:MM: %w", err)
	}
	s.Hour, s.Minute = at.Hour(), at.Minute()
	return nil
}

func (n *NotificationConfig) validateAndNormalize(driver string) error {
	if n.QueueSize < 0 || n.Workers < 0 {
		return fmt.Errorf("config: notification.queue_size and notification.workers must not be negative")
	}
	if n.QueueSize == 0 {
		n.QueueSize = 256
	}
	if n.Workers == 0 {
		n.Workers = 2
	}
	if len(n.Sinks) == 0 {
		n.Sinks = []string{SinkLog}
	}
	for i, sink := range n.Sinks {
		sink = strings.ToLower(strings.TrimSpace(sink))
		n.Sinks[i] = sink
		switch sink {
		case SinkLog:
		case SinkFeed:
			if driver != StorageDriverPostgres {
				return fmt.Errorf("config: notification sink %q requires the postgres storage driver", SinkFeed)
			}
		case SinkRedis:
			if n.Redis.Addr == "" {
				return fmt.Errorf("config: notification.redis.addr must be set for the redis sink")
			}
			if n.Redis.Channel == "" {
				n.Redis.Channel = "status-notifications"
			}
		default:
			return fmt.Errorf("config: unknown notification sink %q", sink)
		}
	}
	return nil
}

func (l *LoggingConfig) validateAndNormalize() error {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "text"
	}
	if l.Format != "text" && l.Format != "json" {
		return fmt.Errorf("config: logging.format must be text or json")
	}
	return nil
}

func parseDurationAllowEmpty(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	return d, nil
}

// DSN は pgx 用の接続文字列を返します。認証情報はエスケープされます。
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}
