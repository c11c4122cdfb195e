package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config top-level struct
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Auth      AuthConfig      `yaml:"auth"`
	Audit     AuditConfig     `yaml:"audit"`
	Retry     RetryConfig     `yaml:"retry"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Positions PositionsConfig `yaml:"positions"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type KafkaConfig struct {
	Brokers    []string `yaml:"brokers"`
	Topic      string   `yaml:"topic"`
	AuditTopic string   `yaml:"audit_topic"`
}

type RabbitMQConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// AuditConfig selects the sinks audit events fan out to.
type AuditConfig struct {
	Sinks      []string `yaml:"sinks"` // log, kafka, redis, rabbitmq
	BufferSize int      `yaml:"buffer_size"`
}

type RetryConfig struct {
	Attempts  int           `yaml:"attempts"`
	BaseDelay time.Duration `yaml:"base_delay"`
}

type SchedulerConfig struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
}

type PositionsConfig struct {
	EarlyExit   EarlyExitConfig        `yaml:"early_exit"`
	Staking     map[string]TermsConfig `yaml:"staking"`     // by plan
	Investments map[string]TermsConfig `yaml:"investments"` // by package
}

// TermsConfig is the rate and lock period offered for one plan or package.
// Rate is the APY for staking and the total return for investments.
type TermsConfig struct {
	Rate     float64       `yaml:"rate"`
	Duration time.Duration `yaml:"duration"`
}

type EarlyExitConfig struct {
	Enabled     bool    `yaml:"enabled"`
	PenaltyRate float64 `yaml:"penalty_rate"`
}

// Load reads the yaml file, overlays .env and applies environment overrides.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	if p := os.Getenv("LEDGER_CONFIG"); p != "" {
		path = p
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes yaml bytes and fills defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	// override DSN password from env if present
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Redis.CacheTTL == 0 {
		c.Redis.CacheTTL = 5 * time.Minute
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "ledger.events"
	}
	if c.Kafka.AuditTopic == "" {
		c.Kafka.AuditTopic = "ledger.audit"
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "audit"
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = 20
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 40
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if len(c.Audit.Sinks) == 0 {
		c.Audit.Sinks = []string{"log"}
	}
	if c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = 1024
	}
	if c.Retry.Attempts == 0 {
		c.Retry.Attempts = 4
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = 10 * time.Millisecond
	}
	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = time.Minute
	}
	if c.Scheduler.BatchSize == 0 {
		c.Scheduler.BatchSize = 100
	}
	if len(c.Positions.Staking) == 0 {
		c.Positions.Staking = map[string]TermsConfig{
			"basic":   {Rate: 0.05, Duration: 30 * 24 * time.Hour},
			"premium": {Rate: 0.08, Duration: 90 * 24 * time.Hour},
			"vip":     {Rate: 0.12, Duration: 180 * 24 * time.Hour},
		}
	}
	if len(c.Positions.Investments) == 0 {
		c.Positions.Investments = map[string]TermsConfig{
			"starter": {Rate: 0.05, Duration: 30 * 24 * time.Hour},
			"growth":  {Rate: 0.10, Duration: 90 * 24 * time.Hour},
			"premium": {Rate: 0.18, Duration: 180 * 24 * time.Hour},
		}
	}
}

// Validate rejects configurations the services cannot run with.
func (c *Config) Validate() error {
	if c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required (or JWT_SECRET)")
	}
	for _, s := range c.Audit.Sinks {
		switch s {
		case "log", "kafka", "redis", "rabbitmq":
		default:
			return fmt.Errorf("audit.sinks: unknown sink %q", s)
		}
	}
	if c.Positions.EarlyExit.PenaltyRate < 0 || c.Positions.EarlyExit.PenaltyRate > 1 {
		return errors.New("positions.early_exit.penalty_rate must be within [0,1]")
	}
	for name, t := range c.Positions.Staking {
		if t.Rate < 0 || t.Duration <= 0 {
			return fmt.Errorf("positions.staking.%s: rate must be >= 0 and duration > 0", name)
		}
	}
	for name, t := range c.Positions.Investments {
		if t.Rate < 0 || t.Duration <= 0 {
			return fmt.Errorf("positions.investments.%s: rate must be >= 0 and duration > 0", name)
		}
	}
	return nil
}
