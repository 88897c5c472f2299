package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Log         struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Redis struct {
		Host         string        `yaml:"host"`
		Port         int           `yaml:"port" default:"6379"`
		Password     string        `yaml:"password"`
		DB           int           `yaml:"db"`
		Prefix       string        `yaml:"prefix" default:"moodtreasury"`
		PoolSize     int           `yaml:"pool_size" default:"10"`
		MinIdleConns int           `yaml:"min_idle_conns" default:"5"`
		PoolTimeout  time.Duration `yaml:"pool_timeout" default:"30s"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled  bool     `yaml:"enabled"`
		Brokers  []string `yaml:"brokers"`
		Topic    string   `yaml:"topic" default:"treasury.artifacts"`
		LogTopic string   `yaml:"log_topic" default:"treasury.logs"`
		Producer struct {
			RequiredAcks int           `yaml:"required_acks" default:"-1"`
			Compression  string        `yaml:"compression" default:"gzip"`
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"500ms"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"treasury"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Sentiment struct {
		BaseURL    string        `yaml:"base_url"`
		Timeout    time.Duration `yaml:"timeout" default:"10s"`
		BatchLimit int           `yaml:"batch_limit" default:"100" validate:"gt=0"`
	} `yaml:"sentiment"`
	Market struct {
		WebSocketURL   string        `yaml:"websocket_url"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	} `yaml:"market"`
	Chain struct {
		BaseURL       string        `yaml:"base_url"`
		Timeout       time.Duration `yaml:"timeout" default:"15s"`
		GuardianToken string        `yaml:"guardian_token"`
	} `yaml:"chain"`
	Engine struct {
		HypeThreshold     float64 `yaml:"hype_threshold" default:"1.5"`
		FudThreshold      float64 `yaml:"fud_threshold" default:"-1.5"`
		MomentumPositive  float64 `yaml:"momentum_positive"`
		MomentumNegative  float64 `yaml:"momentum_negative"`
		BuybackK1         float64 `yaml:"buyback_k1" default:"0.01" validate:"gt=0"`
		DCAFactor         float64 `yaml:"dca_factor" default:"0.5" validate:"gt=0,lte=1"`
		MaxSlippage       float64 `yaml:"max_slippage" default:"0.01" validate:"gte=0,lte=1"`
		LiquidityFloor    float64 `yaml:"liquidity_floor" default:"10000" validate:"gte=0"`
		ScoreHistoryCap   int     `yaml:"score_history_cap" default:"1000" validate:"gt=1"`
		PairHistoryCap    int     `yaml:"pair_history_cap" default:"100" validate:"gt=1"`
		EMAShortWindow    int     `yaml:"ema_short_window" default:"5" validate:"gt=0"`
		EMAMediumWindow   int     `yaml:"ema_medium_window" default:"15" validate:"gt=0"`
		EMALongWindow     int     `yaml:"ema_long_window" default:"60" validate:"gt=0"`
	} `yaml:"engine"`
	Risk struct {
		MinTreasuryThreshold float64 `yaml:"min_treasury_threshold" default:"0.1" validate:"gte=0,lt=1"`
		MaxDailySpendPercent float64 `yaml:"max_daily_spend_percent" default:"5" validate:"gt=0,lte=100"`
		MaxConsecutiveLosses int     `yaml:"max_consecutive_losses" default:"3" validate:"gt=0"`
	} `yaml:"risk"`
	Loops struct {
		DecisionInterval time.Duration `yaml:"decision_interval" default:"45s"`
		DecisionBackoff  time.Duration `yaml:"decision_backoff" default:"5s"`
		TreasuryInterval time.Duration `yaml:"treasury_interval" default:"60s"`
		PollInterval     time.Duration `yaml:"poll_interval" default:"20s"`
	} `yaml:"loops"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file, applies struct defaults,
// and validates it.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Override with environment variables before defaulting/validation
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SENTIMENT_URL"); v != "" {
		c.Sentiment.BaseURL = v
	}
	if v := os.Getenv("MARKET_WS_URL"); v != "" {
		c.Market.WebSocketURL = v
	}
	if v := os.Getenv("CHAIN_URL"); v != "" {
		c.Chain.BaseURL = v
	}
	if v := os.Getenv("GUARDIAN_TOKEN"); v != "" {
		c.Chain.GuardianToken = v
	}

	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// Validate checks if the configuration is valid. A failure here is fatal at
// startup; the process must not proceed without its collaborators.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Redis.Host == "" {
		return fmt.Errorf("redis.host is required")
	}
	if c.Sentiment.BaseURL == "" {
		return fmt.Errorf("sentiment.base_url is required")
	}
	if c.Market.WebSocketURL == "" {
		return fmt.Errorf("market.websocket_url is required")
	}
	if c.Chain.BaseURL == "" {
		return fmt.Errorf("chain.base_url is required")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse is enabled")
	}
	if c.Engine.FudThreshold >= c.Engine.HypeThreshold {
		return fmt.Errorf("engine.fud_threshold must be below engine.hype_threshold")
	}
	if err := validate.Struct(c); err != nil {
		return err
	}
	return nil
}
