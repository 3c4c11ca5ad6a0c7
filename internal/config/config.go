package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Neo4j       Neo4jConfig       `mapstructure:"neo4j"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Fusion      FusionConfig      `mapstructure:"fusion"`
	Weights     WeightsConfig     `mapstructure:"weights"`
	Learning    LearningConfig    `mapstructure:"learning"`
	Experiments ExperimentsConfig `mapstructure:"experiments"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`

	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type Neo4jConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		FeedbackEvents string `mapstructure:"feedback_events"`
	} `mapstructure:"topics"`
	ConsumerGroup string `mapstructure:"consumer_group"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// FusionConfig controls the hybrid fusion engine.
type FusionConfig struct {
	DefaultCount       int           `mapstructure:"default_count"`
	CandidatePoolSize  int           `mapstructure:"candidate_pool_size"`
	ScoreTimeout       time.Duration `mapstructure:"score_timeout"`
	RecommendationsTTL time.Duration `mapstructure:"recommendations_ttl"`
}

// WeightsConfig holds the baseline fusion weights plus the user-class
// thresholds and adjustment magnitudes used by per-user weight calculation.
// These are product-tuning values, exposed here rather than hard-coded.
type WeightsConfig struct {
	Baseline BaselineWeights `mapstructure:"baseline"`

	ColdUserThreshold   int     `mapstructure:"cold_user_threshold"`
	ActiveUserThreshold int     `mapstructure:"active_user_threshold"`
	CriticalRaterBelow  float64 `mapstructure:"critical_rater_below"`
	GenerousRaterAbove  float64 `mapstructure:"generous_rater_above"`

	ColdUserShift      float64 `mapstructure:"cold_user_shift"`
	ActiveUserBoost    float64 `mapstructure:"active_user_boost"`
	CriticalRaterBoost float64 `mapstructure:"critical_rater_boost"`
	GenerousRaterBoost float64 `mapstructure:"generous_rater_boost"`
}

type BaselineWeights struct {
	Collaborative float64 `mapstructure:"collaborative"`
	Content       float64 `mapstructure:"content"`
	Popularity    float64 `mapstructure:"popularity"`
	Diversity     float64 `mapstructure:"diversity"`
}

// LearningConfig controls the online learning buffer.
type LearningConfig struct {
	BufferSize    int           `mapstructure:"buffer_size"`
	MaxBatchAge   time.Duration `mapstructure:"max_batch_age"`
	AgeCheckEvery time.Duration `mapstructure:"age_check_every"`
	UpdateTimeout time.Duration `mapstructure:"update_timeout"`
}

type ExperimentsConfig struct {
	ConfigPath string `mapstructure:"config_path"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "development")
	viper.SetDefault("server.cors.allowed_origins", []string{"*"})
	viper.SetDefault("server.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("server.cors.allowed_headers", []string{"Origin", "Content-Type", "Accept"})
	viper.SetDefault("server.rate_limit.requests", 300)
	viper.SetDefault("server.rate_limit.window", "1m")

	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.timeout", "5s")

	viper.SetDefault("kafka.topics.feedback_events", "feedback-events")
	viper.SetDefault("kafka.consumer_group", "fusion-learners")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	viper.SetDefault("fusion.default_count", 10)
	viper.SetDefault("fusion.candidate_pool_size", 100)
	viper.SetDefault("fusion.score_timeout", "1500ms")
	viper.SetDefault("fusion.recommendations_ttl", "15m")

	viper.SetDefault("weights.baseline.collaborative", 0.4)
	viper.SetDefault("weights.baseline.content", 0.3)
	viper.SetDefault("weights.baseline.popularity", 0.2)
	viper.SetDefault("weights.baseline.diversity", 0.1)
	viper.SetDefault("weights.cold_user_threshold", 5)
	viper.SetDefault("weights.active_user_threshold", 100)
	viper.SetDefault("weights.critical_rater_below", 2.5)
	viper.SetDefault("weights.generous_rater_above", 4.0)
	viper.SetDefault("weights.cold_user_shift", 0.2)
	viper.SetDefault("weights.active_user_boost", 0.15)
	viper.SetDefault("weights.critical_rater_boost", 0.1)
	viper.SetDefault("weights.generous_rater_boost", 0.1)

	viper.SetDefault("learning.buffer_size", 100)
	viper.SetDefault("learning.max_batch_age", "1h")
	viper.SetDefault("learning.age_check_every", "30s")
	viper.SetDefault("learning.update_timeout", "30s")

	viper.SetDefault("experiments.config_path", "./config/experiments.json")
}
