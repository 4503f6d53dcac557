package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Security  SecurityConfig  `mapstructure:"security"`
	Log       LogConfig       `mapstructure:"log"`
	Quest     QuestConfig     `mapstructure:"quest"`
	Generator GeneratorConfig `mapstructure:"generator"`
}

type ServerConfig struct {
	Port  int  `mapstructure:"port"`
	Debug bool `mapstructure:"debug"`
	// AdminKey is compared verbatim; AdminKeyHash takes precedence when set
	// and holds a bcrypt hash of the key.
	AdminKey     string `mapstructure:"admin_key"`
	AdminKeyHash string `mapstructure:"admin_key_hash"`
	// AdminAllow lists IPs or CIDR ranges allowed on /admin. Empty allows all.
	AdminAllow []string `mapstructure:"admin_allow"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | sqlite_memory | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"` // empty disables the rotated file sink
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// BoardConfig declares one bulletin board placed in the world.
type BoardConfig struct {
	ID       string `mapstructure:"id"`
	Class    string `mapstructure:"class"` // empty or "any" = class-agnostic
	Capacity int    `mapstructure:"capacity"`
}

type QuestConfig struct {
	ContentDir       string        `mapstructure:"content_dir"`
	MaxRequests      int           `mapstructure:"max_requests"`
	MaxActiveTickets int           `mapstructure:"max_active_tickets"` // 0 = unlimited
	BoardCapacity    int           `mapstructure:"board_capacity"`
	OfferTTL         time.Duration `mapstructure:"offer_ttl"` // 0 = offers never expire
	RefreshInterval  time.Duration `mapstructure:"refresh_interval"`
	LoopQueueSize    int           `mapstructure:"loop_queue_size"`
	Boards           []BoardConfig `mapstructure:"boards"`
}

type GeneratorConfig struct {
	BaseURL        string        `mapstructure:"base_url"` // empty disables external content
	Classes        []string      `mapstructure:"classes"`
	QuestsPerFetch int           `mapstructure:"quests_per_fetch"`
	FetchInterval  time.Duration `mapstructure:"fetch_interval"`
	HealthInterval time.Duration `mapstructure:"health_interval"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/questboard.db")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("security.token_ttl", "72h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("quest.content_dir", "./data/quests")
	v.SetDefault("quest.max_requests", 3)
	v.SetDefault("quest.max_active_tickets", 0)
	v.SetDefault("quest.board_capacity", 21)
	v.SetDefault("quest.offer_ttl", "0s")
	v.SetDefault("quest.refresh_interval", "5m")
	v.SetDefault("quest.loop_queue_size", 1024)
	v.SetDefault("generator.classes", []string{"cook", "courier", "brewer", "blacksmith", "miner", "warrior"})
	v.SetDefault("generator.quests_per_fetch", 5)
	v.SetDefault("generator.fetch_interval", "30m")
	v.SetDefault("generator.health_interval", "10m")
	v.SetDefault("generator.timeout", "60s")
	v.SetDefault("generator.rate_limit_rps", 1)
	v.SetDefault("generator.rate_limit_burst", 6)
}

// Load reads config from the given YAML file path. Every key can be
// overridden by an environment variable: quest.max_requests becomes
// QUESTBOARD_QUEST_MAX_REQUESTS.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("questboard")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config populated only with defaults. Used by the
// validate command and by tests that need a baseline.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}
