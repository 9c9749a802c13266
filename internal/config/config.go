package config

import (
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// =============================================================================
// Anti-scraping defense pipeline - configuration with environment overrides
// =============================================================================

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Redis      RedisConfig      `yaml:"redis"`
	Markov     MarkovConfig     `yaml:"markov"`
	Tarpit     TarpitConfig     `yaml:"tarpit"`
	Escalation EscalationConfig `yaml:"escalation"`
	Reputation ReputationConfig `yaml:"reputation"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Alert      AlertConfig      `yaml:"alert"`
	Logging    LoggingConfig    `yaml:"logging"`
	Paths      PathsConfig      `yaml:"paths"`
}

type ServerConfig struct {
	Port            string `yaml:"port"`
	Env             string `yaml:"env"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
	IdleTimeoutSec  int    `yaml:"idle_timeout_sec"`
	ShutdownTimeout int    `yaml:"shutdown_timeout_sec"`
}

// RedisConfig configures the Blocklist Store, Hop Counter, Frequency
// Tracker and IP-reputation cache. Each contract gets its own logical DB
// number so an operator can flush one without disturbing the others.
type RedisConfig struct {
	Addr             string `yaml:"addr"`
	Password         string `yaml:"password"`
	Enabled          bool   `yaml:"enabled"`
	DBBlocklist      int    `yaml:"db_blocklist"`
	DBHops           int    `yaml:"db_hops"`
	DBFreq           int    `yaml:"db_freq"`
	DBReputation     int    `yaml:"db_reputation"`
	DBTarpitFlag     int    `yaml:"db_tarpit_flag"`
	BlocklistTTLSec  int    `yaml:"blocklist_ttl_sec"`
	FreqWindowSec    int    `yaml:"freq_window_sec"`
	FreqMarginSec    int    `yaml:"freq_margin_sec"`
	ReputationTTLSec int    `yaml:"reputation_ttl_sec"`
	TarpitFlagTTLSec int    `yaml:"tarpit_flag_ttl_sec"`
}

// MarkovConfig points at the relational store backing the Markov Generator.
type MarkovConfig struct {
	DatabaseURL string `yaml:"database_url"`
	SystemSeed  string `yaml:"system_seed"`
}

type TarpitConfig struct {
	MinDelaySec      float64 `yaml:"min_delay_sec"`
	MaxDelaySec      float64 `yaml:"max_delay_sec"`
	MaxHops          int     `yaml:"max_hops"`
	HopWindowSec     int     `yaml:"hop_window_sec"`
	EnableHopCheck   bool    `yaml:"enable_hop_check"`
	EscalationURL    string  `yaml:"escalation_url"`
	EscalationTimeoutSec float64 `yaml:"escalation_timeout_sec"`
}

type EscalationConfig struct {
	ThresholdHigh         float64 `yaml:"threshold_high"`
	CaptchaScoreLow       float64 `yaml:"captcha_score_low"`
	CaptchaScoreHigh      float64 `yaml:"captcha_score_high"`
	EnableCaptchaTrigger  bool    `yaml:"enable_captcha_trigger"`
	RobotsTxtURL          string  `yaml:"robots_txt_url"`
	ModelPath             string  `yaml:"model_path"`
	LocalLLMURL           string  `yaml:"local_llm_url"`
	LocalLLMTimeoutSec    float64 `yaml:"local_llm_timeout_sec"`
	ExternalAPIURL        string  `yaml:"external_api_url"`
	ExternalAPIKey        string  `yaml:"external_api_key"`
	ExternalAPITimeoutSec float64 `yaml:"external_api_timeout_sec"`
	WebhookSinkURL        string  `yaml:"webhook_sink_url"`
	WebhookTimeoutSec     float64 `yaml:"webhook_timeout_sec"`
}

type ReputationConfig struct {
	Enabled       bool    `yaml:"enabled"`
	URL           string  `yaml:"url"`
	TimeoutSec    float64 `yaml:"timeout_sec"`
	MaliciousBonus float64 `yaml:"malicious_bonus"`
}

type WebhookConfig struct {
	WorkerCount              int     `yaml:"worker_count"`
	QueueSize                int     `yaml:"queue_size"`
	EnableCommunityReporting bool    `yaml:"enable_community_reporting"`
	CommunityReportURL       string  `yaml:"community_report_url"`
	CommunityReportTimeoutSec float64 `yaml:"community_report_timeout_sec"`
}

type AlertConfig struct {
	Method            string  `yaml:"method"` // webhook, slack, smtp, none
	MinSeverity       int     `yaml:"min_severity"`
	RateLimitPerSec   float64 `yaml:"rate_limit_per_sec"`
	WebhookURL        string  `yaml:"webhook_url"`
	ChatWebhookURL    string  `yaml:"chat_webhook_url"`
	SMTPHost          string  `yaml:"smtp_host"`
	SMTPPort          int     `yaml:"smtp_port"`
	SMTPUser          string  `yaml:"smtp_user"`
	SMTPPassword      string  `yaml:"smtp_password"`
	SMTPFrom          string  `yaml:"smtp_from"`
	SMTPTo            string  `yaml:"smtp_to"`
}

type LoggingConfig struct {
	Level              string `yaml:"level"`
	MetricsToJSON      bool   `yaml:"metrics_to_json"`
	MetricsDumpIntervalMin int `yaml:"metrics_dump_interval_min"`
}

type PathsConfig struct {
	BaseDirectory    string `yaml:"base_directory"`
	SecretsDirectory string `yaml:"secrets_directory"`
}

// =============================================================================
// Singleton Pattern with Environment Overrides
// =============================================================================

var (
	instance *Config
	once     sync.Once
)

// Get returns the singleton config instance.
func Get() *Config {
	once.Do(func() {
		if err := godotenv.Load(); err != nil {
			slog.Debug("Config: no .env file loaded", "error", err)
		}
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("Config: failed to load config file (using defaults)", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		instance = cfg
	})
	return instance
}

// LoadConfig loads config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides over whatever
// was loaded from YAML (or the zero value, if nothing was loaded).
func (c *Config) applyEnvOverrides() {
	// Server
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.Env = getEnv("ANTISCRAPE_ENV", c.Server.Env)
	if v := getEnvInt("SERVER_READ_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ReadTimeoutSec = v
	}
	if v := getEnvInt("SERVER_WRITE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.WriteTimeoutSec = v
	}
	if v := getEnvInt("SERVER_IDLE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.IdleTimeoutSec = v
	}
	if v := getEnvInt("SERVER_SHUTDOWN_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ShutdownTimeout = v
	}

	// Redis
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.Enabled = getEnvBool("REDIS_ENABLED", c.Redis.Enabled)
	if v := getEnvInt("REDIS_DB_BLOCKLIST", -1); v >= 0 {
		c.Redis.DBBlocklist = v
	}
	if v := getEnvInt("REDIS_DB_HOPS", -1); v >= 0 {
		c.Redis.DBHops = v
	}
	if v := getEnvInt("REDIS_DB_FREQ", -1); v >= 0 {
		c.Redis.DBFreq = v
	}
	if v := getEnvInt("REDIS_DB_REPUTATION", -1); v >= 0 {
		c.Redis.DBReputation = v
	}
	if v := getEnvInt("BLOCKLIST_TTL_SECONDS", 0); v > 0 {
		c.Redis.BlocklistTTLSec = v
	}
	if v := getEnvInt("FREQUENCY_WINDOW_SECONDS", 0); v > 0 {
		c.Redis.FreqWindowSec = v
	}
	if v := getEnvInt("FREQUENCY_MARGIN_SECONDS", 0); v > 0 {
		c.Redis.FreqMarginSec = v
	}

	// Markov
	c.Markov.DatabaseURL = getEnv("MARKOV_DATABASE_URL", c.Markov.DatabaseURL)
	c.Markov.SystemSeed = getEnv("SYSTEM_SEED", c.Markov.SystemSeed)

	// Tarpit
	if v := getEnvFloat("TAR_PIT_MIN_DELAY_SEC", 0); v > 0 {
		c.Tarpit.MinDelaySec = v
	}
	if v := getEnvFloat("TAR_PIT_MAX_DELAY_SEC", 0); v > 0 {
		c.Tarpit.MaxDelaySec = v
	}
	if v := getEnvInt("TAR_PIT_MAX_HOPS", 0); v > 0 {
		c.Tarpit.MaxHops = v
	}
	if v := getEnvInt("TAR_PIT_HOP_WINDOW_SECONDS", 0); v > 0 {
		c.Tarpit.HopWindowSec = v
	}
	c.Tarpit.EnableHopCheck = getEnvBool("ENABLE_HOP_CHECK", c.Tarpit.EnableHopCheck)
	c.Tarpit.EscalationURL = getEnv("ESCALATION_URL", c.Tarpit.EscalationURL)
	if v := getEnvFloat("TAR_PIT_ESCALATION_TIMEOUT_SEC", 0); v > 0 {
		c.Tarpit.EscalationTimeoutSec = v
	}

	// Escalation thresholds
	if v := getEnvFloat("HEURISTIC_THRESHOLD_HIGH", 0); v > 0 {
		c.Escalation.ThresholdHigh = v
	}
	if v := getEnvFloat("CAPTCHA_SCORE_THRESHOLD_LOW", 0); v > 0 {
		c.Escalation.CaptchaScoreLow = v
	}
	if v := getEnvFloat("CAPTCHA_SCORE_THRESHOLD_HIGH", 0); v > 0 {
		c.Escalation.CaptchaScoreHigh = v
	}
	c.Escalation.EnableCaptchaTrigger = getEnvBool("ENABLE_CAPTCHA_TRIGGER", c.Escalation.EnableCaptchaTrigger)
	c.Escalation.RobotsTxtURL = getEnv("ROBOTS_TXT_URL", c.Escalation.RobotsTxtURL)
	c.Escalation.ModelPath = getEnv("MODEL_PATH", c.Escalation.ModelPath)
	c.Escalation.LocalLLMURL = getEnv("LOCAL_LLM_URL", c.Escalation.LocalLLMURL)
	c.Escalation.ExternalAPIURL = getEnv("EXTERNAL_API_URL", c.Escalation.ExternalAPIURL)
	c.Escalation.ExternalAPIKey = getEnv("EXTERNAL_API_KEY", c.Escalation.ExternalAPIKey)
	c.Escalation.WebhookSinkURL = getEnv("WEBHOOK_SINK_URL", c.Escalation.WebhookSinkURL)

	// Reputation
	c.Reputation.Enabled = getEnvBool("ENABLE_IP_REPUTATION", c.Reputation.Enabled)
	c.Reputation.URL = getEnv("IP_REPUTATION_URL", c.Reputation.URL)
	if v := getEnvFloat("IP_REPUTATION_MALICIOUS_SCORE_BONUS", 0); v > 0 {
		c.Reputation.MaliciousBonus = v
	}

	// Webhook sink
	if v := getEnvInt("WEBHOOK_WORKERS", 0); v > 0 {
		c.Webhook.WorkerCount = v
	}
	if v := getEnvInt("WEBHOOK_QUEUE_SIZE", 0); v > 0 {
		c.Webhook.QueueSize = v
	}
	c.Webhook.EnableCommunityReporting = getEnvBool("ENABLE_COMMUNITY_REPORTING", c.Webhook.EnableCommunityReporting)
	c.Webhook.CommunityReportURL = getEnv("COMMUNITY_REPORT_URL", c.Webhook.CommunityReportURL)

	// Alert dispatcher
	c.Alert.Method = getEnv("ALERT_METHOD", c.Alert.Method)
	if v := getEnvInt("ALERT_MIN_SEVERITY", 0); v > 0 {
		c.Alert.MinSeverity = v
	}
	if v := getEnvFloat("ALERT_RATE_LIMIT_PER_SEC", 0); v > 0 {
		c.Alert.RateLimitPerSec = v
	}
	c.Alert.WebhookURL = getEnv("ALERT_WEBHOOK_URL", c.Alert.WebhookURL)
	c.Alert.ChatWebhookURL = getEnv("ALERT_CHAT_WEBHOOK_URL", c.Alert.ChatWebhookURL)
	c.Alert.SMTPHost = getEnv("ALERT_SMTP_HOST", c.Alert.SMTPHost)
	if v := getEnvInt("ALERT_SMTP_PORT", 0); v > 0 {
		c.Alert.SMTPPort = v
	}
	c.Alert.SMTPUser = getEnv("ALERT_SMTP_USER", c.Alert.SMTPUser)
	c.Alert.SMTPPassword = getEnv("ALERT_SMTP_PASSWORD", c.Alert.SMTPPassword)
	c.Alert.SMTPFrom = getEnv("ALERT_SMTP_FROM", c.Alert.SMTPFrom)
	c.Alert.SMTPTo = getEnv("ALERT_SMTP_TO", c.Alert.SMTPTo)

	// Logging
	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.MetricsToJSON = getEnvBool("LOG_METRICS_TO_JSON", c.Logging.MetricsToJSON)
	if v := getEnvInt("METRICS_DUMP_INTERVAL_MIN", 0); v > 0 {
		c.Logging.MetricsDumpIntervalMin = v
	}

	// Paths
	c.Paths.BaseDirectory = getEnv("APP_BASE_DIRECTORY", c.Paths.BaseDirectory)
	c.Paths.SecretsDirectory = getEnv("APP_SECRETS_DIRECTORY", c.Paths.SecretsDirectory)

	c.applyDefaults()
}

// applyDefaults sets sensible defaults for zero-valued config fields.
func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = 15
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = 60 // tarpit streams slowly
	}
	if c.Server.IdleTimeoutSec == 0 {
		c.Server.IdleTimeoutSec = 60
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30
	}

	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.DBFreq == 0 {
		c.Redis.DBFreq = 1
	}
	if c.Redis.DBReputation == 0 {
		c.Redis.DBReputation = 2
	}
	if c.Redis.DBTarpitFlag == 0 {
		c.Redis.DBTarpitFlag = 3
	}
	if c.Redis.BlocklistTTLSec == 0 {
		c.Redis.BlocklistTTLSec = 86400
	}
	if c.Redis.FreqWindowSec == 0 {
		c.Redis.FreqWindowSec = 300
	}
	if c.Redis.FreqMarginSec == 0 {
		c.Redis.FreqMarginSec = 30
	}
	if c.Redis.ReputationTTLSec == 0 {
		c.Redis.ReputationTTLSec = 600
	}
	if c.Redis.TarpitFlagTTLSec == 0 {
		c.Redis.TarpitFlagTTLSec = 600
	}

	if c.Markov.SystemSeed == "" {
		c.Markov.SystemSeed = "change-me-system-seed"
	}

	if c.Tarpit.MinDelaySec == 0 {
		c.Tarpit.MinDelaySec = 0.6
	}
	if c.Tarpit.MaxDelaySec == 0 {
		c.Tarpit.MaxDelaySec = 2.5
	}
	if c.Tarpit.MaxHops == 0 {
		c.Tarpit.MaxHops = 250
	}
	if c.Tarpit.HopWindowSec == 0 {
		c.Tarpit.HopWindowSec = 300
	}
	if c.Tarpit.EscalationURL == "" {
		c.Tarpit.EscalationURL = "http://localhost:8081/escalate"
	}
	if c.Tarpit.EscalationTimeoutSec == 0 {
		c.Tarpit.EscalationTimeoutSec = 2
	}

	if c.Escalation.ThresholdHigh == 0 {
		c.Escalation.ThresholdHigh = 0.8
	}
	if c.Escalation.CaptchaScoreLow == 0 {
		c.Escalation.CaptchaScoreLow = 0.2
	}
	if c.Escalation.CaptchaScoreHigh == 0 {
		c.Escalation.CaptchaScoreHigh = 0.5
	}
	if c.Escalation.LocalLLMTimeoutSec == 0 {
		c.Escalation.LocalLLMTimeoutSec = 20
	}
	if c.Escalation.ExternalAPITimeoutSec == 0 {
		c.Escalation.ExternalAPITimeoutSec = 45
	}
	if c.Escalation.WebhookSinkURL == "" {
		c.Escalation.WebhookSinkURL = "http://localhost:8082/analyze"
	}
	if c.Escalation.WebhookTimeoutSec == 0 {
		c.Escalation.WebhookTimeoutSec = 5
	}

	if c.Reputation.TimeoutSec == 0 {
		c.Reputation.TimeoutSec = 3
	}
	if c.Reputation.MaliciousBonus == 0 {
		c.Reputation.MaliciousBonus = 0.3
	}

	if c.Webhook.WorkerCount == 0 {
		c.Webhook.WorkerCount = 4
	}
	if c.Webhook.QueueSize == 0 {
		c.Webhook.QueueSize = 1000
	}
	if c.Webhook.CommunityReportTimeoutSec == 0 {
		c.Webhook.CommunityReportTimeoutSec = 10
	}

	if c.Alert.Method == "" {
		c.Alert.Method = "none"
	}
	if c.Alert.MinSeverity == 0 {
		c.Alert.MinSeverity = 1
	}
	if c.Alert.RateLimitPerSec == 0 {
		c.Alert.RateLimitPerSec = 5
	}
	if c.Alert.SMTPPort == 0 {
		c.Alert.SMTPPort = 587
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MetricsDumpIntervalMin == 0 {
		c.Logging.MetricsDumpIntervalMin = 60
	}

	if c.Paths.BaseDirectory == "" {
		c.Paths.BaseDirectory = "."
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// =============================================================================
// Convenience Methods
// =============================================================================

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func (c *Config) GetPort() string {
	if c.Server.Port == "" {
		return "8080"
	}
	return c.Server.Port
}
