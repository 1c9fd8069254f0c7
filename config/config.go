package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

var conf = mustLoad()

type Config struct {
	Configuration struct {
		Port                      string `envconfig:"PORT" default:"8080"`
		LogLevel                  string `envconfig:"LOG_LEVEL" default:"info"`
		LogFormat                 string `envconfig:"LOG_FORMAT" default:"json"` // json or text
		RateLimitPerSecond        int    `envconfig:"RATE_LIMIT_PER_SECOND" default:"5"`
		RateLimitBurstLimit       int    `envconfig:"RATE_LIMIT_BURST_LIMIT" default:"10"`
		CachedRateLimitPerSecond  int    `envconfig:"CACHED_RATE_LIMIT_PER_SECOND" default:"20"`
		CachedRateLimitBurstLimit int    `envconfig:"CACHED_RATE_LIMIT_BURST_LIMIT" default:"40"`
		CacheCapacity             int    `envconfig:"CACHE_CAPACITY" default:"20"`
		CacheAccessToken          string `envconfig:"CACHE_ACCESS_TOKEN" default:""`
		APIKey                    string `envconfig:"API_KEY" default:""`
		APIKeyRequired            bool   `envconfig:"API_KEY_REQUIRED" default:"false"`
		AllowedOrigins            string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"` // comma separated
		StatsDBPath               string `envconfig:"STATS_DB_PATH" default:"./data/stats.db"`

		// Client identity sent to remote catalogs
		ClientName    string `envconfig:"CLIENT_NAME" default:"lyrics-sync-go"`
		ClientVersion string `envconfig:"CLIENT_VERSION" default:"0.1.0"`

		// Providers
		ProviderTimeoutSecs       int     `envconfig:"PROVIDER_TIMEOUT_SECS" default:"10"`
		LocalLyricsDir            string  `envconfig:"LOCAL_LYRICS_DIR" default:""`
		LocalLyricsExtension      string  `envconfig:"LOCAL_LYRICS_EXTENSION" default:".lrc"`
		LocalLyricsWatch          bool    `envconfig:"LOCAL_LYRICS_WATCH" default:"true"`
		LrclibEnabled             bool    `envconfig:"LRCLIB_ENABLED" default:"true"`
		LrclibBaseURL             string  `envconfig:"LRCLIB_BASE_URL" default:"https://lrclib.net"`
		LrclibPriority            int     `envconfig:"LRCLIB_PRIORITY" default:"5"`
		NeteaseEnabled            bool    `envconfig:"NETEASE_ENABLED" default:"true"`
		NeteaseBaseURL            string  `envconfig:"NETEASE_BASE_URL" default:"https://music.163.com"`
		NeteasePriority           int     `envconfig:"NETEASE_PRIORITY" default:"10"`
		NeteaseRateLimitPerSecond float64 `envconfig:"NETEASE_RATE_LIMIT_PER_SECOND" default:"2"`

		CircuitBreakerThreshold    int `envconfig:"CIRCUIT_BREAKER_THRESHOLD" default:"5"`     // Consecutive transient failures before a provider is skipped
		CircuitBreakerCooldownSecs int `envconfig:"CIRCUIT_BREAKER_COOLDOWN_SECS" default:"120"` // Seconds before a skipped provider is tried again

		// Now-playing session
		ResolveTimeoutSecs int `envconfig:"RESOLVE_TIMEOUT_SECS" default:"30"`
		RetryIntervalSecs  int `envconfig:"RETRY_INTERVAL_SECS" default:"30"`

		// Provider outage alerts
		NotifierCooldownMins int `envconfig:"NOTIFIER_COOLDOWN_MINS" default:"15"`
	}

	Notifiers struct {
		SMTPHost     string `envconfig:"NOTIFIER_SMTP_HOST" default:""`
		SMTPPort     string `envconfig:"NOTIFIER_SMTP_PORT" default:"587"`
		SMTPUsername string `envconfig:"NOTIFIER_SMTP_USERNAME" default:""`
		SMTPPassword string `envconfig:"NOTIFIER_SMTP_PASSWORD" default:""`
		EmailFrom    string `envconfig:"NOTIFIER_EMAIL_FROM" default:""`
		EmailTo      string `envconfig:"NOTIFIER_EMAIL_TO" default:""`

		TelegramBotToken string `envconfig:"NOTIFIER_TELEGRAM_BOT_TOKEN" default:""`
		TelegramChatID   string `envconfig:"NOTIFIER_TELEGRAM_CHAT_ID" default:""`

		NtfyTopic  string `envconfig:"NOTIFIER_NTFY_TOPIC" default:""`
		NtfyServer string `envconfig:"NOTIFIER_NTFY_SERVER" default:"https://ntfy.sh"`
	}

	FeatureFlags struct {
		InFlightDedup bool `envconfig:"FF_IN_FLIGHT_DEDUP" default:"true"`
		PersistStats  bool `envconfig:"FF_PERSIST_STATS" default:"true"`
	}
}

// Origins returns the configured CORS origins.
func (c Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.Configuration.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// load loads the configuration from the environment.
func load() (Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Debugf("No .env file loaded: %v", err)
	}

	cfg := Config{}
	err = envconfig.Process("", &cfg)
	return cfg, err
}

func mustLoad() Config {
	c, err := load()
	if err != nil {
		log.WithError(err).Warnf("Unable to load configuration")
	}

	return c
}

// Load re-reads the environment. Mostly useful in tests.
func Load() (Config, error) {
	return load()
}

func Get() Config {
	return conf
}
