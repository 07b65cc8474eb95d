package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings holds the service tunables. Values come from an optional config file
// (CONFIG_FILE) and are overridden by environment variables of the same name.
type Settings struct {
	Port string `mapstructure:"PORT"`

	PostgresURI string `mapstructure:"POSTGRES_URI"`
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDB     string `mapstructure:"MONGO_DB"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"`

	JWTSecret   string `mapstructure:"SUPABASE_JWT_SECRET"`
	JWTIssuer   string `mapstructure:"SUPABASE_JWT_ISSUER"`
	JWTAudience string `mapstructure:"SUPABASE_JWT_AUDIENCE"`

	RateLimitBackend  string        `mapstructure:"RATE_LIMIT_BACKEND"` // memory|redis|badger
	RateLimitCapacity int           `mapstructure:"RATE_LIMIT_CAPACITY"`
	RateLimitRefill   int           `mapstructure:"RATE_LIMIT_REFILL"`
	RateLimitInterval time.Duration `mapstructure:"RATE_LIMIT_INTERVAL"`
	BadgerPath        string        `mapstructure:"BADGER_PATH"`

	HeartbeatInterval time.Duration `mapstructure:"HEARTBEAT_INTERVAL"`
	TranscriptTTL     time.Duration `mapstructure:"TRANSCRIPT_TTL"`
	JobInfoCacheTTL   time.Duration `mapstructure:"JOB_INFO_CACHE_TTL"`

	VoiceURL      string `mapstructure:"VOICE_URL"`
	VoiceAPIKey   string `mapstructure:"VOICE_API_KEY"`
	VoiceConfigID string `mapstructure:"VOICE_CONFIG_ID"`

	FeedbackWorkers int    `mapstructure:"FEEDBACK_WORKERS"`
	VertexProject   string `mapstructure:"VERTEX_PROJECT"`
	VertexLocation  string `mapstructure:"VERTEX_LOCATION"`
	VertexModel     string `mapstructure:"VERTEX_MODEL"`
}

var settingKeys = []string{
	"PORT", "POSTGRES_URI", "MONGO_URI", "MONGO_DB", "REDIS_ADDR",
	"SUPABASE_JWT_SECRET", "SUPABASE_JWT_ISSUER", "SUPABASE_JWT_AUDIENCE",
	"RATE_LIMIT_BACKEND", "RATE_LIMIT_CAPACITY", "RATE_LIMIT_REFILL", "RATE_LIMIT_INTERVAL", "BADGER_PATH",
	"HEARTBEAT_INTERVAL", "TRANSCRIPT_TTL", "JOB_INFO_CACHE_TTL",
	"VOICE_URL", "VOICE_API_KEY", "VOICE_CONFIG_ID",
	"FEEDBACK_WORKERS", "VERTEX_PROJECT", "VERTEX_LOCATION", "VERTEX_MODEL",
}

func defaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("MONGO_DB", "hiready")
	v.SetDefault("RATE_LIMIT_BACKEND", "redis")
	v.SetDefault("RATE_LIMIT_CAPACITY", 12)
	v.SetDefault("RATE_LIMIT_REFILL", 4)
	v.SetDefault("RATE_LIMIT_INTERVAL", 24*time.Hour)
	v.SetDefault("BADGER_PATH", "data/ratelimit")
	v.SetDefault("HEARTBEAT_INTERVAL", 10*time.Second)
	v.SetDefault("TRANSCRIPT_TTL", 30*24*time.Hour)
	v.SetDefault("JOB_INFO_CACHE_TTL", 10*time.Minute)
	v.SetDefault("VOICE_URL", "wss://api.hume.ai/v0/evi/chat")
	v.SetDefault("FEEDBACK_WORKERS", 2)
	v.SetDefault("VERTEX_LOCATION", "us-central1")
	v.SetDefault("VERTEX_MODEL", "gemini-1.5-flash")
}

// LoadSettings reads configFile when non-empty, then applies environment overrides.
func LoadSettings(configFile string) (Settings, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unmarshal only sees env values for keys viper already knows about.
	for _, k := range settingKeys {
		_ = v.BindEnv(k)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, err
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
