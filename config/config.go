package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	AppPort            string
	JWTSecret          string
	RateLimitPerMinute int
	AllowedOrigins     []string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Database
	DBDriver    string
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	// Redis for caching, activity tracking and notifications
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// NATS for the moderation queue; empty disables it
	NatsURL           string
	ModerationSubject string
	NotifyChannel     string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Engine policies
	AnonymousPosting     bool
	TrustedPosterBalance int
	SingleVote           bool
	RequireVoteBalance   bool
	PostReward           int
	VoteCost             int
	FeedMaxLimit         int
	FeedDefaultLimit     int
	PostTypeMaxAge       map[string]time.Duration
	SystemAdminID        uint
	// Admins
	AdminUsernames []string
}

// LoadFrom builds a configuration with precedence JSON file -> defaults -> environment.
// A missing file is not an error.
func LoadFrom(path string) (AppConfig, error) {
	var c AppConfig
	// Booleans whose default is true are seeded before the file is read so
	// that an explicit false in JSON or env survives applyDefaults.
	c.SingleVote = true
	c.RequireVoteBalance = true
	if err := loadJSONConfig(path, &c); err != nil {
		return c, err
	}
	applyDefaults(&c)
	applyEnvOverrides(&c)
	return c, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadJSONConfig reads a flat or grouped JSON file into out. Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	// Grouped sections ("app", "database", "engine", ...) are merged over the flat keys.
	sections := []map[string]any{raw}
	for _, name := range []string{"app", "database", "redis", "nats", "log", "engine"} {
		if m, ok := raw[name].(map[string]any); ok {
			sections = append(sections, m)
		}
	}
	for _, m := range sections {
		applyJSONSection(m, out)
	}
	return nil
}

func applyJSONSection(m map[string]any, out *AppConfig) {
	getString := func(key string, dst *string) {
		if s, ok := m[key].(string); ok && s != "" {
			*dst = s
		}
	}
	getInt := func(key string, dst *int) {
		if f, ok := m[key].(float64); ok {
			*dst = int(f)
		}
	}
	getBool := func(key string, dst *bool) {
		if b, ok := m[key].(bool); ok {
			*dst = b
		}
	}
	getList := func(key string, dst *[]string) {
		if arr, ok := m[key].([]any); ok {
			res := make([]string, 0, len(arr))
			for _, it := range arr {
				if s, ok := it.(string); ok {
					res = append(res, s)
				}
			}
			*dst = res
		}
	}

	getString("AppPort", &out.AppPort)
	getString("JWTSecret", &out.JWTSecret)
	getInt("RateLimitPerMinute", &out.RateLimitPerMinute)
	getList("AllowedOrigins", &out.AllowedOrigins)
	getString("GinMode", &out.GinMode)
	getString("GinPath", &out.GinPath)

	getString("DBDriver", &out.DBDriver)
	getString("DatabaseURI", &out.DatabaseURI)
	getString("DBHost", &out.DBHost)
	getString("DBPort", &out.DBPort)
	getString("DBUser", &out.DBUser)
	getString("DBPassword", &out.DBPassword)
	getString("DBName", &out.DBName)

	getString("RedisHost", &out.RedisHost)
	getInt("RedisPort", &out.RedisPort)
	getInt("RedisDB", &out.RedisDB)
	getString("RedisPassword", &out.RedisPassword)

	getString("NatsURL", &out.NatsURL)
	getString("ModerationSubject", &out.ModerationSubject)
	getString("NotifyChannel", &out.NotifyChannel)

	getString("LogLevel", &out.LogLevel)
	getString("LogPath", &out.LogPath)
	getInt("LogMaxSizeMB", &out.LogMaxSizeMB)
	getInt("LogMaxBackups", &out.LogMaxBackups)
	getInt("LogMaxAgeDays", &out.LogMaxAgeDays)
	getBool("LogCompress", &out.LogCompress)

	getBool("AnonymousPosting", &out.AnonymousPosting)
	getInt("TrustedPosterBalance", &out.TrustedPosterBalance)
	getBool("SingleVote", &out.SingleVote)
	getBool("RequireVoteBalance", &out.RequireVoteBalance)
	getInt("PostReward", &out.PostReward)
	getInt("VoteCost", &out.VoteCost)
	getInt("FeedMaxLimit", &out.FeedMaxLimit)
	getInt("FeedDefaultLimit", &out.FeedDefaultLimit)
	if v, ok := m["SystemAdminID"].(float64); ok && v > 0 {
		out.SystemAdminID = uint(v)
	}
	if ages, ok := m["PostTypeMaxAge"].(map[string]any); ok {
		out.PostTypeMaxAge = parseTypeAges(ages)
	}
	getList("AdminUsernames", &out.AdminUsernames)
}

func parseTypeAges(m map[string]any) map[string]time.Duration {
	res := map[string]time.Duration{}
	for k, v := range m {
		s, ok := v.(string)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			log.Printf("ignoring max age %q for post type %q: %v", s, k, err)
			continue
		}
		res[strings.ToLower(k)] = d
	}
	return res
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.DBDriver == "" {
		c.DBDriver = "mysql"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "socialbbs"
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.ModerationSubject == "" {
		c.ModerationSubject = "socialbbs.moderation"
	}
	if c.NotifyChannel == "" {
		c.NotifyChannel = "socialbbs:posts"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogPath == "" {
		c.LogPath = "logs/app.log"
	}
	if c.TrustedPosterBalance == 0 {
		c.TrustedPosterBalance = 10
	}
	if c.PostReward == 0 {
		c.PostReward = 2
	}
	if c.VoteCost == 0 {
		c.VoteCost = 1
	}
	if c.FeedMaxLimit == 0 {
		c.FeedMaxLimit = 50
	}
	if c.FeedDefaultLimit == 0 {
		c.FeedDefaultLimit = 20
	}
	if c.SystemAdminID == 0 {
		c.SystemAdminID = 1
	}
}

func applyEnvOverrides(c *AppConfig) {
	if v := getEnv("APP_PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("JWT_SECRET", ""); v != "" {
		c.JWTSecret = v
	}
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("GIN_PATH", ""); v != "" {
		c.GinPath = v
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		c.RateLimitPerMinute = mustParseInt(v)
	}
	c.AllowedOrigins = readListEnv("CORS_ALLOWED_ORIGINS", c.AllowedOrigins)
	if v := getEnv("DB_DRIVER", ""); v != "" {
		c.DBDriver = strings.ToLower(v)
	}
	if v := getEnv("DATABASE_URI", ""); v != "" {
		c.DatabaseURI = v
	}
	if v := getEnv("DB_HOST", ""); v != "" {
		c.DBHost = v
	}
	if v := getEnv("DB_PORT", ""); v != "" {
		c.DBPort = v
	}
	if v := getEnv("DB_USER", ""); v != "" {
		c.DBUser = v
	}
	if v := getEnv("DB_PASSWORD", ""); v != "" {
		c.DBPassword = v
	}
	if v := getEnv("DB_NAME", ""); v != "" {
		c.DBName = v
	}
	if v := getEnv("REDIS_HOST", ""); v != "" {
		c.RedisHost = v
	}
	if v := getEnv("REDIS_PORT", ""); v != "" {
		c.RedisPort = mustParseInt(v)
	}
	if v := getEnv("REDIS_DB", ""); v != "" {
		c.RedisDB = mustParseInt(v)
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		c.RedisPassword = v
	}
	if v := getEnv("NATS_URL", ""); v != "" {
		c.NatsURL = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}
	if v := getEnv("LOG_MAX_SIZE_MB", ""); v != "" {
		c.LogMaxSizeMB = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_BACKUPS", ""); v != "" {
		c.LogMaxBackups = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_AGE_DAYS", ""); v != "" {
		c.LogMaxAgeDays = mustParseInt(v)
	}
	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		c.LogCompress = parseBool(v, c.LogCompress)
	}
	if v := getEnv("ANONYMOUS_POSTING", ""); v != "" {
		c.AnonymousPosting = parseBool(v, c.AnonymousPosting)
	}
	if v := getEnv("TRUSTED_POSTER_BALANCE", ""); v != "" {
		c.TrustedPosterBalance = mustParseInt(v)
	}
	if v := getEnv("SINGLE_VOTE", ""); v != "" {
		c.SingleVote = parseBool(v, c.SingleVote)
	}
	if v := getEnv("REQUIRE_VOTE_BALANCE", ""); v != "" {
		c.RequireVoteBalance = parseBool(v, c.RequireVoteBalance)
	}
	if v := getEnv("FEED_MAX_LIMIT", ""); v != "" {
		c.FeedMaxLimit = mustParseInt(v)
	}
	if v := getEnv("SYSTEM_ADMIN_ID", ""); v != "" {
		c.SystemAdminID = uint(mustParseInt(v))
	}
	c.AdminUsernames = readListEnv("ADMIN_USERNAMES", c.AdminUsernames)
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		log.Printf("invalid integer value %q: %v", val, err)
		return 0
	}
	return i
}

func parseBool(val string, def bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(val))
	if err != nil {
		return def
	}
	return b
}

func readListEnv(key string, defaults []string) []string {
	if raw := os.Getenv(key); raw != "" {
		return splitAndTrim(raw)
	}
	return defaults
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
