package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr    string
	DatabaseURL string
	SentryDSN   string

	// Fish Audio API
	FishAPIKey       string
	FishBaseURL      string
	FishLiveEndpoint string
	FishModel        string

	// Voice defaults (overridable per request)
	TTSReferenceID string
	TTSFormat      string
	TTSLatency     string
	TTSChunkLength int // API accepts 100-300

	// LLM text producer (optional, used by the speak CLI)
	OpenAIAPIKey string
	OpenAIModel  string

	// JWT Authentication
	JWTSecret string
	JWTExpiry time.Duration

	// Gateway keys accepted by POST /auth/token
	GatewayKeys []string
}

func LoadConfigFromEnv() Config {
	jwtExpiry, err := time.ParseDuration(getenv("JWT_EXPIRY", "24h"))
	if err != nil {
		jwtExpiry = 24 * time.Hour
	}

	return Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		DatabaseURL: getenv("DATABASE_URL", ""),
		SentryDSN:   getenv("SENTRY_DSN", ""),

		FishAPIKey:       getenv("FISH_API_KEY", ""),
		FishBaseURL:      getenv("FISH_BASE_URL", ""),
		FishLiveEndpoint: getenv("FISH_LIVE_ENDPOINT", ""),
		FishModel:        getenv("FISH_MODEL", "speech-1.6"),

		TTSReferenceID: getenv("TTS_REFERENCE_ID", ""),
		TTSFormat:      getenv("TTS_FORMAT", "mp3"),
		TTSLatency:     getenv("TTS_LATENCY", "normal"),
		TTSChunkLength: getenvIntClamped("TTS_CHUNK_LENGTH", 200, 100, 300),

		OpenAIAPIKey: getenv("OPENAI_API_KEY", ""),
		OpenAIModel:  getenv("OPENAI_MODEL", "gpt-4o-mini"),

		JWTSecret: os.Getenv("JWT_SECRET"), // Required - no fallback for security
		JWTExpiry: jwtExpiry,

		GatewayKeys: parseGatewayKeys(os.Getenv("GATEWAY_KEYS")),
	}
}

func parseGatewayKeys(s string) []string {
	if s == "" {
		return nil
	}
	var keys []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// getenvIntClamped returns an int env var clamped to [min, max], or def when
// unset or unparseable.
func getenvIntClamped(k string, def, min, max int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}
