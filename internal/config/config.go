package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	UDPPort     int
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CachePrefix   string

	AdvertiseIP       string
	ServerName        string
	DiscoveryInterval time.Duration

	PresenceStale  time.Duration
	PresenceSweep  time.Duration
	PresenceOnline time.Duration
	QueueHeartbeat time.Duration
	DevicesStatus  time.Duration
	DedupeTTL      time.Duration

	PrintTimeout   time.Duration
	PrintTempDir   string
	Printer        string
	PrinterCommand string
	PrintWebhook   string
	CompanyName    string

	ResetEnabled        bool
	ResetTime           string
	ResetTickets        bool
	ResetPDFs           bool
	ResetCache          bool
	ResetKeepDays       int
	ResetConfigFile     string
	ResetSafetyInterval time.Duration
	ArtifactDirs        []string
	LogDirs             []string
	Location            *time.Location

	AdminKeyHash  string
	JWTSecret     string
	AdminTokenTTL time.Duration

	RateLimitPerMinute int
	RateLimitBurst     int
}

// Load reads the process environment, after an optional .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:        readString("PORT", "3001"),
		UDPPort:     readInt("UDP_PORT", 4000),
		DatabaseURL: os.Getenv("DB_DSN"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       readInt("REDIS_DB", 0),
		CachePrefix:   readString("CACHE_PREFIX", "casnos"),

		AdvertiseIP:       os.Getenv("ADVERTISE_IP"),
		ServerName:        readString("SERVER_NAME", "casnos-server"),
		DiscoveryInterval: readDurationSeconds("DISCOVERY_BROADCAST_INTERVAL_SECONDS", 30),

		PresenceStale:  readDurationSeconds("PRESENCE_STALE_SECONDS", 120),
		PresenceSweep:  readDurationSeconds("PRESENCE_SWEEP_SECONDS", 30),
		PresenceOnline: readDurationSeconds("PRESENCE_ONLINE_SECONDS", 60),
		QueueHeartbeat: readDurationSeconds("QUEUE_HEARTBEAT_SECONDS", 5),
		DevicesStatus:  readDurationSeconds("DEVICES_STATUS_SECONDS", 60),
		DedupeTTL:      readDurationSeconds("PRINT_DEDUPE_SECONDS", 600),

		PrintTimeout:   time.Duration(readInt("PRINT_TIMEOUT_MS", 5000)) * time.Millisecond,
		PrintTempDir:   os.Getenv("PRINT_TEMP_DIR"),
		Printer:        readString("PRINTER", "command"),
		PrinterCommand: readString("PRINTER_COMMAND", "lp"),
		PrintWebhook:   os.Getenv("PRINT_WEBHOOK_URL"),
		CompanyName:    readString("COMPANY_NAME", "CASNOS"),

		ResetEnabled:        readBool("RESET_ENABLED", true),
		ResetTime:           readString("RESET_TIME", "00:00"),
		ResetTickets:        readBool("RESET_TICKETS", true),
		ResetPDFs:           readBool("RESET_PDFS", true),
		ResetCache:          readBool("RESET_CACHE", true),
		ResetKeepDays:       readInt("RESET_KEEP_DAYS", 30),
		ResetConfigFile:     os.Getenv("RESET_CONFIG_FILE"),
		ResetSafetyInterval: readDurationSeconds("RESET_SAFETY_INTERVAL_SECONDS", 3600),
		ArtifactDirs:        readList("ARTIFACT_DIRS"),
		LogDirs:             readList("LOG_DIRS"),
		Location:            readLocation("TIMEZONE"),

		AdminKeyHash:  os.Getenv("ADMIN_KEY_HASH"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		AdminTokenTTL: readDurationSeconds("ADMIN_TOKEN_TTL_SECONDS", 12*3600),

		RateLimitPerMinute: readInt("RATE_LIMIT_PER_MIN", 600),
		RateLimitBurst:     readInt("RATE_LIMIT_BURST", 100),
	}
}

func readString(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func readLocation(key string) *time.Location {
	name := os.Getenv(key)
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}
