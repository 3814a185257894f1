package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                 string
	AllowedOrigin        string
	DatabaseURL          string
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	TerminalID           string
	StoreID              string
	RemoteOrderURL       string
	RemoteHealthURL      string
	KafkaBrokers         []string
	KafkaOrderTopic      string
	AuthSecret           string
	ManagerPIN           string
	ProbeIntervalSeconds int
	CatalogTTLSeconds    int
	SyncedRetentionDays  int
}

func Load() Config {
	// Optional .env for local development; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	probeInterval, err := strconv.Atoi(getEnv("PROBE_INTERVAL_SECONDS", "15"))
	if err != nil || probeInterval < 1 {
		probeInterval = 15
	}
	catalogTTL, err := strconv.Atoi(getEnv("CATALOG_TTL_SECONDS", "86400"))
	if err != nil || catalogTTL < 1 {
		catalogTTL = 86400
	}
	retentionDays, err := strconv.Atoi(getEnv("SYNCED_RETENTION_DAYS", "30"))
	if err != nil || retentionDays < 1 {
		retentionDays = 30
	}

	remoteOrderURL := strings.TrimSpace(os.Getenv("REMOTE_ORDER_URL"))
	remoteHealthURL := strings.TrimSpace(os.Getenv("REMOTE_HEALTH_URL"))
	if remoteHealthURL == "" && remoteOrderURL != "" {
		remoteHealthURL = strings.TrimSuffix(remoteOrderURL, "/") + "/healthz"
	}

	cfg := Config{
		Port:                 getEnv("PORT", "8090"),
		AllowedOrigin:        getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              redisDB,
		TerminalID:           getEnv("TERMINAL_ID", "terminal-1"),
		StoreID:              getEnv("STORE_ID", "main-store"),
		RemoteOrderURL:       remoteOrderURL,
		RemoteHealthURL:      remoteHealthURL,
		KafkaBrokers:         splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaOrderTopic:      getEnv("KAFKA_ORDER_TOPIC", "pos-order-intake"),
		AuthSecret:           strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		ManagerPIN:           strings.TrimSpace(os.Getenv("MANAGER_PIN")),
		ProbeIntervalSeconds: probeInterval,
		CatalogTTLSeconds:    catalogTTL,
		SyncedRetentionDays:  retentionDays,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
