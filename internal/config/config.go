package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Bind                   string
	Port                   string
	DatabaseDSN            string
	JWTSecret              string
	Env                    string
	SessionTokenTTLMinutes int
	StoreTimeout           time.Duration
	RoomCapacity           int
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(getenv(key, strconv.Itoa(def)))
	if err != nil {
		return def
	}
	return v
}

func Load() Config {
	return Config{
		Bind:                   getenv("APP_BIND", "0.0.0.0"),
		Port:                   getenv("APP_PORT", "8080"),
		DatabaseDSN:            getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=crownfight port=5432 sslmode=disable TimeZone=UTC"),
		JWTSecret:              getenv("JWT_SECRET", "dev-secret-change-me"),
		Env:                    getenv("APP_ENV", "dev"),
		SessionTokenTTLMinutes: getenvInt("SESSION_TOKEN_TTL_MINUTES", 720),
		StoreTimeout:           time.Duration(getenvInt("STORE_TIMEOUT_MS", 3000)) * time.Millisecond,
		RoomCapacity:           getenvInt("ROOM_CAPACITY", 4),
	}
}
