// Package config loads server settings from the environment, with an
// optional .env file for local runs.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Port is bound twice, once TCP and once UDP.
	Port int

	AIHost string
	AIPort int

	// DatabaseURL is optional; without it the in-memory store is used.
	DatabaseURL string

	// HTTPAddr serves the status routes; empty disables them.
	HTTPAddr string

	// WordsFile optionally seeds extra dictionary entries at startup.
	WordsFile string
}

func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("[config.Load] .env not loaded")
	}

	return Config{
		Port:        envInt("PORT", 1234),
		AIHost:      envStr("AI_HOST", "127.0.0.1"),
		AIPort:      envInt("AI_PORT", 5000),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		HTTPAddr:    envStr("HTTP_ADDR", ":8080"),
		WordsFile:   os.Getenv("WORDS_FILE"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("[config.Load] bad integer, using default")
		return fallback
	}
	return n
}
