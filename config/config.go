package config

import (
	"fmt"
	"os"
	"strings"

	"typesync/pkg/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr         string
	StoreBackend string // "memory" or "postgres"
	JWTSecret    string

	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string
}

// Load reads configuration from a .env file when present, falling back
// to OS environment variables.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logger.Sugar.Info("No .env file found, using environment variables from OS")
	}

	return &Config{
		Addr:         envOr("ADDR", ":8080"),
		StoreBackend: envOr("STORE", "memory"),
		JWTSecret:    strings.TrimSpace(os.Getenv("JWT_SECRET")),
		DBUser:       strings.TrimSpace(os.Getenv("user")),
		DBPassword:   strings.TrimSpace(os.Getenv("password")),
		DBHost:       strings.TrimSpace(os.Getenv("host")),
		DBPort:       strings.TrimSpace(os.Getenv("port")),
		DBName:       strings.TrimSpace(os.Getenv("dbname")),
	}
}

// ConnString builds the Postgres connection string from the db fields.
func (c *Config) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=require",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
