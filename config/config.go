package config

import (
	"log"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server Settings
	AppPort     string `env:"PORT" envDefault:"3000"`
	Host        string `env:"HOST" envDefault:"0.0.0.0"`
	DatabaseURL string `env:"DATABASE_URL"`

	// Audit trail (optional; audit is disabled when unset)
	MongoURI string `env:"MONGO_URI"`

	// JWT Settings
	JWTSecret string `env:"JWT_SECRET"`
}

func LoadConfig() *Config {
	// A missing .env is fine in production; variables come from the host.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading environment directly")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		log.Fatalf("Failed to parse configuration: %v", err)
	}
	return cfg
}
