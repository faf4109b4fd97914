package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI        string
	MongoDB         string
	RedisAddr       string
	Port            string
	JWTSecret       string
	InternalCallKey string
}

// Load reads .env (if present) and the environment, falling back to dev
// defaults with a warning.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env")
	}

	return &Config{
		MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:         getEnv("MONGO_DB", "coursecontrol"),
		RedisAddr:       getEnv("REDIS_URI", "localhost:6379"),
		Port:            getEnv("PORT", "8080"),
		JWTSecret:       getEnv("JWT_SECRET", "super-secret-key-change-in-production"),
		InternalCallKey: getEnv("INTERNAL_CALL_KEY", "internal-dev-key"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	log.Printf("Warning: %s not set, using default", key)
	return defaultVal
}
