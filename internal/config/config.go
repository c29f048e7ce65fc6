package config

import (
	"time"

	"carelink-backend/pkg/env"
)

// Config holds all environment-driven settings for the realtime service
type Config struct {
	Env  string
	Port string

	RedisHost     string
	RedisPort     int
	RedisPassword string

	CassandraHost     string
	CassandraKeyspace string
	CassandraUser     string
	CassandraPassword string

	CockroachHost     string
	CockroachPort     int
	CockroachUser     string
	CockroachPassword string
	CockroachDatabase string
	CockroachSSLMode  string

	JWTSecret string

	AssistBaseURL string
	AssistTimeout time.Duration
}

// Load reads the configuration from the environment (or Docker secrets)
func Load() *Config {
	return &Config{
		Env:  env.GetString("ENV", "development"),
		Port: env.GetString("PORT", "8084"),

		RedisHost:     env.GetString("REDIS_HOST", "localhost"),
		RedisPort:     env.GetInt("REDIS_PORT", 6379),
		RedisPassword: env.GetStringFromFile("REDIS_PASSWORD", ""),

		CassandraHost:     env.GetString("CASSANDRA_HOST", "localhost"),
		CassandraKeyspace: env.GetString("CASSANDRA_KEYSPACE", "carelink_ks"),
		CassandraUser:     env.GetStringFromFile("CASSANDRA_USER", ""),
		CassandraPassword: env.GetStringFromFile("CASSANDRA_PASSWORD", ""),

		CockroachHost:     env.GetString("COCKROACH_HOST", "localhost"),
		CockroachPort:     env.GetInt("COCKROACH_PORT", 26257),
		CockroachUser:     env.GetString("COCKROACH_USER", "root"),
		CockroachPassword: env.GetStringFromFile("COCKROACH_PASSWORD", ""),
		CockroachDatabase: env.GetString("COCKROACH_DATABASE", "carelink_db"),
		CockroachSSLMode:  env.GetString("COCKROACH_SSLMODE", "disable"),

		JWTSecret: env.GetStringFromFile("JWT_SECRET", ""),

		AssistBaseURL: env.GetString("ASSIST_BASE_URL", ""),
		AssistTimeout: env.GetDuration("ASSIST_TIMEOUT", 15*time.Second),
	}
}
