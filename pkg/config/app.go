package config

// App holds infrastructure settings (HTTP, status store, workers), separate
// from the pipeline settings that get snapshotted per task.
type App struct {
	Port         string
	StoreBackend string // "redis" or "postgres"
	RedisURL     string
	DBConnStr    string

	// ConnectRetries bounds the startup connectivity check against the
	// status store.
	ConnectRetries int

	// Workers is the size of the task runner pool; 0 means NumCPU.
	Workers int
}

// LoadApp resolves application settings from APP_-prefixed environment
// variables. Callers load .env beforehand (see cmd).
func LoadApp() App {
	return App{
		Port:           getEnv("APP_PORT", "8080"),
		StoreBackend:   getEnv("APP_STORE_BACKEND", "redis"),
		RedisURL:       getEnv("APP_REDIS_URL", "redis://localhost:6379"),
		DBConnStr:      getEnv("APP_DB_URL", ""),
		ConnectRetries: getEnvInt("APP_STORE_CONNECT_RETRIES", 3),
		Workers:        getEnvInt("APP_WORKERS", 0),
	}
}
