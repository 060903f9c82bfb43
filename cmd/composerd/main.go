package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/rawblock/coinjoin-composer/internal/api"
	"github.com/rawblock/coinjoin-composer/internal/db"
	"github.com/rawblock/coinjoin-composer/internal/solver"
)

func main() {
	log.Println("Starting RawBlock CoinJoin Composer service (composerd)...")

	// ─── Environment Configuration ──────────────────────────────────────
	// DATABASE_URL is optional: without it the service still composes,
	// it just doesn't persist solve runs. API_AUTH_TOKEN is strongly
	// recommended in production (see middleware.go).
	// ────────────────────────────────────────────────────────────────────

	var dbConn *db.PostgresStore
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		conn, err := db.Connect(dbURL)
		if err != nil {
			log.Printf("Warning: Failed to connect to PostgreSQL, continuing without persisting solve runs. Error: %v", err)
		} else {
			dbConn = conn
			defer dbConn.Close()
			if err := dbConn.InitSchema(); err != nil {
				log.Printf("Warning: DB schema init failed: %v", err)
			}
		}
	} else {
		log.Println("DATABASE_URL not set — running without job persistence")
	}

	timeoutMs := getEnvIntOrDefault("SOLVER_ITERATION_TIMEOUT_MS", 180000)
	timeout := time.Duration(timeoutMs) * time.Millisecond
	oracle := solver.NewZ3(os.Getenv("Z3_BIN"))

	// Per-job websocket hub for optimizer progress streaming
	wsHub := api.NewStreamHub()

	// Setup the Gin Router
	r := api.SetupRouter(dbConn, oracle, wsHub, timeout)

	port := getEnvOrDefault("PORT", "5340")

	log.Printf("Composer service running on :%s (solver timeout %v per call)\n", port, timeout)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvIntOrDefault(key string, fallback int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		log.Printf("Warning: ignoring %s=%q: %v", key, val, err)
		return fallback
	}
	return parsed
}
