// migrate applies the embedded schema migrations.
// Run: go run ./cmd/migrate [up|down]
package main

import (
	"log"
	"os"

	"github.com/ErlanBelekov/birthday-campaign/config"
	"github.com/ErlanBelekov/birthday-campaign/internal/infrastructure/postgres"
	ctxlog "github.com/ErlanBelekov/birthday-campaign/internal/log"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := ctxlog.New(cfg.Env, cfg.SlogLevel())

	dir := postgres.Up
	if len(os.Args) > 1 {
		dir = postgres.Direction(os.Args[1])
	}

	if err := postgres.Migrate(cfg.DatabaseURL, dir, logger); err != nil {
		log.Fatalf("migrate: %v", err)
	}
}
