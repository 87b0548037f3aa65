// Package sweeper parses sweeper command flags and runs one expiry sweep.
package sweeper

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/Thiagoxp95/portaria/internal/platform/config"
	"github.com/Thiagoxp95/portaria/internal/platform/otel"
	"github.com/Thiagoxp95/portaria/internal/platform/storage/sqlitedb"
	"github.com/Thiagoxp95/portaria/internal/platform/whatsapp"
	"github.com/Thiagoxp95/portaria/internal/services/consent"
	consentsqlite "github.com/Thiagoxp95/portaria/internal/services/consent/storage/sqlite"
)

// Config holds sweeper command configuration.
type Config struct {
	DBPath string `env:"PORTARIA_DB_PATH" envDefault:"data/portaria.db"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite database path")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run marks expired pending consents as no_answer and exits. It is meant to
// be invoked periodically from cron or a scheduler.
func Run(ctx context.Context, cfg Config) error {
	shutdown, err := otel.Setup(ctx, "sweeper")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	sqlDB, err := sqlitedb.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := sqlDB.Close(); err != nil {
			log.Printf("close database: %v", err)
		}
	}()

	consents, err := consentsqlite.OpenDB(sqlDB)
	if err != nil {
		return err
	}

	// The sweeper never sends messages; the mock sender satisfies the
	// service dependency without Twilio credentials.
	svc := consent.NewService(consents, whatsapp.MockSender{})

	result, err := svc.SweepExpired(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	if result.Marked == 0 {
		log.Printf("no expired consents")
		return nil
	}
	log.Printf("marked %d expired consents as no_answer: %v", result.Marked, result.ConversationSIDs)
	return nil
}
