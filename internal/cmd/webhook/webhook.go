// Package webhook parses webhook command flags and runs the inbound HTTP server.
package webhook

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/Thiagoxp95/portaria/internal/platform/config"
	"github.com/Thiagoxp95/portaria/internal/platform/otel"
	"github.com/Thiagoxp95/portaria/internal/platform/storage/sqlitedb"
	"github.com/Thiagoxp95/portaria/internal/platform/whatsapp"
	"github.com/Thiagoxp95/portaria/internal/services/consent"
	consentsqlite "github.com/Thiagoxp95/portaria/internal/services/consent/storage/sqlite"
	"github.com/Thiagoxp95/portaria/internal/services/webhook/app"
)

// Config holds webhook command configuration.
type Config struct {
	DBPath    string `env:"PORTARIA_DB_PATH"             envDefault:"data/portaria.db"`
	Addr      string `env:"PORTARIA_WEBHOOK_ADDR"        envDefault:":8082"`
	PublicURL string `env:"PORTARIA_WEBHOOK_PUBLIC_URL"`

	TwilioAuthToken string `env:"TWILIO_AUTH_TOKEN"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	fs.StringVar(&cfg.PublicURL, "public-url", cfg.PublicURL, "externally visible webhook URL used for signature validation")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the inbound webhook server.
func Run(ctx context.Context, cfg Config) error {
	if cfg.TwilioAuthToken == "" {
		return fmt.Errorf("TWILIO_AUTH_TOKEN is required to validate webhook signatures")
	}

	shutdown, err := otel.Setup(ctx, "webhook")
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

	// The webhook only resolves consents, so it never sends; the mock sender
	// satisfies the service dependency without Twilio credentials.
	svc := consent.NewService(consents, whatsapp.MockSender{})
	validator := whatsapp.NewValidator(cfg.TwilioAuthToken)

	server, err := app.NewServer(app.Config{
		Addr:      cfg.Addr,
		PublicURL: cfg.PublicURL,
	}, svc, validator)
	if err != nil {
		return err
	}
	return server.ListenAndServe(ctx)
}
