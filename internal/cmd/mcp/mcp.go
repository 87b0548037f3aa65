// Package mcp parses MCP command flags and selects stdio or HTTP transport.
package mcp

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
	"github.com/Thiagoxp95/portaria/internal/services/directory"
	directorysqlite "github.com/Thiagoxp95/portaria/internal/services/directory/storage/sqlite"
	mcpservice "github.com/Thiagoxp95/portaria/internal/services/mcp/service"
)

// Config holds MCP command configuration.
type Config struct {
	DBPath    string `env:"PORTARIA_DB_PATH"       envDefault:"data/portaria.db"`
	Transport string `env:"PORTARIA_MCP_TRANSPORT" envDefault:"stdio"`
	HTTPAddr  string `env:"PORTARIA_MCP_HTTP_ADDR" envDefault:"localhost:8081"`

	TwilioAccountSID     string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken      string `env:"TWILIO_AUTH_TOKEN"`
	TwilioWhatsAppFrom   string `env:"TWILIO_WHATSAPP_FROM"`
	TwilioContentSID     string `env:"TWILIO_CONTENT_SID"`
	TwilioStatusCallback string `env:"TWILIO_STATUS_WEBHOOK"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "Transport type: stdio or http")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address (for HTTP transport)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the MCP concierge server.
func Run(ctx context.Context, cfg Config) error {
	shutdown, err := otel.Setup(ctx, "mcp")
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

	residents, err := directorysqlite.OpenDB(sqlDB)
	if err != nil {
		return err
	}
	consents, err := consentsqlite.OpenDB(sqlDB)
	if err != nil {
		return err
	}

	twilioCfg := whatsapp.Config{
		AccountSID:     cfg.TwilioAccountSID,
		AuthToken:      cfg.TwilioAuthToken,
		From:           cfg.TwilioWhatsAppFrom,
		ContentSID:     cfg.TwilioContentSID,
		StatusCallback: cfg.TwilioStatusCallback,
	}
	var sender whatsapp.Sender
	if twilioCfg.Configured() {
		sender = whatsapp.NewClient(twilioCfg)
	} else {
		log.Printf("Twilio credentials not configured, using mock sender")
		sender = whatsapp.MockSender{}
	}

	return mcpservice.Run(ctx, mcpservice.Config{
		Transport: mcpservice.Transport(cfg.Transport),
		HTTPAddr:  cfg.HTTPAddr,
	}, mcpservice.Deps{
		Directory: directory.NewService(residents),
		Consent:   consent.NewService(consents, sender),
	})
}
