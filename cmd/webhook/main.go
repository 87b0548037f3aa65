package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	webhookcmd "github.com/Thiagoxp95/portaria/internal/cmd/webhook"
)

// main starts the inbound Twilio webhook server.
func main() {
	cfg, err := webhookcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[WEBHOOK] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := webhookcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve webhook: %v", err)
	}
}
