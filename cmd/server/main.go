package main

import (
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/omochice/talkwave/internal/config"
	"github.com/omochice/talkwave/internal/server"
	"github.com/omochice/talkwave/pkg/protocol"
)

func main() {
	var cfg config.Server
	if err := config.ParseEnv(&cfg); err != nil {
		config.Exitf("Failed to load config: %v", err)
	}

	addr := flag.String("addr", cfg.Addr, "Address to listen on (e.g., :8080)")
	wire := flag.String("format", cfg.WireFormat, "Wire format for realtime frames (json or proto)")
	flag.Parse()

	format, err := protocol.ParseFormat(*wire)
	if err != nil {
		config.Exitf("Invalid wire format: %v", err)
	}

	srv := server.New(*addr, server.Options{Format: format, PasswordCost: cfg.PasswordCost})

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		log.Printf("Starting chat server on %s (%s frames)...", *addr, format)
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, server.ErrStopped) {
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("Received signal %v, shutting down...", sig)
		srv.Stop()
	}

	log.Println("Chat server stopped")
}
