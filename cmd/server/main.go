package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"chat-relay/moderation"
	"chat-relay/registry"
	"chat-relay/repositories"
	"chat-relay/router"
	"chat-relay/server"
	"chat-relay/storage"
)

// Exit codes to provide meaningful status to the operating system or service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting, so every defer (database close, index close)
// executes before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	censoredChar, err := config.CensoredRune()
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	// 2. Transport credentials. Only the cert loading lives here; the core
	// just needs an encrypted stream.
	cert, err := tls.LoadX509KeyPair(config.CertFile, config.KeyFile)
	if err != nil {
		return exitConfig, fmt.Errorf("load TLS key pair: %w", err)
	}
	tlsConfig := &tls.Config{Certificates: []tls.Certificate{cert}}

	// 3. Durable stores (BadgerDB rows + Bluge search index).
	// SyncWrites makes Insert durable before it acknowledges.
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithSyncWrites(true).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	messages, err := repositories.NewMessageRepository(db, blugeWriter, logger, config.SearchPageSize)
	if err != nil {
		return exitRuntime, err
	}
	defer func() { _ = messages.Close() }()

	uploads, err := storage.NewUploadStore(config.UploadsDir, logger)
	if err != nil {
		return exitRuntime, err
	}

	// 4. Moderation wordlist (optional; empty list disables censoring).
	words, err := loadWordlist(config.CensoredWordsFile)
	if err != nil {
		return exitConfig, err
	}
	moderator, err := moderation.NewModerator(words, censoredChar)
	if err != nil {
		return exitRuntime, fmt.Errorf("build moderator: %w", err)
	}

	// 5. Core wiring and signal-driven shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := registry.NewRegistry()
	r := router.NewRouter(reg, messages, uploads, moderator, logger, config.MaxFrameSize)
	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	listener := server.NewListener(addr, tlsConfig, r, logger)

	if err := listener.Serve(ctx); err != nil {
		return exitRuntime, err
	}
	logger.Info("Server stopped cleanly")
	return exitOK, nil
}

// loadWordlist reads one banned word per line, skipping blanks and comments.
func loadWordlist(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wordlist: %w", err)
	}
	var words []string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	return words, nil
}
