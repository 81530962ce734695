package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mir00r/split-router/internal/config"
	"github.com/mir00r/split-router/internal/domain"
	"github.com/mir00r/split-router/internal/store"
	"github.com/mir00r/split-router/pkg/logger"
)

// Admin processes run as one-off invocations: split-router -admin <command> [args]

const adminTimeout = 30 * time.Second

// lookupKey derives the store key for a domain argument the same way the
// router does for a Host header.
func lookupKey(arg string) string {
	return domain.NormalizeKey(domain.ExtractDomain(arg))
}

// runKey prints the store key and cookie name for a domain
func runKey(out io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: key <domain>")
	}

	key := lookupKey(args[0])
	fmt.Fprintf(out, "Key: %s\n", key)
	fmt.Fprintf(out, "Cookie: %s\n", domain.CookieName(domain.CookiePrefix, key))
	return nil
}

// runGet prints the stored record for a domain
func runGet(ctx context.Context, out io.Writer, backend *store.Backend, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: get <domain>")
	}

	key := lookupKey(args[0])
	raw, err := backend.Reader.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}

	fmt.Fprintf(out, "%s\n", raw)
	return nil
}

// runSet upserts the record for a domain
func runSet(ctx context.Context, out io.Writer, backend *store.Backend, args []string) error {
	if len(args) < 3 || len(args) > 4 {
		return fmt.Errorf("usage: set <domain> <urlA> <urlB> [split]")
	}
	if backend.Writer == nil {
		return fmt.Errorf("store backend %s is read-only: management credentials are missing", backend.Name)
	}

	var split interface{}
	if len(args) == 4 {
		split = args[3]
	}

	key := lookupKey(args[0])
	cfg := domain.DomainConfig{URLA: args[1], URLB: args[2], Split: domain.ParseSplit(split)}

	data, err := backend.Writer.Upsert(ctx, key, cfg)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}

	fmt.Fprintf(out, "Stored %s (urlA=%s urlB=%s split=%g)\n", key, cfg.URLA, cfg.URLB, cfg.Split)
	fmt.Fprintf(out, "%s\n", data)
	return nil
}

// runConfigValidation validates the current configuration
func runConfigValidation(out io.Writer) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	secrets := config.LoadSecrets()

	fmt.Fprintln(out, "Configuration validation passed")
	fmt.Fprintf(out, "Port: %d\n", getPort(cfg.Server.Port))
	fmt.Fprintf(out, "Store backend: %s\n", cfg.Store.Backend)
	fmt.Fprintf(out, "Excluded prefixes: %v\n", cfg.Router.ExcludedPrefixes)
	fmt.Fprintf(out, "Admin token set: %t\n", secrets.AdminToken != "")
	fmt.Fprintf(out, "Writes available: %t\n", cfg.Store.Backend != config.BackendEdgeConfig || secrets.ManagementAvailable())
	fmt.Fprintf(out, "Rate limiting: %t\n", cfg.RateLimit.Enabled)
	fmt.Fprintf(out, "TLS: %t\n", cfg.TLS.Enabled)
	return nil
}

// openBackend builds the configured store for store-facing commands
func openBackend() (*store.Backend, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:  "warn",
		Format: cfg.Logging.Format,
		Output: "stderr",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return store.New(cfg.Store, config.LoadSecrets(), log)
}

// runAdminCommand dispatches one admin command
func runAdminCommand(out io.Writer, command string, args []string) error {
	switch command {
	case "key":
		return runKey(out, args)
	case "validate-config", "validate":
		return runConfigValidation(out)
	case "get", "set":
		backend, err := openBackend()
		if err != nil {
			return err
		}
		defer backend.Close()

		ctx, cancel := context.WithTimeout(context.Background(), adminTimeout)
		defer cancel()

		if command == "get" {
			return runGet(ctx, out, backend, args)
		}
		return runSet(ctx, out, backend, args)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printAdminUsage() {
	fmt.Println("Usage: split-router -admin <command> [args]")
	fmt.Println("Commands:")
	fmt.Println("  key <domain>                      - Print the store key and cookie name")
	fmt.Println("  get <domain>                      - Print the stored configuration")
	fmt.Println("  set <domain> <urlA> <urlB> [split] - Store a configuration")
	fmt.Println("  validate-config                   - Validate configuration")
}

// runAdminProcess handles admin process execution
func runAdminProcess() {
	args := adminArgs(os.Args)
	if len(args) == 0 {
		printAdminUsage()
		os.Exit(1)
	}

	if err := runAdminCommand(os.Stdout, args[0], args[1:]); err != nil {
		fmt.Printf("Command failed: %v\n", err)
		os.Exit(1)
	}
}

// adminArgs returns the arguments following the -admin flag
func adminArgs(args []string) []string {
	for i, arg := range args {
		if arg == "-admin" {
			return args[i+1:]
		}
	}
	return nil
}

// checkIfAdminMode checks if running in admin mode
func checkIfAdminMode() bool {
	for _, arg := range os.Args {
		if arg == "-admin" {
			return true
		}
	}
	return false
}
