// Package main provides the kcgroups command line tool for managing
// Keycloak realm groups through the Admin REST API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lllypuk/kcadmin/config"
	"github.com/lllypuk/kcadmin/keycloak"
	"github.com/lllypuk/kcadmin/tokencache"
)

const runTimeout = 60 * time.Second

func main() {
	configPath := flag.String("config", "", "path to the configuration file")
	realm := flag.String("realm", "", "target realm (overrides config)")
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.LoadFromPath(*configPath)
	if err != nil {
		//nolint:sloglint // No context available before logger setup
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := setupLogger(cfg)
	logger = logger.With(slog.String("run_id", uuid.NewString()))

	targetRealm := cfg.Keycloak.Realm
	if *realm != "" {
		targetRealm = *realm
	}

	client, err := buildClient(cfg, logger)
	if err != nil {
		logger.Error("failed to build client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	if runErr := run(ctx, client, targetRealm, flag.Args()); runErr != nil {
		logger.Error("command failed", slog.String("error", runErr.Error()))
		cancel()
		os.Exit(1) //nolint:gocritic // Intentional exit after cleanup
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: kcgroups [flags] <command> [args]

Commands:
  list [search]                    list groups, optionally filtered by search term
  get <group-id>                   fetch a single group
  create <name>                    create a group and print the stored object
  delete <group-id>                delete a group
  members <group-id>               list members of a group
  add-member <user-id> <group-id>  add a user to a group
  remove-member <user-id> <group-id>  remove a user from a group

Flags:
`)
	flag.PrintDefaults()
}

// buildClient wires the token source and cache from configuration.
func buildClient(cfg *config.Config, logger *slog.Logger) (*keycloak.Client, error) {
	httpClient := &http.Client{Timeout: cfg.Keycloak.Timeout}

	var tokens keycloak.TokenSource
	if cfg.Keycloak.HasStaticToken() {
		tokens = keycloak.StaticTokenSource(cfg.Keycloak.Token)
	} else {
		tokens = keycloak.NewAdminTokenManager(keycloak.AdminTokenConfig{
			BaseURL:      cfg.Keycloak.URL,
			Realm:        cfg.Keycloak.AuthRealm,
			ClientID:     cfg.Keycloak.ClientID,
			ClientSecret: cfg.Keycloak.ClientSecret,
			Username:     cfg.Keycloak.AdminUsername,
			Password:     cfg.Keycloak.AdminPassword,
			ExpiryBuffer: cfg.Keycloak.ExpiryBuffer,
			Cache:        buildTokenCache(cfg),
			HTTPClient:   httpClient,
			Logger:       logger,
		})
	}

	return keycloak.NewClient(keycloak.ClientConfig{
		BaseURL:    cfg.Keycloak.URL,
		Tokens:     tokens,
		HTTPClient: httpClient,
		Logger:     logger,
	})
}

func buildTokenCache(cfg *config.Config) keycloak.TokenCache {
	switch cfg.TokenCache.Type {
	case "memory":
		return tokencache.NewMemory()
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.TokenCache.RedisAddr,
			Password: cfg.TokenCache.RedisPassword,
			DB:       cfg.TokenCache.RedisDB,
		})
		return tokencache.NewRedis(client, cfg.TokenCache.RedisKey)
	default:
		return nil
	}
}

//nolint:cyclop // Plain command dispatch
func run(ctx context.Context, client *keycloak.Client, realm string, args []string) error {
	if len(args) == 0 {
		usage()
		return errors.New("no command given")
	}

	switch cmd := args[0]; cmd {
	case "list":
		opts := &keycloak.ListGroupsOptions{}
		if len(args) > 1 {
			opts.Search = args[1]
		}
		groups, err := client.Groups.List(ctx, realm, opts)
		if err != nil {
			return err
		}
		return printJSON(groups)

	case "get":
		if len(args) < 2 {
			return errors.New("get: group id required")
		}
		group, err := client.Groups.Get(ctx, realm, args[1])
		if err != nil {
			return err
		}
		return printJSON(group)

	case "create":
		if len(args) < 2 {
			return errors.New("create: group name required")
		}
		group, err := client.Groups.Create(ctx, realm, keycloak.Group{Name: args[1]})
		if err != nil {
			return err
		}
		return printJSON(group)

	case "delete":
		if len(args) < 2 {
			return errors.New("delete: group id required")
		}
		return client.Groups.Delete(ctx, realm, args[1])

	case "members":
		if len(args) < 2 {
			return errors.New("members: group id required")
		}
		members, err := client.Members.List(ctx, realm, args[1], nil)
		if err != nil {
			return err
		}
		return printJSON(members)

	case "add-member":
		if len(args) < 3 {
			return errors.New("add-member: user id and group id required")
		}
		return client.Members.Add(ctx, realm, args[1], args[2])

	case "remove-member":
		if len(args) < 3 {
			return errors.New("remove-member: user id and group id required")
		}
		return client.Members.Remove(ctx, realm, args[1], args[2])

	default:
		usage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// setupLogger creates and configures the structured logger based on
// configuration.
func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}

	switch cfg.Log.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default: // "text" or any other value defaults to text
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
