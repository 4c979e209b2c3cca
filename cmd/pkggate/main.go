// ABOUTME: Entry point for the pkggate authorization gateway
// ABOUTME: Serves the HTTP API and bootstraps the first admin user

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/northloop/pkggate/internal/audit"
	"github.com/northloop/pkggate/internal/config"
	"github.com/northloop/pkggate/internal/gateway"
	"github.com/northloop/pkggate/internal/policy"
	"github.com/northloop/pkggate/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
        _                   _
  _ __ | | ____ _  __ _  __ _| |_ ___
 | '_ \| |/ / _' |/ _' |/ _' | __/ _ \
 | |_) |   < (_| | (_| | (_| | ||  __/
 | .__/|_|\_\__, |\__, |\__,_|\__\___|
 |_|        |___/ |___/
`

// getConfigPath returns the path to the pkggate config file.
// Priority: PKGGATE_CONFIG env var > XDG_CONFIG_HOME/pkggate/pkggate.yaml > ~/.config/pkggate/pkggate.yaml
func getConfigPath() string {
	if envPath := os.Getenv("PKGGATE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "pkggate.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "pkggate", "pkggate.yaml")
}

// loadConfig loads the config file if it exists. A missing default file is
// fine: the environment and defaults layers still apply.
func loadConfig(ctx context.Context) (*config.Config, string, error) {
	path := getConfigPath()
	if _, err := os.Stat(path); err != nil {
		if os.Getenv("PKGGATE_CONFIG") != "" {
			return nil, "", fmt.Errorf("config file %s: %w", path, err)
		}
		path = ""
	}

	cfg, err := config.Load(ctx, path)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: pkggate <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                      Start the gateway server")
		fmt.Println("  bootstrap --name NAME      Create the first admin user and credential")
		fmt.Println("  users                      List users in the local store")
		fmt.Println("  health                     Check gateway health")
		fmt.Println("  version                    Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "bootstrap":
		err = runBootstrap(ctx)
	case "users":
		err = runUsers(ctx)
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	cfg, configPath, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	logger := setupLogger(cfg)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	if configPath == "" {
		fmt.Printf("Config:    (env + defaults)\n")
	} else {
		fmt.Printf("Config:    %s\n", configPath)
	}
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Users:     %s\n", cfg.Auth.UsersFile)
	green.Print("    ▶ ")
	fmt.Printf("Audit:     %s\n", cfg.Audit.Database)

	green.Print("    ▶ ")
	fmt.Printf("Auth:      ")
	switch {
	case !cfg.Auth.Enabled:
		yellow.Print("disabled")
	case cfg.Auth.UserAuth:
		cyan.Print("user accounts")
	case cfg.Auth.SingleAPIKeyMode:
		cyan.Print("single API key")
		gray.Print(" (legacy)")
	}
	fmt.Println()
	fmt.Println()

	logger.Info("starting pkggate",
		"http_addr", cfg.Server.HTTPAddr,
		"auth_enabled", cfg.Auth.Enabled,
		"user_auth", cfg.Auth.UserAuth,
	)

	users, err := store.NewFileStore(cfg.Auth.UsersFile)
	if err != nil {
		return fmt.Errorf("opening user store: %w", err)
	}

	if cfg.Auth.UserAuth {
		hasAdmin, err := users.HasAdmin(ctx)
		if err != nil {
			return fmt.Errorf("checking user store: %w", err)
		}
		if !hasAdmin {
			logger.Warn("no admin user exists, run 'pkggate bootstrap --name NAME' to create one")
		}
	}

	engine, err := policy.New(cfg.Policy.AllowedPackages, cfg.Policy.BlockedPackages)
	if err != nil {
		return fmt.Errorf("compiling package policy: %w", err)
	}

	auditLog, err := audit.NewSQLiteLog(cfg.Audit.Database)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer auditLog.Close()

	gw := gateway.New(cfg, users, engine, auditLog, logger)
	return gw.Run(ctx)
}

func runBootstrap(ctx context.Context) error {
	fs := flag.NewFlagSet("bootstrap", flag.ExitOnError)
	name := fs.String("name", "", "username for the first admin")
	fs.Parse(os.Args[2:])

	if *name == "" {
		return fmt.Errorf("--name is required")
	}

	cfg, _, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	users, err := store.NewFileStore(cfg.Auth.UsersFile)
	if err != nil {
		return fmt.Errorf("opening user store: %w", err)
	}

	user, credential, err := users.BootstrapFirstAdmin(ctx, *name, "")
	if err != nil {
		return fmt.Errorf("bootstrapping admin: %w", err)
	}

	green := color.New(color.FgGreen)
	bold := color.New(color.Bold)

	green.Print("✓ ")
	fmt.Printf("Created admin user %s\n\n", user.Username)
	fmt.Println("Credential (shown once, store it safely):")
	bold.Printf("  %s\n", credential)
	return nil
}

func runUsers(ctx context.Context) error {
	cfg, _, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	users, err := store.NewFileStore(cfg.Auth.UsersFile)
	if err != nil {
		return fmt.Errorf("opening user store: %w", err)
	}

	list, err := users.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}
	if len(list) == 0 {
		fmt.Println("No users. Run 'pkggate bootstrap --name NAME' to create the first admin.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tROLE\tCREATED")
	for _, u := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\n", u.Username, u.Role, u.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway unhealthy: status %d", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decoding health response: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("Gateway healthy at %s (status: %s)\n", cfg.Server.HTTPAddr, body["status"])
	return nil
}

func setupLogger(cfg *config.Config) *slog.Logger {
	level := cfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{level: level, out: os.Stdout}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu    sync.Mutex
	level slog.Level
	out   io.Writer
	attrs []slog.Attr
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Fprint(h.out, buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{level: h.level, out: h.out, attrs: newAttrs}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	return h
}
