// ABOUTME: Entry point for hearthd, the Hearth club backend server
// ABOUTME: Serves the member API, conversation stream, and admin surface

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"github.com/hearthlabs/hearth/internal/auth"
	"github.com/hearthlabs/hearth/internal/broadcast"
	"github.com/hearthlabs/hearth/internal/config"
	"github.com/hearthlabs/hearth/internal/dedupe"
	"github.com/hearthlabs/hearth/internal/ledger"
	"github.com/hearthlabs/hearth/internal/localcache"
	"github.com/hearthlabs/hearth/internal/members"
	"github.com/hearthlabs/hearth/internal/messaging"
	"github.com/hearthlabs/hearth/internal/push"
	"github.com/hearthlabs/hearth/internal/server"
	"github.com/hearthlabs/hearth/internal/store"
	"github.com/hearthlabs/hearth/internal/tour"
	"github.com/hearthlabs/hearth/internal/unread"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _                     _   _         _
| |__   ___  __ _ _ __| |_| |__   __| |
| '_ \ / _ \/ _' | '__| __| '_ \ / _' |
| | | |  __/ (_| | |  | |_| | | | (_| |
|_| |_|\___|\__,_|_|   \__|_| |_|\__,_|
`

// Message dedupe cache sizing. Entries only need to outlive client retry
// storms, not sessions.
const (
	dedupeTTL     = 10 * time.Minute
	dedupeMaxSize = 4096
)

// getConfigPath returns the path to the hearthd config file.
// Priority: HEARTHD_CONFIG env var > XDG_CONFIG_HOME/hearth/hearthd.yaml > ~/.config/hearth/hearthd.yaml
func getConfigPath() string {
	if envPath := os.Getenv("HEARTHD_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "hearthd.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "hearth", "hearthd.yaml")
}

// getDataPath returns the path to the hearth data directory.
// Priority: XDG_DATA_HOME/hearth > ~/.local/share/hearth
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "hearth")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: hearthd <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                      Start the Hearth server")
		fmt.Println("  init                       Create a new config file interactively")
		fmt.Println("  bootstrap --handle H --name NAME")
		fmt.Println("                             Create the founding member and a token")
		fmt.Println("  health                     Check server health")
		fmt.Println("  vapid-keygen               Generate a Web Push VAPID key pair")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "bootstrap":
		err = runBootstrap(ctx)
	case "health":
		err = runHealth(ctx)
	case "vapid-keygen":
		err = runVAPIDKeygen()
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
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	if cfg.Push.Enabled {
		green.Print("    ▶ ")
		fmt.Print("Push:     ")
		cyan.Println("enabled")
	}

	fmt.Println()

	logger.Info("starting hearthd",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	cachePath := cfg.Cache.Path
	if cachePath == "" {
		cachePath = filepath.Join(getDataPath(), "snapshots.db")
	}
	if err := os.MkdirAll(filepath.Dir(cachePath), 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	cache, err := localcache.Open(cachePath, localcache.WithTTL(cfg.Cache.TTL))
	if err != nil {
		return fmt.Errorf("opening snapshot cache: %w", err)
	}
	defer cache.Close()

	broadcaster := broadcast.New(logger)
	deduper := dedupe.New(dedupeTTL, dedupeMaxSize)
	messagingSvc := messaging.New(st, broadcaster, deduper, logger)
	memberSvc := members.New(ctx, st, logger)
	ledgerSvc := ledger.New(st, logger)

	tourSvc, err := buildTour(cfg.Tour, st, logger)
	if err != nil {
		return fmt.Errorf("loading tour steps: %w", err)
	}

	var badge unread.Badge
	if cfg.Push.Enabled {
		badge = push.NewWebPush(st, push.Config{
			VAPIDPublicKey:  cfg.Push.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.Push.VAPIDPrivateKey,
			Subscriber:      cfg.Push.Subscriber,
		}, logger)
	} else {
		badge = push.NewLogSink(logger)
	}

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer, cfg.Auth.Audience)

	srv := server.New(server.Config{
		Addr:           cfg.Server.HTTPAddr,
		AdminToken:     cfg.Auth.AdminToken,
		FetchTimeout:   cfg.Feed.FetchTimeout,
		RecomputeDelay: cfg.Unread.RecomputeDelay,
	}, server.Deps{
		Members:   memberSvc,
		Messaging: messagingSvc,
		Ledger:    ledgerSvc,
		Tour:      tourSvc,
		Store:     st,
		Cache:     cache,
		Verifier:  verifier,
		Badge:     badge,
	}, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildTour loads onboarding steps from the configured TOML file, or falls
// back to a minimal built-in tour when no path is configured.
func buildTour(cfg config.TourConfig, st tour.ProgressStore, logger *slog.Logger) (*tour.Service, error) {
	if cfg.StepsPath != "" {
		steps, err := tour.LoadSteps(cfg.StepsPath)
		if err != nil {
			return nil, err
		}
		return tour.New(steps, st, logger), nil
	}
	return tour.New(defaultTourSteps, st, logger), nil
}

var defaultTourSteps = []tour.Step{
	{
		ID:        "welcome",
		Title:     "Welcome to Hearth",
		Body:      "Your private club for members, conversations, and referrals.",
		Anchor:    "#app",
		Placement: "center",
	},
	{
		ID:        "directory",
		Title:     "Member directory",
		Body:      "Find other members by name, company, or role.",
		Anchor:    "#nav-directory",
		Placement: "bottom",
	},
	{
		ID:        "conversations",
		Title:     "Conversations",
		Body:      "Direct messages with unread badges that follow you across devices.",
		Anchor:    "#nav-conversations",
		Placement: "bottom",
	},
	{
		ID:        "referrals",
		Title:     "Referrals",
		Body:      "Pass business to other members and track what comes back.",
		Anchor:    "#nav-referrals",
		Placement: "bottom",
	},
}

// writeStarterTour renders the built-in steps as an editable TOML file.
func writeStarterTour(path string) error {
	var b strings.Builder
	b.WriteString("# hearthd onboarding tour\n")
	b.WriteString("# Generated by hearthd init; edit freely and restart to apply\n")
	for _, step := range defaultTourSteps {
		b.WriteString("\n[[step]]\n")
		b.WriteString(fmt.Sprintf("id = %q\n", step.ID))
		b.WriteString(fmt.Sprintf("title = %q\n", step.Title))
		b.WriteString(fmt.Sprintf("body = %q\n", step.Body))
		b.WriteString(fmt.Sprintf("anchor = %q\n", step.Anchor))
		b.WriteString(fmt.Sprintf("placement = %q\n", step.Placement))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
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

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/healthz", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runVAPIDKeygen() error {
	privateKey, publicKey, err := push.GenerateVAPIDKeys()
	if err != nil {
		return fmt.Errorf("generating VAPID keys: %w", err)
	}

	fmt.Println("Add to hearthd.yaml:")
	fmt.Println()
	fmt.Println("push:")
	fmt.Println("  enabled: true")
	fmt.Printf("  vapid_public_key: \"%s\"\n", publicKey)
	fmt.Printf("  vapid_private_key: \"%s\"\n", privateKey)
	fmt.Println("  subscriber: \"mailto:ops@example.com\"")
	return nil
}

// runBootstrap performs first-time setup:
// 1. Creates a config file with a random JWT secret (if not exists)
// 2. Creates the database and the founding member
// 3. Generates a JWT token for that member
//
// This is a one-command setup: hearthd bootstrap --handle ada --name "Ada Lovelace"
func runBootstrap(ctx context.Context) error {
	// Supports both "--flag value" and "--flag=value" formats
	var handle, displayName string
	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--handle" || arg == "-u":
			if i+1 >= len(args) {
				return fmt.Errorf("--handle requires a value")
			}
			handle = args[i+1]
			i++
		case strings.HasPrefix(arg, "--handle="):
			handle = strings.TrimPrefix(arg, "--handle=")
		case arg == "--name" || arg == "-n":
			if i+1 >= len(args) {
				return fmt.Errorf("--name requires a value")
			}
			displayName = args[i+1]
			i++
		case strings.HasPrefix(arg, "--name="):
			displayName = strings.TrimPrefix(arg, "--name=")
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	if handle == "" {
		return fmt.Errorf("--handle flag is required")
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return fmt.Errorf("--name flag is required")
	}
	if len(displayName) > 100 {
		return fmt.Errorf("display name exceeds maximum length of 100 characters")
	}

	configPath := getConfigPath()
	dataPath := getDataPath()
	dbPath := filepath.Join(dataPath, "hearth.db")

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	// Check if config exists, create if not
	var cfg *config.Config

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Generate random JWT secret
		secretBytes := make([]byte, 32)
		if _, err := rand.Read(secretBytes); err != nil {
			return fmt.Errorf("generating JWT secret: %w", err)
		}
		jwtSecret := base64.StdEncoding.EncodeToString(secretBytes)

		adminBytes := make([]byte, 24)
		if _, err := rand.Read(adminBytes); err != nil {
			return fmt.Errorf("generating admin token: %w", err)
		}
		adminToken := base64.RawURLEncoding.EncodeToString(adminBytes)

		configDir := filepath.Dir(configPath)
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
		if err := os.MkdirAll(dataPath, 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}

		configContent := fmt.Sprintf(`# hearthd configuration
# Generated by hearthd bootstrap

server:
  http_addr: "localhost:8080"

database:
  path: "%s"

cache:
  path: "%s"

auth:
  jwt_secret: "%s"
  issuer: "hearth"
  audience: "hearth-app"
  admin_token: "%s"

logging:
  level: "info"
  format: "text"
`, dbPath, filepath.Join(dataPath, "snapshots.db"), jwtSecret, adminToken)

		if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}

		green.Printf("  ✓ Created config: %s\n", configPath)

		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	} else {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		cyan.Printf("  Using existing config: %s\n", configPath)
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	green.Printf("  ✓ Database: %s\n", cfg.Database.Path)

	// Refuse to bootstrap twice
	existing, err := st.ListMembers(ctx, 1)
	if err != nil {
		return fmt.Errorf("checking members: %w", err)
	}
	if len(existing) > 0 {
		return fmt.Errorf("bootstrap already complete: members exist")
	}

	memberSvc := members.New(ctx, st, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	member, err := memberSvc.Register(ctx, members.RegisterRequest{
		Handle:      handle,
		DisplayName: displayName,
	})
	if err != nil {
		return fmt.Errorf("creating member: %w", err)
	}

	green.Printf("  ✓ Created founding member: %s (@%s)\n", displayName, handle)

	// Generate JWT token, default TTL 30 days
	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer, cfg.Auth.Audience)
	tokenTTL := 30 * 24 * time.Hour
	expiresAt := time.Now().Add(tokenTTL).UTC()

	token, err := verifier.Generate(member.ID, member.Handle, tokenTTL)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	// Save token to file for CLI tools to read
	tokenPath := filepath.Join(filepath.Dir(configPath), "token")
	if err := os.WriteFile(tokenPath, []byte(token), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	green.Printf("  ✓ Saved token: %s\n", tokenPath)

	fmt.Println()
	green.Println("  Bootstrap complete!")
	fmt.Println()
	cyan.Println("  Founding Member")
	cyan.Println("  ---------------")
	fmt.Printf("  ID:           %s\n", member.ID)
	fmt.Printf("  Handle:       %s\n", member.Handle)
	fmt.Printf("  Display Name: %s\n", member.DisplayName)
	fmt.Printf("  Token:        %s (expires %s)\n", tokenPath, expiresAt.Format("Jan 02, 2006"))
	fmt.Println()

	yellow.Println("  Ready to go:")
	fmt.Println("    hearthd serve          # start the server")
	fmt.Println("    hearth-admin stats     # verify the deployment")
	fmt.Println()

	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("hearthd configuration setup")
	fmt.Println("===========================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "hearth.db")
	defaultCachePath := filepath.Join(defaultDataPath, "snapshots.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")

	// Storage
	fmt.Println("\n--- Storage Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)
	cachePath := prompt(reader, "Snapshot cache path", defaultCachePath)
	cacheTTL := prompt(reader, "Snapshot cache TTL", "24h")

	// Tour
	fmt.Println("\n--- Onboarding Tour ---")
	tourPath := prompt(reader, "Tour steps file", filepath.Join(filepath.Dir(outputFile), "tour.toml"))

	// Auth
	fmt.Println("\n--- Auth Configuration ---")
	jwtSecret := prompt(reader, "JWT secret (leave empty to generate)", "")
	if jwtSecret == "" {
		secretBytes := make([]byte, 32)
		if _, err := rand.Read(secretBytes); err != nil {
			return fmt.Errorf("generating JWT secret: %w", err)
		}
		jwtSecret = base64.StdEncoding.EncodeToString(secretBytes)
		fmt.Println("  (generated)")
	}
	adminToken := prompt(reader, "Admin token (leave empty to disable admin API)", "")

	// Push
	fmt.Println("\n--- Web Push Configuration ---")
	enablePush := prompt(reader, "Enable Web Push badges?", "no")
	pushEnabled := strings.ToLower(enablePush) == "yes" || strings.ToLower(enablePush) == "y"

	var vapidPublic, vapidPrivate, subscriber string
	if pushEnabled {
		var err error
		vapidPrivate, vapidPublic, err = push.GenerateVAPIDKeys()
		if err != nil {
			return fmt.Errorf("generating VAPID keys: %w", err)
		}
		fmt.Println("  (generated VAPID key pair)")
		subscriber = prompt(reader, "Push subscriber contact", "mailto:ops@example.com")
	}

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# hearthd configuration\n")
	cfg.WriteString("# Generated by hearthd init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("cache:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", cachePath))
	cfg.WriteString(fmt.Sprintf("  ttl: \"%s\"\n", cacheTTL))
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  jwt_secret: \"%s\"\n", jwtSecret))
	cfg.WriteString("  issuer: \"hearth\"\n")
	cfg.WriteString("  audience: \"hearth-app\"\n")
	if adminToken != "" {
		cfg.WriteString(fmt.Sprintf("  admin_token: \"%s\"\n", adminToken))
	}
	cfg.WriteString("\n")

	cfg.WriteString("push:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", pushEnabled))
	if pushEnabled {
		cfg.WriteString(fmt.Sprintf("  vapid_public_key: \"%s\"\n", vapidPublic))
		cfg.WriteString(fmt.Sprintf("  vapid_private_key: \"%s\"\n", vapidPrivate))
		cfg.WriteString(fmt.Sprintf("  subscriber: \"%s\"\n", subscriber))
	}
	cfg.WriteString("\n")

	cfg.WriteString("feed:\n")
	cfg.WriteString("  fetch_timeout: \"5s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("unread:\n")
	cfg.WriteString("  recompute_delay: \"2s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("tour:\n")
	cfg.WriteString(fmt.Sprintf("  steps_path: \"%s\"\n", tourPath))
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	// Write a starter tour file unless one is already in place
	if _, err := os.Stat(tourPath); os.IsNotExist(err) {
		if err := writeStarterTour(tourPath); err != nil {
			return fmt.Errorf("writing tour steps: %w", err)
		}
		fmt.Printf("Tour steps written to %s\n", tourPath)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  hearthd serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
