// ABOUTME: Entry point for the bellhop conversation server
// ABOUTME: Routes inbound messages through vertical flows and emits booking/lead/ticket artifacts

package main

import (
	"context"
	"errors"
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
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bellhop-chat/bellhop/internal/channels"
	"github.com/bellhop-chat/bellhop/internal/config"
	"github.com/bellhop-chat/bellhop/internal/dedupe"
	"github.com/bellhop-chat/bellhop/internal/dispatch"
	"github.com/bellhop-chat/bellhop/internal/engine"
	"github.com/bellhop-chat/bellhop/internal/flow"
	"github.com/bellhop-chat/bellhop/internal/gateway"
	"github.com/bellhop-chat/bellhop/internal/metrics"
	"github.com/bellhop-chat/bellhop/internal/router"
	"github.com/bellhop-chat/bellhop/internal/sink"
	"github.com/bellhop-chat/bellhop/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _          _ _ _
| |__   ___| | | |__   ___  _ __
| '_ \ / _ \ | | '_ \ / _ \| '_ \
| |_) |  __/ | | | | | (_) | |_) |
|_.__/ \___|_|_|_| |_|\___/| .__/
                           |_|
`

// getConfigPath returns the path to the bellhop config file.
// Priority: BELLHOP_CONFIG env var > XDG_CONFIG_HOME/bellhop/bellhop.yaml > ~/.config/bellhop/bellhop.yaml
func getConfigPath() string {
	if envPath := os.Getenv("BELLHOP_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "bellhop.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "bellhop", "bellhop.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: bellhop <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the conversation server")
		fmt.Println("  init     Create a starter config file")
		fmt.Println("  chat     Interactive console session")
		fmt.Println("  health   Check server health")
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
	case "chat":
		err = runChat(ctx)
	case "health":
		err = runHealth(ctx)
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
	ctx, cancelAll := context.WithCancel(ctx)
	defer cancelAll()

	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Store:    %s\n", cfg.Database.Driver)
	fmt.Println()

	logger.Info("starting bellhop",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"store", cfg.Database.Driver,
	)

	st, err := openStore(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	registry, err := flow.Defaults(cfg.Engine.MaxPartySize)
	if err != nil {
		return fmt.Errorf("building flow registry: %w", err)
	}

	// Dedupe windows follow the idle timeout: anything older has no live
	// conversation to harm.
	inboundSeen := dedupe.New(cfg.Engine.IdleTimeout, 65536)
	defer inboundSeen.Close()
	artifactSeen := dedupe.New(cfg.Engine.IdleTimeout, 16384)
	defer artifactSeen.Close()
	sentSeen := dedupe.New(cfg.Engine.IdleTimeout, 65536)
	defer sentSeen.Close()

	var reg *prometheus.Registry
	m := metrics.Nop()
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		m = metrics.New(reg)
	}

	var artifacts sink.Sink = sink.NewLogSink(logger)
	if cfg.Sinks.WebhookURL != "" {
		artifacts = sink.Fanout{
			sink.NewLogSink(logger),
			sink.NewWebhookSink(cfg.Sinks.WebhookURL, logger),
		}
	}
	artifacts = sink.NewDeduped(artifacts, artifactSeen)

	rt := router.New(registry, st, nil, logger)
	eng := engine.New(registry, st, rt, artifacts, inboundSeen, m, engine.Config{
		MaxInvalidInputs: cfg.Engine.MaxInvalidInputs,
	}, logger)

	dispatcher := dispatch.New(sentSeen, m, logger)

	var wg sync.WaitGroup
	errs := make(chan error, 4)

	runChannel := func(ch channels.Channel) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ch.Run(ctx); err != nil {
				errs <- fmt.Errorf("%s channel: %w", ch.Name(), err)
			}
		}()
	}

	if cfg.Channels.Matrix.Enabled {
		mx, err := channels.NewMatrix(cfg.Channels.Matrix.MatrixConfig, eng, dispatcher, logger)
		if err != nil {
			return fmt.Errorf("creating matrix channel: %w", err)
		}
		dispatcher.Register(mx)
		runChannel(mx)
	}
	if cfg.Channels.Discord.Enabled {
		dc, err := channels.NewDiscord(cfg.Channels.Discord.DiscordConfig, eng, dispatcher, logger)
		if err != nil {
			return fmt.Errorf("creating discord channel: %w", err)
		}
		dispatcher.Register(dc)
		runChannel(dc)
	}
	if cfg.Channels.Slack.Enabled {
		sl := channels.NewSlack(cfg.Channels.Slack.SlackConfig, logger)
		dispatcher.Register(sl)
		runChannel(sl)
	}

	sweeper := engine.NewSweeper(st, cfg.Engine.IdleTimeout, cfg.Engine.SweepInterval, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	var gatherer prometheus.Gatherer
	if reg != nil {
		gatherer = reg
	}
	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gateway.NewServer(eng, gatherer, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("http server: %w", err)
		}
	}()

	logger.Info("bellhop running", "http_addr", cfg.Server.HTTPAddr)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errs:
		logger.Error("component failed, shutting down", "error", runErr)
		cancelAll()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}

	wg.Wait()
	return runErr
}

// openStore builds the conversation store named by the config.
func openStore(cfg config.DatabaseConfig) (store.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return store.NewSQLiteStore(cfg.Path)
	case "redis":
		return store.NewRedisStore(cfg.Addr), nil
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func runChat(ctx context.Context) error {
	cfg := config.Default()
	if _, err := os.Stat(getConfigPath()); err == nil {
		loaded, err := config.Load(getConfigPath())
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	registry, err := flow.Defaults(cfg.Engine.MaxPartySize)
	if err != nil {
		return fmt.Errorf("building flow registry: %w", err)
	}

	// Chat sessions are throwaway; keep everything in memory.
	st := store.NewMemoryStore()
	defer st.Close()

	seen := dedupe.New(time.Hour, 4096)
	defer seen.Close()

	rt := router.New(registry, st, nil, logger)
	eng := engine.New(registry, st, rt, sink.NewLogSink(logger), seen, metrics.Nop(), engine.Config{
		MaxInvalidInputs: cfg.Engine.MaxInvalidInputs,
	}, logger)

	console := channels.NewConsole(eng, os.Stdin, os.Stdout, "", logger)
	return console.Run(ctx)
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr := cfg.Server.HTTPAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	url := fmt.Sprintf("http://%s/healthz", addr)
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

const starterConfig = `server:
  http_addr: ":8080"

database:
  driver: "sqlite"
  path: "bellhop.db"

engine:
  idle_timeout: "24h"
  sweep_interval: "10m"
  max_invalid_inputs: 3
  max_party_size: 10

channels:
  matrix:
    enabled: false
    homeserver: "https://matrix.example.org"
    user_id: "@bellhop:example.org"
    access_token: "${MATRIX_ACCESS_TOKEN}"
  discord:
    enabled: false
    token: "${DISCORD_BOT_TOKEN}"
  slack:
    enabled: false
    bot_token: "${SLACK_BOT_TOKEN}"

sinks:
  webhook_url: ""

logging:
  level: "info"
  format: "text"

metrics:
  enabled: true
`

func runInit() error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists at %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(starterConfig), 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("Created %s\n", configPath)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Edit the config to enable your channels")
	fmt.Println("  2. Run: bellhop serve")
	fmt.Println("  3. Try it locally first: bellhop chat")
	return nil
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

	// Handler-level attrs first (from WithAttrs)
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
