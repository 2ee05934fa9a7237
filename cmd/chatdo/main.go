package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	"github.com/basket/chatdo/internal/bus"
	"github.com/basket/chatdo/internal/channels"
	"github.com/basket/chatdo/internal/config"
	"github.com/basket/chatdo/internal/gateway"
	"github.com/basket/chatdo/internal/intent"
	otelPkg "github.com/basket/chatdo/internal/otel"
	"github.com/basket/chatdo/internal/persistence"
	"github.com/basket/chatdo/internal/retention"
	"github.com/basket/chatdo/internal/telemetry"
	"github.com/basket/chatdo/internal/tools"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.1-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

  %s                          Start the task assistant daemon

FLAGS:
`, os.Args[0], os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
ENVIRONMENT VARIABLES:
  CHATDO_HOME             Data directory (default: ~/.chatdo)
  CHATDO_BIND_ADDR        Gateway bind address
  CHATDO_AUTH_TOKEN       API bearer token (overrides config.yaml)
  TELEGRAM_TOKEN          Telegram bot token (overrides config.yaml)
`)
}

func main() {
	loadDotEnv(".env")

	jsonLogs := flag.Bool("json-logs", false, "force JSON logs on stdout even on a terminal")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		fmt.Println("chatdo", Version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fatalStartup(nil, "E_CONFIG_LOAD", err)
	}

	// On a terminal, humans get text logs; otherwise JSON lines go to
	// stdout and ~/.chatdo/logs/system.jsonl.
	var logger *slog.Logger
	if isatty.IsTerminal(os.Stdout.Fd()) && !*jsonLogs {
		logger = telemetry.NewConsoleLogger(cfg.LogLevel)
	} else {
		fileLogger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, false)
		if err != nil {
			fatalStartup(nil, "E_LOGGER_INIT", err)
		}
		defer closer.Close()
		logger = fileLogger
	}
	slog.SetDefault(logger)
	logger.Info("startup phase", "phase", "config_loaded", "version", Version, "home", cfg.HomeDir)

	if err := resolveAuthToken(&cfg, logger); err != nil {
		fatalStartup(logger, "E_AUTH_TOKEN", err)
	}

	eventBus := bus.New()

	// OpenTelemetry is a no-op when disabled.
	otelProvider, err := otelPkg.Init(ctx, cfg.OTel)
	if err != nil {
		fatalStartup(logger, "E_OTEL_INIT", err)
	}
	defer otelProvider.Shutdown(context.Background())

	metrics, err := otelPkg.NewMetrics(otelProvider.Meter)
	if err != nil {
		fatalStartup(logger, "E_OTEL_METRICS", err)
	}

	store, err := persistence.Open(cfg.DatabasePath(), eventBus)
	if err != nil {
		fatalStartup(logger, "E_STORE_OPEN", err)
	}
	defer store.Close()
	logger.Info("startup phase", "phase", "schema_migrated", "db", cfg.DatabasePath())

	registry := tools.NewRegistry(store, logger)
	router := intent.NewRouter(store, registry, eventBus, logger, cfg.ListReplyLimit)

	// Task lifecycle events feed the counters regardless of which
	// channel created the task.
	go countTaskEvents(ctx, eventBus, metrics)

	gw := gateway.New(cfg, store, registry, router, logger)
	gw.SetMetrics(metrics)

	confWatcher := config.NewWatcher(cfg.HomeDir, logger)
	if err := confWatcher.Start(ctx); err != nil {
		fatalStartup(logger, "E_CONFIG_WATCHER_START", err)
	}
	go func() {
		fingerprint := cfg.Fingerprint()
		for ev := range confWatcher.Events() {
			newCfg, err := config.Load()
			if err != nil {
				logger.Error("config.yaml reload failed", "error", err, "path", ev.Path)
				continue
			}
			if newCfg.Fingerprint() == fingerprint {
				continue
			}
			fingerprint = newCfg.Fingerprint()
			// Bind address, channels, and telemetry are fixed at startup.
			logger.Warn("config.yaml changed; restart to apply", "fingerprint", fingerprint)
		}
	}()

	sweeper, err := retention.NewSweeper(retention.Config{
		Store:     store,
		Logger:    logger,
		Retention: cfg.Retention,
	})
	if err != nil {
		fatalStartup(logger, "E_RETENTION_INIT", err)
	}
	sweeper.Start(ctx)
	defer sweeper.Stop()

	if cfg.Channels.Telegram.Enabled {
		switch {
		case cfg.Channels.Telegram.Token == "":
			logger.Warn("telegram channel enabled but token is missing")
		case len(cfg.Channels.Telegram.AllowedIDs) == 0:
			logger.Warn("telegram channel enabled but allowed_ids is empty; refusing to start it")
		default:
			tg := channels.NewTelegramChannel(
				cfg.Channels.Telegram.Token,
				cfg.Channels.Telegram.AllowedIDs,
				router,
				logger,
			)
			go func() {
				if err := tg.Start(ctx); err != nil {
					logger.Error("telegram channel failed", "error", err)
				}
			}()
		}
	}

	logger.Info("startup phase", "phase", "gateway_starting", "addr", cfg.BindAddr)
	if err := gw.Start(ctx); err != nil {
		if isAddrInUse(err) {
			fatalStartup(logger, "E_BIND_ADDR_IN_USE",
				fmt.Errorf("%s is already in use; stop the other process or change bind_addr in config.yaml", cfg.BindAddr))
		}
		fatalStartup(logger, "E_GATEWAY", err)
	}
	logger.Info("shutdown complete")
}

// countTaskEvents feeds task lifecycle bus events into the metric counters.
func countTaskEvents(ctx context.Context, eventBus *bus.Bus, metrics *otelPkg.Metrics) {
	sub := eventBus.Subscribe("task.")
	defer eventBus.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub.Ch():
			switch ev.Topic {
			case bus.TopicTaskCreated:
				metrics.TasksCreated.Add(ctx, 1)
			case bus.TopicTaskCompleted:
				metrics.TasksCompleted.Add(ctx, 1)
			}
		}
	}
}

// resolveAuthToken decides the effective API token. Loopback binds may
// run open; anything else gets a persisted token generated on first run.
func resolveAuthToken(cfg *config.Config, logger *slog.Logger) error {
	if cfg.AuthToken != "" {
		return nil
	}

	host, _, err := net.SplitHostPort(cfg.BindAddr)
	if err == nil {
		h := strings.ToLower(strings.TrimSpace(host))
		if h == "127.0.0.1" || h == "localhost" || h == "::1" {
			return nil
		}
	}

	tokenPath := filepath.Join(cfg.HomeDir, "auth.token")
	if b, err := os.ReadFile(tokenPath); err == nil {
		if tok := strings.TrimSpace(string(b)); tok != "" {
			cfg.AuthToken = tok
			return nil
		}
	}

	token := uuid.NewString()
	if err := os.WriteFile(tokenPath, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("persist auth token: %w", err)
	}
	cfg.AuthToken = token
	logger.Info("auth.token generated for non-loopback bind", "path", tokenPath)
	return nil
}

func fatalStartup(logger *slog.Logger, reasonCode string, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	if logger != nil {
		logger.Error("startup failure", "reason_code", reasonCode, "error", message)
	} else {
		fmt.Fprintf(
			os.Stderr,
			`{"timestamp":"%s","level":"ERROR","component":"chatdo","trace_id":"-","msg":"startup failure","reason_code":%q,"error":%q}`+"\n",
			time.Now().UTC().Format(time.RFC3339Nano),
			reasonCode,
			message,
		)
	}
	os.Exit(1)
}

func isAddrInUse(err error) bool {
	if opErr, ok := err.(*net.OpError); ok {
		if sysErr, ok := opErr.Err.(*os.SyscallError); ok {
			return sysErr.Err == syscall.EADDRINUSE
		}
	}
	return strings.Contains(err.Error(), "address already in use")
}

func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.Index(line, "=")
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if key == "" || os.Getenv(key) != "" {
			continue
		}
		_ = os.Setenv(key, val)
	}
}
