// ABOUTME: CLI entrypoint for the terminal session watcher.
// ABOUTME: Wires config, the REST client, the connection manager, the merger, and the Bubble Tea UI.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rsoaresd/tarsy-bot-sub002/api"
	"github.com/rsoaresd/tarsy-bot-sub002/config"
	"github.com/rsoaresd/tarsy-bot-sub002/live"
	"github.com/rsoaresd/tarsy-bot-sub002/timeline"
	"github.com/rsoaresd/tarsy-bot-sub002/tui"
)

var version = "dev"

type cliConfig struct {
	backend     string
	alertID     string
	sessionID   string
	submit      string
	legacy      bool
	verbose     bool
	showVersion bool
}

func main() {
	cfg := parseFlags()

	if cfg.showVersion {
		fmt.Printf("tarsyview %s\n", version)
		os.Exit(0)
	}

	os.Exit(run(cfg))
}

func parseFlags() cliConfig {
	var cfg cliConfig

	fs := flag.NewFlagSet("tarsyview", flag.ContinueOnError)
	fs.StringVar(&cfg.backend, "backend", "", "Backend base URL (default: TARSY_BACKEND_URL)")
	fs.StringVar(&cfg.alertID, "alert", "", "Watch the session backing this alert id")
	fs.StringVar(&cfg.sessionID, "session", "", "Watch this session id directly")
	fs.StringVar(&cfg.submit, "submit", "", "Submit an alert of this type, then watch it")
	fs.BoolVar(&cfg.legacy, "legacy-ws", false, "Use the legacy per-alert WebSocket endpoint")
	fs.BoolVar(&cfg.verbose, "verbose", false, "Log connection diagnostics to stderr")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tarsyview [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	return cfg
}

func run(cfg cliConfig) int {
	if _, err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "loading .env: %v\n", err)
		return 1
	}
	env, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading configuration: %v\n", err)
		return 1
	}
	if cfg.backend != "" {
		env.BackendURL = cfg.backend
	}
	if cfg.legacy {
		env.LegacyWS = true
	}

	logger := log.New(io.Discard, "", 0)
	if cfg.verbose {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}

	var clientOpts []api.ClientOption
	if d := env.Tuning.RequestTimeout.Std(); d > 0 {
		clientOpts = append(clientOpts, api.WithTimeout(d))
	}
	if cfg.verbose {
		clientOpts = append(clientOpts, api.WithHTTPLogger(logger))
	}
	client := api.NewClient(env.BackendURL, clientOpts...)

	ctx := context.Background()
	target := cfg.sessionID
	if target == "" {
		target = cfg.alertID
	}
	if cfg.submit != "" {
		resp, err := client.SubmitAlert(ctx, api.AlertSubmission{AlertType: cfg.submit})
		if err != nil {
			fmt.Fprintf(os.Stderr, "submitting alert: %s\n", api.Translate(err))
			return 1
		}
		fmt.Fprintf(os.Stderr, "submitted alert %s\n", resp.AlertID)
		target = resp.AlertID
	}
	if target == "" {
		fmt.Fprintln(os.Stderr, "one of -session, -alert, or -submit is required")
		return 2
	}

	mgr := live.NewManager(managerOptions(env, client, cfg.sessionID == "", logger))
	defer mgr.Close()

	if err := mgr.Connect(ctx, target); err != nil {
		fmt.Fprintf(os.Stderr, "connecting: %v\n", err)
		return 1
	}

	merger := timeline.NewMerger(mgr.SessionID())
	defer merger.Close()

	var watchOpts []tui.WatchOption
	if rate := env.Tuning.TypewriterRate; rate > 0 {
		watchOpts = append(watchOpts, tui.WithRevealRate(rate))
	}
	model := tui.NewWatchModel(ctx, client, mgr, merger, watchOpts...)

	p := tea.NewProgram(model)
	tui.NewEventBridge(p.Send).Attach(mgr, merger)

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "ui error: %v\n", err)
		return 1
	}
	return 0
}

// managerOptions builds connection manager options from the environment
// tuning, keeping built-in defaults for anything unset.
func managerOptions(env *config.Config, client *api.Client, resolve bool, logger *log.Logger) live.Options {
	opts := live.Options{
		BaseURL:        env.BackendURL,
		UserID:         env.UserID,
		LegacyDirect:   env.LegacyWS,
		ConnectTimeout: env.Tuning.ConnectTimeout.Std(),
		PingInterval:   env.Tuning.PingInterval.Std(),
		Logger:         logger,
	}
	if resolve {
		opts.Resolver = client
	}
	if env.Tuning.ReconnectAttempts > 0 {
		opts.Reconnect = live.BackoffPolicy{
			MaxAttempts: env.Tuning.ReconnectAttempts,
			BaseDelay:   orDefault(env.Tuning.ReconnectBase.Std(), time.Second),
			MaxDelay:    orDefault(env.Tuning.ReconnectMax.Std(), 30*time.Second),
			Multiplier:  2.0,
			Jitter:      true,
		}
	}
	if env.Tuning.ResolveAttempts > 0 {
		opts.Resolve = live.BackoffPolicy{
			MaxAttempts: env.Tuning.ResolveAttempts,
			BaseDelay:   orDefault(env.Tuning.ResolveBase.Std(), 500*time.Millisecond),
			MaxDelay:    10 * time.Second,
			Multiplier:  2.0,
			Jitter:      true,
		}
	}
	return opts
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
