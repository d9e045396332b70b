// ABOUTME: CLI entrypoint for the stub incident-response backend.
// ABOUTME: Serves the REST and WebSocket surface and can auto-submit a demo alert.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rsoaresd/tarsy-bot-sub002/mock"
)

var version = "dev"

type config struct {
	addr        string
	step        time.Duration
	duplicates  bool
	submit      bool
	showVersion bool
}

func main() {
	cfg := parseFlags()

	if cfg.showVersion {
		fmt.Printf("tarsymock %s\n", version)
		os.Exit(0)
	}

	os.Exit(run(cfg))
}

func parseFlags() config {
	var cfg config

	fs := flag.NewFlagSet("tarsymock", flag.ContinueOnError)
	fs.StringVar(&cfg.addr, "addr", "127.0.0.1:8000", "Listen address")
	fs.DurationVar(&cfg.step, "step", 400*time.Millisecond, "Delay between scenario steps")
	fs.BoolVar(&cfg.duplicates, "duplicates", false, "Deliver every event twice")
	fs.BoolVar(&cfg.submit, "submit", false, "Submit a demo alert at startup")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tarsymock [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	return cfg
}

func run(cfg config) int {
	logger := log.New(os.Stderr, "", log.LstdFlags)

	opts := []mock.Option{
		mock.WithStepDelay(cfg.step),
		mock.WithLogger(logger),
	}
	if cfg.duplicates {
		opts = append(opts, mock.WithDuplicateDelivery())
	}
	stub := mock.NewServer(opts...)

	srv := &http.Server{
		Addr:              cfg.addr,
		Handler:           stub,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("stub backend listening addr=%s step=%s duplicates=%v", cfg.addr, cfg.step, cfg.duplicates)
		errCh <- srv.ListenAndServe()
	}()

	if cfg.submit {
		go submitDemoAlert(logger, cfg.addr)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return 0
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Printf("server error: %v", err)
			return 1
		}
		return 0
	}
}

// submitDemoAlert posts one kubernetes alert against our own REST surface so
// a watcher has something to follow immediately.
func submitDemoAlert(logger *log.Logger, addr string) {
	time.Sleep(200 * time.Millisecond)
	resp, err := http.Post(
		fmt.Sprintf("http://%s/api/v1/alerts", addr),
		"application/json",
		bytes.NewReader([]byte(`{"alert_type":"kubernetes","runbook":"namespace-terminating"}`)),
	)
	if err != nil {
		logger.Printf("demo alert submission failed: %v", err)
		return
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	logger.Printf("demo alert submitted: %s", body)
}
