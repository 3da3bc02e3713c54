package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/avoronkov/invest-sentinel/internal/broker"
	"github.com/avoronkov/invest-sentinel/internal/commands"
	"github.com/avoronkov/invest-sentinel/internal/config"
	"github.com/avoronkov/invest-sentinel/internal/dashboard"
	"github.com/avoronkov/invest-sentinel/internal/intake"
	"github.com/avoronkov/invest-sentinel/internal/modectl"
	"github.com/avoronkov/invest-sentinel/internal/notify"
	"github.com/avoronkov/invest-sentinel/internal/snapshot"
	"github.com/avoronkov/invest-sentinel/internal/storage"
	"github.com/avoronkov/invest-sentinel/internal/validator"
	"github.com/avoronkov/invest-sentinel/internal/watcher"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// .env is optional; the config file expands whatever it finds.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("loading .env: %v", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := log.New(os.Stdout, "[SENTINEL] ", log.LstdFlags|log.Lshortfile)

	if cfg.Safety.DryRun {
		logger.Println("DRY RUN MODE - no orders will reach the exchange")
	} else {
		// The live exchange client is provisioned separately; refusing to
		// start beats trading through a half-configured transport.
		logger.Fatalf("live trading client is not configured; set safety.dry_run: true")
	}

	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		logger.Fatalf("Failed to open storage: %v", err)
	}

	var port broker.Port = broker.NewDryRunPort(logger)
	if cfg.Broker.RateLimitRPS > 0 {
		port = broker.NewRateLimitedPort(port, cfg.Broker.RateLimitRPS, cfg.Broker.RateLimitBurst)
	}
	port = broker.NewCircuitBreakerPort(port)

	ctl := modectl.New(store, logger)
	notifier := notify.NewLogNotifier(logger)
	checks := validator.New(cfg, logger)
	cache := snapshot.NewCache()
	watch := watcher.New(cfg, port, store, ctl, notifier, checks, logger)
	in := intake.New(cfg, port, cache, checks, watch, ctl, store, logger)
	router := commands.New(cfg, ctl, store, watch, in, cache, logger)

	if snaps, err := snapshot.LoadFile(cfg.Storage.SnapshotPath); err != nil {
		logger.Printf("no snapshot loaded: %v", err)
	} else {
		cache.Update(snaps)
		logger.Printf("loaded %d snapshot tickers", len(snaps))
	}

	settings, err := ctl.Settings()
	if err != nil {
		logger.Fatalf("Failed to read settings: %v", err)
	}
	logger.Printf("starting: active=%v mode=%s", settings.IsActive, settings.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return watch.Run(ctx)
	})

	g.Go(func() error {
		return runDailySchedule(ctx, cfg, cache, checks, logger)
	})

	g.Go(func() error {
		return runCommandConsole(ctx, router, logger)
	})

	if cfg.Dashboard.Enabled {
		lg := logrus.New()
		if cfg.Environment.LogLevel == "debug" {
			lg.SetLevel(logrus.DebugLevel)
		}
		srv := dashboard.NewServer(dashboard.Config{
			Port:      cfg.Dashboard.Port,
			AuthToken: cfg.Dashboard.AuthToken,
		}, ctl, store, watch, cache, lg)

		g.Go(func() error {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("dashboard: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Fatalf("Bot error: %v", err)
	}
	logger.Println("Bot stopped")
}

// runDailySchedule fires once a day at the configured MSK slot: reload the
// analytics snapshot and prune stale daily counters.
func runDailySchedule(ctx context.Context, cfg *config.Config, cache *snapshot.Cache, checks *validator.Validator, logger *log.Logger) error {
	for {
		wait := untilNext(cfg.Schedule.DailyCalcTime, time.Now())
		logger.Printf("next daily refresh in %s", wait.Round(time.Second))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}

		checks.ResetDailyCounters()
		if snaps, err := snapshot.LoadFile(cfg.Storage.SnapshotPath); err != nil {
			logger.Printf("[ERROR] daily snapshot reload: %v", err)
		} else {
			cache.Update(snaps)
			logger.Printf("daily snapshot reloaded: %d tickers", len(snaps))
		}
	}
}

// untilNext returns the duration until the next occurrence of the "HH:MM"
// MSK clock time.
func untilNext(clock string, now time.Time) time.Duration {
	loc := config.MoscowLocation()
	parsed, err := time.Parse("15:04", clock)
	if err != nil {
		return 24 * time.Hour
	}
	msk := now.In(loc)
	next := time.Date(msk.Year(), msk.Month(), msk.Day(), parsed.Hour(), parsed.Minute(), 0, 0, loc)
	if !next.After(msk) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(msk)
}

// runCommandConsole reads operator commands from stdin, one per line. A
// chat transport would plug into the same router.
func runCommandConsole(ctx context.Context, router *commands.Router, logger *log.Logger) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if text := strings.TrimSpace(scanner.Text()); text != "" {
				lines <- text
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				// stdin closed (e.g. running under a supervisor); keep the
				// process alive without a console.
				<-ctx.Done()
				return nil
			}
			out, err := router.Execute(ctx, "console", line)
			if err != nil {
				logger.Printf("command error: %v", err)
				continue
			}
			fmt.Println(out)
		}
	}
}
