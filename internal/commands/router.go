// Package commands implements the operator command surface. The router is
// transport-agnostic: a chat bot, a CLI or a test feeds it one line at a
// time and renders the returned text.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/avoronkov/invest-sentinel/internal/config"
	"github.com/avoronkov/invest-sentinel/internal/intake"
	"github.com/avoronkov/invest-sentinel/internal/modectl"
	"github.com/avoronkov/invest-sentinel/internal/models"
	"github.com/avoronkov/invest-sentinel/internal/snapshot"
	"github.com/avoronkov/invest-sentinel/internal/storage"
	"github.com/avoronkov/invest-sentinel/internal/watcher"
)

// ErrUnauthorized means the user may not issue this command.
var ErrUnauthorized = errors.New("not authorized")

var tickerRe = regexp.MustCompile(`^[A-Z]{1,10}$`)

// Router dispatches operator commands.
type Router struct {
	cfg    *config.Config
	ctl    *modectl.Controller
	store  storage.Interface
	watch  *watcher.Watcher
	intake *intake.Intake
	cache  *snapshot.Cache
	logger *log.Logger

	authorized map[string]struct{}
}

// New builds a router. The authorized set comes from configuration; an
// empty set means every caller is allowed.
func New(
	cfg *config.Config,
	ctl *modectl.Controller,
	store storage.Interface,
	watch *watcher.Watcher,
	in *intake.Intake,
	cache *snapshot.Cache,
	logger *log.Logger,
) *Router {
	if logger == nil {
		logger = log.Default()
	}
	auth := make(map[string]struct{}, len(cfg.Notify.AuthorizedUsers))
	for _, u := range cfg.Notify.AuthorizedUsers {
		auth[u] = struct{}{}
	}
	return &Router{
		cfg:        cfg,
		ctl:        ctl,
		store:      store,
		watch:      watch,
		intake:     in,
		cache:      cache,
		logger:     logger,
		authorized: auth,
	}
}

func (r *Router) isAuthorized(userID string) bool {
	if len(r.authorized) == 0 {
		return true
	}
	_, ok := r.authorized[userID]
	return ok
}

// Execute runs one command line for a user and returns the reply text.
func (r *Router) Execute(ctx context.Context, userID, line string) (string, error) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return "", fmt.Errorf("empty command")
	}
	cmd := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	args := fields[1:]

	// Read-only commands are open to everyone.
	switch cmd {
	case "status":
		return r.status()
	case "orders":
		return r.orders()
	case "stats":
		return r.stats()
	case "list":
		return r.list()
	case "help":
		return helpText, nil
	}

	if !r.isAuthorized(userID) {
		r.logger.Printf("[WARN] unauthorized %q from user %s", cmd, userID)
		return "", ErrUnauthorized
	}

	switch cmd {
	case "resume", "start":
		_, err := r.ctl.Resume("operator command", userID)
		if err != nil {
			return "", err
		}
		return "bot resumed", nil

	case "pause", "stop":
		if len(args) > 0 {
			d, err := time.ParseDuration(args[0])
			if err != nil {
				return "", fmt.Errorf("bad duration %q (try 30m, 2h)", args[0])
			}
			if _, err := r.ctl.PauseFor(d, "operator command", userID); err != nil {
				return "", err
			}
			return fmt.Sprintf("paused for %s", d), nil
		}
		if _, err := r.ctl.Pause("operator command", userID); err != nil {
			return "", err
		}
		return "bot paused", nil

	case "auto":
		return r.setMode(models.ModeAuto, userID)
	case "manual":
		return r.setMode(models.ModeManual, userID)
	case "monitor":
		return r.setMode(models.ModeMonitorOnly, userID)

	case "kill":
		return r.kill(userID)

	case "buy":
		return r.buy(ctx, userID, args)

	case "confirm":
		if len(args) != 1 {
			return "", fmt.Errorf("usage: /confirm <id>")
		}
		orderID, err := r.intake.Confirm(ctx, userID, args[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("order placed: %s, tracking started", orderID), nil

	case "cancel":
		if len(args) != 1 {
			return "", fmt.Errorf("usage: /cancel <id>")
		}
		pending, ok := r.intake.CancelPending(args[0])
		if !ok {
			return "confirmation already handled", nil
		}
		return fmt.Sprintf("cancelled: %s at %.2f", pending.Ticker, pending.EntryPrice), nil
	}

	return "", fmt.Errorf("unknown command %q, try /help", cmd)
}

func (r *Router) setMode(mode models.Mode, userID string) (string, error) {
	if _, err := r.ctl.SetMode(mode, "operator command", userID); err != nil {
		return "", err
	}
	return fmt.Sprintf("mode set to %s", mode), nil
}

// kill is the hard stop: durable inactive, all SL deadlines disarmed, the
// snapshot cache cleared so stale levels cannot feed a later resume.
func (r *Router) kill(userID string) (string, error) {
	if _, err := r.ctl.Kill("kill command", userID); err != nil {
		return "", err
	}
	r.watch.Guard().CancelAll()
	r.cache.Clear()
	return "KILL SWITCH ENGAGED: bot inactive, SL deadlines disarmed, snapshot cache cleared.\n" +
		"Open exchange orders are untouched; review them manually. /resume to restart.", nil
}

// buy parses "/buy TICKER [price] [lots]" and parks the validated order for
// confirmation.
func (r *Router) buy(ctx context.Context, userID string, args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("usage: /buy TICKER [price] [lots]")
	}
	ticker := strings.ToUpper(args[0])
	if !tickerRe.MatchString(ticker) {
		return "", fmt.Errorf("bad ticker %q", ticker)
	}

	var price *float64
	var lots *int
	if len(args) >= 2 {
		p, err := strconv.ParseFloat(strings.ReplaceAll(args[1], ",", "."), 64)
		if err != nil || p <= 0 {
			return "", fmt.Errorf("bad price %q", args[1])
		}
		price = &p
	}
	if len(args) >= 3 {
		n, err := strconv.Atoi(args[2])
		if err != nil || n <= 0 {
			return "", fmt.Errorf("bad lot count %q", args[2])
		}
		lots = &n
	}

	pending, err := r.intake.RequestBuy(ctx, userID, ticker, price, lots)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "confirm buy %s: %d lots (%d shares) at %.2f RUB\n",
		pending.Ticker, pending.QuantityLots, pending.QuantityLots*pending.LotSize, pending.EntryPrice)
	fmt.Fprintf(&b, "SL %.2f / TP %.2f, risk %.0f RUB (%.2f%%)\n",
		pending.SLPrice, pending.TPPrice, pending.RiskRub, pending.RiskPct)
	for _, warning := range pending.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", warning)
	}
	fmt.Fprintf(&b, "/confirm %s or /cancel %s (expires in %s)",
		pending.CallbackID, pending.CallbackID, r.cfg.ConfirmationTimeout())
	return b.String(), nil
}

func (r *Router) status() (string, error) {
	settings, err := r.ctl.Settings()
	if err != nil {
		return "", err
	}

	state := "INACTIVE"
	if settings.ActiveAt(time.Now()) {
		state = "ACTIVE"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "state: %s, mode: %s\n", state, settings.Mode)
	if settings.PauseUntil != nil && settings.PauseUntil.After(time.Now()) {
		fmt.Fprintf(&b, "paused until %s\n", settings.PauseUntil.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "tracked orders: %d, pending SL deadlines: %d, pending confirmations: %d\n",
		r.watch.TrackedCount(), r.watch.Guard().Pending(), r.intake.PendingCount())
	if settings.LastChangeReason != "" {
		fmt.Fprintf(&b, "last change: %s by %s at %s",
			settings.LastChangeReason, settings.LastChangeBy, settings.LastChangeAt.Format(time.RFC3339))
	}
	return b.String(), nil
}

func (r *Router) orders() (string, error) {
	tracked := r.watch.Tracked()
	if len(tracked) == 0 {
		return "no tracked orders", nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d tracked orders:\n", len(tracked))
	for _, o := range tracked {
		fmt.Fprintf(&b, "%s %s %s: %d lots, entry %.2f",
			o.OrderID, o.Ticker, o.OrderType, o.Quantity, o.EntryPrice)
		switch o.OrderType {
		case models.OrderTypeStopLoss:
			fmt.Fprintf(&b, ", trigger %.2f", o.StopPrice)
		case models.OrderTypeTakeProfit:
			fmt.Fprintf(&b, ", trigger %.2f", o.TargetPrice)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (r *Router) stats() (string, error) {
	settings, err := r.store.Settings()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"orders placed: %d\nstop-losses triggered: %d\ntake-profits triggered: %d\ntotal PnL: %+.0f RUB",
		settings.TotalOrdersPlaced, settings.TotalSLTriggered, settings.TotalTPTriggered, settings.TotalPnLRub,
	), nil
}

func (r *Router) list() (string, error) {
	snaps := r.cache.List()
	if len(snaps) == 0 {
		return "snapshot cache is empty, wait for the daily calculation", nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d tickers in today's snapshot:\n", len(snaps))
	for _, s := range snaps {
		fmt.Fprintf(&b, "%s: entry %.2f, ATR %.2f, lot %d\n", s.Ticker, s.EntryPrice, s.ATR, s.LotSize)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

const helpText = `commands:
/status            current state and mode
/orders            tracked orders
/stats             lifetime counters
/list              today's snapshot tickers
/resume            turn the bot on
/pause [duration]  turn off, optionally for a window (30m, 2h)
/auto|/manual|/monitor  switch mode
/buy TICKER [price] [lots]  request a buy (asks for confirmation)
/confirm <id>      place a pending buy
/cancel <id>       discard a pending buy
/kill              hard stop`
