package commands

import (
	"context"
	"log"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avoronkov/invest-sentinel/internal/broker"
	"github.com/avoronkov/invest-sentinel/internal/config"
	"github.com/avoronkov/invest-sentinel/internal/intake"
	"github.com/avoronkov/invest-sentinel/internal/modectl"
	"github.com/avoronkov/invest-sentinel/internal/models"
	"github.com/avoronkov/invest-sentinel/internal/notify"
	"github.com/avoronkov/invest-sentinel/internal/snapshot"
	"github.com/avoronkov/invest-sentinel/internal/storage"
	"github.com/avoronkov/invest-sentinel/internal/validator"
	"github.com/avoronkov/invest-sentinel/internal/watcher"
)

// stubChecker passes validation deterministically; the real checks are
// covered in the validator package.
type stubChecker struct{}

func (stubChecker) ValidateBuy(req validator.BuyRequest) validator.Result {
	return validator.Result{
		IsValid: true,
		SLPrice: req.EntryPrice - req.ATR,
		TPPrice: req.EntryPrice + 3*req.ATR,
		RiskRub: req.ATR * float64(req.QuantityLots*req.LotSize),
	}
}

func (stubChecker) IncrementDailyTrades() {}

func (stubChecker) AddDailyLoss(float64) {}

type fixture struct {
	r     *Router
	port  *broker.MockPort
	store *storage.MockStorage
	ctl   *modectl.Controller
	cache *snapshot.Cache
	w     *watcher.Watcher
}

func newFixture(t *testing.T, authorized ...string) *fixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.Trading.DepositRub = 100000
	cfg.Trading.RiskPerTradePct = 0.01
	cfg.Trading.MaxPositionPct = 0.25
	cfg.FreeTrading.Enabled = true
	cfg.FreeTrading.MaxPriceDeviationPct = 5.0
	cfg.FreeTrading.MaxConcurrentPositions = 3
	cfg.FreeTrading.MaxDailyTrades = 10
	cfg.FreeTrading.MaxDailyLossRub = 10000
	cfg.FreeTrading.SLPlacementTimeoutSec = 10
	cfg.FreeTrading.ConfirmationTimeoutSec = 60
	cfg.FreeTrading.TradingStart = "00:01"
	cfg.FreeTrading.TradingEnd = "23:58"
	cfg.FreeTrading.SLATRMultiplier = 1.0
	cfg.FreeTrading.TPATRMultiplier = 3.0
	cfg.Schedule.PollIntervalSec = 1
	cfg.Notify.AuthorizedUsers = authorized

	logger := log.New(os.Stderr, "", 0)
	port := broker.NewMockPort()
	port.LastPrices["BBG004730N88"] = 252.0
	store := storage.NewMockStorage()
	ctl := modectl.New(store, logger)
	cache := snapshot.NewCache()
	cache.Update([]models.ShareSnapshot{{
		Ticker: "SBER", FIGI: "BBG004730N88", LotSize: 10, EntryPrice: 250.0, ATR: 5.0,
	}})
	checker := stubChecker{}
	w := watcher.New(cfg, port, store, ctl, &notify.Mock{}, checker, logger)
	in := intake.New(cfg, port, cache, checker, w, ctl, store, logger)
	r := New(cfg, ctl, store, w, in, cache, logger)

	return &fixture{r: r, port: port, store: store, ctl: ctl, cache: cache, w: w}
}

func exec(t *testing.T, f *fixture, user, line string) string {
	t.Helper()
	out, err := f.r.Execute(context.Background(), user, line)
	require.NoError(t, err, "command %q", line)
	return out
}

func TestStatusDefaults(t *testing.T) {
	f := newFixture(t)
	out := exec(t, f, "42", "/status")
	assert.Contains(t, out, "INACTIVE")
	assert.Contains(t, out, "mode: manual")
}

func TestResumePauseCycle(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "bot resumed", exec(t, f, "42", "/resume"))
	assert.Contains(t, exec(t, f, "42", "/status"), "state: ACTIVE")

	assert.Equal(t, "bot paused", exec(t, f, "42", "/pause"))
	assert.Contains(t, exec(t, f, "42", "/status"), "INACTIVE")
}

func TestPauseWithDuration(t *testing.T) {
	f := newFixture(t)
	exec(t, f, "42", "/resume")

	out := exec(t, f, "42", "/pause 30m")
	assert.Contains(t, out, "paused for 30m")
	assert.Contains(t, exec(t, f, "42", "/status"), "paused until")
}

func TestModeCommands(t *testing.T) {
	f := newFixture(t)

	assert.Contains(t, exec(t, f, "42", "/auto"), "auto")
	settings, err := f.store.Settings()
	require.NoError(t, err)
	assert.Equal(t, models.ModeAuto, settings.Mode)

	exec(t, f, "42", "/monitor")
	settings, err = f.store.Settings()
	require.NoError(t, err)
	assert.Equal(t, models.ModeMonitorOnly, settings.Mode)
}

func TestAuthorization(t *testing.T) {
	f := newFixture(t, "1", "2")

	// Read-only commands stay open.
	exec(t, f, "99", "/status")

	_, err := f.r.Execute(context.Background(), "99", "/resume")
	assert.ErrorIs(t, err, ErrUnauthorized)

	exec(t, f, "1", "/resume")
	assert.Contains(t, exec(t, f, "99", "/status"), "ACTIVE")
}

func TestKillClearsGuardAndCache(t *testing.T) {
	f := newFixture(t)
	exec(t, f, "42", "/resume")
	require.NotZero(t, f.cache.Len())

	out := exec(t, f, "42", "/kill")
	assert.Contains(t, out, "KILL SWITCH ENGAGED")
	assert.False(t, f.ctl.IsActive())
	assert.Zero(t, f.cache.Len())
	assert.Zero(t, f.w.Guard().Pending())
}

func TestBuyConfirmFlow(t *testing.T) {
	f := newFixture(t)
	exec(t, f, "42", "/resume")
	f.port.SetNextIDs("E1")

	out := exec(t, f, "42", "/buy SBER 248.5 3")
	assert.Contains(t, out, "confirm buy SBER: 3 lots")
	assert.Contains(t, out, "/confirm ")

	// Pull the callback id out of the reply.
	var callbackID string
	for _, field := range strings.Fields(out) {
		if len(field) == 36 && strings.Count(field, "-") == 4 {
			callbackID = field
			break
		}
	}
	require.NotEmpty(t, callbackID, "reply must carry the callback id")

	out = exec(t, f, "42", "/confirm "+callbackID)
	assert.Contains(t, out, "order placed: E1")
	assert.Equal(t, 1, f.w.TrackedCount())
}

func TestBuyCancelFlow(t *testing.T) {
	f := newFixture(t)
	exec(t, f, "42", "/resume")

	out := exec(t, f, "42", "/buy SBER 248.5 3")
	var callbackID string
	for _, field := range strings.Fields(out) {
		if len(field) == 36 && strings.Count(field, "-") == 4 {
			callbackID = field
			break
		}
	}
	require.NotEmpty(t, callbackID)

	out = exec(t, f, "42", "/cancel "+callbackID)
	assert.Contains(t, out, "cancelled: SBER")
	assert.Empty(t, f.port.PlacedStops)
}

func TestBuyBadArguments(t *testing.T) {
	f := newFixture(t)
	exec(t, f, "42", "/resume")

	_, err := f.r.Execute(context.Background(), "42", "/buy")
	assert.Error(t, err)
	_, err = f.r.Execute(context.Background(), "42", "/buy sber123!")
	assert.Error(t, err)
	_, err = f.r.Execute(context.Background(), "42", "/buy SBER -5")
	assert.Error(t, err)
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture(t)
	_, err := f.r.Execute(context.Background(), "42", "/frobnicate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestStatsAndList(t *testing.T) {
	f := newFixture(t)

	out := exec(t, f, "42", "/stats")
	assert.Contains(t, out, "orders placed: 0")

	out = exec(t, f, "42", "/list")
	assert.Contains(t, out, "SBER")

	f.cache.Clear()
	out = exec(t, f, "42", "/list")
	assert.Contains(t, out, "empty")
}
