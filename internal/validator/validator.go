// Package validator performs pre-flight checks on user-initiated buy orders
// and tracks the daily trade and loss counters those checks depend on.
package validator

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/avoronkov/invest-sentinel/internal/config"
	"github.com/avoronkov/invest-sentinel/internal/util"
)

// Result is the outcome of validating a buy request. When valid, the
// computed SL/TP levels and risk figures are filled in.
type Result struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`

	SLPrice         float64 `json:"sl_price,omitempty"`
	TPPrice         float64 `json:"tp_price,omitempty"`
	RiskRub         float64 `json:"risk_rub,omitempty"`
	RiskPct         float64 `json:"risk_pct,omitempty"`
	RewardRub       float64 `json:"reward_rub,omitempty"`
	RiskRewardRatio float64 `json:"risk_reward_ratio,omitempty"`
	PositionValue   float64 `json:"position_value,omitempty"`
}

// BuyRequest carries everything needed to validate one long entry.
type BuyRequest struct {
	Ticker       string
	EntryPrice   float64
	QuantityLots int
	LotSize      int
	CurrentPrice float64
	ATR          float64
	// OpenPositions is the caller-observed count of concurrently open
	// positions at request time.
	OpenPositions int
}

// Validator checks buy orders against trading-hours, price, sizing and
// daily-limit rules. Daily counters are in-memory and keyed by MSK date, so
// a restart resets them; the durable loss record lives in storage stats.
type Validator struct {
	cfg    *config.Config
	logger *log.Logger

	mu          sync.Mutex
	dailyTrades map[string]int
	dailyLoss   map[string]float64

	// now is swappable for tests.
	now func() time.Time
}

// New creates a validator bound to the given configuration.
func New(cfg *config.Config, logger *log.Logger) *Validator {
	if logger == nil {
		logger = log.Default()
	}
	return &Validator{
		cfg:         cfg,
		logger:      logger,
		dailyTrades: make(map[string]int),
		dailyLoss:   make(map[string]float64),
		now:         time.Now,
	}
}

func (v *Validator) todayKey() string {
	return v.now().In(config.MoscowLocation()).Format("2006-01-02")
}

// DailyTrades returns today's trade count.
func (v *Validator) DailyTrades() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.dailyTrades[v.todayKey()]
}

// DailyLoss returns today's accumulated realised loss in rubles.
func (v *Validator) DailyLoss() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.dailyLoss[v.todayKey()]
}

// IncrementDailyTrades records one placed trade against today's limit.
func (v *Validator) IncrementDailyTrades() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dailyTrades[v.todayKey()]++
}

// AddDailyLoss adds a realised loss to today's counter. Profits and zero
// results are ignored.
func (v *Validator) AddDailyLoss(lossRub float64) {
	if lossRub <= 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dailyLoss[v.todayKey()] += lossRub
}

// ResetDailyCounters drops every key except today's. Run it from the daily
// scheduler so stale dates do not accumulate.
func (v *Validator) ResetDailyCounters() {
	v.mu.Lock()
	defer v.mu.Unlock()
	today := v.todayKey()
	for k := range v.dailyTrades {
		if k != today {
			delete(v.dailyTrades, k)
		}
	}
	for k := range v.dailyLoss {
		if k != today {
			delete(v.dailyLoss, k)
		}
	}
}

// checkTradingHours verifies the MSK weekday trading window.
func (v *Validator) checkTradingHours() (bool, string) {
	now := v.now()
	if v.cfg.IsWithinTradingHours(now) {
		return true, "OK"
	}
	msk := now.In(config.MoscowLocation())
	if msk.Weekday() == time.Saturday || msk.Weekday() == time.Sunday {
		return false, "market closed on weekends"
	}
	ft := v.cfg.FreeTrading
	return false, fmt.Sprintf("outside trading window %s-%s MSK", ft.TradingStart, ft.TradingEnd)
}

// checkPrice verifies the entry price sits below current and within the
// allowed deviation. A take-profit buy stop triggers when the price drops to
// the entry level, so an entry at or above current would fire immediately.
func (v *Validator) checkPrice(entryPrice, currentPrice float64) (bool, string) {
	if entryPrice <= 0 {
		return false, "entry price must be > 0"
	}
	if currentPrice <= 0 {
		return false, "current price unavailable"
	}
	if entryPrice >= currentPrice {
		return false, fmt.Sprintf("entry price (%.2f) must be below current (%.2f)", entryPrice, currentPrice)
	}
	deviationPct := (currentPrice - entryPrice) / currentPrice * 100
	if deviationPct > v.cfg.FreeTrading.MaxPriceDeviationPct {
		return false, fmt.Sprintf("deviation %.1f%% exceeds limit %.1f%%",
			deviationPct, v.cfg.FreeTrading.MaxPriceDeviationPct)
	}
	return true, "OK"
}

// checkQuantity verifies lot count and the position-value cap.
func (v *Validator) checkQuantity(quantityLots, lotSize int, entryPrice float64) (bool, string) {
	if quantityLots <= 0 {
		return false, "quantity must be > 0 lots"
	}
	positionValue := float64(quantityLots*lotSize) * entryPrice
	maxValue := v.cfg.Trading.DepositRub * v.cfg.Trading.MaxPositionPct
	if positionValue > maxValue {
		return false, fmt.Sprintf("position %.0f RUB exceeds limit %.0f RUB (%.0f%% of deposit)",
			positionValue, maxValue, v.cfg.Trading.MaxPositionPct*100)
	}
	return true, "OK"
}

// checkDailyLimits verifies today's trade count and realised loss.
func (v *Validator) checkDailyLimits() (bool, string) {
	ft := v.cfg.FreeTrading
	if trades := v.DailyTrades(); trades >= ft.MaxDailyTrades {
		return false, fmt.Sprintf("daily limit of %d trades reached", ft.MaxDailyTrades)
	}
	if loss := v.DailyLoss(); loss >= ft.MaxDailyLossRub {
		return false, fmt.Sprintf("daily loss limit %.0f RUB reached (current: %.0f RUB)",
			ft.MaxDailyLossRub, loss)
	}
	return true, "OK"
}

// CalcSLTP derives the stop and take levels from ATR for a long entry.
func (v *Validator) CalcSLTP(entryPrice, atr float64) (slPrice, tpPrice float64) {
	ft := v.cfg.FreeTrading
	slPrice = util.Round2(entryPrice - atr*ft.SLATRMultiplier)
	tpPrice = util.Round2(entryPrice + atr*ft.TPATRMultiplier)
	return slPrice, tpPrice
}

// ValidateBuy runs the full pre-flight check for a long entry. All hard
// checks run before any risk math so the caller gets every error at once.
func (v *Validator) ValidateBuy(req BuyRequest) Result {
	var errs, warnings []string

	if ok, reason := v.checkTradingHours(); !ok {
		errs = append(errs, reason)
	}
	if req.OpenPositions >= v.cfg.FreeTrading.MaxConcurrentPositions {
		errs = append(errs, fmt.Sprintf("limit of %d concurrent positions reached",
			v.cfg.FreeTrading.MaxConcurrentPositions))
	}
	if ok, reason := v.checkDailyLimits(); !ok {
		errs = append(errs, reason)
	}
	if ok, reason := v.checkPrice(req.EntryPrice, req.CurrentPrice); !ok {
		errs = append(errs, reason)
	}
	if ok, reason := v.checkQuantity(req.QuantityLots, req.LotSize, req.EntryPrice); !ok {
		errs = append(errs, reason)
	}

	if len(errs) > 0 {
		v.logger.Printf("[WARN] validation failed for %s: %v", req.Ticker, errs)
		return Result{IsValid: false, Errors: errs, Warnings: warnings}
	}

	slPrice, tpPrice := v.CalcSLTP(req.EntryPrice, req.ATR)
	if slPrice <= 0 {
		errs = append(errs, fmt.Sprintf("computed SL is not positive: %.2f", slPrice))
		return Result{IsValid: false, Errors: errs, Warnings: warnings}
	}

	shares := float64(req.QuantityLots * req.LotSize)
	positionValue := shares * req.EntryPrice
	riskRub := (req.EntryPrice - slPrice) * shares
	rewardRub := (tpPrice - req.EntryPrice) * shares
	riskPct := riskRub / v.cfg.Trading.DepositRub * 100

	var rrRatio float64
	if riskRub > 0 {
		rrRatio = rewardRub / riskRub
	}

	recommendedPct := v.cfg.Trading.RiskPerTradePct * 100
	if riskPct > recommendedPct*1.5 {
		warnings = append(warnings, fmt.Sprintf("risk %.2f%% above recommended %.1f%%",
			riskPct, recommendedPct))
	}
	if rrRatio < 2 {
		warnings = append(warnings, fmt.Sprintf("risk/reward %.1f:1 below recommended 3:1", rrRatio))
	}
	if tpPrice <= req.CurrentPrice {
		warnings = append(warnings, fmt.Sprintf("TP (%.2f) at or below current price (%.2f), may trigger immediately",
			tpPrice, req.CurrentPrice))
	}

	v.logger.Printf("validation passed for %s: SL=%.2f TP=%.2f risk=%.0f RUB (%.2f%%)",
		req.Ticker, slPrice, tpPrice, riskRub, riskPct)

	return Result{
		IsValid:         true,
		Warnings:        warnings,
		SLPrice:         slPrice,
		TPPrice:         tpPrice,
		RiskRub:         riskRub,
		RiskPct:         riskPct,
		RewardRub:       rewardRub,
		RiskRewardRatio: rrRatio,
		PositionValue:   positionValue,
	}
}
