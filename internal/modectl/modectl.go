// Package modectl is the fail-closed gate in front of the durable bot
// settings. Every trading decision asks it first; when the settings cannot
// be read the answer is always "inactive, manual".
package modectl

import (
	"log"
	"time"

	"github.com/avoronkov/invest-sentinel/internal/models"
	"github.com/avoronkov/invest-sentinel/internal/storage"
)

// Controller reads and mutates the kill switch, mode and pause window.
type Controller struct {
	store  storage.Interface
	logger *log.Logger
}

// New creates a controller over the given store.
func New(store storage.Interface, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{store: store, logger: logger}
}

// IsActive reports whether the supervisor may act right now, honouring the
// kill switch and a pause window. A storage failure reads as inactive.
func (c *Controller) IsActive() bool {
	settings, err := c.store.Settings()
	if err != nil {
		c.logger.Printf("[ERROR] reading settings, treating as inactive: %v", err)
		return false
	}
	return settings.ActiveAt(time.Now())
}

// Mode returns the current automation mode. A storage failure reads as
// manual, the least automated mode.
func (c *Controller) Mode() models.Mode {
	settings, err := c.store.Settings()
	if err != nil {
		c.logger.Printf("[ERROR] reading settings, treating as manual: %v", err)
		return models.ModeManual
	}
	return settings.Mode
}

// Settings returns a copy of the full settings record.
func (c *Controller) Settings() (models.BotSettings, error) {
	return c.store.Settings()
}

// Resume turns the bot on and clears any pause window.
func (c *Controller) Resume(reason, by string) (models.BotSettings, error) {
	c.logger.Printf("resuming: %s (by %s)", reason, by)
	return c.store.SetActive(true, reason, by)
}

// Pause turns the bot off durably.
func (c *Controller) Pause(reason, by string) (models.BotSettings, error) {
	c.logger.Printf("pausing: %s (by %s)", reason, by)
	return c.store.SetActive(false, reason, by)
}

// PauseFor suspends activity for the given duration while leaving the kill
// switch on; the bot wakes up by itself when the window passes.
func (c *Controller) PauseFor(d time.Duration, reason, by string) (models.BotSettings, error) {
	until := time.Now().Add(d)
	c.logger.Printf("pausing until %s: %s (by %s)", until.Format(time.RFC3339), reason, by)
	return c.store.SetPauseUntil(until, reason, by)
}

// SetMode switches the automation mode.
func (c *Controller) SetMode(mode models.Mode, reason, by string) (models.BotSettings, error) {
	c.logger.Printf("mode -> %s: %s (by %s)", mode, reason, by)
	return c.store.SetMode(mode, reason, by)
}

// Kill is the hard stop: durably inactive, recorded with the caller's
// reason. Open exchange orders are not touched; reviewing them is the
// operator's call.
func (c *Controller) Kill(reason, by string) (models.BotSettings, error) {
	c.logger.Printf("[WARN] kill switch engaged: %s (by %s)", reason, by)
	return c.store.SetActive(false, reason, by)
}
