package modectl

import (
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avoronkov/invest-sentinel/internal/models"
	"github.com/avoronkov/invest-sentinel/internal/storage"
)

func newController(t *testing.T) (*Controller, *storage.MockStorage) {
	t.Helper()
	store := storage.NewMockStorage()
	return New(store, log.New(os.Stderr, "", 0)), store
}

func TestDefaultsInactiveManual(t *testing.T) {
	c, _ := newController(t)

	assert.False(t, c.IsActive(), "first boot must be inactive")
	assert.Equal(t, models.ModeManual, c.Mode())
}

func TestResumeAndPause(t *testing.T) {
	c, _ := newController(t)

	s, err := c.Resume("morning start", "operator")
	require.NoError(t, err)
	assert.True(t, s.IsActive)
	assert.True(t, c.IsActive())

	s, err = c.Pause("lunch", "operator")
	require.NoError(t, err)
	assert.False(t, s.IsActive)
	assert.False(t, c.IsActive())
	assert.Equal(t, "lunch", s.LastChangeReason)
}

func TestPauseForExpires(t *testing.T) {
	c, _ := newController(t)

	_, err := c.Resume("start", "operator")
	require.NoError(t, err)

	_, err = c.PauseFor(30*time.Millisecond, "volatility spike", "operator")
	require.NoError(t, err)
	assert.False(t, c.IsActive(), "paused window must read inactive")

	time.Sleep(50 * time.Millisecond)
	assert.True(t, c.IsActive(), "pause must lift on its own")
}

func TestResumeClearsPause(t *testing.T) {
	c, _ := newController(t)

	_, err := c.Resume("start", "operator")
	require.NoError(t, err)
	_, err = c.PauseFor(time.Hour, "news", "operator")
	require.NoError(t, err)

	s, err := c.Resume("back", "operator")
	require.NoError(t, err)
	assert.Nil(t, s.PauseUntil)
	assert.True(t, c.IsActive())
}

func TestKillIsDurable(t *testing.T) {
	c, store := newController(t)

	_, err := c.Resume("start", "operator")
	require.NoError(t, err)

	s, err := c.Kill("emergency", "operator")
	require.NoError(t, err)
	assert.False(t, s.IsActive)

	// A fresh controller over the same store still reads inactive.
	c2 := New(store, log.New(os.Stderr, "", 0))
	assert.False(t, c2.IsActive())
}

func TestFailClosedOnStorageError(t *testing.T) {
	c, store := newController(t)

	_, err := c.Resume("start", "operator")
	require.NoError(t, err)
	require.True(t, c.IsActive())

	store.SettingsErr = errors.New("disk gone")
	assert.False(t, c.IsActive(), "storage error must read inactive")
	assert.Equal(t, models.ModeManual, c.Mode(), "storage error must read manual")
}

func TestSetMode(t *testing.T) {
	c, _ := newController(t)

	s, err := c.SetMode(models.ModeAuto, "going live", "operator")
	require.NoError(t, err)
	assert.Equal(t, models.ModeAuto, s.Mode)
	assert.Equal(t, models.ModeAuto, c.Mode())
}
