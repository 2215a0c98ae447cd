package watchdog_test

import (
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/wtsi-hgi/treeserve/internal/watchdog"
)

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestWatchdogDisabledWhenLimitZero(t *testing.T) {
	w := watchdog.New(0, time.Millisecond, newLogger())
	w.Start()
	w.Stop() // should return immediately, not hang
}

func TestWatchdogTriggersOverLimit(t *testing.T) {
	w := watchdog.New(100, time.Millisecond, newLogger())

	var killed atomic.Bool
	w.SetRSSFunc(func() (uint64, error) { return 200, nil })
	w.SetKillFunc(func() { killed.Store(true) })

	w.Start()
	assert.Eventually(t, killed.Load, time.Second, time.Millisecond)
	w.Stop()
}

func TestWatchdogDoesNotTriggerUnderLimit(t *testing.T) {
	w := watchdog.New(1000, 2*time.Millisecond, newLogger())

	var checks atomic.Int32
	var killed atomic.Bool
	w.SetRSSFunc(func() (uint64, error) { checks.Add(1); return 10, nil })
	w.SetKillFunc(func() { killed.Store(true) })

	w.Start()
	assert.Eventually(t, func() bool { return checks.Load() > 2 }, time.Second, time.Millisecond)
	w.Stop()
	assert.False(t, killed.Load())
}
