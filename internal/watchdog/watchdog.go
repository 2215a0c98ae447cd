// Package watchdog polls the process's own resident memory and kills the
// process if it exceeds a configured budget, reading RUSAGE_SELF through
// golang.org/x/sys/unix since the resource usage syscalls it wraps have
// no stdlib equivalent.
package watchdog

import (
	"os"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Watchdog periodically checks process RSS against a configured limit
// and self-terminates the process when it is exceeded: treeserve has no
// way to shed load gracefully mid-ingest, so the only safe response to a
// runaway arena is to die loudly before the OOM killer picks a less
// predictable victim.
type Watchdog struct {
	limitBytes uint64
	interval   time.Duration
	log        *logrus.Logger

	stop chan struct{}
	done chan struct{}

	// rss is overridable in tests so they don't depend on the live
	// process's actual memory footprint.
	rss func() (uint64, error)

	// kill is overridable in tests so they can observe a triggered limit
	// without actually terminating the test binary.
	kill func()
}

// New returns a Watchdog that kills the process once RSS exceeds
// limitBytes, checking every interval.
func New(limitBytes uint64, interval time.Duration, log *logrus.Logger) *Watchdog {
	return &Watchdog{
		limitBytes: limitBytes,
		interval:   interval,
		log:        log,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		rss:        currentRSS,
		kill:       killSelf,
	}
}

// Start runs the poll loop in its own goroutine. It is a no-op if
// limitBytes is zero: a zero or absent memory limit disables the
// watchdog entirely.
func (w *Watchdog) Start() {
	if w.limitBytes == 0 {
		close(w.done)
		return
	}
	go w.run()
}

// SetRSSFunc overrides how resident set size is measured. Exposed for
// tests; production callers should leave the default in place.
func (w *Watchdog) SetRSSFunc(f func() (uint64, error)) {
	w.rss = f
}

// SetKillFunc overrides how the watchdog terminates the process. Exposed
// for tests; production callers should leave the default in place.
func (w *Watchdog) SetKillFunc(f func()) {
	w.kill = f
}

// Stop ends the poll loop and waits for it to exit.
func (w *Watchdog) Stop() {
	select {
	case <-w.done:
		return
	default:
	}
	close(w.stop)
	<-w.done
}

func (w *Watchdog) run() {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watchdog) check() {
	rss, err := w.rss()
	if err != nil {
		w.log.WithError(err).Warn("watchdog: failed to read resident set size")
		return
	}
	if rss <= w.limitBytes {
		return
	}
	w.log.WithFields(logrus.Fields{"rss_bytes": rss, "limit_bytes": w.limitBytes}).
		Error("resident set size exceeded limit, terminating")
	w.kill()
}

// currentRSS reads the process's own maximum resident set size via
// getrusage(RUSAGE_SELF), converted from the kilobytes Linux reports to
// bytes.
func currentRSS() (uint64, error) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0, err
	}
	return uint64(ru.Maxrss) * 1024, nil
}

// killSelf sends SIGKILL to the current process — the same final,
// unignorable signal an OOM killer would send, chosen deliberately over
// os.Exit so no deferred cleanup can race a too-large arena back into
// partial, corrupt persistence.
func killSelf() {
	_ = syscall.Kill(os.Getpid(), syscall.SIGKILL)
}
