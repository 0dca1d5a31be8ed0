// Package progress reports phase progress. Reporting is observational only.
package progress

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Reporter receives progress for one phase.
type Reporter interface {
	Start(total int)
	Advance()
	Finish()
}

// Nop discards progress.
type Nop struct{}

func (Nop) Start(int) {}
func (Nop) Advance()  {}
func (Nop) Finish()   {}

// Log writes progress lines to a logrus entry. Advance logs at most once per
// Every interval; Start and Finish always log.
type Log struct {
	Entry *logrus.Entry
	Every time.Duration

	mu      sync.Mutex
	total   int
	done    int
	started time.Time
	last    time.Time
}

// NewLog returns a Log reporter that logs at most once per second.
func NewLog(entry *logrus.Entry) *Log {
	return &Log{Entry: entry, Every: time.Second}
}

func (l *Log) Start(total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.total, l.done = total, 0
	l.started = time.Now()
	l.last = l.started
	l.Entry.Infof("progress: 0/%d", total)
}

func (l *Log) Advance() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.done++
	now := time.Now()
	if now.Sub(l.last) < l.Every && l.done < l.total {
		return
	}
	l.last = now
	l.Entry.Infof("progress: %d/%d elapsed=%s", l.done, l.total, now.Sub(l.started).Truncate(time.Millisecond))
}

func (l *Log) Finish() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entry.Infof("progress: done %d/%d elapsed=%s", l.done, l.total, time.Since(l.started).Truncate(time.Millisecond))
}

// Done returns the units advanced since the last Start.
func (l *Log) Done() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// AdvanceOnly forwards Advance to r and ignores Start and Finish, so several
// jobs can share one reporter started by their caller.
func AdvanceOnly(r Reporter) Reporter { return advanceOnly{r} }

type advanceOnly struct{ r Reporter }

func (advanceOnly) Start(int)  {}
func (a advanceOnly) Advance() { a.r.Advance() }
func (advanceOnly) Finish()    {}
