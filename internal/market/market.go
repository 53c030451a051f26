// Package market knows when the Indian equity market trades. All session
// arithmetic happens in IST regardless of the host timezone.
package market

import (
	"fmt"
	"sync"
	"time"
)

// ist avoids a tzdata dependency; the exchange does not observe DST.
var ist = time.FixedZone("IST", 5*3600+1800)

// Session bounds, minutes from midnight IST.
const (
	openMinute  = 9*60 + 15
	closeMinute = 15*60 + 30
)

// Status describes the market at a point in time.
type Status struct {
	Open     bool      `json:"open"`
	Reason   string    `json:"reason"`
	Now      time.Time `json:"now"`
	NextOpen time.Time `json:"next_open"`
}

// Clock reports market state. Checking can be disabled entirely, in which
// case the market is always considered open.
type Clock struct {
	mu       sync.RWMutex
	enabled  bool
	holidays map[string]struct{} // "2006-01-02" in IST
	now      func() time.Time
}

func NewClock(enabled bool, holidays []string) *Clock {
	c := &Clock{enabled: enabled, holidays: make(map[string]struct{}, len(holidays)), now: time.Now}
	for _, h := range holidays {
		c.holidays[h] = struct{}{}
	}
	return c
}

// SetEnabled toggles hours checking at runtime.
func (c *Clock) SetEnabled(on bool) {
	c.mu.Lock()
	c.enabled = on
	c.mu.Unlock()
}

func (c *Clock) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// IsOpen reports whether the market is trading right now.
func (c *Clock) IsOpen() bool {
	return c.isOpenAt(c.now())
}

func (c *Clock) isOpenAt(t time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.enabled {
		return true
	}
	return c.tradingAtLocked(t.In(ist))
}

// tradingAtLocked expects t already in IST and c.mu held.
func (c *Clock) tradingAtLocked(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	if _, holiday := c.holidays[t.Format("2006-01-02")]; holiday {
		return false
	}
	minute := t.Hour()*60 + t.Minute()
	return minute >= openMinute && minute < closeMinute
}

// CurrentStatus reports open/closed with a human reason and the next opening
// time.
func (c *Clock) CurrentStatus() Status {
	now := c.now().In(ist)

	c.mu.RLock()
	enabled := c.enabled
	c.mu.RUnlock()

	st := Status{Now: now}
	if !enabled {
		st.Open = true
		st.Reason = "market hours check disabled"
		return st
	}

	c.mu.RLock()
	open := c.tradingAtLocked(now)
	c.mu.RUnlock()

	st.Open = open
	if open {
		st.Reason = "market open"
		return st
	}
	st.NextOpen = c.nextOpen(now)
	switch {
	case now.Weekday() == time.Saturday || now.Weekday() == time.Sunday:
		st.Reason = "weekend"
	case c.isHoliday(now):
		st.Reason = "market holiday"
	case now.Hour()*60+now.Minute() < openMinute:
		st.Reason = "before market open"
	default:
		st.Reason = "after market close"
	}
	return st
}

func (c *Clock) isHoliday(t time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.holidays[t.In(ist).Format("2006-01-02")]
	return ok
}

// nextOpen walks forward day by day to the next trading session start. The
// walk is bounded so a pathological holiday list cannot loop forever.
func (c *Clock) nextOpen(now time.Time) time.Time {
	day := now
	if now.Hour()*60+now.Minute() >= openMinute {
		day = day.AddDate(0, 0, 1)
	}
	for i := 0; i < 30; i++ {
		candidate := time.Date(day.Year(), day.Month(), day.Day(), 9, 15, 0, 0, ist)
		c.mu.RLock()
		trading := c.tradingAtLocked(candidate)
		c.mu.RUnlock()
		if trading {
			return candidate
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}
}

// StatusText is the short display form, e.g. "OPEN" or "CLOSED (weekend)".
func (c *Clock) StatusText() string {
	st := c.CurrentStatus()
	if st.Open {
		return "OPEN"
	}
	return fmt.Sprintf("CLOSED (%s)", st.Reason)
}
