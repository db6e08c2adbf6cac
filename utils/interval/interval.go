package interval

import (
	"sync"
	"time"
)

// Interval implements a javascript like interval. Handlers run on the
// interval's own goroutine and may clear the interval they are called with.
type Interval struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

// Reset resets the ticker which can be used to
// start the ticker over instead of canceling and recreating a new one
func (i *Interval) Reset(timeout time.Duration) {
	i.ticker.Reset(timeout)
}

// Clear stops the interval, it is safe to call more than once
func (i *Interval) Clear() {
	i.once.Do(func() {
		i.ticker.Stop()
		close(i.done)
	})
}

// Cleared returns true once the interval has been cleared
func (i *Interval) Cleared() bool {
	select {
	case <-i.done:
		return true
	default:
		return false
	}
}

// minTimeout is used for non-positive timeouts since tickers require a
// positive duration
const minTimeout = time.Millisecond

// SetInterval imitates the built-in javascript function
func SetInterval(handler func(i *Interval), timeout time.Duration) *Interval {
	if timeout <= 0 {
		timeout = minTimeout
	}

	i := &Interval{
		ticker: time.NewTicker(timeout),
		done:   make(chan struct{}),
	}

	go func() {
		for {
			select {
			case <-i.done:
				return

			case <-i.ticker.C:
				if i.Cleared() {
					return
				}
				handler(i)
			}
		}
	}()

	return i
}

// ClearInterval imitates the builtin javascript function
func ClearInterval(i *Interval) {
	if i != nil {
		i.Clear()
	}
}

// SetTimeout runs handler once after timeout unless cleared first
func SetTimeout(handler func(), timeout time.Duration) *Interval {
	return SetInterval(func(i *Interval) {
		i.Clear()
		handler()
	}, timeout)
}

// ClearTimeout imitates the builtin javascript function
func ClearTimeout(i *Interval) {
	ClearInterval(i)
}
