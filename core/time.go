package core

import (
	"time"
)

// NewTime creates a new time service
func NewTime(cfg TimeConfiguration) Time {
	var interval time.Duration
	if cfg.FramesPerSecond == 0 {
		interval = time.Nanosecond
	} else {
		interval = time.Second / (time.Duration)(cfg.FramesPerSecond)
	}

	pollDelay := time.Duration(cfg.WorkerPollDelay) * time.Millisecond
	if pollDelay <= 0 {
		pollDelay = time.Millisecond
	}

	return Time{
		fps:             cfg.FramesPerSecond,
		fpsTicker:       time.NewTicker(interval),
		workerPollDelay: pollDelay,
		workerTicker:    time.NewTicker(pollDelay),
	}
}

// Time contains all the time services and tickers
type Time struct {
	fps       int
	fpsTicker *time.Ticker

	workerPollDelay time.Duration
	workerTicker    *time.Ticker
}

// Fps gets the set frames per second
func (t *Time) Fps() int {
	return t.fps
}

// FpsTicker gets the initialized fps ticker
func (t *Time) FpsTicker() *time.Ticker {
	return t.fpsTicker
}

// WorkerPollDelay is the interval of the worker ticker
func (t *Time) WorkerPollDelay() time.Duration {
	return t.workerPollDelay
}

// WorkerTicker gets the ticker the background loader polls on
func (t *Time) WorkerTicker() *time.Ticker {
	return t.workerTicker
}

// Stop stops both tickers
func (t *Time) Stop() {
	t.fpsTicker.Stop()
	t.workerTicker.Stop()
}
