package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Ticker is the work the driver runs once per interval.
type Ticker interface {
	Tick(ctx context.Context)
}

// TickDriver calls Tick on a fixed interval until stopped. Each pass gets its
// own deadline so a stuck session cannot stall the next one.
type TickDriver struct {
	target   Ticker
	interval time.Duration
	timeout  time.Duration
	done     chan struct{}
	stopped  chan struct{}
}

func NewTickDriver(target Ticker, interval, timeout time.Duration) *TickDriver {
	return &TickDriver{
		target:   target,
		interval: interval,
		timeout:  timeout,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

func (d *TickDriver) Start() {
	go d.run()
	log.Info().Dur("interval", d.interval).Msg("tick driver started")
}

// Stop ends the loop and waits for an in-flight pass to return.
func (d *TickDriver) Stop() {
	close(d.done)
	<-d.stopped
	log.Info().Msg("tick driver stopped")
}

func (d *TickDriver) run() {
	defer close(d.stopped)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.done:
			return
		case <-ticker.C:
			d.tick()
		}
	}
}

func (d *TickDriver) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("tick pass panicked")
		}
	}()

	started := time.Now()
	d.target.Tick(ctx)
	if elapsed := time.Since(started); elapsed > d.interval {
		log.Warn().Dur("elapsed", elapsed).Msg("tick pass overran its interval")
	}
}
