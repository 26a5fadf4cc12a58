// Package scheduler runs the recurring background work: the stale job
// reaper on a fixed interval and full pipeline runs on a cron expression.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

type Task func(ctx context.Context) error

// Every runs task immediately and then on every interval tick until ctx is
// cancelled. Errors are logged, never fatal.
func Every(ctx context.Context, interval time.Duration, name string, task Task) {
	t := time.NewTicker(interval)
	defer t.Stop()

	// run immediately
	go func() {
		if err := task(ctx); err != nil {
			log.Printf("[%s] error: %v", name, err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := task(ctx); err != nil {
				log.Printf("[%s] error: %v", name, err)
			}
		}
	}
}

// Cron schedules task on a cron spec (robfig syntax, descriptors like
// "@every 6h" included) and blocks until ctx is cancelled.
func Cron(ctx context.Context, spec, name string, task Task) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if err := task(ctx); err != nil {
			log.Printf("[%s] error: %v", name, err)
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	<-ctx.Done()
	stop := c.Stop()
	<-stop.Done()
	return nil
}
