package download

import (
	"context"
	"strconv"
	"time"

	"github.com/hardcoding/fbxgrab/internal/events"
	"github.com/hardcoding/fbxgrab/internal/logging"
)

// Poll intervals chosen from how soon the longest download finishes.
const (
	// IdleInterval applies when nothing is downloading.
	IdleInterval = 10 * time.Second
	// FarInterval applies when more than five minutes remain.
	FarInterval = 5 * time.Second
	// NearInterval applies when a download ends within five minutes.
	NearInterval = 1 * time.Second
)

// MaxETA returns the largest remaining time, in seconds, over the tasks
// that are actively downloading. Zero when none are.
func MaxETA(tasks []Task) int64 {
	var max int64
	for _, task := range tasks {
		if task.Status != StatusDownloading {
			continue
		}
		if task.ETA > max {
			max = task.ETA
		}
	}
	return max
}

// BadgeText formats a remaining time as the compact badge shown next to
// the application icon. Zero means no badge. Below an hour the value is
// rounded up; above nine hours minutes stop mattering and the hour count
// is rounded up instead.
func BadgeText(maxETA int64) string {
	switch {
	case maxETA == 0:
		return ""
	case maxETA < 60:
		return itoa(maxETA) + "s"
	case maxETA < 3600:
		return itoa(ceilDiv(maxETA, 60)) + "m"
	default:
		hours := maxETA / 3600
		if hours > 9 {
			return itoa(hours+1) + "h"
		}
		minutes := ceilDiv(maxETA%3600, 60)
		return itoa(hours) + "h" + itoa(minutes)
	}
}

// NextInterval picks the delay before the next poll: fast when a
// download is about to finish, slow when the queue is idle.
func NextInterval(maxETA int64) time.Duration {
	switch {
	case maxETA == 0:
		return IdleInterval
	case maxETA > 300:
		return FarInterval
	default:
		return NearInterval
	}
}

// TaskLister is the slice of Dispatcher the badge poller needs.
type TaskLister interface {
	List(ctx context.Context) ([]Task, error)
}

// BadgePoller is the self-adjusting polling loop behind the ETA badge.
// It is not a fixed-rate timer: every round decides how long to sleep
// from the remaining time it just observed.
type BadgePoller struct {
	lister TaskLister
	bus    *events.Bus
	logger *logging.Logger
}

// NewBadgePoller creates a badge poller publishing to bus.
func NewBadgePoller(lister TaskLister, bus *events.Bus, logger *logging.Logger) *BadgePoller {
	return &BadgePoller{lister: lister, bus: bus, logger: logger}
}

// Run polls until ctx is cancelled. List failures keep the loop alive at
// the idle interval; the device may simply be rebooting.
func (p *BadgePoller) Run(ctx context.Context) error {
	interval := IdleInterval

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		tasks, err := p.lister.List(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Warn().Err(err).Msg("failed to poll downloads")
			interval = IdleInterval
			continue
		}

		maxETA := MaxETA(tasks)
		interval = NextInterval(maxETA)
		p.bus.PublishBadge(BadgeText(maxETA), interval)
	}
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
