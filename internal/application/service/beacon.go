package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"futsync/internal/application/port"
)

// HourBeacon posts a short liveness message at the top of every wall-clock
// hour. Purely informational; delivery failures are ignored like any other
// notification.
type HourBeacon struct {
	notifier port.Notifier
	now      func() time.Time
}

func NewHourBeacon(notifier port.Notifier) *HourBeacon {
	return &HourBeacon{notifier: notifier, now: time.Now}
}

func (b *HourBeacon) Run(ctx context.Context) error {
	for {
		now := b.now()
		next := now.Truncate(time.Hour).Add(time.Hour)
		if !sleepCtx(ctx, next.Sub(now)) {
			return ctx.Err()
		}
		msg := "Hour started: " + b.now().UTC().Format("2006-01-02 15:04")
		log.Info().Msg(msg)
		b.notifier.Deliver(ctx, port.DestLogs, msg)
	}
}
