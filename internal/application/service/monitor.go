package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"futsync/internal/application/port"
)

// ConnState is the connection monitor's lifecycle state.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "DISCONNECTED"
	}
}

// MonitorConfig tunes connect retries and the liveness check.
type MonitorConfig struct {
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration
	LivenessPeriod time.Duration
	ConnectTimeout time.Duration
}

// ConnectionMonitor owns the feed session: it connects, watches liveness, and
// reconnects with exponential backoff. Fetch consumers gate on Connected and
// re-baseline on Epoch changes.
type ConnectionMonitor struct {
	conn     port.Connector
	notifier port.Notifier
	cfg      MonitorConfig

	state atomic.Int32
	epoch atomic.Uint64
}

func NewConnectionMonitor(conn port.Connector, notifier port.Notifier, cfg MonitorConfig) *ConnectionMonitor {
	return &ConnectionMonitor{conn: conn, notifier: notifier, cfg: cfg}
}

// State returns the current lifecycle state.
func (m *ConnectionMonitor) State() ConnState {
	return ConnState(m.state.Load())
}

// Connected reports whether the session is usable right now.
func (m *ConnectionMonitor) Connected() bool {
	return m.State() == StateConnected && m.conn.IsConnected()
}

// Epoch increments on every successful connect. Consumers that must
// resynchronize after a reconnect track the last epoch they handled.
func (m *ConnectionMonitor) Epoch() uint64 {
	return m.epoch.Load()
}

// Run drives the connect/liveness/reconnect loop until ctx is done. An
// in-flight connect attempt is allowed to finish before exit.
func (m *ConnectionMonitor) Run(ctx context.Context) error {
	b := NewBackoff(m.cfg.BaseRetryDelay, m.cfg.MaxRetryDelay)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		m.state.Store(int32(StateConnecting))
		log.Info().Msg("connecting to feed")

		cctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
		err := m.conn.Connect(cctx)
		cancel()
		if err != nil {
			m.state.Store(int32(StateDisconnected))
			log.Error().Err(err).Dur("retry_in", b.Delay()).Msg("feed connect failed")
			if !sleepCtx(ctx, b.Delay()) {
				return ctx.Err()
			}
			b = b.Next()
			continue
		}

		b = b.Reset()
		m.state.Store(int32(StateConnected))
		m.epoch.Add(1)
		log.Info().Uint64("epoch", m.Epoch()).Msg("feed connected")
		m.notifier.Deliver(ctx, port.DestLogs, "Connected to market-data feed")

		// liveness check: no grace period, a dead session drops immediately
		for m.conn.IsConnected() {
			if !sleepCtx(ctx, m.cfg.LivenessPeriod) {
				return ctx.Err()
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		m.state.Store(int32(StateDisconnected))
		log.Warn().Dur("retry_in", b.Delay()).Msg("feed connection lost")
		m.notifier.Deliver(ctx, port.DestLogs, "Feed connection lost, reconnecting")

		if !sleepCtx(ctx, b.Delay()) {
			return ctx.Err()
		}
		b = b.Next()
	}
}
