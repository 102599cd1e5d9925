package port

import "context"

// Destination selects the outbound message channel.
type Destination string

const (
	DestLogs  Destination = "logs"
	DestTrade Destination = "trade"
)

// Notifier delivers text messages best-effort. Deliver reports success but
// never returns an error; core loops must not block on notification failure.
type Notifier interface {
	Deliver(ctx context.Context, to Destination, text string) bool
}
