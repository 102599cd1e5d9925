package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"futsync/internal/application/port"
)

// Telegram caps messages at 4096 characters; we split a little earlier so
// a chunk marker still fits.
const maxChunk = 4000

// Channel is one telegram destination: a chat id plus an enabled switch.
type Channel struct {
	ChatID  int64
	Enabled bool
}

// TelegramNotifier posts plain-text messages to per-destination chats.
// Delivery is best effort: failures are logged, counted by the circuit
// breaker, and never propagated to the caller.
type TelegramNotifier struct {
	apiURL   string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
	channels map[port.Destination]Channel
}

func NewTelegram(botToken string, timeout time.Duration, channels map[port.Destination]Channel) *TelegramNotifier {
	settings := gobreaker.Settings{
		Name:        "telegram",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}
	return &TelegramNotifier{
		apiURL:   "https://api.telegram.org/bot" + botToken + "/sendMessage",
		client:   &http.Client{Timeout: timeout},
		breaker:  gobreaker.NewCircuitBreaker(settings),
		channels: channels,
	}
}

// Deliver sends text to the chat behind the destination, splitting long
// messages into chunks. Returns whether every chunk was accepted.
func (n *TelegramNotifier) Deliver(ctx context.Context, to port.Destination, text string) bool {
	ch, ok := n.channels[to]
	if !ok || !ch.Enabled {
		return false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	ok = true
	for _, chunk := range splitMessage(text, maxChunk) {
		if err := n.send(ctx, ch.ChatID, chunk); err != nil {
			log.Error().Err(err).Str("dest", string(to)).Msg("telegram delivery failed")
			ok = false
		}
	}
	return ok
}

func (n *TelegramNotifier) send(ctx context.Context, chatID int64, text string) error {
	_, err := n.breaker.Execute(func() (interface{}, error) {
		form := url.Values{}
		form.Set("chat_id", strconv.FormatInt(chatID, 10))
		form.Set("text", text)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.apiURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := n.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		var body struct {
			OK          bool   `json:"ok"`
			Description string `json:"description"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		if !body.OK {
			return nil, fmt.Errorf("telegram api: %s", body.Description)
		}
		return nil, nil
	})
	return err
}

// splitMessage cuts text into chunks of at most limit characters,
// preferring newline boundaries so formatted messages stay readable.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndexByte(text[:limit], '\n')
		if cut <= 0 {
			cut = limit
		}
		chunks = append(chunks, strings.TrimRight(text[:cut], "\n"))
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

var _ port.Notifier = (*TelegramNotifier)(nil)

// LogNotifier writes every message to the structured log instead of an
// external channel. Used when telegram is disabled.
type LogNotifier struct{}

func (LogNotifier) Deliver(ctx context.Context, to port.Destination, text string) bool {
	log.Info().Str("dest", string(to)).Msg(text)
	return true
}

var _ port.Notifier = LogNotifier{}
