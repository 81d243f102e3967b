package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neo050/Office-Automation-Law-bot/logger"
)

// ErrGiveUp marks a delivery abandoned after the full retry schedule.
var ErrGiveUp = errors.New("whatsapp: delivery given up")

// Sender is the outbound surface the guard wraps.
type Sender interface {
	SendText(ctx context.Context, to, text string) error
	SendTemplate(ctx context.Context, to, name string) error
}

// Guard retries outbound deliveries on transient failures. Each attempt
// waits the corresponding delay first, so a schedule of [0s 2s 5s] makes
// three attempts. Expired credentials abort immediately: repeating the send
// cannot fix them.
type Guard struct {
	sender Sender
	delays []time.Duration
}

// NewGuard wraps sender with the given retry schedule. An empty schedule
// degrades to a single immediate attempt.
func NewGuard(sender Sender, delays []time.Duration) *Guard {
	if len(delays) == 0 {
		delays = []time.Duration{0}
	}
	return &Guard{sender: sender, delays: delays}
}

// SendReliable delivers text to the recipient, falling back to the named
// template when the free-form send lands outside the re-engagement window.
// An empty fallbackTemplate disables the fallback.
func (g *Guard) SendReliable(ctx context.Context, to, text, fallbackTemplate string) error {
	var lastErr error
	for attempt, delay := range g.delays {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := g.sender.SendText(ctx, to, text)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrTokenExpired) {
			return err
		}
		if errors.Is(err, ErrReengagement) && fallbackTemplate != "" {
			if tmplErr := g.sender.SendTemplate(ctx, to, fallbackTemplate); tmplErr == nil {
				return nil
			} else if errors.Is(tmplErr, ErrTokenExpired) {
				return tmplErr
			} else {
				err = tmplErr
			}
		}

		lastErr = err
		logger.Warn("whatsapp delivery attempt failed",
			"to", to,
			"attempt", attempt+1,
			"error", err)
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrGiveUp, len(g.delays), lastErr)
}
