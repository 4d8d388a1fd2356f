package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/The-Promised-Neverland/hostwatch/pkg/logger"
	"golang.org/x/time/rate"
)

const (
	// MaxLength matches the chat API's per-message limit, in UTF-16 code units.
	MaxLength     = 4096
	truncatedMark = "\n…(truncated)"
	sendTimeout   = 15 * time.Second
)

var ErrEmptyMessage = errors.New("empty message")

// Sink delivers a text to the operator. Notify blocks until the message is
// delivered or has failed; failures are logged by the sink and returned.
type Sink interface {
	Notify(ctx context.Context, text string) error
}

// Transport is the chat API call a Notifier sends through.
type Transport interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// Notifier sends to a single configured recipient, paced by a rate limiter.
type Notifier struct {
	transport   Transport
	recipientID string
	limiter     *rate.Limiter
}

func NewNotifier(transport Transport, recipientID string, limiter *rate.Limiter) *Notifier {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Notifier{
		transport:   transport,
		recipientID: recipientID,
		limiter:     limiter,
	}
}

func (n *Notifier) Notify(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	text = Truncate(text, MaxLength)
	if err := n.limiter.Wait(ctx); err != nil {
		logger.Log.Warn("Message dropped while waiting for send slot", "err", err)
		return fmt.Errorf("wait for send slot: %w", err)
	}
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := n.transport.SendMessage(sendCtx, n.recipientID, text); err != nil {
		logger.Log.Error("Failed to send message", "chat_id", n.recipientID, "length", textLength(text), "err", err)
		return err
	}
	logger.Log.Info("Sent message", "chat_id", n.recipientID, "length", textLength(text))
	return nil
}

// Truncate shortens text to at most limit UTF-16 code units, marking the cut.
func Truncate(text string, limit int) string {
	if textLength(text) <= limit {
		return text
	}
	budget := limit - textLength(truncatedMark)
	var b strings.Builder
	used := 0
	for _, r := range text {
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		if used+n > budget {
			break
		}
		b.WriteRune(r)
		used += n
	}
	return b.String() + truncatedMark
}

// textLength counts UTF-16 code units, the unit the chat API limits on.
func textLength(text string) int {
	n := 0
	for _, r := range text {
		if utf16.RuneLen(r) == 2 {
			n += 2
		} else {
			n++
		}
	}
	return n
}
