// Package notify tells managers about blocked invoice previews over Telegram.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"fieldbill/internal/events"
	"fieldbill/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// TelegramSender is the part of tgbotapi.BotAPI the notifier uses.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// RetryConfig holds configuration for retry logic.
type RetryConfig struct {
	MaxRetries  int
	RetryDelays []time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		RetryDelays: []time.Duration{
			1 * time.Second,
			5 * time.Second,
			30 * time.Second,
		},
	}
}

// Notifier sends coverage alerts and workbooks to the configured manager chats.
type Notifier struct {
	tg      TelegramSender
	chats   []int64
	limiter *rate.Limiter
	retry   RetryConfig
	logger  zerolog.Logger
}

// NewBotAPI connects to Telegram with a bot token.
func NewBotAPI(token string, debug bool) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram: %w", err)
	}
	api.Debug = debug
	return api, nil
}

// New creates a notifier. Telegram allows about 30 messages per second per bot;
// the limiter stays below that.
func New(tg TelegramSender, chats []int64, retry RetryConfig, logger zerolog.Logger) *Notifier {
	return &Notifier{
		tg:      tg,
		chats:   append([]int64(nil), chats...),
		limiter: rate.NewLimiter(rate.Limit(20), 5),
		retry:   retry,
		logger:  logger.With().Str("component", "notify").Logger(),
	}
}

// HandleCoverageGaps is an events.EventHandler for events.CoverageGapsDetected.
func (n *Notifier) HandleCoverageGaps(event events.Event) error {
	var p events.PreviewPayload
	if err := event.Decode(&p); err != nil {
		return err
	}
	if len(p.Gaps) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	return n.Broadcast(ctx, FormatGaps(p.CustomerID, p.RunID, p.Gaps))
}

// Broadcast sends text to every manager chat and returns the joined send errors.
func (n *Notifier) Broadcast(ctx context.Context, text string) error {
	var errs []error
	for _, chatID := range n.chats {
		msg := tgbotapi.NewMessage(chatID, text)
		if err := n.send(ctx, msg); err != nil {
			n.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send message failed")
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

// SendDocument sends a document to managers.
func (n *Notifier) SendDocument(ctx context.Context, filename string, data io.Reader, caption string) error {
	content, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	var errs []error
	for _, chatID := range n.chats {
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileReader{Name: filename, Reader: bytes.NewReader(content)})
		doc.Caption = caption
		if err := n.send(ctx, doc); err != nil {
			n.logger.Error().Err(err).Int64("chat_id", chatID).Str("file", filename).Msg("send document failed")
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) send(ctx context.Context, c tgbotapi.Chattable) error {
	var lastErr error
	for attempt := 0; attempt <= n.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := n.retryDelay(attempt, lastErr)
			n.logger.Warn().Err(lastErr).Int("attempt", attempt).Dur("delay", delay).Msg("retrying telegram send")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := n.limiter.Wait(ctx); err != nil {
			return err
		}
		_, err := n.tg.Send(c)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return err
		}
	}
	return fmt.Errorf("giving up after %d retries: %w", n.retry.MaxRetries, lastErr)
}

func (n *Notifier) retryDelay(attempt int, err error) time.Duration {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) && tgErr.RetryAfter > 0 {
		return time.Duration(tgErr.RetryAfter) * time.Second
	}
	if len(n.retry.RetryDelays) == 0 {
		return time.Second
	}
	if attempt-1 < len(n.retry.RetryDelays) {
		return n.retry.RetryDelays[attempt-1]
	}
	return n.retry.RetryDelays[len(n.retry.RetryDelays)-1]
}

// retryable reports whether a send may succeed later. Client errors such as a
// blocked bot or an unknown chat are final, except rate limiting.
func retryable(err error) bool {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		return tgErr.Code == 429 || tgErr.Code >= 500
	}
	return true
}

// FormatGaps renders the missing-rates alert.
func FormatGaps(customerID, runID string, gaps []models.CoverageGap) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Invoice preview for customer %s is blocked: %d missing rate(s).\n", customerID, len(gaps))
	for _, g := range gaps {
		fmt.Fprintf(&b, "• %s: %s\n", models.PositionLabel(g.Position), g.RateType)
	}
	if runID != "" {
		fmt.Fprintf(&b, "Run: %s", runID)
	}
	return strings.TrimRight(b.String(), "\n")
}
