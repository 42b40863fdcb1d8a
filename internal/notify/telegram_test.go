package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"fieldbill/internal/events"
	"fieldbill/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return tgbotapi.Message{}, args.Error(0)
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 2, RetryDelays: []time.Duration{time.Millisecond}}
}

func gapsEvent(t *testing.T, gaps []models.CoverageGap) events.Event {
	t.Helper()
	payload, err := json.Marshal(events.PreviewPayload{RunID: "run-1", CustomerID: "42", Gaps: gaps, Blocked: len(gaps) > 0})
	require.NoError(t, err)
	return events.Event{Type: events.CoverageGapsDetected, Payload: payload}
}

func TestHandleCoverageGaps(t *testing.T) {
	tg := new(mockSender)
	n := New(tg, []int64{100, 200}, fastRetry(), zerolog.Nop())

	var texts []string
	tg.On("Send", mock.AnythingOfType("tgbotapi.MessageConfig")).Run(func(args mock.Arguments) {
		msg := args.Get(0).(tgbotapi.MessageConfig)
		texts = append(texts, msg.Text)
	}).Return(nil).Twice()

	err := n.HandleCoverageGaps(gapsEvent(t, []models.CoverageGap{
		{Position: "LCT", RateType: models.RateWeekdayRegular},
		{Position: "FIELD_SUPERVISOR", RateType: models.RateMobilization},
	}))
	require.NoError(t, err)
	tg.AssertExpectations(t)

	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "customer 42 is blocked: 2 missing rate(s)")
	assert.Contains(t, texts[0], "• LCT: weekday_regular")
	assert.Contains(t, texts[0], "• Field Supervisor: mobilization")
	assert.True(t, strings.HasSuffix(texts[0], "Run: run-1"))
}

func TestHandleCoverageGaps_NoGaps(t *testing.T) {
	tg := new(mockSender)
	n := New(tg, []int64{100}, fastRetry(), zerolog.Nop())

	require.NoError(t, n.HandleCoverageGaps(gapsEvent(t, nil)))
	tg.AssertNotCalled(t, "Send", mock.Anything)
}

func TestHandleCoverageGaps_BadPayload(t *testing.T) {
	n := New(new(mockSender), []int64{100}, fastRetry(), zerolog.Nop())
	assert.Error(t, n.HandleCoverageGaps(events.Event{Payload: []byte("nope")}))
}

func TestSend_RetriesRateLimit(t *testing.T) {
	tg := new(mockSender)
	n := New(tg, []int64{100}, fastRetry(), zerolog.Nop())

	tg.On("Send", mock.Anything).Return(&tgbotapi.Error{Code: 429, Message: "Too Many Requests"}).Once()
	tg.On("Send", mock.Anything).Return(nil).Once()

	require.NoError(t, n.Broadcast(context.Background(), "hello"))
	tg.AssertNumberOfCalls(t, "Send", 2)
}

func TestSend_PermanentError(t *testing.T) {
	tg := new(mockSender)
	n := New(tg, []int64{100, 200}, fastRetry(), zerolog.Nop())

	tg.On("Send", mock.Anything).Return(&tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"})

	err := n.Broadcast(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat 100")
	assert.Contains(t, err.Error(), "chat 200")
	tg.AssertNumberOfCalls(t, "Send", 2)
}

func TestSend_GivesUp(t *testing.T) {
	tg := new(mockSender)
	n := New(tg, []int64{100}, fastRetry(), zerolog.Nop())

	tg.On("Send", mock.Anything).Return(errors.New("connection reset"))

	err := n.Broadcast(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "giving up after 2 retries")
	tg.AssertNumberOfCalls(t, "Send", 3)
}

func TestSendDocument(t *testing.T) {
	tg := new(mockSender)
	n := New(tg, []int64{100, 200}, fastRetry(), zerolog.Nop())

	var docs []tgbotapi.DocumentConfig
	tg.On("Send", mock.AnythingOfType("tgbotapi.DocumentConfig")).Run(func(args mock.Arguments) {
		docs = append(docs, args.Get(0).(tgbotapi.DocumentConfig))
	}).Return(nil)

	err := n.SendDocument(context.Background(), "invoice_preview_42_20250106.xlsx", strings.NewReader("xlsx"), "Preview")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, d := range docs {
		assert.Equal(t, "Preview", d.Caption)
		file, ok := d.File.(tgbotapi.FileReader)
		require.True(t, ok)
		assert.Equal(t, "invoice_preview_42_20250106.xlsx", file.Name)
	}
	assert.Equal(t, int64(200), docs[1].ChatID)
}

func TestRetryDelay(t *testing.T) {
	n := New(new(mockSender), nil, RetryConfig{MaxRetries: 3, RetryDelays: []time.Duration{time.Second, 2 * time.Second}}, zerolog.Nop())

	assert.Equal(t, time.Second, n.retryDelay(1, errors.New("x")))
	assert.Equal(t, 2*time.Second, n.retryDelay(2, errors.New("x")))
	assert.Equal(t, 2*time.Second, n.retryDelay(3, errors.New("x")))

	limited := &tgbotapi.Error{Code: 429, ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 7}}
	assert.Equal(t, 7*time.Second, n.retryDelay(1, limited))
}
