// Package service orchestrates invoice previews: fetch, compute, journal, publish.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"fieldbill/internal/dashboard"
	"fieldbill/internal/database"
	"fieldbill/internal/events"
	"fieldbill/internal/invoice"
	"fieldbill/internal/metrics"
	"fieldbill/internal/models"
	"fieldbill/internal/shifts"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrNoJobs           = errors.New("at least one job id is required")
	ErrNoCustomer       = errors.New("customer id is required")
	ErrCustomerMismatch = errors.New("job belongs to another customer")
)

// Dashboard is the read side of the operations dashboard.
type Dashboard interface {
	GetJob(ctx context.Context, id models.ID) (*models.Job, error)
	GetRateCard(ctx context.Context, customerID models.ID) (*models.RateCard, error)
	ListServices(ctx context.Context) ([]models.Service, error)
}

// Journal stores preview runs.
type Journal interface {
	RecordRun(ctx context.Context, run *database.Run) error
	ListRuns(ctx context.Context, customerID string, limit int) ([]database.Run, error)
}

// Publisher publishes domain events.
type Publisher interface {
	PublishJSON(id, eventType string, payload any) error
}

// PreviewRequest selects the completed jobs of one customer.
type PreviewRequest struct {
	CustomerID string   `json:"customer_id"`
	JobIDs     []string `json:"job_ids"`
}

// Preview is the outcome of one run.
type Preview struct {
	RunID      string `json:"run_id"`
	CustomerID string `json:"customer_id"`
	invoice.Result
	Digest    string    `json:"digest"`
	CreatedAt time.Time `json:"created_at"`
}

// PreviewService fetches job snapshots and prices them with the current rules.
type PreviewService struct {
	dashboard Dashboard
	journal   Journal
	publisher Publisher
	logger    zerolog.Logger

	mu     sync.RWMutex
	engine *invoice.Engine
}

// NewPreviewService creates the service with an initial policy.
func NewPreviewService(d Dashboard, j Journal, p Publisher, policy shifts.Policy, logger zerolog.Logger) (*PreviewService, error) {
	engine, err := invoice.NewEngine(policy, logger)
	if err != nil {
		return nil, err
	}
	return &PreviewService{
		dashboard: d,
		journal:   j,
		publisher: p,
		logger:    logger.With().Str("component", "preview").Logger(),
		engine:    engine,
	}, nil
}

// SetPolicy swaps the classification rules used by later previews.
// An invalid policy is rejected and the current one is kept.
func (s *PreviewService) SetPolicy(policy shifts.Policy) error {
	engine, err := invoice.NewEngine(policy, s.logger)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.engine = engine
	s.mu.Unlock()
	s.logger.Info().Int("holidays", len(policy.Holidays)).Msg("classification rules updated")
	return nil
}

func (s *PreviewService) currentEngine() *invoice.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Preview prices the requested jobs against the customer's rate card.
// A customer without a rate card still gets a preview in which every required rate is a gap.
func (s *PreviewService) Preview(ctx context.Context, req PreviewRequest) (*Preview, error) {
	started := time.Now()
	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		return nil, ErrNoCustomer
	}
	jobIDs := uniqueIDs(req.JobIDs)
	if len(jobIDs) == 0 {
		return nil, ErrNoJobs
	}

	snap, err := s.snapshot(ctx, customerID, jobIDs)
	if err != nil {
		metrics.IncPreview("error")
		return nil, err
	}

	result := s.currentEngine().Preview(*snap)
	preview := &Preview{
		RunID:      uuid.NewString(),
		CustomerID: customerID,
		Result:     result,
		Digest:     result.Digest(),
		CreatedAt:  time.Now().UTC(),
	}

	run := &database.Run{
		ID:         preview.RunID,
		CustomerID: customerID,
		JobIDs:     jobIDs,
		ItemCount:  len(result.Items),
		GapCount:   len(result.Gaps),
		Blocked:    result.Blocked,
		Subtotal:   result.Subtotal,
		Digest:     preview.Digest,
		CreatedAt:  preview.CreatedAt,
	}
	if err := s.journal.RecordRun(ctx, run); err != nil {
		metrics.IncPreview("error")
		return nil, fmt.Errorf("record run: %w", err)
	}

	outcome := "ok"
	if result.Blocked {
		outcome = "blocked"
	}
	metrics.IncPreview(outcome)
	metrics.AddLineItems(len(result.Items))
	for _, g := range result.Gaps {
		metrics.IncCoverageGap(string(g.RateType))
	}
	metrics.ObservePreviewDuration(time.Since(started))

	s.publish(preview, jobIDs)

	s.logger.Info().
		Str("run_id", preview.RunID).
		Str("customer", customerID).
		Int("jobs", len(jobIDs)).
		Int("items", len(result.Items)).
		Int("gaps", len(result.Gaps)).
		Float64("subtotal", result.Subtotal).
		Msg("preview generated")

	return preview, nil
}

// ListRuns returns journaled runs, newest first.
func (s *PreviewService) ListRuns(ctx context.Context, customerID string, limit int) ([]database.Run, error) {
	return s.journal.ListRuns(ctx, strings.TrimSpace(customerID), limit)
}

func (s *PreviewService) snapshot(ctx context.Context, customerID string, jobIDs []string) (*invoice.Snapshot, error) {
	jobs := make([]models.Job, 0, len(jobIDs))
	for _, id := range jobIDs {
		job, err := s.dashboard.GetJob(ctx, models.ID(id))
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", id, err)
		}
		if job.CustomerID != "" && job.CustomerID.String() != customerID {
			return nil, fmt.Errorf("job %s: %w", id, ErrCustomerMismatch)
		}
		jobs = append(jobs, *job)
	}

	card, err := s.dashboard.GetRateCard(ctx, models.ID(customerID))
	switch {
	case errors.Is(err, dashboard.ErrRateCardNotFound):
		s.logger.Warn().Str("customer", customerID).Msg("customer has no rate card")
		card = nil
	case err != nil:
		return nil, fmt.Errorf("rate card: %w", err)
	}

	services, err := s.dashboard.ListServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("services: %w", err)
	}

	return &invoice.Snapshot{Jobs: jobs, RateCard: card, Services: services}, nil
}

func (s *PreviewService) publish(p *Preview, jobIDs []string) {
	if s.publisher == nil {
		return
	}
	payload := events.PreviewPayload{
		RunID:      p.RunID,
		CustomerID: p.CustomerID,
		JobIDs:     jobIDs,
		Items:      p.Items,
		Gaps:       p.Gaps,
		Subtotal:   p.Subtotal,
		Blocked:    p.Blocked,
		Digest:     p.Digest,
	}
	if err := s.publisher.PublishJSON(p.RunID, events.PreviewGenerated, payload); err != nil {
		s.logger.Error().Err(err).Str("run_id", p.RunID).Msg("publish preview failed")
	}
	if !p.Blocked {
		return
	}
	payload.Items = nil
	if err := s.publisher.PublishJSON(p.RunID, events.CoverageGapsDetected, payload); err != nil {
		s.logger.Error().Err(err).Str("run_id", p.RunID).Msg("publish coverage gaps failed")
	}
}

// uniqueIDs trims ids and drops blanks and repeats, keeping first-seen order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
