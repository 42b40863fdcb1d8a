package invoice

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"fieldbill/internal/coverage"
	"fieldbill/internal/models"
	"fieldbill/internal/rates"
	"fieldbill/internal/shifts"

	"github.com/rs/zerolog"
)

// Snapshot is the read-only input of one generation run.
type Snapshot struct {
	Jobs     []models.Job
	RateCard *models.RateCard
	Services []models.Service
}

// Result is a priced invoice preview together with its coverage report.
type Result struct {
	Items    []models.LineItem    `json:"items"`
	Gaps     []models.CoverageGap `json:"gaps"`
	Subtotal float64              `json:"subtotal"`
	// Blocked is true while any rate is missing; the invoice cannot be generated yet.
	Blocked bool `json:"blocked"`
}

// Digest is a stable fingerprint of the line items, equal across identical runs.
func (r Result) Digest() string {
	data, err := json.Marshal(r.Items)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Engine runs the generator and the auditor over one snapshot.
type Engine struct {
	classifier *shifts.Classifier
	log        zerolog.Logger
}

// NewEngine validates the policy and creates an engine.
func NewEngine(policy shifts.Policy, log zerolog.Logger) (*Engine, error) {
	classifier, err := shifts.NewClassifier(policy)
	if err != nil {
		return nil, err
	}
	return &Engine{
		classifier: classifier,
		log:        log.With().Str("component", "invoice").Logger(),
	}, nil
}

// Classifier exposes the engine's shift classifier.
func (e *Engine) Classifier() *shifts.Classifier {
	return e.classifier
}

// Preview prices the snapshot. It is deterministic and safe to call repeatedly.
func (e *Engine) Preview(snap Snapshot) Result {
	resolver := rates.NewResolver(models.NewCatalog(snap.Services))

	items := NewGenerator(e.classifier, resolver, e.log).Generate(snap.Jobs, snap.RateCard)
	if items == nil {
		items = []models.LineItem{}
	}
	gaps := coverage.NewAuditor(e.classifier, resolver).Audit(snap.Jobs, snap.RateCard)
	if gaps == nil {
		gaps = []models.CoverageGap{}
	}

	return Result{
		Items:    items,
		Gaps:     gaps,
		Subtotal: models.Subtotal(items),
		Blocked:  len(gaps) > 0,
	}
}
