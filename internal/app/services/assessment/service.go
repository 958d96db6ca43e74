package assessment

import (
	"context"
	"sync"

	"github.com/R3E-Network/sustainability_layer/internal/app/auth"
	domain "github.com/R3E-Network/sustainability_layer/internal/app/domain/assessment"
	"github.com/R3E-Network/sustainability_layer/internal/app/metrics"
	"github.com/R3E-Network/sustainability_layer/internal/app/storage"
	apperrors "github.com/R3E-Network/sustainability_layer/internal/errors"
	"github.com/R3E-Network/sustainability_layer/pkg/logger"
)

// DefaultHistoryCapacity bounds the number of assessments kept per farm.
const DefaultHistoryCapacity = 20

// Service records assessments and farm metrics. Mutations are serialized by a
// single writer lock; reads go straight to the store.
type Service struct {
	store      storage.AssessmentStore
	log        *logger.Logger
	historyCap int

	mu sync.Mutex
}

// New constructs an assessment service.
func New(store storage.AssessmentStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("assessment")
	}
	return &Service{
		store:      store,
		log:        log,
		historyCap: DefaultHistoryCapacity,
	}
}

// WithHistoryCapacity overrides the per-farm history capacity. Zero removes
// the bound.
func (s *Service) WithHistoryCapacity(capacity int) {
	if capacity < 0 {
		capacity = 0
	}
	s.mu.Lock()
	s.historyCap = capacity
	s.mu.Unlock()
}

// Submit validates the sub-scores, computes the overall score and tier and
// records a new assessment valid for one validity period from now.
func (s *Service) Submit(ctx context.Context, farmID uint64, scores domain.Scores, now uint64, assessor auth.Principal) (domain.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitLocked(ctx, "submit", farmID, scores, now, assessor)
}

func (s *Service) submitLocked(ctx context.Context, op string, farmID uint64, scores domain.Scores, now uint64, assessor auth.Principal) (domain.Assessment, error) {
	if err := scores.Validate(); err != nil {
		return domain.Assessment{}, s.reject(op, err)
	}
	validUntil, err := domain.ExpiryFrom(now)
	if err != nil {
		return domain.Assessment{}, s.reject(op, err)
	}

	overall := domain.OverallScore(scores)
	record := domain.Assessment{
		FarmID:       farmID,
		CreatedAt:    now,
		Scores:       scores,
		OverallScore: overall,
		Tier:         domain.ClassifyTier(overall),
		Assessor:     assessor,
		ValidUntil:   validUntil,
	}

	created, err := s.store.CreateAssessment(ctx, record, s.historyCap)
	if err != nil {
		return domain.Assessment{}, s.reject(op, err)
	}

	metrics.RecordAssessment(created.Tier.String())
	s.log.WithField("assessment_id", created.ID).
		WithField("farm_id", farmID).
		WithField("overall_score", created.OverallScore).
		WithField("tier", created.Tier.String()).
		Info("assessment submitted")
	return created, nil
}

// UpdateFarmMetrics overwrites the usage metrics recorded for farmID.
func (s *Service) UpdateFarmMetrics(ctx context.Context, farmID uint64, m domain.FarmMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.FarmID = farmID
	if err := s.store.PutFarmMetrics(ctx, m); err != nil {
		return s.reject("update_farm_metrics", err)
	}
	s.log.WithField("farm_id", farmID).Debug("farm metrics updated")
	return nil
}

// DeriveAutomated derives sub-scores from the farm's recorded metrics and
// submits them as a regular assessment.
func (s *Service) DeriveAutomated(ctx context.Context, farmID uint64, now uint64, assessor auth.Principal) (domain.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.store.GetFarmMetrics(ctx, farmID)
	if err != nil {
		return domain.Assessment{}, s.reject("derive_automated", err)
	}
	return s.submitLocked(ctx, "derive_automated", farmID, domain.DeriveScores(m), now, assessor)
}

// Get returns an assessment by id.
func (s *Service) Get(ctx context.Context, id domain.ID) (domain.Assessment, error) {
	return s.store.GetAssessment(ctx, id)
}

// Latest returns the most recent assessment of a farm.
func (s *Service) Latest(ctx context.Context, farmID uint64) (domain.Assessment, error) {
	ids, err := s.store.ListAssessmentIDs(ctx, farmID)
	if err != nil {
		return domain.Assessment{}, err
	}
	if len(ids) == 0 {
		return domain.Assessment{}, apperrors.NoAssessments(farmID)
	}
	return s.store.GetAssessment(ctx, ids[len(ids)-1])
}

// IsValid reports whether the assessment exists and is still inside its
// validity window. Unknown ids and lookup failures report false.
func (s *Service) IsValid(ctx context.Context, id domain.ID, now uint64) bool {
	a, err := s.store.GetAssessment(ctx, id)
	if err != nil {
		return false
	}
	return a.ValidAt(now)
}

// FarmMetrics returns the metrics recorded for farmID.
func (s *Service) FarmMetrics(ctx context.Context, farmID uint64) (domain.FarmMetrics, error) {
	return s.store.GetFarmMetrics(ctx, farmID)
}

// AssessmentIDs returns the farm's assessment ids in creation order.
func (s *Service) AssessmentIDs(ctx context.Context, farmID uint64) ([]domain.ID, error) {
	return s.store.ListAssessmentIDs(ctx, farmID)
}

// NextID returns the id the next successful submission will receive.
func (s *Service) NextID(ctx context.Context) (domain.ID, error) {
	return s.store.NextAssessmentID(ctx)
}

func (s *Service) reject(op string, err error) error {
	metrics.RecordRejection(op, string(apperrors.CodeOf(err)))
	s.log.WithError(err).WithField("operation", op).Debug("assessment operation rejected")
	return err
}
