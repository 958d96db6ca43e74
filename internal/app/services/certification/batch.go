package certification

import (
	"context"

	"github.com/google/uuid"

	"github.com/R3E-Network/sustainability_layer/internal/app/auth"
	"github.com/R3E-Network/sustainability_layer/internal/app/domain/certificate"
	apperrors "github.com/R3E-Network/sustainability_layer/internal/errors"
)

// MaxBatchSize is the largest number of requests BatchIssue accepts.
const MaxBatchSize = 5

// BatchIssue applies Issue to each request in order. Each issuance commits on
// its own: a failing request is reported in its result and does not undo the
// requests before it. Only an oversized batch fails as a whole, before any
// request is applied.
func (s *Service) BatchIssue(ctx context.Context, reqs []certificate.IssueRequest, caller auth.Principal, now uint64) ([]certificate.IssueResult, error) {
	if len(reqs) > MaxBatchSize {
		return nil, s.reject("batch_issue", apperrors.BatchTooLarge(len(reqs), MaxBatchSize))
	}

	batchID := uuid.NewString()
	log := s.log.WithField("batch_id", batchID)

	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]certificate.IssueResult, len(reqs))
	failed := 0
	for i, req := range reqs {
		cert, err := s.issueLocked(ctx, req, caller, now)
		results[i] = certificate.IssueResult{Index: i, Certificate: cert, Err: err}
		if err != nil {
			failed++
			log.WithError(err).WithField("index", i).Warn("batch issuance failed")
		}
	}

	log.WithField("requested", len(reqs)).
		WithField("failed", failed).
		Info("certificate batch processed")
	return results, nil
}
