package certification

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/sustainability_layer/internal/app/domain/assessment"
	"github.com/R3E-Network/sustainability_layer/internal/app/domain/certificate"
	apperrors "github.com/R3E-Network/sustainability_layer/internal/errors"
)

func TestBatchIssue(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	reqs := []certificate.IssueRequest{goldRequest(1), goldRequest(2), goldRequest(3)}
	results, err := svc.BatchIssue(ctx, reqs, registry, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, res := range results {
		assert.NoError(t, res.Err)
		assert.Equal(t, i, res.Index)
		assert.Equal(t, certificate.ID(i+1), res.Certificate.ID)
	}
}

func TestBatchIssuePartialFailureKeepsEarlierSuccesses(t *testing.T) {
	svc := newService()
	svc.WithHistoryCapacity(1)
	ctx := context.Background()

	bad := goldRequest(2)
	bad.Tier = assessment.Tier(42)

	reqs := []certificate.IssueRequest{
		goldRequest(1),
		goldRequest(1), // farm 1 history is full after the first request
		bad,
		goldRequest(3),
	}
	results, err := svc.BatchIssue(ctx, reqs, registry, 0)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.NoError(t, results[0].Err)
	assert.True(t, errors.Is(results[1].Err, apperrors.ErrHistoryFull))
	assert.True(t, errors.Is(results[2].Err, apperrors.ErrInvalidInput))
	assert.NoError(t, results[3].Err)

	assert.Equal(t, certificate.ID(1), results[0].Certificate.ID)
	assert.Equal(t, certificate.ID(2), results[3].Certificate.ID)

	// the first success survives the later failures
	assert.True(t, svc.IsValid(ctx, results[0].Certificate.ID, 0))
	ids, err := svc.CertificateIDs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []certificate.ID{1}, ids)

	next, _ := svc.NextID(ctx)
	assert.Equal(t, certificate.ID(3), next)
}

func TestBatchIssueUnauthorizedCallerFailsEachRequest(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	results, err := svc.BatchIssue(ctx, []certificate.IssueRequest{goldRequest(1), goldRequest(2)}, alice, 0)
	require.NoError(t, err)
	for _, res := range results {
		assert.True(t, errors.Is(res.Err, apperrors.ErrUnauthorized))
	}
	next, _ := svc.NextID(ctx)
	assert.Equal(t, certificate.ID(1), next)
}

func TestBatchIssueTooLarge(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	reqs := make([]certificate.IssueRequest, MaxBatchSize+1)
	for i := range reqs {
		reqs[i] = goldRequest(uint64(i))
	}
	results, err := svc.BatchIssue(ctx, reqs, registry, 0)
	assert.Nil(t, results)
	assert.True(t, errors.Is(err, apperrors.ErrBatchTooLarge))

	next, _ := svc.NextID(ctx)
	assert.Equal(t, certificate.ID(1), next)
}

func TestBatchIssueAtLimitAndEmpty(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	reqs := make([]certificate.IssueRequest, MaxBatchSize)
	for i := range reqs {
		reqs[i] = goldRequest(uint64(i))
	}
	results, err := svc.BatchIssue(ctx, reqs, registry, 0)
	require.NoError(t, err)
	assert.Len(t, results, MaxBatchSize)

	results, err = svc.BatchIssue(ctx, nil, registry, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}
