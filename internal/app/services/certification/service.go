// Package certification implements the certificate registry: issuance,
// ownership transfer, renewal, revocation and validity queries. Issuance,
// renewal and revocation are restricted to a single registry owner; transfer
// is restricted to the certificate's current owner.
package certification

import (
	"context"
	"sync"

	"github.com/R3E-Network/sustainability_layer/internal/app/auth"
	"github.com/R3E-Network/sustainability_layer/internal/app/domain/assessment"
	"github.com/R3E-Network/sustainability_layer/internal/app/domain/certificate"
	"github.com/R3E-Network/sustainability_layer/internal/app/metrics"
	"github.com/R3E-Network/sustainability_layer/internal/app/storage"
	apperrors "github.com/R3E-Network/sustainability_layer/internal/errors"
	"github.com/R3E-Network/sustainability_layer/pkg/logger"
)

// DefaultHistoryCapacity bounds the number of certificates kept per farm.
const DefaultHistoryCapacity = 10

// Service manages certificates. Mutations are serialized by a single writer
// lock; reads go straight to the store.
type Service struct {
	store      storage.CertificateStore
	owner      auth.Principal
	log        *logger.Logger
	historyCap int

	mu sync.Mutex
}

// New constructs a registry administered by owner.
func New(store storage.CertificateStore, owner auth.Principal, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("certification")
	}
	return &Service{
		store:      store,
		owner:      owner,
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

// RegistryOwner returns the identity allowed to issue, renew and revoke.
func (s *Service) RegistryOwner() auth.Principal { return s.owner }

// Issue creates a certificate owned by the caller. Only the registry owner
// may issue.
func (s *Service) Issue(ctx context.Context, req certificate.IssueRequest, caller auth.Principal, now uint64) (certificate.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(ctx, req, caller, now)
}

func (s *Service) issueLocked(ctx context.Context, req certificate.IssueRequest, caller auth.Principal, now uint64) (certificate.Certificate, error) {
	if err := auth.Authorize(s.owner, caller); err != nil {
		return certificate.Certificate{}, s.reject("issue", err)
	}
	if !req.Tier.Valid() {
		return certificate.Certificate{}, s.reject("issue", apperrors.InvalidInput("tier", "unknown tier "+req.Tier.String()))
	}
	expiresAt, err := assessment.ExpiryFrom(now)
	if err != nil {
		return certificate.Certificate{}, s.reject("issue", err)
	}

	cert := certificate.Certificate{
		FarmID:       req.FarmID,
		AssessmentID: req.AssessmentID,
		Tier:         req.Tier,
		IssuedAt:     now,
		ExpiresAt:    expiresAt,
		Issuer:       caller,
		MetadataRef:  req.MetadataRef,
		Renewable:    true,
	}
	meta := certificate.Metadata{
		FarmName:            req.FarmName,
		Tier:                req.Tier,
		SustainabilityScore: req.SustainabilityScore,
		PracticesVerified:   req.PracticesVerified,
		CarbonFootprint:     req.CarbonFootprint,
		WaterEfficiency:     req.WaterEfficiency,
	}

	created, err := s.store.CreateCertificate(ctx, cert, meta, s.historyCap)
	if err != nil {
		return certificate.Certificate{}, s.reject("issue", err)
	}

	metrics.RecordCertificateTransition(metrics.TransitionIssued)
	s.log.WithField("certificate_id", created.ID).
		WithField("farm_id", created.FarmID).
		WithField("assessment_id", created.AssessmentID).
		WithField("tier", created.Tier.String()).
		Info("certificate issued")
	return created, nil
}

// Transfer hands the certificate to newOwner. Only the current owner may
// transfer. Validity is not checked: expired and revoked certificates remain
// transferable.
func (s *Service) Transfer(ctx context.Context, id certificate.ID, newOwner, caller auth.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.store.GetCertificateOwner(ctx, id)
	if err != nil {
		return s.reject("transfer", err)
	}
	if err := auth.Authorize(current, caller); err != nil {
		return s.reject("transfer", err)
	}
	if newOwner.IsZero() {
		return s.reject("transfer", apperrors.InvalidInput("new_owner", "is required"))
	}
	if err := s.store.TransferCertificate(ctx, id, current, newOwner); err != nil {
		return s.reject("transfer", err)
	}

	metrics.RecordCertificateTransition(metrics.TransitionTransferred)
	s.log.WithField("certificate_id", id).
		WithField("from", current.String()).
		WithField("to", newOwner.String()).
		Info("certificate transferred")
	return nil
}

// Renew points the certificate at a new assessment and restarts its validity
// window at now. Tier and owner are unchanged. Only the registry owner may
// renew, and only renewable, unrevoked certificates qualify. The store checks
// eligibility in the same write, so a revocation from another replica is
// never overwritten.
func (s *Service) Renew(ctx context.Context, id certificate.ID, newAssessmentID assessment.ID, caller auth.Principal, now uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := auth.Authorize(s.owner, caller); err != nil {
		return s.reject("renew", err)
	}
	expiresAt, err := assessment.ExpiryFrom(now)
	if err != nil {
		return s.reject("renew", err)
	}
	cert, err := s.store.RenewCertificate(ctx, id, newAssessmentID, now, expiresAt)
	if err != nil {
		return s.reject("renew", err)
	}

	metrics.RecordCertificateTransition(metrics.TransitionRenewed)
	s.log.WithField("certificate_id", id).
		WithField("assessment_id", newAssessmentID).
		WithField("expires_at", cert.ExpiresAt).
		Info("certificate renewed")
	return nil
}

// Revoke permanently invalidates the certificate. Revoking twice succeeds.
func (s *Service) Revoke(ctx context.Context, id certificate.ID, caller auth.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := auth.Authorize(s.owner, caller); err != nil {
		return s.reject("revoke", err)
	}
	changed, err := s.store.RevokeCertificate(ctx, id)
	if err != nil {
		return s.reject("revoke", err)
	}
	if !changed {
		return nil
	}

	metrics.RecordCertificateTransition(metrics.TransitionRevoked)
	s.log.WithField("certificate_id", id).Info("certificate revoked")
	return nil
}

// IsValid reports whether the certificate exists, is unexpired at now and is
// not revoked.
func (s *Service) IsValid(ctx context.Context, id certificate.ID, now uint64) bool {
	cert, err := s.store.GetCertificate(ctx, id)
	if err != nil {
		return false
	}
	return cert.ValidAt(now)
}

// Active returns the farm's currently valid certificate ids in issuance
// order.
func (s *Service) Active(ctx context.Context, farmID uint64, now uint64) ([]certificate.ID, error) {
	ids, err := s.store.ListCertificateIDs(ctx, farmID)
	if err != nil {
		return nil, err
	}
	active := make([]certificate.ID, 0, len(ids))
	for _, id := range ids {
		cert, err := s.store.GetCertificate(ctx, id)
		if err != nil {
			if apperrors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if cert.ValidAt(now) {
			active = append(active, id)
		}
	}
	return active, nil
}

// Get returns a certificate by id.
func (s *Service) Get(ctx context.Context, id certificate.ID) (certificate.Certificate, error) {
	return s.store.GetCertificate(ctx, id)
}

// Metadata returns the issuance snapshot of a certificate.
func (s *Service) Metadata(ctx context.Context, id certificate.ID) (certificate.Metadata, error) {
	return s.store.GetCertificateMetadata(ctx, id)
}

// Owner returns the current owner of a certificate.
func (s *Service) Owner(ctx context.Context, id certificate.ID) (auth.Principal, error) {
	return s.store.GetCertificateOwner(ctx, id)
}

// CertificateIDs returns every certificate id issued for farmID, in order.
func (s *Service) CertificateIDs(ctx context.Context, farmID uint64) ([]certificate.ID, error) {
	return s.store.ListCertificateIDs(ctx, farmID)
}

// NextID returns the id the next successful issuance will receive.
func (s *Service) NextID(ctx context.Context) (certificate.ID, error) {
	return s.store.NextCertificateID(ctx)
}

// Stats counts certificates by state at height now.
func (s *Service) Stats(ctx context.Context, now uint64) (certificate.Stats, error) {
	certs, err := s.store.ListCertificates(ctx)
	if err != nil {
		return certificate.Stats{}, err
	}
	return certificate.Tally(certs, now), nil
}

func (s *Service) reject(op string, err error) error {
	metrics.RecordRejection(op, string(apperrors.CodeOf(err)))
	s.log.WithError(err).WithField("operation", op).Debug("certificate operation rejected")
	return err
}
