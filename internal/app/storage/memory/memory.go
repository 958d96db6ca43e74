package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/R3E-Network/sustainability_layer/internal/app/auth"
	"github.com/R3E-Network/sustainability_layer/internal/app/domain/assessment"
	"github.com/R3E-Network/sustainability_layer/internal/app/domain/certificate"
	"github.com/R3E-Network/sustainability_layer/internal/app/storage"
	apperrors "github.com/R3E-Network/sustainability_layer/internal/errors"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is the default backend for tests and local runs.
type Store struct {
	mu sync.RWMutex

	nextAssessmentID  assessment.ID
	assessments       map[assessment.ID]assessment.Assessment
	farmAssessments   map[uint64][]assessment.ID
	farmMetrics       map[uint64]assessment.FarmMetrics
	nextCertificateID certificate.ID
	certificates      map[certificate.ID]certificate.Certificate
	metadata          map[certificate.ID]certificate.Metadata
	owners            map[certificate.ID]auth.Principal
	farmCertificates  map[uint64][]certificate.ID
}

var _ storage.AssessmentStore = (*Store)(nil)
var _ storage.CertificateStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextAssessmentID:  1,
		assessments:       make(map[assessment.ID]assessment.Assessment),
		farmAssessments:   make(map[uint64][]assessment.ID),
		farmMetrics:       make(map[uint64]assessment.FarmMetrics),
		nextCertificateID: 1,
		certificates:      make(map[certificate.ID]certificate.Certificate),
		metadata:          make(map[certificate.ID]certificate.Metadata),
		owners:            make(map[certificate.ID]auth.Principal),
		farmCertificates:  make(map[uint64][]certificate.ID),
	}
}

// AssessmentStore implementation ----------------------------------------------

func (s *Store) CreateAssessment(_ context.Context, a assessment.Assessment, historyCap int) (assessment.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.farmAssessments[a.FarmID]
	if historyCap > 0 && len(history) >= historyCap {
		return assessment.Assessment{}, apperrors.HistoryFull("assessments", a.FarmID, historyCap)
	}

	a.ID = s.nextAssessmentID
	s.nextAssessmentID++

	s.assessments[a.ID] = a
	s.farmAssessments[a.FarmID] = append(history, a.ID)
	return a, nil
}

func (s *Store) GetAssessment(_ context.Context, id assessment.ID) (assessment.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assessments[id]
	if !ok {
		return assessment.Assessment{}, apperrors.AssessmentNotFound(uint64(id))
	}
	return a, nil
}

func (s *Store) ListAssessmentIDs(_ context.Context, farmID uint64) ([]assessment.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]assessment.ID{}, s.farmAssessments[farmID]...), nil
}

func (s *Store) NextAssessmentID(_ context.Context) (assessment.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextAssessmentID, nil
}

func (s *Store) PutFarmMetrics(_ context.Context, m assessment.FarmMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.farmMetrics[m.FarmID] = m
	return nil
}

func (s *Store) GetFarmMetrics(_ context.Context, farmID uint64) (assessment.FarmMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.farmMetrics[farmID]
	if !ok {
		return assessment.FarmMetrics{}, apperrors.FarmNotFound(farmID)
	}
	return m, nil
}

// CertificateStore implementation ---------------------------------------------

func (s *Store) CreateCertificate(_ context.Context, cert certificate.Certificate, meta certificate.Metadata, historyCap int) (certificate.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.farmCertificates[cert.FarmID]
	if historyCap > 0 && len(history) >= historyCap {
		return certificate.Certificate{}, apperrors.HistoryFull("certificates", cert.FarmID, historyCap)
	}

	cert.ID = s.nextCertificateID
	s.nextCertificateID++

	meta.CertificateID = cert.ID

	s.certificates[cert.ID] = cert
	s.metadata[cert.ID] = meta
	s.owners[cert.ID] = cert.Issuer
	s.farmCertificates[cert.FarmID] = append(history, cert.ID)
	return cert, nil
}

func (s *Store) GetCertificate(_ context.Context, id certificate.ID) (certificate.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cert, ok := s.certificates[id]
	if !ok {
		return certificate.Certificate{}, apperrors.CertificateNotFound(uint64(id))
	}
	return cert, nil
}

func (s *Store) RenewCertificate(_ context.Context, id certificate.ID, assessmentID assessment.ID, issuedAt, expiresAt uint64) (certificate.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cert, ok := s.certificates[id]
	if !ok {
		return certificate.Certificate{}, apperrors.CertificateNotFound(uint64(id))
	}
	if err := cert.CheckRenewable(); err != nil {
		return certificate.Certificate{}, err
	}
	cert.AssessmentID = assessmentID
	cert.IssuedAt = issuedAt
	cert.ExpiresAt = expiresAt
	s.certificates[id] = cert
	return cert, nil
}

func (s *Store) RevokeCertificate(_ context.Context, id certificate.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cert, ok := s.certificates[id]
	if !ok {
		return false, apperrors.CertificateNotFound(uint64(id))
	}
	if cert.Revoked {
		return false, nil
	}
	cert.Revoked = true
	s.certificates[id] = cert
	return true, nil
}

func (s *Store) GetCertificateMetadata(_ context.Context, id certificate.ID) (certificate.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.metadata[id]
	if !ok {
		return certificate.Metadata{}, apperrors.CertificateNotFound(uint64(id))
	}
	return meta, nil
}

func (s *Store) ListCertificateIDs(_ context.Context, farmID uint64) ([]certificate.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]certificate.ID{}, s.farmCertificates[farmID]...), nil
}

func (s *Store) ListCertificates(_ context.Context) ([]certificate.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]certificate.Certificate, 0, len(s.certificates))
	for _, cert := range s.certificates {
		result = append(result, cert)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) NextCertificateID(_ context.Context) (certificate.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextCertificateID, nil
}

func (s *Store) GetCertificateOwner(_ context.Context, id certificate.ID) (auth.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owner, ok := s.owners[id]
	if !ok {
		return "", apperrors.CertificateNotFound(uint64(id))
	}
	return owner, nil
}

func (s *Store) TransferCertificate(_ context.Context, id certificate.ID, from, to auth.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.owners[id]
	if !ok {
		return apperrors.CertificateNotFound(uint64(id))
	}
	if err := auth.Authorize(current, from); err != nil {
		return err
	}
	s.owners[id] = to
	return nil
}
