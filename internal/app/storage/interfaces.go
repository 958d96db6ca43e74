// Package storage declares the persistence contracts used by the assessment
// and certification services. Implementations live in the memory, postgres
// and redis subpackages.
//
// Create operations allocate the next sequential id, write the record and
// append the id to the farm history as one atomic unit. A historyCap of zero
// disables the capacity check; otherwise a full history fails with
// HISTORY_FULL and nothing is written. Missing records are reported with the
// matching NOT_FOUND code and backend failures with STORAGE_ERROR.
//
// Certificate mutations check their precondition inside the write, so a
// lifecycle rule holds even when several processes share one backend.
package storage

import (
	"context"

	"github.com/R3E-Network/sustainability_layer/internal/app/auth"
	"github.com/R3E-Network/sustainability_layer/internal/app/domain/assessment"
	"github.com/R3E-Network/sustainability_layer/internal/app/domain/certificate"
)

// AssessmentStore persists assessments, per-farm assessment history and farm
// metrics.
type AssessmentStore interface {
	CreateAssessment(ctx context.Context, a assessment.Assessment, historyCap int) (assessment.Assessment, error)
	GetAssessment(ctx context.Context, id assessment.ID) (assessment.Assessment, error)
	ListAssessmentIDs(ctx context.Context, farmID uint64) ([]assessment.ID, error)
	NextAssessmentID(ctx context.Context) (assessment.ID, error)

	PutFarmMetrics(ctx context.Context, m assessment.FarmMetrics) error
	GetFarmMetrics(ctx context.Context, farmID uint64) (assessment.FarmMetrics, error)
}

// CertificateStore persists certificates, their metadata snapshots, owner
// mappings and per-farm certificate history. CreateCertificate records the
// issuer as the initial owner.
//
// RenewCertificate applies only to a renewable, unrevoked certificate and
// otherwise fails with the UNAUTHORIZED error of Certificate.CheckRenewable.
// RevokeCertificate reports whether the flag changed. TransferCertificate
// replaces the owner only while it still equals from, and fails with
// UNAUTHORIZED otherwise.
type CertificateStore interface {
	CreateCertificate(ctx context.Context, cert certificate.Certificate, meta certificate.Metadata, historyCap int) (certificate.Certificate, error)
	GetCertificate(ctx context.Context, id certificate.ID) (certificate.Certificate, error)
	RenewCertificate(ctx context.Context, id certificate.ID, assessmentID assessment.ID, issuedAt, expiresAt uint64) (certificate.Certificate, error)
	RevokeCertificate(ctx context.Context, id certificate.ID) (bool, error)
	GetCertificateMetadata(ctx context.Context, id certificate.ID) (certificate.Metadata, error)
	ListCertificateIDs(ctx context.Context, farmID uint64) ([]certificate.ID, error)
	ListCertificates(ctx context.Context) ([]certificate.Certificate, error)
	NextCertificateID(ctx context.Context) (certificate.ID, error)

	GetCertificateOwner(ctx context.Context, id certificate.ID) (auth.Principal, error)
	TransferCertificate(ctx context.Context, id certificate.ID, from, to auth.Principal) error
}
