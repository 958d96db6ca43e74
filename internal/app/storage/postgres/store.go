package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/R3E-Network/sustainability_layer/internal/app/auth"
	"github.com/R3E-Network/sustainability_layer/internal/app/domain/assessment"
	"github.com/R3E-Network/sustainability_layer/internal/app/domain/certificate"
	"github.com/R3E-Network/sustainability_layer/internal/app/storage"
	apperrors "github.com/R3E-Network/sustainability_layer/internal/errors"
)

const (
	counterAssessments  = "assessments"
	counterCertificates = "certificates"
)

// Store implements the storage interfaces backed by PostgreSQL. Creates run in
// a transaction that locks the counter row, so id allocation, the record
// insert and the history append commit or roll back together.
type Store struct {
	db *sqlx.DB
}

var _ storage.AssessmentStore = (*Store)(nil)
var _ storage.CertificateStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.Storage(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		if apperrors.GetServiceError(err) != nil {
			return err
		}
		return apperrors.Storage(op, err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Storage(op, err)
	}
	return nil
}

// lockCounter reads and row-locks the named counter, returning the id to
// allocate and the current history length for farmID in historyTable.
func lockCounter(ctx context.Context, tx *sqlx.Tx, counter, historyTable string, farmID uint64) (uint64, int, error) {
	var next uint64
	if err := tx.GetContext(ctx, &next, `
		SELECT next_id FROM registry_counters WHERE name = $1 FOR UPDATE
	`, counter); err != nil {
		return 0, 0, err
	}
	var length int
	if err := tx.GetContext(ctx, &length, `
		SELECT COUNT(*) FROM `+historyTable+` WHERE farm_id = $1
	`, farmID); err != nil {
		return 0, 0, err
	}
	return next, length, nil
}

func advanceCounter(ctx context.Context, tx *sqlx.Tx, counter string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE registry_counters SET next_id = next_id + 1 WHERE name = $1
	`, counter)
	return err
}

func peekCounter(ctx context.Context, db *sqlx.DB, counter string) (uint64, error) {
	var next uint64
	if err := db.GetContext(ctx, &next, `
		SELECT next_id FROM registry_counters WHERE name = $1
	`, counter); err != nil {
		return 0, err
	}
	return next, nil
}

// --- AssessmentStore --------------------------------------------------------

func (s *Store) CreateAssessment(ctx context.Context, a assessment.Assessment, historyCap int) (assessment.Assessment, error) {
	err := s.withTx(ctx, "create assessment", func(tx *sqlx.Tx) error {
		next, length, err := lockCounter(ctx, tx, counterAssessments, "farm_assessments", a.FarmID)
		if err != nil {
			return err
		}
		if historyCap > 0 && length >= historyCap {
			return apperrors.HistoryFull("assessments", a.FarmID, historyCap)
		}
		a.ID = assessment.ID(next)

		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO assessments (
				id, farm_id, created_at,
				water_score, energy_score, chemical_score, organic_score, biodiversity_score,
				overall_score, tier, assessor, valid_until
			) VALUES (
				:id, :farm_id, :created_at,
				:water_score, :energy_score, :chemical_score, :organic_score, :biodiversity_score,
				:overall_score, :tier, :assessor, :valid_until
			)
		`, a); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO farm_assessments (farm_id, position, assessment_id)
			VALUES ($1, $2, $3)
		`, a.FarmID, length, a.ID); err != nil {
			return err
		}
		return advanceCounter(ctx, tx, counterAssessments)
	})
	if err != nil {
		return assessment.Assessment{}, err
	}
	return a, nil
}

func (s *Store) GetAssessment(ctx context.Context, id assessment.ID) (assessment.Assessment, error) {
	var a assessment.Assessment
	err := s.db.GetContext(ctx, &a, `
		SELECT id, farm_id, created_at,
			water_score, energy_score, chemical_score, organic_score, biodiversity_score,
			overall_score, tier, assessor, valid_until
		FROM assessments
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return assessment.Assessment{}, apperrors.AssessmentNotFound(uint64(id))
	}
	if err != nil {
		return assessment.Assessment{}, apperrors.Storage("get assessment", err)
	}
	return a, nil
}

func (s *Store) ListAssessmentIDs(ctx context.Context, farmID uint64) ([]assessment.ID, error) {
	ids := []assessment.ID{}
	if err := s.db.SelectContext(ctx, &ids, `
		SELECT assessment_id FROM farm_assessments
		WHERE farm_id = $1
		ORDER BY position
	`, farmID); err != nil {
		return nil, apperrors.Storage("list assessment ids", err)
	}
	return ids, nil
}

func (s *Store) NextAssessmentID(ctx context.Context) (assessment.ID, error) {
	next, err := peekCounter(ctx, s.db, counterAssessments)
	if err != nil {
		return 0, apperrors.Storage("next assessment id", err)
	}
	return assessment.ID(next), nil
}

func (s *Store) PutFarmMetrics(ctx context.Context, m assessment.FarmMetrics) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO farm_metrics (
			farm_id, total_water, total_energy, total_chemical, organic_count, total_count, farm_size
		) VALUES (
			:farm_id, :total_water, :total_energy, :total_chemical, :organic_count, :total_count, :farm_size
		)
		ON CONFLICT (farm_id) DO UPDATE SET
			total_water = EXCLUDED.total_water,
			total_energy = EXCLUDED.total_energy,
			total_chemical = EXCLUDED.total_chemical,
			organic_count = EXCLUDED.organic_count,
			total_count = EXCLUDED.total_count,
			farm_size = EXCLUDED.farm_size
	`, m)
	if err != nil {
		return apperrors.Storage("put farm metrics", err)
	}
	return nil
}

func (s *Store) GetFarmMetrics(ctx context.Context, farmID uint64) (assessment.FarmMetrics, error) {
	var m assessment.FarmMetrics
	err := s.db.GetContext(ctx, &m, `
		SELECT farm_id, total_water, total_energy, total_chemical, organic_count, total_count, farm_size
		FROM farm_metrics
		WHERE farm_id = $1
	`, farmID)
	if errors.Is(err, sql.ErrNoRows) {
		return assessment.FarmMetrics{}, apperrors.FarmNotFound(farmID)
	}
	if err != nil {
		return assessment.FarmMetrics{}, apperrors.Storage("get farm metrics", err)
	}
	return m, nil
}

// --- CertificateStore -------------------------------------------------------

func (s *Store) CreateCertificate(ctx context.Context, cert certificate.Certificate, meta certificate.Metadata, historyCap int) (certificate.Certificate, error) {
	err := s.withTx(ctx, "create certificate", func(tx *sqlx.Tx) error {
		next, length, err := lockCounter(ctx, tx, counterCertificates, "farm_certificates", cert.FarmID)
		if err != nil {
			return err
		}
		if historyCap > 0 && length >= historyCap {
			return apperrors.HistoryFull("certificates", cert.FarmID, historyCap)
		}
		cert.ID = certificate.ID(next)
		meta.CertificateID = cert.ID

		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO certificates (
				id, farm_id, assessment_id, tier, issued_at, expires_at,
				issuer, metadata_ref, renewable, revoked
			) VALUES (
				:id, :farm_id, :assessment_id, :tier, :issued_at, :expires_at,
				:issuer, :metadata_ref, :renewable, :revoked
			)
		`, cert); err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO certificate_metadata (
				certificate_id, farm_name, tier, sustainability_score,
				practices_verified, carbon_footprint, water_efficiency
			) VALUES (
				:certificate_id, :farm_name, :tier, :sustainability_score,
				:practices_verified, :carbon_footprint, :water_efficiency
			)
		`, meta); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO certificate_owners (certificate_id, owner) VALUES ($1, $2)
		`, cert.ID, cert.Issuer); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO farm_certificates (farm_id, position, certificate_id)
			VALUES ($1, $2, $3)
		`, cert.FarmID, length, cert.ID); err != nil {
			return err
		}
		return advanceCounter(ctx, tx, counterCertificates)
	})
	if err != nil {
		return certificate.Certificate{}, err
	}
	return cert, nil
}

const certificateColumns = `
	id, farm_id, assessment_id, tier, issued_at, expires_at,
	issuer, metadata_ref, renewable, revoked
`

func (s *Store) GetCertificate(ctx context.Context, id certificate.ID) (certificate.Certificate, error) {
	var cert certificate.Certificate
	err := s.db.GetContext(ctx, &cert, `SELECT `+certificateColumns+` FROM certificates WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return certificate.Certificate{}, apperrors.CertificateNotFound(uint64(id))
	}
	if err != nil {
		return certificate.Certificate{}, apperrors.Storage("get certificate", err)
	}
	return cert, nil
}

// RenewCertificate updates the row only while it is renewable and unrevoked.
// When nothing matches, the current row is read to report why.
func (s *Store) RenewCertificate(ctx context.Context, id certificate.ID, assessmentID assessment.ID, issuedAt, expiresAt uint64) (certificate.Certificate, error) {
	var cert certificate.Certificate
	err := s.db.GetContext(ctx, &cert, `
		UPDATE certificates
		SET assessment_id = $2, issued_at = $3, expires_at = $4
		WHERE id = $1 AND renewable AND NOT revoked
		RETURNING `+certificateColumns, id, assessmentID, issuedAt, expiresAt)
	if err == nil {
		return cert, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return certificate.Certificate{}, apperrors.Storage("renew certificate", err)
	}

	current, err := s.GetCertificate(ctx, id)
	if err != nil {
		return certificate.Certificate{}, err
	}
	if err := current.CheckRenewable(); err != nil {
		return certificate.Certificate{}, err
	}
	// Neither flag ever becomes eligible again, so an eligible row here was
	// inserted after the update ran.
	return certificate.Certificate{}, apperrors.Storage("renew certificate", fmt.Errorf("certificate %d changed during renewal", id))
}

func (s *Store) RevokeCertificate(ctx context.Context, id certificate.ID) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE certificates SET revoked = TRUE WHERE id = $1 AND NOT revoked
	`, id)
	if err != nil {
		return false, apperrors.Storage("revoke certificate", err)
	}
	if rows, _ := result.RowsAffected(); rows > 0 {
		return true, nil
	}

	var exists bool
	if err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM certificates WHERE id = $1)
	`, id); err != nil {
		return false, apperrors.Storage("revoke certificate", err)
	}
	if !exists {
		return false, apperrors.CertificateNotFound(uint64(id))
	}
	return false, nil
}

func (s *Store) GetCertificateMetadata(ctx context.Context, id certificate.ID) (certificate.Metadata, error) {
	var meta certificate.Metadata
	err := s.db.GetContext(ctx, &meta, `
		SELECT certificate_id, farm_name, tier, sustainability_score,
			practices_verified, carbon_footprint, water_efficiency
		FROM certificate_metadata
		WHERE certificate_id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return certificate.Metadata{}, apperrors.CertificateNotFound(uint64(id))
	}
	if err != nil {
		return certificate.Metadata{}, apperrors.Storage("get certificate metadata", err)
	}
	return meta, nil
}

func (s *Store) ListCertificateIDs(ctx context.Context, farmID uint64) ([]certificate.ID, error) {
	ids := []certificate.ID{}
	if err := s.db.SelectContext(ctx, &ids, `
		SELECT certificate_id FROM farm_certificates
		WHERE farm_id = $1
		ORDER BY position
	`, farmID); err != nil {
		return nil, apperrors.Storage("list certificate ids", err)
	}
	return ids, nil
}

func (s *Store) ListCertificates(ctx context.Context) ([]certificate.Certificate, error) {
	var certs []certificate.Certificate
	if err := s.db.SelectContext(ctx, &certs, `SELECT `+certificateColumns+` FROM certificates ORDER BY id`); err != nil {
		return nil, apperrors.Storage("list certificates", err)
	}
	return certs, nil
}

func (s *Store) NextCertificateID(ctx context.Context) (certificate.ID, error) {
	next, err := peekCounter(ctx, s.db, counterCertificates)
	if err != nil {
		return 0, apperrors.Storage("next certificate id", err)
	}
	return certificate.ID(next), nil
}

func (s *Store) GetCertificateOwner(ctx context.Context, id certificate.ID) (auth.Principal, error) {
	var owner auth.Principal
	err := s.db.GetContext(ctx, &owner, `
		SELECT owner FROM certificate_owners WHERE certificate_id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.CertificateNotFound(uint64(id))
	}
	if err != nil {
		return "", apperrors.Storage("get certificate owner", err)
	}
	return owner, nil
}

// TransferCertificate swaps the owner only while it still equals from.
func (s *Store) TransferCertificate(ctx context.Context, id certificate.ID, from, to auth.Principal) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE certificate_owners SET owner = $3 WHERE certificate_id = $1 AND owner = $2
	`, id, from, to)
	if err != nil {
		return apperrors.Storage("transfer certificate", err)
	}
	if rows, _ := result.RowsAffected(); rows > 0 {
		return nil
	}

	current, err := s.GetCertificateOwner(ctx, id)
	if err != nil {
		return err
	}
	if err := auth.Authorize(current, from); err != nil {
		return err
	}
	return apperrors.Storage("transfer certificate", fmt.Errorf("certificate %d owner changed during transfer", id))
}
