package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/lib/pq"

	"github.com/R3E-Network/sustainability_layer/internal/app/domain/assessment"
	"github.com/R3E-Network/sustainability_layer/internal/app/domain/certificate"
	apperrors "github.com/R3E-Network/sustainability_layer/internal/errors"
	"github.com/R3E-Network/sustainability_layer/internal/platform/migrations"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestCreateAssessmentAllocatesID(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT next_id FROM registry_counters").
		WithArgs(counterAssessments).
		WillReturnRows(sqlmock.NewRows([]string{"next_id"}).AddRow(4))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectExec("INSERT INTO assessments").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO farm_assessments").
		WithArgs(int64(9), int64(2), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE registry_counters").
		WithArgs(counterAssessments).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	a, err := store.CreateAssessment(context.Background(), assessment.Assessment{FarmID: 9, Tier: assessment.TierGold}, 20)
	if err != nil {
		t.Fatalf("create assessment: %v", err)
	}
	if a.ID != 4 {
		t.Fatalf("expected id 4, got %d", a.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateAssessmentHistoryFullRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT next_id FROM registry_counters").
		WillReturnRows(sqlmock.NewRows([]string{"next_id"}).AddRow(21))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(20))
	mock.ExpectRollback()

	_, err := store.CreateAssessment(context.Background(), assessment.Assessment{FarmID: 1}, 20)
	if !errors.Is(err, apperrors.ErrHistoryFull) {
		t.Fatalf("expected history full, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateCertificateWrapsBackendFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT next_id FROM registry_counters").
		WillReturnRows(sqlmock.NewRows([]string{"next_id"}).AddRow(1))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("INSERT INTO certificates").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := store.CreateCertificate(context.Background(), certificate.Certificate{FarmID: 1, Issuer: "registry"}, certificate.Metadata{}, 10)
	if !errors.Is(err, apperrors.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if se := apperrors.GetServiceError(err); se == nil || !se.Retryable() {
		t.Fatalf("expected retryable storage error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetCertificateNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM certificates WHERE id").WillReturnError(sql.ErrNoRows)

	if _, err := store.GetCertificate(context.Background(), 3); !errors.Is(err, apperrors.ErrCertificateNotFound) {
		t.Fatalf("expected certificate not found, got %v", err)
	}
}

func TestTransferCertificateMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE certificate_owners").
		WithArgs(int64(8), "registry", "buyer").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT owner FROM certificate_owners").WillReturnError(sql.ErrNoRows)

	if err := store.TransferCertificate(context.Background(), 8, "registry", "buyer"); !errors.Is(err, apperrors.ErrCertificateNotFound) {
		t.Fatalf("expected certificate not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTransferCertificateStaleOwner(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE certificate_owners").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT owner FROM certificate_owners").
		WillReturnRows(sqlmock.NewRows([]string{"owner"}).AddRow("buyer"))

	if err := store.TransferCertificate(context.Background(), 8, "registry", "thief"); !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func certificateRow(revoked, renewable bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "farm_id", "assessment_id", "tier", "issued_at", "expires_at",
		"issuer", "metadata_ref", "renewable", "revoked",
	}).AddRow(2, 1, 3, "gold", 100, 200, "registry", "", renewable, revoked)
}

func TestRenewCertificateGuardedByFlags(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`UPDATE certificates\s+SET assessment_id = \$2, issued_at = \$3, expires_at = \$4\s+WHERE id = \$1 AND renewable AND NOT revoked`).
		WithArgs(int64(2), int64(3), int64(100), int64(200)).
		WillReturnRows(certificateRow(false, true))

	cert, err := store.RenewCertificate(context.Background(), 2, 3, 100, 200)
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if cert.ExpiresAt != 200 || cert.AssessmentID != 3 {
		t.Fatalf("unexpected certificate %#v", cert)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRenewRevokedCertificateReportsReason(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("UPDATE certificates").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("FROM certificates WHERE id").WillReturnRows(certificateRow(true, true))

	_, err := store.RenewCertificate(context.Background(), 2, 3, 100, 200)
	if !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if se := apperrors.GetServiceError(err); se.Details["reason"] != "certificate revoked" {
		t.Fatalf("unexpected reason %v", se.Details["reason"])
	}
}

func TestRenewMissingCertificate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("UPDATE certificates").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("FROM certificates WHERE id").WillReturnError(sql.ErrNoRows)

	if _, err := store.RenewCertificate(context.Background(), 2, 3, 100, 200); !errors.Is(err, apperrors.ErrCertificateNotFound) {
		t.Fatalf("expected certificate not found, got %v", err)
	}
}

func TestRevokeCertificate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE certificates SET revoked = TRUE WHERE id = \$1 AND NOT revoked`).
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE certificates SET revoked").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("UPDATE certificates SET revoked").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	ctx := context.Background()
	if changed, err := store.RevokeCertificate(ctx, 4); err != nil || !changed {
		t.Fatalf("first revoke: changed=%v err=%v", changed, err)
	}
	if changed, err := store.RevokeCertificate(ctx, 4); err != nil || changed {
		t.Fatalf("second revoke: changed=%v err=%v", changed, err)
	}
	if _, err := store.RevokeCertificate(ctx, 5); !errors.Is(err, apperrors.ErrCertificateNotFound) {
		t.Fatalf("expected certificate not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetCertificateMetadata(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{
		"certificate_id", "farm_name", "tier", "sustainability_score",
		"practices_verified", "carbon_footprint", "water_efficiency",
	}).AddRow(1, "north field", "gold", 81, 2, 12, 90)
	mock.ExpectQuery("FROM certificate_metadata").WillReturnRows(rows)

	meta, err := store.GetCertificateMetadata(context.Background(), 1)
	if err != nil {
		t.Fatalf("get metadata: %v", err)
	}
	if meta.Tier != assessment.TierGold || meta.PracticesVerified != 2 || meta.FarmName != "north field" {
		t.Fatalf("unexpected metadata %#v", meta)
	}
}

func TestListAssessmentIDsOrdered(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM farm_assessments").
		WillReturnRows(sqlmock.NewRows([]string{"assessment_id"}).AddRow(1).AddRow(3))

	ids, err := store.ListAssessmentIDs(context.Background(), 5)
	if err != nil {
		t.Fatalf("list ids: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := migrations.Apply(ctx, db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	store := New(db)
	farmID := uint64(os.Getpid())

	a, err := store.CreateAssessment(ctx, assessment.Assessment{
		FarmID:       farmID,
		Scores:       assessment.Scores{Water: 80, Energy: 90, Chemical: 70, Organic: 85, Biodiversity: 75},
		OverallScore: 81,
		Tier:         assessment.TierGold,
		Assessor:     "assessor",
		ValidUntil:   assessment.ValidityPeriod,
	}, 0)
	if err != nil {
		t.Fatalf("create assessment: %v", err)
	}
	got, err := store.GetAssessment(ctx, a.ID)
	if err != nil {
		t.Fatalf("get assessment: %v", err)
	}
	if got.Tier != assessment.TierGold || got.Water != 80 {
		t.Fatalf("unexpected assessment %#v", got)
	}

	cert, err := store.CreateCertificate(ctx, certificate.Certificate{
		FarmID:       farmID,
		AssessmentID: a.ID,
		Tier:         assessment.TierGold,
		Issuer:       "registry",
		Renewable:    true,
		ExpiresAt:    assessment.ValidityPeriod,
	}, certificate.Metadata{FarmName: "integration", PracticesVerified: 1}, 0)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	if err := store.TransferCertificate(ctx, cert.ID, "registry", "buyer"); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	owner, err := store.GetCertificateOwner(ctx, cert.ID)
	if err != nil || owner != "buyer" {
		t.Fatalf("unexpected owner %q err=%v", owner, err)
	}

	if _, err := store.RenewCertificate(ctx, cert.ID, a.ID, 10, 10+assessment.ValidityPeriod); err != nil {
		t.Fatalf("renew: %v", err)
	}
	if changed, err := store.RevokeCertificate(ctx, cert.ID); err != nil || !changed {
		t.Fatalf("revoke: changed=%v err=%v", changed, err)
	}
	if _, err := store.RenewCertificate(ctx, cert.ID, a.ID, 20, 20+assessment.ValidityPeriod); !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized renewal after revoke, got %v", err)
	}
	stored, err := store.GetCertificate(ctx, cert.ID)
	if err != nil || !stored.Revoked || stored.IssuedAt != 10 {
		t.Fatalf("unexpected certificate %#v err=%v", stored, err)
	}
}
