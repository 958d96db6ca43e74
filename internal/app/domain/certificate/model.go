package certificate

import (
	"github.com/R3E-Network/sustainability_layer/internal/app/auth"
	"github.com/R3E-Network/sustainability_layer/internal/app/domain/assessment"
	apperrors "github.com/R3E-Network/sustainability_layer/internal/errors"
)

// ID identifies a certificate. Ids start at 1 and are never reused.
type ID uint64

// Certificate is a time-bounded attestation that a farm reached a tier.
type Certificate struct {
	ID           ID              `json:"id" db:"id"`
	FarmID       uint64          `json:"farm_id" db:"farm_id"`
	AssessmentID assessment.ID   `json:"assessment_id" db:"assessment_id"`
	Tier         assessment.Tier `json:"tier" db:"tier"`
	IssuedAt     uint64          `json:"issued_at" db:"issued_at"`
	ExpiresAt    uint64          `json:"expires_at" db:"expires_at"`
	Issuer       auth.Principal  `json:"issuer" db:"issuer"`
	MetadataRef  string          `json:"metadata_ref" db:"metadata_ref"`
	Renewable    bool            `json:"renewable" db:"renewable"`
	Revoked      bool            `json:"revoked" db:"revoked"`
}

// ValidAt reports whether the certificate is unexpired and not revoked.
func (c Certificate) ValidAt(now uint64) bool {
	return c.ExpiresAt > now && !c.Revoked
}

// ExpiredAt reports whether the certificate has passed its expiry, regardless
// of revocation.
func (c Certificate) ExpiredAt(now uint64) bool {
	return c.ExpiresAt <= now
}

// CheckRenewable returns UNAUTHORIZED when c is revoked or not renewable. The
// reason detail says which.
func (c Certificate) CheckRenewable() error {
	switch {
	case c.Revoked:
		return apperrors.Unauthorized("certificate revoked").WithDetails("certificate_id", uint64(c.ID))
	case !c.Renewable:
		return apperrors.Unauthorized("certificate not renewable").WithDetails("certificate_id", uint64(c.ID))
	}
	return nil
}

// Metadata is the descriptive snapshot recorded at issuance. It is never
// updated afterwards.
type Metadata struct {
	CertificateID       ID              `json:"certificate_id" db:"certificate_id"`
	FarmName            string          `json:"farm_name" db:"farm_name"`
	Tier                assessment.Tier `json:"tier" db:"tier"`
	SustainabilityScore int             `json:"sustainability_score" db:"sustainability_score"`
	PracticesVerified   uint32          `json:"practices_verified" db:"practices_verified"`
	CarbonFootprint     uint64          `json:"carbon_footprint" db:"carbon_footprint"`
	WaterEfficiency     uint64          `json:"water_efficiency" db:"water_efficiency"`
}

// IssueRequest carries everything needed to issue one certificate.
type IssueRequest struct {
	FarmID              uint64          `json:"farm_id"`
	AssessmentID        assessment.ID   `json:"assessment_id"`
	Tier                assessment.Tier `json:"tier"`
	MetadataRef         string          `json:"metadata_ref"`
	FarmName            string          `json:"farm_name"`
	SustainabilityScore int             `json:"sustainability_score"`
	PracticesVerified   uint32          `json:"practices_verified"`
	CarbonFootprint     uint64          `json:"carbon_footprint"`
	WaterEfficiency     uint64          `json:"water_efficiency"`
}

// IssueResult is the outcome of one request in a batch. Err is nil on success.
type IssueResult struct {
	Index       int
	Certificate Certificate
	Err         error
}

// Stats summarises registry state at a given height. Active, Revoked and
// Expired are disjoint; a revoked certificate is counted as revoked even once
// expired.
type Stats struct {
	Issued  int `json:"issued"`
	Active  int `json:"active"`
	Revoked int `json:"revoked"`
	Expired int `json:"expired"`
}

// Tally builds stats for the given certificates at height now.
func Tally(certs []Certificate, now uint64) Stats {
	stats := Stats{Issued: len(certs)}
	for _, c := range certs {
		switch {
		case c.Revoked:
			stats.Revoked++
		case c.ExpiredAt(now):
			stats.Expired++
		default:
			stats.Active++
		}
	}
	return stats
}
