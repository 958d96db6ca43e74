package certificate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/R3E-Network/sustainability_layer/internal/errors"
)

func TestValidAt(t *testing.T) {
	c := Certificate{IssuedAt: 10, ExpiresAt: 20}
	assert.True(t, c.ValidAt(19))
	assert.False(t, c.ValidAt(20))

	c.Revoked = true
	assert.False(t, c.ValidAt(11))
}

func TestTally(t *testing.T) {
	certs := []Certificate{
		{ID: 1, ExpiresAt: 100},
		{ID: 2, ExpiresAt: 100, Revoked: true},
		{ID: 3, ExpiresAt: 50},
		{ID: 4, ExpiresAt: 40, Revoked: true},
	}
	got := Tally(certs, 60)
	assert.Equal(t, Stats{Issued: 4, Active: 1, Revoked: 2, Expired: 1}, got)
}

func TestCheckRenewable(t *testing.T) {
	assert.NoError(t, Certificate{ID: 1, Renewable: true}.CheckRenewable())

	cases := []struct {
		name   string
		cert   Certificate
		reason string
	}{
		{"revoked", Certificate{ID: 2, Renewable: true, Revoked: true}, "certificate revoked"},
		{"not renewable", Certificate{ID: 3}, "certificate not renewable"},
		{"revoked wins", Certificate{ID: 4, Revoked: true}, "certificate revoked"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cert.CheckRenewable()
			assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
			se := apperrors.GetServiceError(err)
			require.NotNil(t, se)
			assert.Equal(t, tc.reason, se.Details["reason"])
		})
	}
}
