package assessment

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Tier is the certification level derived from an overall score. Tiers are
// ordered: a higher value is a better tier.
type Tier uint8

const (
	TierBasic Tier = iota
	TierBronze
	TierSilver
	TierGold
	TierPlatinum
)

// String returns the lower-case tier name.
func (t Tier) String() string {
	switch t {
	case TierBasic:
		return "basic"
	case TierBronze:
		return "bronze"
	case TierSilver:
		return "silver"
	case TierGold:
		return "gold"
	case TierPlatinum:
		return "platinum"
	default:
		return fmt.Sprintf("tier(%d)", t)
	}
}

// Valid reports whether t is one of the defined tiers.
func (t Tier) Valid() bool { return t <= TierPlatinum }

// ParseTier converts a tier name to a Tier.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "basic":
		return TierBasic, nil
	case "bronze":
		return TierBronze, nil
	case "silver":
		return TierSilver, nil
	case "gold":
		return TierGold, nil
	case "platinum":
		return TierPlatinum, nil
	default:
		return TierBasic, fmt.Errorf("unknown tier %q", s)
	}
}

// MarshalJSON implements json.Marshaler.
func (t Tier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Tier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTier(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Value implements driver.Valuer; tiers are stored by name.
func (t Tier) Value() (driver.Value, error) {
	return t.String(), nil
}

// Scan implements sql.Scanner.
func (t *Tier) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot scan %T into Tier", src)
	}
	parsed, err := ParseTier(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
