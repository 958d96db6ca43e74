// Package redis implements the storage interfaces on top of Redis. Records are
// JSON strings, farm histories are lists and id counters are plain integers.
// Creates run as Lua scripts so the capacity check, id allocation, record
// write and history append are applied atomically. Certificate updates are
// compare-and-swap scripts on a single key, retried when another writer got
// there first.
//
// Every key starts with the prefix wrapped in a hash tag ("{prefix}:..."), so
// all of a store's keys map to one cluster slot. The create scripts write
// record keys derived from the allocated id, which cannot be declared up
// front; the shared slot keeps them on the node that runs the script.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/R3E-Network/sustainability_layer/internal/app/auth"
	"github.com/R3E-Network/sustainability_layer/internal/app/domain/assessment"
	"github.com/R3E-Network/sustainability_layer/internal/app/domain/certificate"
	"github.com/R3E-Network/sustainability_layer/internal/app/storage"
	apperrors "github.com/R3E-Network/sustainability_layer/internal/errors"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "sustainability"

// historyFull is the script result for a farm history at capacity.
const historyFull = -1

// Results of swapScript.
const (
	swapMissing  = 0
	swapApplied  = 1
	swapConflict = -1
)

// maxSwapAttempts bounds the retries of a compare-and-swap update.
const maxSwapAttempts = 16

// errSwapContention is returned when every swap attempt lost a race.
var errSwapContention = errors.New("concurrent update contention")

// KEYS[1] counter, KEYS[2] farm history.
// ARGV[1] capacity, ARGV[2] record key prefix, ARGV[3] record.
var createAssessmentScript = redis.NewScript(`
local cap = tonumber(ARGV[1])
if cap > 0 and redis.call('LLEN', KEYS[2]) >= cap then
	return -1
end
local id = redis.call('INCR', KEYS[1])
redis.call('SET', ARGV[2] .. id, ARGV[3])
redis.call('RPUSH', KEYS[2], id)
return id
`)

// KEYS[1] counter, KEYS[2] farm history.
// ARGV[1] capacity, ARGV[2] record key prefix, ARGV[3] record,
// ARGV[4] metadata, ARGV[5] owner.
var createCertificateScript = redis.NewScript(`
local cap = tonumber(ARGV[1])
if cap > 0 and redis.call('LLEN', KEYS[2]) >= cap then
	return -1
end
local id = redis.call('INCR', KEYS[1])
local key = ARGV[2] .. id
redis.call('SET', key, ARGV[3])
redis.call('SET', key .. ':metadata', ARGV[4])
redis.call('SET', key .. ':owner', ARGV[5])
redis.call('RPUSH', KEYS[2], id)
return id
`)

// KEYS[1] record. ARGV[1] expected value, ARGV[2] replacement.
var swapScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
	return 0
end
if current ~= ARGV[1] then
	return -1
end
redis.call('SET', KEYS[1], ARGV[2])
return 1
`)

// Config holds connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Store implements the storage interfaces backed by Redis.
type Store struct {
	client redis.UniversalClient
	prefix string
}

var _ storage.AssessmentStore = (*Store)(nil)
var _ storage.CertificateStore = (*Store)(nil)

// New wraps an existing client. An empty prefix selects DefaultPrefix.
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Open dials Redis and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return New(client, cfg.Prefix), nil
}

// Close releases the underlying client.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) key(parts ...string) string {
	k := "{" + s.prefix + "}"
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (s *Store) counterKey(name string) string { return s.key("counter", name) }

func (s *Store) assessmentKey(id assessment.ID) string {
	return s.key("assessment", strconv.FormatUint(uint64(id), 10))
}

func (s *Store) certificateKey(id certificate.ID) string {
	return s.key("certificate", strconv.FormatUint(uint64(id), 10))
}

func (s *Store) farmKey(farmID uint64, collection string) string {
	return s.key("farm", strconv.FormatUint(farmID, 10), collection)
}

func (s *Store) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) peekCounter(ctx context.Context, name string) (uint64, error) {
	n, err := s.client.Get(ctx, s.counterKey(name)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return n + 1, nil
}

func (s *Store) listIDs(ctx context.Context, key string) ([]uint64, error) {
	raw, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(raw))
	for _, r := range raw {
		id, err := strconv.ParseUint(r, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse history entry %q: %w", r, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// --- AssessmentStore --------------------------------------------------------

func (s *Store) CreateAssessment(ctx context.Context, a assessment.Assessment, historyCap int) (assessment.Assessment, error) {
	record, err := json.Marshal(a)
	if err != nil {
		return assessment.Assessment{}, apperrors.Storage("encode assessment", err)
	}
	id, err := createAssessmentScript.Run(ctx, s.client,
		[]string{s.counterKey("assessments"), s.farmKey(a.FarmID, "assessments")},
		historyCap, s.key("assessment")+":", record,
	).Int64()
	if err != nil {
		return assessment.Assessment{}, apperrors.Storage("create assessment", err)
	}
	if id == historyFull {
		return assessment.Assessment{}, apperrors.HistoryFull("assessments", a.FarmID, historyCap)
	}
	a.ID = assessment.ID(id)
	return a, nil
}

func (s *Store) GetAssessment(ctx context.Context, id assessment.ID) (assessment.Assessment, error) {
	var a assessment.Assessment
	found, err := s.getJSON(ctx, s.assessmentKey(id), &a)
	if err != nil {
		return assessment.Assessment{}, apperrors.Storage("get assessment", err)
	}
	if !found {
		return assessment.Assessment{}, apperrors.AssessmentNotFound(uint64(id))
	}
	a.ID = id
	return a, nil
}

func (s *Store) ListAssessmentIDs(ctx context.Context, farmID uint64) ([]assessment.ID, error) {
	raw, err := s.listIDs(ctx, s.farmKey(farmID, "assessments"))
	if err != nil {
		return nil, apperrors.Storage("list assessment ids", err)
	}
	ids := make([]assessment.ID, len(raw))
	for i, id := range raw {
		ids[i] = assessment.ID(id)
	}
	return ids, nil
}

func (s *Store) NextAssessmentID(ctx context.Context) (assessment.ID, error) {
	next, err := s.peekCounter(ctx, "assessments")
	if err != nil {
		return 0, apperrors.Storage("next assessment id", err)
	}
	return assessment.ID(next), nil
}

func (s *Store) PutFarmMetrics(ctx context.Context, m assessment.FarmMetrics) error {
	record, err := json.Marshal(m)
	if err != nil {
		return apperrors.Storage("encode farm metrics", err)
	}
	if err := s.client.Set(ctx, s.farmKey(m.FarmID, "metrics"), record, 0).Err(); err != nil {
		return apperrors.Storage("put farm metrics", err)
	}
	return nil
}

func (s *Store) GetFarmMetrics(ctx context.Context, farmID uint64) (assessment.FarmMetrics, error) {
	var m assessment.FarmMetrics
	found, err := s.getJSON(ctx, s.farmKey(farmID, "metrics"), &m)
	if err != nil {
		return assessment.FarmMetrics{}, apperrors.Storage("get farm metrics", err)
	}
	if !found {
		return assessment.FarmMetrics{}, apperrors.FarmNotFound(farmID)
	}
	return m, nil
}

// --- CertificateStore -------------------------------------------------------

func (s *Store) CreateCertificate(ctx context.Context, cert certificate.Certificate, meta certificate.Metadata, historyCap int) (certificate.Certificate, error) {
	record, err := json.Marshal(cert)
	if err != nil {
		return certificate.Certificate{}, apperrors.Storage("encode certificate", err)
	}
	metaRecord, err := json.Marshal(meta)
	if err != nil {
		return certificate.Certificate{}, apperrors.Storage("encode certificate metadata", err)
	}
	id, err := createCertificateScript.Run(ctx, s.client,
		[]string{s.counterKey("certificates"), s.farmKey(cert.FarmID, "certificates")},
		historyCap, s.key("certificate")+":", record, metaRecord, cert.Issuer.String(),
	).Int64()
	if err != nil {
		return certificate.Certificate{}, apperrors.Storage("create certificate", err)
	}
	if id == historyFull {
		return certificate.Certificate{}, apperrors.HistoryFull("certificates", cert.FarmID, historyCap)
	}
	cert.ID = certificate.ID(id)
	return cert, nil
}

func (s *Store) GetCertificate(ctx context.Context, id certificate.ID) (certificate.Certificate, error) {
	var cert certificate.Certificate
	found, err := s.getJSON(ctx, s.certificateKey(id), &cert)
	if err != nil {
		return certificate.Certificate{}, apperrors.Storage("get certificate", err)
	}
	if !found {
		return certificate.Certificate{}, apperrors.CertificateNotFound(uint64(id))
	}
	cert.ID = id
	return cert, nil
}

// swap rewrites key with the value returned by update, retrying while other
// writers change the key in between. update sees the current value and
// returns the replacement, or write=false to leave the key alone.
func (s *Store) swap(ctx context.Context, op, key string, notFound error, update func(current string) (next string, write bool, err error)) (bool, error) {
	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		current, err := s.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return false, notFound
		}
		if err != nil {
			return false, apperrors.Storage(op, err)
		}

		next, write, err := update(current)
		if err != nil || !write {
			return false, err
		}

		res, err := swapScript.Run(ctx, s.client, []string{key}, current, next).Int64()
		if err != nil {
			return false, apperrors.Storage(op, err)
		}
		switch res {
		case swapApplied:
			return true, nil
		case swapMissing:
			return false, notFound
		}
	}
	return false, apperrors.Storage(op, errSwapContention)
}

func (s *Store) RenewCertificate(ctx context.Context, id certificate.ID, assessmentID assessment.ID, issuedAt, expiresAt uint64) (certificate.Certificate, error) {
	var renewed certificate.Certificate
	_, err := s.swap(ctx, "renew certificate", s.certificateKey(id), apperrors.CertificateNotFound(uint64(id)),
		func(current string) (string, bool, error) {
			var cert certificate.Certificate
			if err := json.Unmarshal([]byte(current), &cert); err != nil {
				return "", false, apperrors.Storage("decode certificate", err)
			}
			cert.ID = id
			if err := cert.CheckRenewable(); err != nil {
				return "", false, err
			}
			cert.AssessmentID = assessmentID
			cert.IssuedAt = issuedAt
			cert.ExpiresAt = expiresAt
			record, err := json.Marshal(cert)
			if err != nil {
				return "", false, apperrors.Storage("encode certificate", err)
			}
			renewed = cert
			return string(record), true, nil
		})
	if err != nil {
		return certificate.Certificate{}, err
	}
	return renewed, nil
}

func (s *Store) RevokeCertificate(ctx context.Context, id certificate.ID) (bool, error) {
	return s.swap(ctx, "revoke certificate", s.certificateKey(id), apperrors.CertificateNotFound(uint64(id)),
		func(current string) (string, bool, error) {
			var cert certificate.Certificate
			if err := json.Unmarshal([]byte(current), &cert); err != nil {
				return "", false, apperrors.Storage("decode certificate", err)
			}
			if cert.Revoked {
				return "", false, nil
			}
			cert.ID = id
			cert.Revoked = true
			record, err := json.Marshal(cert)
			if err != nil {
				return "", false, apperrors.Storage("encode certificate", err)
			}
			return string(record), true, nil
		})
}

func (s *Store) GetCertificateMetadata(ctx context.Context, id certificate.ID) (certificate.Metadata, error) {
	var meta certificate.Metadata
	found, err := s.getJSON(ctx, s.certificateKey(id)+":metadata", &meta)
	if err != nil {
		return certificate.Metadata{}, apperrors.Storage("get certificate metadata", err)
	}
	if !found {
		return certificate.Metadata{}, apperrors.CertificateNotFound(uint64(id))
	}
	meta.CertificateID = id
	return meta, nil
}

func (s *Store) ListCertificateIDs(ctx context.Context, farmID uint64) ([]certificate.ID, error) {
	raw, err := s.listIDs(ctx, s.farmKey(farmID, "certificates"))
	if err != nil {
		return nil, apperrors.Storage("list certificate ids", err)
	}
	ids := make([]certificate.ID, len(raw))
	for i, id := range raw {
		ids[i] = certificate.ID(id)
	}
	return ids, nil
}

func (s *Store) ListCertificates(ctx context.Context) ([]certificate.Certificate, error) {
	next, err := s.peekCounter(ctx, "certificates")
	if err != nil {
		return nil, apperrors.Storage("list certificates", err)
	}
	if next <= 1 {
		return nil, nil
	}
	keys := make([]string, 0, next-1)
	for id := uint64(1); id < next; id++ {
		keys = append(keys, s.certificateKey(certificate.ID(id)))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, apperrors.Storage("list certificates", err)
	}
	certs := make([]certificate.Certificate, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var cert certificate.Certificate
		if err := json.Unmarshal([]byte(raw), &cert); err != nil {
			return nil, apperrors.Storage("decode certificate", err)
		}
		cert.ID = certificate.ID(i + 1)
		certs = append(certs, cert)
	}
	return certs, nil
}

func (s *Store) NextCertificateID(ctx context.Context) (certificate.ID, error) {
	next, err := s.peekCounter(ctx, "certificates")
	if err != nil {
		return 0, apperrors.Storage("next certificate id", err)
	}
	return certificate.ID(next), nil
}

func (s *Store) GetCertificateOwner(ctx context.Context, id certificate.ID) (auth.Principal, error) {
	owner, err := s.client.Get(ctx, s.certificateKey(id)+":owner").Result()
	if errors.Is(err, redis.Nil) {
		return "", apperrors.CertificateNotFound(uint64(id))
	}
	if err != nil {
		return "", apperrors.Storage("get certificate owner", err)
	}
	return auth.Principal(owner), nil
}

func (s *Store) TransferCertificate(ctx context.Context, id certificate.ID, from, to auth.Principal) error {
	_, err := s.swap(ctx, "transfer certificate", s.certificateKey(id)+":owner", apperrors.CertificateNotFound(uint64(id)),
		func(current string) (string, bool, error) {
			if err := auth.Authorize(auth.Principal(current), from); err != nil {
				return "", false, err
			}
			return to.String(), true, nil
		})
	return err
}
