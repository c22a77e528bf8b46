package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable is returned when no Redis client is configured.
var ErrStoreUnavailable = errors.New("revocation store unavailable")

// RevocationStore keeps a denylist of refresh token fingerprints in Redis.
// Entries expire together with the token they revoke.
type RevocationStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRevocationStore returns a store bound to rdb.  A nil client yields a
// store whose writes fail with ErrStoreUnavailable and whose reads report
// nothing revoked.
func NewRevocationStore(rdb *redis.Client, prefix string) *RevocationStore {
	if prefix == "" {
		prefix = "revoked"
	}
	return &RevocationStore{rdb: rdb, prefix: prefix}
}

func (s *RevocationStore) key(fingerprint string) string { return s.prefix + ":" + fingerprint }

// Revoke denylists fingerprint for ttl.  Non-positive ttls are a no-op
// because the token has already expired.
func (s *RevocationStore) Revoke(ctx context.Context, fingerprint string, ttl time.Duration) error {
	if s.rdb == nil {
		return ErrStoreUnavailable
	}
	if ttl <= 0 {
		return nil
	}
	return s.rdb.Set(ctx, s.key(fingerprint), 1, ttl).Err()
}

// IsRevoked reports whether fingerprint is on the denylist.
func (s *RevocationStore) IsRevoked(ctx context.Context, fingerprint string) (bool, error) {
	if s.rdb == nil {
		return false, nil
	}
	n, err := s.rdb.Exists(ctx, s.key(fingerprint)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Available reports whether a Redis client is configured.
func (s *RevocationStore) Available() bool { return s.rdb != nil }
