package store

import (
	"context"

	"github.com/anstrom/scanfold/internal/errors"
)

type quotaStore struct {
	Store
	limit int64
}

// WithQuota rejects writes larger than limit bytes with STORE_QUOTA_EXCEEDED.
// The previous value is left in place.
func WithQuota(s Store, limit int64) Store {
	return &quotaStore{Store: s, limit: limit}
}

func (q *quotaStore) Set(ctx context.Context, key string, value []byte) error {
	if size := int64(len(value)); size > q.limit {
		err := errors.ErrQuotaExceeded(key, size, q.limit)
		err.Operation = "set"
		return err
	}
	return q.Store.Set(ctx, key, value)
}
