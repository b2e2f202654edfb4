package store

import (
	"context"
	"time"

	"github.com/anstrom/scanfold/internal/metrics"
)

type instrumented struct {
	Store
	rec metrics.Recorder
}

// Instrument records the outcome and latency of every store call.
// A missing key on Get counts as success.
func Instrument(s Store, rec metrics.Recorder) Store {
	return &instrumented{Store: s, rec: metrics.OrNoop(rec)}
}

func (i *instrumented) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	v, err := i.Store.Get(ctx, key)
	recorded := err
	if IsNotFound(err) {
		recorded = nil
	}
	i.rec.RecordStoreOperation("get", time.Since(start), recorded)
	return v, err
}

func (i *instrumented) Set(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	err := i.Store.Set(ctx, key, value)
	i.rec.RecordStoreOperation("set", time.Since(start), err)
	return err
}

func (i *instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := i.Store.Delete(ctx, key)
	i.rec.RecordStoreOperation("delete", time.Since(start), err)
	return err
}
