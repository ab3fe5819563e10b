package cron

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/noorbazaar/storefront-backend/internal/chat/presence"
	"github.com/noorbazaar/storefront-backend/pkg/logger"
	"go.uber.org/multierr"
)

type presenceStore interface {
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
	OnlinePattern() string
}

// PresenceSweepJobParams configure the presence sweep.
type PresenceSweepJobParams struct {
	Logger *logger.Logger
	Store  presenceStore
}

// NewPresenceSweepJob removes unreadable online records. Expiry itself is
// handled by the record TTLs, the sweep only clears corrupt leftovers that
// would otherwise sit there until someone re-tracks under the same id.
func NewPresenceSweepJob(params PresenceSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("presence store required")
	}
	return &presenceSweepJob{logg: params.Logger, store: params.Store}, nil
}

type presenceSweepJob struct {
	logg  *logger.Logger
	store presenceStore
}

func (j *presenceSweepJob) Name() string {
	return "presence_sweep"
}

func (j *presenceSweepJob) Run(ctx context.Context) error {
	keys, err := j.store.ScanKeys(ctx, j.store.OnlinePattern())
	if err != nil {
		return fmt.Errorf("scanning presence records: %w", err)
	}

	var errs error
	removed := 0
	for _, key := range keys {
		raw, err := j.store.Get(ctx, key)
		if err != nil {
			// expired between scan and read
			continue
		}
		var record presence.Record
		if json.Unmarshal([]byte(raw), &record) == nil && record.UserID != "" {
			continue
		}
		if err := j.store.Del(ctx, key); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("deleting %s: %w", key, err))
			continue
		}
		removed++
	}
	if removed > 0 {
		j.logg.Info(j.logg.WithField(ctx, "removed", removed), "corrupt presence records removed")
	}
	return errs
}
