package cron

import (
	"context"
	"fmt"
)

type cacheSweeper interface {
	Cleanup(ctx context.Context)
}

// NewCacheSweepJob evicts expired cache manager entries so abandoned keys do
// not pile up against the storage budget.
func NewCacheSweepJob(manager cacheSweeper) (Job, error) {
	if manager == nil {
		return nil, fmt.Errorf("cache manager required")
	}
	return &cacheSweepJob{manager: manager}, nil
}

type cacheSweepJob struct {
	manager cacheSweeper
}

func (j *cacheSweepJob) Name() string {
	return "cache_sweep"
}

func (j *cacheSweepJob) Run(ctx context.Context) error {
	j.manager.Cleanup(ctx)
	return nil
}
