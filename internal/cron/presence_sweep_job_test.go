package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/noorbazaar/storefront-backend/pkg/logger"
)

type fakePresenceStore struct {
	data   map[string]string
	delErr error
}

func (f *fakePresenceStore) Get(ctx context.Context, key string) (string, error) {
	value, ok := f.data[key]
	if !ok {
		return "", errors.New("missing")
	}
	return value, nil
}

func (f *fakePresenceStore) Del(ctx context.Context, keys ...string) error {
	if f.delErr != nil {
		return f.delErr
	}
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakePresenceStore) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	keys := make([]string, 0, len(f.data))
	for key := range f.data {
		keys = append(keys, key)
	}
	return keys, nil
}

func (f *fakePresenceStore) OnlinePattern() string { return "online:*" }

func TestPresenceSweepRemovesCorruptRecords(t *testing.T) {
	store := &fakePresenceStore{data: map[string]string{
		"online:user-1": `{"user_id":"user-1","display_name":"مریم","role":"customer"}`,
		"online:bad":    `{broken`,
		"online:empty":  `{}`,
	}}
	job, err := NewPresenceSweepJob(PresenceSweepJobParams{
		Logger: logger.New(logger.Options{ServiceName: "sweeper-test"}),
		Store:  store,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, ok := store.data["online:user-1"]; !ok {
		t.Fatal("healthy record must survive the sweep")
	}
	if _, ok := store.data["online:bad"]; ok {
		t.Fatal("unparsable record must be removed")
	}
	if _, ok := store.data["online:empty"]; ok {
		t.Fatal("record without a user id must be removed")
	}
}

func TestPresenceSweepAccumulatesDeleteFailures(t *testing.T) {
	store := &fakePresenceStore{
		data:   map[string]string{"online:bad": `{broken`},
		delErr: errors.New("redis down"),
	}
	job, err := NewPresenceSweepJob(PresenceSweepJobParams{
		Logger: logger.New(logger.Options{ServiceName: "sweeper-test"}),
		Store:  store,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("delete failures must surface")
	}
}
