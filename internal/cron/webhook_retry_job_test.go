package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/megahubhq/megahub-backend/pkg/logger"
)

func TestWebhookRetryJobPassesClockAndBatch(t *testing.T) {
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	retrier := &fakeWebhookRetrier{}
	jobIface, err := NewWebhookRetryJob(WebhookRetryJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
		Webhooks: retrier,
		Batch:    25,
		Now:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewWebhookRetryJob: %v", err)
	}

	if err := jobIface.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if retrier.called != 1 || retrier.lastLimit != 25 {
		t.Fatalf("expected one retry pass with batch 25, got %d/%d", retrier.called, retrier.lastLimit)
	}
	if !retrier.lastNow.Equal(now) {
		t.Fatalf("expected now %s, got %s", now, retrier.lastNow)
	}
}

func TestWebhookRetryJobPropagatesError(t *testing.T) {
	jobIface, err := NewWebhookRetryJob(WebhookRetryJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
		Webhooks: &fakeWebhookRetrier{err: errors.New("boom")},
	})
	if err != nil {
		t.Fatalf("NewWebhookRetryJob: %v", err)
	}
	if err := jobIface.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

type fakeWebhookRetrier struct {
	called    int
	lastNow   time.Time
	lastLimit int
	err       error
}

func (f *fakeWebhookRetrier) Retry(ctx context.Context, now time.Time, limit int) (int, error) {
	f.called++
	f.lastNow = now
	f.lastLimit = limit
	if f.err != nil {
		return 0, f.err
	}
	return 3, nil
}
