package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/contestvn/exam-backend/internal/config"
	"github.com/contestvn/exam-backend/internal/export"
)

// recordingSink captures upserted rows, optionally failing the first
// failUntil calls to exercise the requeue path.
type recordingSink struct {
	mu        sync.Mutex
	rows      []export.ResultRow
	failUntil int
	calls     int
}

func (s *recordingSink) UpsertResultRow(_ context.Context, row export.ResultRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failUntil {
		return errors.New("sink unavailable")
	}
	s.rows = append(s.rows, row)
	return nil
}

func (s *recordingSink) stored() []export.ResultRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]export.ResultRow(nil), s.rows...)
}

func newWorkerTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func pushRow(t *testing.T, rdb *redis.Client, email string) {
	t.Helper()
	raw, err := json.Marshal(export.ResultRow{Email: email, QuizScore: 10})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := rdb.RPush(context.Background(), config.WorkerKey.ExportRowsQueue, raw).Err(); err != nil {
		t.Fatalf("push: %v", err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestExportWorkerDrainsQueue(t *testing.T) {
	rdb := newWorkerTestRedis(t)
	sink := &recordingSink{}
	w := NewExportWorker(rdb, sink, zerolog.Nop())

	pushRow(t, rdb, "a@example.com")
	pushRow(t, rdb, "b@example.com")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	waitFor(t, 5*time.Second, func() bool { return len(sink.stored()) == 2 })

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}

	emails := map[string]bool{}
	for _, row := range sink.stored() {
		emails[row.Email] = true
	}
	if !emails["a@example.com"] || !emails["b@example.com"] {
		t.Fatalf("missing rows: %+v", sink.stored())
	}
}

func TestExportWorkerDiscardsMalformedRows(t *testing.T) {
	rdb := newWorkerTestRedis(t)
	sink := &recordingSink{}
	w := NewExportWorker(rdb, sink, zerolog.Nop())

	if err := rdb.RPush(context.Background(), config.WorkerKey.ExportRowsQueue, "{not json").Err(); err != nil {
		t.Fatalf("push: %v", err)
	}
	pushRow(t, rdb, "ok@example.com")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	waitFor(t, 5*time.Second, func() bool { return len(sink.stored()) == 1 })
	cancel()
	<-done

	if sink.stored()[0].Email != "ok@example.com" {
		t.Fatalf("unexpected row: %+v", sink.stored()[0])
	}
}

func TestExportWorkerRequeuesOnSinkFailure(t *testing.T) {
	rdb := newWorkerTestRedis(t)
	sink := &recordingSink{failUntil: 1}
	w := NewExportWorker(rdb, sink, zerolog.Nop())

	pushRow(t, rdb, "retry@example.com")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	// First flush fails and requeues; the second delivery sticks.
	waitFor(t, 15*time.Second, func() bool { return len(sink.stored()) == 1 })
	cancel()
	<-done

	if sink.stored()[0].Email != "retry@example.com" {
		t.Fatalf("unexpected row: %+v", sink.stored()[0])
	}
	n, err := rdb.LLen(context.Background(), config.WorkerKey.ExportRowsQueue).Result()
	if err != nil {
		t.Fatalf("llen: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected empty queue, got %d", n)
	}
}
