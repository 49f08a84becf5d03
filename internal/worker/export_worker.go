package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/contestvn/exam-backend/internal/config"
	"github.com/contestvn/exam-backend/internal/export"
)

const (
	ExportBatchSize    = 20
	ExportBatchTimeout = 2 * time.Second
	ExportPollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ExportWorker drains the export queue and upserts rows into the
// external sink. Sink failures requeue the row; the spreadsheet is
// eventually consistent, never authoritative.
type ExportWorker struct {
	rdb  *redis.Client
	sink export.Sink
	log  zerolog.Logger
}

// NewExportWorker creates a new ExportWorker.
func NewExportWorker(rdb *redis.Client, sink export.Sink, log zerolog.Logger) *ExportWorker {
	return &ExportWorker{
		rdb:  rdb,
		sink: sink,
		log:  log.With().Str("component", "export_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *ExportWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ExportWorker started")

	batch := make([]export.ResultRow, 0, ExportBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ExportBatchSize || time.Since(lastFlush) >= ExportBatchTimeout) {

			w.flush(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ExportPollTimeout, config.WorkerKey.ExportRowsQueue).Result()
			if err != nil {
				if err == redis.Nil {
					continue // Queue empty; loop back to check the flush timer.
				}
				if ctx.Err() != nil {
					w.shutdown(batch)
					return
				}
				w.log.Error().Err(err).Msg("BLPop error, sleeping 3s")
				time.Sleep(3 * time.Second)
				continue
			}

			if len(item) < 2 {
				continue
			}

			var row export.ResultRow
			if err := json.Unmarshal([]byte(item[1]), &row); err != nil {
				// Malformed JSON cannot be retried. Log and discard.
				w.log.Error().Err(err).Str("data", item[1]).Msg("Discarding malformed export row")
				continue
			}

			batch = append(batch, row)
		}
	}
}

// flush upserts each row, requeueing failures. Rows are independent
// (keyed upserts), so one bad row never blocks the rest.
func (w *ExportWorker) flush(ctx context.Context, batch []export.ResultRow) {
	var requeue []export.ResultRow

	for _, row := range batch {
		if err := w.sink.UpsertResultRow(ctx, row); err != nil {
			w.log.Warn().Err(err).Str("email", row.Email).Msg("Sink upsert failed, requeueing")
			requeue = append(requeue, row)
		}
	}

	if len(requeue) > 0 {
		w.requeue(ctx, requeue)
	}
}

func (w *ExportWorker) requeue(ctx context.Context, rows []export.ResultRow) {
	pipe := w.rdb.Pipeline()
	for _, row := range rows {
		raw, _ := json.Marshal(row)
		pipe.RPush(ctx, config.WorkerKey.ExportRowsQueue, raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(rows)).Msg("Requeue failed, rows dropped")
		return
	}
	// Back off a little so a hard-down sink doesn't spin the loop.
	time.Sleep(2 * time.Second)
}

func (w *ExportWorker) shutdown(batch []export.ResultRow) {
	w.log.Info().Msg("Worker stopping, flushing remaining batch...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(batch) > 0 {
		w.flush(shutdownCtx, batch)
	}
	w.log.Info().Msg("Worker stopped")
}
