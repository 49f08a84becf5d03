// Package export mirrors final contest results into an external
// spreadsheet. The sink is a best-effort, eventually consistent copy.
// It is never the system of record, and never allowed to fail a primary
// operation.
package export

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/contestvn/exam-backend/internal/config"
	"github.com/contestvn/exam-backend/internal/model"
)

// ResultRow is one exported result, keyed by normalized (email,
// national ID).
type ResultRow struct {
	Timestamp    time.Time `json:"timestamp"`
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	NationalID   string    `json:"national_id"`
	Phone        string    `json:"phone"`
	DOB          string    `json:"dob"`
	QuizScore    int       `json:"quiz_score"`
	EssayScore   float64   `json:"essay_score"`
	TotalScore   float64   `json:"total_score"`
	EssayContent string    `json:"essay_content"`
}

// RowFromAccount builds an export row from the current persisted state.
func RowFromAccount(acc *model.Account, essayContent string) ResultRow {
	return ResultRow{
		Timestamp:    time.Now().UTC(),
		FullName:     acc.FullName,
		Email:        model.NormalizeEmail(acc.Email),
		NationalID:   model.NormalizeNationalID(acc.NationalID),
		Phone:        acc.Phone,
		DOB:          acc.DOB.Format("2006-01-02"),
		QuizScore:    acc.Quiz.Score,
		EssayScore:   acc.Essay.BestScore,
		TotalScore:   acc.TotalScore,
		EssayContent: essayContent,
	}
}

// Sink upserts result rows into the external mirror. UpsertResultRow
// must update in place when a row with the same (email, national ID)
// key exists and append otherwise.
type Sink interface {
	UpsertResultRow(ctx context.Context, row ResultRow) error
}

// Dispatcher queues rows for the export worker. Enqueue is
// fire-and-forget: it returns immediately, and a slow or unreachable
// queue only produces a log line.
type Dispatcher struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(rdb *redis.Client, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		rdb: rdb,
		log: log.With().Str("component", "export_dispatcher").Logger(),
	}
}

// Enqueue schedules a row for export. Never blocks the caller and never
// reports failure upstream.
func (d *Dispatcher) Enqueue(row ResultRow) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		raw, err := json.Marshal(row)
		if err != nil {
			d.log.Error().Err(err).Msg("Marshal export row failed")
			return
		}
		if err := d.rdb.RPush(ctx, config.WorkerKey.ExportRowsQueue, raw).Err(); err != nil {
			d.log.Error().Err(err).Str("email", row.Email).Msg("Enqueue export row failed")
		}
	}()
}
