package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contestvn/exam-backend/internal/model"
)

// Duplicate-identity errors surfaced from unique constraints.
var (
	ErrNotFound          = errors.New("account not found")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrDuplicateNational = errors.New("national ID already registered")
	ErrDuplicatePhone    = errors.New("phone already registered")
	ErrDuplicateIdentity = errors.New("identity already registered")
)

// totalScoreExpr recomputes total_score from a quiz score and an essay
// best score, clamping each part and the sum. Embedded in every UPDATE
// that touches exam state so the invariant holds at write time, inside
// the same atomic statement.
//
// Placeholders: %[1]s quiz score (numeric SQL expr), %[2]s essay best
// score, %[3]s quiz max param, %[4]s essay max param.
const totalScoreExpr = `LEAST(
		GREATEST(LEAST((%[1]s)::numeric, %[3]s), 0) +
		GREATEST(LEAST((%[2]s)::numeric, %[4]s), 0),
		(%[3]s)::numeric + (%[4]s)::numeric)`

// AccountRepository handles account persistence. Every exam-state
// mutation is a single statement with a status or length guard in the
// WHERE clause, giving per-account compare-and-swap semantics.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

const accountColumns = `id, full_name, email, national_id, phone, dob, password_hash, quiz, essay, total_score, created_at, updated_at`

func scanAccount(row pgx.Row) (*model.Account, error) {
	acc := &model.Account{}
	err := row.Scan(
		&acc.ID, &acc.FullName, &acc.Email, &acc.NationalID, &acc.Phone,
		&acc.DOB, &acc.PasswordHash, &acc.Quiz, &acc.Essay, &acc.TotalScore,
		&acc.CreatedAt, &acc.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// Create inserts a new account with empty exam state. Unique-constraint
// violations map to field-specific duplicate errors.
func (r *AccountRepository) Create(ctx context.Context, acc *model.Account) error {
	quiz, err := json.Marshal(model.NewQuizSession())
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	essay, err := json.Marshal(model.NewEssaySession())
	if err != nil {
		return fmt.Errorf("marshal essay: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO accounts (full_name, email, national_id, phone, dob, password_hash, quiz, essay)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		acc.FullName, acc.Email, acc.NationalID, acc.Phone, acc.DOB, acc.PasswordHash, quiz, essay,
	).Scan(&acc.ID, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		return mapDuplicate(err)
	}

	acc.Quiz = model.NewQuizSession()
	acc.Essay = model.NewEssaySession()
	return nil
}

func mapDuplicate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "accounts_email_key":
			return ErrDuplicateEmail
		case "accounts_national_id_key":
			return ErrDuplicateNational
		case "accounts_phone_key":
			return ErrDuplicatePhone
		default:
			return ErrDuplicateIdentity
		}
	}
	return err
}

// GetByID retrieves an account by its UUID.
func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

// GetByIdentifier retrieves an account by email or 12-digit national ID,
// dispatching on the identifier's shape.
func (r *AccountRepository) GetByIdentifier(ctx context.Context, identifier string) (*model.Account, error) {
	if model.IsValidNationalID(identifier) {
		return r.GetByNationalID(ctx, model.NormalizeNationalID(identifier))
	}
	return scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, model.NormalizeEmail(identifier)))
}

// GetByNationalID retrieves an account by its national ID.
func (r *AccountRepository) GetByNationalID(ctx context.Context, nationalID string) (*model.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE national_id = $1`, nationalID))
}

// StartQuiz installs a freshly sampled in_progress session. The CAS
// guard on status means a concurrent start can never re-sample an
// attempt: the losing writer simply affects zero rows.
func (r *AccountRepository) StartQuiz(ctx context.Context, id uuid.UUID, quiz model.QuizSession) (bool, error) {
	raw, err := json.Marshal(quiz)
	if err != nil {
		return false, fmt.Errorf("marshal quiz: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts
		 SET quiz = $2, updated_at = now()
		 WHERE id = $1 AND quiz->>'status' = 'not_started'`,
		id, raw)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// UpsertResponse writes one answer under its questionId key. jsonb_set
// touches only that key, so concurrent writes to different questions
// cannot clobber each other; the status guard rejects writes after
// submission.
func (r *AccountRepository) UpsertResponse(ctx context.Context, id uuid.UUID, questionID string, resp model.Response) (bool, error) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return false, fmt.Errorf("marshal response: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts
		 SET quiz = jsonb_set(quiz, ARRAY['responses', $2::text], $3::jsonb),
		     updated_at = now()
		 WHERE id = $1 AND quiz->>'status' = 'in_progress'`,
		id, questionID, raw)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// FinalizeQuiz flips the session to submitted with its computed score,
// recomputing total_score from the row's own essay state in the same
// statement. The guard admits any non-submitted state, so a submission
// against a never-started session finalizes with zero score. Returns
// false when a concurrent submit already won the race.
func (r *AccountRepository) FinalizeQuiz(ctx context.Context, id uuid.UUID, quiz model.QuizSession, quizMax, essayMax int) (bool, error) {
	raw, err := json.Marshal(quiz)
	if err != nil {
		return false, fmt.Errorf("marshal quiz: %w", err)
	}

	total := fmt.Sprintf(totalScoreExpr,
		"$3", "COALESCE(essay->>'best_score', '0')", "$4", "$5")

	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts
		 SET quiz = $2,
		     total_score = `+total+`,
		     updated_at = now()
		 WHERE id = $1 AND quiz->>'status' <> 'submitted'`,
		id, raw, quiz.Score, quizMax, essayMax)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// AppendEssayAttempt appends one attempt, guarded by the attempt cap in
// the WHERE clause. Returns false when the cap is reached (or the
// account vanished); the caller distinguishes via its earlier read.
func (r *AccountRepository) AppendEssayAttempt(ctx context.Context, id uuid.UUID, attempt model.EssayAttempt, maxAttempts, quizMax, essayMax int) (bool, error) {
	raw, err := json.Marshal(attempt)
	if err != nil {
		return false, fmt.Errorf("marshal attempt: %w", err)
	}

	total := fmt.Sprintf(totalScoreExpr,
		"COALESCE(quiz->>'score', '0')", "COALESCE(essay->>'best_score', '0')", "$4", "$5")

	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts
		 SET essay = jsonb_set(essay, '{attempts}', COALESCE(essay->'attempts', '[]'::jsonb) || $2::jsonb),
		     total_score = `+total+`,
		     updated_at = now()
		 WHERE id = $1
		   AND jsonb_array_length(COALESCE(essay->'attempts', '[]'::jsonb)) < $3`,
		id, raw, maxAttempts, quizMax, essayMax)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// GradeEssay records a manual grade on the latest attempt and raises
// best_score monotonically, recomputing total_score atomically. Keyed by
// national ID because graders work from the export sheet.
func (r *AccountRepository) GradeEssay(ctx context.Context, nationalID string, score float64, comment string, quizMax, essayMax int) (*model.Account, error) {
	total := fmt.Sprintf(totalScoreExpr,
		"COALESCE(quiz->>'score', '0')",
		"GREATEST(COALESCE(essay->>'best_score', '0')::numeric, $2::numeric)", "$4", "$5")

	row := r.pool.QueryRow(ctx,
		`UPDATE accounts
		 SET essay = jsonb_set(
		       jsonb_set(
		         jsonb_set(essay,
		           ARRAY['attempts', (jsonb_array_length(essay->'attempts') - 1)::text, 'score'],
		           to_jsonb($2::numeric)),
		         ARRAY['attempts', (jsonb_array_length(essay->'attempts') - 1)::text, 'comment'],
		         to_jsonb($3::text)),
		       '{best_score}',
		       to_jsonb(GREATEST(COALESCE(essay->>'best_score', '0')::numeric, $2::numeric))),
		     total_score = `+total+`,
		     updated_at = now()
		 WHERE national_id = $1
		   AND jsonb_array_length(COALESCE(essay->'attempts', '[]'::jsonb)) > 0
		 RETURNING `+accountColumns,
		nationalID, score, comment, quizMax, essayMax)

	return scanAccount(row)
}

// ResetExam wipes the selected exam parts back to their initial state
// and recomputes total_score, returning the account as it stands after
// the reset. The caller snapshots the before-state for auditing.
func (r *AccountRepository) ResetExam(ctx context.Context, nationalID string, resetQuiz, resetEssay bool, quizMax, essayMax int) (*model.Account, error) {
	quizExpr := "quiz"
	essayExpr := "essay"
	args := []any{nationalID}

	if resetQuiz {
		raw, err := json.Marshal(model.NewQuizSession())
		if err != nil {
			return nil, fmt.Errorf("marshal quiz: %w", err)
		}
		args = append(args, raw)
		quizExpr = fmt.Sprintf("$%d::jsonb", len(args))
	}
	if resetEssay {
		raw, err := json.Marshal(model.NewEssaySession())
		if err != nil {
			return nil, fmt.Errorf("marshal essay: %w", err)
		}
		args = append(args, raw)
		essayExpr = fmt.Sprintf("$%d::jsonb", len(args))
	}

	args = append(args, quizMax)
	quizMaxParam := fmt.Sprintf("$%d", len(args))
	args = append(args, essayMax)
	essayMaxParam := fmt.Sprintf("$%d", len(args))

	total := fmt.Sprintf(totalScoreExpr,
		fmt.Sprintf("COALESCE((%s)->>'score', '0')", quizExpr),
		fmt.Sprintf("COALESCE((%s)->>'best_score', '0')", essayExpr),
		quizMaxParam, essayMaxParam)

	query := fmt.Sprintf(
		`UPDATE accounts
		 SET quiz = %s,
		     essay = %s,
		     total_score = %s,
		     updated_at = now()
		 WHERE national_id = $1
		 RETURNING %s`,
		quizExpr, essayExpr, total, accountColumns)

	return scanAccount(r.pool.QueryRow(ctx, query, args...))
}

// Touch is used by health diagnostics to verify the accounts table is
// reachable without reading user data.
func (r *AccountRepository) Touch(ctx context.Context) error {
	var n int64
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.pool.QueryRow(ctx, `SELECT count(*) FROM accounts`).Scan(&n)
}
