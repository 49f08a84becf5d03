package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/contestvn/exam-backend/internal/config"
	"github.com/contestvn/exam-backend/internal/export"
	"github.com/contestvn/exam-backend/internal/model"
	"github.com/contestvn/exam-backend/internal/questionbank"
	"github.com/contestvn/exam-backend/internal/repository"
)

// Gate and validation errors for exam operations. Handlers translate
// these into specific user-visible reasons.
var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrAlreadySubmitted     = errors.New("quiz already submitted")
	ErrStartsExhausted      = errors.New("no quiz starts left")
	ErrDeadlinePassed       = errors.New("deadline has passed")
	ErrSessionNotActive     = errors.New("quiz session is not active")
	ErrInvalidChoice        = errors.New("selected index out of range")
	ErrQuestionNotInSession = errors.New("question is not part of this session")
	ErrAttemptsExhausted    = errors.New("essay attempts exhausted")
	ErrEmptyContent         = errors.New("essay content is empty")
)

// AccountStore is the persistence contract the session engine needs.
// *repository.AccountRepository satisfies it; tests use an in-memory
// fake. Every mutation is atomic per account with compare-and-swap
// semantics on the session status.
type AccountStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
	StartQuiz(ctx context.Context, id uuid.UUID, quiz model.QuizSession) (bool, error)
	UpsertResponse(ctx context.Context, id uuid.UUID, questionID string, resp model.Response) (bool, error)
	FinalizeQuiz(ctx context.Context, id uuid.UUID, quiz model.QuizSession, quizMax, essayMax int) (bool, error)
	AppendEssayAttempt(ctx context.Context, id uuid.UUID, attempt model.EssayAttempt, maxAttempts, quizMax, essayMax int) (bool, error)
}

// ResultExporter schedules best-effort result mirroring. Implementations
// must never block or fail the caller.
type ResultExporter interface {
	Enqueue(row export.ResultRow)
}

// ExamService is the session engine: quiz lifecycle, response recording,
// scoring, and essay attempt tracking.
type ExamService struct {
	store    AccountStore
	bank     *questionbank.Bank
	cfg      config.ExamConfig
	exporter ResultExporter
	log      zerolog.Logger
	now      func() time.Time
}

// NewExamService creates a new ExamService. exporter may be nil when no
// sink is configured.
func NewExamService(store AccountStore, bank *questionbank.Bank, cfg config.ExamConfig, exporter ResultExporter, log zerolog.Logger) *ExamService {
	return &ExamService{
		store:    store,
		bank:     bank,
		cfg:      cfg,
		exporter: exporter,
		log:      log.With().Str("component", "exam_service").Logger(),
		now:      time.Now,
	}
}

// StartQuizResult reports the computed session end time. EndsAt is nil
// when the quiz is untimed.
type StartQuizResult struct {
	EndsAt *time.Time `json:"ends_at"`
}

// StartQuiz transitions not_started → in_progress, sampling the attempt's
// question subset and one choice permutation per question. Idempotent
// while in_progress so a page reload never re-samples.
func (s *ExamService) StartQuiz(ctx context.Context, userID uuid.UUID) (*StartQuizResult, error) {
	acc, err := s.getAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	switch {
	case acc.Quiz.Status == model.QuizStatusSubmitted:
		return nil, ErrAlreadySubmitted
	case acc.Quiz.Locked:
		return nil, ErrStartsExhausted
	case s.deadlinePassed(s.cfg.QuizDeadline):
		return nil, ErrDeadlinePassed
	}

	if acc.Quiz.Status == model.QuizStatusInProgress {
		return &StartQuizResult{EndsAt: s.endsAt(acc.Quiz.StartedAt)}, nil
	}

	startedAt := s.now()
	picked := s.bank.Sample(s.cfg.QuizPerAttempt)

	session := model.QuizSession{
		Status:       model.QuizStatusInProgress,
		StartedAt:    &startedAt,
		QuestionIDs:  make([]string, 0, len(picked)),
		ChoiceOrders: make(map[string][]int, len(picked)),
		Responses:    map[string]model.Response{},
	}
	for _, q := range picked {
		session.QuestionIDs = append(session.QuestionIDs, q.ID)
		session.ChoiceOrders[q.ID] = questionbank.ChoiceOrder(len(q.Choices))
	}

	ok, err := s.store.StartQuiz(ctx, userID, session)
	if err != nil {
		return nil, fmt.Errorf("start quiz: %w", err)
	}
	if !ok {
		// Lost a race against another start or a submit. Re-read and
		// report the state that actually won.
		acc, err = s.getAccount(ctx, userID)
		if err != nil {
			return nil, err
		}
		if acc.Quiz.Status == model.QuizStatusSubmitted {
			return nil, ErrAlreadySubmitted
		}
		return &StartQuizResult{EndsAt: s.endsAt(acc.Quiz.StartedAt)}, nil
	}

	s.log.Info().
		Str("user_id", userID.String()).
		Int("questions", len(session.QuestionIDs)).
		Msg("Quiz started")

	return &StartQuizResult{EndsAt: s.endsAt(&startedAt)}, nil
}

// RecordResponse upserts the answer for one question of the active
// session. Re-answering the same question overwrites the previous pick.
func (s *ExamService) RecordResponse(ctx context.Context, userID uuid.UUID, questionID string, selectedIndex int) error {
	acc, err := s.getAccount(ctx, userID)
	if err != nil {
		return err
	}

	if acc.Quiz.Status != model.QuizStatusInProgress {
		return ErrSessionNotActive
	}

	order, ok := acc.Quiz.ChoiceOrders[questionID]
	if !ok {
		return ErrQuestionNotInSession
	}
	if selectedIndex < 0 || selectedIndex >= len(order) {
		return ErrInvalidChoice
	}

	ok, err = s.store.UpsertResponse(ctx, userID, questionID, model.Response{
		SelectedIndex: selectedIndex,
		SelectedAt:    s.now(),
	})
	if err != nil {
		return fmt.Errorf("record response: %w", err)
	}
	if !ok {
		// The session was submitted between our read and the write.
		return ErrSessionNotActive
	}
	return nil
}

// SubmitQuizResult carries the final (immutable) quiz score.
type SubmitQuizResult struct {
	Score int `json:"score"`
}

// SubmitQuiz finalizes the session: scores it, locks it, and schedules a
// result export. Safe to call any number of times from any trigger
// (manual click, countdown expiry, violation threshold, unload beacon).
// The first successful submission's score is final and every later call
// returns it unchanged.
func (s *ExamService) SubmitQuiz(ctx context.Context, userID uuid.UUID) (*SubmitQuizResult, error) {
	acc, err := s.getAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	if acc.Quiz.Status == model.QuizStatusSubmitted {
		return &SubmitQuizResult{Score: acc.Quiz.Score}, nil
	}

	submittedAt := s.now()
	finalized := acc.Quiz
	finalized.Status = model.QuizStatusSubmitted
	finalized.SubmittedAt = &submittedAt
	finalized.Locked = true
	finalized.Score = ComputeQuizScore(acc.Quiz, s.bank, s.cfg.PointsPerCorrect, s.cfg.QuizMaxPoints)

	ok, err := s.store.FinalizeQuiz(ctx, userID, finalized, s.cfg.QuizMaxPoints, s.cfg.EssayMaxPoints)
	if err != nil {
		return nil, fmt.Errorf("finalize quiz: %w", err)
	}
	if !ok {
		// A concurrent submit won; its score is the canonical one.
		acc, err = s.getAccount(ctx, userID)
		if err != nil {
			return nil, err
		}
		return &SubmitQuizResult{Score: acc.Quiz.Score}, nil
	}

	acc.Quiz = finalized
	acc.TotalScore = model.ComputeTotalScore(finalized.Score, acc.Essay.BestScore, s.cfg.QuizMaxPoints, s.cfg.EssayMaxPoints)
	s.scheduleExport(acc, lastEssayContent(acc))

	s.log.Info().
		Str("user_id", userID.String()).
		Int("score", finalized.Score).
		Msg("Quiz submitted")

	return &SubmitQuizResult{Score: finalized.Score}, nil
}

// SubmitEssay appends one essay attempt. Content beyond the configured
// character limit is silently truncated before the empty check; a
// trimmed-empty body is rejected.
func (s *ExamService) SubmitEssay(ctx context.Context, userID uuid.UUID, content string) error {
	if s.deadlinePassed(s.cfg.EssayDeadline) {
		return ErrDeadlinePassed
	}

	acc, err := s.getAccount(ctx, userID)
	if err != nil {
		return err
	}

	if len(acc.Essay.Attempts) >= s.cfg.EssayMaxAttempts {
		return ErrAttemptsExhausted
	}

	body := truncateRunes(content, s.cfg.EssayMaxChars)
	if strings.TrimSpace(body) == "" {
		return ErrEmptyContent
	}

	attempt := model.EssayAttempt{
		Content:     body,
		SubmittedAt: s.now(),
	}

	ok, err := s.store.AppendEssayAttempt(ctx, userID, attempt, s.cfg.EssayMaxAttempts, s.cfg.QuizMaxPoints, s.cfg.EssayMaxPoints)
	if err != nil {
		return fmt.Errorf("append essay attempt: %w", err)
	}
	if !ok {
		return ErrAttemptsExhausted
	}

	// Only substantial drafts are mirrored; short saves stay local.
	if len([]rune(body)) > s.cfg.EssayExportMinChars {
		acc.Essay.Attempts = append(acc.Essay.Attempts, attempt)
		s.scheduleExport(acc, body)
	}

	s.log.Info().
		Str("user_id", userID.String()).
		Int("attempt", len(acc.Essay.Attempts)).
		Msg("Essay submitted")

	return nil
}

// ComputeQuizScore derives the score purely from persisted session state
// and the immutable bank: a response is correct when its displayed
// position maps back to the question's original answer index. Never
// trusts any client-supplied score.
func ComputeQuizScore(quiz model.QuizSession, bank *questionbank.Bank, pointsPerCorrect, maxPoints int) int {
	correct := 0
	for questionID, resp := range quiz.Responses {
		q, ok := bank.Get(questionID)
		if !ok {
			continue
		}
		order, ok := quiz.ChoiceOrders[questionID]
		if !ok || resp.SelectedIndex < 0 || resp.SelectedIndex >= len(order) {
			continue
		}
		if order[resp.SelectedIndex] == q.AnswerIndex {
			correct++
		}
	}

	score := correct * pointsPerCorrect
	if score > maxPoints {
		score = maxPoints
	}
	if score < 0 {
		score = 0
	}
	return score
}

func (s *ExamService) getAccount(ctx context.Context, userID uuid.UUID) (*model.Account, error) {
	acc, err := s.store.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return acc, nil
}

func (s *ExamService) deadlinePassed(deadline *time.Time) bool {
	return deadline != nil && s.now().After(*deadline)
}

// endsAt computes the session end from its start. Returns nil when the
// quiz is untimed or the session has no start yet.
func (s *ExamService) endsAt(startedAt *time.Time) *time.Time {
	if startedAt == nil || s.cfg.QuizDurationMin <= 0 {
		return nil
	}
	t := startedAt.Add(time.Duration(s.cfg.QuizDurationMin) * time.Minute)
	return &t
}

func (s *ExamService) scheduleExport(acc *model.Account, essayContent string) {
	if s.exporter == nil {
		return
	}
	s.exporter.Enqueue(export.RowFromAccount(acc, essayContent))
}

func lastEssayContent(acc *model.Account) string {
	if n := len(acc.Essay.Attempts); n > 0 {
		return acc.Essay.Attempts[n-1].Content
	}
	return ""
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
