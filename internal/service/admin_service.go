package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/contestvn/exam-backend/internal/config"
	"github.com/contestvn/exam-backend/internal/export"
	"github.com/contestvn/exam-backend/internal/model"
	"github.com/contestvn/exam-backend/internal/questionbank"
	"github.com/contestvn/exam-backend/internal/repository"
)

// AdminService covers the manual operations around the exam: resetting a
// contestant's state, recording essay grades, and auditing stored scores.
type AdminService struct {
	accounts *repository.AccountRepository
	bank     *questionbank.Bank
	cfg      config.ExamConfig
	exporter ResultExporter
	log      zerolog.Logger
}

// NewAdminService creates a new AdminService.
func NewAdminService(accounts *repository.AccountRepository, bank *questionbank.Bank, cfg config.ExamConfig, exporter ResultExporter, log zerolog.Logger) *AdminService {
	return &AdminService{
		accounts: accounts,
		bank:     bank,
		cfg:      cfg,
		exporter: exporter,
		log:      log.With().Str("component", "admin_service").Logger(),
	}
}

// ExamSnapshot summarizes a contestant's exam state for audit output.
type ExamSnapshot struct {
	QuizStatus    model.QuizStatus `json:"quiz_status"`
	QuizScore     int              `json:"quiz_score"`
	QuizStartedAt *time.Time       `json:"quiz_started_at,omitempty"`
	QuizSubmitted *time.Time       `json:"quiz_submitted_at,omitempty"`
	EssayBest     float64          `json:"essay_best_score"`
	EssayAttempts int              `json:"essay_attempts"`
	TotalScore    float64          `json:"total_score"`
}

func snapshot(acc *model.Account) ExamSnapshot {
	return ExamSnapshot{
		QuizStatus:    acc.Quiz.Status,
		QuizScore:     acc.Quiz.Score,
		QuizStartedAt: acc.Quiz.StartedAt,
		QuizSubmitted: acc.Quiz.SubmittedAt,
		EssayBest:     acc.Essay.BestScore,
		EssayAttempts: len(acc.Essay.Attempts),
		TotalScore:    acc.TotalScore,
	}
}

// ResetResult reports a completed reset with before/after snapshots and
// a masked identity for display.
type ResetResult struct {
	Scopes           []string     `json:"scopes"`
	Email            string       `json:"email"`
	FullName         string       `json:"full_name"`
	NationalIDMasked string       `json:"national_id_masked"`
	Previous         ExamSnapshot `json:"previous"`
	Current          ExamSnapshot `json:"current"`
}

// ResetExam wipes the selected exam parts for the account with the given
// national ID. Defaults to both parts when scopes is empty.
func (s *AdminService) ResetExam(ctx context.Context, nationalID string, scopes []string) (*ResetResult, error) {
	if len(scopes) == 0 {
		scopes = []string{"quiz", "essay"}
	}
	resetQuiz, resetEssay := false, false
	for _, sc := range scopes {
		switch sc {
		case "quiz":
			resetQuiz = true
		case "essay":
			resetEssay = true
		}
	}

	before, err := s.accounts.GetByNationalID(ctx, model.NormalizeNationalID(nationalID))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}

	after, err := s.accounts.ResetExam(ctx, before.NationalID, resetQuiz, resetEssay, s.cfg.QuizMaxPoints, s.cfg.EssayMaxPoints)
	if err != nil {
		return nil, fmt.Errorf("reset exam: %w", err)
	}

	s.log.Info().
		Str("national_id", model.MaskNationalID(before.NationalID)).
		Strs("scopes", scopes).
		Msg("Exam state reset")

	return &ResetResult{
		Scopes:           scopes,
		Email:            after.Email,
		FullName:         after.FullName,
		NationalIDMasked: model.MaskNationalID(after.NationalID),
		Previous:         snapshot(before),
		Current:          snapshot(after),
	}, nil
}

// GradeEssay records a manual grade for the contestant's latest essay
// attempt and mirrors the updated totals to the export sink.
func (s *AdminService) GradeEssay(ctx context.Context, nationalID string, score float64, comment string) (*ExamSnapshot, error) {
	if score < 0 || score > float64(s.cfg.EssayMaxPoints) {
		return nil, fmt.Errorf("essay score must be in [0, %d]", s.cfg.EssayMaxPoints)
	}

	acc, err := s.accounts.GradeEssay(ctx, model.NormalizeNationalID(nationalID), score, comment, s.cfg.QuizMaxPoints, s.cfg.EssayMaxPoints)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("grade essay: %w", err)
	}

	if s.exporter != nil {
		s.exporter.Enqueue(export.RowFromAccount(acc, lastEssayContent(acc)))
	}

	snap := snapshot(acc)
	return &snap, nil
}

// ScoreAudit recomputes the quiz score from persisted session state and
// the question bank, reporting whether it matches the stored value.
// Detects any tampering or drift without trusting client data.
type ScoreAudit struct {
	NationalIDMasked string  `json:"national_id_masked"`
	StoredScore      int     `json:"stored_score"`
	RecomputedScore  int     `json:"recomputed_score"`
	Match            bool    `json:"match"`
	TotalScore       float64 `json:"total_score"`
}

// AuditScore re-derives a submitted quiz score for one contestant.
func (s *AdminService) AuditScore(ctx context.Context, nationalID string) (*ScoreAudit, error) {
	acc, err := s.accounts.GetByNationalID(ctx, model.NormalizeNationalID(nationalID))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}

	recomputed := ComputeQuizScore(acc.Quiz, s.bank, s.cfg.PointsPerCorrect, s.cfg.QuizMaxPoints)

	return &ScoreAudit{
		NationalIDMasked: model.MaskNationalID(acc.NationalID),
		StoredScore:      acc.Quiz.Score,
		RecomputedScore:  recomputed,
		Match:            recomputed == acc.Quiz.Score,
		TotalScore:       acc.TotalScore,
	}, nil
}
