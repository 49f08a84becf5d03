package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/contestvn/exam-backend/internal/model"
	"github.com/contestvn/exam-backend/internal/questionbank"
)

// Entry stages for the exam surface.
const (
	StageRules       = "rules"
	StageInProgress  = "in_progress"
	StageSubmitted   = "submitted"
	StageEssay       = "essay"
	StageEssayClosed = "essay_closed"
)

// SanitizedQuestion is a question as shown to the contestant: choices
// already permuted by the session's stored order, answer key absent.
type SanitizedQuestion struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Choices []string `json:"choices"`
}

// QuizEntryView is the in-progress quiz payload.
type QuizEntryView struct {
	Questions []SanitizedQuestion       `json:"questions"`
	Responses map[string]model.Response `json:"responses"`
	EndsAt    *time.Time                `json:"ends_at,omitempty"`
}

// QuizRulesView describes the attempt before it starts.
type QuizRulesView struct {
	PerAttemptCount int        `json:"per_attempt_count"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	Deadline        *time.Time `json:"deadline,omitempty"`
}

// EssayEntryView is the essay surface payload.
type EssayEntryView struct {
	AttemptsLeft int        `json:"attempts_left"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	LastContent  string     `json:"last_content"`
}

// EntryView is the mode-dependent session view returned to the client.
type EntryView struct {
	Stage string          `json:"stage"`
	Mode  string          `json:"mode"`
	Score *int            `json:"score,omitempty"`
	Quiz  *QuizEntryView  `json:"quiz,omitempty"`
	Rules *QuizRulesView  `json:"rules,omitempty"`
	Essay *EssayEntryView `json:"essay,omitempty"`
}

// GetEntry returns the sanitized session view for one exam part. The
// answer key and original choice order never leave the server.
func (s *ExamService) GetEntry(ctx context.Context, userID uuid.UUID, mode string) (*EntryView, error) {
	acc, err := s.getAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	if mode == "essay" {
		return s.essayEntry(acc), nil
	}
	return s.quizEntry(acc), nil
}

func (s *ExamService) quizEntry(acc *model.Account) *EntryView {
	qz := acc.Quiz

	switch qz.Status {
	case model.QuizStatusSubmitted:
		score := qz.Score
		return &EntryView{Stage: StageSubmitted, Mode: "quiz", Score: &score}

	case model.QuizStatusInProgress:
		questions := make([]SanitizedQuestion, 0, len(qz.QuestionIDs))
		for _, id := range qz.QuestionIDs {
			q, ok := s.bank.Get(id)
			if !ok {
				// Question retired from the bank after sampling; skip
				// rather than leak a hole to the client.
				continue
			}
			order := qz.ChoiceOrders[id]
			questions = append(questions, SanitizedQuestion{
				ID:      id,
				Text:    q.Text,
				Choices: questionbank.ApplyOrder(q.Choices, order),
			})
		}
		responses := qz.Responses
		if responses == nil {
			responses = map[string]model.Response{}
		}
		return &EntryView{
			Stage: StageInProgress,
			Mode:  "quiz",
			Quiz: &QuizEntryView{
				Questions: questions,
				Responses: responses,
				EndsAt:    s.endsAt(qz.StartedAt),
			},
		}

	default:
		rules := &QuizRulesView{
			PerAttemptCount: s.cfg.QuizPerAttempt,
			Deadline:        s.cfg.QuizDeadline,
		}
		if s.cfg.QuizDurationMin > 0 {
			d := s.cfg.QuizDurationMin
			rules.DurationMinutes = &d
		}
		return &EntryView{Stage: StageRules, Mode: "quiz", Rules: rules}
	}
}

func (s *ExamService) essayEntry(acc *model.Account) *EntryView {
	if s.deadlinePassed(s.cfg.EssayDeadline) {
		return &EntryView{Stage: StageEssayClosed, Mode: "essay"}
	}

	left := s.cfg.EssayMaxAttempts - len(acc.Essay.Attempts)
	if left < 0 {
		left = 0
	}

	return &EntryView{
		Stage: StageEssay,
		Mode:  "essay",
		Essay: &EssayEntryView{
			AttemptsLeft: left,
			Deadline:     s.cfg.EssayDeadline,
			LastContent:  lastEssayContent(acc),
		},
	}
}
