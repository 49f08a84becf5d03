package model

import (
	"time"

	"github.com/google/uuid"
)

// QuizStatus enumerates quiz session states.
type QuizStatus string

const (
	QuizStatusNotStarted QuizStatus = "not_started"
	QuizStatusInProgress QuizStatus = "in_progress"
	QuizStatusSubmitted  QuizStatus = "submitted"
)

// Response is a contestant's answer to one question, recorded as the
// displayed choice position (after shuffling), not the original index.
type Response struct {
	SelectedIndex int       `json:"selected_index"`
	SelectedAt    time.Time `json:"selected_at"`
}

// QuizSession is the embedded multiple-choice exam state of an account.
// QuestionIDs and ChoiceOrders are populated together exactly once when
// the session enters in_progress and never change afterward.
type QuizSession struct {
	Status       QuizStatus          `json:"status"`
	StartedAt    *time.Time          `json:"started_at,omitempty"`
	SubmittedAt  *time.Time          `json:"submitted_at,omitempty"`
	QuestionIDs  []string            `json:"question_ids"`
	ChoiceOrders map[string][]int    `json:"choice_orders"`
	Responses    map[string]Response `json:"responses"`
	Score        int                 `json:"score"`
	Locked       bool                `json:"locked"`
}

// NewQuizSession returns an empty not_started session.
func NewQuizSession() QuizSession {
	return QuizSession{
		Status:       QuizStatusNotStarted,
		QuestionIDs:  []string{},
		ChoiceOrders: map[string][]int{},
		Responses:    map[string]Response{},
	}
}

// EssayAttempt is one essay submission. Immutable once stored; Score is
// filled in later by manual grading.
type EssayAttempt struct {
	Content     string    `json:"content"`
	SubmittedAt time.Time `json:"submitted_at"`
	Score       float64   `json:"score"`
	Comment     string    `json:"comment,omitempty"`
}

// EssaySession is the embedded essay exam state of an account.
type EssaySession struct {
	Attempts  []EssayAttempt `json:"attempts"`
	BestScore float64        `json:"best_score"`
}

// NewEssaySession returns an empty essay session.
func NewEssaySession() EssaySession {
	return EssaySession{Attempts: []EssayAttempt{}}
}

// Account is the aggregate root: contestant identity plus embedded exam
// state. Identity fields are immutable after registration.
type Account struct {
	ID           uuid.UUID    `json:"id"`
	FullName     string       `json:"full_name"`
	Email        string       `json:"email"`
	NationalID   string       `json:"national_id"`
	Phone        string       `json:"phone"`
	DOB          time.Time    `json:"dob"`
	PasswordHash string       `json:"-"`
	Quiz         QuizSession  `json:"quiz"`
	Essay        EssaySession `json:"essay"`
	TotalScore   float64      `json:"total_score"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// ComputeTotalScore derives the aggregate score from the two exam parts,
// clamping each part and the sum. The persistence layer enforces the same
// formula in SQL on every exam-state write; this is the reference form
// used for views and audits.
func ComputeTotalScore(quizScore int, essayBest float64, quizMax, essayMax int) float64 {
	q := clampf(float64(quizScore), 0, float64(quizMax))
	e := clampf(essayBest, 0, float64(essayMax))
	return clampf(q+e, 0, float64(quizMax+essayMax))
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
