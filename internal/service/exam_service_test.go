package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/contestvn/exam-backend/internal/config"
	"github.com/contestvn/exam-backend/internal/export"
	"github.com/contestvn/exam-backend/internal/model"
	"github.com/contestvn/exam-backend/internal/questionbank"
	"github.com/contestvn/exam-backend/internal/repository"
)

// fakeStore is an in-memory AccountStore with the same compare-and-swap
// semantics as the SQL layer: every mutation checks the session status
// it requires and reports false instead of writing when the check fails.
type fakeStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*model.Account
}

func newFakeStore() *fakeStore {
	return &fakeStore{accounts: map[uuid.UUID]*model.Account{}}
}

func (f *fakeStore) put(acc *model.Account) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[acc.ID] = acc
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *acc
	return &cp, nil
}

func (f *fakeStore) StartQuiz(_ context.Context, id uuid.UUID, quiz model.QuizSession) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if acc.Quiz.Status != model.QuizStatusNotStarted {
		return false, nil
	}
	acc.Quiz = quiz
	return true, nil
}

func (f *fakeStore) UpsertResponse(_ context.Context, id uuid.UUID, questionID string, resp model.Response) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if acc.Quiz.Status != model.QuizStatusInProgress {
		return false, nil
	}
	if acc.Quiz.Responses == nil {
		acc.Quiz.Responses = map[string]model.Response{}
	}
	acc.Quiz.Responses[questionID] = resp
	return true, nil
}

func (f *fakeStore) FinalizeQuiz(_ context.Context, id uuid.UUID, quiz model.QuizSession, quizMax, essayMax int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if acc.Quiz.Status == model.QuizStatusSubmitted {
		return false, nil
	}
	acc.Quiz = quiz
	acc.TotalScore = model.ComputeTotalScore(quiz.Score, acc.Essay.BestScore, quizMax, essayMax)
	return true, nil
}

func (f *fakeStore) AppendEssayAttempt(_ context.Context, id uuid.UUID, attempt model.EssayAttempt, maxAttempts, quizMax, essayMax int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if len(acc.Essay.Attempts) >= maxAttempts {
		return false, nil
	}
	acc.Essay.Attempts = append(acc.Essay.Attempts, attempt)
	acc.TotalScore = model.ComputeTotalScore(acc.Quiz.Score, acc.Essay.BestScore, quizMax, essayMax)
	return true, nil
}

// captureExporter records every enqueued row.
type captureExporter struct {
	mu   sync.Mutex
	rows []export.ResultRow
}

func (e *captureExporter) Enqueue(row export.ResultRow) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rows = append(e.rows, row)
}

func (e *captureExporter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.rows)
}

func testBank(t *testing.T) *questionbank.Bank {
	t.Helper()
	bank, err := questionbank.New([]questionbank.Question{
		{ID: "q1", Text: "first", Choices: []string{"a", "b", "c", "d"}, AnswerIndex: 2},
		{ID: "q2", Text: "second", Choices: []string{"a", "b", "c", "d"}, AnswerIndex: 0},
		{ID: "q3", Text: "third", Choices: []string{"a", "b", "c"}, AnswerIndex: 1},
	})
	if err != nil {
		t.Fatalf("build bank: %v", err)
	}
	return bank
}

func testExamConfig() config.ExamConfig {
	return config.ExamConfig{
		QuizPerAttempt:      2,
		PointsPerCorrect:    2,
		QuizMaxPoints:       40,
		EssayMaxAttempts:    3,
		EssayMaxChars:       3000,
		EssayExportMinChars: 1500,
		EssayMaxPoints:      60,
	}
}

func newTestService(t *testing.T, cfg config.ExamConfig) (*ExamService, *fakeStore, *captureExporter) {
	t.Helper()
	store := newFakeStore()
	exporter := &captureExporter{}
	svc := NewExamService(store, testBank(t), cfg, exporter, zerolog.Nop())
	return svc, store, exporter
}

func seedAccount(store *fakeStore) *model.Account {
	acc := &model.Account{
		ID:         uuid.New(),
		FullName:   "Nguyen Van A",
		Email:      "a@example.com",
		NationalID: "012345678901",
		Phone:      "0912345678",
		Quiz:       model.NewQuizSession(),
		Essay:      model.NewEssaySession(),
	}
	store.put(acc)
	return acc
}

func TestStartQuizSamplesOnce(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, testExamConfig())
	acc := seedAccount(store)

	if _, err := svc.StartQuiz(ctx, acc.ID); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	first, _ := store.GetByID(ctx, acc.ID)
	if first.Quiz.Status != model.QuizStatusInProgress {
		t.Fatalf("expected in_progress, got %s", first.Quiz.Status)
	}
	if len(first.Quiz.QuestionIDs) != 2 {
		t.Fatalf("expected 2 sampled questions, got %d", len(first.Quiz.QuestionIDs))
	}
	if first.Quiz.QuestionIDs[0] == first.Quiz.QuestionIDs[1] {
		t.Fatalf("sampled the same question twice: %v", first.Quiz.QuestionIDs)
	}

	// A reload must not change the session.
	if _, err := svc.StartQuiz(ctx, acc.ID); err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	second, _ := store.GetByID(ctx, acc.ID)
	if len(second.Quiz.QuestionIDs) != 2 ||
		second.Quiz.QuestionIDs[0] != first.Quiz.QuestionIDs[0] ||
		second.Quiz.QuestionIDs[1] != first.Quiz.QuestionIDs[1] {
		t.Fatalf("repeat start re-sampled: %v vs %v", second.Quiz.QuestionIDs, first.Quiz.QuestionIDs)
	}
	for id, order := range first.Quiz.ChoiceOrders {
		for i, v := range order {
			if second.Quiz.ChoiceOrders[id][i] != v {
				t.Fatalf("repeat start reshuffled choices for %s", id)
			}
		}
	}
}

func TestStartQuizEndsAt(t *testing.T) {
	ctx := context.Background()
	cfg := testExamConfig()
	cfg.QuizDurationMin = 30
	svc, store, _ := newTestService(t, cfg)
	acc := seedAccount(store)

	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return started }

	res, err := svc.StartQuiz(ctx, acc.ID)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if res.EndsAt == nil || !res.EndsAt.Equal(started.Add(30*time.Minute)) {
		t.Fatalf("expected ends_at 30m after start, got %v", res.EndsAt)
	}

	// Untimed config reports no end.
	cfg.QuizDurationMin = 0
	svc2, store2, _ := newTestService(t, cfg)
	acc2 := seedAccount(store2)
	res, err = svc2.StartQuiz(ctx, acc2.ID)
	if err != nil {
		t.Fatalf("untimed start failed: %v", err)
	}
	if res.EndsAt != nil {
		t.Fatalf("untimed quiz must not report an end, got %v", res.EndsAt)
	}
}

func TestStartQuizGates(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, testExamConfig())

	submitted := seedAccount(store)
	submitted.Quiz.Status = model.QuizStatusSubmitted
	if _, err := svc.StartQuiz(ctx, submitted.ID); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}

	locked := seedAccount(store)
	locked.Quiz.Locked = true
	if _, err := svc.StartQuiz(ctx, locked.ID); !errors.Is(err, ErrStartsExhausted) {
		t.Fatalf("expected ErrStartsExhausted, got %v", err)
	}

	if _, err := svc.StartQuiz(ctx, uuid.New()); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestStartQuizDeadline(t *testing.T) {
	ctx := context.Background()
	cfg := testExamConfig()
	deadline := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg.QuizDeadline = &deadline

	svc, store, _ := newTestService(t, cfg)
	acc := seedAccount(store)
	svc.now = func() time.Time { return deadline.Add(time.Minute) }

	if _, err := svc.StartQuiz(ctx, acc.ID); !errors.Is(err, ErrDeadlinePassed) {
		t.Fatalf("expected ErrDeadlinePassed, got %v", err)
	}
}

func TestRecordResponseValidation(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, testExamConfig())
	acc := seedAccount(store)

	if err := svc.RecordResponse(ctx, acc.ID, "q1", 0); !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("expected ErrSessionNotActive before start, got %v", err)
	}

	if _, err := svc.StartQuiz(ctx, acc.ID); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	cur, _ := store.GetByID(ctx, acc.ID)
	inSession := cur.Quiz.QuestionIDs[0]

	if err := svc.RecordResponse(ctx, acc.ID, "nope", 0); !errors.Is(err, ErrQuestionNotInSession) {
		t.Fatalf("expected ErrQuestionNotInSession, got %v", err)
	}
	if err := svc.RecordResponse(ctx, acc.ID, inSession, -1); !errors.Is(err, ErrInvalidChoice) {
		t.Fatalf("expected ErrInvalidChoice for -1, got %v", err)
	}
	tooHigh := len(cur.Quiz.ChoiceOrders[inSession])
	if err := svc.RecordResponse(ctx, acc.ID, inSession, tooHigh); !errors.Is(err, ErrInvalidChoice) {
		t.Fatalf("expected ErrInvalidChoice for %d, got %v", tooHigh, err)
	}

	if err := svc.RecordResponse(ctx, acc.ID, inSession, 0); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := svc.RecordResponse(ctx, acc.ID, inSession, 1); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	cur, _ = store.GetByID(ctx, acc.ID)
	if got := cur.Quiz.Responses[inSession].SelectedIndex; got != 1 {
		t.Fatalf("expected overwrite to 1, got %d", got)
	}
}

func TestScoringRemapsShuffledChoices(t *testing.T) {
	bank := testBank(t)

	// q1's correct answer sits at original index 2. With the session
	// order [2 0 3 1] the correct choice is displayed first, so picking
	// displayed position 0 scores.
	quiz := model.QuizSession{
		ChoiceOrders: map[string][]int{"q1": {2, 0, 3, 1}},
		Responses:    map[string]model.Response{"q1": {SelectedIndex: 0}},
	}
	if got := ComputeQuizScore(quiz, bank, 2, 40); got != 2 {
		t.Fatalf("expected 2 points for remapped correct pick, got %d", got)
	}

	// Picking displayed position 2 maps to original index 3: wrong.
	quiz.Responses["q1"] = model.Response{SelectedIndex: 2}
	if got := ComputeQuizScore(quiz, bank, 2, 40); got != 0 {
		t.Fatalf("expected 0 points for wrong pick, got %d", got)
	}
}

func TestComputeQuizScoreClampsAndSkipsBadData(t *testing.T) {
	bank := testBank(t)

	quiz := model.QuizSession{
		ChoiceOrders: map[string][]int{
			"q1":   {0, 1, 2, 3},
			"q2":   {0, 1, 2, 3},
			"gone": {0, 1},
		},
		Responses: map[string]model.Response{
			"q1":   {SelectedIndex: 2}, // correct
			"q2":   {SelectedIndex: 0}, // correct
			"gone": {SelectedIndex: 0}, // retired question: ignored
		},
	}

	if got := ComputeQuizScore(quiz, bank, 2, 40); got != 4 {
		t.Fatalf("expected 4, got %d", got)
	}
	// Cap applies when per-question points exceed the scale.
	if got := ComputeQuizScore(quiz, bank, 30, 40); got != 40 {
		t.Fatalf("expected clamp to 40, got %d", got)
	}
}

func TestSubmitQuizIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, store, exporter := newTestService(t, testExamConfig())
	acc := seedAccount(store)

	if _, err := svc.StartQuiz(ctx, acc.ID); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	cur, _ := store.GetByID(ctx, acc.ID)
	qid := cur.Quiz.QuestionIDs[0]
	q, _ := svc.bank.Get(qid)
	order := cur.Quiz.ChoiceOrders[qid]

	// Answer the first question correctly through the displayed order.
	displayed := -1
	for i, orig := range order {
		if orig == q.AnswerIndex {
			displayed = i
			break
		}
	}
	if err := svc.RecordResponse(ctx, acc.ID, qid, displayed); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	first, err := svc.SubmitQuiz(ctx, acc.ID)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if first.Score != 2 {
		t.Fatalf("expected score 2, got %d", first.Score)
	}

	// Every later trigger returns the recorded score unchanged.
	for i := 0; i < 3; i++ {
		again, err := svc.SubmitQuiz(ctx, acc.ID)
		if err != nil {
			t.Fatalf("repeat submit failed: %v", err)
		}
		if again.Score != first.Score {
			t.Fatalf("repeat submit changed score: %d vs %d", again.Score, first.Score)
		}
	}

	cur, _ = store.GetByID(ctx, acc.ID)
	if cur.Quiz.Status != model.QuizStatusSubmitted || !cur.Quiz.Locked {
		t.Fatalf("expected submitted+locked, got %+v", cur.Quiz)
	}
	if cur.TotalScore != 2 {
		t.Fatalf("expected total 2, got %v", cur.TotalScore)
	}
	// Only the first submission exports.
	if exporter.count() != 1 {
		t.Fatalf("expected 1 export, got %d", exporter.count())
	}
}

func TestSubmitQuizFromNotStarted(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, testExamConfig())
	acc := seedAccount(store)

	// A violation threshold can finalize a session that never started.
	res, err := svc.SubmitQuiz(ctx, acc.ID)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if res.Score != 0 {
		t.Fatalf("expected score 0, got %d", res.Score)
	}
	cur, _ := store.GetByID(ctx, acc.ID)
	if cur.Quiz.Status != model.QuizStatusSubmitted {
		t.Fatalf("expected submitted, got %s", cur.Quiz.Status)
	}
}

func TestSubmitEssayTruncatesAndCaps(t *testing.T) {
	ctx := context.Background()
	cfg := testExamConfig()
	cfg.EssayMaxChars = 10
	cfg.EssayExportMinChars = 5
	svc, store, _ := newTestService(t, cfg)
	acc := seedAccount(store)

	long := strings.Repeat("ắ", 25) // multibyte runes; cut by rune count
	if err := svc.SubmitEssay(ctx, acc.ID, long); err != nil {
		t.Fatalf("essay failed: %v", err)
	}
	cur, _ := store.GetByID(ctx, acc.ID)
	if got := len([]rune(cur.Essay.Attempts[0].Content)); got != 10 {
		t.Fatalf("expected 10 runes stored, got %d", got)
	}

	if err := svc.SubmitEssay(ctx, acc.ID, "   \n\t  "); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}

	if err := svc.SubmitEssay(ctx, acc.ID, "two"); err != nil {
		t.Fatalf("second attempt failed: %v", err)
	}
	if err := svc.SubmitEssay(ctx, acc.ID, "three"); err != nil {
		t.Fatalf("third attempt failed: %v", err)
	}
	if err := svc.SubmitEssay(ctx, acc.ID, "four"); !errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("expected ErrAttemptsExhausted, got %v", err)
	}
}

func TestSubmitEssayDeadline(t *testing.T) {
	ctx := context.Background()
	cfg := testExamConfig()
	deadline := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	cfg.EssayDeadline = &deadline
	svc, store, _ := newTestService(t, cfg)
	acc := seedAccount(store)

	svc.now = func() time.Time { return deadline.Add(time.Second) }
	if err := svc.SubmitEssay(ctx, acc.ID, "late"); !errors.Is(err, ErrDeadlinePassed) {
		t.Fatalf("expected ErrDeadlinePassed, got %v", err)
	}
}

func TestSubmitEssayExportThreshold(t *testing.T) {
	ctx := context.Background()
	cfg := testExamConfig()
	cfg.EssayMaxChars = 100
	cfg.EssayExportMinChars = 10
	svc, store, exporter := newTestService(t, cfg)
	acc := seedAccount(store)

	if err := svc.SubmitEssay(ctx, acc.ID, "short"); err != nil {
		t.Fatalf("essay failed: %v", err)
	}
	if exporter.count() != 0 {
		t.Fatalf("short draft must not export, got %d rows", exporter.count())
	}

	if err := svc.SubmitEssay(ctx, acc.ID, strings.Repeat("x", 11)); err != nil {
		t.Fatalf("essay failed: %v", err)
	}
	if exporter.count() != 1 {
		t.Fatalf("substantial draft must export, got %d rows", exporter.count())
	}
}

func TestEntryViews(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, testExamConfig())
	acc := seedAccount(store)

	view, err := svc.GetEntry(ctx, acc.ID, "quiz")
	if err != nil {
		t.Fatalf("entry failed: %v", err)
	}
	if view.Stage != StageRules || view.Rules == nil {
		t.Fatalf("expected rules stage before start, got %+v", view)
	}
	if view.Rules.PerAttemptCount != 2 {
		t.Fatalf("expected per-attempt count 2, got %d", view.Rules.PerAttemptCount)
	}

	if _, err := svc.StartQuiz(ctx, acc.ID); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	view, err = svc.GetEntry(ctx, acc.ID, "quiz")
	if err != nil {
		t.Fatalf("entry failed: %v", err)
	}
	if view.Stage != StageInProgress || view.Quiz == nil {
		t.Fatalf("expected in-progress view, got %+v", view)
	}
	cur, _ := store.GetByID(ctx, acc.ID)
	for _, sq := range view.Quiz.Questions {
		orig, _ := svc.bank.Get(sq.ID)
		order := cur.Quiz.ChoiceOrders[sq.ID]
		if len(sq.Choices) != len(orig.Choices) {
			t.Fatalf("choice count mismatch for %s", sq.ID)
		}
		for i, c := range sq.Choices {
			if c != orig.Choices[order[i]] {
				t.Fatalf("choices for %s not permuted by session order", sq.ID)
			}
		}
	}

	if _, err := svc.SubmitQuiz(ctx, acc.ID); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	view, err = svc.GetEntry(ctx, acc.ID, "quiz")
	if err != nil {
		t.Fatalf("entry failed: %v", err)
	}
	if view.Stage != StageSubmitted || view.Score == nil {
		t.Fatalf("expected submitted view with score, got %+v", view)
	}
}

func TestEssayEntryView(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, testExamConfig())
	acc := seedAccount(store)

	if err := svc.SubmitEssay(ctx, acc.ID, "my draft"); err != nil {
		t.Fatalf("essay failed: %v", err)
	}

	view, err := svc.GetEntry(ctx, acc.ID, "essay")
	if err != nil {
		t.Fatalf("entry failed: %v", err)
	}
	if view.Stage != StageEssay || view.Essay == nil {
		t.Fatalf("expected essay view, got %+v", view)
	}
	if view.Essay.AttemptsLeft != 2 {
		t.Fatalf("expected 2 attempts left, got %d", view.Essay.AttemptsLeft)
	}
	if view.Essay.LastContent != "my draft" {
		t.Fatalf("expected last content echoed, got %q", view.Essay.LastContent)
	}

	// Closed after the deadline.
	deadline := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	svc.cfg.EssayDeadline = &deadline
	svc.now = func() time.Time { return deadline.Add(time.Hour) }
	view, err = svc.GetEntry(ctx, acc.ID, "essay")
	if err != nil {
		t.Fatalf("entry failed: %v", err)
	}
	if view.Stage != StageEssayClosed {
		t.Fatalf("expected essay closed, got %s", view.Stage)
	}
}
