// Package questionbank loads the static multiple-choice question set.
// The bank is immutable after Load and safe for concurrent reads.
package questionbank

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
)

// Question is one multiple-choice question. AnswerIndex refers to the
// original (unshuffled) position in Choices.
type Question struct {
	ID          string   `json:"id"`
	Text        string   `json:"text"`
	Choices     []string `json:"choices"`
	AnswerIndex int      `json:"answer_index"`
}

// Bank is the full immutable question set.
type Bank struct {
	questions []Question
	byID      map[string]Question
}

// Load reads and validates the bank from a JSON file: a top-level array
// of questions.
func Load(path string) (*Bank, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}

	var questions []Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}

	return New(questions)
}

// New builds a bank from an in-memory question slice, validating every
// entry. Used directly by tests.
func New(questions []Question) (*Bank, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("question bank is empty")
	}

	byID := make(map[string]Question, len(questions))
	for i, q := range questions {
		if strings.TrimSpace(q.ID) == "" {
			return nil, fmt.Errorf("question %d: missing id", i)
		}
		if _, dup := byID[q.ID]; dup {
			return nil, fmt.Errorf("question %q: duplicate id", q.ID)
		}
		if strings.TrimSpace(q.Text) == "" {
			return nil, fmt.Errorf("question %q: missing text", q.ID)
		}
		if len(q.Choices) < 2 {
			return nil, fmt.Errorf("question %q: needs at least 2 choices, got %d", q.ID, len(q.Choices))
		}
		if q.AnswerIndex < 0 || q.AnswerIndex >= len(q.Choices) {
			return nil, fmt.Errorf("question %q: answer index %d out of range [0,%d)", q.ID, q.AnswerIndex, len(q.Choices))
		}
		byID[q.ID] = q
	}

	return &Bank{questions: questions, byID: byID}, nil
}

// Len returns the number of questions in the bank.
func (b *Bank) Len() int {
	return len(b.questions)
}

// Get returns the question with the given id.
func (b *Bank) Get(id string) (Question, bool) {
	q, ok := b.byID[id]
	return q, ok
}

// Sample returns n distinct questions drawn uniformly without
// replacement, capped at the bank size.
func (b *Bank) Sample(n int) []Question {
	if n > len(b.questions) {
		n = len(b.questions)
	}
	shuffled := make([]Question, len(b.questions))
	copy(shuffled, b.questions)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:n]
}

// ChoiceOrder generates a uniform random permutation of [0, n) mapping
// displayed choice position to original choice index.
func ChoiceOrder(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	rand.Shuffle(n, func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	return order
}

// ApplyOrder permutes choices so that displayed position i holds
// choices[order[i]].
func ApplyOrder(choices []string, order []int) []string {
	out := make([]string, len(order))
	for i, orig := range order {
		out[i] = choices[orig]
	}
	return out
}
