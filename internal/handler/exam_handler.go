package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/contestvn/exam-backend/internal/middleware"
	"github.com/contestvn/exam-backend/internal/model"
	"github.com/contestvn/exam-backend/internal/response"
	"github.com/contestvn/exam-backend/internal/service"
	"github.com/contestvn/exam-backend/internal/validator"
)

// ExamHandler handles the contestant-facing exam endpoints.
type ExamHandler struct {
	examService *service.ExamService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService) *ExamHandler {
	return &ExamHandler{examService: examService}
}

// GetEntry godoc
// GET /api/v1/exam/entry?mode=quiz|essay
// Returns the stage-dependent session view: rules before starting, the
// sanitized question set while in progress, the score after submission.
func (h *ExamHandler) GetEntry(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	mode := c.DefaultQuery("mode", "quiz")
	if mode != "quiz" && mode != "essay" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	view, err := h.examService.GetEntry(c.Request.Context(), userID, mode)
	if err != nil {
		failExam(c, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

// StartQuiz godoc
// POST /api/v1/exam/quiz/start
// Begins (or resumes) the quiz attempt. Safe to repeat while in progress.
func (h *ExamHandler) StartQuiz(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	result, err := h.examService.StartQuiz(c.Request.Context(), userID)
	if err != nil {
		failExam(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// RecordResponse godoc
// POST /api/v1/exam/quiz/responses
// Saves one answer. Repeating a question overwrites the earlier answer.
func (h *ExamHandler) RecordResponse(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req model.RecordResponseRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	err := h.examService.RecordResponse(c.Request.Context(), userID, req.QuestionID, *req.SelectedIndex)
	if err != nil {
		failExam(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// SubmitQuiz godoc
// POST /api/v1/exam/quiz/submit
// Finalizes the attempt. Every submission trigger lands here and repeat
// calls return the recorded score.
func (h *ExamHandler) SubmitQuiz(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	result, err := h.examService.SubmitQuiz(c.Request.Context(), userID)
	if err != nil {
		failExam(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// AutoSubmit godoc
// POST /api/v1/exam/quiz/auto-submit
// Unload-beacon variant of SubmitQuiz. Browsers ignore the response of a
// beacon, so this always answers 200 and only logs failures server-side.
func (h *ExamHandler) AutoSubmit(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	// Errors are swallowed on purpose: the sender is already gone.
	_, _ = h.examService.SubmitQuiz(c.Request.Context(), userID)
	response.Success(c, http.StatusOK, gin.H{})
}

// SubmitEssay godoc
// POST /api/v1/exam/essay
// Records one essay attempt, up to the configured attempt cap.
func (h *ExamHandler) SubmitEssay(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req model.SubmitEssayRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.examService.SubmitEssay(c.Request.Context(), userID, req.Content); err != nil {
		failExam(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// failExam maps exam service errors to HTTP responses.
func failExam(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAccountNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrAlreadySubmitted):
		response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
	case errors.Is(err, service.ErrStartsExhausted):
		response.Fail(c, http.StatusForbidden, response.ErrStartsExhausted)
	case errors.Is(err, service.ErrDeadlinePassed):
		response.Fail(c, http.StatusForbidden, response.ErrDeadlinePassed)
	case errors.Is(err, service.ErrSessionNotActive):
		response.Fail(c, http.StatusConflict, response.ErrSessionNotActive)
	case errors.Is(err, service.ErrInvalidChoice):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidChoice)
	case errors.Is(err, service.ErrQuestionNotInSession):
		response.Fail(c, http.StatusBadRequest, response.ErrQuestionNotInSession)
	case errors.Is(err, service.ErrAttemptsExhausted):
		response.Fail(c, http.StatusForbidden, response.ErrAttemptsExhausted)
	case errors.Is(err, service.ErrEmptyContent):
		response.Fail(c, http.StatusBadRequest, response.ErrEmptyContent)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// requireUserID pulls the authenticated contestant's account ID out of
// the JWT claims. Writes the error response itself on failure.
func requireUserID(c *gin.Context) (uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return uuid.Nil, false
	}
	userID, err := parseUserID(claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
		return uuid.Nil, false
	}
	return userID, true
}

func parseUserID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}
