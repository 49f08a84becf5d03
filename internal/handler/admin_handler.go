package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/contestvn/exam-backend/internal/model"
	"github.com/contestvn/exam-backend/internal/response"
	"github.com/contestvn/exam-backend/internal/service"
	"github.com/contestvn/exam-backend/internal/validator"
)

// AdminHandler handles operator endpoints.
type AdminHandler struct {
	adminService *service.AdminService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(adminService *service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// ResetExam godoc
// POST /api/v1/admin/reset-exam
// Wipes a contestant's quiz and/or essay state so they can retake it.
func (h *AdminHandler) ResetExam(c *gin.Context) {
	var req model.ResetExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.adminService.ResetExam(c.Request.Context(), req.NationalID, req.Scopes)
	if errors.Is(err, service.ErrAccountNotFound) {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// GradeEssay godoc
// POST /api/v1/admin/essay-score
// Records a manual essay grade against the latest attempt.
func (h *AdminHandler) GradeEssay(c *gin.Context) {
	var req model.GradeEssayRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	snap, err := h.adminService.GradeEssay(c.Request.Context(), req.NationalID, req.Score, req.Comment)
	if errors.Is(err, service.ErrAccountNotFound) {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, snap)
}

// AuditScore godoc
// GET /api/v1/admin/accounts/:national_id/score-audit
// Recomputes a quiz score from stored session state and compares it with
// the persisted value.
func (h *AdminHandler) AuditScore(c *gin.Context) {
	nationalID := c.Param("national_id")
	if !model.IsValidNationalID(model.NormalizeNationalID(nationalID)) {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	audit, err := h.adminService.AuditScore(c.Request.Context(), nationalID)
	if errors.Is(err, service.ErrAccountNotFound) {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, audit)
}
