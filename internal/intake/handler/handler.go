package handler

import (
	"net/http"

	"intake_backend/internal/intake/service"
	"intake_backend/platform/httpkit"
	"intake_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

type CreateSessionRequest struct {
	StudyID string `json:"studyId" validate:"omitempty,max=64"`
}

type SendMessageRequest struct {
	Message string `json:"message" validate:"required,max=4000"`
}

type Handler struct {
	svc            *service.Service
	val            *validator.Validator
	defaultStudyID string
}

func New(svc *service.Service, val *validator.Validator, defaultStudyID string) *Handler {
	return &Handler{svc: svc, val: val, defaultStudyID: defaultStudyID}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sessions", h.CreateSession)
	rg.POST("/sessions/:id/messages", h.SendMessage)
}

func (h *Handler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	// An empty body is allowed: the default study applies.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return
		}
		if err := h.val.Struct(req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
			return
		}
	}
	studyID := req.StudyID
	if studyID == "" {
		studyID = h.defaultStudyID
	}

	resp, err := h.svc.CreateSession(c.Request.Context(), studyID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, resp)
}

func (h *Handler) SendMessage(c *gin.Context) {
	sessionID := c.Param("id")

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	resp, err := h.svc.SendMessage(c.Request.Context(), sessionID, req.Message)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, resp)
}
