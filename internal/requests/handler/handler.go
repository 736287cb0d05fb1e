// Package handler exposes the requests HTTP API.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"hireline_backend/internal/requests/service"
	"hireline_backend/internal/requests/transport"
	"hireline_backend/platform/httpkit"
	"hireline_backend/platform/logger"
	"hireline_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request body"
	msgValidationFailed = "validation failed"
	msgInvalidRequestID = "invalid request ID"
)

// Handler handles service request HTTP requests.
type Handler struct {
	svc *service.Service
	val *validator.Validator
	log *logger.Logger
}

// NewHandler creates a new requests handler.
func NewHandler(svc *service.Service, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{svc: svc, val: val, log: log}
}

// HandleCreate accepts a new service request and starts its lifecycle in the
// background. Responds 202 with the request id and a status URL.
// POST /api/v1/requests
func (h *Handler) HandleCreate(c *gin.Context) {
	var input transport.CreateRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(input); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	req, err := h.svc.Create(c.Request.Context(), input.ToParams())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.Accepted(c, transport.CreateRequestResponse{
		ID:        req.ID,
		Status:    string(req.Status),
		StatusURL: "/api/v1/requests/" + req.ID.String() + "/status",
	})
}

// HandleGet returns one request with its interaction log.
// GET /api/v1/requests/:requestId
func (h *Handler) HandleGet(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	req, timeline, err := h.svc.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.RequestDetailResponse{Request: req, Timeline: timeline})
}

// HandleStatus returns the aggregate and per-provider call progress.
// GET /api/v1/requests/:requestId/status
func (h *Handler) HandleStatus(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	req, providers, err := h.svc.Status(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewStatusResponse(req, providers))
}

// HandleSelect accepts the user's provider choice for a recommended request
// and starts the booking leg.
// POST /api/v1/requests/:requestId/selection
func (h *Handler) HandleSelect(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	var input transport.SelectionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(input); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	if input.ProviderID == nil && input.Option == 0 {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, "providerId or option is required")
		return
	}

	req, err := h.svc.Select(c.Request.Context(), id, service.SelectionParams{
		ProviderID: input.ProviderID,
		Option:     input.Option,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, req)
}

func (h *Handler) requestID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("requestId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequestID, nil)
		return uuid.Nil, false
	}
	return id, true
}
