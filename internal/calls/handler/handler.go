// Package handler exposes the calls HTTP API.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hireline_backend/internal/calls/dispatch"
	"hireline_backend/internal/calls/domain"
	"hireline_backend/internal/calls/service"
	"hireline_backend/internal/calls/transport"
	"hireline_backend/platform/httpkit"
	"hireline_backend/platform/logger"
	"hireline_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request body"
	msgValidationFailed = "validation failed"
)

// Handler handles call HTTP requests.
type Handler struct {
	svc        *service.Service
	dispatcher *dispatch.Dispatcher
	val        *validator.Validator
	log        *logger.Logger
}

// NewHandler creates a new calls handler.
func NewHandler(svc *service.Service, dispatcher *dispatch.Dispatcher, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{svc: svc, dispatcher: dispatcher, val: val, log: log}
}

// HandleCallWebhook ingests a completion notification from the voice
// provider. The endpoint always acknowledges with 200 so the provider never
// retries: a malformed or unrecognized payload is logged and dropped.
// POST /api/v1/webhooks/calls
func (h *Handler) HandleCallWebhook(c *gin.Context) {
	var envelope transport.WebhookEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		h.log.Warn("unparseable call webhook", "error", err)
		c.JSON(http.StatusOK, gin.H{"received": false})
		return
	}

	processed := h.svc.HandleWebhook(c.Request.Context(), envelope.Message)
	c.JSON(http.StatusOK, gin.H{"received": processed})
}

// HandleGetCall returns the reconciled result for one call.
// GET /api/v1/calls/:callId
func (h *Handler) HandleGetCall(c *gin.Context) {
	callID := c.Param("callId")
	if callID == "" {
		httpkit.Error(c, http.StatusBadRequest, "call ID is required", nil)
		return
	}

	res, err := h.svc.GetResult(c.Request.Context(), callID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, res)
}

// HandleDispatchBatch places a batch of calls and blocks until every call
// has a terminal outcome.
// POST /api/v1/calls/batch
func (h *Handler) HandleDispatchBatch(c *gin.Context) {
	req, ok := h.bindBatch(c)
	if !ok {
		return
	}

	batch, err := h.dispatcher.DispatchBatch(c.Request.Context(), req.ToCallRequests(), dispatch.Options{
		MaxConcurrent: req.MaxConcurrent,
		Urgency:       domain.Urgency(req.Urgency),
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewBatchResultResponse(batch))
}

// HandleDispatchBatchAsync accepts a batch, marks it queued and runs it in
// the background. Responds 202 with an execution id and a status URL.
// POST /api/v1/calls/batch/async
func (h *Handler) HandleDispatchBatchAsync(c *gin.Context) {
	req, ok := h.bindBatch(c)
	if !ok {
		return
	}

	executionID, err := h.dispatcher.DispatchBatchAsync(c.Request.Context(), req.ToCallRequests(), dispatch.Options{
		MaxConcurrent: req.MaxConcurrent,
		Urgency:       domain.Urgency(req.Urgency),
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Accepted(c, transport.AsyncDispatchResponse{
		ExecutionID: executionID,
		StatusURL:   "/api/v1/dispatches/" + executionID,
	})
}

// HandleGetExecution reports the status of an async dispatch.
// GET /api/v1/dispatches/:executionId
func (h *Handler) HandleGetExecution(c *gin.Context) {
	exec, ok := h.dispatcher.Execution(c.Param("executionId"))
	if !ok {
		httpkit.Error(c, http.StatusNotFound, "execution not found", nil)
		return
	}
	httpkit.OK(c, exec)
}

// HandleCacheStats reports the shape of the result cache.
// GET /api/v1/admin/cache/stats
func (h *Handler) HandleCacheStats(c *gin.Context) {
	httpkit.OK(c, h.svc.CacheStats())
}

// HandleDeleteCacheEntry evicts one call result from the cache.
// DELETE /api/v1/admin/cache/:callId
func (h *Handler) HandleDeleteCacheEntry(c *gin.Context) {
	callID := c.Param("callId")
	if !h.svc.DeleteCacheEntry(callID) {
		httpkit.Error(c, http.StatusNotFound, "cache entry not found", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": callID})
}

func (h *Handler) bindBatch(c *gin.Context) (transport.DispatchBatchRequest, bool) {
	var req transport.DispatchBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return req, false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return req, false
	}
	return req, true
}
