package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kafka-portal/kafka-portal/internal/apperr"
	"github.com/kafka-portal/kafka-portal/internal/db/models"
	"github.com/kafka-portal/kafka-portal/internal/db/repositories"
	"github.com/kafka-portal/kafka-portal/internal/middleware"
	"github.com/kafka-portal/kafka-portal/internal/services"
)

// RequestHandlers handles the self-service request endpoints
type RequestHandlers struct {
	requests *services.RequestService
}

// NewRequestHandlers creates a new RequestHandlers instance
func NewRequestHandlers(requests *services.RequestService) *RequestHandlers {
	return &RequestHandlers{requests: requests}
}

type submitTopicRequest struct {
	models.TopicPayload
	Rationale string `json:"rationale"`
}

// SubmitTopicHandler creates a pending topic request.
// POST /api/v1/requests/topic
func (h *RequestHandlers) SubmitTopicHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body submitTopicRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, apperr.New(apperr.KindValidation, "invalid request body"))
			return
		}

		user := middleware.CurrentUser(c)
		req, err := h.requests.SubmitTopic(c.Request.Context(), user, &body.TopicPayload, body.Rationale, c.ClientIP())
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"request": req})
	}
}

type submitACLRequest struct {
	models.ACLPayload
	Rationale string `json:"rationale"`
}

// SubmitACLHandler creates a pending ACL request.
// POST /api/v1/requests/acl
func (h *RequestHandlers) SubmitACLHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body submitACLRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, apperr.New(apperr.KindValidation, "invalid request body"))
			return
		}

		user := middleware.CurrentUser(c)
		req, err := h.requests.SubmitACL(c.Request.Context(), user, &body.ACLPayload, body.Rationale, c.ClientIP())
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"request": req})
	}
}

// ListHandler returns the caller's requests, newest first. Admins see all
// requests and may additionally filter by user_id.
// GET /api/v1/requests
func (h *RequestHandlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		filters := requestFiltersFromQuery(c)

		requests, err := h.requests.List(c.Request.Context(), user, filters)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"requests": requests,
			"count":    len(requests),
		})
	}
}

// GetHandler returns a single request. Non-admins can only see their own;
// everyone else's requests read as not found.
// GET /api/v1/requests/:id
func (h *RequestHandlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		req, err := h.requests.Get(c.Request.Context(), user, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"request": req})
	}
}

// CancelHandler withdraws the caller's own pending request.
// POST /api/v1/requests/:id/cancel
func (h *RequestHandlers) CancelHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		req, err := h.requests.Cancel(c.Request.Context(), user, c.Param("id"), c.ClientIP())
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"request": req})
	}
}

func requestFiltersFromQuery(c *gin.Context) repositories.RequestFilters {
	filters := repositories.RequestFilters{
		UserID: c.Query("user_id"),
		Status: models.RequestStatus(c.Query("status")),
		Kind:   models.RequestKind(c.Query("kind")),
	}
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		filters.Limit = v
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
		filters.Offset = v
	}
	return filters
}
