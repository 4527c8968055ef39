// admin_handlers.go implements the admin review queue, the audit trail reader,
// and the read-only broker inspection endpoints.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kafka-portal/kafka-portal/internal/apperr"
	"github.com/kafka-portal/kafka-portal/internal/db/models"
	"github.com/kafka-portal/kafka-portal/internal/db/repositories"
	"github.com/kafka-portal/kafka-portal/internal/kafka"
	"github.com/kafka-portal/kafka-portal/internal/middleware"
	"github.com/kafka-portal/kafka-portal/internal/services"
)

// AdminHandlers handles admin-only endpoints
type AdminHandlers struct {
	requests    *services.RequestService
	audit       *services.AuditRecorder
	provisioner kafka.Provisioner
}

// NewAdminHandlers creates a new AdminHandlers instance
func NewAdminHandlers(requests *services.RequestService, audit *services.AuditRecorder, provisioner kafka.Provisioner) *AdminHandlers {
	return &AdminHandlers{requests: requests, audit: audit, provisioner: provisioner}
}

// ListRequestsHandler returns requests across all users.
// GET /api/v1/admin/requests
func (h *AdminHandlers) ListRequestsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		admin := middleware.CurrentUser(c)
		requests, err := h.requests.List(c.Request.Context(), admin, requestFiltersFromQuery(c))
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

// ListPendingHandler returns the review queue: all pending requests across
// all users, newest first.
// GET /api/v1/admin/requests/pending
func (h *AdminHandlers) ListPendingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		admin := middleware.CurrentUser(c)
		filters := requestFiltersFromQuery(c)
		filters.Status = models.RequestStatusPending

		requests, err := h.requests.List(c.Request.Context(), admin, filters)
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

// ApproveHandler approves a pending request and provisions the resource on
// the broker before the decision commits.
// PATCH /api/v1/admin/requests/:id/approve
func (h *AdminHandlers) ApproveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		admin := middleware.CurrentUser(c)
		req, err := h.requests.Approve(c.Request.Context(), admin, c.Param("id"), c.ClientIP())
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"request": req})
	}
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// RejectHandler rejects a pending request with a mandatory reason.
// PATCH /api/v1/admin/requests/:id/reject
func (h *AdminHandlers) RejectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body rejectRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, apperr.New(apperr.KindValidation, "invalid request body"))
			return
		}

		admin := middleware.CurrentUser(c)
		req, err := h.requests.Reject(c.Request.Context(), admin, c.Param("id"), body.Reason, c.ClientIP())
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"request": req})
	}
}

// AuditHandler returns audit trail entries, newest first.
// GET /api/v1/admin/audit
func (h *AdminHandlers) AuditHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filters := repositories.AuditFilters{
			UserID:       c.Query("user_id"),
			Action:       c.Query("action"),
			ResourceType: c.Query("resource_type"),
			ResourceID:   c.Query("resource_id"),
		}
		if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
			filters.Limit = v
		}
		if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
			filters.Offset = v
		}
		if v, err := time.Parse(time.RFC3339, c.Query("since")); err == nil {
			filters.Since = v
		}
		if v, err := time.Parse(time.RFC3339, c.Query("until")); err == nil {
			filters.Until = v
		}

		entries, err := h.audit.List(c.Request.Context(), filters)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"entries": entries,
			"count":   len(entries),
		})
	}
}

// TopicsHandler lists the topics that exist on the broker.
// GET /api/v1/admin/kafka/topics
func (h *AdminHandlers) TopicsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		topics, err := h.provisioner.ListTopics(c.Request.Context())
		if err != nil {
			respondError(c, apperr.Wrap(apperr.KindUpstream, "failed to list topics", err))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"topics": topics,
			"count":  len(topics),
		})
	}
}

// ACLsHandler lists the access-control entries that exist on the broker.
// GET /api/v1/admin/kafka/acls
func (h *AdminHandlers) ACLsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		acls, err := h.provisioner.ListACLs(c.Request.Context())
		if err != nil {
			respondError(c, apperr.Wrap(apperr.KindUpstream, "failed to list ACLs", err))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"acls":  acls,
			"count": len(acls),
		})
	}
}

// ClusterHandler describes the broker cluster.
// GET /api/v1/admin/kafka/cluster
func (h *AdminHandlers) ClusterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		info, err := h.provisioner.DescribeCluster(c.Request.Context())
		if err != nil {
			respondError(c, apperr.Wrap(apperr.KindUpstream, "failed to describe cluster", err))
			return
		}

		c.JSON(http.StatusOK, gin.H{"cluster": info})
	}
}
