package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/kafka-portal/kafka-portal/internal/apperr"
	"github.com/kafka-portal/kafka-portal/internal/db/models"
	"github.com/kafka-portal/kafka-portal/internal/db/repositories"
	"github.com/kafka-portal/kafka-portal/internal/middleware"
	"github.com/kafka-portal/kafka-portal/internal/services"
)

// newRequestHandlers builds handlers over a sqlmock-backed request service.
// Tests that stop at validation never touch the mock.
func newRequestHandlers(t *testing.T) *RequestHandlers {
	t.Helper()
	db, _ := newRouterDB(t)
	requestRepo := repositories.NewRequestRepository(sqlx.NewDb(db, "sqlmock"))
	auditRepo := repositories.NewAuditRepository(db)
	svc := services.NewRequestService(requestRepo, services.NewAuditRecorder(auditRepo, nil), &mockProvisioner{})
	return NewRequestHandlers(svc)
}

// asUser injects an authenticated user the way AuthMiddleware would.
func asUser(user *models.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserKey, user)
		c.Set(middleware.UserIDKey, user.ID)
		c.Next()
	}
}

var testUser = &models.User{ID: "u-1", Username: "alice", IsActive: true}

func TestSubmitTopicHandler_RejectsShortRationale(t *testing.T) {
	h := newRequestHandlers(t)
	r := gin.New()
	r.POST("/requests/topic", asUser(testUser), h.SubmitTopicHandler())

	payload := map[string]interface{}{
		"topic_name":         "orders.incoming",
		"partitions":         3,
		"replication_factor": 2,
		"rationale":          "short",
	}
	body, _ := json.Marshal(payload)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/requests/topic", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["kind"] != string(apperr.KindValidation) {
		t.Errorf("kind = %q, want validation_error", resp["kind"])
	}
}

func TestSubmitTopicHandler_MalformedBodyCarriesKind(t *testing.T) {
	h := newRequestHandlers(t)
	r := gin.New()
	r.POST("/requests/topic", asUser(testUser), h.SubmitTopicHandler())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/requests/topic", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["kind"] != string(apperr.KindValidation) {
		t.Errorf("kind = %q, want validation_error", resp["kind"])
	}
}

func TestSubmitTopicHandler_RejectsBadPartitionCount(t *testing.T) {
	h := newRequestHandlers(t)
	r := gin.New()
	r.POST("/requests/topic", asUser(testUser), h.SubmitTopicHandler())

	payload := map[string]interface{}{
		"topic_name":         "orders.incoming",
		"partitions":         0,
		"replication_factor": 2,
		"rationale":          "we need a topic for the incoming order stream",
	}
	body, _ := json.Marshal(payload)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/requests/topic", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSubmitACLHandler_RejectsUnknownOperation(t *testing.T) {
	h := newRequestHandlers(t)
	r := gin.New()
	r.POST("/requests/acl", asUser(testUser), h.SubmitACLHandler())

	payload := map[string]interface{}{
		"principal":     "User:svc-orders",
		"operation":     "MUTATE",
		"resource_type": "TOPIC",
		"resource_name": "orders.incoming",
		"rationale":     "the order service needs broker access",
	}
	body, _ := json.Marshal(payload)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/requests/acl", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRejectHandler_RequiresReason(t *testing.T) {
	db, _ := newRouterDB(t)
	requestRepo := repositories.NewRequestRepository(sqlx.NewDb(db, "sqlmock"))
	auditRepo := repositories.NewAuditRepository(db)
	svc := services.NewRequestService(requestRepo, services.NewAuditRecorder(auditRepo, nil), &mockProvisioner{})
	h := NewAdminHandlers(svc, services.NewAuditRecorder(auditRepo, nil), &mockProvisioner{})

	admin := &models.User{ID: "a-1", Username: "root", IsAdmin: true, IsActive: true}
	r := gin.New()
	r.PATCH("/admin/requests/:id/reject", asUser(admin), h.RejectHandler())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/admin/requests/req-1/reject", bytes.NewBufferString(`{"reason":"   "}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestTopicsHandler_BrokerErrorMapsToBadGateway(t *testing.T) {
	h := NewAdminHandlers(nil, nil, &mockProvisioner{topicErr: errors.New("dial tcp: refused")})
	r := gin.New()
	r.GET("/admin/kafka/topics", h.TopicsHandler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/kafka/topics", nil))

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["error"] != "failed to list topics" {
		t.Errorf("error = %q, want sanitized message without the cause", resp["error"])
	}
}

func TestMeHandler_ReturnsCurrentUser(t *testing.T) {
	h := NewAuthHandlers(nil, nil)
	r := gin.New()
	r.GET("/users/me", asUser(testUser), h.MeHandler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users/me", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		User models.User `json:"user"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.User.Username != "alice" {
		t.Errorf("username = %q, want alice", resp.User.Username)
	}
}

func TestRequestFiltersFromQuery(t *testing.T) {
	var got repositories.RequestFilters
	r := gin.New()
	r.GET("/requests", func(c *gin.Context) {
		got = requestFiltersFromQuery(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/requests?status=PENDING&kind=TOPIC&limit=25&offset=50&user_id=u-9", nil))

	if got.Status != models.RequestStatusPending || got.Kind != models.RequestKindTopic {
		t.Errorf("status/kind = %v/%v", got.Status, got.Kind)
	}
	if got.Limit != 25 || got.Offset != 50 {
		t.Errorf("limit/offset = %d/%d, want 25/50", got.Limit, got.Offset)
	}
	if got.UserID != "u-9" {
		t.Errorf("user_id = %q, want u-9", got.UserID)
	}
}
