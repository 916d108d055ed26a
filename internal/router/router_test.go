package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devflow/devflow-api/config"
	"github.com/devflow/devflow-api/internal/bootstrap"
	"github.com/devflow/devflow-api/internal/handler/activity"
	"github.com/devflow/devflow-api/internal/handler/admin"
	"github.com/devflow/devflow-api/internal/handler/health"
	notificationHandler "github.com/devflow/devflow-api/internal/handler/notification"
	presenceHandler "github.com/devflow/devflow-api/internal/handler/presence"
	promHandler "github.com/devflow/devflow-api/internal/handler/prometheus"
	"github.com/devflow/devflow-api/internal/middleware"
	"github.com/devflow/devflow-api/internal/model"
	"github.com/devflow/devflow-api/internal/presence"
	"github.com/devflow/devflow-api/internal/realtime"
	"github.com/devflow/devflow-api/internal/repository/postgres"
	"github.com/devflow/devflow-api/internal/router"
	"github.com/devflow/devflow-api/internal/service/notification"
	"github.com/devflow/devflow-api/internal/testutil"
	"github.com/devflow/devflow-api/pkg/auth"
	"github.com/devflow/devflow-api/pkg/logger"
	"github.com/devflow/devflow-api/pkg/messaging/memory"
	"github.com/devflow/devflow-api/pkg/metrics"
)

// APIResponse represents the API response structure
type APIResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Errors  []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors,omitempty"`
}

func (r APIResponse) IsSuccess() bool {
	return r.Status == "success"
}

type listData struct {
	Items      []model.NotificationDetail `json:"items"`
	Pagination struct {
		Page      int `json:"page"`
		PageSize  int `json:"page_size"`
		Total     int `json:"total"`
		TotalPage int `json:"total_pages"`
	} `json:"pagination"`
}

type apiFixture struct {
	engine   *gin.Engine
	presence *presence.MemoryRegistry
	jwt      auth.JWTService
	alice    *model.User
	bob      *model.User
	project  *model.ProjectSummary
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewTestDB(t)
	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")
	project := testutil.CreateProject(t, db, alice, "devflow-cli")

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg, "test")

	repos, _ := bootstrap.Repositories(postgres.NewBaseRepository(db), config.CacheConfig{})
	registry := presence.NewMemoryRegistry()
	publisher := realtime.NewPublisher(memory.NewBroker(), registry, realtime.DefaultChannel)
	svc := notification.NewService(repos, publisher, nil, logger.Nop(), m)
	jwtSvc := auth.NewJWTService("test-secret", "devflow")

	handlers := router.Handlers{
		Health:        health.NewHandler(map[string]health.Check{"database": db.PingContext}),
		Notifications: notificationHandler.NewHandler(svc, publisher, logger.Nop()),
		Activity:      activity.NewHandler(svc),
		Presence:      presenceHandler.NewHandler(publisher),
		Admin:         admin.NewHandler(svc),
	}
	r := router.NewRouter(
		middleware.NewAuthMiddleware(jwtSvc, []uuid.UUID{alice.ID}),
		handlers,
		promHandler.New(reg, m),
		router.RouterConfig{CORS: middleware.DefaultCORSConfig(), MaxBodyBytes: 1 << 16},
	)
	r.Setup()

	return &apiFixture{
		engine:   r.Engine(),
		presence: registry,
		jwt:      jwtSvc,
		alice:    alice,
		bob:      bob,
		project:  project,
	}
}

func (f *apiFixture) token(t *testing.T, u *model.User) string {
	t.Helper()
	token, err := f.jwt.GenerateAccessToken(u.ID, u.Email, time.Hour)
	require.NoError(t, err)
	return token
}

func (f *apiFixture) makeRequest(t *testing.T, method, path string, body interface{}, token string) (int, APIResponse) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, "/api/v1"+path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	var resp APIResponse
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w.Code, resp
}

func decode(t *testing.T, resp APIResponse, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func TestHealthAndMetrics(t *testing.T) {
	f := newAPIFixture(t)

	for _, path := range []string{"/api/v1/health/live", "/api/v1/health/ready"} {
		w := httptest.NewRecorder()
		f.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Contains(t, w.Body.String(), "UP")
	}

	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_http_requests_total")
}

func TestAuthenticationRequired(t *testing.T) {
	f := newAPIFixture(t)

	status, resp := f.makeRequest(t, http.MethodGet, "/notifications", nil, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "error", resp.Status)

	status, _ = f.makeRequest(t, http.MethodGet, "/notifications", nil, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestNotificationFlow(t *testing.T) {
	f := newAPIFixture(t)
	aliceToken := f.token(t, f.alice)
	bobToken := f.token(t, f.bob)

	// Bob looks at Alice's profile
	status, resp := f.makeRequest(t, http.MethodPost, "/activity/profile-views", map[string]interface{}{
		"profile_user_id": f.alice.ID.String(),
	}, bobToken)
	require.Equal(t, http.StatusCreated, status, resp.Message)
	var created model.NotificationDetail
	decode(t, resp, &created)
	assert.Equal(t, f.alice.ID, created.UserID)

	// Unread count
	status, resp = f.makeRequest(t, http.MethodGet, "/notifications/unread-count", nil, aliceToken)
	require.Equal(t, http.StatusOK, status)
	var count struct {
		Count int `json:"count"`
	}
	decode(t, resp, &count)
	assert.Equal(t, 1, count.Count)

	// List
	status, resp = f.makeRequest(t, http.MethodGet, "/notifications?page=1&page_size=10", nil, aliceToken)
	require.Equal(t, http.StatusOK, status)
	var list listData
	decode(t, resp, &list)
	require.Len(t, list.Items, 1)
	assert.Equal(t, created.ID, list.Items[0].ID)
	assert.Equal(t, 1, list.Pagination.Total)
	assert.Equal(t, 10, list.Pagination.PageSize)
	require.NotNil(t, list.Items[0].TriggeredBy)
	assert.Equal(t, "bob", list.Items[0].TriggeredBy.Username)

	// Bob cannot mark Alice's notification
	var affected struct {
		Affected int64 `json:"affected"`
	}
	status, resp = f.makeRequest(t, http.MethodPut, fmt.Sprintf("/notifications/%s/read", created.ID), nil, bobToken)
	require.Equal(t, http.StatusOK, status)
	decode(t, resp, &affected)
	assert.Equal(t, int64(0), affected.Affected)

	status, resp = f.makeRequest(t, http.MethodPut, fmt.Sprintf("/notifications/%s/read", created.ID), nil, aliceToken)
	require.Equal(t, http.StatusOK, status)
	decode(t, resp, &affected)
	assert.Equal(t, int64(1), affected.Affected)

	status, resp = f.makeRequest(t, http.MethodGet, "/notifications/unread-count", nil, aliceToken)
	require.Equal(t, http.StatusOK, status)
	decode(t, resp, &count)
	assert.Equal(t, 0, count.Count)

	// Read-all with nothing unread
	status, resp = f.makeRequest(t, http.MethodPut, "/notifications/read-all", nil, aliceToken)
	require.Equal(t, http.StatusOK, status)
	decode(t, resp, &affected)
	assert.Equal(t, int64(0), affected.Affected)

	// Delete
	status, resp = f.makeRequest(t, http.MethodDelete, fmt.Sprintf("/notifications/%s", created.ID), nil, aliceToken)
	require.Equal(t, http.StatusOK, status)
	decode(t, resp, &affected)
	assert.Equal(t, int64(1), affected.Affected)

	status, resp = f.makeRequest(t, http.MethodGet, "/notifications", nil, aliceToken)
	require.Equal(t, http.StatusOK, status)
	decode(t, resp, &list)
	assert.Empty(t, list.Items)
	assert.Equal(t, 20, list.Pagination.PageSize)
}

func TestActivity_SkippedNotifications(t *testing.T) {
	f := newAPIFixture(t)
	aliceToken := f.token(t, f.alice)

	status, resp := f.makeRequest(t, http.MethodPost, "/activity/profile-views", map[string]interface{}{
		"profile_user_id": f.alice.ID.String(),
	}, aliceToken)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"skipped":true}`, string(resp.Data))

	status, _ = f.makeRequest(t, http.MethodPost, "/activity/project-views/milestone", map[string]interface{}{
		"project_id": f.project.ID.String(),
		"view_count": 101,
	}, aliceToken)
	assert.Equal(t, http.StatusOK, status)

	status, resp = f.makeRequest(t, http.MethodPost, "/activity/project-views/milestone", map[string]interface{}{
		"project_id": f.project.ID.String(),
		"view_count": 100,
	}, aliceToken)
	require.Equal(t, http.StatusCreated, status)
	var created model.NotificationDetail
	decode(t, resp, &created)
	assert.Equal(t, model.NotificationProjectViewed, created.Type)
}

func TestReviewStatusRequiresProjectAuthor(t *testing.T) {
	f := newAPIFixture(t)
	body := map[string]interface{}{
		"review_id":   uuid.New().String(),
		"project_id":  f.project.ID.String(),
		"reviewer_id": f.bob.ID.String(),
		"approved":    true,
	}

	// Bob reviewed Alice's project and tries to approve his own review.
	status, resp := f.makeRequest(t, http.MethodPost, "/activity/reviews/status", body, f.token(t, f.bob))
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "error", resp.Status)

	status, resp = f.makeRequest(t, http.MethodGet, "/notifications/unread-count", nil, f.token(t, f.bob))
	require.Equal(t, http.StatusOK, status)
	var count struct {
		Count int `json:"count"`
	}
	decode(t, resp, &count)
	assert.Equal(t, 0, count.Count)

	status, resp = f.makeRequest(t, http.MethodPost, "/activity/reviews/status", body, f.token(t, f.alice))
	require.Equal(t, http.StatusCreated, status)
	var created model.NotificationDetail
	decode(t, resp, &created)
	assert.Equal(t, f.bob.ID, created.UserID)
	assert.Equal(t, model.NotificationReviewApproved, created.Type)
	require.NotNil(t, created.TriggeredBy)
	assert.Equal(t, f.alice.ID, created.TriggeredBy.ID)
}

func TestValidationErrors(t *testing.T) {
	f := newAPIFixture(t)
	aliceToken := f.token(t, f.alice)

	status, resp := f.makeRequest(t, http.MethodPost, "/activity/project-likes", map[string]interface{}{}, aliceToken)
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotEmpty(t, resp.Errors)
	assert.Equal(t, "project_id", resp.Errors[0].Field)

	status, _ = f.makeRequest(t, http.MethodPost, "/activity/project-likes", map[string]interface{}{
		"project_id": "not-a-uuid",
	}, aliceToken)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.makeRequest(t, http.MethodGet, "/notifications?page_size=1000", nil, aliceToken)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.makeRequest(t, http.MethodGet, "/notifications?page=999999999999999999", nil, aliceToken)
	assert.Equal(t, http.StatusBadRequest, status)

	status, resp = f.makeRequest(t, http.MethodPut, "/notifications/not-a-uuid/read", nil, aliceToken)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid id", resp.Message)

	status, resp = f.makeRequest(t, http.MethodPost, "/admin/notifications", map[string]interface{}{
		"user_id": f.bob.ID.String(),
		"type":    "party-invite",
		"title":   "Hello",
	}, aliceToken)
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotEmpty(t, resp.Errors)
	assert.Equal(t, "type", resp.Errors[0].Field)
	assert.Equal(t, "Unknown notification type", resp.Errors[0].Message)
}

func TestAdminRoutes(t *testing.T) {
	f := newAPIFixture(t)
	aliceToken := f.token(t, f.alice)
	bobToken := f.token(t, f.bob)
	update := map[string]interface{}{"title": "Maintenance", "message": "Back soon"}

	status, _ := f.makeRequest(t, http.MethodPost, "/admin/system-updates", update, bobToken)
	assert.Equal(t, http.StatusForbidden, status)

	status, resp := f.makeRequest(t, http.MethodPost, "/admin/system-updates", update, aliceToken)
	assert.Equal(t, http.StatusAccepted, status)
	assert.True(t, resp.IsSuccess())

	status, resp = f.makeRequest(t, http.MethodPost, "/admin/achievements", map[string]interface{}{
		"user_id":     f.bob.ID.String(),
		"name":        "Early adopter",
		"description": "Joined in the first week",
	}, aliceToken)
	require.Equal(t, http.StatusCreated, status)
	var created model.NotificationDetail
	decode(t, resp, &created)
	assert.Equal(t, f.bob.ID, created.UserID)
	assert.Equal(t, model.NotificationAchievement, created.Type)

	for _, path := range []string{"/admin/achievements", "/admin/notifications"} {
		status, resp = f.makeRequest(t, http.MethodPost, path, map[string]interface{}{
			"user_id": uuid.New().String(),
			"type":    "achievement",
			"name":    "Ghost",
			"title":   "Ghost",
		}, aliceToken)
		assert.Equal(t, http.StatusNotFound, status, path)
		assert.Equal(t, "recipient not found", resp.Message, path)
	}
}

func TestPresenceRoutes(t *testing.T) {
	f := newAPIFixture(t)
	bobToken := f.token(t, f.bob)

	status, resp := f.makeRequest(t, http.MethodGet, "/presence/online-count", nil, bobToken)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"count":0}`, string(resp.Data))

	require.NoError(t, f.presence.Register(context.Background(), f.alice.ID, "conn-1"))

	status, resp = f.makeRequest(t, http.MethodGet, "/presence/users/"+f.alice.ID.String(), nil, bobToken)
	require.Equal(t, http.StatusOK, status)
	var user struct {
		UserID uuid.UUID `json:"user_id"`
		Online bool      `json:"online"`
	}
	decode(t, resp, &user)
	assert.Equal(t, f.alice.ID, user.UserID)
	assert.True(t, user.Online)

	status, resp = f.makeRequest(t, http.MethodGet, "/presence/online-count", nil, bobToken)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"count":1}`, string(resp.Data))
}

func TestBodyLimit(t *testing.T) {
	f := newAPIFixture(t)

	body := `{"title":"` + strings.Repeat("x", 1<<17) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/system-updates", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.token(t, f.alice))

	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
