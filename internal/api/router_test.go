package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listingmod/internal/auth"
	"listingmod/internal/config"
	"listingmod/internal/db"
	"listingmod/internal/logging"
	"listingmod/internal/models"
	"listingmod/internal/service"
	"listingmod/internal/store"
	"listingmod/internal/util"
)

const testSecret = "test-secret-test-secret-test-secret!"

type testServer struct {
	t *testing.T
	h http.Handler
}

func newTestServer(t *testing.T, cfg config.Config) *testServer {
	t.Helper()
	sqdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "app.db"), 4, 4, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqdb.Close() })
	require.NoError(t, db.ApplyMigrations(sqdb.DB, filepath.Join("..", "..", "migrations", "sqlite")))

	log := logging.Discard()
	svc := service.New(cfg, store.New(sqdb), nil, log)
	return &testServer{t: t, h: NewRouter(cfg, svc, auth.NewVerifier(testSecret, ""), log)}
}

func token(t *testing.T, sub string, role models.Role) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return raw
}

func (s *testServer) do(method, path, tok string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, config.Config{})
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health/live", "", nil).Code)

	rec := s.do(http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ready", body["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestListingModerationFlow(t *testing.T) {
	s := newTestServer(t, config.Config{})
	ownerTok := token(t, "owner-1", models.RoleUser)
	modTok := token(t, "mod-1", models.RoleModerator)

	rec := s.do(http.MethodPost, "/api/v1/listings", ownerTok, map[string]any{
		"title": "Golf VII", "price_cents": 1250000, "city": "Wien",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	l := decode[models.Listing](t, rec)
	assert.Equal(t, models.StatusPending, l.Status)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/v1/listings/"+l.ID, "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/listings/"+l.ID, ownerTok, nil).Code)

	queue := decode[models.QueuePage](t, s.do(http.MethodGet, "/api/v1/moderation/pending?limit=5", modTok, nil))
	require.Len(t, queue.Items, 1)
	assert.Equal(t, 5, queue.Limit)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/api/v1/moderation/listings/"+l.ID+"/approve", ownerTok, nil).Code)

	rec = s.do(http.MethodPost, "/api/v1/moderation/listings/"+l.ID+"/approve", modTok, map[string]any{"featured": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decode[models.Listing](t, rec)
	assert.Equal(t, models.StatusPublished, approved.Status)
	assert.True(t, approved.Featured)

	rec = s.do(http.MethodPost, "/api/v1/moderation/listings/"+l.ID+"/reject", modTok, map[string]any{"reason": "late"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decode[util.APIError](t, rec).Code)

	rec = s.do(http.MethodGet, "/api/v1/listings/"+l.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[models.Listing](t, rec).Views)

	rec = s.do(http.MethodPut, "/api/v1/listings/"+l.ID, ownerTok, map[string]any{"price_cents": 1100000})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.StatusPending, decode[models.Listing](t, rec).Status)

	rec = s.do(http.MethodGet, "/api/v1/moderation/listings/"+l.ID+"/audit", modTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["consistent"])

	rec = s.do(http.MethodGet, "/api/v1/listings/"+l.ID+"/history", ownerTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[struct {
		Items []models.ModerationLogEntry `json:"items"`
	}](t, rec)
	assert.Len(t, history.Items, 2)
}

func TestRequestValidationErrors(t *testing.T) {
	s := newTestServer(t, config.Config{})
	ownerTok := token(t, "owner-1", models.RoleUser)
	modTok := token(t, "mod-1", models.RoleModerator)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/api/v1/listings", "", map[string]any{"title": "x"}).Code)

	rec := s.do(http.MethodPost, "/api/v1/listings", ownerTok, map[string]any{"title": "x", "price_cents": 100, "colour": "red"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", decode[util.APIError](t, rec).Code)

	rec = s.do(http.MethodPost, "/api/v1/listings", ownerTok, map[string]any{"title": "", "price_cents": 100})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", decode[util.APIError](t, rec).Code)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/moderation/listings/nope", modTok, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/moderation/listings/7f1b7d5e-2f55-4c57-a5b8-0c7b7d3f9a11", modTok, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/v1/moderation/batch/approve", modTok, map[string]any{"ids": []string{}}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/moderation/stats?period=decade", modTok, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/nothing", ownerTok, nil).Code)
}

func TestReportFlowAndRateLimit(t *testing.T) {
	s := newTestServer(t, config.Config{ReportRatePerMin: 2})
	ownerTok := token(t, "owner-1", models.RoleUser)
	buyerTok := token(t, "buyer-1", models.RoleUser)
	adminTok := token(t, "admin-1", models.RoleAdmin)

	var ids []string
	for i := 0; i < 3; i++ {
		rec := s.do(http.MethodPost, "/api/v1/listings", ownerTok, map[string]any{"title": "Car", "price_cents": 500000})
		require.Equal(t, http.StatusCreated, rec.Code)
		ids = append(ids, decode[models.Listing](t, rec).ID)
	}

	rec := s.do(http.MethodPost, "/api/v1/reports", buyerTok, map[string]any{"listing_id": ids[0], "reason": "fraud"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	report := decode[models.Report](t, rec)

	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, "/api/v1/reports", buyerTok, map[string]any{"listing_id": ids[0], "reason": "again"}).Code)
	assert.Equal(t, http.StatusTooManyRequests, s.do(http.MethodPost, "/api/v1/reports", buyerTok, map[string]any{"listing_id": ids[1], "reason": "fraud"}).Code)

	mine := decode[listResponse[models.Report]](t, s.do(http.MethodGet, "/api/v1/reports/my", buyerTok, nil))
	assert.Equal(t, 1, mine.Total)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/reports/"+report.ID, buyerTok, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/v1/reports", buyerTok, nil).Code)

	rec = s.do(http.MethodPost, "/api/v1/reports/"+report.ID+"/accept", adminTok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[service.ReportResolution](t, rec)
	assert.Equal(t, models.ReportResolved, res.Report.Status)
	require.NotNil(t, res.Listing)
	assert.Equal(t, models.StatusArchived, res.Listing.Status)

	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, "/api/v1/reports/"+report.ID+"/dismiss", adminTok, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPut, "/api/v1/listings/"+ids[0], ownerTok, map[string]any{"title": "Relist"}).Code)

	all := decode[listResponse[models.Report]](t, s.do(http.MethodGet, "/api/v1/reports?status=resolved", adminTok, nil))
	assert.Equal(t, 1, all.Total)
}

func TestBatchApproveEndpoint(t *testing.T) {
	s := newTestServer(t, config.Config{})
	ownerTok := token(t, "owner-1", models.RoleUser)
	modTok := token(t, "mod-1", models.RoleModerator)

	var ids []string
	for i := 0; i < 2; i++ {
		rec := s.do(http.MethodPost, "/api/v1/listings", ownerTok, map[string]any{"title": "Bike", "price_cents": 30000})
		require.Equal(t, http.StatusCreated, rec.Code)
		ids = append(ids, decode[models.Listing](t, rec).ID)
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/v1/moderation/listings/"+ids[1]+"/approve", modTok, nil).Code)

	rec := s.do(http.MethodPost, "/api/v1/moderation/batch/approve", modTok, map[string]any{"ids": ids})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[service.BatchResult](t, rec)
	assert.Equal(t, []string{ids[0]}, res.ApprovedIDs)
	assert.Equal(t, []string{ids[1]}, res.SkippedIDs)

	stats := decode[models.ModerationStats](t, s.do(http.MethodGet, "/api/v1/moderation/stats?period=all", modTok, nil))
	assert.Equal(t, 2, stats.Published)
	assert.Equal(t, 2, stats.TotalActions)
}

func TestApproveAcceptsEmptyChunkedBody(t *testing.T) {
	s := newTestServer(t, config.Config{})
	ownerTok := token(t, "owner-1", models.RoleUser)
	modTok := token(t, "mod-1", models.RoleModerator)

	rec := s.do(http.MethodPost, "/api/v1/listings", ownerTok, map[string]any{"title": "Scooter", "price_cents": 90000})
	require.Equal(t, http.StatusCreated, rec.Code)
	l := decode[models.Listing](t, rec)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/moderation/listings/"+l.ID+"/approve", &bytes.Buffer{})
	req.ContentLength = -1
	req.TransferEncoding = []string{"chunked"}
	req.Header.Set("Authorization", "Bearer "+modTok)
	rec = httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.StatusPublished, decode[models.Listing](t, rec).Status)

	rec = s.do(http.MethodPost, "/api/v1/moderation/listings/"+l.ID+"/reject", modTok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "reject still requires a body")
}
