package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imwg-risk-server/internal/audit"
	"github.com/imwg-risk-server/internal/cache"
	"github.com/imwg-risk-server/internal/database"
	"github.com/imwg-risk-server/internal/domain"
	"github.com/imwg-risk-server/internal/metrics"
	"github.com/imwg-risk-server/internal/repository"
	"github.com/imwg-risk-server/internal/service"
)

type testServer struct {
	handler http.Handler
	repo    domain.AssessmentRepository
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T, wrap func(domain.AssessmentRepository) domain.AssessmentRepository) *testServer {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "assessments.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger, _ := test.NewNullLogger()
	var repo domain.AssessmentRepository
	repo, err = repository.NewSQLiteRepository(db, logger)
	require.NoError(t, err)
	if wrap != nil {
		repo = wrap(repo)
	}
	store, err := audit.NewSQLiteStore(db)
	require.NoError(t, err)

	m := metrics.New()
	svc := service.NewAssessmentService(repo, audit.NewLog(store, logger, m), cache.NewMemoryCache(100, 0), m, logger)
	srv := NewServer(Options{
		Server: domain.ServerConfig{MetricsEnabled: true, AllowedOrigins: []string{"*"}},
	}, svc, m, logger)

	return &testServer{handler: srv.Handler(), repo: repo, metrics: m}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func createAssessment(t *testing.T, ts *testServer, body map[string]interface{}) domain.Assessment {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/assessments/", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[domain.Assessment](t, w)
}

func negativeBody() map[string]interface{} {
	return map[string]interface{}{
		"del17p_tp53":         "negative",
		"translocation_combo": "negative",
		"del1p32_1q":          "negative",
	}
}

// pingFailingRepo reports the store as unreachable.
type pingFailingRepo struct {
	domain.AssessmentRepository
}

func (pingFailingRepo) Ping(context.Context) error { return errors.New("connection refused") }

// brokenListRepo fails listings with an internal error.
type brokenListRepo struct {
	domain.AssessmentRepository
}

func (brokenListRepo) List(context.Context, domain.AssessmentFilter) ([]*domain.Assessment, error) {
	return nil, errors.New("pq: relation \"assessments\" does not exist")
}

func TestRoot(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/api/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]string](t, w)
	assert.Equal(t, "IMWG Risk Calculator API", body["message"])
	assert.Equal(t, Version, body["version"])
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		ts := newTestServer(t, nil)
		w := ts.do(t, http.MethodGet, "/api/health", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		body := decode[map[string]interface{}](t, w)
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, "connected", body["database"])
		assert.NotEmpty(t, body["timestamp"])
		assert.NotContains(t, body, "error")
	})

	t.Run("store unreachable still answers 200", func(t *testing.T) {
		ts := newTestServer(t, func(r domain.AssessmentRepository) domain.AssessmentRepository {
			return pingFailingRepo{r}
		})
		w := ts.do(t, http.MethodGet, "/api/health", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		body := decode[map[string]interface{}](t, w)
		assert.Equal(t, "unhealthy", body["status"])
		assert.Equal(t, "disconnected", body["database"])
		assert.Equal(t, "connection refused", body["error"])
	})
}

func TestAssessmentLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)

	body := negativeBody()
	body["del17p_tp53"] = "positive"
	body["patient_name"] = "Jane Roe"
	created := createAssessment(t, ts, body)
	assert.Equal(t, domain.DRAFT, created.Status)
	assert.Equal(t, 1, created.Version)
	assert.NotEmpty(t, created.ID)

	path := "/api/assessments/" + created.ID

	w := ts.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.ID, decode[domain.Assessment](t, w).ID)

	w = ts.do(t, http.MethodPost, path+"/calculate", nil, performedByHeader, "Dr. Patel")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	calc := decode[domain.Calculation](t, w)
	assert.Equal(t, domain.HIGH_RISK, calc.RiskResult)
	assert.Equal(t, 1, calc.TotalRiskFactors)
	assert.Len(t, calc.Recommendations, 8)
	assert.Equal(t, "Avoid alkylating agents due to del(17p)/TP53 mutations", calc.Recommendations[6])

	w = ts.do(t, http.MethodGet, path, nil)
	stored := decode[domain.Assessment](t, w)
	assert.Equal(t, domain.COMPLETED, stored.Status)
	assert.Equal(t, 2, stored.Version)

	w = ts.do(t, http.MethodGet, path+"/calculations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]domain.Calculation](t, w), 1)

	w = ts.do(t, http.MethodGet, path+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[[]domain.HistoryEntry](t, w)
	require.Len(t, history, 2)
	assert.Equal(t, domain.ActionCalculated, history[0].Action)
	require.NotNil(t, history[0].PerformedBy)
	assert.Equal(t, "Dr. Patel", *history[0].PerformedBy)

	w = ts.do(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Assessment deleted successfully", decode[map[string]string](t, w)["message"])

	for _, p := range []string{path, path + "/history", path + "/calculations"} {
		w = ts.do(t, http.MethodGet, p, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, p)
	}
	w = ts.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = ts.do(t, http.MethodPost, path+"/calculate", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateAssessment_Errors(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name          string
		body          interface{}
		expectedError string
		expectedParts []string
	}{
		{
			name:          "malformed json",
			body:          `{"del17p_tp53": `,
			expectedError: domain.MsgSchemaInvalid,
		},
		{
			name:          "wrong type",
			body:          `{"del17p_tp53":"negative","translocation_combo":"negative","del1p32_1q":"negative","b2m_value":"high"}`,
			expectedError: domain.MsgSchemaInvalid,
		},
		{
			name:          "missing markers",
			body:          map[string]interface{}{},
			expectedError: domain.MsgValidationFailed,
			expectedParts: []string{"del(17p) and/or TP53 mutation status is required"},
		},
		{
			name: "unpaired biomarker",
			body: func() map[string]interface{} {
				b := negativeBody()
				b["b2m_value"] = 6.0
				return b
			}(),
			expectedError: domain.MsgValidationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/assessments/", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			apiErr := decode[domain.APIError](t, w)
			assert.Equal(t, tt.expectedError, apiErr.Error)
			assert.NotEmpty(t, apiErr.Details)
			for _, part := range tt.expectedParts {
				assert.Contains(t, apiErr.Details, part)
			}
		})
	}
}

func TestUpdateAssessment(t *testing.T) {
	ts := newTestServer(t, nil)
	created := createAssessment(t, ts, negativeBody())
	path := "/api/assessments/" + created.ID

	w := ts.do(t, http.MethodPut, path, map[string]interface{}{
		"physician_name": "Dr. Ana Lopez",
		"version":        1,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[domain.Assessment](t, w)
	assert.Equal(t, "Dr. Ana Lopez", *updated.PhysicianName)
	assert.Equal(t, 2, updated.Version)

	w = ts.do(t, http.MethodPut, path, map[string]interface{}{"institution": "St. Mary", "version": 1})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, domain.MsgVersionConflict, decode[domain.APIError](t, w).Error)

	w = ts.do(t, http.MethodPut, path, map[string]interface{}{"del17p_tp53": "yes"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPut, "/api/assessments/unknown", map[string]interface{}{"institution": "X"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, domain.MsgNotFound, decode[domain.APIError](t, w).Error)
}

func TestListAssessments(t *testing.T) {
	ts := newTestServer(t, nil)

	var ids []string
	for _, physician := range []string{"Dr. Ana Lopez", "Dr. Ben Okafor", "dr. ana lopez"} {
		b := negativeBody()
		b["physician_name"] = physician
		ids = append(ids, createAssessment(t, ts, b).ID)
	}

	w := ts.do(t, http.MethodGet, "/api/assessments/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	all := decode[[]domain.Assessment](t, w)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID)

	w = ts.do(t, http.MethodGet, "/api/assessments/?physician_name=LOPEZ", nil)
	assert.Len(t, decode[[]domain.Assessment](t, w), 2)

	w = ts.do(t, http.MethodGet, "/api/assessments/?skip=1&limit=1", nil)
	page := decode[[]domain.Assessment](t, w)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].ID)

	w = ts.do(t, http.MethodGet, "/api/assessments/?status=COMPLETED", nil)
	assert.Empty(t, decode[[]domain.Assessment](t, w))

	w = ts.do(t, http.MethodGet, "/api/assessments/?limit=5000", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	for _, query := range []string{"skip=-1", "limit=0", "limit=abc", "status=ARCHIVED", "risk_result=LOW"} {
		w = ts.do(t, http.MethodGet, "/api/assessments/?"+query, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, query)
		assert.Equal(t, domain.MsgSchemaInvalid, decode[domain.APIError](t, w).Error)
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	ts := newTestServer(t, func(r domain.AssessmentRepository) domain.AssessmentRepository {
		return brokenListRepo{r}
	})

	w := ts.do(t, http.MethodGet, "/api/assessments/", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode[domain.APIError](t, w)
	assert.Equal(t, domain.MsgInternalServer, body.Error)
	assert.Empty(t, body.Details)
	assert.NotContains(t, w.Body.String(), "does not exist")
	assert.NotContains(t, w.Body.String(), "pq:")
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(t, http.MethodGet, "/api/health", nil)

	w := ts.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "imwg_http_requests_total"))
}

func TestCorrelationHeaderOnResponses(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/api/assessments/missing", nil, "X-Correlation-ID", "trace-42")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "trace-42", w.Header().Get("X-Correlation-ID"))
	assert.Equal(t, "trace-42", decode[domain.APIError](t, w).CorrelationID)
}
