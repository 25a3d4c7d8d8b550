package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"appstore-receipt-api/internal/appstore"
	"appstore-receipt-api/internal/database"
	"appstore-receipt-api/internal/metrics"
	"appstore-receipt-api/internal/models"
	"appstore-receipt-api/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminKey = "admin-secret"

const validBody = `{
	"status": 0,
	"environment": "Production",
	"latest_receipt": "bGF0ZXN0",
	"receipt": {
		"bundle_id": "com.example.app",
		"application_version": "42",
		"original_application_version": "1.0",
		"receipt_creation_date_ms": "1591000000000",
		"in_app": [{
			"quantity": "1",
			"product_id": "com.example.monthly",
			"transaction_id": "1000000002",
			"original_transaction_id": "1000000001",
			"purchase_date_ms": "1591000000000",
			"original_purchase_date_ms": "1591000000000",
			"subscription_expiration_date_ms": "1593592000000",
			"is_trial_period": "true",
			"auto_renew_status": "1"
		}]
	}
}`

// transportFunc answers every verifyReceipt call with fn
type transportFunc func(url string, body []byte) ([]byte, error)

func (f transportFunc) Post(_ context.Context, url string, body []byte) ([]byte, error) {
	return f(url, body)
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	router   *gin.Engine
	projects *services.ProjectService
	urls     []string
	requests []appstore.Request
}

func newTestServer(t *testing.T, answer func(url string) ([]byte, error)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	ts := &testServer{projects: services.NewProjectService(db)}
	require.NoError(t, ts.projects.CreateProject(&models.Project{
		ProjectID:    "alpha",
		ProjectName:  "Alpha",
		APIKey:       "alpha-key",
		IsActive:     true,
		BundleID:     "com.example.app",
		SharedSecret: "alpha-secret",
	}))

	transport := transportFunc(func(url string, body []byte) ([]byte, error) {
		var req appstore.Request
		require.NoError(t, json.Unmarshal(body, &req))
		ts.urls = append(ts.urls, url)
		ts.requests = append(ts.requests, req)
		return answer(url)
	})

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	client := appstore.NewClient(transport, appstore.WithObserver(m))

	ts.router = gin.New()
	SetupRoutes(ts.router, Dependencies{
		Projects:    ts.projects,
		Receipts:    services.NewReceiptService(client, nil, nil),
		Metrics:     m,
		Gatherer:    reg,
		AdminAPIKey: adminKey,
		ServiceName: "receipt-service",
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func (ts *testServer) verify(t *testing.T, body string) (*httptest.ResponseRecorder, envelope) {
	return ts.do(t, http.MethodPost, "/api/receipts/verify", body, map[string]string{
		"X-Project-ID": "alpha",
		"X-API-Key":    "alpha-key",
	})
}

func answerWith(body string) func(string) ([]byte, error) {
	return func(string) ([]byte, error) { return []byte(body), nil }
}

func TestVerifyReceiptSuccess(t *testing.T) {
	ts := newTestServer(t, answerWith(validBody))

	w, env := ts.verify(t, `{"receipt_data":"cmVjZWlwdA=="}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, env.Success)

	var data VerifyReceiptResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "Production", data.Environment)
	assert.Equal(t, "bGF0ZXN0", *data.LatestReceipt)
	assert.Equal(t, "com.example.app", data.Receipt.BundleID)
	assert.Equal(t, "2020-06-01T08:26:40Z", data.Receipt.CreationDate)
	require.Len(t, data.Receipt.InApp, 1)
	purchase := data.Receipt.InApp[0]
	assert.Equal(t, "2020-07-01T08:26:40Z", *purchase.SubscriptionExpirationDate)
	assert.Equal(t, "true", *purchase.IsTrialPeriod)
	assert.Equal(t, "1", *purchase.AutoRenewStatus)
	assert.Nil(t, purchase.CancellationDate)

	require.Len(t, ts.requests, 1)
	assert.Equal(t, appstore.ProductionURL, ts.urls[0])
	assert.Equal(t, "cmVjZWlwdA==", ts.requests[0].ReceiptData)
	assert.Equal(t, "alpha-secret", *ts.requests[0].Password)
}

func TestVerifyReceiptRequestPasswordWins(t *testing.T) {
	ts := newTestServer(t, answerWith(validBody))

	w, _ := ts.verify(t, `{"receipt_data":"cmVjZWlwdA==","password":"override","exclude_old_transactions":true}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "override", *ts.requests[0].Password)
	assert.True(t, *ts.requests[0].ExcludeOldTransactions)
}

func TestVerifyReceiptFallsBackToSandbox(t *testing.T) {
	sandboxBody := strings.Replace(validBody, `"Production"`, `"Sandbox"`, 1)
	ts := newTestServer(t, func(url string) ([]byte, error) {
		if url == appstore.ProductionURL {
			return []byte(`{"status":21007}`), nil
		}
		return []byte(sandboxBody), nil
	})

	w, env := ts.verify(t, `{"receipt_data":"cmVjZWlwdA=="}`)

	require.Equal(t, http.StatusOK, w.Code)
	var data VerifyReceiptResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "Sandbox", data.Environment)
	assert.Equal(t, []string{appstore.ProductionURL, appstore.SandboxURL}, ts.urls)
}

func TestVerifyReceiptErrors(t *testing.T) {
	tests := []struct {
		name    string
		answer  func(string) ([]byte, error)
		body    string
		code    int
		message string
		data    map[string]interface{}
	}{
		{
			name:    "missing receipt data",
			answer:  answerWith(validBody),
			body:    `{}`,
			code:    http.StatusBadRequest,
			message: "Invalid request format",
		},
		{
			name:    "status error",
			answer:  answerWith(`{"status":21003}`),
			body:    `{"receipt_data":"cmVjZWlwdA=="}`,
			code:    http.StatusUnprocessableEntity,
			message: "App Store rejected the receipt",
			data: map[string]interface{}{
				"status":      float64(21003),
				"kind":        "receipt_could_not_be_authenticated",
				"environment": "Production",
			},
		},
		{
			name:    "bundle mismatch",
			answer:  answerWith(strings.Replace(validBody, "com.example.app", "com.other.app", 1)),
			body:    `{"receipt_data":"cmVjZWlwdA=="}`,
			code:    http.StatusUnprocessableEntity,
			message: "bundle id mismatch",
			data:    map[string]interface{}{"expected": "com.example.app", "actual": "com.other.app"},
		},
		{
			name:    "transport failure",
			answer:  func(string) ([]byte, error) { return nil, errors.New("connection refused") },
			body:    `{"receipt_data":"cmVjZWlwdA=="}`,
			code:    http.StatusBadGateway,
			message: "App Store is unreachable",
		},
		{
			name:    "timeout",
			answer:  func(string) ([]byte, error) { return nil, context.DeadlineExceeded },
			body:    `{"receipt_data":"cmVjZWlwdA=="}`,
			code:    http.StatusGatewayTimeout,
			message: "App Store did not answer in time",
		},
		{
			name:    "undecodable answer",
			answer:  answerWith(`{"status":0,"environment":"Production"}`),
			body:    `{"receipt_data":"cmVjZWlwdA=="}`,
			code:    http.StatusBadGateway,
			message: "App Store answer could not be decoded",
			data:    map[string]interface{}{"field": "receipt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.answer)

			w, env := ts.verify(t, tt.body)

			assert.Equal(t, tt.code, w.Code, w.Body.String())
			assert.False(t, env.Success)
			assert.Contains(t, env.Message, tt.message)
			if tt.data != nil {
				var data map[string]interface{}
				require.NoError(t, json.Unmarshal(env.Data, &data))
				assert.Equal(t, tt.data, data)
			}
		})
	}
}

func TestVerifyReceiptRequiresProjectAuth(t *testing.T) {
	ts := newTestServer(t, answerWith(validBody))

	w, _ := ts.do(t, http.MethodPost, "/api/receipts/verify", `{"receipt_data":"x"}`, map[string]string{
		"X-Project-ID": "alpha",
		"X-API-Key":    "wrong",
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, ts.requests)
}

func TestAdminProjectLifecycle(t *testing.T) {
	ts := newTestServer(t, answerWith(validBody))
	admin := map[string]string{"X-Admin-Key": adminKey}

	w, _ := ts.do(t, http.MethodGet, "/api/admin/projects", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env := ts.do(t, http.MethodPost, "/api/admin/projects", `{
		"project_id": "beta",
		"project_name": "Beta",
		"api_key": "beta-key",
		"bundle_id": "com.example.beta",
		"shared_secret": "beta-secret"
	}`, admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, string(env.Data), "beta-secret")
	assert.Contains(t, string(env.Data), `"has_shared_secret":true`)

	w, _ = ts.do(t, http.MethodPost, "/api/admin/projects", `{"project_id":"beta","project_name":"B","api_key":"other"}`, admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = ts.do(t, http.MethodPut, "/api/admin/projects/beta", `{"rate_limit": 5}`, admin)
	assert.Equal(t, http.StatusOK, w.Code)
	project, err := ts.projects.GetProjectByID("beta")
	require.NoError(t, err)
	assert.Equal(t, 5, project.RateLimit)

	w, _ = ts.do(t, http.MethodPut, "/api/admin/projects/missing", `{"rate_limit": 5}`, admin)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = ts.do(t, http.MethodDelete, "/api/admin/projects/beta", "", admin)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = ts.do(t, http.MethodGet, "/api/admin/projects/beta", "", admin)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = ts.do(t, http.MethodGet, "/api/admin/projects", "", admin)
	require.Equal(t, http.StatusOK, w.Code)
	var projects []struct {
		Project         models.Project `json:"project"`
		HasSharedSecret bool           `json:"has_shared_secret"`
		HasWebhook      bool           `json:"has_webhook"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &projects))
	require.Len(t, projects, 1)
	assert.Equal(t, "alpha", projects[0].Project.ProjectID)
	assert.True(t, projects[0].HasSharedSecret)
	assert.False(t, projects[0].HasWebhook)
	assert.NotContains(t, string(env.Data), "alpha-secret")
}

func TestAdminUpdateClearsOptionalSettings(t *testing.T) {
	ts := newTestServer(t, answerWith(validBody))
	admin := map[string]string{"X-Admin-Key": adminKey}
	require.NoError(t, ts.projects.UpdateProject("alpha", map[string]interface{}{
		"rate_limit":           10,
		"webhook_callback_url": "https://hooks.example.com/receipts",
		"description":          "kept",
	}))

	w, _ := ts.do(t, http.MethodPut, "/api/admin/projects/alpha", `{
		"bundle_id": "",
		"shared_secret": "",
		"webhook_callback_url": "",
		"rate_limit": 0
	}`, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	project, err := ts.projects.GetProjectByID("alpha")
	require.NoError(t, err)
	assert.Empty(t, project.BundleID)
	assert.Empty(t, project.SharedSecret)
	assert.Empty(t, project.WebhookCallbackURL)
	assert.Zero(t, project.RateLimit)
	assert.Equal(t, "kept", project.Description, "absent fields are unchanged")

	w, _ = ts.do(t, http.MethodPut, "/api/admin/projects/alpha", `{"rate_limit": -1}`, admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, answerWith(`{"status":21007}`))
	ts.verify(t, `{"receipt_data":"cmVjZWlwdA=="}`)

	w, _ := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "receipt-service")

	w, _ = ts.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "appstore_environment_fallbacks_total 1")
	assert.Contains(t, w.Body.String(), `appstore_verify_attempts_total{environment="Sandbox",outcome="sandbox_receipt_sent_to_production"} 1`)
}
