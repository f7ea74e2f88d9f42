package v1_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shramsaathi-backend/config"
	v1 "shramsaathi-backend/internal/delivery/http/v1"
	"shramsaathi-backend/internal/domain"
	"shramsaathi-backend/internal/filter"
	"shramsaathi-backend/internal/repository/memory"
	"shramsaathi-backend/internal/usecase"
	"shramsaathi-backend/pkg/auth"
	"shramsaathi-backend/pkg/metrics"
	"shramsaathi-backend/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   any             `json:"error"`
}

type api struct {
	t      *testing.T
	router *gin.Engine
	store  *memory.Store
}

func newAPI(t *testing.T) *api {
	t.Helper()
	store := memory.NewStore()
	tokens := auth.NewHMACIssuer("test-secret", time.Hour)
	v := validation.New()
	collector := metrics.NewCollector()

	authUC := usecase.NewAuthUsecase(store.Profiles(), tokens, v, nil, nil)
	router := v1.NewRouter(v1.RouterDeps{
		AuthUC:        authUC,
		JobUC:         usecase.NewJobUsecase(store.Jobs(), v),
		ApplicationUC: usecase.NewApplicationUsecase(store.Applications(), store.Jobs(), store.Profiles(), v, nil, collector),
		ProfileUC:     usecase.NewProfileUsecase(store.Profiles(), tokens, filter.NewEvaluator(), v),
		ChatUC:        usecase.NewChatUsecase(store.Chats(), store.Applications(), store.Jobs(), v, collector),
		AnalyticsUC:   usecase.NewAnalyticsUsecase(store.Applications(), store.Jobs()),
		HealthUC:      usecase.NewHealthUsecase(map[string]usecase.Pinger{"store": store}),
		Tokens:        tokens,
		Metrics:       collector,
		Config: &config.Config{
			Environment:              "test",
			FrontendURL:              "http://localhost:3000",
			RateLimitWindowSeconds:   60,
			RateLimitGlobalThreshold: 10000,
			RateLimitLoginThreshold:  10000,
			RateLimitApplyThreshold:  10000,
		},
	})
	return &api{t: t, router: router, store: store}
}

func (a *api) do(method, path, token string, body any) (int, apiResponse) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var res apiResponse
	require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &res), w.Body.String())
	return w.Code, res
}

// register creates a profile and returns its id and session token.
func (a *api) register(name, phone, role string) (int64, string) {
	a.t.Helper()
	code, res := a.do(http.MethodPost, "/api/users", "", map[string]any{
		"name": name, "phone": phone, "role": role, "password": "secret1",
	})
	require.Equal(a.t, http.StatusCreated, code, res.Message)
	var out domain.UpsertResult
	require.NoError(a.t, json.Unmarshal(res.Data, &out))
	return out.Profile.ID, out.Token
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestHealth(t *testing.T) {
	a := newAPI(t)
	code, res := a.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "up", decode[map[string]string](t, res.Data)["store"])
}

func TestHiringFlow(t *testing.T) {
	a := newAPI(t)
	ownerID, owner := a.register("Lakshmi", "9000000001", domain.RoleOwner)
	raviID, ravi := a.register("Ravi", "9000000002", domain.RoleWorker)
	_, sita := a.register("Sita", "9000000003", domain.RoleWorker)

	code, res := a.do(http.MethodPost, "/api/jobs", ravi, map[string]any{"title": "Tiling", "skillNeeded": "Mason", "location": "Kukatpally"})
	assert.Equal(t, http.StatusForbidden, code)

	code, res = a.do(http.MethodPost, "/api/jobs", owner, map[string]any{"title": "Tiling", "skillNeeded": "Mason", "location": "Kukatpally", "pay": 800})
	require.Equal(t, http.StatusCreated, code, res.Message)
	job := decode[domain.Job](t, res.Data)
	assert.Equal(t, ownerID, job.OwnerID)

	code, res = a.do(http.MethodGet, "/api/jobs", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]domain.Job](t, res.Data), 1)

	code, res = a.do(http.MethodPost, "/api/applications", ravi, map[string]any{"jobId": job.ID})
	require.Equal(t, http.StatusCreated, code, res.Message)
	raviApp := decode[domain.Application](t, res.Data)
	assert.Equal(t, "Ravi", raviApp.WorkerName)

	code, res = a.do(http.MethodPost, "/api/applications", ravi, map[string]any{"jobId": job.ID})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "DUPLICATE_APPLICATION", res.Error)

	code, res = a.do(http.MethodPost, "/api/applications", sita, map[string]any{"jobId": job.ID})
	require.Equal(t, http.StatusCreated, code)
	sitaApp := decode[domain.Application](t, res.Data)

	code, _ = a.do(http.MethodPut, fmt.Sprintf("/api/applications/%d/status?status=ACCEPTED", raviApp.ID), ravi, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, res = a.do(http.MethodPut, fmt.Sprintf("/api/applications/%d/status?status=ACCEPTED", raviApp.ID), owner, nil)
	require.Equal(t, http.StatusOK, code, res.Message)
	change := decode[domain.StatusChange](t, res.Data)
	assert.Equal(t, []int64{sitaApp.ID}, change.Rejected)

	code, res = a.do(http.MethodPut, fmt.Sprintf("/api/applications/%d/status?status=ACCEPTED", sitaApp.ID), owner, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "CONFLICTING_ACCEPTANCE", res.Error)

	code, res = a.do(http.MethodPut, fmt.Sprintf("/api/applications/%d/status?status=REJECTED", raviApp.ID), owner, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "CANNOT_REJECT_ACCEPTED", res.Error)

	code, res = a.do(http.MethodPut, fmt.Sprintf("/api/applications/%d/status?status=ACCEPTED&supersede=maybe", sitaApp.ID), owner, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, res = a.do(http.MethodGet, fmt.Sprintf("/api/applications/worker/%d", raviID), ravi, nil)
	require.Equal(t, http.StatusOK, code)
	mine := decode[[]domain.Application](t, res.Data)
	require.Len(t, mine, 1)
	assert.Equal(t, domain.ApplicationStatusAccepted, mine[0].Status)

	code, _ = a.do(http.MethodGet, fmt.Sprintf("/api/applications/worker/%d", raviID), sita, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, res = a.do(http.MethodGet, fmt.Sprintf("/api/analytics/owner/%d/application-counts", ownerID), owner, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]int64{fmt.Sprint(job.ID): 2}, decode[map[string]int64](t, res.Data))

	code, res = a.do(http.MethodGet, fmt.Sprintf("/api/analytics/worker/%d/summary", raviID), ravi, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, domain.WorkerSummary{TotalJobs: 1, Applied: 1, Accepted: 1}, decode[domain.WorkerSummary](t, res.Data))

	t.Run("chat between the accepted parties", func(t *testing.T) {
		code, res := a.do(http.MethodPost, "/api/chat", ravi, map[string]any{"applicationId": raviApp.ID, "senderId": raviID, "message": "On my way"})
		require.Equal(t, http.StatusCreated, code, res.Message)

		code, res = a.do(http.MethodGet, fmt.Sprintf("/api/chat/%d", raviApp.ID), owner, nil)
		require.Equal(t, http.StatusOK, code)
		history := decode[[]domain.ChatMessage](t, res.Data)
		require.Len(t, history, 1)
		assert.Equal(t, "On my way", history[0].Message)
		require.NotNil(t, history[0].ReceiverID)
		assert.Equal(t, ownerID, *history[0].ReceiverID)

		code, _ = a.do(http.MethodGet, fmt.Sprintf("/api/chat/%d", raviApp.ID), sita, nil)
		assert.Equal(t, http.StatusForbidden, code)
		code, _ = a.do(http.MethodGet, fmt.Sprintf("/api/chat/%d", sitaApp.ID), owner, nil)
		assert.Equal(t, http.StatusBadRequest, code)
	})
}

func TestAuthEndpoints(t *testing.T) {
	a := newAPI(t)
	id, token := a.register("Ravi", "9000000002", domain.RoleWorker)

	code, res := a.do(http.MethodPost, "/api/auth/login", "", map[string]string{"phone": "9000000002", "password": "secret1"})
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, decode[domain.LoginResult](t, res.Data).Token)

	code, res = a.do(http.MethodPost, "/api/auth/login", "", map[string]string{"phone": "9000000002", "password": "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid phone number or password", res.Message)

	code, res = a.do(http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, id, decode[domain.Profile](t, res.Data).ID)

	code, _ = a.do(http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = a.do(http.MethodGet, "/api/auth/me", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	// an authenticated upsert updates the caller's profile
	code, res = a.do(http.MethodPost, "/api/users", token, map[string]any{"name": "Ravi Kumar", "phone": "9000000002"})
	require.Equal(t, http.StatusOK, code, res.Message)
	updated := decode[domain.UpsertResult](t, res.Data)
	assert.False(t, updated.Created)
	assert.Equal(t, "Ravi Kumar", updated.Profile.Name)
}

func TestWorkerSearch(t *testing.T) {
	a := newAPI(t)
	_, token := a.register("Lakshmi", "9000000001", domain.RoleOwner)
	for i, age := range []int{22, 35} {
		code, res := a.do(http.MethodPost, "/api/users", "", map[string]any{
			"name": "Worker", "phone": fmt.Sprintf("90000001%02d", i), "password": "secret1", "age": age, "pincode": "500081",
		})
		require.Equal(t, http.StatusCreated, code, res.Message)
	}

	code, res := a.do(http.MethodGet, "/api/users?minAge=30", token, nil)
	require.Equal(t, http.StatusOK, code)
	found := decode[domain.ProfileSearch](t, res.Data)
	require.Len(t, found.Profiles, 1)
	assert.Equal(t, 35, *found.Profiles[0].Age)
	require.Len(t, found.Excluded, 1)
	assert.Equal(t, "age", found.Excluded[0].Field)

	t.Run("blank bounds stay inactive", func(t *testing.T) {
		code, res := a.do(http.MethodPost, "/api/users", "", map[string]any{
			"name": "Ageless", "phone": "9000000199", "password": "secret1",
		})
		require.Equal(t, http.StatusCreated, code, res.Message)

		code, res = a.do(http.MethodGet, "/api/users?minAge=&maxAge=%20&minExperience=&maxExperience=&pincode=&showAll=", token, nil)
		require.Equal(t, http.StatusOK, code, res.Message)
		found := decode[domain.ProfileSearch](t, res.Data)
		assert.Len(t, found.Profiles, 3)
		assert.Empty(t, found.Excluded)
	})

	code, _ = a.do(http.MethodGet, "/api/users?minAge=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = a.do(http.MethodGet, "/api/users?role=admin", token, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestBadPathID(t *testing.T) {
	a := newAPI(t)
	code, res := a.do(http.MethodGet, "/api/jobs/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid ID format", res.Message)
}
