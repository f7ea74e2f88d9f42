package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"shramsaathi-backend/internal/domain"
	"shramsaathi-backend/internal/filter"
	"shramsaathi-backend/pkg/apperror"
	"shramsaathi-backend/pkg/client"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvelope(w http.ResponseWriter, status int, message string, data any, kind string) {
	body := map[string]any{"success": status < 300, "message": message}
	if data != nil {
		body["data"] = data
	}
	if kind != "" {
		body["error"] = kind
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestDuplicateApplyMapsToSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/applications", r.URL.Path)
		writeEnvelope(w, http.StatusConflict, "You have already applied for this job", nil, "")
	}))
	defer srv.Close()

	c := client.New(srv.URL + "/api")
	_, err := c.Apply(context.Background(), domain.ApplyInput{JobID: 1, WorkerID: 2})

	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrDuplicateApplication)
	assert.Equal(t, "You have already applied for this job", err.Error())
}

func TestConflictKindsMapToSentinels(t *testing.T) {
	cases := map[string]error{
		apperror.KindConflictingAcceptance: apperror.ErrConflictingAcceptance,
		apperror.KindAlreadyAccepted:       apperror.ErrAlreadyAccepted,
		apperror.KindCannotRejectAccepted:  apperror.ErrCannotRejectAccepted,
	}
	for kind, want := range cases {
		t.Run(kind, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPut, r.Method)
				assert.Equal(t, "ACCEPTED", r.URL.Query().Get("status"))
				writeEnvelope(w, http.StatusConflict, "Ravi is already accepted for this job", nil, kind)
			}))
			defer srv.Close()

			_, err := client.New(srv.URL).SetStatus(context.Background(), 3, "accepted", false)
			assert.ErrorIs(t, err, want)

			var apiErr *client.Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, kind, apiErr.Kind)
			assert.Equal(t, http.StatusConflict, apiErr.Status)
		})
	}
}

func TestOtherFailuresAreTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusInternalServerError, "database unavailable", nil, "")
	}))
	defer srv.Close()

	_, err := client.New(srv.URL).ListJobs(context.Background())
	assert.ErrorIs(t, err, apperror.ErrTransientNetworkFailure)
	assert.Equal(t, "database unavailable", err.Error())
}

func TestUnreachableServerIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := client.New(url).ListJobs(context.Background())
	assert.ErrorIs(t, err, apperror.ErrTransientNetworkFailure)
}

func TestLoginKeepsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			writeEnvelope(w, http.StatusOK, "Login successful", domain.LoginResult{Token: "tok", Profile: &domain.Profile{ID: 4}}, "")
		case "/auth/me":
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			writeEnvelope(w, http.StatusOK, "User profile", domain.Profile{ID: 4, Name: "Ravi"}, "")
		}
	}))
	defer srv.Close()

	c := client.New(srv.URL)
	res, err := c.Login(context.Background(), "9876543210", "secret1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Profile.ID)
	assert.Equal(t, "tok", c.Token())

	me, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ravi", me.Name)
}

func TestSearchWorkersEncodesCriteria(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "worker", q.Get("role"))
		assert.Equal(t, "25", q.Get("minAge"))
		assert.Equal(t, "2.5", q.Get("maxExperience"))
		assert.Equal(t, "500081", q.Get("pincode"))
		assert.Empty(t, q.Get("maxAge"))
		assert.Empty(t, q.Get("showAll"))
		writeEnvelope(w, http.StatusOK, "Profile list", domain.ProfileSearch{Profiles: []domain.Profile{{ID: 1}}}, "")
	}))
	defer srv.Close()

	minAge, maxExp := 25.0, 2.5
	res, err := client.New(srv.URL).SearchWorkers(context.Background(), filter.Criteria{
		MinAge:        &minAge,
		MaxExperience: &maxExp,
		Pincode:       "500081",
	})
	require.NoError(t, err)
	assert.Len(t, res.Profiles, 1)
}

func TestOwnerApplicationCounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analytics/owner/7/application-counts", r.URL.Path)
		writeEnvelope(w, http.StatusOK, "Application counts", map[string]int{"10": 3, "11": 0}, "")
	}))
	defer srv.Close()

	counts, err := client.New(srv.URL).OwnerApplicationCounts(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{10: 3, 11: 0}, counts)
}

func TestWebsocketURL(t *testing.T) {
	c := client.New("https://api.example.com/api/", client.WithToken("a b"))
	assert.Equal(t, "wss://api.example.com/api/ws?token=a+b", c.WebsocketURL())

	assert.Equal(t, "ws://localhost:8083/api/ws", client.New("http://localhost:8083/api").WebsocketURL())
}
