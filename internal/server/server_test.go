package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doclife/internal/app"
	"doclife/internal/config"
	"doclife/internal/domain"
	"doclife/internal/repo"
)

const testSecret = "test-secret"

type testServer struct {
	URL string
	App *app.App
	srv *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	a, err := app.Open(context.Background(), app.Options{Workspace: t.TempDir(), Logger: logrus.NewEntry(logger)})
	require.NoError(t, err)
	handler, err := New(Config{App: a, BasePath: "/v0", Auth: AuthConfig{JWTSecret: testSecret, DevLogin: true}})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		a.Close()
	})
	return &testServer{URL: srv.URL, App: a, srv: srv}
}

func (s *testServer) token(t *testing.T, u domain.User) string {
	t.Helper()
	tok, err := signToken(AuthConfig{JWTSecret: testSecret}, u, time.Now())
	require.NoError(t, err)
	return tok
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func bearer(tok string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tok}
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, data []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env
}

var pmUser = domain.User{ID: "pm-1", Groups: []string{"UNICEF User", "Partnership Manager"}}

func pcaBody() map[string]any {
	return map[string]any{
		"agreement_type":         "PCA",
		"partner":                "P1",
		"country_programme":      "CP1",
		"start":                  "2024-01-01",
		"end":                    "2024-12-31",
		"authorized_officers":    []string{"ao-1"},
		"signed_by_partner_date": "2024-01-05",
		"signed_by_unicef_date":  "2024-01-06",
		"attachments":            []map[string]string{{"code": "signed_agreement", "file": "pca.pdf"}},
	}
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	res, _ := doJSON(t, http.MethodGet, s.URL+"/v0/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, data := doJSON(t, http.MethodGet, s.URL+"/v0/me", nil, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "unauthorized", decodeError(t, data).Error.Code)

	res, data = doJSON(t, http.MethodGet, s.URL+"/v0/me", nil, bearer("not-a-token"))
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "invalid_credentials", decodeError(t, data).Error.Code)
}

func TestDevLoginAndMe(t *testing.T) {
	s := newTestServer(t)
	res, data := doJSON(t, http.MethodPost, s.URL+"/v0/auth/dev/login", map[string]any{
		"user_id": "pm-1",
		"groups":  []string{"Partnership Manager"},
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var login DevLoginResponse
	require.NoError(t, json.Unmarshal(data, &login))
	require.NotEmpty(t, login.Token)

	res, data = doJSON(t, http.MethodGet, s.URL+"/v0/me", nil, bearer(login.Token))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var me WhoAmIResponse
	require.NoError(t, json.Unmarshal(data, &me))
	assert.Equal(t, "pm-1", me.UserID)
	assert.Equal(t, []string{"Partnership Manager"}, me.Groups)
	assert.Equal(t, "jwt", me.Source)
}

func TestUnknownUserWithoutGroupsForbidden(t *testing.T) {
	s := newTestServer(t)
	res, data := doJSON(t, http.MethodGet, s.URL+"/v0/me", nil, bearer(s.token(t, domain.User{ID: "ghost"})))
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))

	require.NoError(t, s.App.Repo.UpsertUser(context.Background(), domain.User{ID: "pme-1", Groups: []string{"PME"}}))
	res, data = doJSON(t, http.MethodGet, s.URL+"/v0/me", nil, bearer(s.token(t, domain.User{ID: "pme-1"})))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var me WhoAmIResponse
	require.NoError(t, json.Unmarshal(data, &me))
	assert.Equal(t, []string{"PME"}, me.Groups)
}

func TestAPIKeyAuth(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, s.App.Repo.UpsertUser(ctx, domain.User{ID: "svc", Groups: []string{"Admin"}}))
	require.NoError(t, s.App.Repo.InsertAPIKey(ctx, domain.APIKey{ID: "k1", UserID: "svc", KeyHash: repo.HashAPIKey("s3cret")}))

	res, data := doJSON(t, http.MethodGet, s.URL+"/v0/me", nil, map[string]string{"X-Api-Key": "s3cret"})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var me WhoAmIResponse
	require.NoError(t, json.Unmarshal(data, &me))
	assert.Equal(t, "svc", me.UserID)
	assert.Equal(t, "api_key", me.Source)

	res, _ = doJSON(t, http.MethodGet, s.URL+"/v0/users/pm-1", nil, map[string]string{"X-Api-Key": "s3cret"})
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, _ = doJSON(t, http.MethodGet, s.URL+"/v0/me", nil, map[string]string{"X-Api-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestAgreementLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	h := bearer(s.token(t, pmUser))

	res, data := doJSON(t, http.MethodPost, s.URL+"/v0/agreement", pcaBody(), h)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var created WriteResponse
	require.NoError(t, json.Unmarshal(data, &created))
	id := created.Entity.ID
	assert.Equal(t, domain.StatusDraft, created.Entity.Status)
	require.Len(t, created.Activities, 1)

	res, data = doJSON(t, http.MethodGet, s.URL+"/v0/agreement/"+id+"/transitions", nil, h)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var avail TransitionsResponse
	require.NoError(t, json.Unmarshal(data, &avail))
	assert.Equal(t, []string{"sign", "suspend", "cancel"}, avail.Transitions)

	res, data = doJSON(t, http.MethodPost, s.URL+"/v0/agreement/"+id+"/transitions/sign", map[string]any{"expected_status": "draft"}, h)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var signed WriteResponse
	require.NoError(t, json.Unmarshal(data, &signed))
	assert.Equal(t, domain.StatusSigned, signed.Entity.Status)
	require.Len(t, signed.Intents, 1)
	assert.Equal(t, "agreement.signed", signed.Intents[0].Template)

	res, data = doJSON(t, http.MethodGet, s.URL+"/v0/agreement/"+id, nil, h)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var got EntityResponse
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, domain.StatusSigned, got.Status)
	assert.Equal(t, int64(2), got.Version)
	assert.JSONEq(t, `"P1"`, string(got.Fields["partner"]))

	res, data = doJSON(t, http.MethodGet, s.URL+"/v0/agreement/"+id+"/activities", nil, h)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var acts []domain.Activity
	require.NoError(t, json.Unmarshal(data, &acts))
	require.Len(t, acts, 2)
	assert.Equal(t, "sign", acts[1].Transition)

	res, data = doJSON(t, http.MethodGet, s.URL+"/v0/agreement?status=signed", nil, h)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var list []EntityResponse
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	res, data = doJSON(t, http.MethodGet, s.URL+"/v0/agreement/"+id+"/permissions", nil, h)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var perms PermissionsResponse
	require.NoError(t, json.Unmarshal(data, &perms))
	assert.Contains(t, perms.View, "status")
	assert.NotContains(t, perms.Edit, "status")
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	h := bearer(s.token(t, pmUser))

	res, data := doJSON(t, http.MethodPost, s.URL+"/v0/agreement", pcaBody(), h)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var created WriteResponse
	require.NoError(t, json.Unmarshal(data, &created))
	id := created.Entity.ID
	res, data = doJSON(t, http.MethodPost, s.URL+"/v0/agreement/"+id+"/transitions/sign", nil, h)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown kind", http.MethodGet, "/v0/widget/x", nil, http.StatusNotFound, "not_found"},
		{"missing entity", http.MethodGet, "/v0/agreement/missing", nil, http.StatusNotFound, "not_found"},
		{"unknown transition", http.MethodPost, "/v0/agreement/" + id + "/transitions/approve", nil, http.StatusBadRequest, "unknown_transition"},
		{"illegal transition", http.MethodPost, "/v0/agreement/" + id + "/transitions/sign", nil, http.StatusConflict, "illegal_transition"},
		{"stale status", http.MethodPost, "/v0/agreement/" + id + "/transitions/suspend", map[string]any{"expected_status": "draft"}, http.StatusConflict, "stale_state"},
		{"status not editable", http.MethodPatch, "/v0/agreement/" + id, map[string]any{"status": "draft"}, http.StatusForbidden, "field_not_editable"},
		{"invalid end", http.MethodPatch, "/v0/agreement/" + id, map[string]any{"end": "2023-12-01"}, http.StatusUnprocessableEntity, "validation_failed"},
		{"delete after draft", http.MethodDelete, "/v0/agreement/" + id, nil, http.StatusForbidden, "forbidden"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, data := doJSON(t, tc.method, s.URL+tc.path, tc.body, h)
			require.Equal(t, tc.status, res.StatusCode, string(data))
			assert.Equal(t, tc.code, decodeError(t, data).Error.Code)
		})
	}

	res, data = doJSON(t, http.MethodPatch, s.URL+"/v0/agreement/"+id, map[string]any{"end": "2023-12-01"}, h)
	env := decodeError(t, data)
	fields, ok := env.Error.Details["fields"].(map[string]any)
	require.True(t, ok, string(data))
	assert.Contains(t, fields, "end")
}

func TestRelayDeliversPendingIntents(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	var (
		mu       sync.Mutex
		received []relayBody
		fail     = true
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "hook-secret", r.Header.Get("X-Doclife-Secret"))
		var body relayBody
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		received = append(received, body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	require.NoError(t, s.App.Repo.Events.EnqueueIntents(ctx, []domain.Intent{
		{ID: "i-1", Template: "agreement.signed", Recipients: []string{"ao-1"}, Context: map[string]any{"entity_id": "a1"}},
		{ID: "i-2", Template: "action_point.assigned", Recipients: []string{"u-2"}, Context: map[string]any{}},
	}))

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	relay := NewRelay(s.App.Repo, []config.WebhookConfig{{
		URL:       hook.URL,
		Secret:    "hook-secret",
		Templates: []string{"agreement.signed"},
	}}, logrus.NewEntry(logger))

	n, err := relay.DeliverPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	pending, err := s.App.Repo.Outbox(ctx, true, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Contains(t, pending[0].LastError, "503")
	assert.Equal(t, 0, pending[1].Attempts, "no webhook subscribes to the second template")

	mu.Lock()
	fail = false
	mu.Unlock()
	n, err = relay.DeliverPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	mu.Lock()
	require.Len(t, received, 1)
	assert.Equal(t, "i-1", received[0].ID)
	assert.Equal(t, []string{"ao-1"}, received[0].Recipients)
	mu.Unlock()

	pending, err = s.App.Repo.Outbox(ctx, true, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "i-2", pending[0].Intent.ID)
}

func TestOpenAPIConcurrentFetch(t *testing.T) {
	s := newTestServer(t)
	const n = 8
	bodies := make([][]byte, n)
	codes := make([]int, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := http.Get(s.URL + "/v0/openapi.json")
			if err != nil {
				errs[i] = err
				return
			}
			defer res.Body.Close()
			codes[i] = res.StatusCode
			bodies[i], errs[i] = io.ReadAll(res.Body)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, http.StatusOK, codes[i])
		assert.Equal(t, bodies[0], bodies[i])
	}
	var doc map[string]any
	require.NoError(t, json.Unmarshal(bodies[0], &doc))
	assert.Contains(t, doc, "paths")
}
