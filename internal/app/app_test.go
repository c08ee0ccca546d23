package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beru/backend/internal/api"
	"beru/backend/internal/config"
	"beru/backend/internal/llm"
)

// fakeReplicate answers every prompt with "Yes, my liege." split into
// fragments, except prompts containing "treason", whose jobs fail.
func fakeReplicate(t *testing.T) (*httptest.Server, *atomic.Int32) {
	var created atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/predictions":
			created.Add(1)
			var req llm.CreatePredictionRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			id := "ok"
			if strings.Contains(req.Input.Prompt, "treason") {
				id = "doomed"
			}
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"` + id + `","status":"starting"}`))
		case r.URL.Path == "/predictions/ok":
			_, _ = w.Write([]byte(`{"id":"ok","status":"succeeded","output":["Yes, ","my ","liege."]}`))
		case r.URL.Path == "/predictions/doomed":
			_, _ = w.Write([]byte(`{"id":"doomed","status":"failed","error":null}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server, &created
}

func testConfig(t *testing.T, replicateURL string) *config.Config {
	return &config.Config{
		AppPort:               0,
		LogLevel:              "DEBUG",
		ReplicateAPIToken:     "r8_test",
		ReplicateAPIURL:       replicateURL,
		ReplicateModel:        "meta/llama-2-7b-chat",
		ReplicateMaxTokens:    512,
		ReplicatePollInterval: time.Millisecond,
		DBDriver:              config.DriverSQLite,
		DatabasePath:          filepath.Join(t.TempDir(), "conversations.db"),
		CORSAllowedOrigins:    []string{"https://369emon.github.io"},
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	app, err := NewApp(cfg)
	require.NoError(t, err)
	require.NotNil(t, app)
	t.Cleanup(func() { _ = app.DB.Close() })
	return app
}

func do(t *testing.T, app *App, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	app.Server.Handler.ServeHTTP(rr, req)
	return rr
}

func chat(t *testing.T, app *App, message string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]string{"message": message})
	require.NoError(t, err)
	return do(t, app, http.MethodPost, "/chat", string(body))
}

func history(t *testing.T, app *App) []api.HistoryEntry {
	t.Helper()
	rr := do(t, app, http.MethodGet, "/history", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp api.HistoryResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.History)
	return resp.History
}

func TestNewApp(t *testing.T) {
	replicate, _ := fakeReplicate(t)
	app := newTestApp(t, testConfig(t, replicate.URL))

	assert.NotNil(t, app.DB)
	assert.NotNil(t, app.Server)
	assert.Empty(t, history(t, app))
}

func TestChatFlow_BuildMoreRoads(t *testing.T) {
	replicate, _ := fakeReplicate(t)
	app := newTestApp(t, testConfig(t, replicate.URL))

	rr := chat(t, app, "build more roads")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.JSONEq(t, `{"response": "Yes, my liege."}`, rr.Body.String())

	entries := history(t, app)
	require.Len(t, entries, 1)
	assert.Equal(t, "build more roads", entries[0].Title)
	assert.Equal(t, "Yes, my liege.", entries[0].Response)
	assert.WithinDuration(t, time.Now(), entries[0].Timestamp, time.Minute)
}

func TestChatFlow_FailedJobPersistsNothing(t *testing.T) {
	replicate, _ := fakeReplicate(t)
	app := newTestApp(t, testConfig(t, replicate.URL))

	require.Equal(t, http.StatusOK, chat(t, app, "build more roads").Code)
	before := history(t, app)

	rr := chat(t, app, "commit treason")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"detail": "Replicate API prediction failed"}`, rr.Body.String())

	assert.Equal(t, before, history(t, app))
}

func TestChatFlow_MissingTokenFailsOnlyChat(t *testing.T) {
	replicate, created := fakeReplicate(t)
	cfg := testConfig(t, replicate.URL)
	cfg.ReplicateAPIToken = ""
	app := newTestApp(t, cfg)

	rr := chat(t, app, "build more roads")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"detail": "Replicate API token not found."}`, rr.Body.String())
	assert.Zero(t, created.Load())

	assert.Empty(t, history(t, app))
	assert.Equal(t, http.StatusOK, do(t, app, http.MethodPost, "/attach", "").Code)
}

func TestHistory_ReverseInsertionOrder(t *testing.T) {
	replicate, _ := fakeReplicate(t)
	app := newTestApp(t, testConfig(t, replicate.URL))

	messages := []string{"first", "second", "third", "fourth", "fifth"}
	for _, m := range messages {
		require.Equal(t, http.StatusOK, chat(t, app, m).Code)
	}

	entries := history(t, app)
	require.Len(t, entries, len(messages))
	for i, entry := range entries {
		assert.Equal(t, messages[len(messages)-1-i], entry.Title)
	}
}

func TestChatFlow_SpecialCharactersRoundTrip(t *testing.T) {
	replicate, _ := fakeReplicate(t)
	app := newTestApp(t, testConfig(t, replicate.URL))

	message := "  He said \"raise the 'tax'\" — 王は言った 👑\n\ttabs\\slashes  "
	require.Equal(t, http.StatusOK, chat(t, app, message).Code)

	entries := history(t, app)
	require.Len(t, entries, 1)
	assert.Equal(t, message, entries[0].Title, "the title is stored byte-for-byte")
}

func TestAttach_IsSideEffectFree(t *testing.T) {
	replicate, _ := fakeReplicate(t)
	app := newTestApp(t, testConfig(t, replicate.URL))
	require.Equal(t, http.StatusOK, chat(t, app, "build more roads").Code)
	before := history(t, app)

	for i := 0; i < 3; i++ {
		rr := do(t, app, http.MethodPost, "/attach", `{"file":"ignored"}`)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"response": "File upload is not yet implemented, my monarch."}`, rr.Body.String())
	}

	assert.Equal(t, before, history(t, app))
}

func TestNewApp_UnreachableDatabase(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.DBDriver = config.DriverMySQL
	cfg.DBHost = "127.0.0.1"
	cfg.DBPort = 1
	cfg.DBUser = "root"
	cfg.DBName = "beru"

	app, err := NewApp(cfg)
	assert.Nil(t, app)
	require.Error(t, err)
	assert.ErrorContains(t, err, "failed to initialize database")
}

func TestNewApp_InvalidConfiguration(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.DBDriver = config.DriverMySQL

	_, err := NewApp(cfg)
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestStorageFailureAfterStartup(t *testing.T) {
	replicate, _ := fakeReplicate(t)
	app := newTestApp(t, testConfig(t, replicate.URL))
	require.NoError(t, app.DB.Close())

	rr := do(t, app, http.MethodGet, "/history", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"detail": "Database connection error"}`, rr.Body.String())

	rr = chat(t, app, "build more roads")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"detail": "Database connection error"}`, rr.Body.String())
}

func TestSetupLogger(t *testing.T) {
	for _, level := range []string{"debug", "WARN", "error", "bogus"} {
		assert.NotPanics(t, func() { setupLogger(level) })
	}
}
