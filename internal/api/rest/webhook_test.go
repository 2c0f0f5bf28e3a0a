package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/clintrovert/taskhook/internal/broadcast"
	"github.com/clintrovert/taskhook/internal/classifier"
	"github.com/clintrovert/taskhook/internal/pipeline"
	"github.com/clintrovert/taskhook/internal/store"
	"github.com/clintrovert/taskhook/internal/webhook"
	"github.com/clintrovert/taskhook/pkg/types"
)

const testSecret = "s3cr3t"

const pushBody = `{
	"repository": {"id": 100, "full_name": "acme/api"},
	"commits": [{"id": "a1", "message": "fix: resolve TASK-07, closes it"}],
	"installation": {"id": 1}
}`

type fakeProcessor struct {
	mu     sync.Mutex
	pushes []*webhook.PushEvent
	err    error
	panic  bool
}

func (f *fakeProcessor) ProcessPush(_ context.Context, push *webhook.PushEvent) (pipeline.Summary, error) {
	if f.panic {
		panic("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, push)
	return pipeline.Summary{Commits: len(push.Commits)}, f.err
}

func (f *fakeProcessor) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushes)
}

func newRouter(t *testing.T, processor PushProcessor, secret string) http.Handler {
	t.Helper()
	h := NewHandler(processor, broadcast.NewHub(zaptest.NewLogger(t), nil), Config{Secret: secret}, zaptest.NewLogger(t))
	r := chi.NewRouter()
	h.RegisterWebhookRoutes(r)
	return r
}

func deliver(t *testing.T, router http.Handler, event, body, signature string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if event != "" {
		req.Header.Set("X-GitHub-Event", event)
	}
	if signature != "" {
		req.Header.Set(webhook.SignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

func sign(body string) string {
	return webhook.Sign([]byte(testSecret), []byte(body))
}

func TestReceiveWebhook_Responses(t *testing.T) {
	tests := []struct {
		name       string
		secret     string
		event      string
		body       string
		signature  string
		wantStatus int
		wantBody   map[string]any
		wantPushes int
	}{
		{
			name: "ping", secret: testSecret, event: "ping", body: `{"zen":"hi"}`, signature: sign(`{"zen":"hi"}`),
			wantStatus: http.StatusOK, wantBody: map[string]any{"message": "Pong"},
		},
		{
			name: "push", secret: testSecret, event: "push", body: pushBody, signature: sign(pushBody),
			wantStatus: http.StatusOK, wantBody: map[string]any{"success": true}, wantPushes: 1,
		},
		{
			name: "ignored event", secret: testSecret, event: "issues", body: `{}`, signature: sign(`{}`),
			wantStatus: http.StatusOK, wantBody: map[string]any{"message": "Ignored event"},
		},
		{
			name: "missing signature", secret: testSecret, event: "push", body: pushBody,
			wantStatus: http.StatusUnauthorized, wantBody: map[string]any{"error": "No signature found"},
		},
		{
			name: "invalid signature", secret: testSecret, event: "push", body: pushBody, signature: sign(pushBody + " "),
			wantStatus: http.StatusUnauthorized, wantBody: map[string]any{"error": "Invalid signature"},
		},
		{
			name: "invalid signature on ping", secret: testSecret, event: "ping", body: `{}`, signature: "sha256=00",
			wantStatus: http.StatusUnauthorized, wantBody: map[string]any{"error": "Invalid signature"},
		},
		{
			name: "no secret accepts unsigned push", event: "push", body: pushBody,
			wantStatus: http.StatusOK, wantBody: map[string]any{"success": true}, wantPushes: 1,
		},
		{
			name: "malformed push payload", event: "push", body: `{"repository":`,
			wantStatus: http.StatusInternalServerError, wantBody: map[string]any{"message": "Server error"},
		},
		{
			name: "push without repository", event: "push", body: `{"commits":[]}`,
			wantStatus: http.StatusInternalServerError, wantBody: map[string]any{"message": "Server error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			processor := &fakeProcessor{}
			w, resp := deliver(t, newRouter(t, processor, tt.secret), tt.event, tt.body, tt.signature)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantBody, resp)
			assert.Equal(t, tt.wantPushes, processor.calls())
		})
	}
}

func TestReceiveWebhook_ProcessorFault(t *testing.T) {
	processor := &fakeProcessor{err: errors.New("no such table: tasks")}
	w, resp := deliver(t, newRouter(t, processor, ""), "push", pushBody, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, map[string]any{"message": "Server error"}, resp)
}

func TestReceiveWebhook_PanicIsServerError(t *testing.T) {
	w, resp := deliver(t, newRouter(t, &fakeProcessor{panic: true}, ""), "push", pushBody, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, map[string]any{"message": "Server error"}, resp)
}

func TestReceiveWebhook_UnknownProvider(t *testing.T) {
	router := newRouter(t, &fakeProcessor{}, "")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/bitbucket", strings.NewReader(pushBody))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type countingClassifier struct {
	mu    sync.Mutex
	calls int
}

func (c *countingClassifier) Classify(context.Context, string) (types.Classification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return types.Classification{TaskDisplayID: "TASK-07", Completed: true}, nil
}

var _ classifier.Classifier = (*countingClassifier)(nil)

func TestReceiveWebhook_EndToEnd(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	_, err = s.UpsertTask(ctx, &types.Task{DisplayID: "TASK-07", Status: types.StatusInReview, LinkedRepositories: []int64{100}})
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	hub := broadcast.NewHub(logger, nil)
	sub := hub.Subscribe(4)
	defer sub.Close()

	cls := &countingClassifier{}
	p := pipeline.New(s, cls, hub, logger, pipeline.Options{})
	h := NewHandler(p, hub, Config{Secret: testSecret}, logger)
	router := chi.NewRouter()
	h.RegisterWebhookRoutes(router)

	t.Run("rejected delivery has no side effects", func(t *testing.T) {
		w, _ := deliver(t, router, "push", pushBody, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Zero(t, cls.calls)
		_, err := s.GetRepository(ctx, 100)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("signed delivery completes the task", func(t *testing.T) {
		w, resp := deliver(t, router, "push", pushBody, sign(pushBody))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, map[string]any{"success": true}, resp)

		task, err := s.GetTaskByDisplayID(ctx, "TASK-07")
		require.NoError(t, err)
		assert.Equal(t, types.StatusCompleted, task.Status)

		select {
		case event := <-sub.Events():
			data, err := json.Marshal(event)
			require.NoError(t, err)
			assert.JSONEq(t, `{"taskId":"TASK-07","status":"Completed","commitMessage":"fix: resolve TASK-07, closes it"}`, string(data))
		default:
			t.Fatal("no completion broadcast")
		}
	})
}
