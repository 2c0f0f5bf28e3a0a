package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/clintrovert/taskhook/internal/store"
	"github.com/clintrovert/taskhook/internal/webhook"
	"github.com/clintrovert/taskhook/pkg/types"
)

const (
	repoA int64 = 100
	repoB int64 = 200
)

// scriptedClassifier answers per commit message and records call order
type scriptedClassifier struct {
	mu      sync.Mutex
	answers map[string]types.Classification
	errs    map[string]error
	block   map[string]bool
	panics  map[string]bool
	calls   []string
}

func newScriptedClassifier() *scriptedClassifier {
	return &scriptedClassifier{
		answers: map[string]types.Classification{},
		errs:    map[string]error{},
		block:   map[string]bool{},
		panics:  map[string]bool{},
	}
}

func (c *scriptedClassifier) Classify(ctx context.Context, message string) (types.Classification, error) {
	c.mu.Lock()
	c.calls = append(c.calls, message)
	c.mu.Unlock()

	if c.panics[message] {
		panic("provider SDK exploded")
	}
	if c.block[message] {
		// ignores ctx on purpose
		time.Sleep(time.Second)
	}
	if err := c.errs[message]; err != nil {
		return types.NoOp, err
	}
	return c.answers[message], nil
}

func (c *scriptedClassifier) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []types.CompletionEvent
}

func (p *recordingPublisher) Publish(event types.CompletionEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Events() []types.CompletionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.CompletionEvent(nil), p.events...)
}

// faultyStore injects failures into selected store calls
type faultyStore struct {
	*store.SQLiteStore
	upsertErr   error
	getErr      error
	completeErr map[string]error
}

func (f *faultyStore) UpsertRepository(ctx context.Context, id int64, name string) (*types.Repository, error) {
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	return f.SQLiteStore.UpsertRepository(ctx, id, name)
}

func (f *faultyStore) GetTaskByDisplayID(ctx context.Context, displayID string) (*types.Task, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.SQLiteStore.GetTaskByDisplayID(ctx, displayID)
}

func (f *faultyStore) CompleteTask(ctx context.Context, taskID string) (time.Time, bool, error) {
	if err := f.completeErr[taskID]; err != nil {
		return time.Time{}, false, err
	}
	return f.SQLiteStore.CompleteTask(ctx, taskID)
}

type fixture struct {
	store      *faultyStore
	classifier *scriptedClassifier
	publisher  *recordingPublisher
	pipeline   *Pipeline
}

func newFixture(t *testing.T, logger *zap.Logger) *fixture {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	f := &fixture{
		store:      &faultyStore{SQLiteStore: s, completeErr: map[string]error{}},
		classifier: newScriptedClassifier(),
		publisher:  &recordingPublisher{},
	}
	f.pipeline = New(f.store, f.classifier, f.publisher, logger, Options{ClassifierTimeout: 100 * time.Millisecond})
	return f
}

func (f *fixture) seed(t *testing.T, displayID string, status types.TaskStatus, repos ...int64) *types.Task {
	t.Helper()
	task, err := f.store.UpsertTask(context.Background(), &types.Task{
		DisplayID:          displayID,
		Status:             status,
		LinkedRepositories: repos,
	})
	require.NoError(t, err)
	return task
}

func (f *fixture) status(t *testing.T, displayID string) types.TaskStatus {
	t.Helper()
	task, err := f.store.GetTaskByDisplayID(context.Background(), displayID)
	require.NoError(t, err)
	return task.Status
}

func push(repo int64, messages ...string) *webhook.PushEvent {
	p := &webhook.PushEvent{RepositoryID: repo, RepositoryName: "acme/api"}
	for _, m := range messages {
		p.Commits = append(p.Commits, webhook.Commit{Message: m})
	}
	return p
}

func completes(id string) types.Classification {
	return types.Classification{TaskDisplayID: id, Completed: true}
}

func TestProcessPush_CompletesLinkedTask(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t))
	f.seed(t, "TASK-07", types.StatusInReview, repoA)
	msg := "fix: resolve TASK-07, closes it"
	f.classifier.answers[msg] = completes("TASK-07")

	summary, err := f.pipeline.ProcessPush(context.Background(), push(repoA, msg))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Completed)
	assert.True(t, summary.RepositoryUpserted)
	assert.Equal(t, types.StatusCompleted, f.status(t, "TASK-07"))
	require.Len(t, f.publisher.Events(), 1)
	assert.Equal(t, types.CompletionEvent{
		TaskID:        "TASK-07",
		Status:        types.StatusCompleted,
		CommitMessage: msg,
		RepositoryID:  repoA,
		OccurredAt:    f.publisher.Events()[0].OccurredAt,
	}, f.publisher.Events()[0])

	repo, err := f.store.GetRepository(context.Background(), repoA)
	require.NoError(t, err)
	assert.Equal(t, "acme/api", repo.Name)
}

func TestProcessPush_RedeliveryIsIdempotent(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t))
	f.seed(t, "TASK-07", types.StatusInReview, repoA)
	msg := "fix: resolve TASK-07, closes it"
	f.classifier.answers[msg] = completes("TASK-07")

	first, err := f.pipeline.ProcessPush(context.Background(), push(repoA, msg))
	require.NoError(t, err)
	second, err := f.pipeline.ProcessPush(context.Background(), push(repoA, msg))
	require.NoError(t, err)

	assert.Equal(t, 1, first.Completed)
	assert.Equal(t, 0, second.Completed)
	assert.Equal(t, 1, second.AlreadyCompleted)
	assert.Equal(t, types.StatusCompleted, f.status(t, "TASK-07"))
	assert.Len(t, f.publisher.Events(), 2, "redelivery may re-broadcast")
}

func TestProcessPush_TenantIsolation(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	f := newFixture(t, zap.New(core))
	f.seed(t, "TASK-07", types.StatusInReview, repoB)
	msg := "fix: resolve TASK-07"
	f.classifier.answers[msg] = completes("TASK-07")

	summary, err := f.pipeline.ProcessPush(context.Background(), push(repoA, msg))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Unresolved)
	assert.Equal(t, types.StatusInReview, f.status(t, "TASK-07"))
	assert.Empty(t, f.publisher.Events())
	assert.Equal(t, 1, logs.FilterMessage("no completable task for commit").Len())
}

func TestProcessPush_UnknownTask(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t))
	msg := "closes TASK-404"
	f.classifier.answers[msg] = completes("TASK-404")

	summary, err := f.pipeline.ProcessPush(context.Background(), push(repoA, msg))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Unresolved)
	assert.Empty(t, f.publisher.Events())
}

func TestProcessPush_ClassifierFailOpen(t *testing.T) {
	tests := []struct {
		name  string
		setup func(c *scriptedClassifier, msg string)
	}{
		{"error", func(c *scriptedClassifier, msg string) { c.errs[msg] = errors.New("503 from provider") }},
		{"timeout", func(c *scriptedClassifier, msg string) { c.block[msg] = true }},
		{"panic", func(c *scriptedClassifier, msg string) { c.panics[msg] = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, zaptest.NewLogger(t))
			f.seed(t, "TASK-01", types.StatusInProgress, repoA)
			f.seed(t, "TASK-02", types.StatusInProgress, repoA)

			first, second := "finish TASK-01", "finish TASK-02"
			f.classifier.answers[first] = completes("TASK-01")
			f.classifier.answers[second] = completes("TASK-02")
			tt.setup(f.classifier, first)

			summary, err := f.pipeline.ProcessPush(context.Background(), push(repoA, first, second))
			require.NoError(t, err)

			assert.Equal(t, 1, summary.ClassifierFailures)
			assert.Equal(t, 1, summary.Completed)
			assert.Equal(t, types.StatusInProgress, f.status(t, "TASK-01"))
			assert.Equal(t, types.StatusCompleted, f.status(t, "TASK-02"))
		})
	}
}

func TestProcessPush_DeliveryOrder(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t))
	f.seed(t, "TASK-07", types.StatusReady, repoA)

	mention, finish := "wip on TASK-07", "TASK-07 done"
	f.classifier.answers[mention] = types.Classification{TaskDisplayID: "TASK-07"}
	f.classifier.answers[finish] = completes("TASK-07")

	_, err := f.pipeline.ProcessPush(context.Background(), push(repoA, mention, finish))
	require.NoError(t, err)

	assert.Equal(t, []string{mention, finish}, f.classifier.Calls())
	assert.Equal(t, types.StatusCompleted, f.status(t, "TASK-07"))
	require.Len(t, f.publisher.Events(), 1)
	assert.Equal(t, finish, f.publisher.Events()[0].CommitMessage)
}

func TestProcessPush_RepositoryUpsertFailureContinues(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t))
	f.store.upsertErr = errors.New("database is locked")
	f.seed(t, "TASK-07", types.StatusInReview, repoA)
	msg := "closes TASK-07"
	f.classifier.answers[msg] = completes("TASK-07")

	summary, err := f.pipeline.ProcessPush(context.Background(), push(repoA, msg))
	require.NoError(t, err)
	assert.False(t, summary.RepositoryUpserted)
	assert.Equal(t, 1, summary.Completed)
}

func TestProcessPush_WriteFailureContinues(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t))
	broken := f.seed(t, "TASK-01", types.StatusReady, repoA)
	f.seed(t, "TASK-02", types.StatusReady, repoA)
	f.store.completeErr[broken.ID] = errors.New("disk full")

	first, second := "closes TASK-01", "closes TASK-02"
	f.classifier.answers[first] = completes("TASK-01")
	f.classifier.answers[second] = completes("TASK-02")

	summary, err := f.pipeline.ProcessPush(context.Background(), push(repoA, first, second))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.WriteFailures)
	assert.Equal(t, types.StatusReady, f.status(t, "TASK-01"))
	assert.Equal(t, types.StatusCompleted, f.status(t, "TASK-02"))
	require.Len(t, f.publisher.Events(), 1, "no broadcast without a durable write")
	assert.Equal(t, "TASK-02", f.publisher.Events()[0].TaskID)
}

func TestProcessPush_LookupFaultAborts(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t))
	f.store.getErr = errors.New("no such table: tasks")
	msg := "closes TASK-07"
	f.classifier.answers[msg] = completes("TASK-07")

	_, err := f.pipeline.ProcessPush(context.Background(), push(repoA, msg, "second commit"))
	assert.ErrorIs(t, err, f.store.getErr)
	assert.Equal(t, []string{msg}, f.classifier.Calls())
}

func TestProcessPush_NoOpClassificationsTouchNothing(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t))
	f.seed(t, "TASK-07", types.StatusBacklog, repoA)

	summary, err := f.pipeline.ProcessPush(context.Background(), push(repoA, "chore: bump deps", "docs: readme"))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Commits)
	assert.Zero(t, summary.Classified)
	assert.Equal(t, types.StatusBacklog, f.status(t, "TASK-07"))
	assert.Empty(t, f.publisher.Events())
}
