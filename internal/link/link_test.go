package link_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/quote-engine/internal/link"
	"github.com/noah-isme/quote-engine/internal/lock"
	"github.com/noah-isme/quote-engine/internal/quote"
	"github.com/noah-isme/quote-engine/internal/resilience"
	"github.com/noah-isme/quote-engine/internal/store"
)

type recordingClient struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (c *recordingClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, task)
	c.opts = append(c.opts, opts)
	return &asynq.TaskInfo{ID: "link:q-1"}, nil
}

func TestEnqueueLink(t *testing.T) {
	client := &recordingClient{}
	e := link.Enqueuer{Client: client, Queue: "quotes", MaxRetry: 5}
	require.NoError(t, e.EnqueueLink(context.Background(), "q-1"))

	require.Len(t, client.tasks, 1)
	require.Equal(t, link.TypeLinkQuote, client.tasks[0].Type())
	var p link.Payload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &p))
	require.Equal(t, "q-1", p.QuoteID)
	require.Len(t, client.opts[0], 4)
}

func TestEnqueueLinkDuplicateIsNoop(t *testing.T) {
	e := link.Enqueuer{Client: &recordingClient{err: asynq.ErrTaskIDConflict}}
	require.NoError(t, e.EnqueueLink(context.Background(), "q-1"))

	e = link.Enqueuer{Client: &recordingClient{err: errors.New("redis down")}}
	require.Error(t, e.EnqueueLink(context.Background(), "q-1"))
	require.Error(t, e.EnqueueLink(context.Background(), " "))
}

type stubLinker struct {
	mu    sync.Mutex
	calls int
	ref   string
	err   error
}

func (l *stubLinker) Link(ctx context.Context, q quote.Quote) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.ref, l.err
}

func persisted(t *testing.T, s *store.Memory, id string) {
	t.Helper()
	q := quote.Quote{
		ID:        id,
		ProductID: "sauna-s",
		State:     quote.StatePersisted,
		Items:     []quote.Item{{StepID: "bench", OptionID: "aspen", Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1)}},
	}
	q.Recalculate()
	require.NoError(t, s.Save(context.Background(), q, ""))
}

func newLocker(t *testing.T) lock.Locker {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return lock.Locker{R: rdb, Prefix: "test:", RetryBackoff: 5 * time.Millisecond}
}

func task(t *testing.T, id string) *asynq.Task {
	t.Helper()
	tk, err := link.NewTask(id)
	require.NoError(t, err)
	return tk
}

func TestHandlerLinksOnce(t *testing.T) {
	s := store.NewMemory()
	persisted(t, s, "q-1")
	linker := &stubLinker{ref: "ERP-1001"}
	h := &link.Handler{Store: s, Linker: linker, Locker: newLocker(t), LockTTL: time.Second}

	require.NoError(t, h.ProcessTask(context.Background(), task(t, "q-1")))
	require.NoError(t, h.ProcessTask(context.Background(), task(t, "q-1")))
	require.Equal(t, 1, linker.calls)

	q, err := s.GetByExternalRef(context.Background(), "ERP-1001")
	require.NoError(t, err)
	require.Equal(t, "q-1", q.ID)
	require.Equal(t, quote.StateLinked, q.State)
}

func TestHandlerConcurrentTasksLinkOnce(t *testing.T) {
	s := store.NewMemory()
	persisted(t, s, "q-2")
	linker := &stubLinker{ref: "ERP-2002"}
	h := &link.Handler{Store: s, Linker: linker, Locker: newLocker(t), LockTTL: time.Second}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			errs[i] = h.ProcessTask(ctx, task(t, "q-2"))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, linker.calls)
}

func TestHandlerErrors(t *testing.T) {
	s := store.NewMemory()
	persisted(t, s, "q-3")

	h := &link.Handler{Store: s, Linker: &stubLinker{err: errors.New("erp unavailable")}}
	err := h.ProcessTask(context.Background(), task(t, "q-3"))
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)

	err = h.ProcessTask(context.Background(), task(t, "missing"))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = h.ProcessTask(context.Background(), asynq.NewTask(link.TypeLinkQuote, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHTTPLinker(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/quotes", r.URL.Path)
		require.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		require.Equal(t, "q-9", r.Header.Get("Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"ERP-9"}`))
	}))
	defer srv.Close()

	l := link.HTTPLinker{
		BaseURL: srv.URL,
		APIKey:  "token",
		HTTP:    resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 2, BaseBackoff: time.Millisecond},
	}
	q := quote.Quote{ID: "q-9", ProductID: "sauna-s", Currency: "EUR", Customer: quote.Customer{Email: "a@example.com"},
		Items: []quote.Item{{OptionID: "aspen", Title: "Aspen", Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(2)}}}
	q.Recalculate()

	ref, err := l.Link(context.Background(), q)
	require.NoError(t, err)
	require.Equal(t, "ERP-9", ref)
	require.Equal(t, "q-9", got["quote_id"])
	require.Len(t, got["lines"], 1)
}

func TestHTTPLinkerRejectsEmptyID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	l := link.HTTPLinker{BaseURL: srv.URL, HTTP: resilience.HTTPClient{Client: srv.Client()}}
	_, err := l.Link(context.Background(), quote.Quote{ID: "q-10"})
	require.Error(t, err)
}
