// Package link attaches persisted quotes to the external order system.
package link

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

// TypeLinkQuote is the asynq task type carrying a quote to link.
const TypeLinkQuote = "quote:link"

// Payload is the body of a TypeLinkQuote task.
type Payload struct {
	QuoteID string `json:"quote_id"`
}

// NewTask builds a link task for quoteID.
func NewTask(quoteID string) (*asynq.Task, error) {
	id := strings.TrimSpace(quoteID)
	if id == "" {
		return nil, errors.New("link: quote id is required")
	}
	body, err := json.Marshal(Payload{QuoteID: id})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeLinkQuote, body), nil
}

// TaskClient is the subset of asynq.Client used by Enqueuer.
type TaskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer schedules link tasks. Each quote is enqueued at most once while
// its task is retained.
type Enqueuer struct {
	Client   TaskClient
	Queue    string
	MaxRetry int
	Timeout  time.Duration
}

// EnqueueLink implements quote.LinkEnqueuer.
func (e Enqueuer) EnqueueLink(ctx context.Context, quoteID string) error {
	if e.Client == nil {
		return errors.New("link: task client not configured")
	}
	task, err := NewTask(quoteID)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.TaskID("link:" + strings.TrimSpace(quoteID)), asynq.Retention(24 * time.Hour)}
	if e.Queue != "" {
		opts = append(opts, asynq.Queue(e.Queue))
	}
	if e.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(e.MaxRetry))
	}
	if e.Timeout > 0 {
		opts = append(opts, asynq.Timeout(e.Timeout))
	}
	if _, err := e.Client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("link: enqueue %s: %w", quoteID, err)
	}
	return nil
}
