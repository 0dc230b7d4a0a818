package link

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/quote-engine/internal/obs"
	"github.com/noah-isme/quote-engine/internal/quote"
)

// Linker registers a quote with the external system and returns its reference.
type Linker interface {
	Link(ctx context.Context, q quote.Quote) (string, error)
}

// Store is the persistence the handler needs.
type Store interface {
	Get(ctx context.Context, id string) (quote.Quote, error)
	Link(ctx context.Context, id, externalRef string) error
}

// Locker serialises work on one key across workers.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Handler processes TypeLinkQuote tasks.
type Handler struct {
	Store   Store
	Linker  Linker
	Locker  Locker
	LockTTL time.Duration
}

// ProcessTask implements asynq.Handler.
func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p Payload
	if err := json.Unmarshal(t.Payload(), &p); err != nil || p.QuoteID == "" {
		obs.CountLinkTask("invalid")
		return fmt.Errorf("link: bad payload: %w", asynq.SkipRetry)
	}
	logger := zerolog.Ctx(ctx).With().Str("quote_id", p.QuoteID).Logger()
	ctx = logger.WithContext(ctx)

	run := func(ctx context.Context) error { return h.link(ctx, p.QuoteID) }
	if h.Locker == nil {
		return run(ctx)
	}
	return h.Locker.WithLock(ctx, "quote-link:"+p.QuoteID, h.LockTTL, run)
}

func (h *Handler) link(ctx context.Context, id string) error {
	logger := zerolog.Ctx(ctx)
	q, err := h.Store.Get(ctx, id)
	if errors.Is(err, quote.ErrNotFound) {
		obs.CountLinkTask("missing")
		logger.Warn().Msg("quote to link not found")
		return fmt.Errorf("link: %w: %w", err, asynq.SkipRetry)
	}
	if err != nil {
		obs.CountLinkTask("error")
		return fmt.Errorf("link: load quote: %w", err)
	}
	if q.State == quote.StateLinked || q.ExternalRef != "" {
		obs.CountLinkTask("skipped")
		logger.Debug().Str("external_ref", q.ExternalRef).Msg("quote already linked")
		return nil
	}

	ref, err := h.Linker.Link(ctx, q)
	if err != nil {
		obs.CountLinkTask("error")
		logger.Warn().Err(err).Msg("external link failed")
		return fmt.Errorf("link: %w", err)
	}
	if err := h.Store.Link(ctx, q.ID, ref); err != nil {
		obs.CountLinkTask("error")
		return fmt.Errorf("link: store reference: %w", err)
	}
	obs.CountLinkTask("ok")
	logger.Info().Str("external_ref", ref).Msg("quote linked")
	return nil
}
