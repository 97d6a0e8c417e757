package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/c360/semcache/errors"
	"github.com/c360/semcache/pkg/cache"
	"github.com/c360/semcache/pkg/future"
	"github.com/c360/semcache/pkg/retry"
)

var errUnavailable = stderrors.New("document store temporarily unavailable")

// document is the value the workload caches.
type document struct {
	ID       string
	Body     string
	LoadedAt time.Time
}

// documentSource simulates a slow backing store that fails now and then.
type documentSource struct {
	failureRate float64
	loads       atomic.Int64
	failures    atomic.Int64
}

func newDocumentSource(failureRate float64) *documentSource {
	return &documentSource{failureRate: failureRate}
}

func (s *documentSource) load(ctx context.Context, id string) (*document, error) {
	s.loads.Add(1)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Duration(rand.N(500)) * time.Microsecond):
	}
	if rand.Float64() < s.failureRate {
		s.failures.Add(1)
		return nil, errUnavailable
	}
	return &document{ID: id, Body: "body of " + id, LoadedAt: time.Now()}, nil
}

// workload drives concurrent get/release traffic against a set of caches.
type workload struct {
	source  *documentSource
	workers int
	keys    int
	rate    float64 // requests per second per cache, 0 for unlimited
	logger  *slog.Logger
}

// limiter paces one cache's workers. It returns nil when pacing is off.
func (w *workload) limiter() *rate.Limiter {
	if w.rate <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(w.rate), max(1, w.workers))
}

func (w *workload) run(ctx context.Context, caches map[string]*cache.Cache[string, *document]) error {
	g, gctx := errgroup.WithContext(ctx)
	for name, c := range caches {
		lim := w.limiter()
		for i := range w.workers {
			g.Go(func() error {
				return w.worker(gctx, c, lim, i)
			})
		}
		w.logger.Debug("Started workers", "cache", name, "workers", w.workers, "rate", w.rate)
	}
	return g.Wait()
}

func (w *workload) worker(ctx context.Context, c *cache.Cache[string, *document], lim *rate.Limiter, n int) error {
	retryCfg := retry.Quick()
	for iter := 0; ; iter++ {
		if ctx.Err() != nil {
			return nil
		}
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				// Canceled, or the deadline falls before the next token.
				return nil
			}
		}
		id := fmt.Sprintf("doc-%d", rand.N(w.keys))

		var err error
		if (n+iter)%2 == 0 {
			_, err = c.Get(ctx, id, retry.Factory(ctx, retryCfg, func() (*document, error) {
				return w.source.load(ctx, id)
			}))
		} else {
			err = w.getAsync(ctx, c, id, retryCfg)
		}

		switch {
		case err == nil:
		case ctx.Err() != nil, errors.IsInvalidState(err), errors.IsObjectDisposed(err):
			return nil
		case errors.IsFactoryError(err):
			// A failed slot stays until removed.
			w.logger.Debug("Load failed after retries", "id", id, "error", err)
			if _, err := c.Remove(id); err != nil && !errors.IsInvalidState(err) {
				return err
			}
		default:
			return err
		}

		if iter%16 == 0 {
			if _, err := c.ApplyToItem(id, touch); err != nil && !errors.IsInvalidState(err) {
				return err
			}
		}
		if _, err := c.Release(id); err != nil && !errors.IsInvalidState(err) {
			return err
		}
	}
}

func (w *workload) getAsync(ctx context.Context, c *cache.Cache[string, *document], id string, cfg retry.Config) error {
	f, err := c.GetAsync(id, retry.AsyncFactory(ctx, cfg, func(ctx context.Context) (*document, error) {
		return w.source.load(ctx, id)
	}))
	if err != nil {
		return err
	}
	_, err = f.Await(ctx)
	return err
}

// touch waits for a pending document and checks it was loaded.
func touch(f *future.Future[*document]) *future.Signal {
	return future.GoSignal(func() error {
		doc, err := f.Await(context.Background())
		if err != nil {
			return nil
		}
		if doc.LoadedAt.IsZero() {
			return fmt.Errorf("document %s has no load time", doc.ID)
		}
		return nil
	})
}
