// Copyright 2018 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pagecache keeps generated pages in memory and regenerates them
// after a revalidation interval.
//
// A page younger than the interval is served as is. An older page is still
// served, and one regeneration is started in the background; the next
// request sees the new page. A page that has never been generated is
// generated while the request waits.
package pagecache

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	defaultPrerenderLimit = 4
	defaultRegenTimeout   = 30 * time.Second
)

// ErrGone is returned by a Generator when the page no longer exists. The
// cache evicts the key instead of keeping the stale page.
var ErrGone = errors.New("pagecache: page gone")

// Gone marks err as the reason a page no longer exists. The result matches
// ErrGone and still unwraps to err.
func Gone(err error) error {
	return &goneError{cause: err}
}

type goneError struct {
	cause error
}

func (e *goneError) Error() string        { return ErrGone.Error() + ": " + e.cause.Error() }
func (e *goneError) Unwrap() error        { return e.cause }
func (e *goneError) Is(target error) bool { return target == ErrGone }

// Generator renders the page for key.
type Generator func(ctx context.Context, key string) ([]byte, error)

// Options configures a Cache.
type Options struct {
	Generate   Generator
	Revalidate time.Duration
	Logger     logrus.FieldLogger

	// PrerenderLimit bounds concurrent generations in Prerender.
	PrerenderLimit int
	// RegenTimeout bounds one run of the generator.
	RegenTimeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Page is a cached rendering.
type Page struct {
	Body        []byte
	GeneratedAt time.Time
}

// Status reports how Get satisfied a request.
type Status string

const (
	StatusHit   Status = "HIT"
	StatusStale Status = "STALE"
	StatusMiss  Status = "MISS"
)

// Cache is safe for concurrent use.
type Cache struct {
	generate       Generator
	revalidate     time.Duration
	log            logrus.FieldLogger
	prerenderLimit int
	regenTimeout   time.Duration
	now            func() time.Time

	group singleflight.Group

	mu      sync.RWMutex
	pages   map[string]Page
	pending map[string]struct{} // keys with a background regeneration queued
	closed  bool

	bg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New returns a Cache. Generate and a positive Revalidate are required.
func New(opts Options) *Cache {
	if opts.Generate == nil {
		panic("pagecache: nil Generator")
	}
	if opts.Revalidate <= 0 {
		panic("pagecache: revalidate interval must be positive")
	}
	c := &Cache{
		generate:       opts.Generate,
		revalidate:     opts.Revalidate,
		log:            opts.Logger,
		prerenderLimit: opts.PrerenderLimit,
		regenTimeout:   opts.RegenTimeout,
		now:            opts.Now,
		pages:          make(map[string]Page),
		pending:        make(map[string]struct{}),
	}
	if c.log == nil {
		l := logrus.New()
		l.Out = io.Discard
		c.log = l
	}
	if c.prerenderLimit <= 0 {
		c.prerenderLimit = defaultPrerenderLimit
	}
	if c.regenTimeout <= 0 {
		c.regenTimeout = defaultRegenTimeout
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// Get returns the page for key. Only a miss waits for the generator; its
// error is returned unchanged.
func (c *Cache) Get(ctx context.Context, key string) (Page, Status, error) {
	c.mu.RLock()
	p, ok := c.pages[key]
	c.mu.RUnlock()

	if ok {
		if c.now().Sub(p.GeneratedAt) < c.revalidate {
			return p, StatusHit, nil
		}
		c.regenerateAsync(key)
		return p, StatusStale, nil
	}

	p, err := c.regenerate(ctx, key)
	if err != nil {
		return Page{}, StatusMiss, err
	}
	return p, StatusMiss, nil
}

// Revalidate regenerates key now and waits for the result.
func (c *Cache) Revalidate(ctx context.Context, key string) (Page, error) {
	return c.regenerate(ctx, key)
}

// Prerender generates every key before traffic arrives. A failing key does
// not stop the others; each failure is logged and the first one is returned.
func (c *Cache) Prerender(ctx context.Context, keys []string) error {
	var g errgroup.Group
	g.SetLimit(c.prerenderLimit)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			if _, err := c.regenerate(ctx, key); err != nil {
				c.log.WithField("page", key).WithField("error", err).Warn("prerender failed")
				return errors.Wrapf(err, "prerender %q", key)
			}
			return nil
		})
	}
	return g.Wait()
}

// Peek returns the cached page for key without triggering generation.
func (c *Cache) Peek(key string) (Page, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.pages[key]
	return p, ok
}

// Len returns the number of cached pages.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pages)
}

// Close cancels background regenerations and waits for them to return.
func (c *Cache) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.bg.Wait()
}

// regenerate runs the generator for key at most once at a time and stores
// the result. Callers joining a flight share it, so the generator runs on the
// cache's own context and ctx only bounds how long this caller waits.
func (c *Cache) regenerate(ctx context.Context, key string) (Page, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		gctx, cancel := context.WithTimeout(c.ctx, c.regenTimeout)
		defer cancel()
		body, err := c.generate(gctx, key)
		if err != nil {
			if errors.Is(err, ErrGone) {
				c.evict(key)
			}
			return Page{}, err
		}
		p := Page{Body: body, GeneratedAt: c.now()}
		c.mu.Lock()
		c.pages[key] = p
		c.mu.Unlock()
		return p, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Page{}, res.Err
		}
		return res.Val.(Page), nil
	case <-ctx.Done():
		return Page{}, ctx.Err()
	}
}

func (c *Cache) regenerateAsync(key string) {
	c.mu.Lock()
	if _, busy := c.pending[key]; busy || c.closed {
		c.mu.Unlock()
		return
	}
	c.pending[key] = struct{}{}
	c.bg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.bg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.pending, key)
			c.mu.Unlock()
		}()
		ctx, cancel := context.WithTimeout(c.ctx, c.regenTimeout)
		defer cancel()

		log := c.log.WithField("page", key)
		if _, err := c.regenerate(ctx, key); err != nil {
			if errors.Is(err, ErrGone) {
				log.Info("page removed during revalidation")
				return
			}
			log.WithField("error", err).Warn("revalidation failed, keeping stale page")
			return
		}
		log.Debug("page revalidated")
	}()
}

func (c *Cache) evict(key string) {
	c.mu.Lock()
	delete(c.pages, key)
	c.mu.Unlock()
}
