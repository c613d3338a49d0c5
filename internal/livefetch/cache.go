package livefetch

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/bowerhall/partscout/internal/apperr"
	"github.com/bowerhall/partscout/internal/logger"
	"github.com/bowerhall/partscout/pkg/partsdb"
)

// Client is the long-lived side of live fetching: the fetcher plus what
// happens to every bundle it produces. Turns get their own Cache from it.
type Client struct {
	fetcher    Fetcher
	classifier Classifier
	sinks      []Sink
	fetches    atomic.Int64
}

type Option func(*Client)

// WithClassifier fills empty category tags on fetched bundles.
func WithClassifier(c Classifier) Option {
	return func(cl *Client) { cl.classifier = c }
}

// WithSinks hands every successful bundle to the given sinks.
func WithSinks(sinks ...Sink) Option {
	return func(cl *Client) { cl.sinks = append(cl.sinks, sinks...) }
}

func NewClient(f Fetcher, opts ...Option) *Client {
	c := &Client{fetcher: f}
	for _, opt := range opts {
		opt(c)
	}
	if c.classifier == nil {
		c.classifier = KeywordClassifier{}
	}
	return c
}

// Fetches reports how many fetches reached the fetcher since start.
func (c *Client) Fetches() int64 {
	return c.fetches.Load()
}

// Turn returns a cache for one turn, seeded with the bundles the session
// already holds. seed is not modified.
func (c *Client) Turn(seed map[string]*partsdb.Bundle) *Cache {
	tc := &Cache{
		client:  c,
		seeded:  make(map[string]*partsdb.Bundle, len(seed)),
		fresh:   make(map[string]*partsdb.Bundle),
		missing: make(map[string]error),
	}
	for k, b := range seed {
		tc.seeded[partsdb.NormalizePSNumber(k)] = b
	}
	return tc
}

func (c *Client) fetch(ctx context.Context, id string) (*partsdb.Bundle, error) {
	c.fetches.Add(1)

	b, err := c.fetcher.FetchAll(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, apperr.NotFound("part %s", id)
	}
	if b.Part.PSNumber == "" {
		b.Part.PSNumber = id
	}

	if b.Part.ApplianceType == "" {
		tag, err := c.classifier.Classify(ctx, b)
		if err != nil {
			logger.Warn("appliance classification failed", "part", id, "error", err)
		}
		b.Part.ApplianceType = tag
		logger.Debug("appliance classified", "part", id, "type", tag)
	}

	for _, s := range c.sinks {
		if err := s.Store(ctx, b); err != nil {
			logger.Warn("bundle sink failed", "part", id, "sink", s.Name(), "error", err)
		}
	}

	return b, nil
}

// Cache is the per-turn view of live-fetched bundles. Get performs at most
// one fetch per id no matter how many callers ask concurrently.
type Cache struct {
	client *Client
	group  singleflight.Group

	mu      sync.Mutex
	seeded  map[string]*partsdb.Bundle
	fresh   map[string]*partsdb.Bundle
	missing map[string]error
}

// Peek returns a bundle already held by the turn without fetching.
func (tc *Cache) Peek(id string) (*partsdb.Bundle, bool) {
	id = partsdb.NormalizePSNumber(id)

	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.lookup(id)
}

func (tc *Cache) lookup(id string) (*partsdb.Bundle, bool) {
	if b, ok := tc.fresh[id]; ok {
		return b, true
	}
	b, ok := tc.seeded[id]
	return b, ok
}

// Get returns the bundle for id, fetching it on first use. A NotFound answer
// is remembered for the rest of the turn; timeouts and upstream failures are
// not, so a retry fetches again.
func (tc *Cache) Get(ctx context.Context, id string) (*partsdb.Bundle, error) {
	id = partsdb.NormalizePSNumber(id)
	if !keyRe.MatchString(id) {
		return nil, apperr.InvalidArguments("%q is not a PS number", id)
	}

	tc.mu.Lock()
	if b, ok := tc.lookup(id); ok {
		tc.mu.Unlock()
		return b, nil
	}
	if err, ok := tc.missing[id]; ok {
		tc.mu.Unlock()
		return nil, err
	}
	tc.mu.Unlock()

	ch := tc.group.DoChan(id, func() (any, error) {
		// a caller that lost the race to the lock may arrive after the fetch finished
		tc.mu.Lock()
		if b, ok := tc.lookup(id); ok {
			tc.mu.Unlock()
			return b, nil
		}
		tc.mu.Unlock()

		b, err := tc.client.fetch(ctx, id)

		tc.mu.Lock()
		defer tc.mu.Unlock()
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				tc.missing[id] = err
			}
			return nil, err
		}
		tc.fresh[id] = b
		return b, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*partsdb.Bundle), nil
	}
}

// Entries returns the bundles fetched during this turn, for the session commit.
func (tc *Cache) Entries() map[string]*partsdb.Bundle {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	out := make(map[string]*partsdb.Bundle, len(tc.fresh))
	for k, b := range tc.fresh {
		out[k] = b
	}
	return out
}

// Keys lists every id the turn holds a bundle for, sorted.
func (tc *Cache) Keys() []string {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	keys := make([]string, 0, len(tc.seeded)+len(tc.fresh))
	for k := range tc.seeded {
		keys = append(keys, k)
	}
	for k := range tc.fresh {
		if _, ok := tc.seeded[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
