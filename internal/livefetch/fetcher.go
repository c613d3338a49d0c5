// Package livefetch retrieves part bundles from the live parts site when the
// catalog does not have them, and caches them for the rest of the session.
package livefetch

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"

	"github.com/bowerhall/partscout/internal/apperr"
	"github.com/bowerhall/partscout/internal/browser"
	"github.com/bowerhall/partscout/internal/logger"
	"github.com/bowerhall/partscout/pkg/partsdb"
)

const (
	DefaultBaseURL = "https://www.partselect.com/"

	searchSelector = "input.js-headerNavSearch"
	redirectWait   = 15 * time.Second
	source         = "partselect"
)

var keyRe = regexp.MustCompile(`^PS\d+$`)

// Fetcher retrieves everything known about one part from the live source.
// Failures are NotFound, Timeout or UpstreamError from apperr.
type Fetcher interface {
	FetchAll(ctx context.Context, id string) (*partsdb.Bundle, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, id string) (*partsdb.Bundle, error)

func (f FetcherFunc) FetchAll(ctx context.Context, id string) (*partsdb.Bundle, error) {
	return f(ctx, id)
}

var errNoRedirect = errors.New("search did not reach a part page")

// PartSelect fetches bundles by submitting the part number to the site search
// and scraping the part page it redirects to.
type PartSelect struct {
	runner  *browser.Runner
	baseURL string
}

func NewPartSelect(runner *browser.Runner, baseURL string) *PartSelect {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &PartSelect{runner: runner, baseURL: baseURL}
}

func (f *PartSelect) FetchAll(ctx context.Context, id string) (*partsdb.Bundle, error) {
	id = partsdb.NormalizePSNumber(id)
	if !keyRe.MatchString(id) {
		return nil, apperr.InvalidArguments("%q is not a PS number", id)
	}

	start := time.Now()
	var bundle *partsdb.Bundle

	err := f.runner.Run(ctx, f.baseURL, func(ctx context.Context, page *rod.Page) error {
		partURL, err := search(ctx, page, id)
		if err != nil {
			return err
		}
		if err := page.WaitLoad(); err != nil {
			return fmt.Errorf("load part page: %w", err)
		}

		b := &partsdb.Bundle{
			Part:      extractPart(page, partURL),
			FetchedAt: time.Now(),
			Source:    source,
		}
		if b.Part.PSNumber == "" {
			b.Part.PSNumber = id
		}
		if b.Part.PSNumber != id {
			logger.Warn("live fetch landed on a different part", "requested", id, "got", b.Part.PSNumber)
		}

		b.Models = extractModels(page, b.Part.PSNumber)
		b.Annotations = append(b.Annotations, extractQnA(page, b.Part.PSNumber)...)
		b.Annotations = append(b.Annotations, extractStories(page, b.Part.PSNumber)...)
		b.Annotations = append(b.Annotations, extractReviews(page, b.Part.PSNumber)...)

		bundle = b
		return nil
	})
	if err != nil {
		return nil, classify(ctx, id, err)
	}

	logger.Info("live fetch complete",
		"part", id,
		"models", len(bundle.Models),
		"annotations", len(bundle.Annotations),
		"elapsed", time.Since(start).Round(time.Millisecond))

	return bundle, nil
}

func search(ctx context.Context, page *rod.Page, id string) (string, error) {
	ok, box, err := page.Has(searchSelector)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("search box %s missing", searchSelector)
	}

	if err := box.Input(id); err != nil {
		return "", fmt.Errorf("type part number: %w", err)
	}
	if err := box.Type(input.Enter); err != nil {
		return "", fmt.Errorf("submit search: %w", err)
	}

	partURL, err := browser.WaitURL(ctx, page, "/PS", redirectWait)
	if err != nil {
		if ctx.Err() == nil {
			return "", errNoRedirect
		}
		return "", err
	}
	return partURL, nil
}

func classify(ctx context.Context, id string, err error) error {
	switch {
	case errors.Is(err, errNoRedirect):
		return apperr.NotFound("part %s not found on %s", id, source)
	case errors.Is(err, browser.ErrTimeout):
		return apperr.Timeout("live fetch of %s: %v", id, err)
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return apperr.Upstream(err, "live fetch of %s", id)
	}
}
