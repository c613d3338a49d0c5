package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/bowerhall/partscout/internal/logger"
)

// ErrTimeout is returned when a page run exceeds the runner timeout.
var ErrTimeout = errors.New("browser timeout")

// Runner drives a headless Chromium through go-rod, one browser per run
type Runner struct {
	bin      string
	headless bool
	timeout  time.Duration
}

// Config holds configuration for the browser runner
type Config struct {
	Bin     string        // chromium binary (default: downloaded by the launcher)
	Headful bool          // show the window, for debugging selectors
	Timeout time.Duration // whole-run timeout (default: 45s)
}

// PageFunc works on an open page. The page is already bound to the run context.
type PageFunc func(ctx context.Context, page *rod.Page) error

// NewRunner creates a new browser runner
func NewRunner(cfg Config) *Runner {
	if cfg.Timeout == 0 {
		cfg.Timeout = 45 * time.Second
	}

	return &Runner{
		bin:      cfg.Bin,
		headless: !cfg.Headful,
		timeout:  cfg.Timeout,
	}
}

func (r *Runner) Timeout() time.Duration {
	return r.timeout
}

// Run launches a browser, opens startURL and hands the page to fn. The browser
// is torn down when fn returns or ctx is done.
func (r *Runner) Run(ctx context.Context, startURL string, fn PageFunc) error {
	if err := validateURL(startURL); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	launch := launcher.New().Headless(r.headless).Leakless(true).Context(ctx)
	if r.bin != "" {
		launch = launch.Bin(r.bin)
	}
	defer launch.Kill()

	wsURL, err := launch.Launch()
	if err != nil {
		return r.runErr(ctx, fmt.Errorf("launch browser: %w", err))
	}

	b := rod.New().ControlURL(wsURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return r.runErr(ctx, fmt.Errorf("connect browser: %w", err))
	}
	defer b.Close()

	page, err := b.Page(proto.TargetCreateTarget{URL: startURL})
	if err != nil {
		return r.runErr(ctx, fmt.Errorf("open %s: %w", startURL, err))
	}
	page = page.Context(ctx)

	if err := page.WaitLoad(); err != nil {
		return r.runErr(ctx, fmt.Errorf("load %s: %w", startURL, err))
	}

	logger.Debug("browser page loaded", "url", startURL)

	return r.runErr(ctx, fn(ctx, page))
}

// runErr reports a deadline hit inside the run as ErrTimeout so callers can
// tell slow pages from broken ones. Parent cancellation passes through.
func (r *Runner) runErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %v", ErrTimeout, r.timeout, err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL: must start with http:// or https://")
	}
	return nil
}
