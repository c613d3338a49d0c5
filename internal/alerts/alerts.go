// Package alerts tells the operator about failures that degrade answers:
// the decider erroring, the session store failing, the token budget running out.
package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bowerhall/partscout/internal/logger"
)

type Severity string

const (
	Warning  Severity = "warn"
	Critical Severity = "critical"
)

type Alert struct {
	Severity   Severity  `json:"severity"`
	Component  string    `json:"component"`
	Summary    string    `json:"summary"`
	Detail     string    `json:"detail,omitempty"`
	Suppressed int       `json:"suppressed,omitempty"`
	At         time.Time `json:"at"`
}

// Text is the single-line rendering used by log and chat sinks.
func (a Alert) Text() string {
	s := fmt.Sprintf("[%s] %s: %s", a.Severity, a.Component, a.Summary)
	if a.Detail != "" {
		s += " (" + a.Detail + ")"
	}
	if a.Suppressed > 0 {
		s += fmt.Sprintf(" [+%d repeats]", a.Suppressed)
	}
	return s
}

type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

type NotifierFunc func(ctx context.Context, a Alert) error

func (f NotifierFunc) Notify(ctx context.Context, a Alert) error { return f(ctx, a) }

type window struct {
	sent       time.Time
	suppressed int
}

// Alerter forwards alerts to a Notifier, holding back repeats of the same
// component and summary for the cooldown. The next alert after the cooldown
// reports how many were held back. A nil *Alerter drops everything.
type Alerter struct {
	notifier Notifier
	cooldown time.Duration
	now      func() time.Time

	mu     sync.Mutex
	recent map[string]*window
}

func New(n Notifier, cooldown time.Duration) *Alerter {
	if n == nil {
		n = Log{}
	}
	return &Alerter{
		notifier: n,
		cooldown: cooldown,
		now:      time.Now,
		recent:   make(map[string]*window),
	}
}

func (a *Alerter) Critical(component, summary string, err error) {
	a.raise(Critical, component, summary, err)
}

func (a *Alerter) Warn(component, summary string, err error) {
	a.raise(Warning, component, summary, err)
}

func (a *Alerter) raise(sev Severity, component, summary string, err error) {
	if a == nil {
		return
	}

	alert := Alert{Severity: sev, Component: component, Summary: summary, At: a.now()}
	if err != nil {
		alert.Detail = err.Error()
	}

	key := component + "\x00" + summary
	a.mu.Lock()
	w, seen := a.recent[key]
	if seen && alert.At.Sub(w.sent) < a.cooldown {
		w.suppressed++
		a.mu.Unlock()
		logger.Debug("alert suppressed", "component", component, "summary", summary)
		return
	}
	if seen {
		alert.Suppressed = w.suppressed
	}
	a.recent[key] = &window{sent: alert.At}
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.notifier.Notify(ctx, alert); err != nil {
		logger.Error("alert delivery failed", "component", component, "error", err)
		return
	}
	logger.Debug("alert sent", "component", component, "severity", string(sev))
}

// Log writes alerts to the service log. It is the sink when no webhook is
// configured.
type Log struct{}

func (Log) Notify(_ context.Context, a Alert) error {
	logger.Warn("alert", "severity", string(a.Severity), "component", a.Component, "summary", a.Summary,
		"detail", a.Detail, "suppressed", a.Suppressed)
	return nil
}

// Webhook posts each alert as JSON. The payload carries a "text" field next
// to the structured ones, which is what Slack and Mattermost incoming
// webhooks render.
type Webhook struct {
	URL    string
	Client *http.Client
}

func NewWebhook(url string, timeout time.Duration) *Webhook {
	return &Webhook{URL: url, Client: &http.Client{Timeout: timeout}}
}

func (w *Webhook) Notify(ctx context.Context, a Alert) error {
	body, err := json.Marshal(struct {
		Text string `json:"text"`
		Alert
	}{a.Text(), a})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
