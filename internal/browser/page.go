package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
)

// Node is anything that can be queried with CSS selectors: a page or an element.
type Node interface {
	Has(selector string) (bool, *rod.Element, error)
	Elements(selector string) (rod.Elements, error)
}

// Text returns the trimmed text of the first match, or "" when nothing matches.
func Text(n Node, selector string) string {
	ok, el, err := n.Has(selector)
	if err != nil || !ok {
		return ""
	}
	txt, err := el.Text()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(txt)
}

// Attr returns an attribute of the first match, or "" when absent.
func Attr(n Node, selector, name string) string {
	ok, el, err := n.Has(selector)
	if err != nil || !ok {
		return ""
	}
	return attr(el, name)
}

func attr(el *rod.Element, name string) string {
	v, err := el.Attribute(name)
	if err != nil || v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

// AttrOf reads an attribute of an element already in hand.
func AttrOf(el *rod.Element, name string) string {
	return attr(el, name)
}

// Texts returns the trimmed, non-empty texts of every match.
func Texts(n Node, selector string) []string {
	els, err := n.Elements(selector)
	if err != nil {
		return nil
	}
	var out []string
	for _, el := range els {
		txt, err := el.Text()
		if err != nil {
			continue
		}
		if txt = strings.TrimSpace(txt); txt != "" {
			out = append(out, txt)
		}
	}
	return out
}

// WaitURL polls until the page URL contains substr. It returns
// context.DeadlineExceeded when wait elapses first.
func WaitURL(ctx context.Context, page *rod.Page, substr string, wait time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		info, err := page.Info()
		if err == nil && strings.Contains(info.URL, substr) {
			return info.URL, nil
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("waiting for %q: %w", substr, ctx.Err())
		case <-ticker.C:
		}
	}
}
