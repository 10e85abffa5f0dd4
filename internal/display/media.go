package display

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"quizlive/internal/dom"
	"quizlive/internal/domain"
)

const uploadsPrefix = "/uploads/"

// ResolveImagePath maps a stored image reference to the path the page
// loads. Storage form is /uploads/<file>; display form prefixes basePath.
// data: URIs pass through. Full URLs are rejected.
func ResolveImagePath(basePath, stored string) (string, error) {
	stored = strings.TrimSpace(stored)
	switch {
	case stored == "":
		return "", nil
	case strings.HasPrefix(stored, "data:"):
		return stored, nil
	case strings.Contains(stored, "://") || strings.HasPrefix(stored, "//"):
		return "", fmt.Errorf("%w: %s", domain.ErrFullURL, stored)
	}

	base := strings.TrimRight(basePath, "/")
	if base != "" && !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	if base != "" && strings.HasPrefix(stored, base+uploadsPrefix) {
		return stored, nil
	}
	file := strings.TrimPrefix(strings.TrimPrefix(stored, "/"), "uploads/")
	return base + uploadsPrefix + path.Clean(file), nil
}

// StoragePath is the inverse of ResolveImagePath.
func StoragePath(basePath, display string) string {
	if strings.HasPrefix(display, "data:") {
		return display
	}
	if i := strings.Index(display, uploadsPrefix); i >= 0 {
		return display[i:]
	}
	return uploadsPrefix + strings.TrimPrefix(display, "/")
}

// Prober checks that a media URL is being served.
type Prober interface {
	Probe(ctx context.Context, url string) error
}

// HTTPProber issues HEAD requests against BaseURL.
type HTTPProber struct {
	Client  *http.Client
	BaseURL string
}

func (p HTTPProber) Probe(ctx context.Context, url string) error {
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, strings.TrimRight(p.BaseURL, "/")+url, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("probe %s: status %d", url, resp.StatusCode)
	}
	return nil
}

// linearBackOff waits step·attempt between tries.
type linearBackOff struct {
	step    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.step * time.Duration(b.attempt)
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

// probeWithRetry tries up to attempts times, waiting step·attempt between.
func probeWithRetry(ctx context.Context, p Prober, url string, attempts int, step time.Duration) error {
	if attempts <= 0 {
		attempts = 1
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(&linearBackOff{step: step}, uint64(attempts-1)), ctx)
	return backoff.Retry(func() error { return p.Probe(ctx, url) }, policy)
}

// pictureHTML prefers the webp source when one is stored.
func pictureHTML(src, webp, alt string) string {
	var b strings.Builder
	b.WriteString(`<picture class="question-picture">`)
	if webp != "" {
		fmt.Fprintf(&b, `<source type="image/webp" srcset="%s">`, dom.Escape(webp))
	}
	fmt.Fprintf(&b, `<img class="question-image" src="%s" alt="%s">`, dom.Escape(src), dom.Escape(alt))
	b.WriteString(`</picture>`)
	return b.String()
}

func videoHTML(src string) string {
	return fmt.Sprintf(`<video class="question-video" src="%s" controls preload="metadata"></video>`, dom.Escape(src))
}
