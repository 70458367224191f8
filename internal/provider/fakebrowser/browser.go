// Package fakebrowser stands in for the concrete browser automation library
// spec §1 puts out of scope ("the concrete browser automation library...
// abstracted"). Nothing in the retrieved pack depends on a real headless
// browser driver, so this is a minimal "browser-like resource" built on the
// standard library's net/http: a Browser owns a shared, connection-pooled
// http.Client (grounded verbatim on the teacher's http.Transport tuning in
// worker.NewPool/SemaphoreForwarder/HybridForwarder), and a Page's
// Goto(ctx, url) performs a real GET through it. Good enough to exercise
// every lifecycle transition (launch, new page/context, navigate, close,
// repair-after-failure) the real thing would need to go through.
package fakebrowser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"
)

// Browser is the per-process resource a Provider's Init (or a per-worker
// WorkerInstance, depending on strategy) launches.
type Browser struct {
	mu     sync.Mutex
	client *http.Client
	closed bool
}

func newTransport() *http.Transport {
	return &http.Transport{
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		MaxConnsPerHost:       40,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// Launch brings up a new Browser ("launch underlying process").
func Launch(_ context.Context) (*Browser, error) {
	return &Browser{client: &http.Client{Transport: newTransport(), Timeout: 10 * time.Second}}, nil
}

// NewPage returns a page that shares this Browser's client. That client has
// no cookie jar, so such pages keep no cookies (see NewContext for pages
// with their own jar).
func (b *Browser) NewPage(_ context.Context) (*Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("fakebrowser: browser is closed")
	}
	return &Page{client: b.client}, nil
}

// NewContext returns an incognito context: a page-producing scope with its
// own cookie jar but the browser's shared transport/connection pool.
func (b *Browser) NewContext(_ context.Context) (*Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("fakebrowser: browser is closed")
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("fakebrowser: new cookie jar: %w", err)
	}
	return &Context{
		client: &http.Client{Transport: b.client.Transport, Jar: jar, Timeout: b.client.Timeout},
	}, nil
}

// Close tears the browser down.
func (b *Browser) Close(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if t, ok := b.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	return nil
}

// Context is an incognito browsing context: isolated cookies, shared
// connection pool.
type Context struct {
	client *http.Client
}

// NewPage returns a page scoped to this context.
func (c *Context) NewPage(_ context.Context) (*Page, error) {
	return &Page{client: c.client}, nil
}

// Close disposes the context. The shared transport is left alone; only the
// Browser owns it.
func (c *Context) Close(_ context.Context) error {
	return nil
}

// Page is the handle passed to the user task as TaskContext.Page.
type Page struct {
	client *http.Client
}

// Goto performs the "navigation": an HTTP GET through the page's client.
func (p *Page) Goto(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fakebrowser: build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fakebrowser: navigate to %s: %w", url, err)
	}
	return resp, nil
}

// Close releases the page. A real driver would close the tab; there is
// nothing page-scoped to release here beyond the response bodies the task
// itself is responsible for closing.
func (p *Page) Close(_ context.Context) error {
	return nil
}
