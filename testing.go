package hxnet

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
)

// TestPage is a bare PageHandle for rendering components in tests without
// building a Page.
type TestPage struct {
	Route string
	Cache *ComponentCache
}

// NewTestPage creates a test page whose components mount below route.
func NewTestPage(route string) *TestPage {
	return &TestPage{Route: route, Cache: NewComponentCache()}
}

// APIPath implements PageHandle.
func (p *TestPage) APIPath() string { return p.Route }

// Components implements PageHandle.
func (p *TestPage) Components() *ComponentCache { return p.Cache }

// TestResult holds the output of a test render or test request.
type TestResult struct {
	HTML       string
	StatusCode int
	Headers    http.Header

	// Render is set by TestRender and TestRenderPage.
	Render *RenderResult
}

// TestRender renders one component inside a page render on its own engine
// and test page, and returns the markup and what the render discovered.
//
//	result, err := hxnet.TestRender(ctx, newCounter)
//	if !result.HTMLContains("0") {
//	    t.Fatal("missing initial count")
//	}
//
// Render the same component repeatedly, sharing a cache, with TestRenderPage.
func TestRender(ctx context.Context, build func() Buildable) (*TestResult, error) {
	return TestRenderPage(ctx, NewEngine(WithDebug(true)), NewTestPage("/api"), func(ctx context.Context) Markup {
		return RenderComponent(ctx, "test", build)
	})
}

// TestRenderPage runs body as one render of page on e.
func TestRenderPage(ctx context.Context, e *Engine, page PageHandle, body func(ctx context.Context) Markup) (*TestResult, error) {
	ctx = WithEngine(ctx, e)
	e.EnterPage(ctx, page)
	html := body(ctx)
	res, err := e.ExitPage(ctx)
	if err != nil {
		return nil, err
	}
	return &TestResult{
		HTML:       string(html),
		StatusCode: http.StatusOK,
		Headers:    make(http.Header),
		Render:     res,
	}, nil
}

// TestRequest sends a request to h and records the response. Non-GET
// requests carry formData as a form body and the HX-Request header, as
// HTMX would send them.
//
//	result := hxnet.TestRequest(site.Handler(), "POST", state.Endpoint()+"/inc", nil)
func TestRequest(h http.Handler, method, target string, formData map[string]string) *TestResult {
	form := url.Values{}
	for k, v := range formData {
		form.Set(k, v)
	}

	var req *http.Request
	if method == http.MethodGet || method == "" {
		if len(form) > 0 {
			sep := "?"
			if strings.Contains(target, "?") {
				sep = "&"
			}
			target += sep + form.Encode()
		}
		req = httptest.NewRequest(http.MethodGet, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("HX-Request", "true")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return &TestResult{
		HTML:       rec.Body.String(),
		StatusCode: rec.Code,
		Headers:    rec.Header(),
	}
}

// HTMLContains checks if the HTML contains a substring.
func (r *TestResult) HTMLContains(substr string) bool {
	return strings.Contains(r.HTML, substr)
}

// HTMLContainsAll checks if the HTML contains all the given substrings.
func (r *TestResult) HTMLContainsAll(substrs ...string) bool {
	for _, s := range substrs {
		if !strings.Contains(r.HTML, s) {
			return false
		}
	}
	return true
}

// IsOK checks if the status code is 200.
func (r *TestResult) IsOK() bool {
	return r.StatusCode == http.StatusOK
}

// HasStatus checks if the status code matches.
func (r *TestResult) HasStatus(code int) bool {
	return r.StatusCode == code
}

// GetHeader returns the value of a header.
func (r *TestResult) GetHeader(key string) string {
	return r.Headers.Get(key)
}
