package demo

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"
	"github.com/pthm/hxnet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHome(t *testing.T) {
	site, err := hxnet.NewWebsite(
		hxnet.WithSiteGlobalStore(hxnet.NewGlobalStore()),
		hxnet.WithSiteLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)

	stats := &Stats{}
	bp, err := site.AddPage(context.Background(), "/", Home(stats))
	require.NoError(t, err)
	h := site.Handler()

	page := hxnet.TestRequest(h, http.MethodGet, "/", nil)
	require.True(t, page.IsOK())
	assert.True(t, page.HTMLContainsAll(
		`<div class="header"><h1>hxnet demo</h1></div>`,
		`Visits: <span>2</span>`,
		`hx-post="/api/Clicker_clicker/inc"`,
		`Clicked 0 times`,
	), page.HTML)

	click := hxnet.TestRequest(h, http.MethodPost, "/api/Clicker_clicker/inc", nil)
	require.True(t, click.IsOK(), click.HTML)
	assert.True(t, click.HTMLContains("Clicked 1 times"))

	page = hxnet.TestRequest(h, http.MethodGet, "/", nil)
	assert.True(t, page.HTMLContainsAll(`Visits: <span>3</span>`, `Clicked 1 times`))

	assert.Contains(t, bp.Stylesheet(), ".header { font-family")
	assert.Contains(t, bp.Stylesheet(), ".visits span")
	assert.Contains(t, bp.Script(), `dataset.hxnet = "ready"`)
	assert.Contains(t, bp.Script(), "htmx:afterSwap")

	assert.Eventually(t, func() bool { return stats.Started.Load() != 0 }, time.Second, 10*time.Millisecond)
}

func TestClickButtonEscapesAttributes(t *testing.T) {
	attrs := templ.Attributes{
		"hx-post": "/api/Clicker_clicker/inc",
		"hx-vals": `{"p":"a&b"}`,
	}
	var sb strings.Builder
	require.NoError(t, clickButton(attrs, 3).Render(context.Background(), &sb))
	assert.Equal(t,
		`<button hx-post="/api/Clicker_clicker/inc" hx-vals="{&#34;p&#34;:&#34;a&amp;b&#34;}" hx-swap="outerHTML">Clicked 3 times</button>`,
		sb.String())
}
