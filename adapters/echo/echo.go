// Package hxnetecho serves hxnet websites from an Echo instance.
//
// Mount a website onto an Echo instance or group:
//
//	site, _ := hxnet.NewWebsite()
//	site.AddPage(ctx, "/", home)
//
//	e := echo.New()
//	hxnetecho.Mount(e, site)
//
// Or mount under a group with middleware. Pages must then be added below
// the group's prefix, since paths are not rewritten:
//
//	site.AddPage(ctx, "/app/", dashboard)
//	g := e.Group("/app", authMiddleware)
//	hxnetecho.MountGroup(g, site)
package hxnetecho

import (
	"net/http"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"github.com/pthm/hxnet"
)

// Option configures Mount and MountGroup.
type Option func(*options)

type options struct {
	path string
}

// WithPath sets the route prefix the website is mounted at, relative to the
// instance or group. Defaults to "/".
func WithPath(path string) Option {
	return func(o *options) {
		o.path = path
	}
}

func newOptions(opts []Option) *options {
	o := &options{path: "/"}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Mount routes every request under the prefix to site.
//
//	e := echo.New()
//	hxnetecho.Mount(e, site)
func Mount(e *echo.Echo, site *hxnet.Website, opts ...Option) {
	o := newOptions(opts)
	h := echo.WrapHandler(site.Handler())
	e.Any(o.path, h)
	e.Any(o.path+"*", h)
}

// MountGroup routes every request under the group's prefix to site, so the
// website shares the group's middleware (auth, logging, etc.).
//
//	g := e.Group("/app", authMiddleware)
//	hxnetecho.MountGroup(g, site)
func MountGroup(g *echo.Group, site *hxnet.Website, opts ...Option) {
	o := newOptions(opts)
	h := echo.WrapHandler(site.Handler())
	g.Any(o.path, h)
	g.Any(o.path+"*", h)
}

// Page returns an Echo handler that renders a built page. Use it to serve a
// page from a route Echo owns; its assets and component routes still need
// Mount or MountGroup.
//
//	e.GET("/welcome", hxnetecho.Page(bp))
func Page(bp *hxnet.BuiltPage) echo.HandlerFunc {
	return func(c echo.Context) error {
		doc, err := bp.Render(c.Request().Context())
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "page render failed").SetInternal(err)
		}
		return Render(c, doc)
	}
}

// Render writes a templ component to the Echo response.
//
//	func handler(c echo.Context) error {
//	    return hxnetecho.Render(c, myTemplate())
//	}
func Render(c echo.Context, component templ.Component) error {
	c.Response().Header().Set("Content-Type", "text/html; charset=utf-8")
	return component.Render(c.Request().Context(), c.Response())
}
