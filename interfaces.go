package hxnet

import "context"

// Buildable is a finished component description that the engine can build.
//
// Component.Render and Component.RenderDynamic return a Buildable. Build
// is called at most once per render identity and page, unless the identity
// is only ever rendered inside temporary renders.
type Buildable interface {
	// Name returns the component's name.
	Name() string

	// Build produces the component's cacheable form. Sub-routes are
	// mounted below baseRoute. ctx carries the engine of the active render.
	Build(ctx context.Context, baseRoute string) (*BuildResult, error)
}

// PageHandle is what the engine needs from a page to render it: the base
// route that component sub-routes hang off, and the page's component cache.
type PageHandle interface {
	APIPath() string
	Components() *ComponentCache
}
