package hxnet

import (
	"context"
	"fmt"
	"net/http"

	"github.com/a-h/templ"
)

// RenderFunc produces a component's markup from its state.
//
// Render functions may render child components through RenderComponent or
// C; ctx carries the active engine and must be passed on.
type RenderFunc[S any] func(ctx context.Context, state State[S]) templ.Component

// Component[S] describes a component before it is built. S is the type of
// the component's state; components without state use struct{}.
//
// Descriptors are assembled in a fixed order: optional state first, then any
// mix of style, scripts, routes and a runner, then exactly one of Render or
// RenderDynamic:
//
//	func Counter(start int) hxnet.Buildable {
//	    c := hxnet.WithState(hxnet.New("Counter", ""), &counter{n: start})
//	    return c.
//	        Style("& button { font-weight: bold; }").
//	        HandleFunc("POST /inc", handleInc).
//	        RenderDynamic(renderCounter)
//	}
//
// Order violations do not panic. They are recorded on the descriptor and
// reported by Build as ErrConstructionOrder, which the engine turns into a
// logged placeholder.
type Component[S any] struct {
	name string
	id   string

	state    S
	hasState bool

	style   Style
	scripts []Script
	mux     *http.ServeMux
	runner  func(ctx context.Context, state State[S])

	render  RenderFunc[S]
	dynamic bool

	err error
}

// New creates a stateless component descriptor.
//
// name is used for the component's CSS class and sub-route. id keeps
// sub-routes of different instances apart; leave it empty to use the render
// identity the component is rendered under.
func New(name, id string) *Component[struct{}] {
	return &Component[struct{}]{name: name, id: id}
}

// WithState attaches state to a descriptor. State is shared by every render
// of the built component, so it should be cheap to copy (a pointer, or a
// small value).
//
// Attaching state twice, or after a runner or render function, is a
// construction order violation.
func WithState[S, T any](c *Component[T], state S) *Component[S] {
	next := &Component[S]{
		name:     c.name,
		id:       c.id,
		state:    state,
		hasState: true,
		style:    c.style,
		scripts:  c.scripts,
		mux:      c.mux,
		err:      c.err,
	}
	switch {
	case c.hasState:
		next.fail("state attached twice")
	case c.render != nil:
		next.fail("state attached after the render function")
	case c.runner != nil:
		next.fail("state attached after the runner")
	}
	return next
}

func (c *Component[S]) fail(format string, args ...any) {
	if c.err == nil {
		c.err = fmt.Errorf("%w: %s: %s", ErrConstructionOrder, c.name, fmt.Sprintf(format, args...))
	}
}

// Name returns the component's name.
func (c *Component[S]) Name() string {
	return c.name
}

// ID returns the component's instance id, which may be empty.
func (c *Component[S]) ID() string {
	return c.id
}

// Err returns the first construction order violation, if any.
func (c *Component[S]) Err() error {
	return c.err
}

// Style sets the component's scoped style. In the fragment, & stands for
// the component's top-level class. Style is single-valued; call it once.
func (c *Component[S]) Style(css Style) *Component[S] {
	c.style = css
	return c
}

// Script adds scripts that ship with the component. Scripts are bundled
// once per component declaration, however many instances render.
func (c *Component[S]) Script(scripts ...Script) *Component[S] {
	c.scripts = append(c.scripts, scripts...)
	return c
}

// Route registers a handler on the component's sub-router. pattern uses
// http.ServeMux syntax relative to the component endpoint:
//
//	c.Route("POST /inc", incHandler)
//
// Handlers can read the component state with StateFrom.
func (c *Component[S]) Route(pattern string, h http.Handler) *Component[S] {
	if c.mux == nil {
		c.mux = http.NewServeMux()
	}
	c.mux.Handle(pattern, h)
	return c
}

// HandleFunc is Route for a handler function.
func (c *Component[S]) HandleFunc(pattern string, fn func(http.ResponseWriter, *http.Request)) *Component[S] {
	return c.Route(pattern, http.HandlerFunc(fn))
}

// Runner sets a background task started once when the component is first
// built for a page. The task receives the component state.
func (c *Component[S]) Runner(fn func(ctx context.Context, state State[S])) *Component[S] {
	if c.render != nil {
		c.fail("runner attached after the render function")
	}
	c.runner = fn
	return c
}

// Render finishes the descriptor with a render function. The engine runs
// the first render as a trial; if nothing dynamic renders inside it the
// output is frozen and reused for every later visit.
func (c *Component[S]) Render(fn RenderFunc[S]) Buildable {
	return c.finish(fn, false)
}

// RenderDynamic finishes the descriptor with a render function that runs on
// every page view. Components containing a dynamic component become dynamic
// themselves.
func (c *Component[S]) RenderDynamic(fn RenderFunc[S]) Buildable {
	return c.finish(fn, true)
}

func (c *Component[S]) finish(fn RenderFunc[S], dynamic bool) Buildable {
	switch {
	case c.render != nil:
		c.fail("render function attached twice")
	case fn == nil:
		c.fail("nil render function")
	default:
		c.render = fn
		c.dynamic = dynamic
	}
	return c
}

// resourceKey identifies the component declaration rather than the
// instance, so all instances share one GlobalStore entry.
func (c *Component[S]) resourceKey() string {
	return "component:" + c.name + "@" + funcName(c.render)
}
