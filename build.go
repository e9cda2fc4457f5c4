package hxnet

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"unicode"

	"github.com/a-h/templ"
)

// BuildResult is what building a component produces.
type BuildResult struct {
	Component *BuiltComponent

	// Route is the component's endpoint, {baseRoute}/{name}_{id}.
	Route ComponentRoute

	// Router serves the component's sub-routes below Route. Nil if the
	// component registered none.
	Router http.Handler

	// Runner is the component's background task, if any.
	Runner Runner
}

// content is either frozen markup or a renderer re-run on every view.
type content interface {
	render(ctx context.Context) (Markup, error)
	static() (Markup, bool)
}

type staticContent Markup

func (s staticContent) render(context.Context) (Markup, error) { return Markup(s), nil }
func (s staticContent) static() (Markup, bool)                 { return Markup(s), true }

type dynamicContent[S any] struct {
	fn    RenderFunc[S]
	state State[S]
}

func (d dynamicContent[S]) render(ctx context.Context) (Markup, error) {
	return renderMarkup(ctx, d.fn(ctx, d.state))
}

func (d dynamicContent[S]) static() (Markup, bool) { return "", false }

// BuiltComponent is the immutable, cacheable form of a component. It is
// safe to render from many goroutines.
type BuiltComponent struct {
	name     string
	id       string
	class    string
	resource string
	content  content
}

// Name returns the component's name.
func (b *BuiltComponent) Name() string { return b.name }

// ID returns the instance id the component was built with.
func (b *BuiltComponent) ID() string { return b.id }

// Class returns the component's top-level CSS class.
func (b *BuiltComponent) Class() string { return b.class }

// ResourceID returns the GlobalStore id of the component's scripts and style.
func (b *BuiltComponent) ResourceID() string { return b.resource }

// IsDynamic reports whether the component re-renders on every view.
func (b *BuiltComponent) IsDynamic() bool {
	_, ok := b.content.static()
	return !ok
}

// Render renders the component wrapped in its top-level class element.
func (b *BuiltComponent) Render(ctx context.Context) (Markup, error) {
	inner, err := b.content.render(ctx)
	if err != nil {
		return "", fmt.Errorf("hxnet: render %s: %w", b.name, err)
	}
	return b.wrap(inner), nil
}

// RenderIfStatic returns the frozen markup of a static component. It
// reports false for dynamic components.
func (b *BuiltComponent) RenderIfStatic() (Markup, bool) {
	inner, ok := b.content.static()
	if !ok {
		return "", false
	}
	return b.wrap(inner), true
}

func (b *BuiltComponent) wrap(inner Markup) Markup {
	return Markup(`<div class="`+templ.EscapeString(b.class)+`">`) + inner + "</div>"
}

// Build builds the component for a page whose component routes hang off
// baseRoute.
//
// A component finished with Render is rendered once inside a temporary
// render. If no dynamic component rendered inside that trial, its output
// is frozen as the component's content and the render function never runs
// again. Otherwise the component becomes dynamic.
func (c *Component[S]) Build(ctx context.Context, baseRoute string) (*BuildResult, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.render == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoRenderer, c.name)
	}

	e := EngineFrom(ctx)
	log := e.logger.With("component", c.name)

	id := c.id
	if id == "" {
		id = IdentityFrom(ctx)
	}
	if id == "" {
		id = hashID(c.name)
	}
	route := NewComponentRoute(baseRoute, c.name, id)
	state := State[S]{
		Value:   c.state,
		route:   route,
		encoder: e.encoder,
		logger:  log,
	}

	res := &BuildResult{Route: route}
	if c.mux != nil {
		res.Router = withState(c.mux, state)
	}
	if c.runner != nil {
		run := c.runner
		res.Runner = func(ctx context.Context) { run(ctx, state) }
	}

	renderer := dynamicContent[S]{fn: c.render, state: state}
	var body content = renderer
	if !c.dynamic {
		log.DebugContext(ctx, "pre-rendering static component")
		markup, static, err := e.trial(ctx, renderer.render)
		if err != nil {
			return nil, fmt.Errorf("hxnet: render %s: %w", c.name, err)
		}
		if static {
			body = staticContent(markup)
		} else {
			log.DebugContext(ctx, "detected dynamic child, making self dynamic")
		}
	}

	class := className(c.name)
	resource := c.resourceKey()
	if c.style != "" || len(c.scripts) > 0 {
		isNew := e.globals.Add(resource, func() *GlobalEntry {
			entry := &GlobalEntry{Scripts: c.scripts}
			if c.style != "" {
				rendered := c.style.Render(class)
				entry.Style = &rendered
			}
			return entry
		})
		e.noteGlobal(resource, isNew)
	}

	res.Component = &BuiltComponent{
		name:     c.name,
		id:       id,
		class:    class,
		resource: resource,
		content:  body,
	}
	log.DebugContext(ctx, "built component", "dynamic", res.Component.IsDynamic(), "route", route.String())
	return res, nil
}

// trial runs fn inside a temporary render and reports whether it stayed
// static. The trial is closed even if fn panics.
func (e *Engine) trial(ctx context.Context, fn func(context.Context) (Markup, error)) (m Markup, static bool, err error) {
	e.EnterTemporaryRender()
	defer func() { static = e.ExitTemporaryRender() }()
	m, err = fn(ctx)
	return m, false, err
}

// className turns a PascalCase component name into a kebab-case class.
func className(name string) string {
	var sb strings.Builder
	for i, r := range name {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				sb.WriteByte('-')
			}
			sb.WriteRune(unicode.ToLower(r))
		case r == '_' || r == ' ':
			sb.WriteByte('-')
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
