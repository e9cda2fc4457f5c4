package hxnet

import (
	"bytes"
	"context"
	"io"

	"github.com/a-h/templ"
)

// Markup is rendered HTML.
//
// Markup implements templ.Component, so the output of RenderComponent can be
// dropped straight into a templ template:
//
//	@hxnet.RenderComponent(ctx, "sidebar", newSidebar)
type Markup string

// Render writes the markup to w.
func (m Markup) Render(ctx context.Context, w io.Writer) error {
	_, err := io.WriteString(w, string(m))
	return err
}

// String returns the markup as a string.
func (m Markup) String() string {
	return string(m)
}

// renderMarkup renders c into a Markup value. A nil component renders empty.
func renderMarkup(ctx context.Context, c templ.Component) (Markup, error) {
	if c == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		return "", err
	}
	return Markup(buf.String()), nil
}

// C returns a templ component that renders a cached component under id.
//
// Use it from templ templates in place of calling RenderComponent directly:
//
//	templ Layout() {
//	    @hxnet.C("nav", func() hxnet.Buildable { return nav.New() })
//	    { children... }
//	}
func C(id string, build func() Buildable) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return RenderComponent(ctx, id, build).Render(ctx, w)
	})
}

// Here is C with the identity derived from the caller's source position.
//
// Every call from the same line shares one identity. Inside loops, use C
// with an explicit key per iteration instead.
func Here(build func() Buildable) templ.Component {
	return C(CallSite(1), build)
}
