// Package demo is a small site served by the hxnet command: a static
// header, a per-visit counter and a button with its own sub-route.
package demo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/a-h/templ"
	"github.com/pthm/hxnet"
)

// Stats is the state shared by the demo components.
type Stats struct {
	Visits  atomic.Int64
	Clicks  atomic.Int64
	Started atomic.Int64
}

// Home returns the demo page.
func Home(stats *Stats) *hxnet.Page {
	return hxnet.NewPage("home").
		Head(templ.Raw(`<meta charset="utf-8"><title>hxnet</title>` +
			`<script src="https://unpkg.com/htmx.org@2.0.4"></script>`)).
		Script(hxnet.InlineScript(`document.documentElement.dataset.hxnet = "ready";`)).
		Body(func(ctx context.Context) templ.Component {
			return templ.Join(
				hxnet.C("header", Header),
				hxnet.C("visits", func() hxnet.Buildable { return Visits(stats) }),
				hxnet.C("clicker", func() hxnet.Buildable { return Clicker(stats) }),
			)
		})
}

// Header is static: it renders once per page and is served from cache.
func Header() hxnet.Buildable {
	return hxnet.New("Header", "").
		Style(`& { font-family: sans-serif; border-bottom: 1px solid #ccc; }`).
		Render(func(ctx context.Context, _ hxnet.State[struct{}]) templ.Component {
			return templ.Raw("<h1>hxnet demo</h1>")
		})
}

// Visits counts page views, so it re-renders on every view.
func Visits(stats *Stats) hxnet.Buildable {
	return hxnet.WithState(hxnet.New("Visits", ""), stats).
		Style(`& span { font-weight: bold; }`).
		Runner(func(ctx context.Context, s hxnet.State[*Stats]) {
			s.Value.Started.CompareAndSwap(0, time.Now().Unix())
		}).
		RenderDynamic(func(ctx context.Context, s hxnet.State[*Stats]) templ.Component {
			n := s.Value.Visits.Add(1)
			return templ.Raw(fmt.Sprintf("<p>Visits: <span>%d</span></p>", n))
		})
}

// Clicker is a button whose clicks are handled by its own sub-route.
func Clicker(stats *Stats) hxnet.Buildable {
	return hxnet.WithState(hxnet.New("Clicker", ""), stats).
		Script(hxnet.InlineScript(`document.body.addEventListener("htmx:afterSwap", () => console.log("clicked"));`)).
		HandleFunc("POST /inc", handleInc).
		RenderDynamic(func(ctx context.Context, s hxnet.State[*Stats]) templ.Component {
			return clickButton(s.Attrs(http.MethodPost, "/inc", nil), s.Value.Clicks.Load())
		})
}

func handleInc(w http.ResponseWriter, r *http.Request) {
	s, ok := hxnet.StateFrom[*Stats](r.Context())
	if !ok {
		http.Error(w, "no state", http.StatusInternalServerError)
		return
	}
	n := s.Value.Clicks.Add(1)
	_ = hxnet.Render(w, r, clickButton(s.Attrs(http.MethodPost, "/inc", nil), n))
}

func clickButton(attrs templ.Attributes, n int64) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, "<button"); err != nil {
			return err
		}
		if err := templ.RenderAttributes(ctx, w, attrs); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, ` hx-swap="outerHTML">Clicked %d times</button>`, n)
		return err
	})
}
