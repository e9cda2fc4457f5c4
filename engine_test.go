package hxnet

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestEngine returns a debug engine with its own global store and a
// buffer capturing its logs.
func newTestEngine(t *testing.T) (*Engine, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewEngine(WithLogger(logger), WithDebug(true), WithGlobalStore(NewGlobalStore())), &buf
}

func quietEngine() *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(WithLogger(logger), WithGlobalStore(NewGlobalStore()))
}

// renderPage runs one render of page on e.
func renderPage(t *testing.T, e *Engine, page PageHandle, body func(ctx context.Context) Markup) (Markup, *RenderResult) {
	t.Helper()
	ctx := WithEngine(context.Background(), e)
	e.EnterPage(ctx, page)
	out := body(ctx)
	res, err := e.ExitPage(ctx)
	require.NoError(t, err)
	return out, res
}

func raw(html string) templ.Component {
	return templ.Raw(html)
}

// counting returns a component whose render function counts its calls.
func counting(name string, calls *atomic.Int64, dynamic bool) func() Buildable {
	return func() Buildable {
		fn := func(ctx context.Context, _ State[struct{}]) templ.Component {
			n := calls.Add(1)
			return raw(fmt.Sprintf("<div>%d</div>", n))
		}
		if dynamic {
			return New(name, "").RenderDynamic(fn)
		}
		return New(name, "").Render(fn)
	}
}

func TestStaticComponentRendersOnce(t *testing.T) {
	e, _ := newTestEngine(t)
	page := NewTestPage("/api")
	var calls atomic.Int64

	body := func(ctx context.Context) Markup {
		return RenderComponent(ctx, "static", counting("Static", &calls, false))
	}

	first, _ := renderPage(t, e, page, body)
	second, _ := renderPage(t, e, page, body)

	assert.Equal(t, first, second)
	assert.Equal(t, Markup(`<div class="static"><div>1</div></div>`), first)
	assert.EqualValues(t, 1, calls.Load(), "render function should run exactly once")

	built, ok := page.Cache.Get("static")
	require.True(t, ok)
	assert.False(t, built.IsDynamic())
}

func TestDynamicComponentReRenders(t *testing.T) {
	e, _ := newTestEngine(t)
	page := NewTestPage("/api")
	var calls atomic.Int64

	body := func(ctx context.Context) Markup {
		return RenderComponent(ctx, "dyn", counting("Dyn", &calls, true))
	}

	first, _ := renderPage(t, e, page, body)
	second, _ := renderPage(t, e, page, body)

	assert.Equal(t, Markup(`<div class="dyn"><div>1</div></div>`), first)
	assert.Equal(t, Markup(`<div class="dyn"><div>2</div></div>`), second)

	built, ok := page.Cache.Get("dyn")
	require.True(t, ok)
	assert.True(t, built.IsDynamic())
	_, static := built.RenderIfStatic()
	assert.False(t, static)
}

func TestPageScenarioStaticAndDynamic(t *testing.T) {
	e, _ := newTestEngine(t)
	page := NewTestPage("/api")
	var n atomic.Int64

	a := func() Buildable {
		return New("A", "").Render(func(ctx context.Context, _ State[struct{}]) templ.Component {
			return raw("<div>1</div>")
		})
	}
	b := func() Buildable {
		return New("B", "").RenderDynamic(func(ctx context.Context, _ State[struct{}]) templ.Component {
			return raw(fmt.Sprintf("<div>%d</div>", n.Add(1)))
		})
	}
	body := func(ctx context.Context) Markup {
		return RenderComponent(ctx, "A", a) + RenderComponent(ctx, "B", b)
	}

	first, _ := renderPage(t, e, page, body)
	assert.Equal(t, Markup(`<div class="a"><div>1</div></div><div class="b"><div>1</div></div>`), first)

	second, _ := renderPage(t, e, page, body)
	assert.Equal(t, Markup(`<div class="a"><div>1</div></div><div class="b"><div>2</div></div>`), second)
}

func TestDynamicChildMakesParentDynamic(t *testing.T) {
	e, _ := newTestEngine(t)
	page := NewTestPage("/api")
	var childCalls, parentCalls atomic.Int64

	parent := func() Buildable {
		return New("Parent", "").Render(func(ctx context.Context, _ State[struct{}]) templ.Component {
			parentCalls.Add(1)
			child := RenderComponent(ctx, "parent/child", counting("Child", &childCalls, true))
			return raw("<section>" + child.String() + "</section>")
		})
	}
	body := func(ctx context.Context) Markup {
		return RenderComponent(ctx, "parent", parent)
	}

	first, _ := renderPage(t, e, page, body)
	assert.Equal(t, Markup(`<div class="parent"><section><div class="child"><div>1</div></div></section></div>`), first)

	built, ok := page.Cache.Get("parent")
	require.True(t, ok)
	assert.True(t, built.IsDynamic(), "a parent of a dynamic component must be dynamic")

	second, _ := renderPage(t, e, page, body)
	assert.Equal(t, Markup(`<div class="parent"><section><div class="child"><div>2</div></div></section></div>`), second)

	// One trial render plus one real render on the first visit, one per visit after.
	assert.EqualValues(t, 3, parentCalls.Load())
	// The child renders empty inside the trial render, so it runs once per visit.
	assert.EqualValues(t, 2, childCalls.Load())
}

func TestCachedDynamicChildMakesNewParentDynamic(t *testing.T) {
	e, _ := newTestEngine(t)
	page := NewTestPage("/api")
	var calls atomic.Int64
	shared := counting("Clock", &calls, true)

	parent := func() Buildable {
		return New("Frame", "").Render(func(ctx context.Context, _ State[struct{}]) templ.Component {
			return RenderComponent(ctx, "clock", shared)
		})
	}

	// The first pass caches the dynamic clock on its own.
	renderPage(t, e, page, func(ctx context.Context) Markup {
		return RenderComponent(ctx, "clock", shared)
	})

	// The frame then trial-renders a cached dynamic component.
	renderPage(t, e, page, func(ctx context.Context) Markup {
		return RenderComponent(ctx, "frame", parent)
	})

	built, ok := page.Cache.Get("frame")
	require.True(t, ok)
	assert.True(t, built.IsDynamic())
}

func TestNestedStaticComponentsFreezeTogether(t *testing.T) {
	e, _ := newTestEngine(t)
	page := NewTestPage("/api")
	var leafCalls atomic.Int64

	var level func(depth int) func() Buildable
	level = func(depth int) func() Buildable {
		return func() Buildable {
			return New(fmt.Sprintf("L%d", depth), "").Render(func(ctx context.Context, _ State[struct{}]) templ.Component {
				if depth == 0 {
					leafCalls.Add(1)
					return raw("leaf")
				}
				return RenderComponent(ctx, fmt.Sprintf("level-%d", depth-1), level(depth-1))
			})
		}
	}

	body := func(ctx context.Context) Markup {
		return RenderComponent(ctx, "level-20", level(20))
	}
	first, _ := renderPage(t, e, page, body)
	second, _ := renderPage(t, e, page, body)

	assert.Equal(t, first, second)
	assert.Equal(t, 21, strings.Count(first.String(), "<div class="))
	assert.True(t, strings.Contains(first.String(), ">leaf<"))
	assert.EqualValues(t, 1, leafCalls.Load())
	// Only the root is cached; its descendants were built inside its trial render.
	assert.Equal(t, 1, page.Cache.Len())
}

func TestDistinctIdentitiesGetDistinctRoutes(t *testing.T) {
	e, _ := newTestEngine(t)
	page := NewTestPage("/blog/api")

	card := func() Buildable {
		return New("Card", "").
			HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {}).
			Render(func(ctx context.Context, _ State[struct{}]) templ.Component {
				return raw("card")
			})
	}
	_, res := renderPage(t, e, page, func(ctx context.Context) Markup {
		return RenderComponent(ctx, "first", card) + RenderComponent(ctx, "second", card)
	})

	require.Len(t, res.Routers, 2)
	assert.Equal(t, "/blog/api/Card_first", res.Routers[0].Route.String())
	assert.Equal(t, "/blog/api/Card_second", res.Routers[1].Route.String())
	assert.Equal(t, 2, page.Cache.Len())

	a, _ := page.Cache.Get("first")
	b, _ := page.Cache.Get("second")
	assert.NotSame(t, a, b)
}

func TestSameDeclarationSharesGlobalResources(t *testing.T) {
	e, _ := newTestEngine(t)

	_, res := renderPage(t, e, NewTestPage("/one/api"), func(ctx context.Context) Markup {
		return RenderComponent(ctx, "x", styledCard) + RenderComponent(ctx, "y", styledCard)
	})
	require.Len(t, res.NewGlobals, 1)
	assert.Equal(t, res.NewGlobals, res.UsedGlobals)
	assert.Len(t, e.GlobalStore().IDs(), 1)

	// Another page uses the resource without inserting it again.
	_, res = renderPage(t, e, NewTestPage("/two/api"), func(ctx context.Context) Markup {
		return RenderComponent(ctx, "x", styledCard)
	})
	assert.Empty(t, res.NewGlobals)
	assert.Len(t, res.UsedGlobals, 1)
}

func styledCard() Buildable {
	return New("StyledCard", "").
		Style("& { color: red; }").
		Script(InlineScript("console.log('card')")).
		Render(renderStyledCard)
}

func renderStyledCard(ctx context.Context, _ State[struct{}]) templ.Component {
	return raw("card")
}

func TestRunnerRecordedOnce(t *testing.T) {
	e, _ := newTestEngine(t)
	page := NewTestPage("/api")
	var dynCalls atomic.Int64

	child := func() Buildable {
		return WithState(New("Worker", ""), 7).
			Runner(func(ctx context.Context, s State[int]) {}).
			RenderDynamic(func(ctx context.Context, s State[int]) templ.Component {
				dynCalls.Add(1)
				return raw(fmt.Sprint(s.Value))
			})
	}
	parent := func() Buildable {
		return New("Host", "").Render(func(ctx context.Context, _ State[struct{}]) templ.Component {
			return RenderComponent(ctx, "worker", child)
		})
	}

	_, res := renderPage(t, e, page, func(ctx context.Context) Markup {
		return RenderComponent(ctx, "host", parent)
	})
	assert.Len(t, res.Runners, 1, "a component built in a trial render and again for real keeps one runner")

	_, res = renderPage(t, e, page, func(ctx context.Context) Markup {
		return RenderComponent(ctx, "host", parent)
	})
	assert.Empty(t, res.Runners, "cached components do not produce runners again")
}

func TestRenderWithoutPage(t *testing.T) {
	e, logs := newTestEngine(t)
	ctx := WithEngine(context.Background(), e)

	out := RenderComponent(ctx, "orphan", counting("Orphan", new(atomic.Int64), false))
	assert.Contains(t, out.String(), "rendering failed for context orphan")
	assert.Contains(t, logs.String(), "no page is being rendered")

	silent := quietEngine()
	out = silent.RenderComponent(context.Background(), "orphan", counting("Orphan", new(atomic.Int64), false))
	assert.Empty(t, out)
}

func TestExitPageWithoutEnter(t *testing.T) {
	e, logs := newTestEngine(t)

	require.NotPanics(t, func() {
		res, err := e.ExitPage(context.Background())
		assert.Nil(t, res)
		assert.ErrorIs(t, err, ErrNoRender)
		assert.True(t, IsProtocolError(err))
	})
	assert.Contains(t, logs.String(), "tried to exit a page while no page is being rendered")
}

func TestEnterPageTwiceDiscardsPrevious(t *testing.T) {
	e, logs := newTestEngine(t)
	ctx := WithEngine(context.Background(), e)

	first := NewTestPage("/first")
	e.EnterPage(ctx, first)
	RenderComponent(ctx, "styled", styledCard)

	second := NewTestPage("/second")
	e.EnterPage(ctx, second)
	assert.Contains(t, logs.String(), "another page is already being rendered")

	res, err := e.ExitPage(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.UsedGlobals, "results of the replaced render are lost")
	assert.False(t, e.Rendering())
}

func TestContextLostMidRender(t *testing.T) {
	e, logs := newTestEngine(t)
	ctx := WithEngine(context.Background(), e)

	e.EnterPage(ctx, NewTestPage("/api"))
	out := RenderComponent(ctx, "rogue", func() Buildable {
		return New("Rogue", "").RenderDynamic(func(ctx context.Context, _ State[struct{}]) templ.Component {
			_, _ = ExitPage(ctx)
			return raw("gone")
		})
	})

	assert.Contains(t, out.String(), "page render exited")
	assert.Contains(t, logs.String(), "page render exited while a component was still being rendered")

	_, err := e.ExitPage(ctx)
	assert.ErrorIs(t, err, ErrNoRender)
}

func TestTemporaryRenderDepth(t *testing.T) {
	e, _ := newTestEngine(t)
	page := NewTestPage("/api")
	ctx := WithEngine(context.Background(), e)
	dyn := counting("Dyn", new(atomic.Int64), true)

	e.EnterPage(ctx, page)

	EnterTemporaryRender(ctx)
	EnterTemporaryRender(ctx)
	assert.Empty(t, RenderComponent(ctx, "dyn", dyn), "dynamic components render empty inside a trial render")
	assert.False(t, ExitTemporaryRender(ctx))

	EnterTemporaryRender(ctx)
	assert.True(t, ExitTemporaryRender(ctx), "a sibling trial with no dynamic content is static")

	assert.False(t, ExitTemporaryRender(ctx), "dynamic content propagates to the enclosing trial")
	assert.Equal(t, 0, page.Cache.Len(), "nothing is cached inside a trial render")

	_, err := e.ExitPage(ctx)
	require.NoError(t, err)
}

func TestExitTemporaryRenderWithoutEnter(t *testing.T) {
	e, logs := newTestEngine(t)
	ctx := WithEngine(context.Background(), e)

	assert.True(t, ExitTemporaryRender(ctx), "outside a page render")

	e.EnterPage(ctx, NewTestPage("/api"))
	assert.True(t, ExitTemporaryRender(ctx))
	assert.Contains(t, logs.String(), "not in temporary render")
	_, _ = e.ExitPage(ctx)
}

func TestBuildFailureRendersPlaceholder(t *testing.T) {
	e, logs := newTestEngine(t)
	page := NewTestPage("/api")

	out, _ := renderPage(t, e, page, func(ctx context.Context) Markup {
		return RenderComponent(ctx, "broken", func() Buildable {
			return WithState(WithState(New("Broken", ""), 1), 2).
				Render(func(ctx context.Context, _ State[int]) templ.Component { return raw("x") })
		})
	})

	assert.Contains(t, out.String(), "rendering failed for context broken")
	assert.Contains(t, logs.String(), "component build failed")
	assert.Equal(t, 0, page.Cache.Len())
}

func TestRenderErrorRendersPlaceholder(t *testing.T) {
	e, _ := newTestEngine(t)
	page := NewTestPage("/api")

	failing := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return fmt.Errorf("boom")
	})
	out, _ := renderPage(t, e, page, func(ctx context.Context) Markup {
		return RenderComponent(ctx, "fails", func() Buildable {
			return New("Fails", "").RenderDynamic(func(ctx context.Context, _ State[struct{}]) templ.Component {
				return failing
			})
		})
	})
	assert.Contains(t, out.String(), "boom")
}

func TestPanicRendersPlaceholder(t *testing.T) {
	panicking := func(ctx context.Context, _ State[struct{}]) templ.Component {
		panic("kaput")
	}
	tests := []struct {
		name  string
		build func() Buildable
		log   string
	}{
		{"constructor", func() Buildable { panic("kaput") }, "component constructor failed"},
		{"static render", func() Buildable { return New("Boom", "").Render(panicking) }, "component build failed"},
		{"dynamic render", func() Buildable { return New("Boom", "").RenderDynamic(panicking) }, "component render failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, logs := newTestEngine(t)
			page := NewTestPage("/api")
			var calls atomic.Int64

			out, _ := renderPage(t, e, page, func(ctx context.Context) Markup {
				return RenderComponent(ctx, "boom", tt.build) +
					RenderComponent(ctx, "after", counting("After", &calls, false))
			})

			assert.Contains(t, out.String(), "rendering failed for context boom")
			assert.Contains(t, out.String(), "kaput")
			assert.Contains(t, out.String(), `<div class="after"><div>1</div></div>`)
			assert.Contains(t, logs.String(), tt.log)
			assert.False(t, e.Rendering())

			_, cached := page.Cache.Get("after")
			assert.True(t, cached, "no temporary render may be left open by the panic")
		})
	}
}

func TestEngineFromDefaults(t *testing.T) {
	assert.Same(t, Default(), EngineFrom(context.Background()))

	e := quietEngine()
	ctx := WithEngine(context.Background(), e)
	assert.Same(t, e, EngineFrom(ctx))
	assert.Equal(t, ctx, WithEngine(ctx, e))
}

func TestConcurrentPagesOnSeparateEngines(t *testing.T) {
	store := NewGlobalStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := NewEngine(WithLogger(logger), WithGlobalStore(store))
			page := NewTestPage(fmt.Sprintf("/p%d/api", i))
			var calls atomic.Int64
			for visit := 0; visit < 5; visit++ {
				ctx := WithEngine(context.Background(), e)
				e.EnterPage(ctx, page)
				out := RenderComponent(ctx, "card", styledCard) +
					RenderComponent(ctx, "count", counting("Count", &calls, true))
				_, err := e.ExitPage(ctx)
				assert.NoError(t, err)
				assert.Contains(t, out.String(), fmt.Sprintf("<div>%d</div>", visit+1))
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, store.IDs(), 1)
}
