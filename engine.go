package hxnet

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/a-h/templ"
)

// Runner is a background task produced by a component. Runners are started
// detached once the page render that built them has finished.
type Runner func(ctx context.Context)

// MountedRouter is a component sub-router discovered during a render.
type MountedRouter struct {
	Route   ComponentRoute
	Handler http.Handler
}

// RenderResult is everything a page render discovered that the page has to
// act on: runners to start, routers to mount and global resources to ship.
type RenderResult struct {
	Runners []Runner
	Routers []MountedRouter

	// NewGlobals lists resource ids first inserted into the GlobalStore
	// during this render.
	NewGlobals []string

	// UsedGlobals lists every resource id registered by a component built
	// during this render, whether or not another page inserted it first.
	UsedGlobals []string
}

// Engine owns the render context slot: at most one page render is active
// on an engine at a time.
//
// Engines travel in the context passed to render functions, so nested
// RenderComponent calls reach the engine that started the page render.
// Code without an engine in its context uses Default.
type Engine struct {
	mu     sync.Mutex
	active *renderContext

	logger  *slog.Logger
	debug   bool
	globals *GlobalStore
	encoder *Encoder
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine's logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithDebug controls placeholders for failed renders. In debug mode they
// carry a diagnostic message; otherwise they are empty.
func WithDebug(debug bool) EngineOption {
	return func(e *Engine) { e.debug = debug }
}

// WithGlobalStore makes the engine register resources in s instead of the
// process-wide store.
func WithGlobalStore(s *GlobalStore) EngineOption {
	return func(e *Engine) {
		if s != nil {
			e.globals = s
		}
	}
}

// WithEncoder sets the encoder used for component endpoint parameters.
func WithEncoder(enc *Encoder) EngineOption {
	return func(e *Engine) { e.encoder = enc }
}

// NewEngine creates an engine with no active render.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		logger:  slog.Default(),
		globals: Globals(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultEngine = sync.OnceValue(func() *Engine {
	return NewEngine(WithDebug(true))
})

// Default returns the process-wide engine.
func Default() *Engine {
	return defaultEngine()
}

// Logger returns the engine's logger.
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// GlobalStore returns the store the engine registers resources in.
func (e *Engine) GlobalStore() *GlobalStore {
	return e.globals
}

// Rendering reports whether a page render is active.
func (e *Engine) Rendering() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active != nil
}

type (
	engineKey   struct{}
	identityKey struct{}
)

// WithEngine returns a copy of ctx carrying e.
func WithEngine(ctx context.Context, e *Engine) context.Context {
	if cur, ok := ctx.Value(engineKey{}).(*Engine); ok && cur == e {
		return ctx
	}
	return context.WithValue(ctx, engineKey{}, e)
}

// EngineFrom returns the engine carried by ctx, or Default.
func EngineFrom(ctx context.Context) *Engine {
	if e, ok := ctx.Value(engineKey{}).(*Engine); ok && e != nil {
		return e
	}
	return Default()
}

// IdentityFrom returns the render identity of the component being built.
func IdentityFrom(ctx context.Context) string {
	id, _ := ctx.Value(identityKey{}).(string)
	return id
}

// renderContext holds the accumulators of one page render.
type renderContext struct {
	baseRoute  string
	components *ComponentCache

	// trials has one entry per open temporary render; an entry stays true
	// while nothing dynamic was rendered inside it.
	trials []bool

	newGlobals  orderedSet
	usedGlobals orderedSet

	runners     []Runner
	runnerIndex map[string]int
	routers     []MountedRouter
	routerIndex map[string]int
}

func newRenderContext(page PageHandle) *renderContext {
	return &renderContext{
		baseRoute:   page.APIPath(),
		components:  page.Components(),
		runnerIndex: make(map[string]int),
		routerIndex: make(map[string]int),
	}
}

func (rc *renderContext) temporary() bool {
	return len(rc.trials) > 0
}

func (rc *renderContext) markDynamic() {
	if n := len(rc.trials); n > 0 {
		rc.trials[n-1] = false
	}
}

// addRunner records a runner. A component built more than once in a
// render (trial, then real render) keeps only its latest runner.
func (rc *renderContext) addRunner(route ComponentRoute, r Runner) {
	if i, ok := rc.runnerIndex[route.String()]; ok {
		rc.runners[i] = r
		return
	}
	rc.runnerIndex[route.String()] = len(rc.runners)
	rc.runners = append(rc.runners, r)
}

func (rc *renderContext) addRouter(route ComponentRoute, h http.Handler) {
	if i, ok := rc.routerIndex[route.String()]; ok {
		rc.routers[i].Handler = h
		return
	}
	rc.routerIndex[route.String()] = len(rc.routers)
	rc.routers = append(rc.routers, MountedRouter{Route: route, Handler: h})
}

func (rc *renderContext) finish() *RenderResult {
	return &RenderResult{
		Runners:     rc.runners,
		Routers:     rc.routers,
		NewGlobals:  rc.newGlobals.items,
		UsedGlobals: rc.usedGlobals.items,
	}
}

type orderedSet struct {
	items []string
	seen  map[string]struct{}
}

func (s *orderedSet) add(v string) {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}

// EnterPage starts a render of page on e.
//
// Entering while another render is active replaces it; the previous
// render's routers, runners and resources are lost. That is a caller bug
// and is logged, not returned.
func (e *Engine) EnterPage(ctx context.Context, page PageHandle) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if prev := e.active; prev != nil {
		e.logger.WarnContext(ctx, "tried to render a page while another page is already being rendered",
			"previous_route", prev.baseRoute,
			"route", page.APIPath(),
			"discarded_routers", len(prev.routers),
			"discarded_runners", len(prev.runners),
			"discarded_globals", len(prev.usedGlobals.items))
	}
	e.active = newRenderContext(page)
}

// ExitPage ends the active render and returns what it discovered.
// It returns ErrNoRender if no render is active.
func (e *Engine) ExitPage(ctx context.Context) (*RenderResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rc := e.active
	if rc == nil {
		e.logger.ErrorContext(ctx, "tried to exit a page while no page is being rendered")
		return nil, ErrNoRender
	}
	if rc.temporary() {
		e.logger.WarnContext(ctx, "exited a page with temporary renders still open",
			"depth", len(rc.trials))
	}
	e.active = nil
	return rc.finish(), nil
}

// EnterTemporaryRender opens a trial render. Components built while a
// trial is open are not cached, and rendering a dynamic component marks
// the trial as not static. Trials nest; each must be closed with
// ExitTemporaryRender. Outside a page render this does nothing.
func (e *Engine) EnterTemporaryRender() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if rc := e.active; rc != nil {
		e.logger.Debug("entering temporary render", "depth", len(rc.trials)+1)
		rc.trials = append(rc.trials, true)
	}
}

// ExitTemporaryRender closes the innermost trial render and reports whether
// everything rendered inside it was static. A dynamic result also marks
// the enclosing trial. Outside a render, or with no trial open, it
// returns true.
func (e *Engine) ExitTemporaryRender() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	rc := e.active
	if rc == nil {
		return true
	}
	n := len(rc.trials)
	if n == 0 {
		e.logger.Warn("tried to exit temporary render while not in temporary render")
		return true
	}

	static := rc.trials[n-1]
	rc.trials = rc.trials[:n-1]
	if !static {
		rc.markDynamic()
	}
	e.logger.Debug("exiting temporary render", "depth", n, "static", static)
	return static
}

// noteGlobal tells the active render that a component registered resource
// id. isNew reports whether the GlobalStore inserted it just now.
func (e *Engine) noteGlobal(id string, isNew bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rc := e.active
	if rc == nil {
		return
	}
	rc.usedGlobals.add(id)
	if isNew {
		rc.newGlobals.add(id)
	}
}

// RenderComponent renders the component registered under identity into the
// active page render, building it with build on first use.
//
// identity must name the same logical component on every render of a page.
// build is only called on a cache miss. Failures never escape: they are
// logged and replaced with a placeholder, and so are panics raised by
// build, the component's build or its render function.
//
// No engine or cache lock is held while build or any render function runs,
// since those recursively call RenderComponent for their children.
func (e *Engine) RenderComponent(ctx context.Context, identity string, build func() Buildable) Markup {
	ctx = WithEngine(ctx, e)
	log := e.logger.With("identity", identity)

	e.mu.Lock()
	rc := e.active
	if rc == nil {
		e.mu.Unlock()
		log.ErrorContext(ctx, "tried to add a component while no page is being rendered")
		return e.placeholder(identity, ErrNoRender)
	}
	temporary := rc.temporary()
	baseRoute := rc.baseRoute
	cache := rc.components
	e.mu.Unlock()

	if built, ok := cache.Get(identity); ok {
		markup := e.renderBuilt(ctx, built, temporary, identity)

		e.mu.Lock()
		defer e.mu.Unlock()
		if e.active != rc {
			log.ErrorContext(ctx, "page render exited while a component was still being rendered")
			return e.placeholder(identity, ErrContextLost)
		}
		if built.IsDynamic() {
			rc.markDynamic()
		}
		return markup
	}

	var c Buildable
	if build != nil {
		if err := recoverPanic(func() error { c = build(); return nil }); err != nil {
			log.ErrorContext(ctx, "component constructor failed", "error", err)
			return e.placeholder(identity, err)
		}
	}
	if c == nil {
		log.ErrorContext(ctx, "component constructor returned nothing")
		return e.placeholder(identity, ErrNoRenderer)
	}

	log.DebugContext(ctx, "building component", "component", c.Name())
	var res *BuildResult
	err := recoverPanic(func() (err error) {
		res, err = c.Build(context.WithValue(ctx, identityKey{}, identity), baseRoute)
		return err
	})
	if err != nil {
		log.ErrorContext(ctx, "component build failed", "component", c.Name(), "error", err)
		return e.placeholder(identity, err)
	}
	markup := e.renderBuilt(ctx, res.Component, temporary, identity)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active != rc {
		log.ErrorContext(ctx, "page render exited while a component was still being rendered")
		return e.placeholder(identity, ErrContextLost)
	}

	if res.Component.IsDynamic() {
		rc.markDynamic()
	}
	if res.Router != nil {
		rc.addRouter(res.Route, res.Router)
	}
	if res.Runner != nil {
		rc.addRunner(res.Route, res.Runner)
	}
	if !rc.temporary() {
		cache.Insert(identity, res.Component)
	}
	return markup
}

// renderBuilt renders b. Inside a trial render only static content is rendered;
// a dynamic component's real output depends on the request, so it renders
// empty there.
func (e *Engine) renderBuilt(ctx context.Context, b *BuiltComponent, temporary bool, identity string) Markup {
	if temporary {
		m, _ := b.RenderIfStatic()
		return m
	}
	var m Markup
	err := recoverPanic(func() (err error) {
		m, err = b.Render(ctx)
		return err
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "component render failed",
			"identity", identity, "component", b.Name(), "error", err)
		return e.placeholder(identity, err)
	}
	return m
}

// placeholder stands in for output that could not be produced. Outside
// debug mode it is empty, except for a render whose page vanished.
func (e *Engine) placeholder(identity string, err error) Markup {
	if !e.debug && !errors.Is(err, ErrContextLost) {
		return ""
	}
	return Markup("rendering failed for context " + templ.EscapeString(identity) + ": " + templ.EscapeString(err.Error()))
}

// RenderComponent renders a component into the render active on the engine
// carried by ctx. See Engine.RenderComponent.
func RenderComponent(ctx context.Context, identity string, build func() Buildable) Markup {
	return EngineFrom(ctx).RenderComponent(ctx, identity, build)
}

// EnterPage starts a page render on the engine carried by ctx.
func EnterPage(ctx context.Context, page PageHandle) {
	EngineFrom(ctx).EnterPage(ctx, page)
}

// ExitPage ends the page render on the engine carried by ctx.
func ExitPage(ctx context.Context) (*RenderResult, error) {
	return EngineFrom(ctx).ExitPage(ctx)
}

// EnterTemporaryRender opens a trial render on the engine carried by ctx.
func EnterTemporaryRender(ctx context.Context) {
	EngineFrom(ctx).EnterTemporaryRender()
}

// ExitTemporaryRender closes a trial render on the engine carried by ctx.
func ExitTemporaryRender(ctx context.Context) bool {
	return EngineFrom(ctx).ExitTemporaryRender()
}
