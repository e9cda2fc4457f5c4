package hxnet

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/a-h/templ"
)

// Page is a visitable route of a Website: a head, a body render function
// and page-level scripts.
type Page struct {
	name    string
	head    templ.Component
	body    func(ctx context.Context) templ.Component
	scripts []Script
}

// NewPage creates an empty page. The name is only used for logging.
func NewPage(name string) *Page {
	return &Page{name: name}
}

// Head sets the content of the document head.
func (p *Page) Head(head templ.Component) *Page {
	p.head = head
	return p
}

// Body sets the function rendering the document body. It runs on every
// visit; components rendered inside it are cached per page.
func (p *Page) Body(fn func(ctx context.Context) templ.Component) *Page {
	p.body = fn
	return p
}

// Script adds scripts bundled into the page's script.js ahead of any
// component scripts.
func (p *Page) Script(scripts ...Script) *Page {
	p.scripts = append(p.scripts, scripts...)
	return p
}

// PageOption configures Page.Build.
type PageOption func(*pageConfig)

type pageConfig struct {
	engine *Engine
	static fs.FS
}

// WithPageEngine renders the page on e instead of a fresh engine.
func WithPageEngine(e *Engine) PageOption {
	return func(c *pageConfig) { c.engine = e }
}

// WithPageStatic sets the files external scripts are read from.
func WithPageStatic(fsys fs.FS) PageOption {
	return func(c *pageConfig) { c.static = fsys }
}

// BuiltPage is a page mounted at a path. It owns the page's component
// cache, its API router, its script bundle and its stylesheet.
type BuiltPage struct {
	name    string
	path    string
	head    templ.Component
	body    func(ctx context.Context) templ.Component
	engine  *Engine
	static  fs.FS
	logger  *slog.Logger
	baseCtx context.Context

	components *ComponentCache
	api        *APIRouter

	apiPath    string
	scriptPath string
	stylePath  string

	// renderMu serialises renders of this page on its engine.
	renderMu sync.Mutex

	mu          sync.Mutex
	usedGlobals map[string]struct{}
	bundle      strings.Builder
	stylesheet  *Stylesheet

	// pending holds one channel per resource still being added; each is
	// closed when its resource is in the bundle and stylesheet.
	pending []chan struct{}
}

// Build mounts the page at path and pre-renders it once, so that the first
// visitor is served from a warm component cache.
//
// Runners started by the page's components get a context derived from ctx
// that is not cancelled with it.
func (p *Page) Build(ctx context.Context, path string, opts ...PageOption) (*BuiltPage, error) {
	cfg := pageConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.engine == nil {
		cfg.engine = NewEngine()
	}

	base := strings.TrimSuffix(path, "/")
	bp := &BuiltPage{
		name:        p.name,
		path:        base + "/",
		head:        p.head,
		body:        p.body,
		engine:      cfg.engine,
		static:      cfg.static,
		logger:      cfg.engine.logger.With("page", p.name),
		baseCtx:     context.WithoutCancel(ctx),
		components:  NewComponentCache(),
		apiPath:     base + "/api",
		scriptPath:  base + "/script.js",
		stylePath:   base + "/style.css",
		usedGlobals: make(map[string]struct{}),
		stylesheet:  NewStylesheet(),
	}
	bp.api = NewAPIRouter(bp.apiPath, bp.logger)

	for _, s := range p.scripts {
		src, err := s.Load(cfg.static)
		if err != nil {
			return nil, fmt.Errorf("hxnet: page %s: %w", p.name, err)
		}
		bp.bundle.WriteString(src)
		bp.bundle.WriteByte('\n')
	}

	bp.logger.DebugContext(ctx, "performing page pre-render")
	if _, err := bp.Render(ctx); err != nil {
		return nil, fmt.Errorf("hxnet: page %s: pre-render: %w", p.name, err)
	}
	return bp, nil
}

// APIPath returns the route component sub-routes are mounted below.
func (bp *BuiltPage) APIPath() string { return bp.apiPath }

// Components returns the page's component cache.
func (bp *BuiltPage) Components() *ComponentCache { return bp.components }

// Path returns the page's path, with a trailing slash.
func (bp *BuiltPage) Path() string { return bp.path }

// ScriptPath returns the route of the page's script bundle.
func (bp *BuiltPage) ScriptPath() string { return bp.scriptPath }

// StylePath returns the route of the page's stylesheet.
func (bp *BuiltPage) StylePath() string { return bp.stylePath }

// API returns the router of the page's component sub-routes.
func (bp *BuiltPage) API() *APIRouter { return bp.api }

// Render renders the full document and hands everything the render
// discovered to the page: new styles and scripts are added in the
// background, runners are started and sub-routers are mounted.
func (bp *BuiltPage) Render(ctx context.Context) (Markup, error) {
	start := time.Now()
	ctx = WithEngine(ctx, bp.engine)

	body, err := bp.renderLocked(ctx)
	if err != nil {
		return "", err
	}

	doc := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html lang="en"><head>`); err != nil {
			return err
		}
		if bp.head != nil {
			if err := bp.head.Render(ctx, w); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, `<link rel="stylesheet" href="%s"></head><body>`, templ.EscapeString(bp.stylePath)); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, `<script src="%s"></script></body></html>`, templ.EscapeString(bp.scriptPath))
		return err
	})
	var out Markup
	err = recoverPanic(func() (err error) {
		out, err = renderMarkup(ctx, doc)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("hxnet: page %s: %w", bp.name, err)
	}

	bp.logger.DebugContext(ctx, "page render finished", "took", time.Since(start))
	return out, nil
}

// renderLocked renders the body with the page entered on its engine. The
// page is exited and the result collected even if the body panics.
func (bp *BuiltPage) renderLocked(ctx context.Context) (Markup, error) {
	bp.renderMu.Lock()
	defer bp.renderMu.Unlock()

	bp.engine.EnterPage(ctx, bp)
	var body Markup
	renderErr := recoverPanic(func() (err error) {
		body, err = bp.renderBody(ctx)
		return err
	})
	res, err := bp.engine.ExitPage(ctx)
	if err != nil {
		return "", err
	}
	bp.collect(res)
	if renderErr != nil {
		return "", fmt.Errorf("hxnet: page %s: %w", bp.name, renderErr)
	}
	return body, nil
}

func (bp *BuiltPage) renderBody(ctx context.Context) (Markup, error) {
	if bp.body == nil {
		return "", nil
	}
	return renderMarkup(ctx, bp.body(ctx))
}

// collect applies a render result to the page.
func (bp *BuiltPage) collect(res *RenderResult) {
	globals := bp.engine.globals

	bp.mu.Lock()
	for _, id := range res.UsedGlobals {
		if _, ok := bp.usedGlobals[id]; ok {
			continue
		}
		bp.usedGlobals[id] = struct{}{}

		done := make(chan struct{})
		bp.pending = append(bp.pending, done)
		go func(id string) {
			defer close(done)
			bp.addGlobal(id, globals)
		}(id)
	}
	bp.mu.Unlock()

	for _, r := range res.Runners {
		go r(bp.baseCtx)
	}
	for _, m := range res.Routers {
		bp.api.Mount(m.Route, m.Handler)
	}
}

// addGlobal appends a global resource's style and scripts to the page.
func (bp *BuiltPage) addGlobal(id string, globals *GlobalStore) {
	entry, ok := globals.Get(id)
	if !ok {
		bp.logger.Warn("global resource vanished before it was added", "resource", id)
		return
	}
	if entry.Style != nil {
		bp.stylesheet.Add(*entry.Style)
	}

	var sb strings.Builder
	for _, s := range entry.Scripts {
		src, err := s.Load(bp.static)
		if err != nil {
			bp.logger.Error("failed to load component script", "resource", id, "error", err)
			continue
		}
		sb.WriteString(src)
		sb.WriteByte('\n')
	}
	if sb.Len() == 0 {
		return
	}

	bp.mu.Lock()
	bp.bundle.WriteString(sb.String())
	bp.mu.Unlock()
}

// Wait blocks until resources discovered by earlier renders have been
// added to the bundle and stylesheet.
func (bp *BuiltPage) Wait() {
	bp.mu.Lock()
	pending := slices.Clone(bp.pending)
	bp.mu.Unlock()
	if len(pending) == 0 {
		return
	}
	for _, done := range pending {
		<-done
	}

	bp.mu.Lock()
	bp.pending = slices.DeleteFunc(bp.pending, func(done chan struct{}) bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	})
	bp.mu.Unlock()
}

// Script returns the page's bundled script.
func (bp *BuiltPage) Script() string {
	bp.Wait()
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.bundle.String()
}

// Stylesheet returns the page's stylesheet.
func (bp *BuiltPage) Stylesheet() string {
	bp.Wait()
	return bp.stylesheet.String()
}

// Register mounts the page's routes on mux.
func (bp *BuiltPage) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET "+bp.path+"{$}", bp.serveDocument)
	if bp.path != "/" {
		mux.HandleFunc("GET "+strings.TrimSuffix(bp.path, "/"), bp.serveDocument)
	}
	mux.HandleFunc("GET "+bp.scriptPath, bp.serveAsset("application/javascript", bp.Script))
	mux.HandleFunc("GET "+bp.stylePath, bp.serveAsset("text/css", bp.Stylesheet))
	mux.Handle(bp.apiPath+"/", bp.api)
}

func (bp *BuiltPage) serveDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := bp.Render(r.Context())
	if err != nil {
		bp.logger.ErrorContext(r.Context(), "page render failed", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if err := Render(w, r, doc); err != nil {
		bp.logger.ErrorContext(r.Context(), "failed to write page", "error", err)
	}
}

func (bp *BuiltPage) serveAsset(contentType string, body func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		content := body()
		tag := contentTag(content)
		w.Header().Set("ETag", tag)
		if r.Header.Get("If-None-Match") == tag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = io.WriteString(w, content)
	}
}
