package hxnet

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzhttp"
)

// Website serves a set of pages plus, optionally, a directory of static
// files.
//
//	site, _ := hxnet.NewWebsite(hxnet.WithStaticDir("static"), hxnet.WithCompression(true))
//	site.AddPage(ctx, "/", home)
//	site.Serve(ctx, ":8080")
type Website struct {
	mu    sync.Mutex
	mux   *http.ServeMux
	pages map[string]*BuiltPage

	static      fs.FS
	staticDir   string
	compression bool
	csrf        bool
	logger      *slog.Logger
	debug       bool
	globals     *GlobalStore
	encoder     *Encoder
	key         []byte
}

// WebsiteOption configures a Website.
type WebsiteOption func(*Website)

// WithStaticDir serves dir for requests no page handles, and makes it the
// source of external scripts.
func WithStaticDir(dir string) WebsiteOption {
	return func(s *Website) {
		s.staticDir = dir
		s.static = os.DirFS(dir)
	}
}

// WithStaticFS is WithStaticDir for an arbitrary file system.
func WithStaticFS(fsys fs.FS) WebsiteOption {
	return func(s *Website) { s.static = fsys }
}

// WithCompression enables gzip compression of responses.
func WithCompression(enable bool) WebsiteOption {
	return func(s *Website) { s.compression = enable }
}

// WithCSRFProtection controls whether mutating requests must carry the
// HX-Request header that HTMX sends. Enabled by default.
func WithCSRFProtection(enable bool) WebsiteOption {
	return func(s *Website) { s.csrf = enable }
}

// WithSiteLogger sets the logger of the website and its page engines.
func WithSiteLogger(l *slog.Logger) WebsiteOption {
	return func(s *Website) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSiteDebug enables diagnostic placeholders for failed renders.
func WithSiteDebug(debug bool) WebsiteOption {
	return func(s *Website) { s.debug = debug }
}

// WithKey sets the key used to sign and seal endpoint parameters. Without
// it a random key is generated, which does not survive restarts.
func WithKey(key []byte) WebsiteOption {
	return func(s *Website) { s.key = key }
}

// WithSiteGlobalStore makes the website's pages register resources in gs
// instead of the process-wide store.
func WithSiteGlobalStore(gs *GlobalStore) WebsiteOption {
	return func(s *Website) { s.globals = gs }
}

// NewWebsite creates a website with no pages.
func NewWebsite(opts ...WebsiteOption) (*Website, error) {
	s := &Website{
		mux:    http.NewServeMux(),
		pages:  make(map[string]*BuiltPage),
		csrf:   true,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	key := s.key
	if key == nil {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("hxnet: failed to generate random key: %w", err)
		}
	}
	enc, err := NewEncoder(key)
	if err != nil {
		return nil, fmt.Errorf("hxnet: failed to create encoder: %w", err)
	}
	s.encoder = enc

	// Pages register exact paths, which take precedence over this.
	if s.staticDir != "" {
		s.mux.Handle("/", http.FileServerFS(s.static))
	}
	return s, nil
}

// AddPage builds page and mounts it at path. Each page gets its own engine,
// so different pages render concurrently.
func (s *Website) AddPage(ctx context.Context, path string, page *Page) (*BuiltPage, error) {
	engine := NewEngine(
		WithLogger(s.logger),
		WithDebug(s.debug),
		WithEncoder(s.encoder),
		WithGlobalStore(s.globals),
	)
	bp, err := page.Build(ctx, path, WithPageEngine(engine), WithPageStatic(s.static))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pages[bp.Path()]; exists {
		return nil, fmt.Errorf("hxnet: a page is already mounted at %q", bp.Path())
	}
	s.pages[bp.Path()] = bp
	bp.Register(s.mux)
	s.logger.InfoContext(ctx, "added page", "page", page.name, "path", bp.Path())
	return bp, nil
}

// Page returns the page mounted at path.
func (s *Website) Page(path string) (*BuiltPage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bp, ok := s.pages[strings.TrimSuffix(path, "/")+"/"]
	return bp, ok
}

// Handler returns the website's HTTP handler.
func (s *Website) Handler() http.Handler {
	var h http.Handler = s.mux
	if s.csrf {
		h = csrfProtect(h)
	}
	if s.compression {
		h = gzhttp.GzipHandler(h)
	}
	return h
}

// csrfProtect rejects mutating requests that did not come from HTMX.
func csrfProtect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead && !IsHTMX(r) {
			http.Error(w, "Forbidden: HTMX request required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Website) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("ready! serving website", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
