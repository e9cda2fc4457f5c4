package hxnet

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/a-h/templ"
)

// Query keys carrying encoded endpoint parameters.
const (
	paramSigned = "p"
	paramSealed = "s"
)

// State is a component's state as seen by its render function, sub-route
// handlers and runner. Value is the state attached with WithState.
type State[S any] struct {
	Value S

	route   ComponentRoute
	encoder *Encoder
	logger  *slog.Logger
}

func (s State[S]) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// Endpoint returns the component's route, under which its sub-routes are
// served.
func (s State[S]) Endpoint() string {
	return s.route.String()
}

// URL returns the address of a sub-route, with params signed into the query
// string. params may be nil.
//
//	hx-get={ state.URL("/page", pageParams{N: 2}) }
func (s State[S]) URL(path string, params any) string {
	return s.buildURL(path, params, false)
}

// SealedURL is URL with params encrypted rather than signed. Use it when
// the parameters must not be readable by the client.
func (s State[S]) SealedURL(path string, params any) string {
	return s.buildURL(path, params, true)
}

func (s State[S]) buildURL(path string, params any, sealed bool) string {
	full := s.route.String() + "/" + strings.TrimPrefix(path, "/")
	if params == nil || s.encoder == nil {
		return full
	}
	token, err := s.encoder.Encode(params, sealed)
	if err != nil {
		s.log().Error("failed to encode endpoint parameters, dropping them",
			"route", s.route.String(), "path", path, "error", err)
		return full
	}
	key := paramSigned
	if sealed {
		key = paramSealed
	}
	return full + "?" + key + "=" + url.QueryEscape(token)
}

// Attrs builds the HTMX attributes that call a sub-route.
//
// For GET, params travel in the URL. For other methods they travel in
// hx-vals, so they are submitted with the request body. method is case
// insensitive; a method HTMX has no attribute for yields no attributes.
//
//	<button { state.Attrs(http.MethodPost, "/inc", nil)... }>+</button>
func (s State[S]) Attrs(method, path string, params any) templ.Attributes {
	method = strings.ToUpper(method)
	if method == http.MethodGet || method == "" {
		return templ.Attributes{"hx-get": s.URL(path, params)}
	}

	attrs := templ.Attributes{}
	target := s.route.String() + "/" + strings.TrimPrefix(path, "/")
	switch method {
	case http.MethodPost:
		attrs["hx-post"] = target
	case http.MethodPut:
		attrs["hx-put"] = target
	case http.MethodPatch:
		attrs["hx-patch"] = target
	case http.MethodDelete:
		attrs["hx-delete"] = target
	default:
		s.log().Error("no HTMX attribute for method", "route", s.route.String(), "method", method)
		return attrs
	}
	if params != nil && s.encoder != nil {
		token, err := s.encoder.Encode(params, false)
		if err != nil {
			s.log().Error("failed to encode endpoint parameters, dropping them",
				"route", s.route.String(), "path", path, "error", err)
			return attrs
		}
		data, _ := json.Marshal(map[string]string{paramSigned: token})
		attrs["hx-vals"] = string(data)
	}
	return attrs
}

// DecodeParams decodes parameters produced by URL, SealedURL or Attrs from
// r into v. It returns ErrNotFound if r carries none.
func (s State[S]) DecodeParams(r *http.Request, v any) error {
	if s.encoder == nil {
		return ErrNotFound
	}
	if token := r.FormValue(paramSealed); token != "" {
		return wrapEncodingError(s.encoder.Decode(token, true, v))
	}
	if token := r.FormValue(paramSigned); token != "" {
		return wrapEncodingError(s.encoder.Decode(token, false, v))
	}
	return ErrNotFound
}

type stateKey struct{}

// StateFrom returns the state of the component whose sub-route is being
// served.
//
//	func handleInc(w http.ResponseWriter, r *http.Request) {
//	    st, _ := hxnet.StateFrom[*counter](r.Context())
//	    st.Value.n.Add(1)
//	}
func StateFrom[S any](ctx context.Context) (State[S], bool) {
	s, ok := ctx.Value(stateKey{}).(State[S])
	return s, ok
}

func withState[S any](next http.Handler, state State[S]) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), stateKey{}, state)))
	})
}
