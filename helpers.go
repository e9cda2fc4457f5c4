package hxnet

import (
	"net/http"

	"github.com/a-h/templ"
)

// Render writes a templ component to the HTTP response.
//
// Sets Content-Type to text/html and renders the component using the
// request's context. Component sub-route handlers use it to answer HTMX
// requests with a fragment:
//
//	func handleInc(w http.ResponseWriter, r *http.Request) {
//	    hxnet.Render(w, r, counterView(n))
//	}
func Render(w http.ResponseWriter, r *http.Request, component templ.Component) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return component.Render(r.Context(), w)
}

// IsHTMX returns true if the request originated from HTMX.
func IsHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// IsBoosted returns true if the request is a boosted navigation (hx-boost).
func IsBoosted(r *http.Request) bool {
	return r.Header.Get("HX-Boosted") == "true"
}

// TriggerName returns the name attribute of the element that triggered the request.
//
// Useful for form handlers that need to know which submit button was clicked.
func TriggerName(r *http.Request) string {
	return r.Header.Get("HX-Trigger-Name")
}

// TargetID returns the id attribute of the target element.
func TargetID(r *http.Request) string {
	return r.Header.Get("HX-Target")
}
