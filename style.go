package hxnet

import (
	"strings"
	"sync"
)

// Style is a CSS fragment scoped to a component. The character & stands for
// the component's top-level class selector:
//
//	hxnet.Style("& { color: red; } & a:hover { color: blue; }")
//
// A fragment without & is treated as declarations for the top-level class.
type Style string

// RenderedStyle is a Style bound to a concrete selector.
type RenderedStyle struct {
	Selector string
	CSS      string
}

// Render scopes the fragment to class.
func (s Style) Render(class string) RenderedStyle {
	selector := "." + class
	css := string(s)
	if strings.Contains(css, "&") {
		css = strings.ReplaceAll(css, "&", selector)
	} else {
		css = selector + " { " + strings.TrimSpace(css) + " }"
	}
	return RenderedStyle{Selector: selector, CSS: css}
}

// Stylesheet collects rendered styles, keeping one per selector in
// insertion order. It is safe for concurrent use.
type Stylesheet struct {
	mu     sync.Mutex
	styles []RenderedStyle
	seen   map[string]struct{}
}

// NewStylesheet creates an empty stylesheet.
func NewStylesheet() *Stylesheet {
	return &Stylesheet{seen: make(map[string]struct{})}
}

// Add appends s unless a style for the same selector is present. It
// reports whether s was added.
func (sh *Stylesheet) Add(s RenderedStyle) bool {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.seen[s.Selector]; ok {
		return false
	}
	sh.seen[s.Selector] = struct{}{}
	sh.styles = append(sh.styles, s)
	return true
}

// Len returns the number of styles.
func (sh *Stylesheet) Len() int {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return len(sh.styles)
}

// String renders the stylesheet.
func (sh *Stylesheet) String() string {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	var sb strings.Builder
	for _, s := range sh.styles {
		sb.WriteString(s.CSS)
		sb.WriteByte('\n')
	}
	return sb.String()
}
