package hxnet

import (
	"context"
	"fmt"
	"io/fs"
)

// Script is JavaScript shipped with a component or page: either inline
// source or a path into the website's static files.
type Script struct {
	Inline   string
	External string
}

// InlineScript returns a script with the given source.
func InlineScript(src string) Script {
	return Script{Inline: src}
}

// ExternalScript returns a script loaded from path in the static files.
func ExternalScript(path string) Script {
	return Script{External: path}
}

// Load returns the script source. External scripts are read from fsys.
func (s Script) Load(fsys fs.FS) (string, error) {
	if s.External == "" {
		return s.Inline, nil
	}
	if fsys == nil {
		return "", fmt.Errorf("%w: script %s: no static files configured", ErrNotFound, s.External)
	}
	data, err := fs.ReadFile(fsys, s.External)
	if err != nil {
		return "", fmt.Errorf("%w: script %s: %v", ErrNotFound, s.External, err)
	}
	return string(data), nil
}

// AddScript registers a free-standing script with the active page render.
// Use it from markup helpers that are not components; components use
// Component.Script. The same source is shipped once.
func AddScript(ctx context.Context, src string) {
	addGlobal(ctx, "script:"+hashID(src), func() *GlobalEntry {
		return &GlobalEntry{Scripts: []Script{InlineScript(src)}}
	})
}

// AddStyle registers a free-standing style scoped to class with the active
// page render. Markup using it must set class itself.
func AddStyle(ctx context.Context, class string, css Style) {
	addGlobal(ctx, "style:"+hashID(class, string(css)), func() *GlobalEntry {
		rendered := css.Render(class)
		return &GlobalEntry{Style: &rendered}
	})
}

func addGlobal(ctx context.Context, id string, init func() *GlobalEntry) {
	e := EngineFrom(ctx)
	e.noteGlobal(id, e.globals.Add(id, init))
}
