// SPDX-License-Identifier: LGPL-3.0-or-later

// Package template renders the curly-brace (mustache-like) filename and
// directory templates used by the path planner. It intentionally does not
// reach for a templating library: the grammar is a single token kind,
// `{key}`, substituted from a flat string map — nothing in the example
// corpus imports a template engine as a direct dependency for this shape of
// problem, and Go's text/template targets a materially richer (and
// incompatible, double-brace) grammar, so a small hand-rolled renderer is
// the grounded choice here (see DESIGN.md).
package template

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var tokenPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// Context carries the named values a path template may reference. Custom
// holds request-specific pairs (e.g. "resource_id" for id-shaped requests).
type Context struct {
	URL         string
	Domain      string
	Filename    string
	Ext         string
	Size        int64
	ContentType string
	Date        time.Time
	Custom      map[string]string
}

// values flattens a Context into the lookup map the renderer uses.
func (c Context) values() map[string]string {
	m := map[string]string{
		"url":          c.URL,
		"domain":       c.Domain,
		"filename":     c.Filename,
		"ext":          c.Ext,
		"size":         fmt.Sprintf("%d", c.Size),
		"content_type": c.ContentType,
		"date":         c.Date.Format("2006-01-02"),
		"time":         c.Date.Format("15-04-05"),
	}
	for k, v := range c.Custom {
		m[k] = v
	}
	return m
}

// Render substitutes every {key} occurrence in tmpl with the matching value
// from ctx. An unknown key renders as an error rather than silently leaving
// the placeholder or an empty string, so a typo'd template fails fast
// instead of producing a mangled path.
func Render(tmpl string, ctx Context) (string, error) {
	values := ctx.values()
	var missing []string

	out := tokenPattern.ReplaceAllStringFunc(tmpl, func(tok string) string {
		key := tok[1 : len(tok)-1]
		v, ok := values[key]
		if !ok {
			missing = append(missing, key)
			return tok
		}
		return v
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("template render: unknown key(s) %s", strings.Join(missing, ", "))
	}
	return out, nil
}
