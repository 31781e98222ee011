// internal/template/template.go
// Package template expands {{name}} placeholders in output file names.
package template

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var templateVar = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Expand replaces {{variable}} placeholders with values from data
func Expand(tmpl string, data map[string]any) string {
	return templateVar.ReplaceAllStringFunc(tmpl, func(match string) string {
		varName := match[2 : len(match)-2]

		if val, ok := data[varName]; ok {
			return fmt.Sprintf("%v", val)
		}
		return match // unknown placeholders are left as is
	})
}

// maxSlug bounds the file name fragment produced by Slug.
const maxSlug = 48

// Slug turns an expression into a file name fragment: operators are spelled
// out and anything else outside [a-z0-9_] collapses to a single dash.
func Slug(expr string) string {
	r := strings.NewReplacer("**", "_pow_", "^", "_pow_", "*", "_x_", "/", "_over_", "+", "_plus_", "-", "_minus_")
	s := strings.ToLower(r.Replace(expr))

	var b strings.Builder
	dash := false
	for _, c := range s {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' {
			b.WriteRune(c)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if len(out) > maxSlug {
		out = strings.TrimRight(out[:maxSlug], "-")
	}
	if out == "" {
		return "function"
	}
	return out
}

// OutputVars returns the placeholders available to output paths.
func OutputVars(expr, quality, coloring, id string, now time.Time) map[string]any {
	return map[string]any{
		"slug":      Slug(expr),
		"quality":   quality,
		"coloring":  coloring,
		"id":        id,
		"timestamp": now.Format("20060102-150405"),
	}
}
