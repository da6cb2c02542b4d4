// Package template renders prompt templates containing {{var}} markers and
// single-level {{#if var}}...{{/if}} conditional blocks. Blocks do not
// nest; nested blocks are a documented limitation, not a feature.
package template

import (
	"fmt"
	"regexp"
	"strings"

	json "github.com/goccy/go-json"
)

var (
	condPattern = regexp.MustCompile(`(?s)\{\{#if\s+(\w+)\}\}(.*?)\{\{/if\}\}`)
	varPattern  = regexp.MustCompile(`\{\{(\w+)\}\}`)
)

// Render substitutes args into tmpl. Conditional blocks whose key is absent
// or falsy are stripped; truthy blocks keep their inner content trimmed.
// Remaining {{key}} markers become the string form of the value (JSON for
// structured values) or empty when absent. The result is trimmed.
func Render(tmpl string, args map[string]any) string {
	out := condPattern.ReplaceAllStringFunc(tmpl, func(block string) string {
		m := condPattern.FindStringSubmatch(block)
		if truthy(args[m[1]]) {
			return strings.TrimSpace(m[2])
		}
		return ""
	})

	out = varPattern.ReplaceAllStringFunc(out, func(marker string) string {
		key := varPattern.FindStringSubmatch(marker)[1]
		v, ok := args[key]
		if !ok || v == nil {
			return ""
		}
		return stringify(v)
	})

	return strings.TrimSpace(out)
}

// truthy mirrors the loose semantics the templates were written against:
// nil, false, zero numbers, empty strings and empty collections are falsy.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any, map[string]any:
		data, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", t)
	}
}
