package units

import (
	"strings"
	"text/template"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ahrav/go-ternary/internal/domain"
)

// GetTemplateFuncMap returns the functions available in vote prompts.
func GetTemplateFuncMap() template.FuncMap {
	return template.FuncMap{
		// truncate cuts s to at most length bytes on a rune boundary,
		// ending with "..." when there is room for it.
		"truncate": truncate,

		"lower":    strings.ToLower,
		"upper":    strings.ToUpper,
		"title":    title,
		"trim":     strings.TrimSpace,
		"contains": strings.Contains,
		"replace":  strings.ReplaceAll,
		"join":     strings.Join,
		"split":    strings.Split,

		// label renders a decision literal (-1, 0, 1) as its display label.
		"label": func(d int) string {
			return domain.Flag(domain.Decision(d)).Label
		},

		// quote prefixes every line with "> ".
		"quote": func(s string) string {
			lines := strings.Split(s, "\n")
			for i, l := range lines {
				lines[i] = "> " + l
			}
			return strings.Join(lines, "\n")
		},
	}
}

// title builds a caser per call; a cases.Caser must not be shared between
// goroutines.
func title(s string) string {
	return cases.Title(language.English).String(s)
}

func truncate(s string, length int) string {
	if length <= 0 {
		return ""
	}
	if len(s) <= length {
		return s
	}
	suffix := ""
	if length > 3 {
		suffix = "..."
		length -= 3
	}
	cut := length
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + suffix
}
