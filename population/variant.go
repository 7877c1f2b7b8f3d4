package population

import (
	"regexp"
	"strings"
)

type variantRule struct {
	pattern *regexp.Regexp
	label   string
}

// variantRules are tried in order. Bracketed and more specific spellings
// come first so "(1st Edition)" never leaves a dangling "(" behind.
var variantRules = []variantRule{
	{regexp.MustCompile(`(?i)(.*)\s*\(1st Edition\)`), "1st Edition"},
	{regexp.MustCompile(`(?i)(.*)\s*1st Edition`), "1st Edition"},
	{regexp.MustCompile(`(?i)(.*)\s*\(1st ed\)`), "1st Edition"},
	{regexp.MustCompile(`(?i)(.*)\s*-Holo`), "Holo"},
	{regexp.MustCompile(`(?i)(.*)\s*Holo`), "Holo"},
}

// ExtractVariant splits a free-text subject into its description and a
// variant label. A rule only applies when the text before the variant is
// non-empty; otherwise the trimmed input is returned with no variant.
func ExtractVariant(text string) (description, variant string) {
	if text == "" {
		return "", ""
	}
	for _, r := range variantRules {
		m := r.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if prefix := strings.TrimSpace(m[1]); prefix != "" {
			return prefix, r.label
		}
	}
	return strings.TrimSpace(text), ""
}
