package naming

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jinzhu/inflection"
)

// Pluralize returns the plural of word, preferring PluralOverrides.
func (n *Namer) Pluralize(word string) string {
	if override, ok := lookupOverride(n.config.PluralOverrides, word); ok {
		return override
	}
	return inflection.Plural(word)
}

// Singularize returns the singular of word, preferring SingularOverrides.
func (n *Namer) Singularize(word string) string {
	if override, ok := lookupOverride(n.config.SingularOverrides, word); ok {
		return override
	}
	return inflection.Singular(word)
}

// lookupOverride matches word exactly, then case-insensitively. A
// case-insensitive hit takes the initial case of word, so an override for
// "person" also turns "Person" into "People".
func lookupOverride(overrides map[string]string, word string) (string, bool) {
	if override, ok := overrides[word]; ok {
		return override, true
	}
	for from, to := range overrides {
		if strings.EqualFold(from, word) {
			return matchInitialCase(word, to), true
		}
	}
	return "", false
}

func matchInitialCase(model, word string) string {
	m, _ := utf8.DecodeRuneInString(model)
	w, size := utf8.DecodeRuneInString(word)
	if size == 0 || !unicode.IsUpper(m) {
		return word
	}
	return string(unicode.ToUpper(w)) + word[size:]
}
