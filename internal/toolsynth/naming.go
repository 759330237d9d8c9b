package toolsynth

import "strings"

var singularIrregular = map[string]string{
	"people":   "person",
	"children": "child",
	"men":      "man",
	"women":    "woman",
	"mice":     "mouse",
	"geese":    "goose",
	"teeth":    "tooth",
	"feet":     "foot",
}

var pluralIrregular = map[string]string{
	"person": "people",
	"child":  "children",
	"man":    "men",
	"woman":  "women",
	"mouse":  "mice",
	"goose":  "geese",
	"tooth":  "teeth",
	"foot":   "feet",
}

// singularize applies the deterministic ruleset from the entity-naming
// contract to a lowercase, snake_case word.
func singularize(word string) string {
	if s, ok := singularIrregular[word]; ok {
		return s
	}
	switch {
	case strings.HasSuffix(word, "ies"):
		return strings.TrimSuffix(word, "ies") + "y"
	case strings.HasSuffix(word, "xes"), strings.HasSuffix(word, "ches"),
		strings.HasSuffix(word, "shes"), strings.HasSuffix(word, "sses"):
		return strings.TrimSuffix(word, "es")
	case strings.HasSuffix(word, "ves"):
		return strings.TrimSuffix(word, "ves") + "f"
	case strings.HasSuffix(word, "s") &&
		!strings.HasSuffix(word, "ss") &&
		!strings.HasSuffix(word, "us") &&
		!strings.HasSuffix(word, "is"):
		return strings.TrimSuffix(word, "s")
	default:
		return word
	}
}

// pluralize is the inverse ruleset, used to rebuild "list<Entities>"
// from the singularized entity name.
func pluralize(word string) string {
	if p, ok := pluralIrregular[word]; ok {
		return p
	}
	switch {
	case strings.HasSuffix(word, "s"), strings.HasSuffix(word, "x"),
		strings.HasSuffix(word, "ch"), strings.HasSuffix(word, "sh"):
		return word + "es"
	case strings.HasSuffix(word, "y") && len(word) > 1 && !isVowel(word[len(word)-2]):
		return strings.TrimSuffix(word, "y") + "ies"
	default:
		return word + "s"
	}
}

func isVowel(b byte) bool {
	switch b {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	default:
		return false
	}
}

// pascalCase converts a snake_case word (or words already singular)
// into PascalCase.
func pascalCase(word string) string {
	parts := strings.Split(word, "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

// entityName derives the PascalCase singular entity name for a table.
func entityName(table string) string {
	return pascalCase(singularize(table))
}

// entityNamePlural derives the PascalCase plural entity name for a table.
func entityNamePlural(table string) string {
	return pascalCase(pluralize(singularize(table)))
}

// Singularize exposes the entity-naming ruleset for callers outside this
// package that need to derive a verification-argument name from a table
// name (see the SQL emitter's foreign-key cross-tenant check).
func Singularize(word string) string { return singularize(word) }
