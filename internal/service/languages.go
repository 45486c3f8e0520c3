package service

import (
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// Normalized language identifiers.
const (
	LanguagePython2 = "python2"
	LanguagePython3 = "python3"
	LanguageCSharp  = "c_sharp"
	LanguageJava    = "java"
)

var languageAliases = map[string]string{
	LanguagePython2: LanguagePython2,
	"python":        LanguagePython2,
	"py2":           LanguagePython2,
	LanguagePython3: LanguagePython3,
	"py3":           LanguagePython3,
	LanguageCSharp:  LanguageCSharp,
	"csharp":        LanguageCSharp,
	"cs":            LanguageCSharp,
	LanguageJava:    LanguageJava,
}

// NormalizeLanguage maps a user supplied language alias to its normalized
// identifier.
func NormalizeLanguage(language string) (string, error) {
	normalized, ok := languageAliases[strings.ToLower(strings.TrimSpace(language))]
	if !ok {
		return "", ErrUnsupportedLanguage
	}
	return normalized, nil
}

// LanguageAliases groups every accepted alias under its normalized language.
// When configured is not empty only those languages are listed.
func LanguageAliases(configured []string) map[string][]string {
	filter := mapset.NewThreadUnsafeSet(configured...)

	grouped := make(map[string]mapset.Set[string])
	for alias, normalized := range languageAliases {
		if filter.Cardinality() > 0 && !filter.Contains(normalized) {
			continue
		}
		if _, ok := grouped[normalized]; !ok {
			grouped[normalized] = mapset.NewThreadUnsafeSet[string]()
		}
		grouped[normalized].Add(alias)
	}

	result := make(map[string][]string, len(grouped))
	for normalized, aliases := range grouped {
		list := aliases.ToSlice()
		sort.Strings(list)
		result[normalized] = list
	}
	return result
}
