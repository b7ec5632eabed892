package feature

import (
	"fmt"
	"strings"
	"unicode"
)

// SanitizeNames maps each column name to an identifier containing only ASCII letters, digits and
// underscores that does not start with a digit. Collisions get a numeric suffix. The mapping is
// derived once at training time and persisted with the model.
func SanitizeNames(names []string) map[string]string {
	mapping := make(map[string]string, len(names))
	used := make(map[string]bool, len(names))
	for _, name := range names {
		var b strings.Builder
		for _, r := range name {
			if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
				b.WriteRune(r)
				continue
			}
			b.WriteRune('_')
		}
		s := b.String()
		if s == "" || unicode.IsDigit(rune(s[0])) {
			s = "f_" + s
		}
		base := s
		for i := 2; used[s]; i++ {
			s = fmt.Sprintf("%s_%d", base, i)
		}
		used[s] = true
		mapping[name] = s
	}
	return mapping
}
