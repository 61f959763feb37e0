package service

import (
	"cmp"
	"maps"
	"slices"
	"strings"
)

// rewriteKeys orders keys longest first so a URL is never clobbered by one of
// its own prefixes
func rewriteKeys(m map[string]string) []string {
	keys := slices.Collect(maps.Keys(m))
	slices.SortFunc(keys, func(a, b string) int {
		if c := cmp.Compare(len(b), len(a)); c != 0 {
			return c
		}

		return strings.Compare(a, b)
	})

	return keys
}

func continuesURL(b byte) bool {
	return b == '-' || b == '_' ||
		'0' <= b && b <= '9' ||
		'a' <= b && b <= 'z' ||
		'A' <= b && b <= 'Z'
}

// ApplyRewrites replaces every occurrence of a map key in body with its value
// in a single pass. A key only matches when it is not immediately followed by
// characters that would make it part of a longer URL. It returns the new body
// and the number of replacements made.
func ApplyRewrites(body string, m map[string]string) (string, int) {
	if body == "" || len(m) == 0 {
		return body, 0
	}

	keys := rewriteKeys(m)

	var b strings.Builder
	n := 0

	for i := 0; i < len(body); {
		next := len(body)
		var hit string

		// earliest occurrence wins, longer keys win ties
		for _, k := range keys {
			j := indexFrom(body, k, i)
			for j >= 0 && j+len(k) < len(body) && continuesURL(body[j+len(k)]) {
				j = indexFrom(body, k, j+1)
			}

			if j >= 0 && j < next {
				next, hit = j, k
			}
		}

		if hit == "" {
			b.WriteString(body[i:])
			break
		}

		b.WriteString(body[i:next])
		b.WriteString(m[hit])
		i = next + len(hit)
		n++
	}

	if n == 0 {
		return body, 0
	}

	return b.String(), n
}

func indexFrom(s, sub string, from int) int {
	if from > len(s) {
		return -1
	}

	j := strings.Index(s[from:], sub)
	if j < 0 {
		return -1
	}

	return from + j
}

// mergeRewrites adds next on top of the accumulated map
func mergeRewrites(acc, next map[string]string) map[string]string {
	out := make(map[string]string, len(acc)+len(next))
	maps.Copy(out, acc)
	maps.Copy(out, next)

	return out
}
