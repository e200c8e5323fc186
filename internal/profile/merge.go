package profile

import (
	"fmt"
	"strconv"
	"strings"
)

// Merge appends the unseen items of extracted to existing, category by category.
// Existing entries are never removed or reordered; new items are dropped once a
// category reaches its cap.
func Merge(existing, extracted Profile, caps Caps) Profile {
	merged := make(Profile, len(Categories))
	for _, c := range Categories {
		merged[c] = mergeField(existing.Get(c), extracted.Get(c), caps.Limit(c))
	}
	return merged
}

func mergeField(existing, extracted []string, limit int) []string {
	out := append(make([]string, 0, len(existing)+len(extracted)), existing...)
	seen := make(map[string]struct{}, len(out)+len(extracted))
	for _, item := range existing {
		seen[foldKey(item)] = struct{}{}
	}
	for _, item := range extracted {
		if len(out) >= limit {
			break
		}
		key := foldKey(item)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

// Validate turns an untrusted extraction payload into a Profile. Scalars are
// coerced to strings, blanks and in-list duplicates dropped, and each category
// truncated to perField items. Unknown keys and non-list values are ignored.
func Validate(raw map[string]any, perField int) Profile {
	if perField <= 0 {
		perField = DefaultExtractionCap
	}
	out := make(Profile, len(Categories))
	for key, value := range raw {
		c, ok := ParseCategory(key)
		if !ok {
			continue
		}
		list, ok := value.([]any)
		if !ok {
			continue
		}
		items := make([]string, 0, min(len(list), perField))
		seen := make(map[string]struct{}, len(list))
		for _, entry := range list {
			text, ok := coerce(entry)
			if !ok {
				continue
			}
			key := foldKey(text)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			items = append(items, text)
			if len(items) == perField {
				break
			}
		}
		out[c] = items
	}
	return out
}

// Normalize applies Validate rules to an already typed profile, e.g. a user edit.
func Normalize(p Profile, caps Caps) Profile {
	raw := make(map[string]any, len(p))
	for c, items := range p {
		list := make([]any, len(items))
		for i, item := range items {
			list[i] = item
		}
		raw[string(c)] = list
	}
	validated := Validate(raw, maxCap(caps))
	for _, c := range Categories {
		if items := validated.Get(c); len(items) > caps.Limit(c) {
			validated[c] = items[:caps.Limit(c)]
		}
	}
	return validated
}

func coerce(v any) (string, bool) {
	var text string
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		text = t
	case bool:
		text = strconv.FormatBool(t)
	case float64:
		text = strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		text = strconv.Itoa(t)
	case map[string]any, []any:
		return "", false
	default:
		text = fmt.Sprint(t)
	}
	text = strings.TrimSpace(text)
	return text, text != ""
}

func foldKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func maxCap(caps Caps) int {
	highest := 0
	for _, c := range Categories {
		highest = max(highest, caps.Limit(c))
	}
	return highest
}
