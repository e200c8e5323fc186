// Package profile holds the per-user fact profile and the rules for growing it.
//
// A profile maps each Category to an ordered list of short strings. Lists are
// deduplicated case-insensitively, keep first-insertion order and are capped per
// category. Merging is additive and idempotent.
package profile

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Category string

const (
	Values     Category = "values"
	Beliefs    Category = "beliefs"
	Interests  Category = "interests"
	Skills     Category = "skills"
	Desires    Category = "desires"
	Intentions Category = "intentions"
	Likes      Category = "likes"
	Dislikes   Category = "dislikes"
	Loves      Category = "loves"
	Hates      Category = "hates"
)

// Categories lists every category in presentation order.
var Categories = []Category{Values, Beliefs, Interests, Skills, Desires, Intentions, Likes, Dislikes, Loves, Hates}

const (
	DefaultFieldCap      = 50
	DefaultExtractionCap = 20
)

func ParseCategory(raw string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Categories {
		if c == known {
			return c, true
		}
	}
	return "", false
}

type Profile map[Category][]string

// Get never returns nil.
func (p Profile) Get(c Category) []string {
	if items := p[c]; items != nil {
		return items
	}
	return []string{}
}

func (p Profile) IsEmpty() bool {
	for _, c := range Categories {
		if len(p[c]) > 0 {
			return false
		}
	}
	return true
}

// Count is the number of facts across all categories.
func (p Profile) Count() int {
	total := 0
	for _, c := range Categories {
		total += len(p[c])
	}
	return total
}

func (p Profile) Clone() Profile {
	out := make(Profile, len(Categories))
	for _, c := range Categories {
		out[c] = append([]string{}, p.Get(c)...)
	}
	return out
}

// MarshalJSON always emits all ten categories so clients see a stable shape.
func (p Profile) MarshalJSON() ([]byte, error) {
	out := make(map[string][]string, len(Categories))
	for _, c := range Categories {
		out[string(c)] = p.Get(c)
	}
	return json.Marshal(out)
}

func (p *Profile) UnmarshalJSON(data []byte) error {
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode profile: %w", err)
	}
	out := make(Profile, len(Categories))
	for key, items := range raw {
		if c, ok := ParseCategory(key); ok {
			out[c] = items
		}
	}
	*p = out
	return nil
}

// Caps bounds the list length per category.
type Caps map[Category]int

func DefaultCaps() Caps {
	caps := make(Caps, len(Categories))
	for _, c := range Categories {
		caps[c] = DefaultFieldCap
	}
	caps[Intentions] = 30
	return caps
}

// CapsFromConfig overlays "category -> limit" overrides on DefaultCaps. Unknown
// categories and non-positive limits are ignored.
func CapsFromConfig(overrides map[string]int) Caps {
	caps := DefaultCaps()
	for name, limit := range overrides {
		c, ok := ParseCategory(name)
		if !ok || limit <= 0 {
			continue
		}
		caps[c] = limit
	}
	return caps
}

func (c Caps) Limit(cat Category) int {
	if limit, ok := c[cat]; ok && limit > 0 {
		return limit
	}
	return DefaultFieldCap
}
