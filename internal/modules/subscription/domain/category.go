package domain

import (
	"strings"

	"github.com/samber/lo"
)

// CategoryMask is a set of blog categories stored as a bitmask.
type CategoryMask uint64

const (
	CategoryRedPosts CategoryMask = 1 << iota
	CategoryPBE
	CategoryRotations
	CategoryEsports
	CategoryReleases
)

// Category describes one bit of the mask: Name is what tenants type, Label is
// how the blog tags its posts.
type Category struct {
	Bit   CategoryMask
	Name  string
	Label string
}

var Categories = []Category{
	{Bit: CategoryRedPosts, Name: "redposts", Label: "Red Posts"},
	{Bit: CategoryPBE, Name: "pbe", Label: "PBE"},
	{Bit: CategoryRotations, Name: "rotations", Label: "Rotations"},
	{Bit: CategoryEsports, Name: "esports", Label: "Esports"},
	{Bit: CategoryReleases, Name: "releases", Label: "Releases"},
}

// AllCategories is the mask with every known category set.
var AllCategories = lo.Reduce(Categories, func(acc CategoryMask, c Category, _ int) CategoryMask {
	return acc | c.Bit
}, 0)

// ParseCategory matches a category by name or label, ignoring case and spaces.
func ParseCategory(s string) (Category, bool) {
	needle := normalizeCategory(s)
	return lo.Find(Categories, func(c Category) bool {
		return normalizeCategory(c.Name) == needle || normalizeCategory(c.Label) == needle
	})
}

// MaskOf folds category names or labels into a mask; unknown ones are ignored.
func MaskOf(values []string) CategoryMask {
	var mask CategoryMask
	for _, v := range values {
		if c, ok := ParseCategory(v); ok {
			mask |= c.Bit
		}
	}
	return mask
}

// Intersects reports whether the two sets share a category.
func (m CategoryMask) Intersects(other CategoryMask) bool {
	return m&other != 0
}

// Names lists the category names set in the mask.
func (m CategoryMask) Names() []string {
	return lo.FilterMap(Categories, func(c Category, _ int) (string, bool) {
		return c.Name, m&c.Bit != 0
	})
}

func normalizeCategory(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
}
