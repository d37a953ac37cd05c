package cursor

import (
	"slices"
	"strings"
)

// Granularity is the unit of movement while reading.
type Granularity int

const (
	GranularityDefault Granularity = iota
	GranularityCharacter
	GranularityWord
	GranularityLine
	GranularityParagraph
	GranularityPage
	GranularityWebSection
	GranularityWebList
	GranularityWebControl
)

var allGranularities = []Granularity{
	GranularityDefault,
	GranularityCharacter,
	GranularityWord,
	GranularityLine,
	GranularityParagraph,
	GranularityPage,
	GranularityWebSection,
	GranularityWebList,
	GranularityWebControl,
}

// Mask returns the movement-granularity bit of g. Default and the web
// granularities have no bit.
func (g Granularity) Mask() int {
	switch g {
	case GranularityCharacter:
		return 1
	case GranularityWord:
		return 2
	case GranularityLine:
		return 4
	case GranularityParagraph:
		return 8
	case GranularityPage:
		return 16
	}
	return 0
}

func (g Granularity) IsWeb() bool {
	return g == GranularityWebSection || g == GranularityWebList || g == GranularityWebControl
}

// htmlElement names the element type web granularities move by.
func (g Granularity) htmlElement() string {
	switch g {
	case GranularityWebSection:
		return "SECTION"
	case GranularityWebList:
		return "LIST"
	case GranularityWebControl:
		return "CONTROL"
	}
	return ""
}

func (g Granularity) String() string {
	switch g {
	case GranularityDefault:
		return "default"
	case GranularityCharacter:
		return "character"
	case GranularityWord:
		return "word"
	case GranularityLine:
		return "line"
	case GranularityParagraph:
		return "paragraph"
	case GranularityPage:
		return "page"
	case GranularityWebSection:
		return "web_section"
	case GranularityWebList:
		return "web_list"
	case GranularityWebControl:
		return "web_control"
	}
	return "unknown"
}

func ParseGranularity(name string) (Granularity, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, g := range allGranularities {
		if g.String() == name {
			return g, true
		}
	}
	return GranularityDefault, false
}

// FromMask lists the granularities a node offers: Default first, then every
// granularity whose bit is in mask, then the web granularities when the node
// hosts web content.
func FromMask(mask int, hasWebContent bool) []Granularity {
	supported := []Granularity{GranularityDefault}
	for _, g := range allGranularities {
		if bit := g.Mask(); bit != 0 && mask&bit == bit {
			supported = append(supported, g)
		}
	}
	if hasWebContent {
		supported = append(supported, GranularityWebSection, GranularityWebList, GranularityWebControl)
	}
	return supported
}

// NextBest returns the closest granularity in supported to g, preferring
// coarser units, or Default when nothing is closer.
func NextBest(g Granularity, supported []Granularity) Granularity {
	if g.IsWeb() || g == GranularityDefault {
		if slices.Contains(supported, g) {
			return g
		}
		return GranularityDefault
	}

	for candidate := g; candidate <= GranularityPage; candidate++ {
		if slices.Contains(supported, candidate) {
			return candidate
		}
	}
	for candidate := g - 1; candidate > GranularityDefault; candidate-- {
		if slices.Contains(supported, candidate) {
			return candidate
		}
	}
	return GranularityDefault
}
