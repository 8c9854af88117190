package logo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/KevinKickass/OpenLogoBridge/internal/types"
)

// Region is the tag of a memory region inside the DB1 image.
type Region string

const (
	RegionVB  Region = "VB"
	RegionVW  Region = "VW"
	RegionVD  Region = "VD"
	RegionI   Region = "I"
	RegionQ   Region = "Q"
	RegionM   Region = "M"
	RegionAI  Region = "AI"
	RegionAQ  Region = "AQ"
	RegionAM  Region = "AM"
	RegionNI  Region = "NI"
	RegionNAI Region = "NAI"
	RegionNQ  Region = "NQ"
	RegionNAQ Region = "NAQ"
)

// Supported firmware families.
const (
	Family0BA7 = "0BA7"
	Family0BA8 = "0BA8"
)

var (
	ErrUnknownFamily = fmt.Errorf("%w: unknown PLC family", types.ErrConfiguration)
	ErrUnknownRegion = fmt.Errorf("%w: unknown memory region", types.ErrConfiguration)
)

// Family describes the DB1 layout of one firmware family. Immutable after construction.
type Family struct {
	name  string
	size  int
	bases map[Region]int
	order []Region
}

func (f *Family) Name() string {
	return f.name
}

// ImageSize is the number of bytes read per poll cycle.
func (f *Family) ImageSize() int {
	return f.size
}

// RegionBase returns the byte offset of the region inside the image.
func (f *Family) RegionBase(tag Region) (int, error) {
	base, ok := f.bases[tag]
	if !ok {
		return 0, fmt.Errorf("%w %q in family %s", ErrUnknownRegion, tag, f.name)
	}
	return base, nil
}

// Regions lists the tags known to the family, longest first.
func (f *Family) Regions() []Region {
	return append([]Region(nil), f.order...)
}

func sortedRegions(bases map[Region]int) []Region {
	regions := make([]Region, 0, len(bases))
	for tag := range bases {
		regions = append(regions, tag)
	}
	sort.Slice(regions, func(i, j int) bool {
		if len(regions[i]) != len(regions[j]) {
			return len(regions[i]) > len(regions[j])
		}
		return regions[i] < regions[j]
	})
	return regions
}

// Catalog holds all known families. Built once and shared by reference.
type Catalog struct {
	families map[string]*Family
}

func NewCatalog() *Catalog {
	c := &Catalog{
		families: map[string]*Family{
			Family0BA7: {
				name: Family0BA7,
				size: 984,
				bases: map[Region]int{
					RegionVB: 0,
					RegionVW: 0,
					RegionVD: 0,
					RegionI:  923,
					RegionQ:  942,
					RegionM:  948,
					RegionAI: 926,
					RegionAQ: 944,
					RegionAM: 952,
				},
			},
			Family0BA8: {
				name: Family0BA8,
				size: 1470,
				bases: map[Region]int{
					RegionVB:  0,
					RegionVW:  0,
					RegionVD:  0,
					RegionI:   1024,
					RegionQ:   1064,
					RegionM:   1104,
					RegionAI:  1032,
					RegionAQ:  1072,
					RegionAM:  1118,
					RegionNI:  1246,
					RegionNAI: 1262,
					RegionNQ:  1390,
					RegionNAQ: 1406,
				},
			},
		},
	}
	for _, f := range c.families {
		f.order = sortedRegions(f.bases)
	}
	return c
}

// Family looks up a family by name (case-insensitive).
func (c *Catalog) Family(name string) (*Family, error) {
	f, ok := c.families[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownFamily, name)
	}
	return f, nil
}

func (c *Catalog) RegionBase(family string, tag Region) (int, error) {
	f, err := c.Family(family)
	if err != nil {
		return 0, err
	}
	return f.RegionBase(tag)
}

func (c *Catalog) ImageSize(family string) (int, error) {
	f, err := c.Family(family)
	if err != nil {
		return 0, err
	}
	return f.ImageSize(), nil
}

// Families returns the sorted family names.
func (c *Catalog) Families() []string {
	names := make([]string, 0, len(c.families))
	for name := range c.families {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
