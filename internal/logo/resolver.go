package logo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/KevinKickass/OpenLogoBridge/internal/types"
)

var ErrInvalidBlock = fmt.Errorf("%w: invalid block", types.ErrConfiguration)

// DataKind is the width class of a block value.
type DataKind int

const (
	KindBit DataKind = iota + 1
	KindWord
	KindDoubleWord
)

// Width is the number of image bytes covered by the kind.
func (k DataKind) Width() int {
	switch k {
	case KindBit:
		return 1
	case KindWord:
		return 2
	case KindDoubleWord:
		return 4
	default:
		return 0
	}
}

func (k DataKind) String() string {
	switch k {
	case KindBit:
		return "bit"
	case KindWord:
		return "word"
	case KindDoubleWord:
		return "dword"
	default:
		return "unknown"
	}
}

// Class groups the regions a consumer may bind to.
type Class int

const (
	ClassDigital Class = iota + 1
	ClassAnalog
)

func (c Class) String() string {
	switch c {
	case ClassDigital:
		return "digital"
	case ClassAnalog:
		return "analog"
	default:
		return "unknown"
	}
}

func ParseClass(s string) (Class, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "digital":
		return ClassDigital, nil
	case "analog":
		return ClassAnalog, nil
	default:
		return 0, fmt.Errorf("%w: unknown block class %q", types.ErrConfiguration, s)
	}
}

var regionKinds = map[Region]DataKind{
	RegionI:   KindBit,
	RegionQ:   KindBit,
	RegionM:   KindBit,
	RegionNI:  KindBit,
	RegionNQ:  KindBit,
	RegionVB:  KindBit,
	RegionAI:  KindWord,
	RegionAQ:  KindWord,
	RegionAM:  KindWord,
	RegionNAI: KindWord,
	RegionNAQ: KindWord,
	RegionVW:  KindWord,
	RegionVD:  KindDoubleWord,
}

// KindOf returns the data kind of a region tag.
func KindOf(tag Region) DataKind {
	return regionKinds[tag]
}

// ClassOf returns the consumer class a region belongs to.
func ClassOf(tag Region) Class {
	switch regionKinds[tag] {
	case KindBit:
		return ClassDigital
	case KindWord, KindDoubleWord:
		return ClassAnalog
	default:
		return 0
	}
}

// BlockReference is the resolved position of a named block inside the image.
type BlockReference struct {
	Name        string   `json:"name"`
	Region      Region   `json:"region"`
	ByteAddress int      `json:"byte_address"`
	BitIndex    int      `json:"bit_index"`
	Kind        DataKind `json:"-"`
}

func (r BlockReference) Valid() bool {
	return r.Kind != 0
}

// BitAddress is the transport bit address used for single-bit writes.
func (r BlockReference) BitAddress() int {
	return 8*r.ByteAddress + r.BitIndex
}

func (r BlockReference) String() string {
	if r.Kind == KindBit {
		return fmt.Sprintf("%s@%d.%d", r.Name, r.ByteAddress, r.BitIndex)
	}
	return fmt.Sprintf("%s@%d/%s", r.Name, r.ByteAddress, r.Kind)
}

// Resolve maps a block name like "AI3", "VB5.3" or "NQ2" onto its image position.
func Resolve(f *Family, name string) (BlockReference, error) {
	if f == nil {
		return BlockReference{}, fmt.Errorf("%w %q: no family", ErrInvalidBlock, name)
	}

	normalized := strings.ToUpper(strings.TrimSpace(name))
	invalid := func(reason string) (BlockReference, error) {
		return BlockReference{}, fmt.Errorf("%w %q: %s", ErrInvalidBlock, name, reason)
	}

	parts := strings.Split(normalized, ".")
	if len(parts) > 2 {
		return invalid("too many '.' separators")
	}

	tag, digits, ok := splitTag(f, parts[0])
	if !ok {
		return invalid("unknown region for family " + f.Name())
	}

	kind := regionKinds[tag]
	minLen := 2
	if kind != KindBit {
		minLen = 3
	}
	if len(normalized) < minLen {
		return invalid("name too short")
	}

	index, err := strconv.Atoi(digits)
	if err != nil {
		return invalid("bad element index")
	}
	if index > f.ImageSize()*8 {
		return invalid("element index out of range")
	}

	base, err := f.RegionBase(tag)
	if err != nil {
		return BlockReference{}, fmt.Errorf("%w %q: %v", ErrInvalidBlock, name, err)
	}

	ref := BlockReference{Name: normalized, Region: tag, Kind: kind}

	if base == 0 {
		// Raw memory: the index is the byte address itself.
		ref.ByteAddress = index
		if tag == RegionVB {
			if len(parts) != 2 {
				return invalid("bit index required")
			}
			bit, ok := parseBit(parts[1])
			if !ok {
				return invalid("bit index must be 0..7")
			}
			ref.BitIndex = bit
		} else if len(parts) != 1 {
			return invalid("bit index not allowed")
		}
	} else {
		if index < 1 {
			return invalid("element index starts at 1")
		}
		switch kind {
		case KindBit:
			// A dotted suffix is tolerated but the bit always follows from the index.
			if len(parts) == 2 {
				if _, ok := parseBit(parts[1]); !ok {
					return invalid("bit index must be 0..7")
				}
			}
			ref.ByteAddress = base + (index-1)/8
			ref.BitIndex = (index - 1) % 8
		default:
			if len(parts) != 1 {
				return invalid("bit index not allowed")
			}
			ref.ByteAddress = base + (index-1)*2
		}
	}

	if ref.ByteAddress < 0 || ref.ByteAddress >= f.ImageSize() || ref.ByteAddress+kind.Width() > f.ImageSize() {
		return invalid(fmt.Sprintf("address %d outside image of %d bytes", ref.ByteAddress, f.ImageSize()))
	}

	return ref, nil
}

// ResolveFor resolves name and checks that it belongs to the given class.
func ResolveFor(f *Family, class Class, name string) (BlockReference, error) {
	ref, err := Resolve(f, name)
	if err != nil {
		return BlockReference{}, err
	}
	if ClassOf(ref.Region) != class {
		return BlockReference{}, fmt.Errorf("%w %q: not a %s block", ErrInvalidBlock, name, class)
	}
	return ref, nil
}

// splitTag matches the longest known region prefix followed by digits only.
func splitTag(f *Family, head string) (Region, string, bool) {
	for _, tag := range f.order {
		if !strings.HasPrefix(head, string(tag)) {
			continue
		}
		rest := head[len(tag):]
		if rest == "" || !isDigits(rest) {
			continue
		}
		return tag, rest, true
	}
	return "", "", false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func parseBit(s string) (int, bool) {
	if len(s) != 1 || s[0] < '0' || s[0] > '7' {
		return 0, false
	}
	return int(s[0] - '0'), true
}
