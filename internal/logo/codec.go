package logo

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is a decoded block value. Only the field matching Kind is meaningful.
type Value struct {
	Kind  DataKind
	Bit   bool
	Word  int16
	DWord uint32
}

func BitValue(b bool) Value {
	return Value{Kind: KindBit, Bit: b}
}

func WordValue(w int16) Value {
	return Value{Kind: KindWord, Word: w}
}

func DWordValue(d uint32) Value {
	return Value{Kind: KindDoubleWord, DWord: d}
}

// Int64 returns the numeric value; bits map to 0/1.
func (v Value) Int64() int64 {
	switch v.Kind {
	case KindBit:
		if v.Bit {
			return 1
		}
		return 0
	case KindWord:
		return int64(v.Word)
	case KindDoubleWord:
		return int64(v.DWord)
	default:
		return 0
	}
}

// Interface returns a JSON friendly representation.
func (v Value) Interface() any {
	switch v.Kind {
	case KindBit:
		return v.Bit
	case KindWord:
		return v.Word
	case KindDoubleWord:
		return v.DWord
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindBit:
		if v.Bit {
			return "ON"
		}
		return "OFF"
	case KindWord, KindDoubleWord:
		return strconv.FormatInt(v.Int64(), 10)
	default:
		return "UNDEF"
	}
}

// Extract slices the bytes of ref out of a full image.
func Extract(ref BlockReference, image []byte) ([]byte, error) {
	width := ref.Kind.Width()
	if width == 0 {
		return nil, fmt.Errorf("block %s has no data kind", ref.Name)
	}
	end := ref.ByteAddress + width
	if ref.ByteAddress < 0 || end > len(image) {
		return nil, fmt.Errorf("block %s [%d:%d] outside image of %d bytes", ref.Name, ref.ByteAddress, end, len(image))
	}
	return image[ref.ByteAddress:end], nil
}

// Decode interprets the raw block bytes (big-endian) according to ref.
func Decode(ref BlockReference, data []byte) (Value, error) {
	if len(data) < ref.Kind.Width() || ref.Kind.Width() == 0 {
		return Value{}, fmt.Errorf("block %s: need %d bytes, got %d", ref.Name, ref.Kind.Width(), len(data))
	}

	switch ref.Kind {
	case KindBit:
		return BitValue(data[0]&(1<<uint(ref.BitIndex)) != 0), nil
	case KindWord:
		return WordValue(int16(binary.BigEndian.Uint16(data))), nil
	default:
		return DWordValue(binary.BigEndian.Uint32(data)), nil
	}
}

// Encode renders v into a fresh buffer of the width of ref.
// A bit encodes as its image byte with only the bit's mask set, so Decode reads it back.
func Encode(ref BlockReference, v Value) ([]byte, error) {
	if v.Kind != ref.Kind {
		return nil, fmt.Errorf("block %s: cannot write %s value to %s block", ref.Name, v.Kind, ref.Kind)
	}

	switch ref.Kind {
	case KindBit:
		if v.Bit {
			return []byte{byte(1) << uint(ref.BitIndex)}, nil
		}
		return []byte{0x00}, nil
	case KindWord:
		buf := make([]byte, 2)
		binary.BigEndian.PutUint16(buf, uint16(v.Word))
		return buf, nil
	case KindDoubleWord:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, v.DWord)
		return buf, nil
	default:
		return nil, fmt.Errorf("block %s has no data kind", ref.Name)
	}
}

// ValueOf converts a loosely typed command value (JSON, CLI) to a Value of kind.
// Words accept -32768..65535, double words -2^31..2^32-1; larger magnitudes are rejected.
func ValueOf(kind DataKind, in any) (Value, error) {
	switch kind {
	case KindBit:
		switch x := in.(type) {
		case bool:
			return BitValue(x), nil
		case string:
			switch strings.ToUpper(strings.TrimSpace(x)) {
			case "ON", "TRUE", "1":
				return BitValue(true), nil
			case "OFF", "FALSE", "0":
				return BitValue(false), nil
			}
			return Value{}, fmt.Errorf("invalid bit value %q", x)
		}
		n, err := toInt64(in)
		if err != nil {
			return Value{}, err
		}
		if n != 0 && n != 1 {
			return Value{}, fmt.Errorf("invalid bit value %d", n)
		}
		return BitValue(n == 1), nil

	case KindWord:
		n, err := toInt64(in)
		if err != nil {
			return Value{}, err
		}
		if n < math.MinInt16 || n > math.MaxUint16 {
			return Value{}, fmt.Errorf("value %d out of word range", n)
		}
		return WordValue(int16(uint16(n))), nil

	case KindDoubleWord:
		n, err := toInt64(in)
		if err != nil {
			return Value{}, err
		}
		if n < math.MinInt32 || n > math.MaxUint32 {
			return Value{}, fmt.Errorf("value %d out of dword range", n)
		}
		return DWordValue(uint32(n)), nil

	default:
		return Value{}, fmt.Errorf("unknown data kind %d", kind)
	}
}

func toInt64(in any) (int64, error) {
	switch x := in.(type) {
	case int:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("value %v is not an integer", x)
		}
		return int64(x), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 0, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid numeric value %q: %w", x, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unsupported value type %T", in)
	}
}
