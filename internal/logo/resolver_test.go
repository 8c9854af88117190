package logo

import (
	"errors"
	"testing"

	"github.com/KevinKickass/OpenLogoBridge/internal/types"
)

func family(t *testing.T, name string) *Family {
	t.Helper()
	f, err := NewCatalog().Family(name)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestResolveValid(t *testing.T) {
	tests := []struct {
		family string
		name   string
		addr   int
		bit    int
		kind   DataKind
		region Region
	}{
		{Family0BA8, "NAI1", 1262, 0, KindWord, RegionNAI},
		{Family0BA8, "AI3", 1036, 0, KindWord, RegionAI},
		{Family0BA8, "Q2", 1064, 1, KindBit, RegionQ},
		{Family0BA8, "I9", 1025, 0, KindBit, RegionI},
		{Family0BA8, "I8", 1024, 7, KindBit, RegionI},
		{Family0BA8, "NI1", 1246, 0, KindBit, RegionNI},
		{Family0BA8, "NQ16", 1391, 7, KindBit, RegionNQ},
		{Family0BA8, "NAQ2", 1408, 0, KindWord, RegionNAQ},
		{Family0BA8, "M27", 1107, 2, KindBit, RegionM},
		{Family0BA7, "AM1", 952, 0, KindWord, RegionAM},
		{Family0BA7, "AQ2", 946, 0, KindWord, RegionAQ},
		{Family0BA8, "VB5.3", 5, 3, KindBit, RegionVB},
		{Family0BA8, "VB0.0", 0, 0, KindBit, RegionVB},
		{Family0BA8, "VW10", 10, 0, KindWord, RegionVW},
		{Family0BA8, "VD20", 20, 0, KindDoubleWord, RegionVD},
		{Family0BA8, " ai3 ", 1036, 0, KindWord, RegionAI},
	}

	for _, tt := range tests {
		ref, err := Resolve(family(t, tt.family), tt.name)
		if err != nil {
			t.Errorf("Resolve(%s, %q) error: %v", tt.family, tt.name, err)
			continue
		}
		if ref.ByteAddress != tt.addr || ref.BitIndex != tt.bit || ref.Kind != tt.kind || ref.Region != tt.region {
			t.Errorf("Resolve(%s, %q) = %+v, want addr=%d bit=%d kind=%s region=%s",
				tt.family, tt.name, ref, tt.addr, tt.bit, tt.kind, tt.region)
		}
	}
}

func TestResolveHardwareBitIgnoresSuffix(t *testing.T) {
	f := family(t, Family0BA8)

	ref, err := Resolve(f, "Q3.2")
	if err != nil {
		t.Fatalf("Q3.2: %v", err)
	}
	if ref.ByteAddress != 1064 || ref.BitIndex != 2 {
		t.Errorf("Q3.2 = %+v", ref)
	}

	ref, err = Resolve(f, "Q3.7")
	if err != nil {
		t.Fatalf("Q3.7: %v", err)
	}
	if ref.BitIndex != 2 {
		t.Errorf("suffix must not select the bit, got %d", ref.BitIndex)
	}
}

func TestResolveInvalid(t *testing.T) {
	tests := []struct {
		family string
		name   string
	}{
		{Family0BA7, "NI1"},   // region missing in 0BA7
		{Family0BA7, "NAQ1"},  // region missing in 0BA7
		{Family0BA8, "VB5"},   // VB needs a bit
		{Family0BA8, "VB5.8"}, // bit out of range
		{Family0BA8, "VB5.-1"},
		{Family0BA8, "VB5.a"},
		{Family0BA8, "VW10.1"},
		{Family0BA8, "AI3.1"},
		{Family0BA8, "I1.2.3"},
		{Family0BA8, "Q0"}, // hardware index starts at 1
		{Family0BA8, "AI0"},
		{Family0BA8, "X1"},
		{Family0BA8, "AI"},
		{Family0BA8, "I"},
		{Family0BA8, ""},
		{Family0BA8, "AIx"},
		{Family0BA8, "AI-1"},
		{Family0BA7, "VB984.0"},
		{Family0BA7, "VW983"}, // word would run past the image
		{Family0BA8, "VD1467"},
		{Family0BA8, "NAQ33"},
		{Family0BA8, "AI99999999999999999999"},
	}

	for _, tt := range tests {
		ref, err := Resolve(family(t, tt.family), tt.name)
		if err == nil {
			t.Errorf("Resolve(%s, %q) = %+v, want error", tt.family, tt.name, ref)
			continue
		}
		if !errors.Is(err, ErrInvalidBlock) || !errors.Is(err, types.ErrConfiguration) {
			t.Errorf("Resolve(%s, %q) error %v is not an invalid block configuration error", tt.family, tt.name, err)
		}
		if ref.Valid() {
			t.Errorf("Resolve(%s, %q) returned a valid reference on error", tt.family, tt.name)
		}
	}
}

func TestResolveImageBoundary(t *testing.T) {
	f := family(t, Family0BA7)

	ref, err := Resolve(f, "VB983.0")
	if err != nil {
		t.Fatalf("last image byte must resolve: %v", err)
	}
	if ref.ByteAddress != f.ImageSize()-1 {
		t.Errorf("got address %d", ref.ByteAddress)
	}

	if _, err := Resolve(f, "VB984.0"); err == nil {
		t.Error("address equal to image size must be rejected")
	}
}

func TestResolveDeterministic(t *testing.T) {
	f := family(t, Family0BA8)
	for _, name := range []string{"AI3", "VB5.3", "NQ4", "VD8"} {
		a, errA := Resolve(f, name)
		b, errB := Resolve(f, name)
		if a != b || (errA == nil) != (errB == nil) {
			t.Errorf("Resolve(%q) not deterministic: %+v vs %+v", name, a, b)
		}
	}
}

func TestResolveFor(t *testing.T) {
	f := family(t, Family0BA8)

	if _, err := ResolveFor(f, ClassDigital, "Q1"); err != nil {
		t.Errorf("Q1 digital: %v", err)
	}
	if _, err := ResolveFor(f, ClassAnalog, "VD4"); err != nil {
		t.Errorf("VD4 analog: %v", err)
	}
	if _, err := ResolveFor(f, ClassDigital, "AI1"); !errors.Is(err, ErrInvalidBlock) {
		t.Errorf("AI1 as digital must fail, got %v", err)
	}
	if _, err := ResolveFor(f, ClassAnalog, "VB1.1"); !errors.Is(err, ErrInvalidBlock) {
		t.Errorf("VB1.1 as analog must fail, got %v", err)
	}
}

func TestBitAddress(t *testing.T) {
	ref, err := Resolve(family(t, Family0BA8), "Q2")
	if err != nil {
		t.Fatal(err)
	}
	if got := ref.BitAddress(); got != 8*1064+1 {
		t.Errorf("BitAddress = %d, want %d", got, 8*1064+1)
	}
}

func TestParseClass(t *testing.T) {
	if c, err := ParseClass("Analog"); err != nil || c != ClassAnalog {
		t.Errorf("ParseClass(Analog) = %v, %v", c, err)
	}
	if _, err := ParseClass("switch"); !errors.Is(err, types.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}
