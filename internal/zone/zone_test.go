package zone

import (
	"testing"

	"github.com/kckern/daylightfit/internal/config"
)

func testZones() []config.ZoneEntry {
	return []config.ZoneEntry{
		{ID: "a", Min: 160},
		{ID: "b", Min: 140},
		{ID: "c", Min: 120},
		{ID: "d", Min: 100},
		{ID: "e", Min: 0},
	}
}

func TestClassify(t *testing.T) {
	c := New(testZones())

	cases := []struct {
		hr   int
		want string
	}{
		{200, "a"},
		{160, "a"},
		{159, "b"},
		{140, "b"},
		{100, "d"},
		{99, "e"},
		{0, "e"},
	}
	for _, tc := range cases {
		if got := c.Classify(tc.hr); got != tc.want {
			t.Errorf("Classify(%d) = %q, want %q", tc.hr, got, tc.want)
		}
	}
}

func TestClassifyUsesDefaultTableWhenEmpty(t *testing.T) {
	c := New(nil)
	if got := c.Classify(170); got != "a" {
		t.Errorf("Classify(170) with default table = %q, want \"a\"", got)
	}
}

func TestMidpoint(t *testing.T) {
	c := New(testZones())

	// Topmost zone, open-ended above: min + 15.
	mid, err := c.Midpoint("a")
	if err != nil || mid != 175 {
		t.Errorf("Midpoint(a) = %d, %v, want 175, nil", mid, err)
	}

	// Every other zone: average of its own min and the next-higher zone's min.
	mid, err = c.Midpoint("b")
	if err != nil || mid != 150 {
		t.Errorf("Midpoint(b) = %d, %v, want 150, nil", mid, err)
	}
	mid, err = c.Midpoint("e")
	if err != nil || mid != 50 {
		t.Errorf("Midpoint(e) = %d, %v, want 50, nil", mid, err)
	}
}

func TestMidpointUnknownZone(t *testing.T) {
	c := New(testZones())
	if _, err := c.Midpoint("z"); err != ErrUnknownZone {
		t.Errorf("Midpoint(z) error = %v, want ErrUnknownZone", err)
	}
}

func TestValidate(t *testing.T) {
	c := New(testZones())
	if err := c.Validate("a"); err != nil {
		t.Errorf("Validate(a) = %v, want nil", err)
	}
	if err := c.Validate("zz"); err != ErrUnknownZone {
		t.Errorf("Validate(zz) = %v, want ErrUnknownZone", err)
	}
}
