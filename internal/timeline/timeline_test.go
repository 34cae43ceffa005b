package timeline

import (
	"encoding/json"
	"testing"
)

func floatPtr(f float64) *float64 { return &f }

func TestRecordLastWriteWins(t *testing.T) {
	s := NewSeries()
	s.Record(0, 100)
	s.Record(0, 105)
	s.FinalizeTick(0)

	got := s.Snapshot()
	if len(got) != 1 || got[0] == nil || *got[0] != 105 {
		t.Fatalf("Snapshot() = %v, want [105]", got)
	}
}

func TestRecordBoolLogicalOR(t *testing.T) {
	s := NewSeries()
	s.RecordBool(0, false)
	s.RecordBool(0, true)
	s.RecordBool(0, false)
	s.FinalizeTick(0)

	got := s.Snapshot()
	if len(got) != 1 || got[0] == nil || *got[0] != 1 {
		t.Fatalf("Snapshot() = %v, want [1] (true survives OR)", got)
	}
}

func TestFinalizeTickNullFills(t *testing.T) {
	s := NewSeries()
	s.Record(0, 72)
	s.FinalizeTick(2) // ticks 1, 2 never written

	got := s.Snapshot()
	if len(got) != 3 {
		t.Fatalf("Snapshot() length = %d, want 3", len(got))
	}
	if got[0] == nil || *got[0] != 72 {
		t.Errorf("Snapshot()[0] = %v, want 72", got[0])
	}
	if got[1] != nil {
		t.Errorf("Snapshot()[1] = %v, want nil", got[1])
	}
	if got[2] != nil {
		t.Errorf("Snapshot()[2] = %v, want nil", got[2])
	}
}

func TestRLERoundTrip(t *testing.T) {
	in := []*float64{
		floatPtr(72), floatPtr(72), floatPtr(72),
		nil, nil,
		floatPtr(80),
		nil,
		floatPtr(80), floatPtr(80),
	}

	encoded, err := EncodeRLE(in)
	if err != nil {
		t.Fatalf("EncodeRLE: %v", err)
	}

	decoded, err := DecodeRLE(encoded)
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}

	if len(decoded) != len(in) {
		t.Fatalf("decoded length = %d, want %d", len(decoded), len(in))
	}
	for i := range in {
		want, got := in[i], decoded[i]
		switch {
		case want == nil && got == nil:
			continue
		case want == nil || got == nil:
			t.Errorf("index %d: got %v, want %v", i, got, want)
		case *want != *got:
			t.Errorf("index %d: got %v, want %v", i, *got, *want)
		}
	}
}

func TestRLECollapsesRuns(t *testing.T) {
	in := []*float64{floatPtr(1), floatPtr(1), floatPtr(1), floatPtr(1)}
	encoded, err := EncodeRLE(in)
	if err != nil {
		t.Fatalf("EncodeRLE: %v", err)
	}

	var pairs []json.RawMessage
	if err := json.Unmarshal(encoded, &pairs); err != nil {
		t.Fatalf("unmarshal pairs: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("expected a single collapsed run, got %d pairs: %s", len(pairs), encoded)
	}
}

func TestRLEEmptySeries(t *testing.T) {
	encoded, err := EncodeRLE(nil)
	if err != nil {
		t.Fatalf("EncodeRLE(nil): %v", err)
	}
	decoded, err := DecodeRLE(encoded)
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}
	if len(decoded) != 0 {
		t.Errorf("decoded = %v, want empty", decoded)
	}
}

func strPtr(s string) *string { return &s }

func TestStringSeriesRecordAndFinalize(t *testing.T) {
	s := NewStringSeries()
	s.Record(0, "c")
	s.Record(0, "a")
	s.FinalizeTick(2)

	got := s.Snapshot()
	if len(got) != 3 {
		t.Fatalf("Snapshot() length = %d, want 3", len(got))
	}
	if got[0] == nil || *got[0] != "a" {
		t.Errorf("Snapshot()[0] = %v, want a (last write wins)", got[0])
	}
	if got[1] != nil || got[2] != nil {
		t.Errorf("Snapshot()[1:] = %v, %v, want nil null-fills", got[1], got[2])
	}
}

func TestRLEStringRoundTrip(t *testing.T) {
	in := []*string{strPtr("c"), strPtr("c"), strPtr("a"), nil, strPtr("f")}

	encoded, err := EncodeRLEString(in)
	if err != nil {
		t.Fatalf("EncodeRLEString: %v", err)
	}
	decoded, err := DecodeRLEString(encoded)
	if err != nil {
		t.Fatalf("DecodeRLEString: %v", err)
	}
	if len(decoded) != len(in) {
		t.Fatalf("decoded length = %d, want %d", len(decoded), len(in))
	}
	for i := range in {
		want, got := in[i], decoded[i]
		switch {
		case want == nil && got == nil:
			continue
		case want == nil || got == nil:
			t.Errorf("index %d: got %v, want %v", i, got, want)
		case *want != *got:
			t.Errorf("index %d: got %v, want %v", i, *got, *want)
		}
	}
}

func TestRLEStringCollapsesRuns(t *testing.T) {
	in := []*string{strPtr("a"), strPtr("a"), strPtr("a")}
	encoded, err := EncodeRLEString(in)
	if err != nil {
		t.Fatalf("EncodeRLEString: %v", err)
	}
	var pairs []json.RawMessage
	if err := json.Unmarshal(encoded, &pairs); err != nil {
		t.Fatalf("unmarshal pairs: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("expected a single collapsed run, got %d pairs: %s", len(pairs), encoded)
	}
}
