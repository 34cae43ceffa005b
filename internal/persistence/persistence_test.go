package persistence

import (
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/kckern/daylightfit/internal/metrics"
	"github.com/kckern/daylightfit/internal/timeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

func TestNormalizeV3PassesThrough(t *testing.T) {
	doc := SessionDocument{
		Version: 3,
		Session: SessionInfo{
			ID:    "sess-1",
			Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got, err := Normalize(data)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got.Session.ID != "sess-1" || got.Version != 3 {
		t.Errorf("got = %+v, want session.id=sess-1 version=3", got)
	}
}

func TestIsV3RequiresBothVersionAndSessionID(t *testing.T) {
	// version: 3 with a nested session.id is v3.
	if !IsV3([]byte(`{"version": 3, "session": {"id": "sess-1"}}`)) {
		t.Error("version 3 with session.id should be detected as v3")
	}
	// A flat document carrying a top-level sessionId and no version is
	// the shape this module itself wrote before v3 — it must be read as
	// v2, not v3 (spec.md §6, §8 scenario S6).
	if IsV3([]byte(`{"sessionId": "sess-2"}`)) {
		t.Error("a top-level sessionId with no version should not be detected as v3")
	}
	// version: 3 with no nested session.id is not a valid v3 document.
	if IsV3([]byte(`{"version": 3}`)) {
		t.Error("version 3 without session.id should not be detected as v3")
	}
}

func TestNormalizeV2StripsLegacyFields(t *testing.T) {
	legacy := `{
		"version": 2,
		"sessionId": "sess-2",
		"startedAt": "2026-01-01T00:00:00Z",
		"coinsTotal": 42,
		"voiceMemos": ["a.mp3"],
		"deviceAssignments": {"hr-1": "alice"},
		"_persistWarnings": ["clock skew"]
	}`

	got, err := Normalize([]byte(legacy))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got.Version != CurrentVersion {
		t.Errorf("Version = %d, want %d", got.Version, CurrentVersion)
	}
	if got.Session.ID != "sess-2" || got.Totals.Coins != 42 {
		t.Errorf("got = %+v", got)
	}

	out, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, field := range []string{"voiceMemos", "deviceAssignments", "_persistWarnings"} {
		if strings.Contains(string(out), `"`+field+`"`) {
			t.Errorf("normalized document still carries legacy field %q: %s", field, out)
		}
	}
}

func TestNormalizeRejectsUnknownVersion(t *testing.T) {
	if _, err := Normalize([]byte(`{"version": 99}`)); err == nil {
		t.Fatal("expected an error for an unsupported version")
	}
}

func TestNormalizeRejectsVersion3WithoutSessionID(t *testing.T) {
	if _, err := Normalize([]byte(`{"version": 3}`)); err == nil {
		t.Fatal("expected an error for a version-3 document missing session.id")
	}
}

func floatPtr(f float64) *float64 { return &f }

func TestReconstructDropoutsEmitsEventOnNullAfterNonNull(t *testing.T) {
	hr := []*float64{floatPtr(72), floatPtr(75), nil, nil, floatPtr(80)}
	coinsTotal := []*float64{floatPtr(2), floatPtr(4), floatPtr(4), floatPtr(4), floatPtr(6)}

	got := ReconstructDropouts("alice", hr, coinsTotal)
	if len(got) != 1 {
		t.Fatalf("ReconstructDropouts = %v, want exactly 1 event", got)
	}
	if got[0].ParticipantID != "alice" || got[0].Tick != 1 || got[0].Value != 4 {
		t.Fatalf("event = %+v, want {alice, tick 1, value 4}", got[0])
	}
	if got[0].ID != "alice-dropout-1" {
		t.Errorf("event ID = %q, want alice-dropout-1", got[0].ID)
	}
}

func TestReconstructDropoutsLeavesLeadingNullsAlone(t *testing.T) {
	hr := []*float64{nil, nil, floatPtr(72)}
	coinsTotal := []*float64{nil, nil, floatPtr(2)}
	got := ReconstructDropouts("alice", hr, coinsTotal)
	if len(got) != 0 {
		t.Fatalf("a leading run of nulls before the series started is not a dropout, got %v", got)
	}
}

func TestReconstructDropoutsAllNullEmitsNoEvents(t *testing.T) {
	hr := []*float64{nil, nil, nil}
	coinsTotal := []*float64{nil, nil, nil}
	got := ReconstructDropouts("alice", hr, coinsTotal)
	if len(got) != 0 {
		t.Fatalf("a series that never started should emit no dropout events, got %v", got)
	}
}

func TestReconstructDropoutsStillActiveAtEndEmitsNoEvent(t *testing.T) {
	hr := []*float64{floatPtr(72), floatPtr(75)}
	coinsTotal := []*float64{floatPtr(2), floatPtr(4)}
	got := ReconstructDropouts("alice", hr, coinsTotal)
	if len(got) != 0 {
		t.Fatalf("a participant still active when the series ends is not a dropout, got %v", got)
	}
}

func TestDecodeParticipantSeriesRoundTripsIntoReconstructDropouts(t *testing.T) {
	hrRLE, err := timeline.EncodeRLE([]*float64{floatPtr(72), floatPtr(75), nil, floatPtr(80)})
	if err != nil {
		t.Fatalf("EncodeRLE: %v", err)
	}
	coinsRLE, err := timeline.EncodeRLE([]*float64{floatPtr(2), floatPtr(4), floatPtr(4), floatPtr(6)})
	if err != nil {
		t.Fatalf("EncodeRLE: %v", err)
	}

	hr, coinsTotal, err := DecodeParticipantSeries(ParticipantSeries{HR: string(hrRLE), CoinsTotal: string(coinsRLE)})
	if err != nil {
		t.Fatalf("DecodeParticipantSeries: %v", err)
	}

	got := ReconstructDropouts("alice", hr, coinsTotal)
	if len(got) != 1 || got[0].Tick != 1 || got[0].Value != 4 {
		t.Fatalf("got = %v, want one dropout at tick 1 with value 4", got)
	}
}

func TestDecodeParticipantSeriesEmptyIsNoOp(t *testing.T) {
	hr, coinsTotal, err := DecodeParticipantSeries(ParticipantSeries{})
	if err != nil {
		t.Fatalf("DecodeParticipantSeries: %v", err)
	}
	if hr != nil || coinsTotal != nil {
		t.Fatalf("an empty participant series should decode to nil, got hr=%v coinsTotal=%v", hr, coinsTotal)
	}
}

func TestStoreSaveAndLoadRoundTrip(t *testing.T) {
	dir, err := os.MkdirTemp("", "persistence-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)

	reg := metrics.New(prometheus.NewRegistry())
	store, err := New(dir, zerolog.New(os.Stderr), reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	doc := SessionDocument{
		Session: SessionInfo{
			ID:    "sess-3",
			Start: time.Now().UTC().Truncate(time.Second),
		},
		Totals: Totals{Coins: 10},
	}
	if err := store.Save(doc); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load("sess-3")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Session.ID != doc.Session.ID || got.Totals.Coins != doc.Totals.Coins {
		t.Fatalf("got = %+v, want %+v", got, doc)
	}
}
