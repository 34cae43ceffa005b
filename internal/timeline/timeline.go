// Package timeline holds the per-(subject,metric) dense time series the
// session core records every tick: numeric last-write-wins values
// (heart rate, coins), categorical last-write-wins values (zone
// shorthand), and boolean logical-OR flags (vibration pulses). There is
// no corpus library for this domain-specific run-length encoding, so it
// is implemented directly (see DESIGN.md).
package timeline

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrIndexOutOfRange names an out-of-range tick index. Record and
// FinalizeTick do not return it: they grow the series to cover any index
// and write earlier indices in place.
var ErrIndexOutOfRange = errors.New("timeline: tick index out of range")

// nullSentinel is encoded in place of a value for a tick that received no
// writes at all (spec.md §3: RLE encoding of "~" for null runs).
const nullSentinel = "~"

// Series is a dense, per-tick record of one numeric metric for one
// subject. A tick with no writes and no finalize call is still
// represented once FinalizeTick has filled it — values are either a
// concrete reading or an explicit null.
type Series struct {
	values  []*float64 // nil entry == null (no data this tick)
	written []bool     // tracks whether Record touched this tick before finalize
}

// NewSeries returns an empty series.
func NewSeries() *Series {
	return &Series{}
}

// Len returns the number of ticks the series covers, including ticks that
// have been written but not yet finalized.
func (s *Series) Len() int {
	return len(s.values)
}

// ensure grows the series up to and including tick i, leaving new slots
// unwritten (not yet finalized).
func (s *Series) ensure(i int) {
	for len(s.values) <= i {
		s.values = append(s.values, nil)
		s.written = append(s.written, false)
	}
}

// Record writes a numeric value at tick i. If called more than once for
// the same tick before FinalizeTick, the latest call wins (last-write-wins,
// spec.md §4.E).
func (s *Series) Record(i int, value float64) {
	s.ensure(i)
	v := value
	s.values[i] = &v
	s.written[i] = true
}

// RecordBool ORs a boolean flag into tick i. Multiple writes within the
// same tick accumulate via logical OR rather than overwriting (spec.md
// §4.E) — this is how a vibration pulse observed mid-tick survives a
// later, quieter sample in the same interval.
func (s *Series) RecordBool(i int, value bool) {
	s.ensure(i)
	if !value {
		if !s.written[i] {
			s.written[i] = true
			v := 0.0
			s.values[i] = &v
		}
		return
	}
	v := 1.0
	s.values[i] = &v
	s.written[i] = true
}

// FinalizeTick marks tick i as complete: any slot that was never written
// is left as an explicit null, matching every other tick's width so the
// series stays dense (spec.md §4.E "null-fills").
func (s *Series) FinalizeTick(i int) {
	s.ensure(i)
}

// Snapshot returns the current values, one entry per tick, with nil
// meaning an explicit null.
func (s *Series) Snapshot() []*float64 {
	out := make([]*float64, len(s.values))
	copy(out, s.values)
	return out
}

// StringSeries is a dense, per-tick record of one categorical metric (the
// zone shorthand letter, e.g. "a", "f") for one subject. It follows the
// same null-fill and last-write-wins discipline as Series, but carries
// string values instead of numeric ones (spec.md §3 "categorical
// strings are encoded verbatim").
type StringSeries struct {
	values  []*string
	written []bool
}

// NewStringSeries returns an empty categorical series.
func NewStringSeries() *StringSeries {
	return &StringSeries{}
}

func (s *StringSeries) ensure(i int) {
	for len(s.values) <= i {
		s.values = append(s.values, nil)
		s.written = append(s.written, false)
	}
}

// Record writes a categorical value at tick i, last-write-wins.
func (s *StringSeries) Record(i int, value string) {
	s.ensure(i)
	v := value
	s.values[i] = &v
	s.written[i] = true
}

// FinalizeTick marks tick i as complete, null-filling any slot that was
// never written.
func (s *StringSeries) FinalizeTick(i int) {
	s.ensure(i)
}

// Snapshot returns the current values, one entry per tick, with nil
// meaning an explicit null.
func (s *StringSeries) Snapshot() []*string {
	out := make([]*string, len(s.values))
	copy(out, s.values)
	return out
}

// rlePair is one run: a shared value and how many consecutive ticks share
// it. Encoded in JSON as a two-element array: [value, runLength]. value is
// a number, a categorical string, or the sentinel string "~" for a null
// run.
type rlePair struct {
	value     interface{}
	runLength int
}

func (p rlePair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{p.value, p.runLength})
}

func (p *rlePair) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timeline: decoding rle pair: %w", err)
	}
	var runLength int
	if err := json.Unmarshal(raw[1], &runLength); err != nil {
		return fmt.Errorf("timeline: decoding rle run length: %w", err)
	}
	p.runLength = runLength

	// A string decode covers both the null sentinel and categorical
	// values; only fall through to numeric decoding when it's not a
	// string at all.
	var s string
	if err := json.Unmarshal(raw[0], &s); err == nil {
		p.value = s
		return nil
	}
	var num float64
	if err := json.Unmarshal(raw[0], &num); err != nil {
		return fmt.Errorf("timeline: decoding rle value: %w", err)
	}
	p.value = num
	return nil
}

// EncodeRLE compresses a numeric snapshot into the wire RLE form.
func EncodeRLE(values []*float64) ([]byte, error) {
	raw := make([]interface{}, len(values))
	for i, v := range values {
		if v != nil {
			raw[i] = *v
		}
	}
	return encodeRLE(raw)
}

// EncodeRLEString compresses a categorical snapshot into the wire RLE
// form, used for the zone series (spec.md §6 "categorical strings are
// encoded verbatim").
func EncodeRLEString(values []*string) ([]byte, error) {
	raw := make([]interface{}, len(values))
	for i, v := range values {
		if v != nil {
			raw[i] = *v
		}
	}
	return encodeRLE(raw)
}

// encodeRLE collapses a slice of already-untyped values (nil meaning
// null) into the wire RLE form: a JSON array of [value, runLength] pairs,
// collapsing consecutive identical values (including consecutive nulls)
// into a single run.
func encodeRLE(raw []interface{}) ([]byte, error) {
	pairs := make([]rlePair, 0, len(raw))
	for _, v := range raw {
		encoded := v
		if encoded == nil {
			encoded = nullSentinel
		}
		if n := len(pairs); n > 0 && pairs[n-1].value == encoded {
			pairs[n-1].runLength++
			continue
		}
		pairs = append(pairs, rlePair{value: encoded, runLength: 1})
	}
	return json.Marshal(pairs)
}

func decodeRLE(data []byte) ([]rlePair, error) {
	var pairs []rlePair
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("timeline: decoding rle series: %w", err)
	}
	return pairs, nil
}

// DecodeRLE expands wire RLE bytes back into a per-tick numeric slice.
func DecodeRLE(data []byte) ([]*float64, error) {
	pairs, err := decodeRLE(data)
	if err != nil {
		return nil, err
	}
	var out []*float64
	for _, p := range pairs {
		for i := 0; i < p.runLength; i++ {
			if s, ok := p.value.(string); ok && s == nullSentinel {
				out = append(out, nil)
				continue
			}
			v := p.value.(float64)
			out = append(out, &v)
		}
	}
	return out, nil
}

// DecodeRLEString expands wire RLE bytes back into a per-tick categorical
// slice.
func DecodeRLEString(data []byte) ([]*string, error) {
	pairs, err := decodeRLE(data)
	if err != nil {
		return nil, err
	}
	var out []*string
	for _, p := range pairs {
		for i := 0; i < p.runLength; i++ {
			if s, ok := p.value.(string); ok && s == nullSentinel {
				out = append(out, nil)
				continue
			}
			v := p.value.(string)
			out = append(out, &v)
		}
	}
	return out, nil
}
