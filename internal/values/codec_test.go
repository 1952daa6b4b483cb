package values

import (
	"strings"
	"testing"
)

// TestEncodeOutputsRoundTrip verifies the wire form preserves the cases
// that plain JSON would mangle: int64 beyond float53 precision, file
// identity mode, and nesting.
func TestEncodeOutputsRoundTrip(t *testing.T) {
	big := int64(1) << 60
	outs := []Output{
		{Name: "counts", Values: []Value{big, int64(-7)}},
		{Name: "report", Values: []Value{
			NewBag("b", "a", NewFileRefMode("/data/r.txt", MetadataIdentity)),
			[]Value{"pair", 3.5},
			nil,
		}},
	}

	data, err := EncodeOutputs(outs)
	if err != nil {
		t.Fatalf("EncodeOutputs() error = %v", err)
	}
	got, err := DecodeOutputs(data)
	if err != nil {
		t.Fatalf("DecodeOutputs() error = %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("decoded %d outputs, want 2", len(got))
	}
	if got[0].Name != "counts" || got[1].Name != "report" {
		t.Errorf("output names = %s, %s", got[0].Name, got[1].Name)
	}
	if v, ok := got[0].Values[0].(int64); !ok || v != big {
		t.Errorf("large int64 round-trip = %v (%T), want %d", got[0].Values[0], got[0].Values[0], big)
	}
	for i, v := range outs[1].Values {
		if !Same(got[1].Values[i], v) {
			t.Errorf("report value %d = %v, want %v", i, got[1].Values[i], v)
		}
	}
	fr, ok := got[1].Values[0].(*Bag).At(2).(*FileRef)
	if !ok || fr.Mode != MetadataIdentity {
		t.Errorf("file ref mode not preserved: %+v", got[1].Values[0])
	}
}

// TestEncodeJSONUnsupported verifies unknown dynamic types are rejected
// rather than silently mis-encoded.
func TestEncodeJSONUnsupported(t *testing.T) {
	type opaque struct{ n int }

	_, err := EncodeJSON(opaque{n: 1})
	if err == nil || !strings.Contains(err.Error(), "unencodable") {
		t.Errorf("EncodeJSON(struct) error = %v, want unencodable", err)
	}

	_, err = EncodeOutputs([]Output{{Name: "bad", Values: []Value{make(chan int)}}})
	if err == nil || !strings.Contains(err.Error(), `output "bad"`) {
		t.Errorf("EncodeOutputs(chan) error = %v, want output name context", err)
	}
}
