package values

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// wireValue is the tagged JSON form a Value takes in cache entries and the
// run journal. Integers travel as strings so int64 survives the float64
// round-trip JSON numbers would force.
type wireValue struct {
	T     string      `json:"t"`
	S     string      `json:"s,omitempty"`
	F     float64     `json:"f,omitempty"`
	B     bool        `json:"b,omitempty"`
	Path  string      `json:"path,omitempty"`
	Mode  string      `json:"mode,omitempty"`
	Elems []wireValue `json:"elems,omitempty"`
}

const (
	wireString = "string"
	wireBool   = "bool"
	wireInt    = "int"
	wireFloat  = "float"
	wireFile   = "file"
	wireBag    = "bag"
	wireTuple  = "tuple"
	wireNull   = "null"
)

func toWire(v Value) (wireValue, error) {
	switch tv := v.(type) {
	case string:
		return wireValue{T: wireString, S: tv}, nil
	case bool:
		return wireValue{T: wireBool, B: tv}, nil
	case int:
		return wireValue{T: wireInt, S: strconv.FormatInt(int64(tv), 10)}, nil
	case int64:
		return wireValue{T: wireInt, S: strconv.FormatInt(tv, 10)}, nil
	case float64:
		return wireValue{T: wireFloat, F: tv}, nil
	case *FileRef:
		w := wireValue{T: wireFile, Path: tv.Path}
		if tv.Mode == MetadataIdentity {
			w.Mode = "metadata"
		}
		return w, nil
	case *Bag:
		w := wireValue{T: wireBag}
		for _, e := range tv.Elements() {
			we, err := toWire(e)
			if err != nil {
				return wireValue{}, err
			}
			w.Elems = append(w.Elems, we)
		}
		return w, nil
	case []Value:
		w := wireValue{T: wireTuple}
		for _, e := range tv {
			we, err := toWire(e)
			if err != nil {
				return wireValue{}, err
			}
			w.Elems = append(w.Elems, we)
		}
		return w, nil
	case nil:
		return wireValue{T: wireNull}, nil
	}
	return wireValue{}, fmt.Errorf("unencodable value of type %T", v)
}

func fromWire(w wireValue) (Value, error) {
	switch w.T {
	case wireString:
		return w.S, nil
	case wireBool:
		return w.B, nil
	case wireInt:
		n, err := strconv.ParseInt(w.S, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed int value %q: %w", w.S, err)
		}
		return n, nil
	case wireFloat:
		return w.F, nil
	case wireFile:
		mode := ContentIdentity
		if w.Mode == "metadata" {
			mode = MetadataIdentity
		}
		return NewFileRefMode(w.Path, mode), nil
	case wireBag:
		elems := make([]Value, 0, len(w.Elems))
		for _, we := range w.Elems {
			e, err := fromWire(we)
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
		}
		return NewBag(elems...), nil
	case wireTuple:
		elems := make([]Value, 0, len(w.Elems))
		for _, we := range w.Elems {
			e, err := fromWire(we)
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
		}
		return elems, nil
	case wireNull:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown wire value tag %q", w.T)
}

// EncodeJSON renders a value into its tagged wire form.
func EncodeJSON(v Value) ([]byte, error) {
	w, err := toWire(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// DecodeJSON reverses EncodeJSON.
func DecodeJSON(data []byte) (Value, error) {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to parse wire value: %w", err)
	}
	return fromWire(w)
}

type wireOutput struct {
	Name   string      `json:"name"`
	Values []wireValue `json:"values"`
}

// EncodeOutputs renders a task's named outputs into their wire form.
func EncodeOutputs(outs []Output) ([]byte, error) {
	wire := make([]wireOutput, 0, len(outs))
	for _, out := range outs {
		wo := wireOutput{Name: out.Name}
		for _, v := range out.Values {
			w, err := toWire(v)
			if err != nil {
				return nil, fmt.Errorf("output %q: %w", out.Name, err)
			}
			wo.Values = append(wo.Values, w)
		}
		wire = append(wire, wo)
	}
	return json.Marshal(wire)
}

// DecodeOutputs reverses EncodeOutputs.
func DecodeOutputs(data []byte) ([]Output, error) {
	var wire []wireOutput
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("failed to parse wire outputs: %w", err)
	}
	outs := make([]Output, 0, len(wire))
	for _, wo := range wire {
		out := Output{Name: wo.Name}
		for _, w := range wo.Values {
			v, err := fromWire(w)
			if err != nil {
				return nil, fmt.Errorf("output %q: %w", wo.Name, err)
			}
			out.Values = append(out.Values, v)
		}
		outs = append(outs, out)
	}
	return outs, nil
}
