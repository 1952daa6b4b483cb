package values

import (
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name    string
		value   Value
		want    string
		wantErr bool
	}{
		{name: "string", value: "hello", want: "hello"},
		{name: "bool", value: true, want: "true"},
		{name: "int", value: 42, want: "42"},
		{name: "int64 wide", value: int64(1) << 60, want: "1152921504606846976"},
		{name: "float", value: 2.5, want: "2.5"},
		{name: "float integral stays distinct from int", value: 1.0, want: "1"},
		{name: "file ref renders as path", value: NewFileRef("/data/a.fastq"), want: "/data/a.fastq"},
		{name: "nil", value: nil, want: ""},
		{
			name:  "bag joins in positional order",
			value: NewBag("b.fq", "a.fq", NewFileRef("/tmp/c.fq")),
			want:  "b.fq a.fq /tmp/c.fq",
		},
		{
			name:  "tuple joins nested",
			value: []Value{"x", NewBag(1, 2), int64(3)},
			want:  "x 1 2 3",
		},
		{name: "unsupported kind", value: struct{}{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Render() expected error, got %q", got)
				}
				if !strings.Contains(err.Error(), "unrenderable") {
					t.Errorf("error = %v, want unrenderable kind error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}
