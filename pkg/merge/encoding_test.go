package merge

import (
	"strings"
	"testing"
)

func TestParse_Scalars(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{`hello`, "hello"},
		{`"42"`, "42"},
		{`42`, int64(42)},
		{`0.25`, 0.25},
		{`true`, true},
		{`"..."`, Placeholder},
	}

	for _, tt := range tests {
		v, err := ParseString(tt.in)
		if err != nil {
			t.Errorf("ParseString(%q) returned error: %v", tt.in, err)
			continue
		}
		if v.Kind() != KindScalar {
			t.Errorf("ParseString(%q): expected scalar, got %s", tt.in, v.Kind())
			continue
		}
		if v.Scalar() != tt.want {
			t.Errorf("ParseString(%q): expected %#v, got %#v", tt.in, tt.want, v.Scalar())
		}
	}
}

func TestParse_RejectsNull(t *testing.T) {
	if _, err := ParseString(`{a: null}`); err == nil {
		t.Error("Expected error for null value")
	}
	if _, err := ParseString(``); err == nil {
		t.Error("Expected error for empty document")
	}
}

func TestParse_PreservesMappingOrder(t *testing.T) {
	v, err := ParseString("z: 1\na: 2\nm: 3\n")
	if err != nil {
		t.Fatalf("ParseString returned error: %v", err)
	}
	var keys []string
	for _, e := range v.Entries() {
		keys = append(keys, e.Key)
	}
	if strings.Join(keys, ",") != "z,a,m" {
		t.Errorf("Expected order z,a,m, got %v", keys)
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	inputs := []string{
		`{"b": [1, 2.5, "x", false], "a": {"n": 1.0}}`,
		`["<html>", "line\nbreak", 1e21]`,
		`-3`,
	}

	for _, in := range inputs {
		v, err := ParseString(in)
		if err != nil {
			t.Fatalf("ParseString(%q) returned error: %v", in, err)
		}
		encoded, err := Encode(v)
		if err != nil {
			t.Fatalf("Encode returned error: %v", err)
		}
		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode(%s) returned error: %v", encoded, err)
		}
		if !Equal(v, decoded) {
			t.Errorf("Round trip mismatch for %q: %s vs %s", in, v, decoded)
		}
	}
}

func TestEncode_RoundTripControlCharacters(t *testing.T) {
	tests := []struct {
		name string
		s    string
	}{
		{"delete", "sep\u007fx"},
		{"c1 controls", "\u0080\u0085\u009f"},
		{"c0 controls", "a\u0000\u001bb\tc"},
		{"line separators", "x\u2028y\u2029z"},
		{"noncharacters", "\ufffe\uffff"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Map(E(tt.s, Seq(String(tt.s))))
			encoded, err := Encode(v)
			if err != nil {
				t.Fatalf("Encode returned error: %v", err)
			}
			decoded, err := Decode(encoded)
			if err != nil {
				t.Fatalf("Decode(%q) returned error: %v", encoded, err)
			}
			if !Equal(v, decoded) {
				t.Errorf("Round trip mismatch: %q vs %q", v, decoded)
			}
		})
	}
}

func TestEncode_FloatKeepsFraction(t *testing.T) {
	b, err := Encode(Float(1))
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if string(b) != "1.0" {
		t.Errorf("Expected 1.0, got %s", b)
	}
}

func TestMarshalYAML_QuotesAmbiguousStrings(t *testing.T) {
	out, err := MarshalYAML(Map(E("port", String("8080")), E("on", Bool(true))))
	if err != nil {
		t.Fatalf("MarshalYAML returned error: %v", err)
	}
	back, err := Parse(out)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	port, _ := back.Lookup("port")
	if port.Scalar() != "8080" {
		t.Errorf("Expected string port to survive YAML round trip, got %#v in %s", port.Scalar(), out)
	}
}

func TestFromAny_SortsMapKeys(t *testing.T) {
	v, err := FromAny(map[string]any{"b": int64(1), "a": []any{"x", true}})
	if err != nil {
		t.Fatalf("FromAny returned error: %v", err)
	}
	if v.String() != `{"a":["x",true],"b":1}` {
		t.Errorf("Unexpected conversion: %s", v)
	}
}
