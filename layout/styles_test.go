package layout

import (
	"encoding/json"
	"testing"
)

func TestStyles_DecodeCoercion(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"string keys", `{"color":"#fff","fontSize":"16px"}`, false},
		{"number for string key", `{"fontSize":16}`, false},
		{"px string for numeric key", `{"x":"10px","y":"4"}`, false},
		{"bad numeric", `{"x":"left"}`, true},
		{"bad enum", `{"textAlign":"justify"}`, true},
		{"custom scalar", `{"boxShadow":"0 0 2px #000","opacity":0.5,"hidden":true}`, false},
		{"custom object", `{"boxShadow":{"x":1}}`, true},
		{"bool for string key", `{"color":true}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Styles
			err := json.Unmarshal([]byte(tt.raw), &s)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStyles_CustomKeys(t *testing.T) {
	var s Styles
	if err := json.Unmarshal([]byte(`{"color":"red","opacity":0.5,"boxShadow":"none"}`), &s); err != nil {
		t.Fatal(err)
	}
	custom := s.Custom()
	if len(custom) != 2 || custom[0] != "boxShadow" || custom[1] != "opacity" {
		t.Fatalf("custom = %v", custom)
	}
	if s.Str(FontSize) != "" {
		t.Fatalf("unset fontSize = %q, want empty", s.Str(FontSize))
	}
}

func TestStylePatch_NullUnsets(t *testing.T) {
	var p StylePatch
	if err := json.Unmarshal([]byte(`{"color":null,"x":"8"}`), &p); err != nil {
		t.Fatal(err)
	}
	if v, ok := p[Color]; !ok || v != nil {
		t.Fatalf("color entry = %v, %v; want nil, true", v, ok)
	}
	if n, ok := p[X].Num(); !ok || n != 8 {
		t.Fatalf("x = %v, %v", n, ok)
	}
}
