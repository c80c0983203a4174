package layout

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Key names a style property.
type Key string

// Recognized style keys. Everything else is a custom key.
const (
	Width           Key = "width"
	Height          Key = "height"
	BackgroundColor Key = "backgroundColor"
	Color           Key = "color"
	FontSize        Key = "fontSize"
	Padding         Key = "padding"
	Margin          Key = "margin"
	MarginTop       Key = "marginTop"
	MarginBottom    Key = "marginBottom"
	MarginLeft      Key = "marginLeft"
	MarginRight     Key = "marginRight"
	BorderRadius    Key = "borderRadius"
	TextAlign       Key = "textAlign"
	Display         Key = "display"
	FlexDirection   Key = "flexDirection"
	Gap             Key = "gap"
	Border          Key = "border"
	MaxWidth        Key = "maxWidth"
	X               Key = "x"
	Y               Key = "y"
	ZIndex          Key = "zIndex"
)

type valueType uint8

const (
	typeString valueType = iota + 1
	typeNumber
	typeBool
)

var keyTypes = map[Key]valueType{
	Width: typeString, Height: typeString, BackgroundColor: typeString,
	Color: typeString, FontSize: typeString, Padding: typeString,
	Margin: typeString, MarginTop: typeString, MarginBottom: typeString,
	MarginLeft: typeString, MarginRight: typeString, BorderRadius: typeString,
	TextAlign: typeString, Display: typeString, FlexDirection: typeString,
	Gap: typeString, Border: typeString, MaxWidth: typeString,
	X: typeNumber, Y: typeNumber, ZIndex: typeNumber,
}

// enumerations restrict a few keys to a closed set of values.
var enumerations = map[Key][]string{
	TextAlign:     {"left", "center", "right"},
	FlexDirection: {"row", "column"},
}

// Known reports whether k is a recognized style key.
func (k Key) Known() bool {
	_, ok := keyTypes[k]
	return ok
}

// Numeric reports whether k carries a number (free-position keys).
func (k Key) Numeric() bool { return keyTypes[k] == typeNumber }

// Value is a scalar style value: a string, a number or a boolean.
type Value struct {
	typ valueType
	str string
	num float64
	b   bool
}

// String builds a string value.
func String(s string) Value { return Value{typ: typeString, str: s} }

// Number builds a numeric value.
func Number(n float64) Value { return Value{typ: typeNumber, num: n} }

// Bool builds a boolean value. Only custom keys may hold booleans.
func Bool(b bool) Value { return Value{typ: typeBool, b: b} }

// IsZero reports whether v was never set.
func (v Value) IsZero() bool { return v.typ == 0 }

// Str returns the string form of v.
func (v Value) Str() string {
	switch v.typ {
	case typeString:
		return v.str
	case typeNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case typeBool:
		return strconv.FormatBool(v.b)
	}
	return ""
}

// Num returns the numeric value and whether v is a number.
func (v Value) Num() (float64, bool) { return v.num, v.typ == typeNumber }

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.typ {
	case typeNumber:
		return json.Marshal(v.num)
	case typeBool:
		return json.Marshal(v.b)
	case typeString:
		return json.Marshal(v.str)
	}
	return []byte("null"), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("layout: empty style value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case 'n':
		*v = Value{}
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("layout: style value must be a scalar: %w", err)
		}
		*v = Number(n)
	}
	return nil
}

// coerce converts v to the type expected by k. Free-position keys accept
// numeric strings ("12", "12px"); string keys accept numbers.
func coerce(k Key, v Value) (Value, error) {
	want, known := keyTypes[k]
	if !known {
		return v, nil
	}
	switch want {
	case typeNumber:
		if v.typ == typeNumber {
			return v, nil
		}
		if v.typ == typeString {
			n, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(v.str), "px"), 64)
			if err == nil {
				return Number(n), nil
			}
		}
		return Value{}, fmt.Errorf("layout: style %q must be a number, got %s", k, v.Str())
	case typeString:
		if v.typ == typeBool {
			return Value{}, fmt.Errorf("layout: style %q must be a string", k)
		}
		s := v.Str()
		if allowed, ok := enumerations[k]; ok && !slices.Contains(allowed, s) {
			return Value{}, fmt.Errorf("layout: style %q does not accept %q", k, s)
		}
		return String(s), nil
	}
	return v, nil
}

// Styles maps style keys to values. Recognized keys are type-checked on
// decode; custom keys are accepted as long as their values are scalars.
type Styles map[Key]Value

// Get returns the value for k.
func (s Styles) Get(k Key) (Value, bool) {
	v, ok := s[k]
	return v, ok
}

// Str returns the string form of k, or "" when unset.
func (s Styles) Str(k Key) string { return s[k].Str() }

// Num returns the numeric value of k, or def when unset or not numeric.
func (s Styles) Num(k Key, def float64) float64 {
	if n, ok := s[k].Num(); ok {
		return n
	}
	return def
}

// Custom returns the keys that are not recognized style keys.
func (s Styles) Custom() []Key {
	var out []Key
	for k := range s {
		if !k.Known() {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

// Clone returns an independent copy.
func (s Styles) Clone() Styles {
	if s == nil {
		return Styles{}
	}
	return maps.Clone(s)
}

func (s *Styles) UnmarshalJSON(data []byte) error {
	var raw map[Key]Value
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("layout: styles: %w", err)
	}
	out := make(Styles, len(raw))
	for k, v := range raw {
		if v.IsZero() {
			continue
		}
		cv, err := coerce(k, v)
		if err != nil {
			return err
		}
		out[k] = cv
	}
	*s = out
	return nil
}

// StylePatch is a partial style update. A nil entry removes the key.
type StylePatch map[Key]*Value

// Set adds k=v to the patch and returns it for chaining.
func (p StylePatch) Set(k Key, v Value) StylePatch {
	p[k] = &v
	return p
}

// Unset marks k for removal.
func (p StylePatch) Unset(k Key) StylePatch {
	p[k] = nil
	return p
}

func (p *StylePatch) UnmarshalJSON(data []byte) error {
	var raw map[Key]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("layout: style patch: %w", err)
	}
	out := make(StylePatch, len(raw))
	for k, msg := range raw {
		var v Value
		if err := v.UnmarshalJSON(msg); err != nil {
			return err
		}
		if v.IsZero() {
			out[k] = nil
			continue
		}
		cv, err := coerce(k, v)
		if err != nil {
			return err
		}
		out[k] = &cv
	}
	*p = out
	return nil
}

// merge shallow-merges p into s and returns the result. s is not modified.
func (s Styles) merge(p StylePatch) Styles {
	out := s.Clone()
	for k, v := range p {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = *v
	}
	return out
}
