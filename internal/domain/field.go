package domain

import (
	"encoding/json"
	"fmt"
)

// ScalarKind discriminates the primitive CTF field classes.
type ScalarKind uint8

const (
	KindUnsigned ScalarKind = iota + 1
	KindSigned
	KindString
	KindF32
	KindF64
	KindUnsignedEnum
	KindSignedEnum
)

var scalarKindNames = map[ScalarKind]string{
	KindUnsigned:     "u",
	KindSigned:       "i",
	KindString:       "str",
	KindF32:          "f32",
	KindF64:          "f64",
	KindUnsignedEnum: "enum_u",
	KindSignedEnum:   "enum_i",
}

func (k ScalarKind) String() string {
	if name, ok := scalarKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IsEnum reports whether the kind is an enumeration.
func (k ScalarKind) IsEnum() bool {
	return k == KindUnsignedEnum || k == KindSignedEnum
}

// Scalar is a primitive field value. Only the member matching Kind is meaningful;
// enumerations keep their backing integer in Unsigned or Signed and an optional Label.
type Scalar struct {
	Kind     ScalarKind
	Unsigned uint64
	Signed   int64
	Str      string
	Float    float64
	Label    *string
}

func Unsigned(v uint64) Scalar { return Scalar{Kind: KindUnsigned, Unsigned: v} }
func Signed(v int64) Scalar    { return Scalar{Kind: KindSigned, Signed: v} }
func String(v string) Scalar   { return Scalar{Kind: KindString, Str: v} }
func F32(v float32) Scalar     { return Scalar{Kind: KindF32, Float: float64(v)} }
func F64(v float64) Scalar     { return Scalar{Kind: KindF64, Float: v} }

// UnsignedEnum builds an enumeration backed by an unsigned integer. label may be empty.
func UnsignedEnum(v uint64, label string) Scalar {
	s := Scalar{Kind: KindUnsignedEnum, Unsigned: v}
	if label != "" {
		s.Label = &label
	}
	return s
}

// SignedEnum builds an enumeration backed by a signed integer. label may be empty.
func SignedEnum(v int64, label string) Scalar {
	s := Scalar{Kind: KindSignedEnum, Signed: v}
	if label != "" {
		s.Label = &label
	}
	return s
}

// FieldValue is either a single scalar or an array of scalars.
type FieldValue struct {
	Scalar
	IsArray  bool
	Elements []Scalar
}

// ScalarValue wraps a scalar as a field value.
func ScalarValue(s Scalar) FieldValue { return FieldValue{Scalar: s} }

// ArrayValue wraps scalars as an array field value.
func ArrayValue(elems ...Scalar) FieldValue { return FieldValue{IsArray: true, Elements: elems} }

// Field is a named field value. Field order is preserved from the decoder.
type Field struct {
	Name  string
	Value FieldValue
}

// Fields is an ordered list of fields.
type Fields []Field

type wireScalar struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
	Label *string         `json:"label,omitempty"`
}

type wireField struct {
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Value    json.RawMessage `json:"value,omitempty"`
	Label    *string         `json:"label,omitempty"`
	Elements []wireScalar    `json:"elements,omitempty"`
}

func (s Scalar) toWire() (wireScalar, error) {
	var v any
	switch s.Kind {
	case KindUnsigned, KindUnsignedEnum:
		v = s.Unsigned
	case KindSigned, KindSignedEnum:
		v = s.Signed
	case KindString:
		v = s.Str
	case KindF32, KindF64:
		v = s.Float
	default:
		return wireScalar{}, fmt.Errorf("unknown scalar kind %d", s.Kind)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return wireScalar{}, err
	}
	return wireScalar{Type: s.Kind.String(), Value: raw, Label: s.Label}, nil
}

func scalarFromWire(w wireScalar) (Scalar, error) {
	var s Scalar
	var err error
	switch w.Type {
	case "u":
		s.Kind = KindUnsigned
		err = json.Unmarshal(w.Value, &s.Unsigned)
	case "i":
		s.Kind = KindSigned
		err = json.Unmarshal(w.Value, &s.Signed)
	case "str":
		s.Kind = KindString
		err = json.Unmarshal(w.Value, &s.Str)
	case "f32":
		s.Kind = KindF32
		err = json.Unmarshal(w.Value, &s.Float)
	case "f64":
		s.Kind = KindF64
		err = json.Unmarshal(w.Value, &s.Float)
	case "enum_u":
		s.Kind = KindUnsignedEnum
		err = json.Unmarshal(w.Value, &s.Unsigned)
		s.Label = w.Label
	case "enum_i":
		s.Kind = KindSignedEnum
		err = json.Unmarshal(w.Value, &s.Signed)
		s.Label = w.Label
	default:
		return Scalar{}, fmt.Errorf("unknown field type %q", w.Type)
	}
	if err != nil {
		return Scalar{}, fmt.Errorf("invalid %s value: %w", w.Type, err)
	}
	return s, nil
}

// MarshalJSON encodes a field as {"name", "type", "value"[, "label"]} or
// {"name", "type": "array", "elements": [...]}.
func (f Field) MarshalJSON() ([]byte, error) {
	w := wireField{Name: f.Name}
	if f.Value.IsArray {
		w.Type = "array"
		w.Elements = make([]wireScalar, 0, len(f.Value.Elements))
		for _, elem := range f.Value.Elements {
			ws, err := elem.toWire()
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			w.Elements = append(w.Elements, ws)
		}
		return json.Marshal(w)
	}
	ws, err := f.Value.Scalar.toWire()
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", f.Name, err)
	}
	w.Type, w.Value, w.Label = ws.Type, ws.Value, ws.Label
	return json.Marshal(w)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (f *Field) UnmarshalJSON(data []byte) error {
	var w wireField
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	f.Name = w.Name
	if w.Type == "array" {
		f.Value = FieldValue{IsArray: true, Elements: make([]Scalar, 0, len(w.Elements))}
		for _, we := range w.Elements {
			s, err := scalarFromWire(we)
			if err != nil {
				return fmt.Errorf("field %s: %w", w.Name, err)
			}
			f.Value.Elements = append(f.Value.Elements, s)
		}
		return nil
	}
	s, err := scalarFromWire(wireScalar{Type: w.Type, Value: w.Value, Label: w.Label})
	if err != nil {
		return fmt.Errorf("field %s: %w", w.Name, err)
	}
	f.Value = ScalarValue(s)
	return nil
}
