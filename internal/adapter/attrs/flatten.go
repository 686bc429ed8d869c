// Package attrs converts trace metadata and field values into backend attributes.
package attrs

import (
	"strconv"

	"github.com/V4T54L/ctf-relay/internal/domain"
)

// MaxArrayLen caps how many array elements are flattened per field.
const MaxArrayLen = 10

// Key prefixes for the field groups that are not sent bare.
const (
	PrefixCommonContext   = "common_context"
	PrefixSpecificContext = "specific_context"
	PrefixPacketContext   = "packet_context"
)

// Key joins a prefix and a field name. An empty prefix yields the bare name.
func Key(prefix, field string) string {
	if prefix == "" {
		return field
	}
	return prefix + "." + field
}

// AppendFields flattens every field under prefix onto dst.
func AppendFields(dst []domain.Attr, prefix string, fields domain.Fields) []domain.Attr {
	for _, f := range fields {
		dst = AppendField(dst, prefix, f.Name, f.Value)
	}
	return dst
}

// AppendField flattens a single field value onto dst.
// Arrays become <key>.array.<i>; only the first MaxArrayLen elements are kept.
func AppendField(dst []domain.Attr, prefix, name string, fv domain.FieldValue) []domain.Attr {
	key := Key(prefix, name)
	if !fv.IsArray {
		return appendScalar(dst, key, fv.Scalar)
	}
	for i, elem := range fv.Elements {
		if i == MaxArrayLen {
			break
		}
		dst = appendScalar(dst, key+".array."+strconv.Itoa(i), elem)
	}
	return dst
}

func appendScalar(dst []domain.Attr, key string, s domain.Scalar) []domain.Attr {
	switch s.Kind {
	case domain.KindUnsigned:
		return append(dst, domain.Attr{Key: key, Value: s.Unsigned})
	case domain.KindSigned:
		return append(dst, domain.Attr{Key: key, Value: s.Signed})
	case domain.KindString:
		return append(dst, domain.Attr{Key: key, Value: s.Str})
	case domain.KindF32, domain.KindF64:
		return append(dst, domain.Attr{Key: key, Value: s.Float})
	case domain.KindUnsignedEnum, domain.KindSignedEnum:
		var container any = s.Unsigned
		if s.Kind == domain.KindSignedEnum {
			container = s.Signed
		}
		dst = append(dst, domain.Attr{Key: key + ".container", Value: container})
		if s.Label != nil {
			dst = append(dst, domain.Attr{Key: key, Value: *s.Label})
		}
		return dst
	default:
		return dst
	}
}
