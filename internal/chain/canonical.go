package chain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

const hexDigits = "0123456789abcdef"

// Canonical returns the deterministic JSON encoding of v: object keys sorted
// at every level, ", " and ": " separators, and every character outside
// printable ASCII escaped as \uXXXX. The output is byte-identical to
// Python's json.dumps(v, sort_keys=True) for the same JSON value, which keeps
// digests compatible with ledgers produced by the original nodes.
//
// Values other than the JSON primitives, maps, slices and Opaque are first
// passed through encoding/json.
func Canonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeCanonical(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if x {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		writeCanonicalString(buf, x)
	case json.Number:
		return writeCanonicalNumber(buf, x)
	case int:
		buf.WriteString(strconv.Itoa(x))
	case int64:
		buf.WriteString(strconv.FormatInt(x, 10))
	case float64:
		return writeCanonicalFloat(buf, x)
	case Opaque:
		if x == nil {
			buf.WriteString("{}")
			return nil
		}
		return encodeCanonicalObject(buf, x)
	case map[string]any:
		return encodeCanonicalObject(buf, x)
	case []any:
		buf.WriteByte('[')
		for i, elem := range x {
			if i > 0 {
				buf.WriteString(", ")
			}
			if err := encodeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("canonical: %w", err)
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var generic any
		if err := dec.Decode(&generic); err != nil {
			return fmt.Errorf("canonical: %w", err)
		}
		return encodeCanonical(buf, generic)
	}
	return nil
}

func encodeCanonicalObject(buf *bytes.Buffer, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Byte order of UTF-8 matches code point order.
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteString(", ")
		}
		writeCanonicalString(buf, k)
		buf.WriteString(": ")
		if err := encodeCanonical(buf, m[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// writeCanonicalNumber writes a decoded JSON number the way it re-encodes
// after a float or int round trip, so 1e2, 1E2 and 100.0 all become 100.0.
// Integer literals keep full precision.
func writeCanonicalNumber(buf *bytes.Buffer, n json.Number) error {
	s := string(n)
	if !strings.ContainsAny(s, ".eE") {
		i, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return fmt.Errorf("canonical: invalid number %q", s)
		}
		buf.WriteString(i.String())
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("canonical: invalid number %q", s)
	}
	return writeCanonicalFloat(buf, f)
}

func writeCanonicalFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("canonical: unsupported float %v", f)
	}
	// Shortest round-trip digits, positional for exponents in [-4, 16) and
	// scientific otherwise. Integral values keep a trailing ".0".
	sci := strconv.FormatFloat(f, 'e', -1, 64)
	exp, err := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if err != nil {
		return fmt.Errorf("canonical: float %v: %w", f, err)
	}
	if exp < -4 || exp >= 16 {
		buf.WriteString(sci)
		return nil
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	buf.WriteString(s)
	if !strings.Contains(s, ".") {
		buf.WriteString(".0")
	}
	return nil
}

func writeCanonicalString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			switch {
			case r >= 0x20 && r <= 0x7e:
				buf.WriteRune(r)
			case r > 0xffff:
				r -= 0x10000
				writeUnicodeEscape(buf, 0xd800|((r>>10)&0x3ff))
				writeUnicodeEscape(buf, 0xdc00|(r&0x3ff))
			case r == utf8.RuneError:
				writeUnicodeEscape(buf, 0xfffd)
			default:
				writeUnicodeEscape(buf, r)
			}
		}
	}
	buf.WriteByte('"')
}

func writeUnicodeEscape(buf *bytes.Buffer, r rune) {
	buf.WriteString(`\u`)
	buf.WriteByte(hexDigits[(r>>12)&0xf])
	buf.WriteByte(hexDigits[(r>>8)&0xf])
	buf.WriteByte(hexDigits[(r>>4)&0xf])
	buf.WriteByte(hexDigits[r&0xf])
}
