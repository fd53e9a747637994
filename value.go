// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package decrypt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

// ValueKind tags the cleartext type of a decrypted handle
type ValueKind uint8

const (
	KindInt ValueKind = iota
	KindBool
	KindString
)

func (k ValueKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

var errUnknownValueKind = errors.New("unknown value kind")

// Value is a decrypted cleartext. Integers cover every encrypted integer width
// up to 256 bits; strings carry addresses and byte blobs.
type Value struct {
	Kind ValueKind
	Int  *uint256.Int
	Bool bool
	Str  string
}

func IntValue(v *uint256.Int) Value {
	return Value{Kind: KindInt, Int: new(uint256.Int).Set(v)}
}

func Uint64Value(v uint64) Value {
	return Value{Kind: KindInt, Int: uint256.NewInt(v)}
}

func BoolValue(v bool) Value {
	return Value{Kind: KindBool, Bool: v}
}

func StringValue(v string) Value {
	return Value{Kind: KindString, Str: v}
}

// Equal reports whether two values carry the same cleartext
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindInt:
		if v.Int == nil || o.Int == nil {
			return v.Int == o.Int
		}
		return v.Int.Eq(o.Int)
	case KindBool:
		return v.Bool == o.Bool
	default:
		return v.Str == o.Str
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		if v.Int == nil {
			return "0"
		}
		return v.Int.Dec()
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return v.Str
	}
}

type valueJSON struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// MarshalJSON renders integers as decimal strings so 256-bit values survive
// JSON number precision.
func (v Value) MarshalJSON() ([]byte, error) {
	out := valueJSON{Type: v.Kind.String()}
	switch v.Kind {
	case KindInt:
		out.Value = v.String()
	case KindBool:
		out.Value = v.Bool
	case KindString:
		out.Value = v.Str
	default:
		return nil, errUnknownValueKind
	}
	return json.Marshal(out)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseValue(raw.Type, raw.Value)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseValue decodes a typed JSON cleartext. Integers may be JSON numbers,
// decimal strings or 0x-hex strings. Bit widths on the type name (euint64,
// ebytes256) are ignored.
func ParseValue(kind string, raw json.RawMessage) (Value, error) {
	switch strings.TrimRight(strings.ToLower(kind), "0123456789") {
	case "int", "uint", "euint":
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			// plain JSON number
			s = string(raw)
		}
		n, err := parseUint256(s)
		if err != nil {
			return Value{}, fmt.Errorf("parsing integer value %q: %w", s, err)
		}
		return Value{Kind: KindInt, Int: n}, nil
	case "bool", "ebool":
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return Value{}, fmt.Errorf("parsing bool value: %w", err)
		}
		return BoolValue(b), nil
	case "string", "address", "bytes", "eaddress", "ebytes":
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, fmt.Errorf("parsing string value: %w", err)
		}
		return StringValue(s), nil
	default:
		return Value{}, fmt.Errorf("%w: %q", errUnknownValueKind, kind)
	}
}

func parseUint256(s string) (*uint256.Int, error) {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		// FromHex rejects leading zero digits
		digits := strings.TrimLeft(s[2:], "0")
		if digits == "" {
			digits = "0"
		}
		return uint256.FromHex("0x" + digits)
	}
	return uint256.FromDecimal(s)
}
