// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package decrypt

import (
	"encoding/json"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestParseValue(t *testing.T) {
	max := new(uint256.Int).SetAllOne()

	tests := []struct {
		name      string
		kind      string
		raw       string
		expected  Value
		expectErr bool
	}{
		{name: "decimal string", kind: "euint64", raw: `"42"`, expected: Uint64Value(42)},
		{name: "json number", kind: "euint8", raw: `7`, expected: Uint64Value(7)},
		{name: "hex with leading zeros", kind: "euint256", raw: `"0x000a"`, expected: Uint64Value(10)},
		{name: "zero hex", kind: "uint", raw: `"0x00"`, expected: Uint64Value(0)},
		{name: "max uint256", kind: "euint256", raw: `"` + max.Dec() + `"`, expected: IntValue(max)},
		{name: "bool", kind: "ebool", raw: `true`, expected: BoolValue(true)},
		{name: "address", kind: "eaddress", raw: `"0xabc"`, expected: StringValue("0xabc")},
		{name: "bytes", kind: "ebytes256", raw: `"0x0102"`, expected: StringValue("0x0102")},
		{name: "upper case kind", kind: "EUINT32", raw: `"5"`, expected: Uint64Value(5)},
		{name: "not a number", kind: "euint8", raw: `"abc"`, expectErr: true},
		{name: "negative", kind: "euint8", raw: `"-1"`, expectErr: true},
		{name: "bool wrong type", kind: "ebool", raw: `"yes"`, expectErr: true},
		{name: "unknown kind", kind: "efloat", raw: `1`, expectErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseValue(tt.kind, json.RawMessage(tt.raw))
			if tt.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.True(t, tt.expected.Equal(v), "expected %s, got %s", tt.expected, v)
		})
	}
}

func TestValueJSON(t *testing.T) {
	tests := []struct {
		value    Value
		expected string
	}{
		{value: Uint64Value(42), expected: `{"type":"int","value":"42"}`},
		{value: BoolValue(false), expected: `{"type":"bool","value":false}`},
		{value: StringValue("0xabc"), expected: `{"type":"string","value":"0xabc"}`},
	}
	for _, tt := range tests {
		t.Run(tt.value.Kind.String(), func(t *testing.T) {
			raw, err := json.Marshal(tt.value)
			require.NoError(t, err)
			require.JSONEq(t, tt.expected, string(raw))

			var decoded Value
			require.NoError(t, json.Unmarshal(raw, &decoded))
			require.True(t, tt.value.Equal(decoded))
		})
	}
}

func TestValueEqual(t *testing.T) {
	require.True(t, Uint64Value(1).Equal(Uint64Value(1)))
	require.False(t, Uint64Value(1).Equal(Uint64Value(2)))
	require.False(t, Uint64Value(1).Equal(BoolValue(true)))
	require.False(t, StringValue("1").Equal(Uint64Value(1)))
	require.Equal(t, "true", BoolValue(true).String())
}
