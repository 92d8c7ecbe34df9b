package domain

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONValue_ZeroIsNull(t *testing.T) {
	var v JSONValue
	assert.True(t, v.IsNull())
	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestJSONValue_DecodeAllKinds(t *testing.T) {
	var v JSONValue
	require.NoError(t, json.Unmarshal([]byte(`{"a":[1,2.5,"x",true,null],"b":{"c":-3}}`), &v))

	a, ok := v.Field("a")
	require.True(t, ok)
	items, ok := a.ArrayValue()
	require.True(t, ok)
	require.Len(t, items, 5)

	n, _ := items[1].NumberValue()
	assert.Equal(t, 2.5, n)
	s, _ := items[2].StringValue()
	assert.Equal(t, "x", s)
	b, _ := items[3].BoolValue()
	assert.True(t, b)
	assert.True(t, items[4].IsNull())

	b2, _ := v.Field("b")
	c, _ := b2.Field("c")
	cn, _ := c.NumberValue()
	assert.Equal(t, -3.0, cn)
}

func TestJSONValue_EncodeSortedKeys(t *testing.T) {
	v := Object(map[string]JSONValue{
		"z": Number(1),
		"a": Array(String("q\"uote"), Bool(false)),
		"m": Null(),
	})
	data, err := v.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"a":["q\"uote",false],"m":null,"z":1}`, string(data))
}

func TestJSONValue_NumberRoundTrip(t *testing.T) {
	cases := []float64{
		0, 1, -1, 42, 1.5, -0.25, 3.141592653589793,
		1e-7, 123456789012345678, 1e21, 2.2250738585072014e-308,
		math.MaxFloat64, math.SmallestNonzeroFloat64, 9007199254740993,
	}
	for _, want := range cases {
		data, err := Number(want).MarshalJSON()
		require.NoError(t, err)

		var got JSONValue
		require.NoError(t, json.Unmarshal(data, &got), "input %s", data)
		n, ok := got.NumberValue()
		require.True(t, ok)
		assert.Equal(t, want, n, "encoded as %s", data)
	}
}

func TestJSONValue_IntegralNumbersHaveNoFraction(t *testing.T) {
	data, err := Number(7).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "7", string(data))

	data, err = Number(1e-7).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "1e-7", string(data))
}

func TestJSONValue_NonFiniteFailsToEncode(t *testing.T) {
	_, err := Number(math.NaN()).MarshalJSON()
	assert.True(t, errors.Is(err, ErrEncodeFailure))

	_, err = Array(Number(math.Inf(1))).MarshalJSON()
	assert.True(t, errors.Is(err, ErrEncodeFailure))
}

func TestJSONValue_InvalidUTF8FailsToEncode(t *testing.T) {
	_, err := String("bad \xff byte").MarshalJSON()
	assert.True(t, errors.Is(err, ErrEncodeFailure))
}

func TestJSONValue_StringEscapes(t *testing.T) {
	data, err := String("line\nbreak\ttab\x01ctl \\ é").MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"line\nbreak\ttab\u0001ctl \\ é"`, string(data))

	var back JSONValue
	require.NoError(t, json.Unmarshal(data, &back))
	s, _ := back.StringValue()
	assert.Equal(t, "line\nbreak\ttab\x01ctl \\ é", s)
}

func TestJSONValue_RejectsTrailingData(t *testing.T) {
	var v JSONValue
	assert.Error(t, v.UnmarshalJSON([]byte(`{} {}`)))
	assert.Error(t, v.UnmarshalJSON([]byte(`[1,`)))
}

func TestJSONValue_Equal(t *testing.T) {
	a := Object(map[string]JSONValue{"x": Array(Number(1), String("y"))})
	b := Object(map[string]JSONValue{"x": Array(Number(1), String("y"))})
	c := Object(map[string]JSONValue{"x": Array(Number(2), String("y"))})
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, Null().Equal(Bool(false)))
}

func TestValueOfAndDecode(t *testing.T) {
	type params struct {
		ThreadID string `json:"threadId"`
		Limit    int    `json:"limit,omitempty"`
	}
	v, err := ValueOf(params{ThreadID: "t1", Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, `{"limit":3,"threadId":"t1"}`, v.String())

	var back params
	require.NoError(t, v.Decode(&back))
	assert.Equal(t, params{ThreadID: "t1", Limit: 3}, back)

	same, err := ValueOf(v)
	require.NoError(t, err)
	assert.True(t, same.Equal(v))
}

func TestValueOf_Unencodable(t *testing.T) {
	_, err := ValueOf(make(chan int))
	assert.True(t, errors.Is(err, ErrEncodeFailure))
}

func TestSplitAndMergeObject(t *testing.T) {
	var raw JSONValue
	require.NoError(t, json.Unmarshal([]byte(`{"type":"agentMessage","id":"i1","text":"hi","extra":{"n":1}}`), &raw))

	extra := SplitObject(raw, "type", "id")
	require.Len(t, extra, 2)
	assert.Contains(t, extra, "text")
	assert.Contains(t, extra, "extra")

	known := struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}{Type: "agentMessage", ID: "i1"}
	merged, err := MergeObject(known, extra)
	require.NoError(t, err)
	assert.True(t, merged.Equal(raw))
}

func TestMergeObject_KnownFieldsWin(t *testing.T) {
	merged, err := MergeObject(map[string]string{"type": "a"}, map[string]JSONValue{"type": String("b")})
	require.NoError(t, err)
	f, _ := merged.Field("type")
	s, _ := f.StringValue()
	assert.Equal(t, "a", s)
}

func TestMergeObject_NonObjectFails(t *testing.T) {
	_, err := MergeObject([]int{1}, nil)
	assert.True(t, errors.Is(err, ErrEncodeFailure))
}
