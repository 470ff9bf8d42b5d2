package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilterPlan(t *testing.T) {
	text := `[{"bind":"result","from":"t","ops":[
		{"op":"filter","column":"price","cmp":"greater_than","value":100}
	]}]`

	prog, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, prog, 1)

	step := prog[0]
	assert.Equal(t, "result", step.Bind)
	assert.Equal(t, "t", step.From)
	require.Len(t, step.Ops, 1)

	op := step.Ops[0]
	assert.Equal(t, OpFilter, op.Kind)
	assert.Equal(t, "price", op.Column)
	assert.Equal(t, CmpGreaterThan, op.Cmp)

	v, err := op.DecodedValue()
	require.NoError(t, err)
	assert.Equal(t, 100.0, v)
}

func TestParseJoinPlan(t *testing.T) {
	text := `[{"bind":"result",
		"join":{"left":"orders","right":"customers","on":["customer_id"],"kind":"inner"},
		"ops":[]}]`

	prog, err := Parse(text)
	require.NoError(t, err)
	require.NotNil(t, prog[0].Join)
	assert.Equal(t, "orders", prog[0].Join.Left)
	assert.Equal(t, StringList{"customer_id"}, prog[0].Join.On)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse(`[{"bind":"result","from":"t","ops":[],"exec":"rm -rf"}]`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse plan")
}

func TestParseRejectsNonPlanText(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "empty", text: ""},
		{name: "prose", text: "here is your answer"},
		{name: "python", text: "result = df[df['price'] > 100]"},
		{name: "object not array", text: `{"bind":"result"}`},
		{name: "empty array", text: `[]`},
		{name: "trailing garbage", text: `[{"bind":"r","from":"t","ops":[]}] tail`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			assert.Error(t, err)
		})
	}
}

func TestParseFlexibleStringList(t *testing.T) {
	prog, err := Parse(`[{"bind":"result","from":"t","ops":[
		{"op":"select","columns":"price"}
	]}]`)
	require.NoError(t, err)
	assert.Equal(t, StringList{"price"}, prog[0].Ops[0].Columns)
}

func TestParseFlexibleSortKeys(t *testing.T) {
	prog, err := Parse(`[{"bind":"result","from":"t","ops":[
		{"op":"sort","by":["price",{"column":"qty","desc":true}]}
	]}]`)
	require.NoError(t, err)

	by := prog[0].Ops[0].By
	require.Len(t, by, 2)
	assert.Equal(t, SortKey{Column: "price"}, by[0])
	assert.Equal(t, SortKey{Column: "qty", Desc: true}, by[1])
}

func TestEncodeRoundTrip(t *testing.T) {
	prog := Program{{
		Bind: ResultBinding,
		From: "t",
		Ops: []Op{
			{Kind: OpFilter, Column: "price", Cmp: CmpGreaterThan, Value: JSONValue(100.0)},
			{Kind: OpSort, By: SortKeys{{Column: "price", Desc: true}}},
			{Kind: OpLimit, N: 10},
		},
	}}

	encoded := Encode(prog)
	decoded, err := Parse(encoded)
	require.NoError(t, err)
	assert.Equal(t, prog, decoded)

	// Canonical form is stable across a second round trip.
	assert.Equal(t, encoded, Encode(decoded))
}

func TestEncodeOmitsUnsetFields(t *testing.T) {
	prog := Program{{Bind: "result", From: "t", Ops: []Op{{Kind: OpSummarize}}}}

	assert.Equal(t, `[{"bind":"result","from":"t","ops":[{"op":"summarize"}]}]`, Encode(prog))
}

func TestBindsResult(t *testing.T) {
	withResult := Program{{Bind: "result", From: "t", Ops: []Op{}}}
	assert.True(t, withResult.BindsResult())

	without := Program{{Bind: "staging", From: "t", Ops: []Op{}}}
	assert.False(t, without.BindsResult())
}

func TestAggOutName(t *testing.T) {
	assert.Equal(t, "total", Agg{Column: "amount", Fn: "sum", As: "total"}.OutName())
	assert.Equal(t, "amount_sum", Agg{Column: "amount", Fn: "sum"}.OutName())
	assert.Equal(t, "count", Agg{Fn: "count"}.OutName())
}

func TestValidIdent(t *testing.T) {
	assert.True(t, validIdent("result"))
	assert.True(t, validIdent("step_2"))
	assert.True(t, validIdent("_tmp"))
	assert.False(t, validIdent(""))
	assert.False(t, validIdent("2fast"))
	assert.False(t, validIdent("no spaces"))
	assert.False(t, validIdent("hy-phen"))
}
