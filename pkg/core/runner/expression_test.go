package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalExpression_Comparison(t *testing.T) {
	cases := []struct {
		expr string
		want bool
	}{
		{"1 == 1", true},
		{"1 == 2", false},
		{"3 != 2", true},
		{"10 > 9", true},
		{"9 > 10", false},
		{"10 >= 10", true},
		{"2 < 10", true}, // 数值比较而非字符串（字符串下"2" > "10"）
		{"5 <= 4", false},
		{"abc == abc", true},
		{"abc != def", true},
		{"'quoted' == quoted", true},
		{"1.5 > 1.25", true},
	}

	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			got, err := EvalExpression(tc.expr)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvalExpression_TruthyLiteral(t *testing.T) {
	for _, expr := range []string{"true", "1", "yes", "非空字符串"} {
		got, err := EvalExpression(expr)
		require.NoError(t, err)
		assert.True(t, got, expr)
	}
	for _, expr := range []string{"false", "0", "no"} {
		got, err := EvalExpression(expr)
		require.NoError(t, err)
		assert.False(t, got, expr)
	}
}

func TestEvalExpression_Invalid(t *testing.T) {
	_, err := EvalExpression("")
	assert.Error(t, err)
	_, err = EvalExpression("== 1")
	assert.Error(t, err)
	_, err = EvalExpression("1 ==")
	assert.Error(t, err)
}
