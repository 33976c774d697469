package money

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerMillion_Exact(t *testing.T) {
	price := MustParse("2.50")
	got := PerMillion(1_000_000, price)
	assert.True(t, got.Equal(MustParse("2.50")), "got %s", got)
}

func TestPerMillion_FractionalTokens(t *testing.T) {
	price := MustParse("3")
	got := PerMillion(333_333, price)
	want := MustParse("0.999999")
	assert.True(t, got.Equal(want), "got %s want %s", got, want)
}

func TestRoundBank_HalfToEven(t *testing.T) {
	cases := []struct {
		in    string
		scale int32
		want  string
	}{
		{"0.125", 2, "0.12"},
		{"0.135", 2, "0.14"},
		{"2.5", 0, "2"},
		{"3.5", 0, "4"},
	}
	for _, tc := range cases {
		got := RoundBank(MustParse(tc.in), tc.scale)
		assert.Truef(t, got.Equal(MustParse(tc.want)), "RoundBank(%s, %d) = %s, want %s", tc.in, tc.scale, got, tc.want)
	}
}

func TestSum_Deterministic(t *testing.T) {
	vals := []Money{MustParse("0.1"), MustParse("0.2"), MustParse("0.3")}
	assert.True(t, Sum(vals...).Equal(MustParse("0.6")))
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse("not-a-number")
	require.Error(t, err)
}

func TestWithinDigitBudget(t *testing.T) {
	assert.True(t, WithinDigitBudget(MustParse("123.45"), 10))
	huge := MustParse("1" + strings.Repeat("0", 40))
	assert.False(t, WithinDigitBudget(huge, 30))
}
