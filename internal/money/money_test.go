package money

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMinor_RoundsNotTruncates(t *testing.T) {
	cases := map[string]int64{
		"49.99":  4999,
		"0.29":   29,
		"19.995": 2000,
		"10.004": 1000,
		"0.005":  1,
		"1":      100,
		"1234.5": 123450,
	}
	for in, want := range cases {
		d, err := Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, ToMinor(d), in)
	}
}

func TestToMinor_MatchesRoundOfFloatTimesHundred(t *testing.T) {
	for _, f := range []float64{0.01, 0.1, 0.29, 4.35, 9.99, 49.99, 57.05, 100.07, 1999.99} {
		d := decimal.NewFromFloat(f)
		assert.Equal(t, int64(math.Round(f*100)), ToMinor(d), "amount %v", f)
	}
}

func TestParse_Rejects(t *testing.T) {
	for _, in := range []string{"", "  ", "abc", "0", "-5", "0.00", "NaN", "Infinity", "1,50", "true", "{}"} {
		_, err := Parse(in)
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, ErrInvalidAmount), in)
	}
}

func TestFromMinor(t *testing.T) {
	assert.Equal(t, "20", FromMinor(2000).String())
	assert.Equal(t, 49.99, Float(FromMinor(4999)))
}

func TestRaw_AcceptsNumberOrString(t *testing.T) {
	var body struct {
		Amount Raw `json:"amount"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"amount": 49.99}`), &body))
	assert.Equal(t, Raw("49.99"), body.Amount)

	require.NoError(t, json.Unmarshal([]byte(`{"amount": "20.00"}`), &body))
	assert.Equal(t, Raw("20.00"), body.Amount)

	require.NoError(t, json.Unmarshal([]byte(`{"amount": null}`), &body))
	assert.Equal(t, Raw(""), body.Amount)

	require.NoError(t, json.Unmarshal([]byte(`{"amount": true}`), &body))
	_, err := Parse(string(body.Amount))
	assert.Error(t, err)
}

func TestParse_RejectsAmountsAboveMaxMinor(t *testing.T) {
	for _, in := range []string{"200000000000000000", "1e19", "1000000", "999999.995"} {
		_, err := Parse(in)
		assert.True(t, errors.Is(err, ErrInvalidAmount), in)
	}

	d, err := Parse("999999.99")
	require.NoError(t, err)
	assert.Equal(t, int64(MaxMinor), ToMinor(d))
}
