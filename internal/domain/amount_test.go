package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const maxUint256 = "115792089237316195423570985008687907853269984665640564039457584007913129639935"

func TestParseAmount(t *testing.T) {
	a, err := ParseAmount(" 10 ")
	require.NoError(t, err)
	assert.Equal(t, "10", a.String())

	a, err = ParseAmount(maxUint256)
	require.NoError(t, err)
	assert.Equal(t, maxUint256, a.String())

	for _, bad := range []string{"", "-1", "1.5", "abc", maxUint256 + "0"} {
		_, err := ParseAmount(bad)
		assert.Error(t, err, bad)
	}
}

func TestAmount_Arithmetic(t *testing.T) {
	sum, err := NewAmount(5).Add(NewAmount(5))
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Cmp(NewAmount(10)))

	_, err = MustAmount(maxUint256).Add(NewAmount(1))
	assert.ErrorIs(t, err, ErrAmountOverflow)

	_, err = NewAmount(1).Sub(NewAmount(2))
	assert.ErrorIs(t, err, ErrAmountUnderflow)

	diff, err := NewAmount(7).Sub(NewAmount(2))
	require.NoError(t, err)
	assert.Equal(t, "5", diff.String())

	total, err := SumAmounts(NewAmount(1), NewAmount(2), NewAmount(3))
	require.NoError(t, err)
	assert.Equal(t, "6", total.String())

	_, err = SumAmounts(MustAmount(maxUint256), NewAmount(1))
	assert.ErrorIs(t, err, ErrAmountOverflow)

	assert.True(t, Amount{}.IsZero())
}

func TestAmount_JSON(t *testing.T) {
	raw, err := json.Marshal(struct {
		Amount Amount `json:"amount"`
	}{MustAmount(maxUint256)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"`+maxUint256+`"}`, string(raw))

	var body struct {
		Amount Amount `json:"amount"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"amount":"42"}`), &body))
	assert.Equal(t, "42", body.Amount.String())
	require.NoError(t, json.Unmarshal([]byte(`{"amount":42}`), &body))
	assert.Equal(t, "42", body.Amount.String())
	assert.Error(t, json.Unmarshal([]byte(`{"amount":-3}`), &body))
	assert.Error(t, json.Unmarshal([]byte(`{"amount":true}`), &body))
}

func TestAmount_Scan(t *testing.T) {
	var a Amount
	require.NoError(t, a.Scan([]byte("12")))
	assert.Equal(t, "12", a.String())
	require.NoError(t, a.Scan(int64(3)))
	assert.Equal(t, "3", a.String())
	require.NoError(t, a.Scan(nil))
	assert.True(t, a.IsZero())
	assert.Error(t, a.Scan(int64(-1)))
	assert.Error(t, a.Scan(3.5))

	v, err := NewAmount(9).Value()
	require.NoError(t, err)
	assert.Equal(t, "9", v)
}

func TestNewIdentity_Normalizes(t *testing.T) {
	assert.Equal(t, Identity("0xabc"), NewIdentity("  0xAbC "))
	assert.True(t, NewIdentity("   ").IsZero())
}
