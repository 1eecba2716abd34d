package payment

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThresholdRouting(t *testing.T) {
	s := &Service{minPayout: 10}

	// 9.99 goes to the balance, 10.00 goes through the provider.
	assert.True(t, s.UsesBalanceCredit(9.99))
	assert.False(t, s.UsesBalanceCredit(10.00))
	assert.False(t, s.UsesBalanceCredit(10.01))
	assert.True(t, s.UsesBalanceCredit(5))
}

func TestValidateAmount(t *testing.T) {
	require.NoError(t, validateAmount(50))
	require.NoError(t, validateAmount(0.01))

	for _, bad := range []float64{0, -5, math.NaN(), math.Inf(1), math.Inf(-1)} {
		err := validateAmount(bad)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	}
}
