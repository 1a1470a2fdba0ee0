package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGatewayErrorKeepsInnermostCall(t *testing.T) {
	cause := errors.New("connection reset")
	inner := NewGatewayError("stripe", "create_charge", cause)

	outer := NewGatewayError("stripe", "initiate", fmt.Errorf("charge: %w", inner))

	ge, ok := AsGatewayError(outer)
	require.True(t, ok)
	assert.Equal(t, "create_charge", ge.Op)
	assert.Equal(t, "stripe create_charge: connection reset", ge.Error())
	assert.ErrorIs(t, outer, cause)
	assert.Equal(t, "charge: stripe create_charge: connection reset", outer.Error())
}

func TestNewGatewayErrorNil(t *testing.T) {
	assert.NoError(t, NewGatewayError("bkash", "refund", nil))
}

func TestStateErrorMatchesSentinel(t *testing.T) {
	err := NewStateError("refund", StatusPending)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, "cannot refund a pending payment", err.Error())
}
