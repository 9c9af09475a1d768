package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdvanceMovesForward(t *testing.T) {
	msg := Message{Status: StatusSent}

	assert.True(t, msg.Advance(StatusDelivered))
	assert.Equal(t, StatusDelivered, msg.Status)

	assert.True(t, msg.Advance(StatusRead))
	assert.Equal(t, StatusRead, msg.Status)
}

func TestAdvanceIsIdempotent(t *testing.T) {
	msg := Message{Status: StatusDelivered}

	assert.False(t, msg.Advance(StatusDelivered))
	assert.Equal(t, StatusDelivered, msg.Status)
}

func TestAdvanceNeverRegresses(t *testing.T) {
	msg := Message{Status: StatusRead}

	assert.False(t, msg.Advance(StatusDelivered))
	assert.False(t, msg.Advance(StatusSent))
	assert.Equal(t, StatusRead, msg.Status)
}

func TestAdvanceSkipsIntermediateStatus(t *testing.T) {
	msg := Message{Status: StatusSent}

	assert.True(t, msg.Advance(StatusRead))
	assert.Equal(t, StatusRead, msg.Status)
}
