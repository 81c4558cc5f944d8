package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusDraft.CanTransition(StatusPublished))
	assert.True(t, StatusDraft.CanTransition(StatusArchived))
	assert.True(t, StatusPublished.CanTransition(StatusArchived))

	assert.False(t, StatusPublished.CanTransition(StatusDraft))
	assert.False(t, StatusArchived.CanTransition(StatusDraft))
	assert.False(t, StatusArchived.CanTransition(StatusPublished))
	assert.False(t, StatusDraft.CanTransition(StatusDraft))
}

func TestStatusEditable(t *testing.T) {
	assert.True(t, StatusDraft.Editable())
	assert.False(t, StatusPublished.Editable())
	assert.False(t, StatusArchived.Editable())
}

func TestParseStatus(t *testing.T) {
	status, ok := ParseStatus(" published ")
	assert.True(t, ok)
	assert.Equal(t, StatusPublished, status)

	_, ok = ParseStatus("live")
	assert.False(t, ok)
}

func TestParseDataType(t *testing.T) {
	dt, ok := ParseDataType("decimal")
	assert.True(t, ok)
	assert.Equal(t, DataTypeDecimal, dt)

	_, ok = ParseDataType("float")
	assert.False(t, ok)
}
