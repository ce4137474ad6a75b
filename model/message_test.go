package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageSides(t *testing.T) {
	m := &Message{SenderID: "alice", ReceiverID: "bob"}

	assert.Equal(t, "bob", m.Peer("alice"))
	assert.Equal(t, "alice", m.Peer("bob"))
	assert.True(t, m.Participant("bob"))
	assert.False(t, m.Participant("carol"))

	m.DeletedForReceiver = true
	assert.True(t, m.HiddenFor("bob"))
	assert.False(t, m.HiddenFor("alice"))
}
