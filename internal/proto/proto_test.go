package proto

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeChat(t *testing.T) {
	env := NewEnvelope(MsgChat, "s-1", "Alice", Chat{Text: "gl hf", Timestamp: 42})
	s, err := Encode(env)
	require.NoError(t, err)

	got, err := Decode(s)
	require.NoError(t, err)
	assert.Equal(t, MsgChat, got.Type)
	assert.Equal(t, "s-1", got.Session)
	assert.Equal(t, "Alice", got.Name)

	chat, err := DecodeBody[Chat](got)
	require.NoError(t, err)
	assert.Equal(t, Chat{Text: "gl hf", Timestamp: 42}, chat)
}

func TestAliveHasNoBody(t *testing.T) {
	s, err := Encode(NewEnvelope(MsgAlive, "s-1", "Alice", nil))
	require.NoError(t, err)
	assert.NotContains(t, s, "body")

	env, err := Decode(s)
	require.NoError(t, err)
	_, err = DecodeBody[Chat](env)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeRejects(t *testing.T) {
	_, err := Decode("not json")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode(`{"type":"hello","session":"x"}`)
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = Decode(`{"type":"chat"}`)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Encode(Envelope{Type: "bogus", Session: "x"})
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestGameAnnouncementValidate(t *testing.T) {
	good := GameAnnouncement{
		Revision: ProtocolRevision,
		GameID:   "YR",
		Map:      "Dustbowl",
		Mode:     "Standard",
		Players:  []string{"Alice", "Bob"},
	}
	require.NoError(t, good.Validate(ProtocolRevision))

	old := good
	old.Revision = "LL0"
	assert.ErrorIs(t, old.Validate(ProtocolRevision), ErrBadAnnouncement)

	noGame := good
	noGame.GameID = " "
	assert.ErrorIs(t, noGame.Validate(ProtocolRevision), ErrBadAnnouncement)

	noHost := good
	noHost.Players = nil
	assert.ErrorIs(t, noHost.Validate(ProtocolRevision), ErrBadAnnouncement)
}

func TestRoomName(t *testing.T) {
	g := GameAnnouncement{Players: []string{"Alice"}}
	assert.Equal(t, "Alice's Game [192.168.1.10]", g.RoomName(netip.MustParseAddr("192.168.1.10")))
	assert.Equal(t, "Alice's Game", g.RoomName(netip.Addr{}))
	assert.True(t, g.Incompatible("1.2"))
}
