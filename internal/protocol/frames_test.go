package protocol

import (
	"testing"

	"github.com/dkeye/Relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Variants(t *testing.T) {
	f, err := Decode([]byte(`{"type":"join","room":"u1-u2","userId":"u1"}`))
	require.NoError(t, err)
	assert.Equal(t, Join{Room: "u1-u2", UserID: "u1"}, f)

	f, err = Decode([]byte(`{"type":"leave","room":"public"}`))
	require.NoError(t, err)
	assert.Equal(t, Leave{Room: domain.PublicRoom}, f)

	f, err = Decode([]byte(`{"type":"message","room":"g1","text":"hi","senderId":"u1","isGroup":true}`))
	require.NoError(t, err)
	chat, ok := f.(Chat)
	require.True(t, ok)
	assert.Equal(t, "hi", chat.Text)
	assert.Equal(t, domain.UserID("u1"), chat.SenderID)
	assert.True(t, chat.IsGroup)
	assert.Equal(t, TypeMessage, chat.Type())
}

func TestDecode_Errors(t *testing.T) {
	cases := map[string]struct {
		raw  string
		want error
	}{
		"invalid json":      {`{"type":`, ErrMalformed},
		"not an object":     {`"join"`, ErrMalformed},
		"wrong field type":  {`{"type":"message","text":42}`, ErrMalformed},
		"missing type":      {`{"room":"r"}`, ErrMissingField},
		"join without room": {`{"type":"join","room":"  "}`, ErrMissingField},
		"unknown type":      {`{"type":"typing","room":"r"}`, ErrUnknownType},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(tc.raw))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestDelivery_Encode(t *testing.T) {
	b, err := NewDelivery("hi", "u1", false).Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"hi","senderId":"u1"}`, string(b))

	b, err = NewDelivery("hi", "u1", true).Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"hi","senderId":"u1","isRead":false}`, string(b))
}
