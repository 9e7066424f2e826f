package broadcast

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, f Frame) string {
	t.Helper()
	var buf bytes.Buffer
	n, err := f.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	return buf.String()
}

func TestFrame_WriteTo(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  string
	}{
		{"connected comment", CommentFrame(CommentConnected), ": connected\n\n"},
		{"ping comment", CommentFrame(CommentPing), ": ping\n\n"},
		{"named event", EventFrame("event", []byte(`{"id":1}`)), "event: event\ndata: {\"id\":1}\n\n"},
		{"multiline data", EventFrame("event", []byte("a\nb\r\nc")), "event: event\ndata: a\ndata: b\ndata: c\n\n"},
		{"unnamed data", Frame{Data: []byte("x")}, "data: x\n\n"},
		{"empty data", EventFrame("event", []byte{}), "event: event\ndata: \n\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, encode(t, tt.frame))
		})
	}
}

func TestFrame_IsComment(t *testing.T) {
	assert.True(t, CommentFrame(CommentPing).IsComment())
	assert.False(t, EventFrame("event", []byte("{}")).IsComment())
}
