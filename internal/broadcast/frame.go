package broadcast

import (
	"bytes"
	"io"
)

// Control comments sent on every stream.
const (
	CommentConnected = "connected"
	CommentPing      = "ping"
)

// Frame is one server-sent event. Comment frames carry Comment only; event
// frames carry a name and a payload.
type Frame struct {
	Event   string
	Data    []byte
	Comment string
}

func CommentFrame(text string) Frame {
	return Frame{Comment: text}
}

func EventFrame(name string, data []byte) Frame {
	return Frame{Event: name, Data: data}
}

func (f Frame) IsComment() bool {
	return f.Event == "" && f.Data == nil
}

// WriteTo encodes the frame in text/event-stream format.
func (f Frame) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	if f.IsComment() {
		buf.WriteString(": ")
		buf.WriteString(f.Comment)
		buf.WriteString("\n\n")
	} else {
		if f.Event != "" {
			buf.WriteString("event: ")
			buf.WriteString(f.Event)
			buf.WriteByte('\n')
		}
		for _, line := range bytes.Split(f.Data, []byte("\n")) {
			buf.WriteString("data: ")
			buf.Write(bytes.TrimSuffix(line, []byte("\r")))
			buf.WriteByte('\n')
		}
		buf.WriteByte('\n')
	}
	return buf.WriteTo(w)
}
