package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsmux/lsmux/errors"
)

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	req := NewRequest(7, "textDocument/definition", map[string]any{
		"textDocument": map[string]any{"uri": "file:///a.go"},
		"position":     map[string]any{"line": 2, "character": 5},
	})
	require.NoError(t, Write(&buf, req))

	msg, err := NewDecoder(&buf).Read()
	require.NoError(t, err)

	assert.Equal(t, KindRequest, msg.Kind())
	assert.Equal(t, "textDocument/definition", msg.Method)

	id, ok := msg.ResponseID()
	require.True(t, ok)
	assert.Equal(t, int64(7), id)

	var params struct {
		Position struct {
			Line int `json:"line"`
		} `json:"position"`
	}
	require.NoError(t, json.Unmarshal(msg.Params, &params))
	assert.Equal(t, 2, params.Position.Line)
}

func TestWriteUsesByteLength(t *testing.T) {
	var buf bytes.Buffer

	// Multi-byte UTF-8 content: byte length must exceed character count
	require.NoError(t, Write(&buf, NewNotification("log", "héllo wörld")))

	raw := buf.String()
	var declared int
	_, err := fmt.Sscanf(raw, "Content-Length: %d", &declared)
	require.NoError(t, err)

	body := raw[strings.Index(raw, "\r\n\r\n")+4:]
	assert.Equal(t, len(body), declared)
	assert.Greater(t, len(body), len([]rune(body)))

	msg, err := NewDecoder(strings.NewReader(raw)).Read()
	require.NoError(t, err)
	assert.Equal(t, KindNotification, msg.Kind())
}

func TestDecoderPartialArrival(t *testing.T) {
	body := `{"jsonrpc":"2.0","method":"x"}`
	framed := fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)

	pr, pw := io.Pipe()
	go func() {
		// Header plus a partial body, then the rest after a delay
		pw.Write([]byte(framed[:len(framed)-10]))
		time.Sleep(20 * time.Millisecond)
		pw.Write([]byte(framed[len(framed)-10:]))
		pw.Close()
	}()

	msg, err := NewDecoder(pr).Read()
	require.NoError(t, err)
	assert.Equal(t, "x", msg.Method)
}

func TestDecoderCaseInsensitiveHeader(t *testing.T) {
	body := `{"jsonrpc":"2.0","method":"y"}`
	framed := fmt.Sprintf("content-length: %d\r\ncontent-type: application/json\r\n\r\n%s", len(body), body)

	msg, err := NewDecoder(strings.NewReader(framed)).Read()
	require.NoError(t, err)
	assert.Equal(t, "y", msg.Method)
}

func TestDecoderMalformedLengthSticks(t *testing.T) {
	framed := "Content-Length: banana\r\n\r\n{}"

	d := NewDecoder(strings.NewReader(framed))
	_, err := d.Read()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMalformedHeader))

	// Subsequent reads keep failing; resynchronization is impossible
	_, err = d.Read()
	assert.True(t, errors.Is(err, errors.ErrMalformedHeader))
}

func TestDecoderMissingContentLength(t *testing.T) {
	framed := "Content-Type: application/json\r\n\r\n{}"

	_, err := NewDecoder(strings.NewReader(framed)).Read()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMalformedHeader))
}

func TestDecoderMultipleMessages(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, NewNotification("first", nil)))
	require.NoError(t, Write(&buf, NewNotification("second", nil)))

	d := NewDecoder(&buf)

	msg, err := d.Read()
	require.NoError(t, err)
	assert.Equal(t, "first", msg.Method)

	msg, err = d.Read()
	require.NoError(t, err)
	assert.Equal(t, "second", msg.Method)

	_, err = d.Read()
	assert.Equal(t, io.EOF, err)
}

func TestDecoderInvalidBodyIsRecoverable(t *testing.T) {
	bad := "not-json!!"
	good := `{"jsonrpc":"2.0","method":"ok"}`
	framed := fmt.Sprintf("Content-Length: %d\r\n\r\n%sContent-Length: %d\r\n\r\n%s",
		len(bad), bad, len(good), good)

	d := NewDecoder(strings.NewReader(framed))

	_, err := d.Read()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidBody))

	// Framing stayed aligned; the next message decodes
	msg, err := d.Read()
	require.NoError(t, err)
	assert.Equal(t, "ok", msg.Method)
}

func TestMessageKinds(t *testing.T) {
	tests := []struct {
		body string
		want Kind
	}{
		{`{"id":1,"method":"m"}`, KindRequest},
		{`{"id":1,"result":{}}`, KindResponse},
		{`{"id":"s-1","error":{"code":-32603,"message":"boom"}}`, KindResponse},
		{`{"method":"m"}`, KindNotification},
		{`{"jsonrpc":"2.0"}`, KindInvalid},
		{`{"id":null,"method":"m"}`, KindNotification},
	}

	for _, tt := range tests {
		var msg Message
		require.NoError(t, json.Unmarshal([]byte(tt.body), &msg))
		assert.Equal(t, tt.want, msg.Kind(), "body=%s", tt.body)
	}
}

func TestResponseIDStringID(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{"id":"srv-1","method":"m"}`), &msg))

	_, ok := msg.ResponseID()
	assert.False(t, ok)
}

func TestErrorResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	resp := &Response{
		JSONRPC: Version,
		ID:      json.RawMessage(`"srv-9"`),
		Error:   &Error{Code: CodeMethodNotFound, Message: "method not found: foo/bar"},
	}
	require.NoError(t, Write(&buf, resp))

	msg, err := NewDecoder(&buf).Read()
	require.NoError(t, err)
	assert.Equal(t, KindResponse, msg.Kind())
	require.NotNil(t, msg.Error)
	assert.Equal(t, CodeMethodNotFound, msg.Error.Code)
	assert.Equal(t, json.RawMessage(`"srv-9"`), msg.ID)
}
