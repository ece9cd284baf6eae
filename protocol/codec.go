package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/lsmux/lsmux/errors"
)

const contentType = "application/json; charset=utf-8"

// ErrInvalidBody marks a message whose framing was intact but whose body was
// not valid JSON. Decoding may continue with the next message; only this one
// is lost.
var ErrInvalidBody = errors.New("invalid message body")

// Write encodes msg as JSON and frames it with Content-Length and
// Content-Type headers. The length is the UTF-8 byte length of the encoded
// body, not a character count.
func Write(w io.Writer, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal wire message")
	}

	header := fmt.Sprintf("Content-Length: %d\r\nContent-Type: %s\r\n\r\n", len(body), contentType)
	if _, err := io.WriteString(w, header); err != nil {
		return errors.Wrap(err, "failed to write message header")
	}
	if _, err := w.Write(body); err != nil {
		return errors.Wrap(err, "failed to write message body")
	}
	return nil
}

// Decoder reads framed messages from a byte stream, tolerating partial
// arrivals. Once framing is malformed the decoder refuses further reads:
// without additional markers there is no way to resynchronize to a correct
// message boundary.
type Decoder struct {
	r      *bufio.Reader
	failed error
}

// NewDecoder creates a streaming decoder over r
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64*1024)}
}

// Read returns the next complete message. io.EOF signals a clean end of
// stream between messages.
func (d *Decoder) Read() (*Message, error) {
	if d.failed != nil {
		return nil, d.failed
	}

	contentLength := -1
	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			if err == io.EOF && line == "" && contentLength < 0 {
				return nil, io.EOF
			}
			return nil, err
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			// Blank line terminates the headers
			break
		}

		// Header names are case-insensitive per the wire spec
		name, value, found := strings.Cut(line, ":")
		if !found {
			d.failed = errors.Wrapf(errors.ErrMalformedHeader, "missing colon in %q", line)
			return nil, d.failed
		}
		if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				d.failed = errors.Wrapf(errors.ErrMalformedHeader, "non-numeric Content-Length %q", strings.TrimSpace(value))
				return nil, d.failed
			}
			contentLength = n
		}
		// Other headers (Content-Type) are skipped
	}

	if contentLength < 0 {
		d.failed = errors.Wrap(errors.ErrMalformedHeader, "headers ended without Content-Length")
		return nil, d.failed
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(d.r, body); err != nil {
		return nil, errors.Wrapf(err, "failed to read %d-byte message body", contentLength)
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, errors.Wrapf(ErrInvalidBody, "%v", err)
	}
	return &msg, nil
}
