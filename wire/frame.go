// Package wire implements the binary network protocol for ZTeraDB.
//
// Protocol Format:
//
//	[Length (4 bytes)] + [Body (JSON)]
//
// Length is the uint32 big-endian byte size of the body. The body is UTF-8
// JSON in both directions. Responses to a query arrive as a stream of frames
// terminated by a frame whose response_code is ResponseQueryComplete.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	zterr "github.com/zteradb/zteradb-go/errors"
)

// LengthSize is the size of the frame length prefix.
const LengthSize = 4

// MaxFrameSize caps a single frame's body. A length prefix beyond this is
// treated as corrupt framing rather than an allocation request.
const MaxFrameSize = 16 * 1024 * 1024

// EncodeFrame prepends the big-endian length prefix to payload.
func EncodeFrame(payload []byte) []byte {
	frame := make([]byte, LengthSize+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[LengthSize:], payload)
	return frame
}

// DecodeLength reads the length prefix from the first 4 bytes of b.
func DecodeLength(b []byte) uint32 {
	return binary.BigEndian.Uint32(b[:LengthSize])
}

// EncodeJSON marshals v to JSON bytes.
func EncodeJSON(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, zterr.Value("failed to encode JSON payload: %v", err)
	}
	return b, nil
}

// DecodeJSON unmarshals payload into v. The error message carries the
// offending bytes, truncated.
func DecodeJSON(payload []byte, v interface{}) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return zterr.JSONParse(payload, err)
	}
	return nil
}

// WriteFrame writes one framed payload to w. io.Writer contracts require the
// full buffer to be consumed or an error returned, so a single Write suffices
// for the retry-on-partial-write discipline.
func WriteFrame(w io.Writer, payload []byte) error {
	if _, err := w.Write(EncodeFrame(payload)); err != nil {
		return zterr.Connection("failed to write frame", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed payload from r. A clean EOF before the
// first length byte, or any short read, means the connection closed or was
// interrupted mid-frame.
func ReadFrame(r io.Reader) ([]byte, error) {
	lenBuf := make([]byte, LengthSize)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, zterr.Protocol("connection closed or interrupted", err)
	}

	length := DecodeLength(lenBuf)
	if length > MaxFrameSize {
		return nil, zterr.Protocol(fmt.Sprintf("frame size %d exceeds maximum", length), nil)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, zterr.Protocol("connection closed or interrupted", err)
	}

	return body, nil
}

// ReadMessage reads one frame and decodes it as a server message.
func ReadMessage(r io.Reader) (*Message, error) {
	body, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := DecodeJSON(body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// WriteJSONFrame marshals v and writes it as one frame.
func WriteJSONFrame(w io.Writer, v interface{}) error {
	payload, err := EncodeJSON(v)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}
