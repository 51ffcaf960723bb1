package wire

import (
	"bytes"
	"strings"
	"testing"

	zterr "github.com/zteradb/zteradb-go/errors"
)

func TestEncodeFrame(t *testing.T) {
	payload := []byte(`{"a":1}`)
	frame := EncodeFrame(payload)

	want := []byte{0x00, 0x00, 0x00, 0x07, '{', '"', 'a', '"', ':', '1', '}'}
	if !bytes.Equal(frame, want) {
		t.Errorf("frame = % X, want % X", frame, want)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte(`{}`),
		[]byte(`{"a":1}`),
		[]byte(strings.Repeat("x", 70000)), // larger than one length byte
		{},
	}

	for _, p := range payloads {
		frame := EncodeFrame(p)
		if got := DecodeLength(frame); got != uint32(len(p)) {
			t.Errorf("DecodeLength = %d, want %d", got, len(p))
		}
		if !bytes.Equal(frame[LengthSize:], p) {
			t.Error("frame body does not match payload")
		}
	}
}

func TestReadFrame(t *testing.T) {
	payload := []byte(`{"response_code":1544}`)
	buf := bytes.NewBuffer(EncodeFrame(payload))

	got, err := ReadFrame(buf)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("ReadFrame = %s, want %s", got, payload)
	}
}

func TestReadFrameShortLength(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0x00, 0x00})

	_, err := ReadFrame(buf)
	if !zterr.IsProtocol(err) {
		t.Errorf("expected protocol error, got %v", err)
	}
}

func TestReadFrameShortBody(t *testing.T) {
	frame := EncodeFrame([]byte(`{"a":1}`))
	buf := bytes.NewBuffer(frame[:len(frame)-3])

	_, err := ReadFrame(buf)
	if !zterr.IsProtocol(err) {
		t.Errorf("expected protocol error, got %v", err)
	}
}

func TestReadFrameEOF(t *testing.T) {
	_, err := ReadFrame(bytes.NewBuffer(nil))
	if !zterr.IsProtocol(err) {
		t.Errorf("expected protocol error on clean EOF, got %v", err)
	}
}

func TestReadFrameOversized(t *testing.T) {
	// Advertise a body far beyond MaxFrameSize.
	buf := bytes.NewBuffer([]byte{0xFF, 0xFF, 0xFF, 0xFF})

	_, err := ReadFrame(buf)
	if !zterr.IsProtocol(err) {
		t.Errorf("expected protocol error for oversized frame, got %v", err)
	}
}

func TestReadMessage(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSONFrame(&buf, map[string]interface{}{
		"response_code": int(ResponseQueryData),
		"data":          map[string]interface{}{"id": float64(1)},
	}); err != nil {
		t.Fatalf("WriteJSONFrame failed: %v", err)
	}

	msg, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if msg.ResponseCode != ResponseQueryData {
		t.Errorf("response code = %#x, want %#x", msg.ResponseCode, ResponseQueryData)
	}
	row := msg.Row()
	if row == nil || row["id"] != float64(1) {
		t.Errorf("unexpected row: %v", row)
	}
}

func TestReadMessageBadJSON(t *testing.T) {
	buf := bytes.NewBuffer(EncodeFrame([]byte(`{"response_code":`)))

	_, err := ReadMessage(buf)
	if !zterr.IsJSONParse(err) {
		t.Errorf("expected JSON parse error, got %v", err)
	}
	if !strings.Contains(err.Error(), `{"response_code":`) {
		t.Error("error message should include the offending payload")
	}
}

func TestDataString(t *testing.T) {
	m := &Message{ResponseCode: ResponseFieldError, Data: "unknown field"}
	if m.DataString() != "unknown field" {
		t.Errorf("DataString = %q", m.DataString())
	}

	m = &Message{ResponseCode: ResponseQueryError, Data: map[string]interface{}{"reason": "boom"}}
	if m.DataString() != `{"reason":"boom"}` {
		t.Errorf("DataString = %q", m.DataString())
	}

	m = &Message{ResponseCode: ResponseQueryComplete}
	if m.DataString() != "" {
		t.Errorf("DataString = %q, want empty", m.DataString())
	}
}
