package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"signal-relay/src/models"
)

// HeaderSize is the fixed length prefix in front of every payload.
const HeaderSize = 4

// DefaultMaxFrameBytes bounds the declared payload length we are willing to
// read. Real signal frames are well under 1 KiB, so anything approaching
// this ceiling is a broken or hostile peer.
const DefaultMaxFrameBytes uint32 = 4 << 20

// Decode failure kinds. Callers handle all three the same way (close the
// connection, never retry at this layer) but logs and tests want to tell
// them apart.
var (
	ErrOversized = errors.New("frame length out of range")
	ErrTruncated = errors.New("truncated frame")
	ErrMalformed = errors.New("malformed payload")
)

// -----------------------------------------------------------------------------

// Encode serializes v and prepends the 4-byte big-endian length header.
// A marshal failure here means v itself is broken (channels, NaN...), so
// callers just propagate it.
func Encode(v interface{}) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame[:HeaderSize], uint32(len(payload)))
	copy(frame[HeaderSize:], payload)
	return frame, nil
}

// -----------------------------------------------------------------------------

// WriteMessage encodes v and writes the whole frame with a single Write
// call, so two goroutines sharing one connection (guarded by a mutex on the
// caller side) never interleave half a frame.
func WriteMessage(w io.Writer, v interface{}) error {
	frame, err := Encode(v)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// -----------------------------------------------------------------------------

// ReadMessage reads exactly one frame from r and decodes its payload.
//
// The returned error is the whole story for the caller:
//   - io.EOF means the peer closed cleanly between frames.
//   - ErrOversized / ErrTruncated / ErrMalformed (wrapped, use errors.Is)
//     mean the stream is unusable and the connection must be closed.
//   - anything else (deadline expired, reset) comes back untouched from the
//     underlying reader.
//
// The length check runs before the body buffer is allocated, so a hostile
// header cannot make us reserve gigabytes.
func ReadMessage(r io.Reader, maxBytes uint32) (models.MEnvelope, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: peer closed mid-header", ErrTruncated)
		}
		return nil, err
	}

	length := binary.BigEndian.Uint32(header)
	if length == 0 || length > maxBytes {
		return nil, fmt.Errorf("%w: declared %d bytes (max %d)", ErrOversized, length, maxBytes)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: peer closed mid-body, wanted %d bytes", ErrTruncated, length)
		}
		return nil, err
	}

	var env models.MEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env == nil {
		// "null" parses fine but carries nothing we can dispatch on.
		return nil, fmt.Errorf("%w: payload is not a JSON object", ErrMalformed)
	}
	return env, nil
}

// -----------------------------------------------------------------------------

// IsProtocolError reports whether err is one of the decode failures that
// must terminate the connection.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrOversized) || errors.Is(err, ErrTruncated) || errors.Is(err, ErrMalformed)
}
