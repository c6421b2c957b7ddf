// Package frame defines the wire format shared by the arbiter and the senders.
//
// A frame is a fixed 4 byte header followed by the payload:
//
//	+----------------+----------------+------------------+
//	| type (u16, BE) | length (u16,BE)| payload (length) |
//	+----------------+----------------+------------------+
//
// COLLISION and ACK frames carry length 0 and no payload. Frames are length
// delimited on the stream; the negotiated frame size only bounds them.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

type Type uint16

const (
	TypeData      Type = 1
	TypeCollision Type = 2
	TypeAck       Type = 3
)

const (
	// HeaderSize is the encoded size of the frame header in bytes.
	HeaderSize = 4
	// MaxFrameSize bounds what the arbiter reads for a single frame.
	MaxFrameSize = 2000
	// MaxPayload is the largest payload the length field can describe.
	MaxPayload = 1<<16 - 1
)

var (
	ErrShortHeader   = errors.New("frame: short header")
	ErrFrameTooLarge = errors.New("frame: frame exceeds size bound")
)

func (t Type) String() string {
	switch t {
	case TypeData:
		return "DATA"
	case TypeCollision:
		return "COLLISION"
	case TypeAck:
		return "ACK"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint16(t))
	}
}

// Frame is one decoded transmission unit.
type Frame struct {
	Type    Type
	Payload []byte
}

// Data builds a DATA frame around payload. The slice is not copied.
func Data(payload []byte) Frame { return Frame{Type: TypeData, Payload: payload} }

// Ack and Collision are the arbiter's feedback frames.
func Ack() Frame { return Frame{Type: TypeAck} }
func Collision() Frame { return Frame{Type: TypeCollision} }

// Len returns the value of the header length field.
func (f Frame) Len() int { return len(f.Payload) }

// Size returns the number of bytes the frame occupies on the wire.
func (f Frame) Size() int { return HeaderSize + len(f.Payload) }

func (f Frame) MarshalBinary() ([]byte, error) {
	if len(f.Payload) > MaxPayload {
		return nil, fmt.Errorf("%w: payload %d bytes", ErrFrameTooLarge, len(f.Payload))
	}
	buf := make([]byte, f.Size())
	binary.BigEndian.PutUint16(buf[0:2], uint16(f.Type))
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(f.Payload)))
	copy(buf[HeaderSize:], f.Payload)
	return buf, nil
}

func (f *Frame) UnmarshalBinary(b []byte) error {
	if len(b) < HeaderSize {
		return ErrShortHeader
	}
	n := int(binary.BigEndian.Uint16(b[2:4]))
	if len(b)-HeaderSize < n {
		return fmt.Errorf("frame: length %d but %d payload bytes: %w", n, len(b)-HeaderSize, io.ErrUnexpectedEOF)
	}
	f.Type = Type(binary.BigEndian.Uint16(b[0:2]))
	f.Payload = append([]byte(nil), b[HeaderSize:HeaderSize+n]...)
	return nil
}

// Encoder writes frames to a stream, one Write call per frame.
type Encoder struct {
	w   io.Writer
	buf []byte
}

func NewEncoder(w io.Writer) *Encoder { return &Encoder{w: w} }

func (e *Encoder) Encode(f Frame) error {
	if len(f.Payload) > MaxPayload {
		return fmt.Errorf("%w: payload %d bytes", ErrFrameTooLarge, len(f.Payload))
	}
	need := f.Size()
	if cap(e.buf) < need {
		e.buf = make([]byte, need)
	}
	b := e.buf[:need]
	binary.BigEndian.PutUint16(b[0:2], uint16(f.Type))
	binary.BigEndian.PutUint16(b[2:4], uint16(len(f.Payload)))
	copy(b[HeaderSize:], f.Payload)
	_, err := e.w.Write(b)
	return err
}

// Decoder reads frames from a stream. Frames whose total size exceeds the
// configured bound are rejected with ErrFrameTooLarge.
type Decoder struct {
	r       io.Reader
	maxSize int
	hdr     [HeaderSize]byte
}

// NewDecoder returns a Decoder bounded by maxSize bytes per frame; a
// non-positive maxSize means no bound beyond the length field itself.
func NewDecoder(r io.Reader, maxSize int) *Decoder {
	if maxSize <= 0 {
		maxSize = HeaderSize + MaxPayload
	}
	return &Decoder{r: r, maxSize: maxSize}
}

// Decode returns io.EOF when the stream ends cleanly between frames and
// io.ErrUnexpectedEOF when it ends inside one.
func (d *Decoder) Decode() (Frame, error) {
	if _, err := io.ReadFull(d.r, d.hdr[:]); err != nil {
		return Frame{}, err
	}
	t := Type(binary.BigEndian.Uint16(d.hdr[0:2]))
	n := int(binary.BigEndian.Uint16(d.hdr[2:4]))
	if HeaderSize+n > d.maxSize {
		return Frame{}, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, HeaderSize+n, d.maxSize)
	}
	f := Frame{Type: t}
	if n > 0 {
		f.Payload = make([]byte, n)
		if _, err := io.ReadFull(d.r, f.Payload); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return Frame{}, err
		}
	}
	return f, nil
}
