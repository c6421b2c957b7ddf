package frame

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripPayloadLengths(t *testing.T) {
	const frameSize = 64
	for l := 0; l <= frameSize-HeaderSize; l++ {
		payload := bytes.Repeat([]byte{byte(l)}, l)

		var buf bytes.Buffer
		require.NoError(t, NewEncoder(&buf).Encode(Data(payload)))
		require.Equal(t, HeaderSize+l, buf.Len())

		got, err := NewDecoder(&buf, frameSize).Decode()
		require.NoError(t, err)
		require.Equal(t, TypeData, got.Type)
		require.Equal(t, l, got.Len())
		require.True(t, bytes.Equal(payload, got.Payload), "payload mismatch at length %d", l)
	}
}

func TestRoundTripMaxPayload(t *testing.T) {
	payload := bytes.Repeat([]byte{0x5a}, MaxPayload)
	b, err := Data(payload).MarshalBinary()
	require.NoError(t, err)

	var got Frame
	require.NoError(t, got.UnmarshalBinary(b))
	require.Equal(t, MaxPayload, got.Len())

	dec, err := NewDecoder(bytes.NewReader(b), 0).Decode()
	require.NoError(t, err)
	require.True(t, bytes.Equal(payload, dec.Payload))
}

func TestHeaderLayout(t *testing.T) {
	b, err := Data([]byte("hi")).MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x01, 0x00, 0x02, 'h', 'i'}, b)

	b, err = Ack().MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x03, 0x00, 0x00}, b)

	b, err = Collision().MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x02, 0x00, 0x00}, b)
}

func TestUnmarshalBinary(t *testing.T) {
	var f Frame
	require.ErrorIs(t, f.UnmarshalBinary([]byte{0, 1}), ErrShortHeader)
	require.ErrorIs(t, f.UnmarshalBinary([]byte{0, 1, 0, 5, 'a'}), io.ErrUnexpectedEOF)

	require.NoError(t, f.UnmarshalBinary([]byte{0, 9, 0, 1, 'z'}))
	require.Equal(t, Type(9), f.Type)
	require.Equal(t, "UNKNOWN(9)", f.Type.String())
	require.Equal(t, []byte("z"), f.Payload)
}

func TestDecoderStreamOfFrames(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode(Data([]byte("first"))))
	require.NoError(t, enc.Encode(Collision()))
	require.NoError(t, enc.Encode(Data(nil)))

	dec := NewDecoder(&buf, MaxFrameSize)
	want := []Frame{Data([]byte("first")), Collision(), Data(nil)}
	for i, w := range want {
		got, err := dec.Decode()
		require.NoError(t, err, "frame %d", i)
		require.Equal(t, w.Type, got.Type)
		require.Equal(t, w.Len(), got.Len())
	}
	_, err := dec.Decode()
	require.ErrorIs(t, err, io.EOF)
}

func TestDecoderBounds(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(Data(make([]byte, 100))))

	_, err := NewDecoder(bytes.NewReader(buf.Bytes()), 50).Decode()
	require.ErrorIs(t, err, ErrFrameTooLarge)

	// truncated inside the payload
	_, err = NewDecoder(bytes.NewReader(buf.Bytes()[:10]), 0).Decode()
	require.True(t, errors.Is(err, io.ErrUnexpectedEOF), "got %v", err)

	// truncated inside the header
	_, err = NewDecoder(bytes.NewReader(buf.Bytes()[:2]), 0).Decode()
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	err := NewEncoder(io.Discard).Encode(Data(make([]byte, MaxPayload+1)))
	require.ErrorIs(t, err, ErrFrameTooLarge)
}
