package block

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pgpfix/pgpfix/iobuf"
)

// payload256x10 is 0x00..0xFF repeated 10 times.
func payload256x10() []byte {
	out := make([]byte, 0, 2560)
	for i := 0; i < 10; i++ {
		for b := 0; b < 256; b++ {
			out = append(out, byte(b))
		}
	}
	return out
}

func encodePartial(t *testing.T, payload []byte) []byte {
	t.Helper()
	out := iobuf.NewTempOutput(iobuf.Options{})
	require.NoError(t, PushWrite(out))
	_, err := out.Write(payload)
	require.NoError(t, err)
	require.NoError(t, out.Close())
	return out.Bytes()
}

func decodePartial(t *testing.T, wire []byte) []byte {
	t.Helper()
	require.NotEmpty(t, wire)
	in := iobuf.NewTempInput(wire[1:], iobuf.Options{})
	require.NoError(t, PushRead(in, wire[0]))

	var got []byte
	buf := make([]byte, 777)
	for {
		n, err := in.Read(buf)
		got = append(got, buf[:n]...)
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			return got
		}
	}
}

func TestWrite_PartialChunks(t *testing.T) {
	payload := payload256x10()
	wire := encodePartial(t, payload)

	// five 512-byte partial segments, each headed 0xE9 (2^9), then an
	// empty final header
	want := make([]byte, 0, 2566)
	for i := 0; i < 5; i++ {
		want = append(want, 0xE9)
		want = append(want, payload[i*512:(i+1)*512]...)
	}
	want = append(want, 0x00)
	require.Equal(t, want, wire)
}

func TestRoundtrip(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"tiny", []byte("hello")},
		{"tail 191", bytes.Repeat([]byte{0xAB}, 512+191)},
		{"tail 192", bytes.Repeat([]byte{0xCD}, 512+192)},
		{"tail 511", bytes.Repeat([]byte{0xEF}, 1024+511)},
		{"scenario", payload256x10()},
		{"exact chunk", bytes.Repeat([]byte{0x11}, 512)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire := encodePartial(t, tt.payload)
			got := decodePartial(t, wire)
			require.Equal(t, len(tt.payload), len(got))
			if len(tt.payload) > 0 {
				require.Equal(t, tt.payload, got)
			}
		})
	}
}

func TestWrite_FinalHeaderEncodings(t *testing.T) {
	// below 192: single octet
	wire := encodePartial(t, bytes.Repeat([]byte{0x7F}, 100))
	require.Equal(t, byte(100), wire[0])
	require.Len(t, wire, 101)

	// 192..8383: two-octet biased encoding
	wire = encodePartial(t, bytes.Repeat([]byte{0x7F}, 300))
	require.Equal(t, byte((300-192)>>8+192), wire[0])
	require.Equal(t, byte((300-192)&0xFF), wire[1])
	require.Len(t, wire, 302)
}

func TestWriteFinalHeader_FiveOctet(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFinalHeader(&buf, 100000))
	require.Equal(t, []byte{0xFF, 0x00, 0x01, 0x86, 0xA0}, buf.Bytes())
}

func TestRead_Headers(t *testing.T) {
	// single-octet final segment
	got := decodePartial(t, append([]byte{5}, []byte("hello")...))
	require.Equal(t, []byte("hello"), got)

	// two-octet final segment: 192 + 8 = 0xC0 0x08
	payload := bytes.Repeat([]byte{0x42}, 200)
	got = decodePartial(t, append([]byte{0xC0, 0x08}, payload...))
	require.Equal(t, payload, got)

	// five-octet final segment
	payload = bytes.Repeat([]byte{0x99}, 600)
	wire := append([]byte{0xFF, 0x00, 0x00, 0x02, 0x58}, payload...)
	got = decodePartial(t, wire)
	require.Equal(t, payload, got)
}

func TestRead_EmptyFinalLatchesEOF(t *testing.T) {
	in := iobuf.NewTempInput(nil, iobuf.Options{})
	require.NoError(t, PushRead(in, 0x00))
	n, err := in.Read(make([]byte, 10))
	require.Zero(t, n)
	require.ErrorIs(t, err, io.EOF)
}

func TestRead_TruncatedSegmentIsBadData(t *testing.T) {
	// header promises 512 bytes, stream carries 10; whatever arrived is
	// delivered, then the corruption surfaces
	in := iobuf.NewTempInput(bytes.Repeat([]byte{0x55}, 10), iobuf.Options{})
	require.NoError(t, PushRead(in, 0xE9))

	buf := make([]byte, 600)
	var got int
	var err error
	for err == nil {
		var n int
		n, err = in.Read(buf)
		got += n
	}
	require.Equal(t, 10, got)
	require.ErrorIs(t, err, iobuf.ErrBadData)
}

func TestRead_MissingNextHeaderIsBadData(t *testing.T) {
	// a full partial segment, then EOF instead of the next length octet
	in := iobuf.NewTempInput(bytes.Repeat([]byte{0x55}, 512), iobuf.Options{})
	require.NoError(t, PushRead(in, 0xE9))

	got := make([]byte, 0, 512)
	buf := make([]byte, 100)
	var err error
	for err == nil {
		var n int
		n, err = in.Read(buf)
		got = append(got, buf[:n]...)
	}
	require.Len(t, got, 512)
	require.ErrorIs(t, err, iobuf.ErrBadData)
}
