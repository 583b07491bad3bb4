package godwarf

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDwarfEndian(t *testing.T) {
	// version field at bytes 4..6 of .debug_info
	little := []byte{0, 0, 0, 0, 0x04, 0x00}
	big := []byte{0, 0, 0, 0, 0x00, 0x04}

	require.Equal(t, binary.LittleEndian, DwarfEndian(little))
	require.Equal(t, binary.BigEndian, DwarfEndian(big))

	// too short or ambiguous defaults to big endian
	require.Equal(t, binary.BigEndian, DwarfEndian([]byte{0, 0}))
	require.Equal(t, binary.BigEndian, DwarfEndian([]byte{0, 0, 0, 0, 0x01, 0x01}))
}

func TestDecompressMaybe(t *testing.T) {
	// uncompressed data passes through
	plain := []byte{0xde, 0xad, 0xbe, 0xef}
	out, err := decompressMaybe(plain)
	require.NoError(t, err)
	require.Equal(t, plain, out)

	// a zdebug payload: "ZLIB" + 8-byte big-endian size + zlib stream
	payload := []byte("call frame information")
	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	_, err = zw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	section := make([]byte, 12+compressed.Len())
	copy(section, "ZLIB")
	binary.BigEndian.PutUint64(section[4:12], uint64(len(payload)))
	copy(section[12:], compressed.Bytes())

	out, err = decompressMaybe(section)
	require.NoError(t, err)
	require.Equal(t, payload, out)
}
