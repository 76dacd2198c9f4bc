package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	cases := []Header{
		{MethodIndex: 0, MessageLength: 0, RequestID: 0},
		{MethodIndex: 1, MessageLength: 5, RequestID: 1},
		{MethodIndex: 0xFFFFFFFF, MessageLength: 0xFFFFFFFF, RequestID: 0xFFFFFFFF},
		{MethodIndex: 42, MessageLength: 8192, RequestID: 7},
	}

	for _, h := range cases {
		buf := make([]byte, HeaderLen)
		PackHeader(h, buf)
		got := UnpackHeader(buf)
		require.Equal(t, h, got)
	}
}

func TestPackHeaderIsLittleEndian(t *testing.T) {
	buf := make([]byte, HeaderLen)
	PackHeader(Header{MethodIndex: 1, MessageLength: 5, RequestID: 1}, buf)

	require.Equal(t, []byte{
		0x01, 0x00, 0x00, 0x00, // method_index = 1
		0x05, 0x00, 0x00, 0x00, // message_length = 5
		0x01, 0x00, 0x00, 0x00, // request_id = 1
	}, buf)
}

func TestHeaderLenConstants(t *testing.T) {
	require.Equal(t, 12, HeaderLen)
	require.Equal(t, 4, StatusLen)
	require.Equal(t, 16, ResponsePrefixLen)
}
