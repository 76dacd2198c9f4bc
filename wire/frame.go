// Package wire defines the fixed binary framing used by the apteryx RPC
// transport: a 12-byte little-endian header describing the method being
// called, the length of the payload that follows it, and a request id that
// is echoed back on the matching response.
//
// The codec is deliberately dumb: it knows nothing about payload contents
// and enforces no policy about when a frame is complete. Callers (server and
// client read loops) decide when enough bytes have accumulated to decode a
// header and, once decoded, when enough bytes have accumulated for the full
// frame.
package wire

import "encoding/binary"

// HeaderLen is the size in bytes of a frame header.
const HeaderLen = 12

// StatusLen is the size of the status word that the server prepends to
// every response frame, ahead of the header. The value is always zero; it
// is a placeholder inherited from the original transport and is not
// currently used to signal anything.
const StatusLen = 4

// ResponsePrefixLen is the total number of bytes preceding a response
// payload: the 4-byte status word plus the 12-byte header.
const ResponsePrefixLen = StatusLen + HeaderLen

// Header is the decoded form of a frame header.
type Header struct {
	MethodIndex   uint32
	MessageLength uint32
	RequestID     uint32
}

// PackHeader encodes h into buf as three little-endian uint32s. buf must be
// at least HeaderLen bytes long.
func PackHeader(h Header, buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.MethodIndex)
	binary.LittleEndian.PutUint32(buf[4:8], h.MessageLength)
	binary.LittleEndian.PutUint32(buf[8:12], h.RequestID)
}

// UnpackHeader decodes a Header from the first HeaderLen bytes of buf. buf
// must be at least HeaderLen bytes long.
func UnpackHeader(buf []byte) Header {
	return Header{
		MethodIndex:   binary.LittleEndian.Uint32(buf[0:4]),
		MessageLength: binary.LittleEndian.Uint32(buf[4:8]),
		RequestID:     binary.LittleEndian.Uint32(buf[8:12]),
	}
}
