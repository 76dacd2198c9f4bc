//go:build linux

package server

import (
	"time"

	"github.com/pkg/errors"

	"github.com/ShimQ88/apteryx/internal/sockio"
	"github.com/ShimQ88/apteryx/service"
	"github.com/ShimQ88/apteryx/wire"
)

// frameAndDispatch decodes and invokes every complete request currently
// sitting in c's inbound buffer. A method index outside the service's
// advertised range, or a payload that fails to decode, is reported as an
// error so the caller closes the connection; neither condition affects any
// other connection.
func (s *Server) frameAndDispatch(c *connection) error {
	desc := s.svc.Descriptor()

	for c.in.Len() >= wire.HeaderLen {
		hdr := wire.UnpackHeader(c.in.Bytes())
		total := wire.HeaderLen + int(hdr.MessageLength)
		if c.in.Len() < total {
			break
		}

		if hdr.MethodIndex >= uint32(desc.NMethods()) {
			return errors.Errorf("server: method index %d out of range", hdr.MethodIndex)
		}
		method, _ := desc.Method(hdr.MethodIndex)

		payload := c.in.Bytes()[wire.HeaderLen:total]
		input, err := method.Input.Unmarshal(payload)
		if err != nil {
			return errors.Wrap(err, "server: decode request payload")
		}

		s.cfg.hooks.Dispatch(c.fd, hdr.MethodIndex, hdr.RequestID)

		// reqHeader is copied by value: the closure below may run after
		// Consume advances the buffer, so it must not read through c.in.
		reqHeader := hdr
		s.svc.Invoke(hdr.MethodIndex, input, func(resp interface{}) {
			s.writeResponse(c, reqHeader, method.Output, resp)
		})

		c.in.Consume(total)
	}
	return nil
}

// writeResponse packs and sends a response frame: 4 zero status bytes, the
// 12-byte header (method index and request id echoed from the request),
// then the marshaled payload. Write failures are abandoned silently; the
// connection is reaped the next time its read callback sees EOF or an
// error.
func (s *Server) writeResponse(c *connection, reqHdr wire.Header, outDesc service.TypeDescriptor, resp interface{}) {
	size := outDesc.Size(resp)
	frame := make([]byte, wire.ResponsePrefixLen, wire.ResponsePrefixLen+size)

	respHdr := wire.Header{
		MethodIndex:   reqHdr.MethodIndex,
		MessageLength: uint32(size),
		RequestID:     reqHdr.RequestID,
	}
	wire.PackHeader(respHdr, frame[wire.StatusLen:])

	frame, err := outDesc.Marshal(frame, resp)
	if err != nil {
		s.cfg.hooks.Error("encode response", err)
		s.cfg.hooks.Responded(c.fd, reqHdr.MethodIndex, reqHdr.RequestID, err)
		return
	}

	off, remaining := 0, len(frame)
	for remaining > 0 {
		n, wouldBlock, err := sockio.Write(c.fd, frame[off:])
		if err != nil {
			s.cfg.hooks.Responded(c.fd, reqHdr.MethodIndex, reqHdr.RequestID, err)
			return
		}
		if wouldBlock {
			time.Sleep(time.Millisecond)
			continue
		}
		// Advance both the offset and the remaining count together: a
		// short write must not let the next send re-transmit bytes
		// already on the wire.
		off += n
		remaining -= n
	}
	s.cfg.hooks.Responded(c.fd, reqHdr.MethodIndex, reqHdr.RequestID, nil)
}
