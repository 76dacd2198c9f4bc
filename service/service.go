// Package service defines the narrow collaborator interface that the
// transport core talks to, on both the server and the client side. The
// core never interprets payload bytes: it asks a TypeDescriptor to
// marshal/unmarshal them, and asks a Service to turn a decoded input
// message into a response.
//
// Everything in this package is a contract, not an implementation — the
// request-dispatch registry and the message encoding library live outside
// the transport, exactly as spec.md's scope requires.
package service

// TypeDescriptor knows how to move a single message type to and from wire
// bytes. The transport core treats the messages it produces and consumes as
// opaque interface{} values.
type TypeDescriptor interface {
	// Unmarshal decodes data into a new message value.
	Unmarshal(data []byte) (interface{}, error)
	// Marshal encodes msg, appending the result to dst, and returns the
	// extended slice.
	Marshal(dst []byte, msg interface{}) ([]byte, error)
	// Size returns the number of bytes Marshal would append for msg,
	// without allocating the encoded form.
	Size(msg interface{}) int
}

// Method describes one RPC method: the shape of its input and the shape of
// its output.
type Method struct {
	Input  TypeDescriptor
	Output TypeDescriptor
}

// Descriptor is the ordered method table a Service advertises. A method's
// position in Methods is its wire method index.
type Descriptor struct {
	Methods []Method
}

// NMethods returns the number of methods in the table.
func (d *Descriptor) NMethods() int {
	if d == nil {
		return 0
	}
	return len(d.Methods)
}

// Method returns the method at index i, or false if i is out of range.
func (d *Descriptor) Method(i uint32) (Method, bool) {
	if d == nil || i >= uint32(len(d.Methods)) {
		return Method{}, false
	}
	return d.Methods[i], true
}

// Closure is the continuation a Service invocation calls with its result.
// It is called exactly once per Invoke. A nil response indicates that no
// reply could be produced (the client-side equivalent of a failed
// invocation); it must never be interpreted as a zero-length payload,
// which is itself a valid response.
type Closure func(resp interface{})

// Service is the interface the transport core drives on both ends of a
// connection: a server-side handler registry, and (with the same shape) a
// client-side stub that transmits a request and waits for a reply.
type Service interface {
	// Descriptor returns the method table this service implements.
	Descriptor() *Descriptor

	// Invoke calls the method identified by methodIndex with input, and
	// reports the result to closure. closure may be called synchronously,
	// before Invoke returns, or asynchronously; callers that need to
	// correlate the response with request metadata captured before Invoke
	// was called must do so by value, not by reference to a stack local
	// that Invoke's caller may have already abandoned.
	Invoke(methodIndex uint32, input interface{}, closure Closure)
}
