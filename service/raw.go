package service

// RawBytes is a TypeDescriptor for methods whose wire payload is simply the
// raw message bytes, with no further structure. It is useful for tests and
// for the cmd/apteryxd and cmd/apteryxc examples, where the method-dispatch
// registry and encoding library (both external collaborators per the
// transport's scope) are trivial.
var RawBytes TypeDescriptor = rawBytes{}

type rawBytes struct{}

func (rawBytes) Unmarshal(data []byte) (interface{}, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (rawBytes) Marshal(dst []byte, msg interface{}) ([]byte, error) {
	b, _ := msg.([]byte)
	return append(dst, b...), nil
}

func (rawBytes) Size(msg interface{}) int {
	b, _ := msg.([]byte)
	return len(b)
}
