package sandbox

import "bytes"

// boundedBuffer caps how many bytes of child output are retained; writes
// past the limit are acknowledged but discarded so a runaway child never
// grows the buffer unbounded.
type boundedBuffer struct {
	buf     bytes.Buffer
	limit   int
	written int
}

func newBoundedBuffer(limit int) *boundedBuffer {
	return &boundedBuffer{limit: limit}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	if b.written >= b.limit {
		b.written += len(p)
		return len(p), nil
	}
	room := b.limit - b.written
	if len(p) <= room {
		b.buf.Write(p)
		b.written += len(p)
		return len(p), nil
	}
	b.buf.Write(p[:room])
	b.written += len(p)
	return len(p), nil
}

func (b *boundedBuffer) Bytes() []byte { return b.buf.Bytes() }
