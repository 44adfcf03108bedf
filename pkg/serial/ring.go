package serial

// DefaultRingCapacity is the ring size used by the gateway.
const DefaultRingCapacity = 128

// Separator terminates a record.
const Separator = '\n'

// RecordHandler receives a complete record. The slice is only valid
// during the call.
type RecordHandler interface {
	HandleRecord([]byte)
}

// HandleRecordFunc is the func form of RecordHandler.
type HandleRecordFunc func([]byte)

// HandleRecord implements RecordHandler.
func (f HandleRecordFunc) HandleRecord(rec []byte) {
	f(rec)
}

// Ring is a fixed-capacity circular framer.
type Ring struct {
	buf   []byte
	read  int
	write int
	fill  int
	rec   []byte
}

// NewRing creates a ring of capacity bytes.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Ring{buf: make([]byte, capacity), rec: make([]byte, 0, capacity)}
}

// Cap returns the capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Len returns the number of buffered bytes.
func (r *Ring) Len() int {
	return r.fill
}

// Reset purges all buffered bytes.
func (r *Ring) Reset() {
	r.read, r.write, r.fill = 0, 0, 0
}

// Feed appends chunk and delivers every complete record to h. If the
// chunk does not fit, the ring is purged, the chunk is dropped and
// ErrOverrun is returned.
func (r *Ring) Feed(chunk []byte, h RecordHandler) error {
	if len(chunk) == 0 {
		return nil
	}
	if r.fill+len(chunk) > len(r.buf) {
		r.Reset()
		return ErrOverrun
	}
	n := copy(r.buf[r.write:], chunk)
	if n < len(chunk) {
		copy(r.buf, chunk[n:])
	}
	r.write = (r.write + len(chunk)) % len(r.buf)
	r.fill += len(chunk)
	r.scan(h)
	return nil
}

// scan walks fill bytes from the read index, not read..write, so a
// ring that is exactly full is still examined.
func (r *Ring) scan(h RecordHandler) {
	size := len(r.buf)
	start, length := r.read, 0
	for i, scanned := start, 0; scanned < r.fill; i, scanned = (i+1)%size, scanned+1 {
		if r.buf[i] != Separator {
			length++
			continue
		}
		r.rec = r.rec[:0]
		if start+length <= size {
			r.rec = append(r.rec, r.buf[start:start+length]...)
		} else {
			r.rec = append(r.rec, r.buf[start:]...)
			r.rec = append(r.rec, r.buf[:length-(size-start)]...)
		}
		r.buf[i] = 0
		next := (i + 1) % size
		r.fill -= length + 1
		scanned -= length + 1
		r.read, start, length = next, next, 0
		if h != nil {
			h.HandleRecord(r.rec)
		}
	}
}
