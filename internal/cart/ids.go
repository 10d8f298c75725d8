package cart

import (
	"sync"
	"time"
)

// IDSource issues line item identifiers.
type IDSource func() int64

// NewIDSource returns a creation-time based source: milliseconds since the
// epoch, bumped by one whenever the clock has not advanced since the last id.
// It is safe for concurrent use.
func NewIDSource() IDSource {
	var (
		mu   sync.Mutex
		last int64
	)
	return func() int64 {
		mu.Lock()
		defer mu.Unlock()
		id := time.Now().UnixMilli()
		if id <= last {
			id = last + 1
		}
		last = id
		return id
	}
}
