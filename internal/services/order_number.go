package services

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"
)

const orderNumberAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// orderNumberSpace is the number of distinct 4-character suffixes.
const orderNumberSpace = 36 * 36 * 36 * 36

// orderNumberGenerator produces customer-facing order numbers of the form
// ORD-<8 digit unix-millis suffix><4 uppercase alphanumerics>. The suffix is
// derived from a randomly seeded counter so numbers generated within the same
// millisecond never collide.
type orderNumberGenerator struct {
	counter atomic.Uint64
}

func newOrderNumberGenerator() *orderNumberGenerator {
	g := &orderNumberGenerator{}
	var seed [8]byte
	if _, err := cryptorand.Read(seed[:]); err == nil {
		g.counter.Store(binary.BigEndian.Uint64(seed[:]))
	}
	return g
}

// Next returns the order number for the supplied creation time.
func (g *orderNumberGenerator) Next(now time.Time) string {
	millis := now.UnixMilli() % 100000000
	if millis < 0 {
		millis = -millis
	}
	n := g.counter.Add(1) % orderNumberSpace
	suffix := [4]byte{}
	for i := 3; i >= 0; i-- {
		suffix[i] = orderNumberAlphabet[n%36]
		n /= 36
	}
	return fmt.Sprintf("ORD-%08d%s", millis, suffix[:])
}
