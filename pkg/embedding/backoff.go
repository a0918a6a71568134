package embedding

import (
	"math/rand/v2"
	"time"
)

const maxJitter = 0.3

// jitterBackOff doubles the delay on every attempt and adds up to 30%
// random jitter so concurrent workers do not retry in lockstep.
type jitterBackOff struct {
	base    time.Duration
	attempt int
	rand    func() float64
}

func newJitterBackOff(base time.Duration) *jitterBackOff {
	return &jitterBackOff{base: base, rand: rand.Float64}
}

func (b *jitterBackOff) Reset() {
	b.attempt = 0
}

func (b *jitterBackOff) NextBackOff() time.Duration {
	b.attempt++
	delay := b.base << (b.attempt - 1)
	if delay <= 0 {
		// overflow
		delay = b.base
	}
	return delay + time.Duration(float64(delay)*maxJitter*b.rand())
}
