package utils

import (
	"math/rand"
	"sync"
	"time"
)

// Random is a goroutine-safe source shared by the pricing code.
type Random struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewRandom(seed int64) *Random {
	return &Random{rnd: rand.New(rand.NewSource(seed))}
}

func NewTimeSeededRandom() *Random {
	return NewRandom(time.Now().UnixNano())
}

// Float64 returns a value in [0, 1).
func (r *Random) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Float64()
}

// Range returns a value in [lo, hi).
func (r *Random) Range(lo, hi float64) float64 {
	return lo + r.Float64()*(hi-lo)
}

func (r *Random) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Intn(n)
}

// Int63Range returns a value in [lo, hi).
func (r *Random) Int63Range(lo, hi int64) int64 {
	if hi <= lo {
		return lo
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo + r.rnd.Int63n(hi-lo)
}
