package sentiment

import (
	"log"
	"math/rand"
	"sync"
	"time"
)

const (
	cooldownBase = 30 * time.Second
	cooldownCap  = 15 * time.Minute
)

type keyState struct {
	key           string
	coolingUntil  time.Time
	consecutive   int // consecutive 429s
	lastClaimedAt time.Time
}

// KeyPool hands out API keys for one provider. A 429 puts the key on an
// exponential cooldown; claims pick the available key that has rested
// longest. When every key is cooling the claim fails fast so callers can
// defer work instead of spinning.
type KeyPool struct {
	mu     sync.Mutex
	keys   []*keyState
	now    func() time.Time
	jitter func(d time.Duration) time.Duration
	logger *log.Logger
}

// NewKeyPool builds a pool over the configured keys.
func NewKeyPool(keys []string) *KeyPool {
	p := &KeyPool{
		now: time.Now,
		jitter: func(d time.Duration) time.Duration {
			// up to +25% so synchronized keys don't thaw together
			return d + time.Duration(rand.Int63n(int64(d)/4+1))
		},
		logger: log.New(log.Writer(), "[SENTIMENT] ", log.LstdFlags),
	}
	for _, k := range keys {
		if k == "" {
			continue
		}
		p.keys = append(p.keys, &keyState{key: k})
	}
	return p
}

// Size reports how many keys the pool holds.
func (p *KeyPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// Claim returns an available key, preferring the one idle longest.
func (p *KeyPool) Claim() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return "", ErrNoKeyAvailable
	}
	now := p.now()
	var pick *keyState
	for _, ks := range p.keys {
		if ks.coolingUntil.After(now) {
			continue
		}
		if pick == nil || ks.lastClaimedAt.Before(pick.lastClaimedAt) {
			pick = ks
		}
	}
	if pick == nil {
		return "", ErrNoKeyAvailable
	}
	pick.lastClaimedAt = now
	return pick.key, nil
}

// MarkRateLimited puts the key on cooldown. Consecutive 429s double the
// cooldown up to the cap; jitter spreads thaw times.
func (p *KeyPool) MarkRateLimited(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ks := range p.keys {
		if ks.key != key {
			continue
		}
		d := cooldownBase << ks.consecutive
		if d > cooldownCap || d <= 0 {
			d = cooldownCap
		}
		ks.consecutive++
		ks.coolingUntil = p.now().Add(p.jitter(d))
		p.logger.Printf("key ...%s rate limited, cooling %s", tail(key), d)
		return
	}
}

// MarkHealthy clears the failure streak after a successful call.
func (p *KeyPool) MarkHealthy(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ks := range p.keys {
		if ks.key == key {
			ks.consecutive = 0
			return
		}
	}
}

func tail(key string) string {
	if len(key) < 4 {
		return "****"
	}
	return key[len(key)-4:]
}
