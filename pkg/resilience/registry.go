package resilience

import "sync"

// registry is the process-wide collection of breakers keyed by service name,
// so every caller asking for "converter" or "llm:claude" gets the same
// instance instead of a fresh, always-closed one per call site.
var (
	registryMu   sync.Mutex
	registry     = make(map[string]*Breaker)
	limiterMu    sync.Mutex
	limiterTable = make(map[string]*Limiter)
)

// GetBreaker returns the named breaker, creating it with opts on first use.
// Subsequent calls for the same name ignore opts and return the existing
// instance — the first caller to register a service wins.
func GetBreaker(name string, opts BreakerOpts) *Breaker {
	registryMu.Lock()
	defer registryMu.Unlock()
	if b, ok := registry[name]; ok {
		return b
	}
	b := NewBreaker(opts)
	registry[name] = b
	return b
}

// ResetRegistry clears all registered breakers. Intended for tests.
func ResetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]*Breaker)
}

// Snapshot returns the current name->breaker mapping, for callers that
// expose breaker state as metrics gauges.
func Snapshot() map[string]*Breaker {
	registryMu.Lock()
	defer registryMu.Unlock()
	out := make(map[string]*Breaker, len(registry))
	for k, v := range registry {
		out[k] = v
	}
	return out
}

// GetLimiter returns the named token-bucket limiter, creating it with opts
// on first use, mirroring GetBreaker's single-instance-per-name contract.
func GetLimiter(name string, opts LimiterOpts) *Limiter {
	limiterMu.Lock()
	defer limiterMu.Unlock()
	if l, ok := limiterTable[name]; ok {
		return l
	}
	l := NewLimiter(opts)
	limiterTable[name] = l
	return l
}
