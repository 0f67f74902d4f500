package proxy

import (
	"fmt"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/user/brandwatch/internal/entity"
	"github.com/user/brandwatch/pkg/metrics"
)

// DefaultRotateEvery is how many requests go through one proxy before advancing.
const DefaultRotateEvery = 3

// Identity is the (User-Agent, proxy) pair used for one request attempt.
// An empty Proxy means a direct connection.
type Identity struct {
	UserAgent string
	Proxy     string
}

// Rotator hands out identities. Proxies are used round-robin, each for
// rotateEvery consecutive requests. Bad proxies are skipped for the rest of the
// process lifetime; when every proxy is bad, identities carry no proxy.
type Rotator struct {
	mu          sync.Mutex
	agents      []string
	proxies     []string
	bad         map[string]struct{}
	rotateEvery int
	current     int
	issued      int
	logger      *zap.Logger
}

// NewRotator creates a rotator over the given proxy addresses.
func NewRotator(proxies []string, rotateEvery int, logger *zap.Logger) *Rotator {
	if rotateEvery < 1 {
		rotateEvery = DefaultRotateEvery
	}
	return &Rotator{
		agents:      userAgentPool(),
		proxies:     dedupe(proxies),
		bad:         make(map[string]struct{}),
		rotateEvery: rotateEvery,
		logger:      logger,
	}
}

// Next returns the identity for the next request attempt.
func (r *Rotator) Next() Identity {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := Identity{UserAgent: r.agents[rand.Intn(len(r.agents))]}

	n := len(r.proxies)
	if n == 0 {
		return id
	}
	if r.issued >= r.rotateEvery || r.isBad(r.proxies[r.current]) {
		found := false
		for i := 1; i <= n; i++ {
			c := (r.current + i) % n
			if !r.isBad(r.proxies[c]) {
				r.current = c
				r.issued = 0
				found = true
				break
			}
		}
		if !found {
			return id
		}
	}

	r.issued++
	id.Proxy = r.proxies[r.current]
	return id
}

// MarkBad flags a proxy so it is no longer handed out. Unknown addresses are ignored.
func (r *Rotator) MarkBad(addr string) {
	if addr == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bad[addr]; ok {
		return
	}
	for _, p := range r.proxies {
		if p == addr {
			r.bad[addr] = struct{}{}
			metrics.ProxiesBad.Set(float64(len(r.bad)))
			r.logger.Warn("Proxy marked bad", zap.String("proxy", addr), zap.Int("bad", len(r.bad)), zap.Int("total", len(r.proxies)))
			if len(r.bad) == len(r.proxies) {
				r.logger.Warn("All proxies are bad, falling back to direct connections")
			}
			return
		}
	}
}

// Add makes new addresses available for rotation without a restart.
func (r *Rotator) Add(addrs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proxies = dedupe(append(r.proxies, addrs...))
}

// Entries lists the proxies in rotation order with their bad flags.
func (r *Rotator) Entries() []entity.ProxyEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]entity.ProxyEntry, 0, len(r.proxies))
	for _, p := range r.proxies {
		out = append(out, entity.ProxyEntry{Address: p, IsBad: r.isBad(p)})
	}
	return out
}

func (r *Rotator) isBad(addr string) bool {
	_, ok := r.bad[addr]
	return ok
}

func dedupe(addrs []string) []string {
	seen := make(map[string]struct{}, len(addrs))
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		a = NormalizeAddress(a)
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

// userAgentPool builds the User-Agent strings handed out by the rotator.
func userAgentPool() []string {
	var pool []string

	chromeVersions := []string{"120.0.0.0", "122.0.0.0", "124.0.0.0", "126.0.0.0", "128.0.0.0"}
	desktops := []string{
		"Windows NT 10.0; Win64; x64",
		"Macintosh; Intel Mac OS X 10_15_7",
		"X11; Linux x86_64",
	}
	for _, platform := range desktops {
		for _, v := range chromeVersions {
			pool = append(pool, fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36", platform, v))
		}
	}

	for _, v := range []string{"121.0", "123.0", "125.0"} {
		pool = append(pool, fmt.Sprintf("Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:%s) Gecko/20100101 Firefox/%s", v, v))
	}

	for _, v := range []string{"16_6", "17_0", "17_4"} {
		pool = append(pool,
			fmt.Sprintf("Mozilla/5.0 (iPhone; CPU iPhone OS %s like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1", v),
		)
	}
	for _, device := range []string{"SM-S901B", "Pixel 7", "SM-G991B"} {
		pool = append(pool, fmt.Sprintf("Mozilla/5.0 (Linux; Android 13; %s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Mobile Safari/537.36", device))
	}
	pool = append(pool, "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15")
	return pool
}
