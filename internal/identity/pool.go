// Package identity supplies rotating browser identities to crawl tasks.
package identity

import (
	"sync"

	"github.com/ksaito/jobharvest/internal/harvest"
)

// Default user agents issued when the configuration supplies none.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
}

// Pool issues identities round-robin. User agents and proxy endpoints rotate
// on independent cursors, so enabling proxies does not pin each proxy to one
// user agent. Issuance happens synchronously at the scheduler's dispatch
// loop; the mutex keeps the pool safe if that ever changes.
type Pool struct {
	mu          sync.Mutex
	userAgents  []string
	proxies     []string
	agentCursor int
	proxyCursor int
}

// NewPool creates a Pool. An empty userAgents slice falls back to the
// built-in set; an empty proxies slice disables proxy rotation.
func NewPool(userAgents, proxies []string) *Pool {
	if len(userAgents) == 0 {
		userAgents = defaultUserAgents
	}
	return &Pool{
		userAgents: append([]string(nil), userAgents...),
		proxies:    append([]string(nil), proxies...),
	}
}

// Next issues the next identity.
func (p *Pool) Next() harvest.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := harvest.Identity{
		UserAgent: p.userAgents[p.agentCursor%len(p.userAgents)],
	}
	p.agentCursor++

	if len(p.proxies) > 0 {
		id.Proxy = p.proxies[p.proxyCursor%len(p.proxies)]
		p.proxyCursor++
	}
	return id
}

// ProxyEnabled reports whether the pool rotates proxy endpoints.
func (p *Pool) ProxyEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proxies) > 0
}
