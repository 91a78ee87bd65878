package registry

import (
	"sync"

	"callmgr/internal/fsnode"
)

// Registry tracks the live node controllers of this process, keyed by node
// identity. It backs both sibling enumeration for event federation and the
// deregistration a failing controller performs on its way out.
type Registry struct {
	mu    sync.RWMutex
	nodes map[string]*fsnode.Node
}

func New() *Registry {
	return &Registry{nodes: make(map[string]*fsnode.Node)}
}

func (r *Registry) Register(n *fsnode.Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[n.FSNode().String()] = n
}

func (r *Registry) Deregister(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nodes, key)
}

func (r *Registry) Lookup(key string) (*fsnode.Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[key]
	return n, ok
}

// Siblings returns every registered controller except the named one.
func (r *Registry) Siblings(exceptKey string) []fsnode.Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	peers := make([]fsnode.Peer, 0, len(r.nodes))
	for key, n := range r.nodes {
		if key == exceptKey {
			continue
		}
		peers = append(peers, n)
	}
	return peers
}

// Nodes returns all registered controllers.
func (r *Registry) Nodes() []*fsnode.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*fsnode.Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}
