package engine

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/rigado/rfcomm"
	"github.com/rigado/rfcomm/session"
)

// Registry maps server channel numbers to accept policies. It is shared by
// every session of an engine.
type Registry struct {
	mu      sync.RWMutex
	servers map[uint8]session.AcceptPolicy
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{servers: make(map[uint8]session.AcceptPolicy)}
}

// Register binds policy to channel.
func (r *Registry) Register(channel uint8, policy session.AcceptPolicy) error {
	if channel < rfcomm.MinChannel || channel > rfcomm.MaxChannel {
		return errors.Wrapf(rfcomm.ErrInvalidChannel, "channel %d", channel)
	}
	if policy == nil {
		return errors.New("nil accept policy")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.servers[channel]; ok {
		return errors.Wrapf(rfcomm.ErrChannelInUse, "channel %d", channel)
	}
	r.servers[channel] = policy
	return nil
}

// Unregister removes the server on channel. Channels already open stay open.
func (r *Registry) Unregister(channel uint8) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.servers[channel]
	delete(r.servers, channel)
	return ok
}

// Lookup implements session.ServerLookup.
func (r *Registry) Lookup(channel uint8) (session.AcceptPolicy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.servers[channel]
	return p, ok
}

// Channels returns the registered channel numbers in ascending order.
func (r *Registry) Channels() []uint8 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uint8, 0, len(r.servers))
	for ch := range r.servers {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
