package csp

import (
	"fmt"
	"reflect"
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Registry is an explicit, caller-owned table of named channels, so that
// independent producers and consumers can find the same channel without
// threading a *Channel[T] through every call site. Unlike a process-wide
// global, a Registry's lifetime is owned by whoever constructed it with
// NewRegistry.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	core     *channelCore
	elemType reflect.Type
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registryEntry)}
}

// ChannelFor looks up (or lazily creates) the named channel in r, typed as
// T. The first call for a name fixes the channel's options; the options
// passed on later calls for that name are ignored. A later call with the
// same name but a different T returns an ErrInvalidArgument error rather
// than reusing the existing channel under a mismatched type, as does a
// creating call whose options give a negative capacity.
//
// This is a package-level function rather than a method because Go methods
// cannot carry their own type parameters.
func ChannelFor[T any](r *Registry, name string, opts ...ChannelOption) (*Channel[T], error) {
	want := reflect.TypeOf((*T)(nil)).Elem()
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		if e.elemType != want {
			return nil, invalidArgumentError(fmt.Sprintf(
				"channel %q already registered with element type %s, not %s", name, e.elemType, want))
		}
		return &Channel[T]{core: e.core}, nil
	}
	o := resolveChannelOptions(opts)
	if o.capacity < 0 {
		return nil, invalidArgumentError(fmt.Sprintf("channel %q: negative capacity %d", name, o.capacity))
	}
	core := newChannelCore(name, o)
	r.entries[name] = &registryEntry{core: core, elemType: want}
	return &Channel[T]{core: core}, nil
}

// Names returns the names of every channel currently registered, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := maps.Keys(r.entries)
	slices.Sort(out)
	return out
}

// Len returns the number of channels currently registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Remove drops name from the registry's bookkeeping without affecting the
// channel itself (any Channel[T] handles already obtained remain valid; a
// subsequent ChannelFor with the same name creates an unrelated channel).
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// RetireAll gracefully retires every channel currently registered.
func (r *Registry) RetireAll() {
	r.mu.Lock()
	cores := make([]*channelCore, 0, len(r.entries))
	for _, e := range r.entries {
		cores = append(cores, e.core)
	}
	r.mu.Unlock()
	for _, c := range cores {
		c.retire(true)
	}
}
