package synchronizer

import (
	"reflect"
	"sync"
	"weak"
)

// registry is the Translation Registry (spec §4.B): the bidirectional
// mapping between an implementation object (the user's async value) and the
// wrapper Go code outside the Synchronizer actually holds. The wrapper side
// is held weakly, as go-eventloop/registry.go holds promises weakly, so the
// registry never keeps a wrapper alive once its owner drops it. The
// implementation is the map key and stays referenced by the registry until
// its entry is removed after the wrapper has been collected.
type registry struct {
	mu sync.Mutex

	// implToWrapper maps an implementation object's identity to a weak
	// pointer at its wrapper handle, so re-wrapping the same implementation
	// returns the same wrapper (spec §4.B identity-preservation invariant).
	// It is deliberately the weak side: the registry itself must never be
	// the reason a wrapper stays alive once its owner drops it. The reverse
	// direction (translate_in, wrapper -> impl) needs no map at all, since
	// wrapperHandle.impl is already a direct strong field the wrapper holds
	// for as long as it is reachable.
	implToWrapper map[any]weak.Pointer[wrapperHandle]

	// scavengeCount tracks inserts since the last sweep, mirroring
	// go-eventloop's ring-buffer scavenging cadence rather than sweeping on
	// every insert.
	scavengeCount int
}

// wrapperHandle is the registry's record of one wrapped value; FuncWrapper
// and ClassWrapper hold a pointer to one so the registry can find its way
// back to the implementation. GeneratorWrapper and ContextManagerWrapper
// have no handle and are not recorded in the registry.
type wrapperHandle struct {
	impl    any
	wrapper any
	shape   wrapShape
}

// wrapShape classifies what kind of async value an implementation is. It is
// set once at first wrap (shapeCoroutine by WrapFunc, shapeClassInstance by
// WrapClass) and reported by ClassWrapper.Shape; dispatch does not consult it.
type wrapShape int

const (
	shapeUnknown wrapShape = iota
	shapeCoroutine
	shapeAsyncGenerator
	shapeAsyncContextManager
	shapeClassInstance
)

const scavengeInterval = 64

func newRegistry() *registry {
	return &registry{
		implToWrapper: make(map[any]weak.Pointer[wrapperHandle]),
	}
}

// lookup returns the existing wrapper handle for impl, if one is still
// alive, implementing the "wrapping twice returns the same wrapper"
// invariant.
func (r *registry) lookup(impl any) (*wrapperHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wp, ok := r.implToWrapper[identityKey(impl)]
	if !ok {
		return nil, false
	}
	h := wp.Value()
	if h == nil {
		delete(r.implToWrapper, identityKey(impl))
		return nil, false
	}
	return h, true
}

// register records a freshly created wrapper for impl.
func (r *registry) register(impl any, h *wrapperHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.implToWrapper[identityKey(impl)] = weak.Make(h)
	r.scavengeCount++
	if r.scavengeCount >= scavengeInterval {
		r.scavengeLocked()
		r.scavengeCount = 0
	}
}

// impl returns the implementation object behind a wrapper handle: the
// translate_in direction. h.impl is a plain strong field, valid for as long
// as h itself is reachable (which, if the caller reached h through a live
// wrapper, it is).
func (r *registry) impl(h *wrapperHandle) (any, bool) {
	if h == nil {
		return nil, false
	}
	return h.impl, true
}

// identityKey normalizes impl into a value usable as a comparable map key.
// Implementations handed to Wrap are ordinarily pointers (to a struct
// holding async state) or plain functions; Go map keys must be comparable,
// and bare function values are not, so funcs are reduced to their entry
// address. Anything already comparable passes through unchanged.
func identityKey(impl any) any {
	v := reflect.ValueOf(impl)
	switch v.Kind() {
	case reflect.Func:
		return v.Pointer()
	case reflect.Slice, reflect.Map:
		return v.Pointer()
	default:
		return impl
	}
}

// scavengeLocked drops implToWrapper entries whose weak pointer has gone
// nil, i.e. whose wrapper has been garbage collected. Must be called with
// mu held.
func (r *registry) scavengeLocked() {
	for impl, wp := range r.implToWrapper {
		if wp.Value() == nil {
			delete(r.implToWrapper, impl)
		}
	}
}
