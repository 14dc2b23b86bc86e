package synchronizer

import "sync"

// registryMu guards the process-wide named Synchronizer registry (spec §9,
// "Global state: named singletons"), mirroring the lock-guarded
// get_synchronizer(name) pattern the spec calls out explicitly.
var (
	registryMu  sync.Mutex
	namedByName = map[string]*Synchronizer{}
)

// Get returns the process-wide Synchronizer registered under name,
// constructing and registering one via New(opts...) the first time name is
// requested. Subsequent calls with the same name ignore opts and return the
// existing instance, matching the original's singleton-by-name semantics.
func Get(name string, opts ...Option) *Synchronizer {
	registryMu.Lock()
	defer registryMu.Unlock()
	if s, ok := namedByName[name]; ok {
		return s
	}
	s := New(name, opts...)
	namedByName[name] = s
	return s
}

// forgetForTesting removes name from the process-wide registry; exported
// only to test files in this package so singleton tests don't leak state
// into each other.
func forgetForTesting(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(namedByName, name)
}
