package synchronizer

import (
	"reflect"

	cycle "github.com/joeycumines/go-detect-cycle/floyds"
)

// translateOut recursively walks v, replacing any implementation object
// that has a live wrapper in reg (or creating one via wrapFn) with that
// wrapper, so values flowing out of the background loop back to ordinary Go
// code never expose raw implementation state. This is the translate_out
// traversal rule from spec §4.B, applied to Go's slices and map values. Map
// keys (and so the members of a map used as a set) and arrays are not
// walked; they pass through unchanged.
//
// Cycle-guarded via go-detect-cycle's branching tortoise-and-hare detector,
// applied to container identity (its backing pointer) exactly as
// sql/export's dependencyCycle applies it to a dependency graph's nodes:
// each recursive descent into a new container advances the hare, and a
// cycle back to a container already on the current path aborts the
// traversal rather than recursing forever.
func translateOut(v any, reg *registry, wrapFn func(any) (any, error)) (any, error) {
	return translateWalk(v, cycle.NewBranchingDetector(uintptr(0), nil), func(candidate any) (any, bool, error) {
		// Slices and maps are structural containers the walker needs to
		// recurse into, not leaf implementation values to substitute; decline
		// here so the Kind switch below gets a chance to walk their elements.
		switch reflect.ValueOf(candidate).Kind() {
		case reflect.Slice, reflect.Map, reflect.Invalid:
			return nil, false, nil
		}
		if h, ok := reg.lookup(candidate); ok {
			return h.wrapper, true, nil
		}
		wrapped, err := wrapFn(candidate)
		if err != nil {
			return nil, false, err
		}
		if wrapped == nil {
			return nil, false, nil
		}
		return wrapped, true, nil
	})
}

// translateIn recursively walks v, replacing any wrapper handle with the
// implementation object it fronts, so values flowing into the background
// loop are always the raw async implementation the user's code expects.
// This is the translate_in direction of spec §4.B's traversal rule.
func translateIn(v any, reg *registry) (any, error) {
	return translateWalk(v, cycle.NewBranchingDetector(uintptr(0), nil), func(candidate any) (any, bool, error) {
		hw, ok := candidate.(hasWrapperHandle)
		if !ok {
			return nil, false, nil
		}
		h := hw.synchronizerHandle()
		impl, ok := reg.impl(h)
		if !ok {
			return nil, false, &MisuseError{Target: "wrapper", Reason: "implementation no longer registered"}
		}
		return impl, true, nil
	})
}

// hasWrapperHandle is implemented by every Wrapper Factory output that the
// Translation Registry tracks, letting translateIn recognize a wrapper
// generically rather than hardcoding one concrete wrapper type: translateOut
// now emits the user-facing wrapper itself (*FuncWrapper[T], *ClassWrapper),
// not the internal *wrapperHandle, so translateIn has to unwrap whichever
// shape comes back.
type hasWrapperHandle interface {
	synchronizerHandle() *wrapperHandle
}

// replace is the per-node substitution rule shared by translateOut and
// translateIn: given a candidate value, it reports a replacement (and
// whether one applies).
type replace func(candidate any) (replacement any, applied bool, err error)

func translateWalk(v any, detector cycle.BranchingDetector, fn replace) (any, error) {
	if replacement, applied, err := fn(v); err != nil {
		return nil, err
	} else if applied {
		return replacement, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return v, nil
		}
		next := detector.Hare(rv.Pointer())
		defer next.Clear()
		if !next.Ok() {
			return nil, &MisuseError{Target: "translate", Reason: "cyclic slice"}
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elem, err := translateWalk(rv.Index(i).Interface(), next, fn)
			if err != nil {
				return nil, err
			}
			out.Index(i).Set(reflect.ValueOf(elem))
		}
		return out.Interface(), nil

	case reflect.Map:
		if rv.IsNil() {
			return v, nil
		}
		next := detector.Hare(rv.Pointer())
		defer next.Clear()
		if !next.Ok() {
			return nil, &MisuseError{Target: "translate", Reason: "cyclic map"}
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			val, err := translateWalk(iter.Value().Interface(), next, fn)
			if err != nil {
				return nil, err
			}
			out.SetMapIndex(iter.Key(), reflect.ValueOf(val))
		}
		return out.Interface(), nil

	default:
		return v, nil
	}
}
