package slices

// Map each element in sli with mapper.
//
// The element indexed `N` of the returned slice is `mapper(sli[N])`.
func Map[T any, R any](sli []T, mapper func(v T) R) []R {
	ret := make([]R, len(sli))
	for nth, v := range sli {
		ret[nth] = mapper(v)
	}
	return ret
}

// First finds the first element satisfying pred.
//
// When no element does, it returns (zero-value, false).
func First[T any](sli []T, pred func(v T) bool) (T, bool) {
	for _, v := range sli {
		if pred(v) {
			return v, true
		}
	}
	return *new(T), false
}

// KeysOf lists keys of the map. Ordering is not stable.
func KeysOf[K comparable, V any](m map[K]V) []K {
	ret := make([]K, 0, len(m))
	for k := range m {
		ret = append(ret, k)
	}
	return ret
}

// Concat slices into one.
func Concat[T any](slis ...[]T) []T {
	total := 0
	for _, s := range slis {
		total += len(s)
	}
	ret := make([]T, 0, total)
	for _, s := range slis {
		ret = append(ret, s...)
	}
	return ret
}
