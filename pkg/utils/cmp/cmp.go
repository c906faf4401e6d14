package cmp

// SliceEq returns true when a and b have same elements in same order.
func SliceEq[T comparable](a, b []T) bool {
	return SliceEqWith(a, b, func(x, y T) bool { return x == y })
}

// SliceEqWith compares slices element-wise with eq.
func SliceEqWith[T any, U any](a []T, b []U, eq func(T, U) bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !eq(a[i], b[i]) {
			return false
		}
	}
	return true
}

// SliceContentEq returns true when a and b have same elements,
// ignoring ordering and multiplicity-preserving.
func SliceContentEq[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}

	rest := make(map[T]int, len(b))
	for _, y := range b {
		rest[y] += 1
	}
	for _, x := range a {
		n, ok := rest[x]
		if !ok || n == 0 {
			return false
		}
		rest[x] = n - 1
	}
	return true
}

// SliceContentEqWith works as SliceContentEq, comparing elements with eq.
func SliceContentEqWith[T any, U any](a []T, b []U, eq func(T, U) bool) bool {
	if len(a) != len(b) {
		return false
	}

	rest := make(map[int]*U, len(b))
	for i := range b {
		rest[i] = &b[i]
	}

NEXT:
	for _, x := range a {
		for i, y := range rest {
			if eq(x, *y) {
				delete(rest, i)
				continue NEXT
			}
		}
		return false
	}
	return len(rest) == 0
}

// MapEq returns true when a and b have same key-value pairs.
func MapEq[K comparable, V comparable](a, b map[K]V) bool {
	return MapEqWith(a, b, func(x, y V) bool { return x == y })
}

// MapEqWith compares maps with eq over values of same key.
func MapEqWith[K comparable, V any, W any](a map[K]V, b map[K]W, eq func(V, W) bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		vb, ok := b[k]
		if !ok || !eq(va, vb) {
			return false
		}
	}
	return true
}
