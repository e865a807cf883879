package extract

// lookup is the tagged result of one extraction step.
type lookup[T any] struct {
	value T
	found bool
}

func found[T any](v T) lookup[T] {
	return lookup[T]{value: v, found: true}
}

func notFound[T any]() lookup[T] {
	return lookup[T]{}
}

// or returns the found value or def.
func (l lookup[T]) or(def T) T {
	if l.found {
		return l.value
	}
	return def
}
