package pocketbook

// orDefault yields def for a nil or zero v.
func orDefault[T comparable](v, def T) T {
	var zero T
	if v != zero {
		return v
	}
	return def
}
