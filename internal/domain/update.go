package domain

// UpdateVal is a per-field partial-update marker: either "leave the field
// alone" (the zero value) or "change it to Value".
type UpdateVal[T any] struct {
	Set   bool
	Value T
}

// ChangeTo marks a field for update.
func ChangeTo[T any](v T) UpdateVal[T] {
	return UpdateVal[T]{Set: true, Value: v}
}

// Keep leaves a field untouched.
func Keep[T any]() UpdateVal[T] {
	return UpdateVal[T]{}
}

// OrElse returns the new value when set, the current one otherwise.
func (u UpdateVal[T]) OrElse(current T) T {
	if u.Set {
		return u.Value
	}
	return current
}
