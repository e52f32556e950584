package internal

import "context"

// Key is a typed context key. Keys made by separate NewKey calls never match, whatever their labels.
type Key[T any] struct {
	label *string
}

func NewKey[T any](label string) Key[T] {
	return Key[T]{label: &label}
}

func (k Key[T]) String() string {
	if k.label == nil {
		return "ctxkey(<nil>)"
	}
	return "ctxkey(" + *k.label + ")"
}

// With returns a copy of ctx carrying v under k
func (k Key[T]) With(ctx context.Context, v T) context.Context {
	return context.WithValue(ctx, k, v)
}

// From reports the value stored under k, if any
func (k Key[T]) From(ctx context.Context) (T, bool) {
	v, ok := ctx.Value(k).(T)
	return v, ok
}
