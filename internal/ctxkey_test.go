package internal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		k := NewKey[int]("term")
		ctx := k.With(context.Background(), 4)

		v, ok := k.From(ctx)
		assert.True(t, ok)
		assert.Equal(t, 4, v)
	})

	t.Run("missing value", func(t *testing.T) {
		k := NewKey[string]("req")

		v, ok := k.From(context.Background())
		assert.False(t, ok)
		assert.Empty(t, v)
	})

	t.Run("same label does not collide", func(t *testing.T) {
		a := NewKey[string]("id")
		b := NewKey[string]("id")
		ctx := a.With(context.Background(), "a")

		_, ok := b.From(ctx)
		assert.False(t, ok)
		v, ok := a.From(ctx)
		assert.True(t, ok)
		assert.Equal(t, "a", v)
	})

	t.Run("string", func(t *testing.T) {
		assert.Equal(t, "ctxkey(serverAddr)", NewKey[string]("serverAddr").String())
		assert.Equal(t, "ctxkey(<nil>)", Key[int]{}.String())
	})
}
