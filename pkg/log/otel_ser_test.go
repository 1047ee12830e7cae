package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestKVToAttributes(t *testing.T) {
	t.Run("typed values", func(t *testing.T) {
		attrs := kvToAttributes([]any{"ok", true, "nonce", 5, "hash", "0x01"})
		assert.Equal(t, []attribute.KeyValue{
			attribute.Bool("ok", true),
			attribute.Int("nonce", 5),
			attribute.String("hash", "0x01"),
		}, attrs)
	})

	t.Run("dangling key leaves the caller's slice alone", func(t *testing.T) {
		backing := []any{"a", "b", "dangling", "untouched"}

		attrs := kvToAttributes(backing[:3])
		assert.Equal(t, []attribute.KeyValue{
			attribute.String("a", "b"),
			attribute.String("dangling", missingAttributeValue),
		}, attrs)
		assert.Equal(t, "untouched", backing[3])
	})
}
