package editsession

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestBridgeWithoutSubscriberDrops(t *testing.T) {
	b := NewBridge(zaptest.NewLogger(t))
	assert.False(t, b.Raise(EditRequest{Markup: "<table></table>"}))
}

func TestBridgeDeliversInOrderToLatestSubscriber(t *testing.T) {
	b := NewBridge(nil)
	var first, second []string
	b.Subscribe(func(r EditRequest) { first = append(first, r.Markup) })
	unsubscribe := b.Subscribe(func(r EditRequest) { second = append(second, r.Markup) })

	assert.True(t, b.Raise(EditRequest{Markup: "a"}))
	assert.True(t, b.Raise(EditRequest{Markup: "b"}))
	assert.Empty(t, first)
	assert.Equal(t, []string{"a", "b"}, second)

	unsubscribe()
	assert.False(t, b.Raise(EditRequest{Markup: "c"}))
}

func TestStaleUnsubscribeKeepsNewSubscriber(t *testing.T) {
	b := NewBridge(nil)
	stale := b.Subscribe(func(EditRequest) {})
	got := 0
	b.Subscribe(func(EditRequest) { got++ })

	stale()
	assert.True(t, b.Raise(EditRequest{}))
	assert.Equal(t, 1, got)
}

func TestParseField(t *testing.T) {
	f, ok := ParseField("importantDates")
	assert.True(t, ok)
	assert.Equal(t, FieldImportantDates, f)

	_, ok = ParseField("dates")
	assert.False(t, ok)
}
