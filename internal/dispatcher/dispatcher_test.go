package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSendOrderAndScope(t *testing.T) {
	d := New()
	var got []string
	d.Connect("a", func(p any) { got = append(got, "first:"+p.(string)) })
	d.Connect("a", func(p any) { got = append(got, "second:"+p.(string)) })
	d.Connect("b", func(p any) { got = append(got, "other:"+p.(string)) })

	d.Send("a", "x")

	assert.Equal(t, []string{"first:x", "second:x"}, got)
}

func TestUnsubscribe(t *testing.T) {
	d := New()
	calls := 0
	unsub := d.Connect("sig", func(any) { calls++ })
	keep := d.Connect("sig", func(any) {})
	defer keep()

	d.Send("sig", nil)
	unsub()
	unsub()
	d.Send("sig", nil)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, d.Handlers("sig"))
}

func TestSendWithoutHandlers(t *testing.T) {
	d := New()
	assert.NotPanics(t, func() { d.Send("nobody", 1) })
	assert.Equal(t, 0, d.Handlers("nobody"))
}
