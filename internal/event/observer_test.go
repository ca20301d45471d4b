package event

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcasterFansOutInOrder(t *testing.T) {
	var got []string
	rec := func(tag string) Observer {
		return Funcs{
			Output:    func(o Output) { got = append(got, tag+":out:"+o.Text) },
			Notice:    func(s string) { got = append(got, tag+":notice:"+s) },
			Confirm:   func(p string) { got = append(got, tag+":confirm:"+p) },
			Completed: func(r Result) { got = append(got, tag+":done:"+r.String()) },
		}
	}

	b := NewBroadcaster(rec("a"), rec("b"))
	b.OnOutput(Output{Origin: Stdout, Text: "line1"})
	b.OnNotice("hi")
	b.OnConfirmationRequested("sure?")
	b.OnTaskCompleted(Exited(0))

	assert.Equal(t, []string{
		"a:out:line1", "b:out:line1",
		"a:notice:hi", "b:notice:hi",
		"a:confirm:sure?", "b:confirm:sure?",
		"a:done:ok (exit 0)", "b:done:ok (exit 0)",
	}, got)
}

func TestBroadcasterRemove(t *testing.T) {
	count := 0
	b := NewBroadcaster()
	remove := b.Add(Funcs{Notice: func(string) { count++ }})
	require.Equal(t, 1, b.Len())

	b.OnNotice("one")
	remove()
	b.OnNotice("two")

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, b.Len())

	// removing twice is harmless
	remove()
}

func TestResultConstructors(t *testing.T) {
	r := Exited(2)
	assert.False(t, r.Success)
	assert.True(t, r.HasExitCode())
	assert.Equal(t, "failed (exit 2)", r.String())

	f := Failed(errors.New("boom"), "it broke")
	assert.False(t, f.Success)
	assert.False(t, f.HasExitCode())
	assert.Equal(t, "failed: boom", f.String())

	d := Done("opened")
	assert.True(t, d.Success)
	assert.Equal(t, "ok", d.String())
}

func TestOriginString(t *testing.T) {
	assert.Equal(t, "stdout", Stdout.String())
	assert.Equal(t, "stderr", Stderr.String())
	assert.Equal(t, "origin(7)", Origin(7).String())
}
