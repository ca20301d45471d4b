package gate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type promptFunc func(string)

func (f promptFunc) OnConfirmationRequested(p string) { f(p) }

func TestRequestResumedByRespond(t *testing.T) {
	var g *Gate
	prompts := make(chan string, 1)
	g = New(Config{}, promptFunc(func(p string) { prompts <- p }))

	go func() {
		p := <-prompts
		assert.Equal(t, "clear metadata?", p)
		time.Sleep(50 * time.Millisecond)
		assert.NoError(t, g.Respond(ClearMetadata))
	}()

	start := time.Now()
	d, err := g.Request(context.Background(), "clear metadata?")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, ClearMetadata, d)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestRespondTwiceIsNoop(t *testing.T) {
	var g *Gate
	g = New(Config{}, promptFunc(func(string) {
		require.NoError(t, g.Respond(KeepMetadata))
		assert.ErrorIs(t, g.Respond(ClearMetadata), ErrNoPending)
	}))

	d, err := g.Request(context.Background(), "clear?")
	require.NoError(t, err)
	assert.Equal(t, KeepMetadata, d)

	assert.ErrorIs(t, g.Respond(ClearMetadata), ErrNoPending)
}

func TestRespondWithoutRequest(t *testing.T) {
	g := New(Config{}, nil)
	assert.ErrorIs(t, g.Respond(ClearMetadata), ErrNoPending)

	_, ok := g.Pending()
	assert.False(t, ok)
}

func TestTimeoutResolvesToClear(t *testing.T) {
	g := New(Config{Timeout: 20 * time.Millisecond}, nil)
	assert.Equal(t, ClearMetadata, g.Default())

	d, err := g.Request(context.Background(), "clear?")
	require.NoError(t, err)
	assert.Equal(t, ClearMetadata, d)

	_, ok := g.Pending()
	assert.False(t, ok, "slot released after timeout")
	assert.ErrorIs(t, g.Respond(KeepMetadata), ErrNoPending, "late answer ignored")
}

func TestTimeoutUsesConfiguredDefault(t *testing.T) {
	g := New(Config{Timeout: 10 * time.Millisecond, Default: KeepMetadata}, nil)

	d, err := g.Request(context.Background(), "clear?")
	require.NoError(t, err)
	assert.Equal(t, KeepMetadata, d)
}

func TestCancelledContextResolvesToDefault(t *testing.T) {
	g := New(Config{Timeout: -1}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	d, err := g.Request(ctx, "clear?")
	require.NoError(t, err)
	assert.Equal(t, ClearMetadata, d)
}

func TestCloseResolvesPendingAndLaterRequests(t *testing.T) {
	prompted := make(chan struct{})
	g := New(Config{Timeout: -1}, promptFunc(func(string) { close(prompted) }))

	result := make(chan Decision, 1)
	go func() {
		d, _ := g.Request(context.Background(), "clear?")
		result <- d
	}()

	<-prompted
	g.Close()
	select {
	case d := <-result:
		assert.Equal(t, ClearMetadata, d)
	case <-time.After(5 * time.Second):
		t.Fatal("request not released by Close")
	}

	calls := 0
	g2 := New(Config{}, promptFunc(func(string) { calls++ }))
	g2.Close()
	d, err := g2.Request(context.Background(), "clear?")
	require.NoError(t, err)
	assert.Equal(t, ClearMetadata, d)
	assert.Zero(t, calls, "no prompt after close")
}

func TestSecondConcurrentRequestRejected(t *testing.T) {
	prompted := make(chan struct{})
	g := New(Config{Timeout: -1}, promptFunc(func(string) { close(prompted) }))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d, err := g.Request(context.Background(), "first?")
		assert.NoError(t, err)
		assert.Equal(t, KeepMetadata, d)
	}()
	<-prompted

	p, ok := g.Pending()
	require.True(t, ok)
	assert.Equal(t, "first?", p)

	_, err := g.Request(context.Background(), "second?")
	assert.ErrorIs(t, err, ErrPending)

	require.NoError(t, g.Respond(KeepMetadata))
	wg.Wait()
}

func TestParseDecision(t *testing.T) {
	cases := []struct {
		in   string
		want Decision
		ok   bool
	}{
		{"yes", ClearMetadata, true},
		{"Y", ClearMetadata, true},
		{"  clear ", ClearMetadata, true},
		{"yes please", ClearMetadata, true},
		{"no", KeepMetadata, true},
		{"n", KeepMetadata, true},
		{"keep it", KeepMetadata, true},
		{"no, yes", KeepMetadata, true},
		{"maybe", Undecided, false},
		{"", Undecided, false},
		{"yesterday", Undecided, false},
	}
	for _, c := range cases {
		got, ok := ParseDecision(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestDecisionArg(t *testing.T) {
	assert.Equal(t, "yes", ClearMetadata.Arg())
	assert.Equal(t, "no", KeepMetadata.Arg())
	assert.Equal(t, "no", Undecided.Arg())
}
