package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.log")
	l := New(path)

	at := time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)
	l.now = func() time.Time { return at }

	require.NoError(t, l.Append("install git"))
	require.NoError(t, l.Append("search for a - b\nand c"))
	require.NoError(t, l.Append("   "))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"2024-03-09 14:05:07 - install git\n2024-03-09 14:05:07 - search for a - b and c\n",
		string(raw))

	recs, err := l.Read()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.True(t, recs[0].Time.Equal(at))
	assert.Equal(t, "install git", recs[0].Text)
	assert.Equal(t, "search for a - b and c", recs[1].Text, "split on the first separator only")
}

func TestReadKeepsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.log")
	require.NoError(t, os.WriteFile(path, []byte(
		"garbage\n\nyesterday - install git\n2024-01-02 03:04:05 - exit\n"), 0o644))

	recs, err := New(path).Read()
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, Record{Text: "garbage", Malformed: true}, recs[0])
	assert.Equal(t, Record{Text: "yesterday - install git", Malformed: true}, recs[1])
	assert.False(t, recs[2].Malformed)
	assert.Equal(t, "exit", recs[2].Text)
	assert.Equal(t, "2024-01-02 03:04:05 - exit", recs[2].String())
	assert.Equal(t, "garbage", recs[0].String())
}

func TestReadMissingFile(t *testing.T) {
	recs, err := New(filepath.Join(t.TempDir(), "none.log")).Read()
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestTail(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "h.log"))
	for _, s := range []string{"a", "b", "c"} {
		require.NoError(t, l.Append(s))
	}

	recs, err := l.Tail(2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "b", recs[0].Text)
	assert.Equal(t, "c", recs[1].Text)
}
