package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssocRetrCommitVisibleAfterCommit(t *testing.T) {
	e := New()

	wtxn, err := e.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, wtxn.Assoc([]byte("k"), []byte("v")))
	require.NoError(t, wtxn.Commit())
	wtxn.Close()

	rtxn, err := e.BeginRead()
	require.NoError(t, err)
	v, err := rtxn.Retr([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)
	rtxn.Close()
}

func TestUncommittedWriteIsDiscarded(t *testing.T) {
	e := New()

	wtxn, err := e.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, wtxn.Assoc([]byte("k"), []byte("v")))
	wtxn.Close() // no Commit

	rtxn, err := e.BeginRead()
	require.NoError(t, err)
	_, err = rtxn.Retr([]byte("k"))
	require.ErrorIs(t, err, ErrUnknownKey)
	rtxn.Close()
}

func TestAssocNoOverwrite(t *testing.T) {
	e := New()
	wtxn, _ := e.BeginWrite()
	require.NoError(t, wtxn.Assoc([]byte("k"), []byte("v1")))
	err := wtxn.Assoc([]byte("k"), []byte("v2"))
	require.ErrorIs(t, err, ErrDuplicateKey)
	wtxn.Close()
}

func TestOnlyOneWriterAtATime(t *testing.T) {
	e := New()
	wtxn, err := e.BeginWrite()
	require.NoError(t, err)

	_, err = e.BeginWrite()
	require.ErrorIs(t, err, ErrWriteLocked)

	wtxn.Close()
	_, err = e.BeginWrite()
	require.NoError(t, err)
}

func TestConcurrentReadersAllowed(t *testing.T) {
	e := New()
	r1, err := e.BeginRead()
	require.NoError(t, err)
	r2, err := e.BeginRead()
	require.NoError(t, err)
	r1.Close()
	r2.Close()
}

func TestCursorFirstLastNextPrev(t *testing.T) {
	e := New()
	wtxn, _ := e.BeginWrite()
	require.NoError(t, wtxn.Assoc([]byte("a"), []byte("1")))
	require.NoError(t, wtxn.Assoc([]byte("b"), []byte("2")))
	require.NoError(t, wtxn.Assoc([]byte("c"), []byte("3")))
	require.NoError(t, wtxn.Commit())
	wtxn.Close()

	rtxn, _ := e.BeginRead()
	_, c := rtxn.NewCursor()

	k, v, ok := c.First()
	require.True(t, ok)
	require.Equal(t, []byte("a"), k)
	require.Equal(t, []byte("1"), v)

	k, v, ok = c.Next()
	require.True(t, ok)
	require.Equal(t, []byte("b"), k)
	require.Equal(t, []byte("2"), v)

	k, v, ok = c.Last()
	require.True(t, ok)
	require.Equal(t, []byte("c"), k)
	require.Equal(t, []byte("3"), v)

	k, v, ok = c.Prev()
	require.True(t, ok)
	require.Equal(t, []byte("b"), k)
	require.Equal(t, []byte("2"), v)

	rtxn.Close()
}

func TestCursorSeek(t *testing.T) {
	e := New()
	wtxn, _ := e.BeginWrite()
	require.NoError(t, wtxn.Assoc([]byte("a"), []byte("1")))
	require.NoError(t, wtxn.Assoc([]byte("c"), []byte("3")))
	require.NoError(t, wtxn.Commit())
	wtxn.Close()

	rtxn, _ := e.BeginRead()
	_, c := rtxn.NewCursor()
	k, v, ok := c.Seek([]byte("b"))
	require.True(t, ok)
	require.Equal(t, []byte("c"), k)
	require.Equal(t, []byte("3"), v)
	rtxn.Close()
}

func TestCursorExhaustionReturnsNotFound(t *testing.T) {
	e := New()
	wtxn, _ := e.BeginWrite()
	require.NoError(t, wtxn.Assoc([]byte("a"), []byte("1")))
	require.NoError(t, wtxn.Commit())
	wtxn.Close()

	rtxn, _ := e.BeginRead()
	_, c := rtxn.NewCursor()
	_, _, ok := c.First()
	require.True(t, ok)
	_, _, ok = c.Next()
	require.False(t, ok)
	rtxn.Close()
}

func TestReaderBoundEnforced(t *testing.T) {
	e := New(WithMaxReaders(1))
	r1, err := e.BeginRead()
	require.NoError(t, err)
	_, err = e.BeginRead()
	require.ErrorIs(t, err, ErrReadersFull)
	r1.Close()
	_, err = e.BeginRead()
	require.NoError(t, err)
}
