package audit

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "nested", "history.jsonl"))
	require.NoError(t, err)
	return j
}

func TestJournalLifecycle(t *testing.T) {
	j := openTemp(t)

	entries, err := j.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, j.Write(Entry{ID: "1", Timestamp: base, Op: "read", Status: StatusSuccess}))
	require.NoError(t, j.Write(Entry{Timestamp: base.Add(time.Minute), Op: "write", Status: StatusFailed}))

	entries, err = j.Load()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "write", entries[0].Op, "newest first")
	assert.NotEmpty(t, entries[0].ID, "missing IDs are generated")
	assert.Equal(t, "1", entries[1].ID)
}

func TestJournalSkipsMalformedLines(t *testing.T) {
	j := openTemp(t)
	require.NoError(t, j.Write(Entry{ID: "ok", Status: StatusSuccess}))

	f, err := os.OpenFile(j.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entries, err := j.Load()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ok", entries[0].ID)
}

func TestJournalPrune(t *testing.T) {
	j := openTemp(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 30; i++ {
		require.NoError(t, j.Write(Entry{ID: fmt.Sprintf("e-%d", i), Timestamp: base.Add(time.Duration(i) * time.Second)}))
	}

	require.NoError(t, j.Prune(10))
	entries, err := j.Load()
	require.NoError(t, err)
	require.Len(t, entries, 10)
	assert.Equal(t, "e-29", entries[0].ID)
	assert.Equal(t, "e-20", entries[9].ID)

	require.NoError(t, j.Prune(10), "nothing to prune")
}

func TestJournalConcurrentWrites(t *testing.T) {
	j := openTemp(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, j.Write(Entry{ID: fmt.Sprintf("c-%d", i)}))
		}(i)
	}
	wg.Wait()

	entries, err := j.Load()
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	Render(&buf, nil)
	assert.Contains(t, buf.String(), "No transfer history found.")

	buf.Reset()
	Render(&buf, []Entry{{
		Timestamp: time.Now(),
		Op:        "read",
		FileName:  "firmware.bin",
		Bytes:     2048,
		Status:    StatusSuccess,
		Peer:      "10.0.0.7:50123",
		FileHash:  "0123456789abcdef",
	}})
	out := buf.String()
	assert.Contains(t, out, "FILE")
	assert.Contains(t, out, "firmware.bin")
	assert.Contains(t, out, "2 KB")
	assert.Contains(t, out, "01234567...")
	assert.Equal(t, 2, strings.Count(out, "\n"))
}
