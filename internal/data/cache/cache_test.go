package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/go-coro-inspect/internal/core/model"
	"github.com/penwyp/go-coro-inspect/internal/testing/fixtures"
)

func testEvents() []model.Event {
	return fixtures.Nested(0x10, 2, 2).Events()
}

func newCache(t *testing.T) *FileCache {
	t.Helper()
	c, err := NewFileCache(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	return c
}

// store snapshots the trace and caches events against it.
func store(t *testing.T, c *FileCache, trace string, events []model.Event) {
	t.Helper()
	snap, err := TakeSnapshot(trace)
	require.NoError(t, err)
	require.NoError(t, c.Set(snap, model.DefaultBeaconEvent, events))
}

func TestNewFileCacheInvalidDirectory(t *testing.T) {
	tempDir := t.TempDir()
	filePath := filepath.Join(tempDir, "file.txt")
	require.NoError(t, os.WriteFile(filePath, []byte("content"), 0644))

	c, err := NewFileCache(filepath.Join(filePath, "subdir"))
	assert.Error(t, err)
	assert.Nil(t, c)
}

func TestKey(t *testing.T) {
	a := Key("/traces/run1", model.DefaultBeaconEvent)
	assert.Equal(t, a, Key("/traces/run1", model.DefaultBeaconEvent))
	assert.NotEqual(t, a, Key("/traces/run2", model.DefaultBeaconEvent))
	assert.NotEqual(t, a, Key("/traces/run1", "other:event"))
	assert.Len(t, a, 36)
}

func TestFileCacheSetAndGet(t *testing.T) {
	c := newCache(t)
	trace, err := fixtures.WriteJSONL(t.TempDir(), "trace.jsonl", testEvents())
	require.NoError(t, err)

	result := c.Get(trace, model.DefaultBeaconEvent)
	assert.False(t, result.Found)
	assert.Equal(t, MissReasonNotFound, result.MissReason)

	store(t, c, trace, testEvents())

	result = c.Get(trace, model.DefaultBeaconEvent)
	require.True(t, result.Found)
	assert.Equal(t, testEvents(), result.Entry.Events)
	assert.Len(t, result.Entry.Files, 1)
	assert.NotEmpty(t, result.Entry.Fingerprint)

	// a fresh instance reads the entry back from disk
	reopened, err := NewFileCache(c.baseDir)
	require.NoError(t, err)
	result = reopened.Get(trace, model.DefaultBeaconEvent)
	require.True(t, result.Found)
	assert.Equal(t, testEvents(), result.Entry.Events)
	assert.Len(t, reopened.memoryCache, 1)
}

func TestFileCacheInvalidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, trace string)
		reason CacheMissReason
	}{
		{
			name: "appended events",
			mutate: func(t *testing.T, trace string) {
				f, err := os.OpenFile(filepath.Join(trace, "ust/uid/1000/64-bit/channel0_0"), os.O_APPEND|os.O_WRONLY, 0644)
				require.NoError(t, err)
				_, err = f.Write([]byte{0x01, 0x02})
				require.NoError(t, err)
				require.NoError(t, f.Close())
			},
			reason: MissReasonSize,
		},
		{
			name: "new stream file",
			mutate: func(t *testing.T, trace string) {
				require.NoError(t, os.WriteFile(filepath.Join(trace, "ust/uid/1000/64-bit/channel0_1"), []byte{0x00}, 0644))
			},
			reason: MissReasonFileSet,
		},
		{
			name: "rewritten in place",
			mutate: func(t *testing.T, trace string) {
				stream := filepath.Join(trace, "ust/uid/1000/64-bit/channel0_0")
				info, err := os.Stat(stream)
				require.NoError(t, err)
				require.NoError(t, os.WriteFile(stream, []byte{0xde, 0xad, 0xbe, 0xef}, 0644))
				require.NoError(t, os.Chtimes(stream, info.ModTime(), info.ModTime()))
			},
			reason: MissReasonFingerprint,
		},
		{
			name: "touched",
			mutate: func(t *testing.T, trace string) {
				later := time.Now().Add(time.Minute)
				require.NoError(t, os.Chtimes(filepath.Join(trace, "ust/uid/1000/64-bit/metadata"), later, later))
			},
			reason: MissReasonModTime,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCache(t)
			trace, err := fixtures.CreateCTFDir(t.TempDir())
			require.NoError(t, err)
			store(t, c, trace, testEvents())

			tt.mutate(t, trace)

			result := c.Get(trace, model.DefaultBeaconEvent)
			assert.False(t, result.Found)
			assert.Equal(t, tt.reason, result.MissReason)
			assert.Empty(t, c.memoryCache)
		})
	}
}

func TestFileCacheSkipsFingerprintForOldTraces(t *testing.T) {
	c := newCache(t)
	trace, err := fixtures.WriteJSONL(t.TempDir(), "trace.jsonl", testEvents())
	require.NoError(t, err)

	old := time.Now().Add(-72 * time.Hour)
	require.NoError(t, os.Chtimes(trace, old, old))
	store(t, c, trace, testEvents())

	c.memoryCache[Key(trace, model.DefaultBeaconEvent)].Fingerprint = ""

	result := c.Get(trace, model.DefaultBeaconEvent)
	assert.True(t, result.Found)
}

func TestFileCacheCorruptedEntry(t *testing.T) {
	c := newCache(t)
	trace, err := fixtures.WriteJSONL(t.TempDir(), "trace.jsonl", testEvents())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(c.path(Key(trace, model.DefaultBeaconEvent)), []byte("{not json"), 0644))

	result := c.Get(trace, model.DefaultBeaconEvent)
	assert.False(t, result.Found)
	assert.Equal(t, MissReasonError, result.MissReason)
}

func TestTakeSnapshotMissingTrace(t *testing.T) {
	_, err := TakeSnapshot(filepath.Join(t.TempDir(), "gone.jsonl"))
	assert.Error(t, err)
}

func TestFileCacheSetNilSnapshot(t *testing.T) {
	c := newCache(t)
	assert.Error(t, c.Set(nil, model.DefaultBeaconEvent, testEvents()))
}

func TestTakeSnapshot(t *testing.T) {
	trace, err := fixtures.CreateCTFDir(t.TempDir())
	require.NoError(t, err)

	snap, err := TakeSnapshot(trace)
	require.NoError(t, err)
	assert.Equal(t, trace, snap.TracePath)
	require.Len(t, snap.Files, 2)
	assert.Equal(t, filepath.Join(trace, "ust/uid/1000/64-bit/channel0_0"), snap.Files[0].Path)
	assert.Equal(t, int64(4), snap.Files[0].Size)
	assert.NotEmpty(t, snap.Fingerprint)
}

func TestFileCacheStreamGrowsDuringDecoding(t *testing.T) {
	c := newCache(t)
	trace, err := fixtures.CreateCTFDir(t.TempDir())
	require.NoError(t, err)

	snap, err := TakeSnapshot(trace)
	require.NoError(t, err)

	// the tracer appends while the decoder is still running
	f, err := os.OpenFile(filepath.Join(trace, "ust/uid/1000/64-bit/channel0_0"), os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0x01, 0x02, 0x03})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, c.Set(snap, model.DefaultBeaconEvent, testEvents()))

	result := c.Get(trace, model.DefaultBeaconEvent)
	assert.False(t, result.Found)
	assert.Equal(t, MissReasonSize, result.MissReason)

	// a snapshot of the grown trace validates
	store(t, c, trace, testEvents())
	assert.True(t, c.Get(trace, model.DefaultBeaconEvent).Found)
}

func TestFileCacheClear(t *testing.T) {
	c := newCache(t)
	dir := t.TempDir()
	for _, name := range []string{"a.jsonl", "b.jsonl"} {
		trace, err := fixtures.WriteJSONL(dir, name, testEvents())
		require.NoError(t, err)
		store(t, c, trace, testEvents())
	}

	memoryCount, fileCount, err := c.GetCacheStats()
	require.NoError(t, err)
	assert.Equal(t, 2, memoryCount)
	assert.Equal(t, 2, fileCount)

	require.NoError(t, c.Clear())

	memoryCount, fileCount, err = c.GetCacheStats()
	require.NoError(t, err)
	assert.Zero(t, memoryCount)
	assert.Zero(t, fileCount)
}

func TestFileCacheClearReportsErrors(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	c := newCache(t)
	trace, err := fixtures.WriteJSONL(t.TempDir(), "a.jsonl", testEvents())
	require.NoError(t, err)
	store(t, c, trace, testEvents())

	require.NoError(t, os.Chmod(c.baseDir, 0555))
	t.Cleanup(func() { os.Chmod(c.baseDir, 0755) })

	assert.Error(t, c.Clear())
	_, fileCount, err := c.GetCacheStats()
	require.NoError(t, err)
	assert.Equal(t, 1, fileCount)
}

func TestGetCacheStatsMissingDir(t *testing.T) {
	c := newCache(t)
	require.NoError(t, os.RemoveAll(c.baseDir))

	_, _, err := c.GetCacheStats()
	assert.Error(t, err)
}

func TestCacheMissReasonString(t *testing.T) {
	assert.Equal(t, "none", MissReasonNone.String())
	assert.Equal(t, "file size changed", MissReasonSize.String())
	assert.Equal(t, "unknown reason", CacheMissReason(99).String())
}
