// Package cache stores decoded trace events on disk so that unchanged traces
// skip the decoding step on later runs.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/penwyp/go-coro-inspect/internal/core/model"
	"github.com/penwyp/go-coro-inspect/internal/data/scanner"
	"github.com/penwyp/go-coro-inspect/internal/util"
)

type CacheMissReason int

const (
	MissReasonNone CacheMissReason = iota
	MissReasonError
	MissReasonNotFound
	MissReasonFileSet
	MissReasonInode
	MissReasonSize
	MissReasonModTime
	MissReasonFingerprint
	MissReasonNoFingerprint
)

func (r CacheMissReason) String() string {
	switch r {
	case MissReasonNone:
		return "none"
	case MissReasonError:
		return "cache read error"
	case MissReasonNotFound:
		return "cache not found"
	case MissReasonFileSet:
		return "trace files added or removed"
	case MissReasonInode:
		return "file inode changed"
	case MissReasonSize:
		return "file size changed"
	case MissReasonModTime:
		return "modification time changed"
	case MissReasonFingerprint:
		return "file fingerprint changed"
	case MissReasonNoFingerprint:
		return "cached entry has no fingerprint"
	default:
		return "unknown reason"
	}
}

// FileState is the identity of one trace file at the time it was decoded.
type FileState struct {
	Path string `json:"path"`
	util.FileInfo
}

// Entry is the cached decoding of one trace for one event name.
type Entry struct {
	TracePath   string        `json:"trace_path"`
	EventName   string        `json:"event_name"`
	Files       []FileState   `json:"files"`
	Fingerprint string        `json:"fingerprint"`
	CreatedAt   int64         `json:"created_at"`
	Events      []model.Event `json:"events"`
}

// Snapshot is the state of a trace's files at one instant. It must be taken
// before decoding starts so that data appended during decoding invalidates
// the entry.
type Snapshot struct {
	TracePath   string
	Files       []FileState
	Fingerprint string
}

// TakeSnapshot records the identity, size, mtime and fingerprint of every
// file of the trace.
func TakeSnapshot(tracePath string) (*Snapshot, error) {
	files, err := traceFiles(tracePath)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		TracePath: tracePath,
		Files:     make([]FileState, 0, len(files)),
	}
	for _, path := range files {
		info, err := util.GetFileInfo(path)
		if err != nil {
			return nil, err
		}
		snap.Files = append(snap.Files, FileState{Path: path, FileInfo: *info})
	}
	if fingerprint, err := util.CalculateFingerprint(files); err == nil {
		snap.Fingerprint = fingerprint
	}
	return snap, nil
}

type CacheResult struct {
	Entry      *Entry
	Found      bool
	MissReason CacheMissReason
}

type Cache interface {
	Get(tracePath, eventName string) CacheResult
	Set(snapshot *Snapshot, eventName string, events []model.Event) error
	Clear() error
}

// FileCache keeps one JSON file per (trace, event name) under baseDir, plus
// an in-memory copy of every entry read or written during the process.
type FileCache struct {
	baseDir     string
	mu          sync.RWMutex
	memoryCache map[string]*Entry
}

func NewFileCache(baseDir string) (*FileCache, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}

	return &FileCache{
		baseDir:     baseDir,
		memoryCache: make(map[string]*Entry),
	}, nil
}

// Key derives the cache key of a trace: a name-based UUID of its absolute
// path and the event name.
func Key(tracePath, eventName string) string {
	if abs, err := filepath.Abs(tracePath); err == nil {
		tracePath = abs
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+tracePath+"#"+eventName)).String()
}

func (c *FileCache) path(key string) string {
	return filepath.Join(c.baseDir, key+".json")
}

func (c *FileCache) Get(tracePath, eventName string) CacheResult {
	key := Key(tracePath, eventName)

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.memoryCache[key]; exists {
		if reason := validate(entry); reason == MissReasonNone {
			return CacheResult{Entry: entry, Found: true}
		}
		delete(c.memoryCache, key)
	}

	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return CacheResult{MissReason: MissReasonNotFound}
	}

	var entry Entry
	if err := sonic.Unmarshal(data, &entry); err != nil {
		util.LogDebug(fmt.Sprintf("Cache entry %s is corrupted: %v", key, err))
		return CacheResult{MissReason: MissReasonError}
	}

	if reason := validate(&entry); reason != MissReasonNone {
		return CacheResult{MissReason: reason}
	}

	c.memoryCache[key] = &entry
	return CacheResult{Entry: &entry, Found: true}
}

// validate checks that the trace still consists of the same files, unchanged.
func validate(entry *Entry) CacheMissReason {
	files, err := traceFiles(entry.TracePath)
	if err != nil {
		util.LogDebug(fmt.Sprintf("Cache validation failed for %s: unable to scan trace: %v", entry.TracePath, err))
		return MissReasonError
	}
	if len(files) != len(entry.Files) {
		util.LogDebug(fmt.Sprintf("Cache invalidated for %s: file count changed (cached: %d, current: %d)",
			entry.TracePath, len(entry.Files), len(files)))
		return MissReasonFileSet
	}

	newest := int64(0)
	for i, cached := range entry.Files {
		if files[i] != cached.Path {
			util.LogDebug(fmt.Sprintf("Cache invalidated for %s: file set changed (%s)", entry.TracePath, files[i]))
			return MissReasonFileSet
		}

		current, err := util.GetFileInfo(cached.Path)
		if err != nil {
			util.LogDebug(fmt.Sprintf("Cache validation failed for %s: unable to get file info: %v", cached.Path, err))
			return MissReasonError
		}
		if current.Inode != cached.Inode {
			util.LogDebug(fmt.Sprintf("Cache invalidated for %s: inode changed (cached: %d, current: %d)",
				cached.Path, cached.Inode, current.Inode))
			return MissReasonInode
		}
		if current.Size != cached.Size {
			util.LogDebug(fmt.Sprintf("Cache invalidated for %s: size changed (cached: %d, current: %d)",
				cached.Path, cached.Size, current.Size))
			return MissReasonSize
		}
		if current.ModTime != cached.ModTime {
			util.LogDebug(fmt.Sprintf("Cache invalidated for %s: modtime changed (cached: %d, current: %d)",
				cached.Path, cached.ModTime, current.ModTime))
			return MissReasonModTime
		}
		if current.ModTime > newest {
			newest = current.ModTime
		}
	}

	// traces left alone for two days are considered final
	if time.Since(time.Unix(0, newest)) > 48*time.Hour {
		return MissReasonNone
	}

	if entry.Fingerprint == "" {
		util.LogDebug(fmt.Sprintf("Cache invalidated for %s: no fingerprint in cached data", entry.TracePath))
		return MissReasonNoFingerprint
	}
	fingerprint, err := util.CalculateFingerprint(files)
	if err != nil {
		util.LogDebug(fmt.Sprintf("Cache invalidated for %s: unable to calculate fingerprint: %v", entry.TracePath, err))
		return MissReasonNoFingerprint
	}
	if fingerprint != entry.Fingerprint {
		util.LogDebug(fmt.Sprintf("Cache invalidated for %s: fingerprint mismatch (cached: %s, current: %s)",
			entry.TracePath, entry.Fingerprint, fingerprint))
		return MissReasonFingerprint
	}
	return MissReasonNone
}

func traceFiles(tracePath string) ([]string, error) {
	result, err := scanner.NewTraceScanner(tracePath).Scan()
	if err != nil {
		return nil, err
	}
	return result.Files, nil
}

// Set stores events decoded from the trace state captured by snapshot.
func (c *FileCache) Set(snapshot *Snapshot, eventName string, events []model.Event) error {
	if snapshot == nil {
		return errors.New("cache: nil trace snapshot")
	}
	tracePath := snapshot.TracePath

	entry := &Entry{
		TracePath:   tracePath,
		EventName:   eventName,
		Files:       snapshot.Files,
		Fingerprint: snapshot.Fingerprint,
		CreatedAt:   time.Now().Unix(),
		Events:      events,
	}

	data, err := sonic.Marshal(entry)
	if err != nil {
		return err
	}

	key := Key(tracePath, eventName)

	c.mu.Lock()
	defer c.mu.Unlock()

	// write then rename so a concurrent reader never sees a partial entry
	tmp := c.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, c.path(key)); err != nil {
		os.Remove(tmp)
		return err
	}

	c.memoryCache[key] = entry
	util.LogDebug(fmt.Sprintf("Cached %d events of %s (%d files)", len(events), tracePath, len(entry.Files)))
	return nil
}

// Clear removes every entry. Files that cannot be removed are reported
// together in the returned error.
func (c *FileCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.memoryCache = make(map[string]*Entry)

	var removeErrs []error
	err := filepath.Walk(c.baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && (filepath.Ext(path) == ".json" || strings.HasSuffix(path, ".json.tmp")) {
			if err := os.Remove(path); err != nil {
				removeErrs = append(removeErrs, err)
			}
		}
		return nil
	})
	return errors.Join(append(removeErrs, err)...)
}

// GetCacheStats returns the number of entries held in memory and on disk.
func (c *FileCache) GetCacheStats() (memoryCount, fileCount int, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	memoryCount = len(c.memoryCache)

	err = filepath.Walk(c.baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(strings.ToLower(path), ".json") {
			fileCount++
		}
		return nil
	})
	if err != nil {
		return memoryCount, 0, fmt.Errorf("failed to count cache files: %w", err)
	}
	return memoryCount, fileCount, nil
}
