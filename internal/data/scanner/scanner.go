package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/penwyp/go-coro-inspect/internal/util"
)

// MetadataFile is the name of the CTF metadata stream of a trace.
const MetadataFile = "metadata"

// TraceScanner lists the files making up a trace.
type TraceScanner struct {
	path string
}

// ScanResult describes a scanned trace path.
type ScanResult struct {
	Root string
	// Files holds every regular file under Root, sorted.
	Files []string
	// MetadataDirs holds directories containing a CTF metadata file. LTTng
	// sessions write one per channel/uid.
	MetadataDirs []string
	IsDir        bool
}

// NewTraceScanner creates a scanner for a trace file or directory.
func NewTraceScanner(path string) *TraceScanner {
	return &TraceScanner{path: path}
}

// Scan walks the trace path. A single file scans to itself.
func (s *TraceScanner) Scan() (*ScanResult, error) {
	start := time.Now()
	util.LogDebug(fmt.Sprintf("Start scanning trace: %s", s.path))

	info, err := os.Stat(s.path)
	if err != nil {
		return nil, err
	}

	result := &ScanResult{Root: s.path, IsDir: info.IsDir()}
	if !info.IsDir() {
		result.Files = []string{s.path}
		return result, nil
	}

	dirCount := 0
	err = filepath.Walk(s.path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			util.LogDebug(fmt.Sprintf("Skip file (error): %s - %v", path, err))
			return nil
		}
		if info.IsDir() {
			dirCount++
			return nil
		}
		// lttng writes its index files next to the streams
		if strings.HasSuffix(path, ".idx") {
			return nil
		}

		result.Files = append(result.Files, path)
		if info.Name() == MetadataFile {
			result.MetadataDirs = append(result.MetadataDirs, filepath.Dir(path))
		}
		return nil
	})

	sort.Strings(result.Files)
	sort.Strings(result.MetadataDirs)

	util.LogDebug(fmt.Sprintf("Trace scan completed: duration %v, scanned %d directories, found %d files, %d CTF traces",
		time.Since(start), dirCount, len(result.Files), len(result.MetadataDirs)))

	return result, err
}

// IsCTF reports whether the scanned path holds at least one CTF trace.
func (r *ScanResult) IsCTF() bool {
	return len(r.MetadataDirs) > 0
}
