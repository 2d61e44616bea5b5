package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/radarcache/radarcache/internal/radar"
)

var (
	// ErrNotFound is returned when no cached data is available for a location.
	ErrNotFound = errors.New("no cached radar data for location")
)

const (
	manifestFile = "frames.json"
	metadataFile = "metadata.json"
	debugDirName = "debug"
)

// FolderInfo describes one cache folder on disk. Timestamp is the value
// embedded in the folder name; when the name cannot be parsed the filesystem
// modification time is used as a fallback.
type FolderInfo struct {
	Name      string
	Path      string
	Timestamp time.Time
}

// FileStore provides the raw folder and file primitives for the radar cache.
// Layout: {root}/{locationKey}_{yyyyMMdd_HHmmss}/frame_{i}.png + frames.json
// + metadata.json, plus {root}/debug/{requestId} for debug artifacts.
type FileStore struct {
	root       string
	frameCount int
	tz         *time.Location
}

// NewFileStore creates the cache root if needed and returns a store over it.
func NewFileStore(root string, frameCount int, tz *time.Location) (*FileStore, error) {
	if frameCount <= 0 {
		return nil, fmt.Errorf("frame count must be positive, got %d", frameCount)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}
	return &FileStore{root: root, frameCount: frameCount, tz: tz}, nil
}

// Root returns the cache root directory.
func (s *FileStore) Root() string { return s.root }

// FrameCount returns the expected number of frames per folder.
func (s *FileStore) FrameCount() int { return s.frameCount }

// CreateFolder creates a cache folder with the given name and returns its path.
func (s *FileStore) CreateFolder(name string) (string, error) {
	path := filepath.Join(s.root, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("create cache folder %s: %w", name, err)
	}
	return path, nil
}

// DeleteFolder removes a cache folder and everything in it.
func (s *FileStore) DeleteFolder(path string) error {
	return os.RemoveAll(path)
}

// IsEmpty reports whether the folder contains no entries.
func (s *FileStore) IsEmpty(path string) bool {
	entries, err := os.ReadDir(path)
	return err == nil && len(entries) == 0
}

// IsComplete reports whether a folder passes the completeness check: all
// expected frame files exist and the frame manifest exists. This is the sole
// signal distinguishing a fully-written folder from a partial or in-progress
// one; there is no separate commit marker.
func (s *FileStore) IsComplete(path string) bool {
	for i := 0; i < s.frameCount; i++ {
		if !fileExists(s.FramePath(path, i)) {
			return false
		}
	}
	return fileExists(filepath.Join(path, manifestFile))
}

// FramePath returns the path of frame i inside folder.
func (s *FileStore) FramePath(folder string, i int) string {
	return filepath.Join(folder, fmt.Sprintf("frame_%d.png", i))
}

// WriteFrame writes one frame image and returns its path.
func (s *FileStore) WriteFrame(folder string, i int, data []byte) (string, error) {
	path := s.FramePath(folder, i)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write frame %d: %w", i, err)
	}
	return path, nil
}

// WriteManifest persists the per-frame capture metadata. Writing the manifest
// is what flips the folder to complete, so it must come after all frames.
func (s *FileStore) WriteManifest(folder string, frames []radar.Frame) error {
	data, err := json.Marshal(frames)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(folder, manifestFile), data, 0o644)
}

// ReadManifest loads the per-frame capture metadata and fills in image paths.
func (s *FileStore) ReadManifest(folder string) ([]radar.Frame, error) {
	data, err := os.ReadFile(filepath.Join(folder, manifestFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var frames []radar.Frame
	if err := json.Unmarshal(data, &frames); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	for i := range frames {
		frames[i].ImagePath = s.FramePath(folder, frames[i].Index)
	}
	return frames, nil
}

// WriteMetadata persists the observation metadata record.
func (s *FileStore) WriteMetadata(folder string, meta radar.ObservationMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	return os.WriteFile(filepath.Join(folder, metadataFile), data, 0o644)
}

// ReadMetadata loads the observation metadata record.
func (s *FileStore) ReadMetadata(folder string) (radar.ObservationMetadata, error) {
	data, err := os.ReadFile(filepath.Join(folder, metadataFile))
	if err != nil {
		return radar.ObservationMetadata{}, fmt.Errorf("read metadata: %w", err)
	}
	var meta radar.ObservationMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return radar.ObservationMetadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return meta, nil
}

// ListFolders returns all cache folders for a location key, newest first by
// embedded timestamp.
func (s *FileStore) ListFolders(key string) ([]FolderInfo, error) {
	all, err := s.ListAll()
	if err != nil {
		return nil, err
	}
	prefix := key + "_"
	var out []FolderInfo
	for _, f := range all {
		if strings.HasPrefix(f.Name, prefix) {
			out = append(out, f)
		}
	}
	return out, nil
}

// ListAll returns every cache folder (excluding the debug directory), newest
// first by embedded timestamp.
func (s *FileStore) ListAll() ([]FolderInfo, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("scan cache root: %w", err)
	}
	var out []FolderInfo
	for _, e := range entries {
		if !e.IsDir() || e.Name() == debugDirName {
			continue
		}
		info := FolderInfo{
			Name: e.Name(),
			Path: filepath.Join(s.root, e.Name()),
		}
		if _, ts, err := radar.ParseFolderName(e.Name(), s.tz); err == nil {
			info.Timestamp = ts
		} else if fi, err := e.Info(); err == nil {
			info.Timestamp = fi.ModTime()
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// DeleteOlderThan removes cache folders whose last-write time is before
// cutoff. Returns the number of folders removed.
func (s *FileStore) DeleteOlderThan(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("scan cache root: %w", err)
	}
	deleted := 0
	for _, e := range entries {
		if !e.IsDir() || e.Name() == debugDirName {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		if fi.ModTime().Before(cutoff) {
			if err := os.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
				return deleted, fmt.Errorf("delete expired folder %s: %w", e.Name(), err)
			}
			deleted++
		}
	}
	return deleted, nil
}

// DebugDir returns the debug artifact directory for a request id, creating it.
func (s *FileStore) DebugDir(requestID string) (string, error) {
	path := filepath.Join(s.root, debugDirName, requestID)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("create debug dir: %w", err)
	}
	return path, nil
}

// PurgeDebug removes debug artifact directories older than cutoff.
func (s *FileStore) PurgeDebug(cutoff time.Time) (int, error) {
	debugRoot := filepath.Join(s.root, debugDirName)
	entries, err := os.ReadDir(debugRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("scan debug dir: %w", err)
	}
	deleted := 0
	for _, e := range entries {
		fi, err := e.Info()
		if err != nil {
			continue
		}
		if fi.ModTime().Before(cutoff) {
			if err := os.RemoveAll(filepath.Join(debugRoot, e.Name())); err != nil {
				return deleted, fmt.Errorf("purge debug %s: %w", e.Name(), err)
			}
			deleted++
		}
	}
	return deleted, nil
}

// CleanupIncomplete deletes every folder failing the completeness check.
// Intended for startup crash recovery, before any update can be in flight.
func (s *FileStore) CleanupIncomplete() (int, error) {
	all, err := s.ListAll()
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, f := range all {
		if s.IsComplete(f.Path) {
			continue
		}
		if err := os.RemoveAll(f.Path); err != nil {
			return deleted, fmt.Errorf("delete incomplete folder %s: %w", f.Name, err)
		}
		deleted++
	}
	return deleted, nil
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
