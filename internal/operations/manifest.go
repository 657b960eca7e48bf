package operations

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "hestonlab/internal/errors"
)

// RunManifest is the run-provenance file shared by every command. Each
// update rereads and rewrites the whole document, so entries written by
// other keys survive.
type RunManifest struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
	git  func() map[string]interface{}
}

// NewRunManifest binds a manifest to its JSON file.
func NewRunManifest(path string) *RunManifest {
	return &RunManifest{path: path, now: time.Now, git: gitInfo}
}

// Path returns the manifest file location.
func (m *RunManifest) Path() string {
	return m.path
}

// Load reads the manifest; a missing file yields an empty document.
func (m *RunManifest) Load() (map[string]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load()
}

// Runs returns the runs section.
func (m *RunManifest) Runs() (map[string]interface{}, error) {
	doc, err := m.Load()
	if err != nil {
		return nil, err
	}
	runs, _ := doc["runs"].(map[string]interface{})
	if runs == nil {
		runs = map[string]interface{}{}
	}
	return runs, nil
}

// UpdateRun stores data under runs[key] and returns the stored value.
//
// In append mode runs[key] is a list: entries whose idField equals data's
// are replaced, and the list is kept sorted by idField. Otherwise data
// replaces runs[key] outright.
func (m *RunManifest) UpdateRun(key string, data map[string]interface{}, appendMode bool, idField string) (interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.load()
	if err != nil {
		return nil, err
	}
	runs, ok := doc["runs"].(map[string]interface{})
	if !ok {
		runs = map[string]interface{}{}
		doc["runs"] = runs
	}

	if appendMode {
		existing, _ := runs[key].([]interface{})
		items := make([]interface{}, 0, len(existing)+1)
		for _, item := range existing {
			if idField != "" {
				if entry, ok := item.(map[string]interface{}); ok && sameID(entry[idField], data[idField]) {
					continue
				}
			}
			items = append(items, item)
		}
		items = append(items, normalize(data))
		if idField != "" {
			sort.SliceStable(items, func(i, j int) bool {
				return idString(items[i], idField) < idString(items[j], idField)
			})
		}
		runs[key] = items
	} else {
		runs[key] = normalize(data)
	}

	if err := m.save(doc); err != nil {
		return nil, err
	}
	return runs[key], nil
}

func (m *RunManifest) load() (map[string]interface{}, error) {
	raw, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return map[string]interface{}{"runs": map[string]interface{}{}}, nil
	}
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to read manifest %s", m.path), err)
	}
	doc := map[string]interface{}{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to parse manifest %s", m.path), err)
	}
	return doc, nil
}

func (m *RunManifest) save(doc map[string]interface{}) error {
	doc["generated_at"] = m.now().UTC().Format(time.RFC3339Nano)
	doc["git"] = m.git()
	doc["system"] = systemInfo()
	doc["build"] = buildInfo()
	if _, ok := doc["runs"]; !ok {
		doc["runs"] = map[string]interface{}{}
	}

	// encoding/json sorts map keys.
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return apperrors.NewStorageError("failed to marshal manifest", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return apperrors.NewStorageError("failed to create manifest directory", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(m.path), ".manifest-*.json")
	if err != nil {
		return apperrors.NewStorageError("failed to create manifest temp file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperrors.NewStorageError("failed to write manifest", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperrors.NewStorageError("failed to write manifest", err)
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		os.Remove(tmpName)
		return apperrors.NewStorageError("failed to replace manifest", err)
	}
	return nil
}

// normalize round-trips data through JSON so stored entries have the same
// shape as entries read back from disk.
func normalize(data map[string]interface{}) interface{} {
	raw, err := json.Marshal(data)
	if err != nil {
		return data
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return data
	}
	return out
}

// JSONFloat maps NaN and infinities to null so metrics survive encoding.
func JSONFloat(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func sameID(a, b interface{}) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func idString(item interface{}, idField string) string {
	entry, ok := item.(map[string]interface{})
	if !ok {
		return ""
	}
	v, ok := entry[idField]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// DescribeInputs checksums each regular file. Paths that do not exist or
// are directories are listed without a checksum; unreadable files carry a
// null sha256.
func DescribeInputs(paths []string) []map[string]interface{} {
	entries := make([]map[string]interface{}, 0, len(paths))
	for _, path := range paths {
		if path == "" {
			continue
		}
		record := map[string]interface{}{"path": path}
		info, err := os.Stat(path)
		if err == nil && info.Mode().IsRegular() {
			raw, err := os.ReadFile(path)
			if err != nil {
				record["sha256"] = nil
			} else {
				sum := sha256.Sum256(raw)
				record["sha256"] = hex.EncodeToString(sum[:])
				record["size_bytes"] = info.Size()
			}
		}
		entries = append(entries, record)
	}
	return entries
}

func gitInfo() map[string]interface{} {
	run := func(args ...string) (string, error) {
		out, err := exec.Command("git", args...).Output()
		return strings.TrimSpace(string(out)), err
	}
	sha, err := run("rev-parse", "HEAD")
	if err != nil {
		return map[string]interface{}{"available": false}
	}
	branch, _ := run("rev-parse", "--abbrev-ref", "HEAD")
	status, _ := run("status", "--porcelain")
	return map[string]interface{}{
		"sha":    sha,
		"branch": branch,
		"dirty":  status != "",
	}
}

func systemInfo() map[string]interface{} {
	hostname, _ := os.Hostname()
	return map[string]interface{}{
		"platform":   runtime.GOOS,
		"machine":    runtime.GOARCH,
		"go":         runtime.Version(),
		"cpu_count":  runtime.NumCPU(),
		"gomaxprocs": runtime.GOMAXPROCS(0),
		"hostname":   hostname,
	}
}

func buildInfo() map[string]interface{} {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return map[string]interface{}{"available": false}
	}
	out := map[string]interface{}{
		"available": true,
		"module":    info.Main.Path,
		"version":   info.Main.Version,
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision", "vcs.modified", "-race", "CGO_ENABLED":
			out[setting.Key] = setting.Value
		}
	}
	return out
}
