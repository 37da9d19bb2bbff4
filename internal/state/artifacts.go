package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"crucible/internal/fileutil"
	"crucible/internal/textutil"
)

func artifactName(testID string) string {
	name := textutil.SanitizeFileName(testID)
	if name == "" {
		return "unknown"
	}
	return name
}

// ResultPath returns where the result artifact for testID lives.
func (s *Store) ResultPath(testID string) string {
	return filepath.Join(s.dir, ResultsDir, artifactName(testID)+".json")
}

// RawRecordPath returns the artifact path for one call.
func (s *Store) RawRecordPath(testID string, layer, seq int) string {
	return filepath.Join(s.dir, RawDir, fmt.Sprintf("%s.%d.%03d.json", artifactName(testID), layer, seq))
}

// MetadataPath returns the experiment metadata artifact path.
func (s *Store) MetadataPath() string { return filepath.Join(s.dir, MetadataFile) }

// ManifestPath returns the manifest artifact path.
func (s *Store) ManifestPath() string { return filepath.Join(s.dir, ManifestFile) }

// LockPath returns the single-runner lock path.
func (s *Store) LockPath() string { return filepath.Join(s.dir, LockFile) }

// RecordRaw assigns the next call sequence for (test id, layer) and writes
// the record. It must succeed before the response is used for anything else.
func (s *Store) RecordRaw(rec *RawRecord) (string, error) {
	if rec == nil {
		return "", errors.New("raw record is nil")
	}
	s.rawMu.Lock()
	defer s.rawMu.Unlock()

	key := rec.TestID + "\x00" + strconv.Itoa(rec.Layer)
	last, ok := s.rawSeq[key]
	if !ok {
		var err error
		last, err = s.lastRawSequence(rec.TestID, rec.Layer)
		if err != nil {
			return "", err
		}
	}
	rec.Sequence = last + 1
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = s.now()
	}
	path := s.RawRecordPath(rec.TestID, rec.Layer, rec.Sequence)
	if err := fileutil.WriteJSONAtomic(path, rec); err != nil {
		return "", fmt.Errorf("write raw record: %w", err)
	}
	s.rawSeq[key] = rec.Sequence
	return path, nil
}

func (s *Store) lastRawSequence(testID string, layer int) (int, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, RawDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("scan raw records: %w", err)
	}
	prefix := fmt.Sprintf("%s.%d.", artifactName(testID), layer)
	last := 0
	for _, entry := range entries {
		if seq, ok := rawSequence(entry.Name(), prefix); ok && seq > last {
			last = seq
		}
	}
	return last, nil
}

// rawSequence extracts the sequence from "<prefix><digits>.json". Anything
// else after the prefix belongs to a different test id.
func rawSequence(name, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok {
		return 0, false
	}
	digits, ok := strings.CutSuffix(rest, ".json")
	if !ok || digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	seq, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// RawRecords returns every raw record of a unit ordered by layer and sequence.
func (s *Store) RawRecords(testID string) ([]RawRecord, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, RawDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan raw records: %w", err)
	}
	base := artifactName(testID) + "."
	var records []RawRecord
	for _, entry := range entries {
		rest, ok := strings.CutPrefix(entry.Name(), base)
		if !ok {
			continue
		}
		layerStr, tail, ok := strings.Cut(rest, ".")
		if !ok {
			continue
		}
		if _, err := strconv.Atoi(layerStr); err != nil {
			continue
		}
		if _, ok := rawSequence(tail, ""); !ok {
			continue
		}
		var rec RawRecord
		if err := fileutil.ReadJSON(filepath.Join(s.dir, RawDir, entry.Name()), &rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Layer != records[j].Layer {
			return records[i].Layer < records[j].Layer
		}
		return records[i].Sequence < records[j].Sequence
	})
	return records, nil
}

// HasResult reports whether the result artifact for testID exists.
func (s *Store) HasResult(testID string) bool {
	return fileutil.Exists(s.ResultPath(testID))
}

// Result reads the result artifact of a completed unit.
func (s *Store) Result(testID string) (*TestResult, error) {
	var result TestResult
	if err := fileutil.ReadJSON(s.ResultPath(testID), &result); err != nil {
		return nil, fmt.Errorf("read result %s: %w", testID, err)
	}
	return &result, nil
}

// WriteMetadata replaces experiment.json.
func (s *Store) WriteMetadata(v any) error {
	return fileutil.WriteJSONAtomic(s.MetadataPath(), v)
}

// WriteManifest replaces manifest.json.
func (s *Store) WriteManifest(v any) error {
	return fileutil.WriteJSONAtomic(s.ManifestPath(), v)
}
