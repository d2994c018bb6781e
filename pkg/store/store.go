package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

var (
	// ErrDuplicate is returned when a payload with an identical content hash
	// already exists in the library
	ErrDuplicate = errors.New("duplicate content")

	// ErrNotFound is returned when an operation references an unknown record ID
	ErrNotFound = errors.New("record not found")

	// ErrEmptyPayload is returned when a create is attempted with no payload bytes
	ErrEmptyPayload = errors.New("empty payload")
)

const (
	indexFileName = "memes.json"
	imageDirName  = "images"

	idSuffixLength = 6
)

// Store owns the meme library: the in-memory index, the serialized index
// file, and one payload file per record. All mutations are serialized and
// flushed to disk before they become visible to callers.
type Store struct {
	dataDir   string
	indexPath string
	imageDir  string

	records map[string]*Record
	mu      sync.RWMutex

	onChange []func()
	logger   zerolog.Logger
}

// CreateParams describes a record to add to the library
type CreateParams struct {
	Payload []byte
	TagText string
	Source  Source

	// Filename is the preferred ID for manual uploads. When empty, or when
	// the name is already taken, an ID is derived from the ingestion time.
	Filename string
}

// BatchResult reports the outcome of a batch delete
type BatchResult struct {
	Deleted []string
	Missing []string
}

// Open loads the library from dataDir, creating the layout on first use.
// A missing or malformed index file starts an empty library rather than
// failing startup.
func Open(dataDir string, logger zerolog.Logger) (*Store, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}

	imageDir := filepath.Join(dataDir, imageDirName)
	if err := os.MkdirAll(imageDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}

	s := &Store{
		dataDir:   dataDir,
		indexPath: filepath.Join(dataDir, indexFileName),
		imageDir:  imageDir,
		records:   make(map[string]*Record),
		logger:    logger.With().Str("component", "store").Logger(),
	}

	migrated, err := s.load()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load index, starting with empty library")
		s.records = make(map[string]*Record)
	}

	// One-time migration: rewrite legacy-shaped entries in canonical form
	if migrated > 0 {
		if err := s.flushLocked(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to rewrite migrated index")
		} else {
			s.logger.Info().Int("records", migrated).Msg("Migrated legacy index entries")
		}
	}

	s.logger.Info().Int("records", len(s.records)).Msg("Library loaded")

	return s, nil
}

// load reads the index file into memory. Returns the number of legacy-shaped
// entries that were normalized.
func (s *Store) load() (int, error) {
	data, err := os.ReadFile(s.indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read index: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return 0, fmt.Errorf("failed to parse index: %w", err)
	}

	migrated := 0
	for id, entry := range raw {
		var env recordEnvelope
		if err := json.Unmarshal(entry, &env); err != nil {
			s.logger.Warn().Str("id", id).Err(err).Msg("Skipping malformed index entry")
			continue
		}
		rec := env.Record
		rec.ID = id
		if rec.ContentHash == "" {
			migrated++
			// Legacy entries predate content hashing; hash the payload so
			// dedup covers them too.
			if payload, err := os.ReadFile(filepath.Join(s.imageDir, id)); err == nil {
				rec.ContentHash = HashContent(payload)
			}
		} else if isLegacyShape(entry) {
			migrated++
		}
		s.records[id] = &rec
	}

	return migrated, nil
}

// isLegacyShape reports whether a raw index entry uses the bare-string form
func isLegacyShape(entry json.RawMessage) bool {
	var tags string
	return json.Unmarshal(entry, &tags) == nil
}

// HashContent returns the deterministic content hash used for dedup
func HashContent(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Create adds a new record to the library. The payload file is written
// before the index entry becomes visible; on any failure the index and
// storage are left in their prior state. Byte-identical payloads are
// rejected with ErrDuplicate.
func (s *Store) Create(params CreateParams) (*Record, error) {
	if len(params.Payload) == 0 {
		return nil, ErrEmptyPayload
	}
	if params.Source == "" {
		params.Source = SourceManual
	}

	hash := HashContent(params.Payload)

	s.mu.Lock()

	for _, rec := range s.records {
		if rec.ContentHash == hash {
			s.mu.Unlock()
			return nil, ErrDuplicate
		}
	}

	id := s.allocateIDLocked(params.Filename)

	payloadPath := filepath.Join(s.imageDir, id)
	if err := os.WriteFile(payloadPath, params.Payload, 0644); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to write payload: %w", err)
	}

	rec := &Record{
		ID:          id,
		TagText:     params.TagText,
		Source:      params.Source,
		ContentHash: hash,
	}
	s.records[id] = rec

	if err := s.flushLocked(); err != nil {
		delete(s.records, id)
		if rmErr := os.Remove(payloadPath); rmErr != nil {
			s.logger.Warn().Str("id", id).Err(rmErr).Msg("Failed to remove payload after flush failure")
		}
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to flush index: %w", err)
	}

	out := *rec
	s.mu.Unlock()

	s.logger.Info().
		Str("id", id).
		Str("tags", out.TagText).
		Str("source", string(out.Source)).
		Msg("Record created")

	s.notify()

	return &out, nil
}

// allocateIDLocked picks an unused record ID. Manual uploads keep their
// original filename when it is free; collisions and pipeline commits get an
// ID derived from the ingestion time.
func (s *Store) allocateIDLocked(filename string) string {
	if filename != "" {
		name := filepath.Base(filename)
		if _, taken := s.records[name]; !taken {
			return name
		}
		return fmt.Sprintf("%d_%s", time.Now().Unix(), name)
	}

	suffix, err := gonanoid.New(idSuffixLength)
	if err != nil {
		// nanoid only fails when the entropy source does; fall back to a
		// nanosecond stamp
		suffix = strconv.FormatInt(time.Now().UnixNano()%1e6, 10)
	}
	return fmt.Sprintf("%d_%s.jpg", time.Now().UnixMilli(), suffix)
}

// Delete removes a record and flushes the index. The index is authoritative:
// the entry is removed and persisted first, then payload removal is
// attempted best-effort. A leftover payload file is acceptable orphaned
// storage; a resurrected record is not.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}

	delete(s.records, id)
	if err := s.flushLocked(); err != nil {
		s.records[id] = rec
		s.mu.Unlock()
		return fmt.Errorf("failed to flush index: %w", err)
	}
	s.mu.Unlock()

	s.removePayload(id)
	s.logger.Info().Str("id", id).Msg("Record deleted")
	s.notify()

	return nil
}

// BatchDelete removes each ID independently; unknown IDs are reported in
// the result without aborting the rest. The index is flushed once.
func (s *Store) BatchDelete(ids []string) (BatchResult, error) {
	var result BatchResult

	s.mu.Lock()
	removed := make(map[string]*Record)
	for _, id := range ids {
		rec, ok := s.records[id]
		if !ok {
			result.Missing = append(result.Missing, id)
			continue
		}
		removed[id] = rec
		delete(s.records, id)
		result.Deleted = append(result.Deleted, id)
	}

	if len(removed) == 0 {
		s.mu.Unlock()
		return result, nil
	}

	if err := s.flushLocked(); err != nil {
		for id, rec := range removed {
			s.records[id] = rec
		}
		s.mu.Unlock()
		return BatchResult{Missing: result.Missing}, fmt.Errorf("failed to flush index: %w", err)
	}
	s.mu.Unlock()

	for id := range removed {
		s.removePayload(id)
	}

	s.logger.Info().
		Int("deleted", len(result.Deleted)).
		Int("missing", len(result.Missing)).
		Msg("Batch delete completed")
	s.notify()

	return result, nil
}

// UpdateTag replaces a record's tag text and flushes the index
func (s *Store) UpdateTag(id string, newTag string) error {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}

	oldTag := rec.TagText
	rec.TagText = newTag
	if err := s.flushLocked(); err != nil {
		rec.TagText = oldTag
		s.mu.Unlock()
		return fmt.Errorf("failed to flush index: %w", err)
	}
	s.mu.Unlock()

	s.logger.Info().Str("id", id).Str("tags", newTag).Msg("Record tag updated")
	s.notify()

	return nil
}

// Get returns a copy of the record with the given ID
func (s *Store) Get(id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	return &out, nil
}

// List returns a snapshot of the library sorted by record ID. The sorted
// order is the stable scan order the retrieval engine relies on for
// tie-breaking.
func (s *Store) List() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HasContent reports whether a payload with the given hash is already
// stored. The ingestion pipeline checks this before spending a classifier
// call on known content.
func (s *Store) HasContent(hash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.ContentHash == hash {
			return true
		}
	}
	return false
}

// Count returns the number of records in the library
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// PayloadPath returns the path of a record's payload file
func (s *Store) PayloadPath(id string) string {
	return filepath.Join(s.imageDir, id)
}

// ImageDir returns the directory holding payload files
func (s *Store) ImageDir() string {
	return s.imageDir
}

// OnChange registers a callback invoked after every successful mutation.
// Callbacks run on their own goroutine and must not call back into the store.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

func (s *Store) notify() {
	s.mu.RLock()
	callbacks := make([]func(), len(s.onChange))
	copy(callbacks, s.onChange)
	s.mu.RUnlock()

	for _, fn := range callbacks {
		go fn()
	}
}

// removePayload deletes a record's payload file, best-effort
func (s *Store) removePayload(id string) {
	if err := os.Remove(filepath.Join(s.imageDir, id)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn().Str("id", id).Err(err).Msg("Failed to remove payload file, leaving orphan")
	}
}

// SweepOrphans removes payload files that no index entry refers to and
// returns the number removed. Orphans accumulate when best-effort payload
// removal fails after a delete.
func (s *Store) SweepOrphans() (int, error) {
	s.mu.RLock()
	known := make(map[string]struct{}, len(s.records))
	for id := range s.records {
		known[id] = struct{}{}
	}
	s.mu.RUnlock()

	entries, err := os.ReadDir(s.imageDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read image directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := known[entry.Name()]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(s.imageDir, entry.Name())); err != nil {
			s.logger.Warn().Str("file", entry.Name()).Err(err).Msg("Failed to remove orphan payload")
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("Swept orphan payload files")
	}

	return removed, nil
}

// flushLocked writes the index atomically (write-then-rename). Callers must
// hold the write lock.
func (s *Store) flushLocked() error {
	index := make(map[string]*Record, len(s.records))
	for id, rec := range s.records {
		index[id] = rec
	}

	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}

	tempFile := s.indexPath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write index temp file: %w", err)
	}

	if err := os.Rename(tempFile, s.indexPath); err != nil {
		return fmt.Errorf("failed to replace index file: %w", err)
	}

	return nil
}
