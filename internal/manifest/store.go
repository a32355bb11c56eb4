package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"marketlake/models"
)

// ErrConflict is returned by CompareAndCommit when the record's version
// changed since it was read. The caller must treat this as "another worker
// owns this file" and abort, not retry.
var ErrConflict = errors.New("manifest record version conflict")

// Store is the durable ledger underneath the gate. Read is side-effect free.
// CompareAndCommit is the only mutation and must be atomic: either the full
// new record becomes visible at expectedVersion+1 or nothing changes.
type Store interface {
	// Read returns the record and its version for an identity. A zero
	// version means the identity has never been committed.
	Read(identity models.FileIdentity) (models.ManifestRecord, int64, error)

	// CompareAndCommit writes record at expectedVersion+1 if and only if the
	// stored version still equals expectedVersion. Returns ErrConflict
	// otherwise.
	CompareAndCommit(identity models.FileIdentity, expectedVersion int64, record models.ManifestRecord) error
}

// recordEnvelope is the on-disk form of one ledger entry.
type recordEnvelope struct {
	Version int64                 `json:"version"`
	Record  models.ManifestRecord `json:"record"`
}

// FileStore persists one JSON document per file identity under a directory,
// written with a tmp+rename so a crash never leaves a torn record. Version
// checks are serialized by an in-process mutex; the deployment model is a
// single ingestion writer process per manifest directory.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates the manifest directory if needed and returns a store
// rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create manifest dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(identity models.FileIdentity) string {
	sum := sha256.Sum256([]byte(identity.Key()))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+".json")
}

func (s *FileStore) Read(identity models.FileIdentity) (models.ManifestRecord, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(identity)
}

func (s *FileStore) readLocked(identity models.FileIdentity) (models.ManifestRecord, int64, error) {
	data, err := os.ReadFile(s.path(identity))
	if err != nil {
		if os.IsNotExist(err) {
			return models.ManifestRecord{}, 0, nil
		}
		return models.ManifestRecord{}, 0, fmt.Errorf("read manifest record: %w", err)
	}

	var env recordEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return models.ManifestRecord{}, 0, fmt.Errorf("parse manifest record: %w", err)
	}
	return env.Record, env.Version, nil
}

func (s *FileStore) CompareAndCommit(identity models.FileIdentity, expectedVersion int64, record models.ManifestRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, current, err := s.readLocked(identity)
	if err != nil {
		return err
	}
	if current != expectedVersion {
		return fmt.Errorf("expected version %d, found %d: %w", expectedVersion, current, ErrConflict)
	}

	env := recordEnvelope{Version: expectedVersion + 1, Record: record}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest record: %w", err)
	}

	path := s.path(identity)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write manifest record: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename manifest record: %w", err)
	}
	return nil
}

// List returns every record in the store. Used by operational tooling to
// report backlog state; order is not specified.
func (s *FileStore) List() ([]models.ManifestRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list manifest dir: %w", err)
	}

	records := make([]models.ManifestRecord, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read manifest record: %w", err)
		}
		var env recordEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("parse manifest record %s: %w", entry.Name(), err)
		}
		records = append(records, env.Record)
	}
	return records, nil
}
