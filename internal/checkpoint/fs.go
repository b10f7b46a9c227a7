package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

const metadataFile = "metadata.json"

// FileStore implements Store on the local filesystem. Each run gets a
// directory under outputDir/checkpoints/<runKey>/ holding one JSON payload
// file per stage plus metadata.json. metadata.json is replaced via a temp
// file and rename so an interrupted write never leaves a torn index.
type FileStore struct {
	mu          sync.Mutex
	dir         string
	useExisting bool
	meta        Metadata
	startTimes  map[string]time.Time
	savedInRun  map[string]bool
	logger      *zap.Logger

	now func() time.Time
}

// NewFileStore initializes the checkpoint context for the given signature.
// Unless forceRestart is set, a prior metadata.json with an exactly equal
// signature enables restore of that run's stage payloads. A corrupt or
// mismatched prior index is logged and treated as a fresh run.
func NewFileStore(outputDir string, sig Signature, forceRestart bool, logger *zap.Logger) (*FileStore, error) {
	return newFileStore(outputDir, sig, forceRestart, logger, time.Now)
}

func newFileStore(outputDir string, sig Signature, forceRestart bool, logger *zap.Logger, now func() time.Time) (*FileStore, error) {
	runKey := sig.RunKey(now())
	dir := filepath.Join(outputDir, "checkpoints", runKey)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	s := &FileStore{
		dir: dir,
		meta: Metadata{
			RunID:       fmt.Sprintf("%s-%d", runKey, now().UnixNano()),
			RunKey:      runKey,
			Signature:   sig,
			GeneratedAt: now(),
			Stages:      make(map[string]Record),
		},
		startTimes: make(map[string]time.Time),
		savedInRun: make(map[string]bool),
		logger:     logger,
		now:        now,
	}

	if forceRestart {
		logger.Info("Force restart requested, ignoring existing checkpoints",
			zap.String("run_key", runKey))
		return s, nil
	}

	prior, err := loadMetadata(filepath.Join(dir, metadataFile))
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Failed to load checkpoint metadata, starting fresh",
				zap.String("run_key", runKey), zap.Error(err))
		}
		return s, nil
	}

	if !prior.Signature.Equal(sig) {
		logger.Info("Checkpoint signature mismatch, starting fresh",
			zap.String("run_key", runKey))
		return s, nil
	}

	s.useExisting = true
	s.meta.Stages = prior.Stages
	if s.meta.Stages == nil {
		s.meta.Stages = make(map[string]Record)
	}
	logger.Info("Resuming from checkpoint",
		zap.String("run_key", runKey),
		zap.Int("stages_recorded", len(s.meta.Stages)))
	return s, nil
}

// UseExisting reports whether prior-run payloads may be restored.
func (s *FileStore) UseExisting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.useExisting
}

// RunKey returns the derived checkpoint directory name.
func (s *FileStore) RunKey() string {
	return s.meta.RunKey
}

// Dir returns the per-run checkpoint directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Metadata returns a snapshot of the run index.
func (s *FileStore) Metadata() Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.meta
	snapshot.Stages = make(map[string]Record, len(s.meta.Stages))
	for k, v := range s.meta.Stages {
		snapshot.Stages[k] = v
	}
	return snapshot
}

// Start records the stage's start timestamp in memory.
func (s *FileStore) Start(stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startTimes[stage] = s.now()
}

// Get returns the persisted payload for a stage. A payload is usable when
// it was written in this run, or when it belongs to a prior run with a
// matching signature. Missing or unreadable files return nil.
func (s *FileStore) Get(stage string) []byte {
	s.mu.Lock()
	usable := s.savedInRun[stage] || s.useExisting
	s.mu.Unlock()

	if !usable {
		return nil
	}

	data, err := os.ReadFile(s.payloadPath(stage))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Failed to read stage payload",
				zap.String("stage", stage), zap.Error(err))
		}
		return nil
	}
	return data
}

// SaveCompleted persists the payload and records the stage Completed.
func (s *FileStore) SaveCompleted(stage string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var duration time.Duration
	if started, ok := s.startTimes[stage]; ok {
		duration = now.Sub(started)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode stage payload: %w", err)
	}
	if err := writeFileAtomic(s.payloadPath(stage), data); err != nil {
		return fmt.Errorf("failed to write stage payload: %w", err)
	}

	s.meta.Stages[stage] = Record{
		Status:   StatusCompleted,
		SavedAt:  now,
		Duration: duration,
	}
	s.savedInRun[stage] = true

	return s.writeMetadataLocked()
}

// SaveSkipped records the stage Skipped with zero duration.
func (s *FileStore) SaveSkipped(stage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.meta.Stages[stage] = Record{
		Status:  StatusSkipped,
		SavedAt: s.now(),
	}

	return s.writeMetadataLocked()
}

// SaveRestored stamps an existing record Restored, keeping its duration.
func (s *FileStore) SaveRestored(stage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	record := s.meta.Stages[stage]
	record.Status = StatusRestored
	record.RestoredAt = &now
	if record.SavedAt.IsZero() {
		record.SavedAt = now
	}
	s.meta.Stages[stage] = record

	return s.writeMetadataLocked()
}

func (s *FileStore) payloadPath(stage string) string {
	return filepath.Join(s.dir, stage+".json")
}

func (s *FileStore) writeMetadataLocked() error {
	s.meta.GeneratedAt = s.now()

	data, err := json.MarshalIndent(s.meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(s.dir, metadataFile), data); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

func loadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
