package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testTime = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

func testSignature() Signature {
	return Signature{
		InstanceURL:  "https://gitlab.example.com",
		LookbackDays: 90,
		SecurityData: true,
		AllReports:   false,
	}
}

func newTestStore(t *testing.T, dir string, sig Signature, forceRestart bool) *FileStore {
	t.Helper()
	s, err := newFileStore(dir, sig, forceRestart, zap.NewNop(), func() time.Time { return testTime })
	require.NoError(t, err)
	return s
}

func TestSignature_RunKey(t *testing.T) {
	t.Parallel()

	key := testSignature().RunKey(testTime)
	assert.Equal(t, "2025-06-01-gitlab-example-com-d90-sec1-all0", key)
}

func TestSignature_Equal(t *testing.T) {
	t.Parallel()

	a := testSignature()
	b := testSignature()
	assert.True(t, a.Equal(b))

	b.LookbackDays = 30
	assert.False(t, a.Equal(b))
}

func TestFileStore_SaveThenGetSameRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := newTestStore(t, dir, testSignature(), false)

	// A fresh run restores nothing.
	assert.False(t, s.UseExisting())
	assert.Nil(t, s.Get("projects"))

	s.Start("projects")
	require.NoError(t, s.SaveCompleted("projects", []string{"a", "b"}))

	// The payload written this run is immediately readable even though
	// UseExisting is false.
	data := s.Get("projects")
	require.NotNil(t, data)

	var payload []string
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.Equal(t, []string{"a", "b"}, payload)

	// Stages not saved this run stay unreadable.
	assert.Nil(t, s.Get("cost"))
}

func TestFileStore_ResumesMatchingSignature(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := newTestStore(t, dir, testSignature(), false)
	require.NoError(t, first.SaveCompleted("projects", []int{1, 2, 3}))

	second := newTestStore(t, dir, testSignature(), false)
	assert.True(t, second.UseExisting())

	data := second.Get("projects")
	require.NotNil(t, data)

	rec, ok := second.Metadata().Stages["projects"]
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, rec.Status)
}

func TestFileStore_SignatureMismatchStartsFresh(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := newTestStore(t, dir, testSignature(), false)
	require.NoError(t, first.SaveCompleted("projects", []int{1}))

	changed := testSignature()
	changed.SecurityData = false

	// A changed signature lands in a different run directory, so nothing
	// from the first run is visible.
	second := newTestStore(t, dir, changed, false)
	assert.False(t, second.UseExisting())
	assert.Nil(t, second.Get("projects"))
	assert.NotEqual(t, first.RunKey(), second.RunKey())
}

func TestFileStore_ForceRestartIgnoresCheckpoints(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := newTestStore(t, dir, testSignature(), false)
	require.NoError(t, first.SaveCompleted("projects", []int{1}))

	second := newTestStore(t, dir, testSignature(), true)
	assert.False(t, second.UseExisting())
	assert.Nil(t, second.Get("projects"))
}

func TestFileStore_CorruptMetadataStartsFresh(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := newTestStore(t, dir, testSignature(), false)
	require.NoError(t, first.SaveCompleted("projects", []int{1}))

	metaPath := filepath.Join(first.Dir(), "metadata.json")
	require.NoError(t, os.WriteFile(metaPath, []byte("{not json"), 0o644))

	second := newTestStore(t, dir, testSignature(), false)
	assert.False(t, second.UseExisting())
	assert.Nil(t, second.Get("projects"))
}

func TestFileStore_SaveSkippedWritesNoPayload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := newTestStore(t, dir, testSignature(), false)

	require.NoError(t, s.SaveSkipped("security_scans"))

	rec, ok := s.Metadata().Stages["security_scans"]
	require.True(t, ok)
	assert.Equal(t, StatusSkipped, rec.Status)
	assert.Zero(t, rec.Duration)

	_, err := os.Stat(filepath.Join(s.Dir(), "security_scans.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestFileStore_SaveRestoredKeepsDuration(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	first, err := newFileStore(dir, testSignature(), false, zap.NewNop(), makeTicker(testTime, 5*time.Second))
	require.NoError(t, err)
	first.Start("projects")
	require.NoError(t, first.SaveCompleted("projects", []int{1}))

	recorded := first.Metadata().Stages["projects"].Duration
	require.NotZero(t, recorded)

	second := newTestStore(t, dir, testSignature(), false)
	require.NoError(t, second.SaveRestored("projects"))

	rec := second.Metadata().Stages["projects"]
	assert.Equal(t, StatusRestored, rec.Status)
	assert.Equal(t, recorded, rec.Duration)
	require.NotNil(t, rec.RestoredAt)
}

func TestFileStore_MetadataRewrittenAfterEachSave(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := newTestStore(t, dir, testSignature(), false)

	require.NoError(t, s.SaveCompleted("projects", []int{1}))
	require.NoError(t, s.SaveSkipped("security_scans"))

	meta, err := loadMetadata(filepath.Join(s.Dir(), "metadata.json"))
	require.NoError(t, err)
	assert.Len(t, meta.Stages, 2)
	assert.Equal(t, s.RunKey(), meta.RunKey)

	// No temp file left behind by the atomic replace.
	_, err = os.Stat(filepath.Join(s.Dir(), "metadata.json.tmp"))
	assert.True(t, os.IsNotExist(err))
}

// makeTicker returns a clock that advances by step on every read.
func makeTicker(start time.Time, step time.Duration) func() time.Time {
	current := start
	return func() time.Time {
		now := current
		current = current.Add(step)
		return now
	}
}
