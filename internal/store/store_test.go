package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cnabd/internal/config"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	cfg := config.DatabaseConfig{
		URL:             "sqlite://" + filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}
	db, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	return New(db)
}

func testRoutine(t *testing.T, s *Store) *Routine {
	t.Helper()
	r := &Routine{
		Name:       "remessas",
		Company:    "FLOW INVEST",
		FolderPath: "/data/remessas",
		Frequency:  FrequencyHourly,
		Status:     RoutineActive,
	}
	require.NoError(t, s.CreateRoutine(r))
	require.NotEmpty(t, r.ID)
	return r
}

func TestRoutineLifecycle(t *testing.T) {
	s := testStore(t)
	r := testRoutine(t, s)

	got, err := s.GetRoutine(r.ID)
	require.NoError(t, err)
	assert.Equal(t, "remessas", got.Name)
	assert.Equal(t, RoutineActive, got.Status)
	assert.Nil(t, got.NextRun)

	require.NoError(t, s.SetRoutineStatus(r.ID, RoutinePaused))
	got, err = s.GetRoutine(r.ID)
	require.NoError(t, err)
	assert.Equal(t, RoutinePaused, got.Status)

	active, err := s.ListActiveRoutines()
	require.NoError(t, err)
	assert.Empty(t, active)

	now := time.Now()
	require.NoError(t, s.UpdateRoutineRun(r.ID, now, now.Add(time.Hour), RoutineActive))
	got, err = s.GetRoutine(r.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextRun)
	assert.WithinDuration(t, now.Add(time.Hour), *got.NextRun, time.Second)
}

func TestRoutineNotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.GetRoutine("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.SetRoutineStatus("missing", RoutineError), ErrNotFound)
	assert.ErrorIs(t, s.DeleteRoutine("missing"), ErrNotFound)
}

func TestDeleteRoutine_CascadesTrackedFiles(t *testing.T) {
	s := testStore(t)
	r := testRoutine(t, s)

	_, err := s.RegisterCandidate(r.ID, "A.RET", "/data/remessas/A.RET", "abc")
	require.NoError(t, err)

	require.NoError(t, s.DeleteRoutine(r.ID))

	files, err := s.ListTrackedFiles(r.ID)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDedupTriple(t *testing.T) {
	s := testStore(t)
	r := testRoutine(t, s)

	path := "/data/remessas/A.RET"
	imported, err := s.IsAlreadyImported(r.ID, path, "digest-1")
	require.NoError(t, err)
	assert.False(t, imported)

	id, err := s.RegisterCandidate(r.ID, "A.RET", path, "digest-1")
	require.NoError(t, err)

	// Pending rows do not count as imported
	imported, err = s.IsAlreadyImported(r.ID, path, "digest-1")
	require.NoError(t, err)
	assert.False(t, imported)

	ref := "123456"
	require.NoError(t, s.TransitionTracked(id, FileCompleted, &ref, nil))

	imported, err = s.IsAlreadyImported(r.ID, path, "digest-1")
	require.NoError(t, err)
	assert.True(t, imported)

	// Same path with changed content is a new candidate
	imported, err = s.IsAlreadyImported(r.ID, path, "digest-2")
	require.NoError(t, err)
	assert.False(t, imported)

	f, err := s.GetTrackedFile(id)
	require.NoError(t, err)
	require.NotNil(t, f.ReferenceID)
	assert.Equal(t, "123456", *f.ReferenceID)
	assert.NotNil(t, f.ImportedAt)
}

func TestTransitionTracked_Error(t *testing.T) {
	s := testStore(t)
	r := testRoutine(t, s)

	id, err := s.RegisterCandidate(r.ID, "B.RET", "/data/remessas/B.RET", "d")
	require.NoError(t, err)

	detail := "authentication rejected"
	require.NoError(t, s.TransitionTracked(id, FileError, nil, &detail))

	f, err := s.GetTrackedFile(id)
	require.NoError(t, err)
	assert.Equal(t, FileError, f.Status)
	require.NotNil(t, f.ErrorDetail)
	assert.Equal(t, detail, *f.ErrorDetail)
	assert.Nil(t, f.ImportedAt)
}

func TestImportFileLifecycle(t *testing.T) {
	s := testStore(t)

	f := &ImportFile{FileName: "manual.RET", StoragePath: "/uploads/manual.RET"}
	require.NoError(t, s.CreateImportFile(f))
	require.NotEmpty(t, f.ID)
	assert.False(t, f.UploadedAt.IsZero())

	ref := "987"
	require.NoError(t, s.TransitionImportFile(f.ID, FileCompleted, &ref, nil))

	got, err := s.GetImportFile(f.ID)
	require.NoError(t, err)
	assert.Equal(t, FileCompleted, got.Status)
	require.NotNil(t, got.ReferenceID)
	assert.Equal(t, "987", *got.ReferenceID)
	assert.NotNil(t, got.ProcessedAt)
}

func TestLogsAndSnapshots(t *testing.T) {
	s := testStore(t)
	r := testRoutine(t, s)

	id, err := s.RegisterCandidate(r.ID, "C.RET", "/data/remessas/C.RET", "d")
	require.NoError(t, err)

	require.NoError(t, s.AppendLog(id, LogInfo, "starting import"))
	require.NoError(t, s.AppendLog(id, LogError, "authentication rejected"))

	logs, err := s.ListLogs(id)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "starting import", logs[0].Message)
	assert.Equal(t, LogError, logs[1].Level)

	require.NoError(t, s.AddSnapshot(id, 2, "after_login", "/shots/2.png"))
	require.NoError(t, s.AddSnapshot(id, 1, "login_page", "/shots/1.png"))

	snaps, err := s.ListSnapshots(id)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, 1, snaps[0].Step)
	assert.Equal(t, "login_page", snaps[0].Label)
}
