package app

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lueurxax/ielts-api/internal/core/errors"
	"github.com/lueurxax/ielts-api/internal/migrate/offline"
	"github.com/lueurxax/ielts-api/internal/platform/config"
	db "github.com/lueurxax/ielts-api/internal/storage"
)

const testTable = "goose_db_version"

var errStoreDown = errors.New("store down")

// fakeStore mimics the goose version table with a single applied flag.
type fakeStore struct {
	applied      bool
	appliedAt    time.Time
	extension    bool
	statusErr    error
	probeErr     error
	lastOpts     db.MigrateOptions
	migrateCalls int
	rollbacks    int
	redos        int
}

func (f *fakeStore) Migrate(_ context.Context, opts db.MigrateOptions) error {
	f.migrateCalls++
	f.lastOpts = opts
	f.applied = true
	f.extension = true
	f.appliedAt = time.Date(2025, 8, 31, 10, 2, 23, 0, time.UTC)

	return nil
}

// Rollback reverts version 1 only when it is applied and above the target.
func (f *fakeStore) Rollback(_ context.Context, opts db.MigrateOptions) error {
	f.rollbacks++
	f.lastOpts = opts

	if f.statusErr != nil {
		return f.statusErr
	}

	if f.applied && (opts.Target == db.NoTarget || opts.Target < 1) {
		f.applied = false
		f.extension = false
	}

	return nil
}

func (f *fakeStore) Redo(_ context.Context, opts db.MigrateOptions) error {
	f.redos++
	f.lastOpts = opts

	return nil
}

func (f *fakeStore) Status(_ context.Context, _ string) ([]db.MigrationStatus, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}

	return []db.MigrationStatus{{Version: 1, Applied: f.applied, AppliedAt: f.appliedAt}}, nil
}

func (f *fakeStore) Extension(_ context.Context, name string) (string, error) {
	if !f.extension {
		return "", apperrors.ErrExtensionMissing
	}

	return "0.8.0", nil
}

func (f *fakeStore) ProbeVector(_ context.Context, _ []float32) error {
	return f.probeErr
}

func newTestApp(store Store) *App {
	logger := zerolog.Nop()
	cfg := &config.Config{
		MigrationTable:  testTable,
		MigrationLockID: 77,
		MetricsJob:      "test",
	}

	return New(cfg, store, &logger)
}

func TestUp_AppliesWithConfiguredOptions(t *testing.T) {
	store := &fakeStore{}
	a := newTestApp(store)

	require.NoError(t, a.Up(context.Background(), db.NoTarget))
	require.Equal(t, 1, store.migrateCalls)
	require.Equal(t, testTable, store.lastOpts.Table)
	require.Equal(t, int64(77), store.lastOpts.LockID)
	require.Equal(t, db.NoTarget, store.lastOpts.Target)
}

func TestUp_UnknownTarget(t *testing.T) {
	store := &fakeStore{}
	a := newTestApp(store)

	err := a.Up(context.Background(), 99)
	require.ErrorIs(t, err, apperrors.ErrUnknownVersion)
	require.Zero(t, store.migrateCalls)
}

func TestDown(t *testing.T) {
	tests := []struct {
		name        string
		applied     bool
		target      int64
		wantApplied bool
	}{
		{"reverts one step", true, db.NoTarget, false},
		{"reverts to zero", true, 0, false},
		{"empty schema is a no-op", false, db.NoTarget, false},
		{"target at current is a no-op", true, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{applied: tt.applied, extension: tt.applied}
			a := newTestApp(store)

			require.NoError(t, a.Down(context.Background(), tt.target))
			// The no-op decision belongs to the store, which reads the version under its lock.
			require.Equal(t, 1, store.rollbacks)
			require.Equal(t, tt.target, store.lastOpts.Target)
			require.Equal(t, tt.wantApplied, store.applied)
		})
	}
}

func TestDown_UnknownTarget(t *testing.T) {
	store := &fakeStore{applied: true}

	err := newTestApp(store).Down(context.Background(), 42)
	require.ErrorIs(t, err, apperrors.ErrUnknownVersion)
	require.Zero(t, store.rollbacks)
}

func TestDown_StatusError(t *testing.T) {
	a := newTestApp(&fakeStore{statusErr: errStoreDown})

	err := a.Down(context.Background(), db.NoTarget)
	require.ErrorIs(t, err, errStoreDown)
	require.True(t, strings.HasPrefix(err.Error(), CommandDown+":"))
}

func TestRedo(t *testing.T) {
	store := &fakeStore{applied: true}
	a := newTestApp(store)

	require.NoError(t, a.Redo(context.Background()))
	require.Equal(t, 1, store.redos)
}

func TestStatus_Output(t *testing.T) {
	store := &fakeStore{}
	a := newTestApp(store)

	var buf bytes.Buffer
	require.NoError(t, a.Status(context.Background(), &buf))
	require.Contains(t, buf.String(), "VERSION")
	require.Contains(t, buf.String(), pendingLabel)

	require.NoError(t, a.Up(context.Background(), db.NoTarget))

	buf.Reset()
	require.NoError(t, a.Status(context.Background(), &buf))
	require.Contains(t, buf.String(), "2025-08-31T10:02:23Z")
	require.NotContains(t, buf.String(), pendingLabel)
}

func TestVersion_Output(t *testing.T) {
	a := newTestApp(&fakeStore{applied: true})

	var buf bytes.Buffer
	require.NoError(t, a.Version(context.Background(), &buf))
	require.Equal(t, "1\n", buf.String())
}

func TestVerify(t *testing.T) {
	probeFailure := errors.New("probe failed")

	tests := []struct {
		name    string
		store   *fakeStore
		wantErr error
	}{
		{"healthy", &fakeStore{applied: true, extension: true}, nil},
		{"schema behind", &fakeStore{}, apperrors.ErrSchemaOutdated},
		{"extension dropped out of band", &fakeStore{applied: true}, apperrors.ErrExtensionMissing},
		{"probe fails", &fakeStore{applied: true, extension: true, probeErr: probeFailure}, probeFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newTestApp(tt.store).Verify(context.Background())
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRenderSQL_UsesConfiguredTable(t *testing.T) {
	cfg := &config.Config{MigrationTable: "schema_versions"}

	var buf bytes.Buffer
	require.NoError(t, RenderSQL(&buf, cfg, offline.Options{Direction: offline.Up, To: offline.Latest}))
	require.Contains(t, buf.String(), `INSERT INTO "schema_versions" (version_id, is_applied) VALUES (1, true);`)
	require.Contains(t, buf.String(), "CREATE EXTENSION IF NOT EXISTS vector;")
}

func TestRenderSQL_NothingToRevert(t *testing.T) {
	cfg := &config.Config{MigrationTable: testTable}

	err := RenderSQL(&bytes.Buffer{}, cfg, offline.Options{Direction: offline.Down, From: 0, To: 0})
	require.ErrorIs(t, err, apperrors.ErrNoMigrations)
}
