package postgres

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestLoadMigrationsFromFS_Success(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0001_init.up.sql": {
			Data: []byte("CREATE TABLE test_a (id INT);"),
		},
		"sql/migrations/0001_init.down.sql": {
			Data: []byte("DROP TABLE IF EXISTS test_a;"),
		},
		"sql/migrations/0002_more.up.sql": {
			Data: []byte("CREATE TABLE test_b (id INT);"),
		},
		"sql/migrations/0002_more.down.sql": {
			Data: []byte("DROP TABLE IF EXISTS test_b;"),
		},
	}

	migrations, err := loadMigrationsFromFS(fsys)
	if err != nil {
		t.Fatalf("loadMigrationsFromFS failed: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}

	if migrations[0].Version != 1 || migrations[0].Name != "init" {
		t.Fatalf("unexpected first migration: %+v", migrations[0])
	}
	if migrations[1].Version != 2 || migrations[1].Name != "more" {
		t.Fatalf("unexpected second migration: %+v", migrations[1])
	}
}

func TestLoadMigrationsFromFS_MissingDown(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0001_init.up.sql": {
			Data: []byte("CREATE TABLE test_a (id INT);"),
		},
	}

	_, err := loadMigrationsFromFS(fsys)
	if err == nil {
		t.Fatal("expected error for missing down migration")
	}
	if !strings.Contains(err.Error(), "both up and down") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadMigrationsFromFS_InvalidFilename(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/not_a_migration.sql": {
			Data: []byte("SELECT 1;"),
		},
	}

	_, err := loadMigrationsFromFS(fsys)
	if err == nil {
		t.Fatal("expected error for invalid migration file name")
	}
}

func TestLoadMigrationsFromFS_EmptyFile(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0001_init.up.sql": {
			Data: []byte("   \n"),
		},
		"sql/migrations/0001_init.down.sql": {
			Data: []byte("DROP TABLE IF EXISTS test;"),
		},
	}

	_, err := loadMigrationsFromFS(fsys)
	if err == nil {
		t.Fatal("expected error for empty migration file body")
	}
}

func TestLoadMigrationsFromFS_Embedded(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrationsFromFS(migrationsFS)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	require.Equal(t, "create_cart_sessions", migrations[0].Name)
	require.Equal(t, "create_outbox_messages", migrations[1].Name)
	require.Contains(t, migrations[0].UpSQL, "cart_sessions")
}

func TestPlanMigrations(t *testing.T) {
	t.Parallel()

	all := []migration{
		{Version: 1, Name: "one"},
		{Version: 2, Name: "two"},
		{Version: 3, Name: "three"},
	}
	versions := func(plan []migration) []int64 {
		out := make([]int64, 0, len(plan))
		for _, m := range plan {
			out = append(out, m.Version)
		}
		return out
	}

	cases := []struct {
		name      string
		applied   []int64
		direction migrationDirection
		steps     int
		want      []int64
	}{
		{name: "up all from scratch", direction: migrationUp, want: []int64{1, 2, 3}},
		{name: "up skips applied", applied: []int64{1}, direction: migrationUp, want: []int64{2, 3}},
		{name: "up limited", applied: []int64{1}, direction: migrationUp, steps: 1, want: []int64{2}},
		{name: "up nothing to do", applied: []int64{3, 1, 2}, direction: migrationUp, want: []int64{}},
		{name: "down newest first", applied: []int64{1, 3, 2}, direction: migrationDown, steps: 2, want: []int64{3, 2}},
		{name: "down on empty", direction: migrationDown, steps: 1, want: []int64{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := planMigrations(all, tc.applied, tc.direction, tc.steps)
			require.NoError(t, err)
			require.Equal(t, tc.want, versions(plan))
		})
	}
}

func TestPlanMigrations_Errors(t *testing.T) {
	t.Parallel()

	all := []migration{{Version: 1, Name: "one"}}

	_, err := planMigrations(all, []int64{1, 7}, migrationDown, 1)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "unknown migration version 7"))

	_, err = planMigrations(all, nil, migrationDirection("sideways"), 0)
	require.Error(t, err)
}
