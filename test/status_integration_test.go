//go:build integration

package integration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ogurasousui/staff-status-engine/internal/adapters/directory"
	repo "github.com/ogurasousui/staff-status-engine/internal/adapters/repository/postgres"
	"github.com/ogurasousui/staff-status-engine/internal/core/division"
	"github.com/ogurasousui/staff-status-engine/internal/core/employee"
	"github.com/ogurasousui/staff-status-engine/internal/core/status"
	"github.com/ogurasousui/staff-status-engine/internal/platform/config"
	pg "github.com/ogurasousui/staff-status-engine/internal/platform/db/postgres"
)

const (
	migrationsDir = "../assets/migrations"
	seedsDir      = "../assets/seeds"
)

type stubClock struct {
	now time.Time
}

func (s stubClock) Now() time.Time {
	return s.now
}

func day(m time.Month, d int) time.Time {
	return time.Date(2025, m, d, 0, 0, 0, 0, time.UTC)
}

func TestStatusLifecycleIntegration(t *testing.T) {
	cfg, err := config.Load(configPathFromEnv())
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if err := resetMigrations(cfg.Database.DSN(), migrationsDir); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	ctx := context.Background()
	pool, err := pg.NewPool(ctx, cfg.Database)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	if err := applySeeds(ctx, pool, seedsDir); err != nil {
		t.Fatalf("failed to apply seeds: %v", err)
	}

	clock := stubClock{now: time.Date(2025, 3, 10, 1, 0, 0, 0, time.UTC)}
	tm := pg.NewTransactionManager(pool)
	divisions := division.NewService(repo.NewDivisionRepository(pool), clock, tm)
	employees := employee.NewService(repo.NewEmployeeRepository(pool), clock, tm)
	engine := status.NewService(
		repo.NewStatusRepository(pool),
		repo.NewHistoryRepository(pool),
		directory.NewEmployees(employees),
		status.WithDivisionDirectory(directory.NewDivisions(divisions)),
		status.WithTransactionManager(tm),
		status.WithClock(clock),
	)
	employees.SetDismissalHandler(directory.NewDismissals(engine))

	hq, err := divisions.GetDivision(ctx, "00000000-0000-0000-0000-000000000001")
	if err != nil {
		t.Fatalf("seeded division missing: %v", err)
	}

	hired := day(time.April, 1).AddDate(-3, 0, 0)
	emp, err := employees.CreateEmployee(ctx, employee.CreateEmployeeInput{
		DivisionID:   hq.ID,
		EmployeeCode: "it-001",
		LastName:     "Tanaka",
		FirstName:    "Taro",
		HiredAt:      &hired,
	})
	if err != nil {
		t.Fatalf("CreateEmployee error: %v", err)
	}

	end := day(time.March, 14)
	vacation, err := engine.CreateStatus(ctx, status.CreateStatusInput{
		EmployeeID: emp.ID,
		Type:       status.TypeVacation,
		StartDate:  day(time.March, 12),
		EndDate:    &end,
	})
	if err != nil {
		t.Fatalf("CreateStatus error: %v", err)
	}
	if vacation.State != status.StatePlanned {
		t.Fatalf("expected planned vacation, got %s", vacation.State)
	}

	overlapEnd := day(time.March, 13)
	if _, err := engine.CreateStatus(ctx, status.CreateStatusInput{
		EmployeeID: emp.ID,
		Type:       status.TypeSickLeave,
		StartDate:  day(time.March, 13),
		EndDate:    &overlapEnd,
	}); !errors.Is(err, status.ErrOverlapConflict) {
		t.Fatalf("expected ErrOverlapConflict, got %v", err)
	}

	applied, err := engine.ApplyPlannedStatuses(ctx, day(time.March, 12))
	if err != nil {
		t.Fatalf("ApplyPlannedStatuses error: %v", err)
	}
	if len(applied.Affected) != 1 || applied.Affected[0].ID != vacation.ID {
		t.Fatalf("expected vacation to be applied, got %+v", applied.Affected)
	}

	current, err := engine.CurrentStatus(ctx, emp.ID, day(time.March, 13))
	if err != nil {
		t.Fatalf("CurrentStatus error: %v", err)
	}
	if current != status.TypeVacation {
		t.Fatalf("expected vacation on Mar 13, got %s", current)
	}

	completed, err := engine.CompleteExpiredStatuses(ctx, day(time.March, 15))
	if err != nil {
		t.Fatalf("CompleteExpiredStatuses error: %v", err)
	}
	if len(completed.Affected) != 1 {
		t.Fatalf("expected one completed record, got %d", len(completed.Affected))
	}

	changes, err := engine.ListChanges(ctx, vacation.ID)
	if err != nil {
		t.Fatalf("ListChanges error: %v", err)
	}
	if len(changes) < 3 {
		t.Fatalf("expected created, applied and completed history entries, got %d", len(changes))
	}

	if _, err := pool.Exec(ctx, `DELETE FROM status_change_history WHERE status_id = $1`, vacation.ID); err == nil {
		t.Fatalf("expected history to be append-only")
	}
}

func resetMigrations(dsn, dir string) error {
	m, err := migrate.New("file://"+dir, dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func applySeeds(ctx context.Context, pool *pgxpool.Pool, dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, string(b)); err != nil {
			return err
		}
	}
	return nil
}

func configPathFromEnv() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "../assets/local.yaml"
}
