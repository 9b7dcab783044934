package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/neobin-core/internal/infrastructure/database"
	"github.com/nerrad567/neobin-core/internal/lid"
	"github.com/nerrad567/neobin-core/migrations"
)

func setupRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

// fixedClock returns a settable clock for the repository.
func fixedClock(start time.Time) (func() time.Time, func(time.Duration)) {
	now := start
	return func() time.Time { return now }, func(d time.Duration) { now = now.Add(d) }
}

func TestRecordAndGetHistory(t *testing.T) {
	repo := setupRepo(t)
	now, advance := fixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo.now = now
	ctx := context.Background()

	transitions := []lid.Transition{
		{Command: "OPEN", Angle: 180, Opened: true, Status: true, Origin: lid.OriginCommand},
		{Command: "CLOSE", Angle: 0, Opened: false, Status: true, Origin: lid.OriginSensor},
		{Command: "STATUS", Angle: 0, Opened: false, Status: false},
	}
	for _, tr := range transitions {
		if err := repo.RecordTransition(ctx, tr); err != nil {
			t.Fatalf("RecordTransition(%s) error = %v", tr.Command, err)
		}
		advance(time.Second)
	}

	got, err := repo.GetHistory(ctx, 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("GetHistory() returned %d entries, want 3", len(got))
	}

	if got[0].Command != "STATUS" || got[0].Status || got[0].Source != lid.OriginCommand {
		t.Errorf("newest = %+v, want STATUS off from command", got[0])
	}
	if got[1].Command != "CLOSE" || got[1].Source != lid.OriginSensor {
		t.Errorf("middle = %+v, want CLOSE from sensor", got[1])
	}
	if got[2].Angle != 180 || !got[2].Opened {
		t.Errorf("oldest = %+v, want opened at 180", got[2])
	}
	if want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC); !got[2].CreatedAt.Equal(want) {
		t.Errorf("oldest CreatedAt = %v, want %v", got[2].CreatedAt, want)
	}
}

func TestGetHistory_Limit(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := repo.RecordTransition(ctx, lid.Transition{Command: "ANGLE", Angle: i * 10, Status: true}); err != nil {
			t.Fatalf("RecordTransition() error = %v", err)
		}
	}

	got, err := repo.GetHistory(ctx, 2)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(got) != 2 || got[0].Angle != 40 {
		t.Errorf("GetHistory(2) = %+v, want the two newest", got)
	}

	all, err := repo.GetHistory(ctx, 0)
	if err != nil {
		t.Fatalf("GetHistory(0) error = %v", err)
	}
	if len(all) != 5 {
		t.Errorf("GetHistory(0) returned %d entries, want 5", len(all))
	}
}

func TestPrune(t *testing.T) {
	repo := setupRepo(t)
	now, advance := fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	repo.now = now
	ctx := context.Background()

	if err := repo.RecordTransition(ctx, lid.Transition{Command: "OPEN", Angle: 180}); err != nil {
		t.Fatal(err)
	}
	advance(40 * 24 * time.Hour)
	if err := repo.RecordTransition(ctx, lid.Transition{Command: "CLOSE"}); err != nil {
		t.Fatal(err)
	}

	n, err := repo.Prune(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Prune() deleted %d rows, want 1", n)
	}

	left, err := repo.GetHistory(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 || left[0].Command != "CLOSE" {
		t.Errorf("remaining = %+v, want only CLOSE", left)
	}

	if _, err := repo.Prune(ctx, 0); !errors.Is(err, ErrInvalidRetention) {
		t.Errorf("Prune(0) error = %v, want ErrInvalidRetention", err)
	}
}

func TestPruner_RunsOnStart(t *testing.T) {
	repo := setupRepo(t)
	now, advance := fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	repo.now = now

	if err := repo.RecordTransition(context.Background(), lid.Transition{Command: "OPEN"}); err != nil {
		t.Fatal(err)
	}
	advance(48 * time.Hour)

	p := NewPruner(repo, 24*time.Hour, time.Hour)
	p.Start(context.Background())
	p.Stop()
	p.Stop()

	left, err := repo.GetHistory(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Errorf("remaining = %d entries, want 0", len(left))
	}
}

func TestRecordTransition_ImplementsRecorder(t *testing.T) {
	var _ lid.Recorder = (*SQLiteRepository)(nil)
}
