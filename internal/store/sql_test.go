package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ashureev/inspectbot/internal/domain"
)

var testQuestions = []string{"q1", "q2", "q3", "q4", "q5"}

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "audit.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateInspectionSeedsItems(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateInspection(ctx, "42", testQuestions)
	if err != nil {
		t.Fatalf("CreateInspection failed: %v", err)
	}

	items, err := s.GetItems(ctx, id)
	if err != nil {
		t.Fatalf("GetItems failed: %v", err)
	}
	if len(items) != len(testQuestions) {
		t.Fatalf("Expected %d items, got %d", len(testQuestions), len(items))
	}
	for i, item := range items {
		if item.Index != i {
			t.Errorf("Item %d has index %d", i, item.Index)
		}
		if item.Question != testQuestions[i] {
			t.Errorf("Item %d question = %q, want %q", i, item.Question, testQuestions[i])
		}
		if item.Answer != nil || item.Comment != nil || item.PhotoRef != nil {
			t.Errorf("Item %d should have no answer, comment or photo: %+v", i, item)
		}
	}
}

func TestCreateInspectionRollsBackOnItemFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.db.ExecContext(ctx, `
		CREATE TRIGGER fail_third_item BEFORE INSERT ON items
		WHEN NEW.idx = 2
		BEGIN SELECT RAISE(ABORT, 'boom'); END`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	if _, err := s.CreateInspection(ctx, "42", testQuestions); err == nil {
		t.Fatal("Expected CreateInspection to fail")
	}

	if _, ok, err := s.LatestInspectionFor(ctx, "42"); err != nil || ok {
		t.Errorf("Expected no visible inspection, got ok=%v err=%v", ok, err)
	}
	for _, table := range []string{"inspections", "items"} {
		var n int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if n != 0 {
			t.Errorf("Expected no rows in %s after rollback, got %d", table, n)
		}
	}
}

func TestGetItemsUnknownInspection(t *testing.T) {
	s := newTestStore(t)

	items, err := s.GetItems(context.Background(), 999)
	if err != nil {
		t.Fatalf("GetItems failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Expected no items, got %d", len(items))
	}
}

func TestUpdateItemIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateInspection(ctx, "42", testQuestions)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateItem(ctx, id, 1, domain.SetComment("crack near corner")); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateItem(ctx, id, 2, domain.SetAnswer(domain.AnswerNo)); err != nil {
		t.Fatalf("UpdateItem failed: %v", err)
	}

	items, err := s.GetItems(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	for i, item := range items {
		switch i {
		case 1:
			if item.Answer != nil || item.Comment == nil || *item.Comment != "crack near corner" {
				t.Errorf("Item 1 changed unexpectedly: %+v", item)
			}
		case 2:
			if item.Answer == nil || *item.Answer != domain.AnswerNo || item.Comment != nil {
				t.Errorf("Item 2 not updated correctly: %+v", item)
			}
		default:
			if item.Answer != nil || item.Comment != nil {
				t.Errorf("Item %d changed unexpectedly: %+v", i, item)
			}
		}
	}
}

func TestUpdateItemMissingRowIsSilent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateInspection(ctx, "42", testQuestions)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateItem(ctx, id, 99, domain.SetAnswer(domain.AnswerYes)); err != nil {
		t.Errorf("Expected silent no-op, got %v", err)
	}
	if err := s.UpdateItem(ctx, id, 0, domain.ItemUpdate{}); err != nil {
		t.Errorf("Expected empty update to be a no-op, got %v", err)
	}
}

func TestUpdateItemPhotoRef(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateInspection(ctx, "42", testQuestions)
	if err != nil {
		t.Fatal(err)
	}
	photo := "data/photos/1_0.jpg"
	if err := s.UpdateItem(ctx, id, 0, domain.ItemUpdate{PhotoRef: &photo}); err != nil {
		t.Fatal(err)
	}
	items, err := s.GetItems(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if items[0].PhotoRef == nil || *items[0].PhotoRef != photo {
		t.Errorf("Expected photo ref %q, got %+v", photo, items[0].PhotoRef)
	}
}

func TestIsComplete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateInspection(ctx, "42", testQuestions)
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.IsComplete(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Complete || got.FirstMissing != 1 {
		t.Errorf("Expected first missing 1, got %+v", got)
	}

	for _, i := range []int{0, 1, 3} {
		if err := s.UpdateItem(ctx, id, i, domain.SetAnswer(domain.AnswerYes)); err != nil {
			t.Fatal(err)
		}
	}
	got, err = s.IsComplete(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Complete || got.FirstMissing != 3 {
		t.Errorf("Expected first missing 3, got %+v", got)
	}

	for _, i := range []int{2, 4} {
		if err := s.UpdateItem(ctx, id, i, domain.SetAnswer(domain.AnswerNo)); err != nil {
			t.Fatal(err)
		}
	}
	got, err = s.IsComplete(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Complete {
		t.Errorf("Expected complete, got %+v", got)
	}
}

func TestLatestInspectionFor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.LatestInspectionFor(ctx, "42"); err != nil || ok {
		t.Fatalf("Expected no inspection, got ok=%v err=%v", ok, err)
	}

	first, err := s.CreateInspection(ctx, "42", testQuestions)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.CreateInspection(ctx, "42", testQuestions)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateInspection(ctx, "7", testQuestions); err != nil {
		t.Fatal(err)
	}

	latest, ok, err := s.LatestInspectionFor(ctx, "42")
	if err != nil || !ok {
		t.Fatalf("LatestInspectionFor failed: ok=%v err=%v", ok, err)
	}
	if latest != second || latest == first {
		t.Errorf("Expected latest %d, got %d", second, latest)
	}
}

func TestGetAndListInspections(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetInspection(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := s.CreateInspection(ctx, "42", testQuestions)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	ins, err := s.GetInspection(ctx, ids[0])
	if err != nil {
		t.Fatalf("GetInspection failed: %v", err)
	}
	if ins.SessionID != "42" || ins.CreatedAt.IsZero() {
		t.Errorf("Unexpected inspection: %+v", ins)
	}

	list, err := s.ListInspections(ctx, "42", 2)
	if err != nil {
		t.Fatalf("ListInspections failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != ids[2] || list[1].ID != ids[1] {
		t.Errorf("Unexpected list order: %+v", list)
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{dialect: DialectPostgres}
	got := pg.rebind("UPDATE items SET answer = ? WHERE inspection_id = ? AND idx = ?")
	want := "UPDATE items SET answer = $1 WHERE inspection_id = $2 AND idx = $3"
	if got != want {
		t.Errorf("rebind = %q, want %q", got, want)
	}

	lite := &SQLStore{dialect: DialectSQLite}
	if q := lite.rebind("SELECT ?"); q != "SELECT ?" {
		t.Errorf("sqlite rebind changed query: %q", q)
	}
}

func TestNewUnsupportedDriver(t *testing.T) {
	if _, err := New("mysql", "", ""); err == nil {
		t.Error("Expected error for unsupported driver")
	}
}
