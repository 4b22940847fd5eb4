package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lanehq/possync/internal/entity"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	s, err := Open(conn)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func serverRec(id, title string) Record {
	return Record{
		ID:        id,
		UpdatedAt: time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC),
		Data:      json.RawMessage(`{"title":"` + title + `"}`),
	}
}

func TestBulkUpsert_InsertAndCount(t *testing.T) {
	repo := setupStore(t).Repo(entity.Products)
	ctx := context.Background()

	err := repo.BulkUpsert(ctx, []Record{serverRec("p1", "a"), serverRec("p2", "b")})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	n, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("count: got %d, want 2", n)
	}
}

func TestBulkUpsert_Idempotent(t *testing.T) {
	repo := setupStore(t).Repo(entity.Products)
	ctx := context.Background()
	recs := []Record{serverRec("p1", "a"), serverRec("p2", "b")}

	if err := repo.BulkUpsert(ctx, recs); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := repo.BulkUpsert(ctx, recs); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	n, _ := repo.Count(ctx)
	if n != 2 {
		t.Fatalf("count after duplicate upsert: got %d, want 2", n)
	}

	got, err := repo.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.Data) != `{"title":"a"}` {
		t.Fatalf("data: got %s", got.Data)
	}
}

func TestBulkUpsert_ReplacesByID(t *testing.T) {
	repo := setupStore(t).Repo(entity.Products)
	ctx := context.Background()

	if err := repo.BulkUpsert(ctx, []Record{serverRec("p1", "old")}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	updated := serverRec("p1", "new")
	updated.UpdatedAt = updated.UpdatedAt.Add(time.Hour)
	if err := repo.BulkUpsert(ctx, []Record{updated}); err != nil {
		t.Fatalf("upsert update: %v", err)
	}

	got, _ := repo.Get(ctx, "p1")
	if string(got.Data) != `{"title":"new"}` {
		t.Fatalf("data not replaced: got %s", got.Data)
	}
	if got.Origin != OriginServer {
		t.Fatalf("origin: got %q", got.Origin)
	}
}

func TestBulkUpsert_PreservesDirtyLocalEdit(t *testing.T) {
	repo := setupStore(t).Repo(entity.Customers)
	ctx := context.Background()

	local := Record{ID: "c1", Data: json.RawMessage(`{"name":"edited on device"}`)}
	if err := repo.SaveLocal(ctx, local); err != nil {
		t.Fatalf("save local: %v", err)
	}

	if err := repo.BulkUpsert(ctx, []Record{serverRec("c1", "server copy")}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, _ := repo.Get(ctx, "c1")
	if string(got.Data) != `{"name":"edited on device"}` {
		t.Fatalf("local edit clobbered: got %s", got.Data)
	}
	if got.Origin != OriginLocal || !got.Dirty {
		t.Fatalf("provenance lost: origin=%q dirty=%v", got.Origin, got.Dirty)
	}
}

func TestBulkUpsert_OverwritesSyncedLocalRow(t *testing.T) {
	repo := setupStore(t).Repo(entity.Customers)
	ctx := context.Background()

	if err := repo.SaveLocal(ctx, Record{ID: "c1", Data: json.RawMessage(`{"name":"local"}`)}); err != nil {
		t.Fatalf("save local: %v", err)
	}
	if err := repo.MarkSynced(ctx, []string{"c1"}); err != nil {
		t.Fatalf("mark synced: %v", err)
	}

	// Once pushed, the row is clean and the server copy wins.
	if err := repo.BulkUpsert(ctx, []Record{serverRec("c1", "server")}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, _ := repo.Get(ctx, "c1")
	if string(got.Data) != `{"title":"server"}` {
		t.Fatalf("clean local row should be replaced: got %s", got.Data)
	}
}

func TestFindDirtyAndMarkSynced(t *testing.T) {
	repo := setupStore(t).Repo(entity.Orders)
	ctx := context.Background()

	for _, id := range []string{"o1", "o2"} {
		if err := repo.SaveLocal(ctx, Record{ID: id, Data: json.RawMessage(`{}`)}); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	dirty, err := repo.FindDirty(ctx)
	if err != nil {
		t.Fatalf("find dirty: %v", err)
	}
	if len(dirty) != 2 {
		t.Fatalf("dirty: got %d, want 2", len(dirty))
	}

	if err := repo.MarkSynced(ctx, []string{"o1"}); err != nil {
		t.Fatalf("mark synced: %v", err)
	}

	dirty, err = repo.FindDirty(ctx)
	if err != nil {
		t.Fatalf("find dirty after mark: %v", err)
	}
	if len(dirty) != 1 || dirty[0].ID != "o2" {
		t.Fatalf("dirty after mark: got %v", dirty)
	}

	n, err := repo.CountDirty(ctx)
	if err != nil {
		t.Fatalf("count dirty: %v", err)
	}
	if n != 1 {
		t.Fatalf("count dirty: got %d, want 1", n)
	}
}

func TestFindModifiedSince(t *testing.T) {
	repo := setupStore(t).Repo(entity.Products)
	ctx := context.Background()

	old := serverRec("p1", "old")
	old.UpdatedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := serverRec("p2", "recent")
	recent.UpdatedAt = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := repo.BulkUpsert(ctx, []Record{old, recent}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := repo.FindModifiedSince(ctx, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("find modified: %v", err)
	}
	if len(got) != 1 || got[0].ID != "p2" {
		t.Fatalf("modified since: got %v", got)
	}
}

func TestFindModifiedSince_SubsecondPrecision(t *testing.T) {
	repo := setupStore(t).Repo(entity.Orders)
	ctx := context.Background()
	base := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)

	// Fractional seconds of differing width must still compare by instant,
	// not by their rendered form (".15" sorts before ".1" as text).
	early := serverRec("o1", "early")
	early.UpdatedAt = base.Add(100 * time.Millisecond)
	late := serverRec("o2", "late")
	late.UpdatedAt = base.Add(150 * time.Millisecond)
	if err := repo.BulkUpsert(ctx, []Record{early, late}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := repo.FindModifiedSince(ctx, base.Add(100*time.Millisecond))
	if err != nil {
		t.Fatalf("find modified: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("modified since: got %d rows, want 2", len(got))
	}
	if got[0].ID != "o1" || got[1].ID != "o2" {
		t.Fatalf("order: got [%s %s], want [o1 o2]", got[0].ID, got[1].ID)
	}
	if !got[1].UpdatedAt.Equal(late.UpdatedAt) {
		t.Fatalf("updated_at round-trip: got %v, want %v", got[1].UpdatedAt, late.UpdatedAt)
	}
}

func TestFindDirty_OrdersBySubsecondTimestamp(t *testing.T) {
	repo := setupStore(t).Repo(entity.Customers)
	ctx := context.Background()
	base := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)

	newer := Record{ID: "c2", Data: json.RawMessage(`{}`), UpdatedAt: base.Add(150 * time.Millisecond)}
	older := Record{ID: "c1", Data: json.RawMessage(`{}`), UpdatedAt: base.Add(100 * time.Millisecond)}
	for _, rec := range []Record{newer, older} {
		if err := repo.SaveLocal(ctx, rec); err != nil {
			t.Fatalf("save %s: %v", rec.ID, err)
		}
	}

	dirty, err := repo.FindDirty(ctx)
	if err != nil {
		t.Fatalf("find dirty: %v", err)
	}
	if len(dirty) != 2 || dirty[0].ID != "c1" || dirty[1].ID != "c2" {
		t.Fatalf("dirty order: got %v, want oldest first [c1 c2]", dirty)
	}
}

func TestRepos_IsolatedByEntity(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	if err := store.Repo(entity.Products).BulkUpsert(ctx, []Record{serverRec("x", "p")}); err != nil {
		t.Fatalf("upsert products: %v", err)
	}
	if err := store.Repo(entity.Taxes).BulkUpsert(ctx, []Record{serverRec("x", "t")}); err != nil {
		t.Fatalf("upsert taxes: %v", err)
	}

	n, _ := store.Repo(entity.Products).Count(ctx)
	if n != 1 {
		t.Fatalf("products count: got %d, want 1", n)
	}
	got, _ := store.Repo(entity.Taxes).Get(ctx, "x")
	if string(got.Data) != `{"title":"t"}` {
		t.Fatalf("taxes record: got %s", got.Data)
	}
}

func TestBulkUpsert_EmptyID(t *testing.T) {
	repo := setupStore(t).Repo(entity.Products)

	err := repo.BulkUpsert(context.Background(), []Record{{ID: "", Data: json.RawMessage(`{}`)}})
	if err == nil {
		t.Fatal("expected error for empty record id")
	}
}
