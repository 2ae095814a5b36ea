package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nao1215/linkforensics/internal/config"
	"github.com/nao1215/linkforensics/internal/metrics"
	"github.com/nao1215/linkforensics/internal/model"
	"github.com/nao1215/linkforensics/internal/session"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *ForensicDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testRecord(accessID, auditID, linkID, ip string, created time.Time) *model.ForensicRecord {
	return &model.ForensicRecord{
		AccessID:        accessID,
		LinkID:          linkID,
		ResourceAuditID: auditID,
		NetworkIdentity: model.NetworkIdentity{PublicIP: ip, ISP: "Example ISP"},
		DeviceFingerprint: model.DeviceFingerprint{
			CanvasHash: "d0249466",
			Languages:  []string{"es-ES"},
		},
		BestLocation: &model.BestLocation{
			Latitude: 40.4168, Longitude: -3.7038, AccuracyMeters: 5000,
			Method: model.MethodIP, Confidence: 25, Sources: []model.Method{model.MethodIP},
		},
		TrustScore:  76,
		Session:     model.Session{Start: created, Referrer: "https://mail.example.com/"},
		FocusEvents: []model.FocusEvent{},
		CreatedAt:   created,
	}
}

func focusEvents(n int) []model.FocusEvent {
	events := make([]model.FocusEvent, n)
	for i := range events {
		kind := model.FocusGained
		if i%2 == 1 {
			kind = model.FocusLost
		}
		events[i] = model.FocusEvent{Timestamp: baseTime.Add(time.Duration(i) * time.Second), Kind: kind}
	}
	return events
}

// TestOpen tests database opening and creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, DBFileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != filepath.Join(dbDir, DBFileName) {
			t.Errorf("unexpected path %s", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		_, err := Open(filepath.Join(t.TempDir(), "missing"), Options{CreateIfNotExists: false})
		if err == nil {
			t.Error("expected error for missing database")
		}
	})

	t.Run("reopen keeps data", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		db, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		if _, err := db.Upsert(context.Background(), testRecord("access-1-aaaaaa", "audit", "link", "203.0.113.7", baseTime)); err != nil {
			t.Fatalf("Upsert() error: %v", err)
		}
		_ = db.Close()

		db, err = Open(dir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		defer db.Close()
		if rec, _ := db.Get(context.Background(), "access-1-aaaaaa"); rec == nil {
			t.Error("record lost after reopen")
		}
	})
}

// TestUpsertAndGet tests the round trip and idempotency.
func TestUpsertAndGet(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	rec := testRecord("access-1-aaaaaa", "audit-1", "link-1", "203.0.113.7", baseTime)
	rec.AddFlag(model.FlagVPNDetected, "NordVPN")

	id, err := db.Upsert(ctx, rec)
	if err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
	if id != rec.AccessID {
		t.Errorf("Upsert() = %q, want %q", id, rec.AccessID)
	}

	got, err := db.Get(ctx, rec.AccessID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got == nil {
		t.Fatal("record not found")
	}
	if got.NetworkIdentity.PublicIP != "203.0.113.7" || got.TrustScore != 76 || !got.HasFlag(model.FlagVPNDetected) {
		t.Errorf("unexpected record %+v", got)
	}
	if got.BestLocation == nil || got.BestLocation.Method != model.MethodIP {
		t.Errorf("location lost: %+v", got.BestLocation)
	}
	if !got.CreatedAt.Equal(baseTime) {
		t.Errorf("createdAt = %v, want %v", got.CreatedAt, baseTime)
	}

	// Same access id again: still one record, new values.
	rec.TrustScore = 40
	if _, err := db.Upsert(ctx, rec); err != nil {
		t.Fatalf("second Upsert() error: %v", err)
	}
	list, err := db.ListByAudit(ctx, "audit-1")
	if err != nil {
		t.Fatalf("ListByAudit() error: %v", err)
	}
	if len(list) != 1 || list[0].TrustScore != 40 {
		t.Errorf("expected one updated record, got %d", len(list))
	}

	missing, err := db.Get(ctx, "access-0-zzzzzz")
	if err != nil || missing != nil {
		t.Errorf("Get(missing) = %v, %v; want nil, nil", missing, err)
	}

	if _, err := db.Upsert(ctx, &model.ForensicRecord{}); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("expected ErrInvalidRecord, got %v", err)
	}
}

// TestUpdate tests that partial updates touch only the given fields.
func TestUpdate(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	rec := testRecord("access-2-bbbbbb", "audit-2", "link-2", "198.51.100.4", baseTime)
	if _, err := db.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	at := baseTime.Add(90 * time.Second)
	ok, err := db.Update(ctx, rec.AccessID, model.DownloadUpdate(at))
	if err != nil || !ok {
		t.Fatalf("Update() = %v, %v", ok, err)
	}

	ok, err = db.Update(ctx, rec.AccessID, model.RecordUpdate{AppendFocusEvents: focusEvents(2)})
	if err != nil || !ok {
		t.Fatalf("Update(focus) = %v, %v", ok, err)
	}
	ok, err = db.Update(ctx, rec.AccessID, model.RecordUpdate{AppendFocusEvents: focusEvents(3)[2:]})
	if err != nil || !ok {
		t.Fatalf("Update(focus) = %v, %v", ok, err)
	}

	got, err := db.Get(ctx, rec.AccessID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !got.Session.Downloaded || got.Session.DownloadTime == nil || !got.Session.DownloadTime.Equal(at) {
		t.Errorf("download not applied: %+v", got.Session)
	}
	if got.Session.End == nil || !got.Session.End.Equal(at) {
		t.Errorf("session end not applied: %+v", got.Session)
	}
	if len(got.FocusEvents) != 3 || got.FocusEvents[2].Kind != model.FocusGained {
		t.Errorf("focus events not appended in order: %+v", got.FocusEvents)
	}

	// Everything else is untouched.
	if got.TrustScore != rec.TrustScore || got.NetworkIdentity.PublicIP != rec.NetworkIdentity.PublicIP ||
		got.NetworkIdentity.ISP != rec.NetworkIdentity.ISP ||
		got.DeviceFingerprint.CanvasHash != rec.DeviceFingerprint.CanvasHash ||
		got.Session.Referrer != rec.Session.Referrer || got.BestLocation.Latitude != rec.BestLocation.Latitude {
		t.Errorf("update touched other fields: %+v", got)
	}

	ok, err = db.Update(ctx, "access-0-nothere", model.DownloadUpdate(at))
	if err != nil || ok {
		t.Errorf("Update(missing) = %v, %v; want false, nil", ok, err)
	}
}

// TestUpdateFocusOrder tests that events flushed by separate sessions for the
// same access are stored in time order.
func TestUpdateFocusOrder(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	rec := testRecord("access-7-gggggg", "audit-7", "link-7", "198.51.100.9", baseTime)
	if _, err := db.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	blur := baseTime.Add(time.Hour)
	first := session.NewTracker(rec.AccessID, db)
	first.Observe(model.FocusLost, blur)
	if err := first.Flush(ctx); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	second := session.NewTracker(rec.AccessID, db)
	second.Observe(model.FocusGained, baseTime.Add(10*time.Minute))
	if err := second.Flush(ctx); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	got, err := db.Get(ctx, rec.AccessID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if len(got.FocusEvents) != 2 {
		t.Fatalf("expected 2 focus events, got %d", len(got.FocusEvents))
	}
	for i := 1; i < len(got.FocusEvents); i++ {
		if got.FocusEvents[i].Timestamp.Before(got.FocusEvents[i-1].Timestamp) {
			t.Errorf("focus events out of order: %v then %v",
				got.FocusEvents[i-1].Timestamp, got.FocusEvents[i].Timestamp)
		}
	}
	if got.FocusEvents[1].Kind != model.FocusGained || !got.FocusEvents[1].Timestamp.Equal(blur) {
		t.Errorf("expected late focus raised to %v, got %+v", blur, got.FocusEvents[1])
	}
}

// TestUpsertMerge tests that a late capture never undoes session progress.
func TestUpsertMerge(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	rec := testRecord("access-3-cccccc", "audit-3", "link-3", "192.0.2.10", baseTime)
	if _, err := db.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
	at := baseTime.Add(time.Minute)
	update := model.DownloadUpdate(at)
	update.AppendFocusEvents = focusEvents(4)
	if _, err := db.Update(ctx, rec.AccessID, update); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	// A retried capture with a stale session.
	retry := testRecord(rec.AccessID, "audit-3", "link-3", "192.0.2.10", baseTime.Add(time.Second))
	retry.TrustScore = 55
	retry.FocusEvents = focusEvents(1)
	if _, err := db.Upsert(ctx, retry); err != nil {
		t.Fatalf("Upsert(retry) error: %v", err)
	}

	got, err := db.Get(ctx, rec.AccessID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !got.Session.Downloaded || got.Session.DownloadTime == nil || got.Session.End == nil {
		t.Errorf("session progress lost: %+v", got.Session)
	}
	if len(got.FocusEvents) != 4 {
		t.Errorf("expected the longer focus sequence, got %d", len(got.FocusEvents))
	}
	if got.TrustScore != 55 {
		t.Errorf("capture fields should be replaced, trust score = %d", got.TrustScore)
	}
	if !got.CreatedAt.Equal(baseTime) {
		t.Errorf("createdAt must keep the first capture, got %v", got.CreatedAt)
	}
}

// TestConcurrentCaptureAndUpdate races a capture retry against downloads.
func TestConcurrentCaptureAndUpdate(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	rec := testRecord("access-4-dddddd", "audit-4", "link-4", "192.0.2.11", baseTime)
	if _, err := db.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = db.Upsert(ctx, testRecord(rec.AccessID, "audit-4", "link-4", "192.0.2.11", baseTime))
		}()
		go func() {
			defer wg.Done()
			_, _ = db.Update(ctx, rec.AccessID, model.RecordUpdate{AppendFocusEvents: focusEvents(i + 1)[i:]})
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = db.Update(ctx, rec.AccessID, model.DownloadUpdate(baseTime.Add(time.Minute)))
	}()
	wg.Wait()

	got, err := db.Get(ctx, rec.AccessID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !got.Session.Downloaded {
		t.Error("download lost under concurrency")
	}
	if len(got.FocusEvents) != 10 {
		t.Errorf("expected 10 focus events, got %d", len(got.FocusEvents))
	}
	list, _ := db.ListByLink(ctx, "link-4")
	if len(list) != 1 {
		t.Errorf("expected exactly one record, got %d", len(list))
	}
}

// TestListAndStats tests listing order and statistics.
func TestListAndStats(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	records := []*model.ForensicRecord{
		testRecord("access-10-aaaaaa", "audit-5", "link-a", "203.0.113.1", baseTime),
		testRecord("access-11-bbbbbb", "audit-5", "link-a", "203.0.113.1", baseTime.Add(time.Hour)),
		testRecord("access-12-cccccc", "audit-5", "link-b", "203.0.113.2", baseTime.Add(2*time.Hour)),
		testRecord("access-13-dddddd", "audit-5", "link-b", model.PublicIPUnknown, baseTime.Add(3*time.Hour)),
		testRecord("access-14-eeeeee", "audit-other", "link-c", "203.0.113.9", baseTime.Add(4*time.Hour)),
	}
	for _, r := range records {
		if _, err := db.Upsert(ctx, r); err != nil {
			t.Fatalf("Upsert() error: %v", err)
		}
	}
	if _, err := db.Update(ctx, "access-11-bbbbbb", model.DownloadUpdate(baseTime.Add(time.Hour))); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	list, err := db.ListByAudit(ctx, "audit-5")
	if err != nil {
		t.Fatalf("ListByAudit() error: %v", err)
	}
	if len(list) != 4 || list[0].AccessID != "access-13-dddddd" || list[3].AccessID != "access-10-aaaaaa" {
		t.Errorf("expected newest first, got %d records", len(list))
	}

	byLink, err := db.ListByLink(ctx, "link-b")
	if err != nil {
		t.Fatalf("ListByLink() error: %v", err)
	}
	if len(byLink) != 2 {
		t.Errorf("expected 2 records for link-b, got %d", len(byLink))
	}

	stats, err := db.Stats(ctx, "audit-5")
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if stats.TotalAccesses != 4 || stats.UniqueIPs != 2 || stats.Downloads != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.LastAccess == nil || !stats.LastAccess.Equal(baseTime.Add(3*time.Hour)) {
		t.Errorf("unexpected last access %v", stats.LastAccess)
	}

	empty, err := db.Stats(ctx, "audit-none")
	if err != nil {
		t.Fatalf("Stats(empty) error: %v", err)
	}
	if empty.TotalAccesses != 0 || empty.LastAccess != nil {
		t.Errorf("unexpected empty stats %+v", empty)
	}
}

// TestMerge tests the merge rules without a database.
func TestMerge(t *testing.T) {
	t.Parallel()

	at := baseTime.Add(time.Minute)
	later := baseTime.Add(2 * time.Minute)

	stored := testRecord("access-1-aaaaaa", "a", "l", "192.0.2.1", baseTime)
	stored.Session.Downloaded = true
	stored.Session.DownloadTime = &at
	stored.Session.PageVisibility = "hidden"

	incoming := testRecord("access-1-aaaaaa", "a", "l", "192.0.2.1", later)
	incoming.Session.DownloadTime = &later
	incoming.FocusEvents = focusEvents(2)

	got := merge(stored, incoming)
	if !got.Session.Downloaded || !got.Session.DownloadTime.Equal(at) {
		t.Errorf("stored download must win: %+v", got.Session)
	}
	if got.Session.PageVisibility != "hidden" {
		t.Errorf("expected stored visibility, got %q", got.Session.PageVisibility)
	}
	if len(got.FocusEvents) != 2 {
		t.Errorf("expected incoming focus events, got %d", len(got.FocusEvents))
	}
	if got.Session.DownloadTime == stored.Session.DownloadTime {
		t.Error("merge must not share pointers with the stored record")
	}

	if fresh := merge(nil, incoming); fresh == incoming || fresh.AccessID != incoming.AccessID {
		t.Error("merge without a stored record must return a copy")
	}
}

// TestUnconfigured tests that every call fails softly.
func TestUnconfigured(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var s Store = Unconfigured{}

	if _, err := s.Upsert(ctx, testRecord("access-1-aaaaaa", "a", "l", "", baseTime)); !errors.Is(err, ErrPersistenceUnavailable) {
		t.Errorf("Upsert() error = %v", err)
	}
	if _, err := s.Update(ctx, "x", model.RecordUpdate{}); !errors.Is(err, ErrPersistenceUnavailable) {
		t.Errorf("Update() error = %v", err)
	}
	if _, err := s.Get(ctx, "x"); !errors.Is(err, ErrPersistenceUnavailable) {
		t.Errorf("Get() error = %v", err)
	}
	if _, err := s.ListByAudit(ctx, "x"); !errors.Is(err, ErrPersistenceUnavailable) {
		t.Errorf("ListByAudit() error = %v", err)
	}
	if _, err := s.ListByLink(ctx, "x"); !errors.Is(err, ErrPersistenceUnavailable) {
		t.Errorf("ListByLink() error = %v", err)
	}
	if _, err := s.Stats(ctx, "x"); !errors.Is(err, ErrPersistenceUnavailable) {
		t.Errorf("Stats() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

// TestOpenStore tests backend selection.
func TestOpenStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	cfg := config.NewConfig()
	cfg.DBDir = t.TempDir()
	s, err := OpenStore(ctx, cfg)
	if err != nil {
		t.Fatalf("OpenStore(sqlite) error: %v", err)
	}
	if _, ok := s.(*ForensicDB); !ok {
		t.Errorf("expected *ForensicDB, got %T", s)
	}
	_ = s.Close()

	cfg.DBDriver = config.DBDriverNone
	s, err = OpenStore(ctx, cfg)
	if err != nil {
		t.Fatalf("OpenStore(none) error: %v", err)
	}
	if _, ok := s.(Unconfigured); !ok {
		t.Errorf("expected Unconfigured, got %T", s)
	}

	cfg.DBDriver = "mysql"
	if _, err := OpenStore(ctx, cfg); !errors.Is(err, config.ErrInvalidDBDriver) {
		t.Errorf("expected ErrInvalidDBDriver, got %v", err)
	}
}

// TestInstrument tests that writes are counted.
func TestInstrument(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	s := Instrument(setupTestDB(t), m)
	ctx := context.Background()

	if _, err := s.Upsert(ctx, testRecord("access-1-aaaaaa", "a", "l", "192.0.2.1", baseTime)); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
	if _, err := s.Update(ctx, "access-1-aaaaaa", model.DownloadUpdate(baseTime)); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	_, _ = Instrument(Unconfigured{}, m).Upsert(ctx, testRecord("access-2-aaaaaa", "a", "l", "", baseTime))

	n, err := testutil.GatherAndCount(m.Registry(), "linkforensics_store_operations_total")
	if err != nil {
		t.Fatalf("GatherAndCount() error: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 store series, got %d", n)
	}
	if Instrument(Unconfigured{}, nil) != (Unconfigured{}) {
		t.Error("nil metrics must return the store unchanged")
	}
}

// TestPostgres runs the store contract against a real server when
// LINKFORENSICS_TEST_POSTGRES_DSN is set.
func TestPostgres(t *testing.T) {
	dsn := os.Getenv("LINKFORENSICS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LINKFORENSICS_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	db, err := OpenPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("OpenPostgres() error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	suffix := time.Now().UnixNano()
	auditID := "audit-pg-" + time.Unix(0, suffix).Format("150405.000000000")
	rec := testRecord(model.NewAccessID(time.Now()), auditID, "link-pg", "203.0.113.50", baseTime)

	if _, err := db.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
	ok, err := db.Update(ctx, rec.AccessID, model.DownloadUpdate(baseTime.Add(time.Minute)))
	if err != nil || !ok {
		t.Fatalf("Update() = %v, %v", ok, err)
	}
	if _, err := db.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert(retry) error: %v", err)
	}

	got, err := db.Get(ctx, rec.AccessID)
	if err != nil || got == nil {
		t.Fatalf("Get() = %v, %v", got, err)
	}
	if !got.Session.Downloaded {
		t.Error("download lost on re-upsert")
	}

	stats, err := db.Stats(ctx, auditID)
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if stats.TotalAccesses != 1 || stats.UniqueIPs != 1 || stats.Downloads != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}
