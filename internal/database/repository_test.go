package database

import (
	"context"
	"testing"
	"time"

	"github.com/lq216/gonopbx/internal/database/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSIPPeerRoundTrip(t *testing.T) {
	db := testDB(t)
	repo := NewSIPPeerRepository(db)
	ctx := context.Background()

	peer := &models.SIPPeer{
		Extension:  "1001",
		Secret:     "s3cret",
		CallerID:   "Alice",
		Context:    "internal",
		Codecs:     "ulaw,alaw,g722",
		BLFEnabled: true,
		Enabled:    true,
	}
	if err := repo.Create(ctx, peer); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if peer.ID == 0 {
		t.Fatal("Create() should assign an id")
	}

	got, err := repo.GetByExtension(ctx, "1001")
	if err != nil {
		t.Fatalf("GetByExtension() error: %v", err)
	}
	if got == nil {
		t.Fatal("GetByExtension() returned nil for existing peer")
	}
	if got.Secret != "s3cret" || got.CallerID != "Alice" {
		t.Errorf("round trip mismatch: got %+v", got)
	}

	missing, err := repo.GetByExtension(ctx, "9999")
	if err != nil {
		t.Fatalf("GetByExtension() error: %v", err)
	}
	if missing != nil {
		t.Error("GetByExtension() should return nil for missing peer")
	}
}

func TestRingGroupMemberOrder(t *testing.T) {
	db := testDB(t)
	repo := NewRingGroupRepository(db)
	ctx := context.Background()

	group := &models.RingGroup{
		Name:      "support",
		Extension: "600",
		Strategy:  "ringall",
		RingTime:  25,
		Enabled:   true,
		Members:   []string{"1003", "1001", "1002"},
	}
	if err := repo.Create(ctx, group); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	got, err := repo.GetByExtension(ctx, "600")
	if err != nil {
		t.Fatalf("GetByExtension() error: %v", err)
	}
	if got == nil {
		t.Fatal("GetByExtension() returned nil")
	}

	want := []string{"1003", "1001", "1002"}
	if len(got.Members) != len(want) {
		t.Fatalf("got %d members, want %d", len(got.Members), len(want))
	}
	for i := range want {
		if got.Members[i] != want[i] {
			t.Errorf("member %d = %q, want %q (order must be preserved)", i, got.Members[i], want[i])
		}
	}

	// Updating replaces the member list wholesale.
	got.Members = []string{"1002"}
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	after, err := repo.GetByID(ctx, got.ID)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if len(after.Members) != 1 || after.Members[0] != "1002" {
		t.Errorf("after update members = %v, want [1002]", after.Members)
	}
}

func TestIVRMenuOptionOrder(t *testing.T) {
	db := testDB(t)
	repo := NewIVRMenuRepository(db)
	ctx := context.Background()

	menu := &models.IVRMenu{
		Name:           "main",
		Extension:      "500",
		Prompt:         "custom/welcome",
		TimeoutSeconds: 5,
		Retries:        2,
		Enabled:        true,
		Options: []models.IVROption{
			{Digit: "2", Destination: "1002"},
			{Digit: "1", Destination: "1001"},
		},
	}
	if err := repo.Create(ctx, menu); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	got, err := repo.GetByName(ctx, "main")
	if err != nil {
		t.Fatalf("GetByName() error: %v", err)
	}
	if got == nil {
		t.Fatal("GetByName() returned nil")
	}
	if len(got.Options) != 2 {
		t.Fatalf("got %d options, want 2", len(got.Options))
	}
	if got.Options[0].Digit != "2" || got.Options[1].Digit != "1" {
		t.Errorf("option order not preserved: %+v", got.Options)
	}
}

func TestCallForwardUniquePerType(t *testing.T) {
	db := testDB(t)
	repo := NewCallForwardRepository(db)
	ctx := context.Background()

	fwd := &models.CallForward{
		Extension:   "1001",
		ForwardType: "busy",
		Destination: "1002",
		RingTime:    20,
		Enabled:     true,
	}
	if err := repo.Create(ctx, fwd); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	dup := &models.CallForward{
		Extension:   "1001",
		ForwardType: "busy",
		Destination: "1003",
	}
	if err := repo.Create(ctx, dup); err == nil {
		t.Error("Create() should fail for duplicate (extension, forward_type)")
	}

	got, err := repo.Get(ctx, "1001", "busy")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got == nil || got.Destination != "1002" {
		t.Errorf("Get() = %+v, want destination 1002", got)
	}
}

func TestVoicemailUpsert(t *testing.T) {
	db := testDB(t)
	repo := NewVoicemailMailboxRepository(db)
	ctx := context.Background()

	box := &models.VoicemailMailbox{
		Extension:   "1001",
		Enabled:     true,
		PIN:         "1234",
		Name:        "Alice",
		RingTimeout: 20,
	}
	if err := repo.Upsert(ctx, box); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	box.PIN = "5678"
	box.RingTimeout = 30
	if err := repo.Upsert(ctx, box); err != nil {
		t.Fatalf("Upsert() second call error: %v", err)
	}

	got, err := repo.GetByExtension(ctx, "1001")
	if err != nil {
		t.Fatalf("GetByExtension() error: %v", err)
	}
	if got.PIN != "5678" || got.RingTimeout != 30 {
		t.Errorf("upsert did not update in place: %+v", got)
	}

	boxes, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(boxes) != 1 {
		t.Errorf("upsert should not duplicate rows, got %d", len(boxes))
	}
}

func TestCDRListFilter(t *testing.T) {
	db := testDB(t)
	repo := NewCDRRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	records := []models.CDR{
		{CallDate: base, Src: "1001", Dst: "1002", Disposition: "ANSWERED", UniqueID: "a"},
		{CallDate: base.Add(time.Minute), Src: "1001", Dst: "0301234567", Disposition: "NO ANSWER", UniqueID: "b"},
		{CallDate: base.Add(2 * time.Minute), Src: "1003", Dst: "1001", Disposition: "ANSWERED", UniqueID: "c"},
	}
	for i := range records {
		if err := repo.Create(ctx, &records[i]); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
	}

	got, total, err := repo.List(ctx, CDRListFilter{Disposition: "ANSWERED"})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if total != 2 || len(got) != 2 {
		t.Errorf("disposition filter: total=%d len=%d, want 2/2", total, len(got))
	}
	// Newest first.
	if got[0].UniqueID != "c" {
		t.Errorf("first record = %q, want newest (c)", got[0].UniqueID)
	}

	counts, err := repo.CountByDisposition(ctx)
	if err != nil {
		t.Fatalf("CountByDisposition() error: %v", err)
	}
	if counts["ANSWERED"] != 2 || counts["NO ANSWER"] != 1 {
		t.Errorf("CountByDisposition() = %v", counts)
	}
}

func TestSystemSettings(t *testing.T) {
	db := testDB(t)
	repo := NewSystemSettingRepository(db)
	ctx := context.Background()

	val, err := repo.Get(ctx, "smtp_host")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if val != "" {
		t.Errorf("unset key should return empty, got %q", val)
	}

	if err := repo.Set(ctx, "smtp_host", "mail.example.com"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := repo.Set(ctx, "smtp_host", "mail2.example.com"); err != nil {
		t.Fatalf("Set() overwrite error: %v", err)
	}

	val, err = repo.Get(ctx, "smtp_host")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if val != "mail2.example.com" {
		t.Errorf("Get() = %q, want mail2.example.com", val)
	}
}
