//go:build integration

package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/akvo/logbook/internal/schema"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func testFarmer(t *testing.T, s *Store) *Farmer {
	t.Helper()
	ctx := context.Background()
	externalID := "whatsapp:+62" + uuid.New().String()[:12]
	farmer, created, err := s.GetOrCreateFarmer(ctx, externalID, "Integration Farmer", "")
	if err != nil {
		t.Fatalf("GetOrCreateFarmer failed: %v", err)
	}
	if !created {
		t.Fatal("expected a fresh farmer")
	}
	t.Cleanup(func() {
		_ = s.DeleteFarmer(ctx, farmer.ID)
	})
	return farmer
}

func TestIntegration_GetOrCreateFarmerIsIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	farmer := testFarmer(t, s)

	again, created, err := s.GetOrCreateFarmer(ctx, farmer.ExternalID, "Different Name", "")
	if err != nil {
		t.Fatalf("second GetOrCreateFarmer failed: %v", err)
	}
	if created {
		t.Error("second resolve must not create")
	}
	if again.ID != farmer.ID {
		t.Errorf("expected same farmer id, got %s and %s", farmer.ID, again.ID)
	}
	if again.Name != "Integration Farmer" {
		t.Errorf("resolve must not rename the farmer, got %q", again.Name)
	}
}

func TestIntegration_DuplicateMessageSID(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	farmer := testFarmer(t, s)

	sid := "SM-" + uuid.New().String()[:13]
	first, err := s.InsertInboundMessage(ctx, farmer.ID, sid, "hello", "")
	if err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if first.Processed {
		t.Error("new message must start unprocessed")
	}

	_, err = s.InsertInboundMessage(ctx, farmer.ID, sid, "hello again", "")
	if !errors.Is(err, ErrDuplicateMessage) {
		t.Fatalf("expected ErrDuplicateMessage, got %v", err)
	}
}

func TestIntegration_RecordLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	farmer := testFarmer(t, s)

	msg, err := s.InsertInboundMessage(ctx, farmer.ID, "SM-"+uuid.New().String()[:13], "watered the chili", "")
	if err != nil {
		t.Fatalf("insert message failed: %v", err)
	}

	rec := &Record{
		ID:              uuid.New(),
		FarmerID:        farmer.ID,
		MessageID:       &msg.ID,
		RecordType:      schema.Irrigation,
		Data:            map[string]any{"crop": "chili", "variety": "hot lava", "plot_or_row": "A3", "rainfall": "none", "farmer_perspective": "dry"},
		SourceChannel:   "whatsapp",
		SourceInputMode: schema.InputModeText,
		SourceLanguage:  schema.LanguageEnglish,
		Confidence:      0.9,
		MissingFields:   []string{"water_amount"},
		NeedsFollowup:   true,
		Confirmed:       false,
		RawTranscript:   "watered the chili",
	}
	if err := s.CreateRecord(ctx, rec, msg.ID); err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}

	// The open-record lookup must find it.
	open, err := s.GetOpenRecord(ctx, farmer.ID)
	if err != nil {
		t.Fatalf("GetOpenRecord failed: %v", err)
	}
	if open.ID != rec.ID {
		t.Errorf("expected open record %s, got %s", rec.ID, open.ID)
	}
	if open.Data["crop"] != "chili" {
		t.Errorf("data round trip failed: %v", open.Data)
	}

	// Follow-up turn: complete and confirm.
	now := time.Now().UTC().Truncate(24 * time.Hour)
	open.OccurredAt = &now
	open.Data["water_amount"] = "200L"
	open.MissingFields = []string{}
	open.NeedsFollowup = false
	open.Confirmed = true
	open.RawTranscript = open.RawTranscript + "\n---\n200 liters"
	if err := s.UpdateRecord(ctx, open, msg.ID); err != nil {
		t.Fatalf("UpdateRecord failed: %v", err)
	}

	if _, err := s.GetOpenRecord(ctx, farmer.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("confirmed record must no longer be open, got %v", err)
	}

	got, err := s.GetRecord(ctx, open.ID)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if !got.Confirmed || got.NeedsFollowup {
		t.Error("record must be confirmed after update")
	}
	if got.Data["water_amount"] != "200L" {
		t.Errorf("merged field missing: %v", got.Data)
	}
}

func TestIntegration_ListRecordsFilters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	farmer := testFarmer(t, s)

	rec := &Record{
		ID:              uuid.New(),
		FarmerID:        farmer.ID,
		RecordType:      schema.ChemicalDisposal,
		Data:            map[string]any{"chemical_name": "paraquat"},
		SourceChannel:   "whatsapp",
		SourceInputMode: schema.InputModeText,
		SourceLanguage:  schema.LanguageUnknown,
		MissingFields:   []string{"occurred_at", "disposal_date", "disposal_method"},
		NeedsFollowup:   true,
	}
	if err := s.InsertRecord(ctx, rec); err != nil {
		t.Fatalf("InsertRecord failed: %v", err)
	}

	needs := true
	records, err := s.ListRecords(ctx, RecordFilter{FarmerID: &farmer.ID, RecordType: schema.ChemicalDisposal, NeedsFollowup: &needs})
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(records) != 1 || records[0].ID != rec.ID {
		t.Errorf("expected exactly the inserted record, got %d", len(records))
	}
}
