//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/lktlns/lktlns/internal/model"
	"github.com/lktlns/lktlns/internal/testutil"
)

// ============================================================================
// Frame Repository Integration Tests
// ============================================================================

func TestIntegrationFrameRepository_BulkInsert(t *testing.T) {
	ctx, frames := newFrameTestEnv(t)

	batch := []*model.UplinkFrame{
		testutil.NewTestFrame(t, "0102aabb", 1),
		testutil.NewTestFrame(t, "0102aabb", 2),
		testutil.NewTestFrame(t, "0304ccdd", 1),
	}

	if err := frames.BulkInsert(ctx, batch); err != nil {
		t.Fatalf("BulkInsert failed: %v", err)
	}

	got, err := frames.ListRecent(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("Expected 3 frames, got %d", len(got))
	}
}

func TestIntegrationFrameRepository_BulkInsert_MarksReplayDuplicate(t *testing.T) {
	ctx, frames := newFrameTestEnv(t)

	first := testutil.NewTestFrame(t, "0102aabb", 7)
	replay := testutil.NewTestFrame(t, "0102aabb", 7)

	if err := frames.BulkInsert(ctx, []*model.UplinkFrame{first}); err != nil {
		t.Fatalf("BulkInsert (first) failed: %v", err)
	}
	if err := frames.BulkInsert(ctx, []*model.UplinkFrame{replay}); err != nil {
		t.Fatalf("BulkInsert (replay) failed: %v", err)
	}

	got, err := frames.ListRecent(ctx, "0102aabb", 10)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected a single row for the replayed counter, got %d", len(got))
	}
	if got[0].ID != first.ID {
		t.Errorf("Expected the original row to survive, got ID %s", got[0].ID)
	}
	if !got[0].Duplicate {
		t.Errorf("Expected surviving row to be flagged duplicate")
	}
}

func TestIntegrationFrameRepository_ListRecent_FiltersByDevAddr(t *testing.T) {
	ctx, frames := newFrameTestEnv(t)

	batch := []*model.UplinkFrame{
		testutil.NewTestFrame(t, "0102aabb", 1),
		testutil.NewTestFrame(t, "0304ccdd", 1),
		testutil.NewTestFrame(t, "0304ccdd", 2),
	}
	if err := frames.BulkInsert(ctx, batch); err != nil {
		t.Fatalf("BulkInsert failed: %v", err)
	}

	got, err := frames.ListRecent(ctx, "0304ccdd", 10)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 frames for device, got %d", len(got))
	}
	for _, frame := range got {
		if frame.DevAddr != "0304ccdd" {
			t.Errorf("Unexpected DevAddr %q in filtered listing", frame.DevAddr)
		}
	}
}

func TestIntegrationFrameRepository_CountSince(t *testing.T) {
	ctx, frames := newFrameTestEnv(t)

	old := testutil.NewTestFrame(t, "0102aabb", 1)
	old.ReceivedAt = time.Now().UTC().Add(-48 * time.Hour)
	recent := testutil.NewTestFrame(t, "0102aabb", 2)

	if err := frames.BulkInsert(ctx, []*model.UplinkFrame{old, recent}); err != nil {
		t.Fatalf("BulkInsert failed: %v", err)
	}

	count, err := frames.CountSince(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("CountSince failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 recent frame, got %d", count)
	}
}

func TestIntegrationFrameRepository_DeviceActivity(t *testing.T) {
	ctx, frames := newFrameTestEnv(t)

	batch := []*model.UplinkFrame{
		testutil.NewTestFrame(t, "0102aabb", 1),
		testutil.NewTestFrame(t, "0102aabb", 2),
		testutil.NewTestFrame(t, "0102aabb", 3),
		testutil.NewTestFrame(t, "0304ccdd", 1),
	}
	if err := frames.BulkInsert(ctx, batch); err != nil {
		t.Fatalf("BulkInsert failed: %v", err)
	}

	activity, err := frames.DeviceActivity(ctx, time.Now().UTC().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("DeviceActivity failed: %v", err)
	}
	if len(activity) != 2 {
		t.Fatalf("Expected 2 active devices, got %d", len(activity))
	}
	if activity[0].DevAddr != "0102aabb" || activity[0].Frames != 3 {
		t.Errorf("Expected 0102aabb with 3 frames first, got %s with %d",
			activity[0].DevAddr, activity[0].Frames)
	}
}

// ============================================================================
// Test Environment Setup
// ============================================================================

func newFrameTestEnv(t *testing.T) (context.Context, *FrameRepository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	repo, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetFramesSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset uplink_frames schema: %v", err)
	}

	return ctx, NewFrameRepository(repo)
}
