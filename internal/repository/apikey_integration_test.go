//go:build integration

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lktlns/lktlns/internal/model"
	"github.com/lktlns/lktlns/internal/testutil"
)

// ============================================================================
// API Key Repository Integration Tests
// ============================================================================

func TestIntegrationAPIKeyRepository_CreateAPIKey(t *testing.T) {
	ctx, repo := newAPIKeyTestEnv(t)

	key := testutil.NewTestAPIKey(t)

	err := repo.CreateAPIKey(ctx, key)
	if err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}

	// Verify key exists in DB
	retrieved, err := repo.GetAPIKeyByID(ctx, key.ID)
	if err != nil {
		t.Fatalf("GetAPIKeyByID failed: %v", err)
	}

	if retrieved.KeyHash != key.KeyHash {
		t.Errorf("KeyHash mismatch: got %q, want %q", retrieved.KeyHash, key.KeyHash)
	}
	if retrieved.KeyPrefix != key.KeyPrefix {
		t.Errorf("KeyPrefix mismatch: got %q, want %q", retrieved.KeyPrefix, key.KeyPrefix)
	}
}

func TestIntegrationAPIKeyRepository_GetByID_NotFound(t *testing.T) {
	ctx, repo := newAPIKeyTestEnv(t)

	_, err := repo.GetAPIKeyByID(ctx, "nonexistent-key-id")
	if !errors.Is(err, ErrAPIKeyNotFound) {
		t.Errorf("Expected ErrAPIKeyNotFound, got: %v", err)
	}
}

func TestIntegrationAPIKeyRepository_GetByPrefix_ExcludesRevoked(t *testing.T) {
	ctx, repo := newAPIKeyTestEnv(t)

	prefix := "lk_revoke_test_"

	key1 := testutil.NewTestAPIKey(t)
	key1.KeyPrefix = prefix
	key2 := testutil.NewTestAPIKey(t)
	key2.KeyPrefix = prefix

	if err := repo.CreateAPIKey(ctx, key1); err != nil {
		t.Fatalf("CreateAPIKey (1) failed: %v", err)
	}
	time.Sleep(1 * time.Millisecond)
	if err := repo.CreateAPIKey(ctx, key2); err != nil {
		t.Fatalf("CreateAPIKey (2) failed: %v", err)
	}

	// Revoke key1
	if err := repo.RevokeAPIKey(ctx, key1.ID); err != nil {
		t.Fatalf("RevokeAPIKey failed: %v", err)
	}

	// GetByPrefix should only return active keys
	keys, err := repo.GetAPIKeysByPrefix(ctx, prefix)
	if err != nil {
		t.Fatalf("GetAPIKeysByPrefix failed: %v", err)
	}

	if len(keys) != 1 {
		t.Errorf("Expected 1 active key, got %d", len(keys))
	}

	if len(keys) > 0 && keys[0].ID != key2.ID {
		t.Errorf("Expected key2, got key %s", keys[0].ID)
	}
}

func TestIntegrationAPIKeyRepository_RevokeAPIKey(t *testing.T) {
	ctx, repo := newAPIKeyTestEnv(t)

	key := testutil.NewTestAPIKey(t)

	if err := repo.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}

	// Revoke
	if err := repo.RevokeAPIKey(ctx, key.ID); err != nil {
		t.Fatalf("RevokeAPIKey failed: %v", err)
	}

	// Verify revoked
	retrieved, err := repo.GetAPIKeyByID(ctx, key.ID)
	if err != nil {
		t.Fatalf("GetAPIKeyByID failed: %v", err)
	}

	if retrieved.RevokedAt == nil {
		t.Error("RevokedAt should be set after revocation")
	}
	if !retrieved.IsRevoked() {
		t.Error("IsRevoked() should return true")
	}

	// Second revoke should fail (already revoked)
	err = repo.RevokeAPIKey(ctx, key.ID)
	if !errors.Is(err, ErrAPIKeyNotFound) {
		t.Errorf("Expected ErrAPIKeyNotFound on double revoke, got: %v", err)
	}
}

func TestIntegrationAPIKeyRepository_UpdateLastUsed(t *testing.T) {
	ctx, repo := newAPIKeyTestEnv(t)

	key := testutil.NewTestAPIKey(t)

	if err := repo.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}

	// Initial state: last_used_at is nil
	retrieved, _ := repo.GetAPIKeyByID(ctx, key.ID)
	if retrieved.LastUsedAt != nil {
		t.Error("LastUsedAt should be nil initially")
	}

	// Update last used
	if err := repo.UpdateAPIKeyLastUsed(ctx, key.ID); err != nil {
		t.Fatalf("UpdateAPIKeyLastUsed failed: %v", err)
	}

	// Verify updated
	retrieved, _ = repo.GetAPIKeyByID(ctx, key.ID)
	if retrieved.LastUsedAt == nil {
		t.Error("LastUsedAt should be set after update")
	}
}

func TestIntegrationAPIKeyRepository_ScopesPersistence(t *testing.T) {
	ctx, repo := newAPIKeyTestEnv(t)

	key := testutil.NewTestAPIKey(t)
	key.Scopes = []string{model.ScopeRead, model.ScopeWrite}

	if err := repo.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}

	retrieved, err := repo.GetAPIKeyByID(ctx, key.ID)
	if err != nil {
		t.Fatalf("GetAPIKeyByID failed: %v", err)
	}

	if len(retrieved.Scopes) != 2 {
		t.Errorf("Expected 2 scopes, got %d", len(retrieved.Scopes))
	}

	// Verify HasScope works
	if !retrieved.HasScope(model.ScopeRead) {
		t.Error("Key should have read scope")
	}
	if retrieved.HasScope(model.ScopeAdmin) {
		t.Error("Key should not have admin scope")
	}
}

// ============================================================================
// Test Environment Setup
// ============================================================================

func newAPIKeyTestEnv(t *testing.T) (context.Context, *Repository) {
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

	if err := testutil.ResetAPIKeysSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset api_keys schema: %v", err)
	}

	return ctx, repo
}
