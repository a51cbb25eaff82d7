package repository

import (
	"context"
	"testing"
	"time"

	"github.com/hitoshi/eventinator/internal/model"
)

func TestPostgresSessionRepo_Lifecycle(t *testing.T) {
	g := setupTestGateway(t)
	repo := NewPostgresSessionRepo(g)
	ctx := context.Background()

	session := &model.Session{
		ID:        "session-1",
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
	if err := repo.Create(ctx, session); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := session.Set("discord_oauth2_state", "xyz"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := repo.Update(ctx, session); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	got, err := repo.FindByID(ctx, "session-1")
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if got == nil {
		t.Fatal("expected session")
	}
	var state string
	if ok, _ := got.Get("discord_oauth2_state", &state); !ok || state != "xyz" {
		t.Errorf("state = %q (ok=%v), want xyz", state, ok)
	}

	if err := repo.DeleteByID(ctx, "session-1"); err != nil {
		t.Fatalf("DeleteByID returned error: %v", err)
	}
	if got, _ := repo.FindByID(ctx, "session-1"); got != nil {
		t.Error("session should be deleted")
	}
}

func TestPostgresSessionRepo_ExpiredSessions(t *testing.T) {
	g := setupTestGateway(t)
	repo := NewPostgresSessionRepo(g)
	ctx := context.Background()

	expired := &model.Session{
		ID:        "expired",
		ExpiresAt: time.Now().Add(-time.Hour),
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}
	live := &model.Session{
		ID:        "live",
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
	for _, s := range []*model.Session{expired, live} {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
	}

	// 期限切れセッションは検索されない
	if got, _ := repo.FindByID(ctx, "expired"); got != nil {
		t.Error("expired session should not be returned")
	}

	n, err := repo.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired returned error: %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteExpired = %d, want 1", n)
	}
	if got, _ := repo.FindByID(ctx, "live"); got == nil {
		t.Error("live session should remain")
	}
}
