package storage

import (
	"context"
	"testing"
	"time"

	"github.com/forge-games/contribot/internal/models"
	"github.com/forge-games/contribot/internal/testutil"
)

func TestSaveUserUpsert(t *testing.T) {
	store := New(testutil.OpenTestDB(t))
	ctx := context.Background()

	user := &models.User{
		ChatID:            42,
		GithubUser:        "alice",
		Points:            70,
		Badges:            []string{"Bronze Collaborator"},
		LastActivityCheck: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := store.SaveUser(ctx, user); err != nil {
		t.Fatalf("SaveUser error: %v", err)
	}

	user.Points = 170
	user.Badges = append(user.Badges, "Silver Collaborator")
	if err := store.SaveUser(ctx, user); err != nil {
		t.Fatalf("SaveUser upsert error: %v", err)
	}

	got, err := store.GetUser(ctx, 42)
	if err != nil {
		t.Fatalf("GetUser error: %v", err)
	}
	if got.Points != 170 {
		t.Fatalf("points=%d, want 170", got.Points)
	}
	if len(got.Badges) != 2 || got.Badges[0] != "Bronze Collaborator" {
		t.Fatalf("badges=%v, want JSON round-trip of both badges", got.Badges)
	}
	if !got.LastActivityCheck.Equal(user.LastActivityCheck) {
		t.Fatalf("checkpoint=%v, want %v", got.LastActivityCheck, user.LastActivityCheck)
	}
}

func TestGetUserMissing(t *testing.T) {
	store := New(testutil.OpenTestDB(t))

	if _, err := store.GetUser(context.Background(), 7); err == nil {
		t.Fatal("expected error for missing user")
	}
}

func TestListUsersStableOrder(t *testing.T) {
	store := New(testutil.OpenTestDB(t))
	ctx := context.Background()

	for _, id := range []int64{30, 10, 20} {
		if err := store.SaveUser(ctx, &models.User{ChatID: id, GithubUser: "u"}); err != nil {
			t.Fatalf("SaveUser error: %v", err)
		}
	}

	users, err := store.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers error: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("len=%d, want 3", len(users))
	}
	for i, want := range []int64{10, 20, 30} {
		if users[i].ChatID != want {
			t.Fatalf("users[%d].ChatID=%d, want %d", i, users[i].ChatID, want)
		}
	}
}

func TestTopUsersOrderingAndLimit(t *testing.T) {
	store := New(testutil.OpenTestDB(t))
	ctx := context.Background()

	for i := int64(1); i <= 12; i++ {
		user := &models.User{ChatID: i, GithubUser: "u", Points: int(i * 10)}
		if i == 11 || i == 12 {
			user.Points = 110 // tie, broken by chat id
		}
		if err := store.SaveUser(ctx, user); err != nil {
			t.Fatalf("SaveUser error: %v", err)
		}
	}

	top, err := store.TopUsers(ctx, 10)
	if err != nil {
		t.Fatalf("TopUsers error: %v", err)
	}
	if len(top) != 10 {
		t.Fatalf("len=%d, want 10", len(top))
	}
	for i := 1; i < len(top); i++ {
		if top[i].Points > top[i-1].Points {
			t.Fatalf("not descending at %d: %d > %d", i, top[i].Points, top[i-1].Points)
		}
	}
	if top[0].ChatID != 11 || top[1].ChatID != 12 {
		t.Fatalf("tie not broken by chat id: got %d, %d", top[0].ChatID, top[1].ChatID)
	}
}
