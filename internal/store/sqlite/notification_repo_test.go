package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus_realtime/internal/domain"
)

func TestNotificationRepo_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationRepo(openTestDB(t))

	sender := "alice"
	link := "/chat/subject/math"
	for i, id := range []string{"n1", "n2", "n3"} {
		require.NoError(t, repo.Create(ctx, &domain.Notification{
			ID:          id,
			RecipientID: "bob",
			SenderID:    &sender,
			Type:        "subject-message",
			DeepLink:    &link,
			Message:     "new message",
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, repo.Create(ctx, &domain.Notification{
		ID: "other", RecipientID: "carol", Type: "system", Message: "hi", CreatedAt: base,
	}))

	list, err := repo.List(ctx, "bob", false, 0, 10)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "n3", list[0].ID)
	require.NotNil(t, list[0].SenderID)
	assert.Equal(t, "alice", *list[0].SenderID)
	assert.Nil(t, list[0].RelatedRef)

	n, err := repo.CountUnread(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, repo.MarkRead(ctx, "bob", "n1"))
	assert.ErrorIs(t, repo.MarkRead(ctx, "carol", "n1"), domain.ErrNotFound)

	unread, err := repo.List(ctx, "bob", true, 0, 10)
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	changed, err := repo.MarkAllRead(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(2), changed)

	purged, err := repo.PurgeReadBefore(ctx, base.Add(90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)

	require.NoError(t, repo.Delete(ctx, "bob", "n3"))
	assert.ErrorIs(t, repo.Delete(ctx, "bob", "n3"), domain.ErrNotFound)

	removed, err := repo.DeleteAll(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestSubscriptionRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewSubscriptionRepo(openTestDB(t))

	sub := &domain.PushSubscription{
		Endpoint: "https://push.example/abc", UserID: "bob", P256dh: "p", Auth: "a",
		CreatedAt: base, UpdatedAt: base,
	}
	require.NoError(t, repo.Upsert(ctx, sub))

	moved := *sub
	moved.UserID = "carol"
	moved.Auth = "a2"
	moved.UpdatedAt = base.Add(time.Hour)
	require.NoError(t, repo.Upsert(ctx, &moved))

	bobs, err := repo.ListForUser(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, bobs)

	carols, err := repo.ListForUser(ctx, "carol")
	require.NoError(t, err)
	require.Len(t, carols, 1)
	assert.Equal(t, "a2", carols[0].Auth)
	assert.True(t, base.Equal(carols[0].CreatedAt))

	assert.ErrorIs(t, repo.DeleteForUser(ctx, "bob", sub.Endpoint), domain.ErrNotFound)
	require.NoError(t, repo.DeleteByEndpoint(ctx, sub.Endpoint))
	require.NoError(t, repo.DeleteByEndpoint(ctx, sub.Endpoint))

	carols, err = repo.ListForUser(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, carols)
}

func TestProfileAndMembershipRepos(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	profiles := NewProfileRepo(db)
	members := NewMembershipRepo(db)

	require.NoError(t, profiles.Upsert(ctx, &domain.Profile{UserID: "u1", DisplayName: "Alice", Role: domain.RoleTeacher}))
	require.NoError(t, profiles.Upsert(ctx, &domain.Profile{UserID: "u2", DisplayName: "Bob"}))
	require.NoError(t, profiles.Upsert(ctx, &domain.Profile{UserID: "u2", DisplayName: "Robert"}))

	got, err := profiles.GetByIDs(ctx, []string{"u1", "u2", "u3"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "Robert", got["u2"].DisplayName)
	assert.Equal(t, domain.RoleTeacher, got["u1"].Role)

	found, err := profiles.FindByDisplayNames(ctx, []string{"alice", "nobody"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "u1", found[0].UserID)

	require.NoError(t, members.Upsert(ctx, &domain.Membership{ContextID: "subject:1", UserID: "u1", Role: domain.MemberRoleModerator, JoinedAt: base}))
	require.NoError(t, members.Upsert(ctx, &domain.Membership{ContextID: "subject:1", UserID: "u2", Role: domain.MemberRoleMember, JoinedAt: base.Add(time.Second)}))

	m, err := members.Get(ctx, "subject:1", "u1")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, domain.MemberRoleModerator, m.Role)

	m, err = members.Get(ctx, "subject:1", "u9")
	require.NoError(t, err)
	assert.Nil(t, m)

	list, err := members.ListMembers(ctx, "subject:1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "u1", list[0].UserID)

	require.NoError(t, members.Delete(ctx, "subject:1", "u2"))
	assert.ErrorIs(t, members.Delete(ctx, "subject:1", "u2"), domain.ErrNotFound)

	require.NoError(t, members.PurgeContext(ctx, "subject:1"))
	list, err = members.ListMembers(ctx, "subject:1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestProfileRepo_FindByDisplayNamesFoldsNonASCII(t *testing.T) {
	ctx := context.Background()
	profiles := NewProfileRepo(openTestDB(t))
	require.NoError(t, profiles.Upsert(ctx, &domain.Profile{UserID: "u1", DisplayName: "Émile"}))
	require.NoError(t, profiles.Upsert(ctx, &domain.Profile{UserID: "u2", DisplayName: "Łukasz"}))

	found, err := profiles.FindByDisplayNames(ctx, []string{"émile", "ŁUKASZ"})
	require.NoError(t, err)
	require.Len(t, found, 2)
	got := []string{found[0].UserID, found[1].UserID}
	assert.ElementsMatch(t, []string{"u1", "u2"}, got)
}
