package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/notegate/notegate/internal/store"
)

func seedUser(t *testing.T, st *store.Store, email string) *store.User {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.AddAllowedEmail(ctx, email, "cli", false))
	user, err := st.GetOrCreateUser(ctx, email, "Test User")
	require.NoError(t, err)
	return user
}

func TestAddAndListNotes(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	user := seedUser(t, st, "writer@example.com")

	first, err := st.AddNote(ctx, user.ID, "first note")
	require.NoError(t, err)
	require.NotZero(t, first.ID)

	second, err := st.AddNote(ctx, user.ID, "second note")
	require.NoError(t, err)

	notes, err := st.ListNotes(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	// Newest first.
	require.Equal(t, second.ID, notes[0].ID)
	require.Equal(t, first.ID, notes[1].ID)
}

func TestListNotesIsScopedToOwner(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, st, "alice@example.com")
	bob := seedUser(t, st, "bob@example.com")

	_, err := st.AddNote(ctx, alice.ID, "alice's note")
	require.NoError(t, err)

	notes, err := st.ListNotes(ctx, bob.ID)
	require.NoError(t, err)
	require.Empty(t, notes)
}

func TestDeleteNoteRequiresOwnership(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, st, "alice@example.com")
	bob := seedUser(t, st, "bob@example.com")

	note, err := st.AddNote(ctx, alice.ID, "private")
	require.NoError(t, err)

	deleted, err := st.DeleteNote(ctx, note.ID, bob.ID)
	require.NoError(t, err)
	require.False(t, deleted)

	deleted, err = st.DeleteNote(ctx, note.ID, alice.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = st.DeleteNote(ctx, note.ID, alice.ID)
	require.NoError(t, err)
	require.False(t, deleted)
}
