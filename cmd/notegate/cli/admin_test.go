package cli_test

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/notegate/notegate/cmd/notegate/cli"
	"github.com/notegate/notegate/internal/store"
	_ "github.com/notegate/notegate/testing"
)

var cliDBCounter int

func newCLI(t *testing.T) (*cli.AdminCLI, *store.Store) {
	t.Helper()
	cliDBCounter++
	handle, err := sql.Open("sqlite", fmt.Sprintf("file:clitest%d?mode=memory&cache=shared", cliDBCounter))
	require.NoError(t, err)
	handle.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = handle.Close() })

	st := store.New(handle, nil, nil)
	require.NoError(t, st.InitSchema(context.Background()))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return cli.NewAdminCLI(st, logger), st
}

func TestInitAdminStagesGrantForNewUser(t *testing.T) {
	adminCLI, st := newCLI(t)
	ctx := context.Background()

	require.NoError(t, adminCLI.InitAdmin(ctx, "future@example.com"))

	entries, err := st.ListAllowedEmails(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, entries[0].IsAdminGrant)
	require.Equal(t, "cli", entries[0].AddedBy)

	// First login picks the grant up.
	user, err := st.GetOrCreateUser(ctx, "future@example.com", "Future Admin")
	require.NoError(t, err)
	require.True(t, user.IsAdmin)
}

func TestInitAdminPromotesExistingUser(t *testing.T) {
	adminCLI, st := newCLI(t)
	ctx := context.Background()

	require.NoError(t, st.AddAllowedEmail(ctx, "user@example.com", "cli", false))
	user, err := st.GetOrCreateUser(ctx, "user@example.com", "User")
	require.NoError(t, err)
	require.False(t, user.IsAdmin)

	require.NoError(t, adminCLI.InitAdmin(ctx, "user@example.com"))

	isAdmin, err := st.IsAdmin(ctx, "user@example.com")
	require.NoError(t, err)
	require.True(t, isAdmin)
}

func TestInitAdminRequiresEmail(t *testing.T) {
	adminCLI, _ := newCLI(t)
	require.Error(t, adminCLI.InitAdmin(context.Background(), ""))
}

func TestMakeAdminFailsForUnknownUser(t *testing.T) {
	adminCLI, _ := newCLI(t)
	err := adminCLI.MakeAdmin(context.Background(), "ghost@example.com")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must log in first")
}

func TestListUsersOutput(t *testing.T) {
	adminCLI, st := newCLI(t)
	ctx := context.Background()

	require.NoError(t, st.AddAllowedEmail(ctx, "user@example.com", "cli", false))
	_, err := st.GetOrCreateUser(ctx, "user@example.com", "Listed User")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, adminCLI.ListUsers(ctx, &buf))

	out := buf.String()
	require.True(t, strings.Contains(out, "EMAIL"))
	require.True(t, strings.Contains(out, "user@example.com"))
	require.True(t, strings.Contains(out, "Listed User"))
}
