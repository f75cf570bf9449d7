package conversation

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ostrago/gptcord/internal/models"
	"github.com/ostrago/gptcord/internal/storage"
)

func newService() (*Service, *storage.MemoryStorage) {
	store := storage.NewMemoryStorage()
	return NewService(store, zap.NewNop()), store
}

func TestEnsureUserIsIdempotent(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	first, err := svc.EnsureUser(ctx, "discord-1", "alice")
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	assert.Equal(t, "alice", first.Username)

	second, err := svc.EnsureUser(ctx, "discord-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestEnsureConversationReusedPerChannelUserPair(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	alice, err := svc.EnsureUser(ctx, "discord-1", "alice")
	require.NoError(t, err)
	bob, err := svc.EnsureUser(ctx, "discord-2", "bob")
	require.NoError(t, err)

	first, err := svc.EnsureConversation(ctx, "C1", alice.ID, "G1")
	require.NoError(t, err)
	assert.Equal(t, "G1", first.GuildID)

	again, err := svc.EnsureConversation(ctx, "C1", alice.ID, "G1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	// Same channel, different user: a distinct conversation.
	other, err := svc.EnsureConversation(ctx, "C1", bob.ID, "G1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestEnsureConversationKeepsOriginalGuildID(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	first, err := svc.EnsureConversation(ctx, "C1", "U1", "G1")
	require.NoError(t, err)

	again, err := svc.EnsureConversation(ctx, "C1", "U1", "G2")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "G1", again.GuildID)
}

func TestRecentHistoryReturnsLastWindowInOrder(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	conv, err := svc.EnsureConversation(ctx, "C1", "U1", "G1")
	require.NoError(t, err)

	for i := 1; i <= 15; i++ {
		role := models.RoleUser
		if i%2 == 0 {
			role = models.RoleAssistant
		}
		_, err := svc.AppendMessage(ctx, conv.ID, role, fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}

	history, err := svc.RecentHistory(ctx, conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 10)
	for i, msg := range history {
		assert.Equal(t, fmt.Sprintf("message %d", i+6), msg.Content)
	}
}

func TestRecentHistoryDefaultWindow(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	conv, err := svc.EnsureConversation(ctx, "C1", "U1", "")
	require.NoError(t, err)

	for i := 0; i < DefaultHistoryWindow+5; i++ {
		_, err := svc.AppendMessage(ctx, conv.ID, models.RoleUser, "m")
		require.NoError(t, err)
	}

	history, err := svc.RecentHistory(ctx, conv.ID, 0)
	require.NoError(t, err)
	assert.Len(t, history, DefaultHistoryWindow)
}

func TestRecordUsageFromMissingBaseline(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()

	// No stats record exists yet; the first increment counts from zero.
	require.NoError(t, svc.RecordUsage(ctx, 1, 1))
	require.NoError(t, svc.RecordUsage(ctx, 1, 1))

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalMessages)
	assert.Equal(t, int64(2), stats.APICalls)
}
