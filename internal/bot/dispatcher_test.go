package bot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ostrago/gptcord/internal/conversation"
	"github.com/ostrago/gptcord/internal/models"
	"github.com/ostrago/gptcord/internal/settings"
	"github.com/ostrago/gptcord/internal/storage"
)

// fakeGenerator records what it was invoked with and returns a canned
// response or error.
type fakeGenerator struct {
	response string
	err      error

	calls       int
	lastPrompt  string
	lastHistory []*models.Message
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string, history []*models.Message, personality, length string) (string, error) {
	g.calls++
	g.lastPrompt = prompt
	g.lastHistory = history
	if g.err != nil {
		return "", g.err
	}
	return g.response, nil
}

// fakeReplier records delivered replies while reusing the production
// state machine.
type fakeReplier struct {
	replyGate
	deferred  bool
	replies   []string
	ephemeral []bool
	edits     []string
	followUps []string
}

func (r *fakeReplier) Defer() error {
	if err := r.markDefer(); err != nil {
		return err
	}
	r.deferred = true
	return nil
}

func (r *fakeReplier) Reply(content string, ephemeral bool) error {
	if err := r.markReply(); err != nil {
		return err
	}
	r.replies = append(r.replies, content)
	r.ephemeral = append(r.ephemeral, ephemeral)
	return nil
}

func (r *fakeReplier) Edit(content string) error {
	if err := r.markEdit(); err != nil {
		return err
	}
	r.edits = append(r.edits, content)
	return nil
}

func (r *fakeReplier) FollowUp(content string) error {
	if err := r.markFollowUp(); err != nil {
		return err
	}
	r.followUps = append(r.followUps, content)
	return nil
}

type fixture struct {
	dispatcher *Dispatcher
	store      *storage.MemoryStorage
	generator  *fakeGenerator
}

func newFixture(gen *fakeGenerator) *fixture {
	logger := zap.NewNop()
	store := storage.NewMemoryStorage()
	return &fixture{
		dispatcher: NewDispatcher(
			conversation.NewService(store, logger),
			settings.NewResolver(store, logger),
			gen,
			10,
			1900,
			logger,
		),
		store:     store,
		generator: gen,
	}
}

func askCommand(userID, username, channelID, guildID, prompt string) Command {
	return Command{
		Name:      "ai",
		Options:   map[string]string{"prompt": prompt},
		UserID:    userID,
		Username:  username,
		ChannelID: channelID,
		GuildID:   guildID,
	}
}

func TestAskFirstContactCreatesEverything(t *testing.T) {
	f := newFixture(&fakeGenerator{response: "hi alice"})
	ctx := context.Background()
	r := &fakeReplier{}

	f.dispatcher.Handle(ctx, askCommand("alice-id", "alice", "C1", "G1", "hello"), r)

	// One deferred-then-edited reply, no follow-ups.
	assert.True(t, r.deferred)
	require.Equal(t, []string{"hi alice"}, r.edits)
	assert.Empty(t, r.replies)
	assert.Empty(t, r.followUps)

	// The backend saw the prompt with empty history.
	assert.Equal(t, 1, f.generator.calls)
	assert.Equal(t, "hello", f.generator.lastPrompt)
	assert.Empty(t, f.generator.lastHistory)

	// User, conversation and both messages were persisted.
	user, err := f.store.GetUserByDiscordID(ctx, "alice-id")
	require.NoError(t, err)
	require.NotNil(t, user)

	conv, err := f.store.GetConversation(ctx, "C1", user.ID)
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, "G1", conv.GuildID)

	msgs, err := f.store.RecentMessages(ctx, conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "hi alice", msgs[1].Content)

	stats, err := f.store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalMessages)
	assert.Equal(t, int64(1), stats.APICalls)
}

func TestAskReusesConversationAndPassesHistory(t *testing.T) {
	f := newFixture(&fakeGenerator{response: "answer"})
	ctx := context.Background()

	f.dispatcher.Handle(ctx, askCommand("alice-id", "alice", "C1", "G1", "first"), &fakeReplier{})
	f.dispatcher.Handle(ctx, askCommand("alice-id", "alice", "C1", "G1", "second"), &fakeReplier{})

	user, err := f.store.GetUserByDiscordID(ctx, "alice-id")
	require.NoError(t, err)
	conv, err := f.store.GetConversation(ctx, "C1", user.ID)
	require.NoError(t, err)

	// Both asks landed in the same conversation.
	msgs, err := f.store.RecentMessages(ctx, conv.ID, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 4)

	// The second call saw the first exchange as context, without the
	// new prompt duplicated.
	require.Len(t, f.generator.lastHistory, 2)
	assert.Equal(t, "first", f.generator.lastHistory[0].Content)
	assert.Equal(t, "answer", f.generator.lastHistory[1].Content)
}

func TestAskDistinctUsersGetDistinctConversations(t *testing.T) {
	f := newFixture(&fakeGenerator{response: "answer"})
	ctx := context.Background()

	f.dispatcher.Handle(ctx, askCommand("alice-id", "alice", "C1", "G1", "hi"), &fakeReplier{})
	f.dispatcher.Handle(ctx, askCommand("bob-id", "bob", "C1", "G1", "hi"), &fakeReplier{})

	alice, err := f.store.GetUserByDiscordID(ctx, "alice-id")
	require.NoError(t, err)
	bob, err := f.store.GetUserByDiscordID(ctx, "bob-id")
	require.NoError(t, err)

	aliceConv, err := f.store.GetConversation(ctx, "C1", alice.ID)
	require.NoError(t, err)
	bobConv, err := f.store.GetConversation(ctx, "C1", bob.ID)
	require.NoError(t, err)
	assert.NotEqual(t, aliceConv.ID, bobConv.ID)
}

func TestAskLongResponseIsChunked(t *testing.T) {
	// 5000 characters without newlines: the edit takes the first 1900
	// and ceil(5000/1900)-1 = 2 follow-ups carry the rest, in order.
	long := strings.Repeat("a", 5000)
	f := newFixture(&fakeGenerator{response: long})
	r := &fakeReplier{}

	f.dispatcher.Handle(context.Background(), askCommand("alice-id", "alice", "C1", "G1", "hello"), r)

	require.Len(t, r.edits, 1)
	assert.LessOrEqual(t, len(r.edits[0]), 1900)
	require.Len(t, r.followUps, 2)
	assert.Equal(t, long, r.edits[0]+r.followUps[0]+r.followUps[1])
}

func TestAskGenerationFailureEditsApology(t *testing.T) {
	f := newFixture(&fakeGenerator{err: errors.New("backend down")})
	ctx := context.Background()
	r := &fakeReplier{}

	f.dispatcher.Handle(ctx, askCommand("alice-id", "alice", "C1", "G1", "hello"), r)

	require.Len(t, r.edits, 1)
	assert.Contains(t, r.edits[0], "error generating a response")

	// No assistant message and no stats on a failed cycle.
	user, err := f.store.GetUserByDiscordID(ctx, "alice-id")
	require.NoError(t, err)
	conv, err := f.store.GetConversation(ctx, "C1", user.ID)
	require.NoError(t, err)
	msgs, err := f.store.RecentMessages(ctx, conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.RoleUser, msgs[0].Role)

	stats, err := f.store.GetStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalMessages)
	assert.Zero(t, stats.APICalls)
}

func TestAskBlankResponseEditsApology(t *testing.T) {
	// Discord rejects empty message content, so a whitespace-only
	// completion must take the generation-failure path, not an empty
	// edit followed by a second apology attempt.
	f := newFixture(&fakeGenerator{response: "   \n  "})
	ctx := context.Background()
	r := &fakeReplier{}

	f.dispatcher.Handle(ctx, askCommand("alice-id", "alice", "C1", "G1", "hello"), r)

	require.Equal(t, []string{generationApology}, r.edits)
	assert.Empty(t, r.followUps)

	user, err := f.store.GetUserByDiscordID(ctx, "alice-id")
	require.NoError(t, err)
	conv, err := f.store.GetConversation(ctx, "C1", user.ID)
	require.NoError(t, err)
	msgs, err := f.store.RecentMessages(ctx, conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.RoleUser, msgs[0].Role)

	stats, err := f.store.GetStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalMessages)
	assert.Zero(t, stats.APICalls)
}

func TestAskUsesGuildPersonality(t *testing.T) {
	gen := &recordingStyleGenerator{}
	f := newFixture(&fakeGenerator{response: "x"})
	logger := zap.NewNop()
	f.dispatcher = NewDispatcher(
		conversation.NewService(f.store, logger),
		settings.NewResolver(f.store, logger),
		gen,
		10,
		1900,
		logger,
	)
	ctx := context.Background()

	resolver := settings.NewResolver(f.store, logger)
	personality := "sarcastic"
	length := "short"
	_, err := resolver.Upsert(ctx, "G1", models.SettingsUpdate{
		Personality:    &personality,
		ResponseLength: &length,
	})
	require.NoError(t, err)

	f.dispatcher.Handle(ctx, askCommand("alice-id", "alice", "C1", "G1", "hello"), &fakeReplier{})

	assert.Equal(t, "sarcastic", gen.personality)
	assert.Equal(t, "short", gen.length)
}

type recordingStyleGenerator struct {
	personality string
	length      string
}

func (g *recordingStyleGenerator) Generate(ctx context.Context, prompt string, history []*models.Message, personality, length string) (string, error) {
	g.personality = personality
	g.length = length
	return "ok", nil
}

func TestModeCommandCreatesSettingsAndRepliesEphemeral(t *testing.T) {
	f := newFixture(&fakeGenerator{})
	ctx := context.Background()
	r := &fakeReplier{}

	f.dispatcher.Handle(ctx, Command{
		Name:      "aimode",
		Options:   map[string]string{"mode": "required"},
		UserID:    "alice-id",
		Username:  "alice",
		ChannelID: "C1",
		GuildID:   "G1",
	}, r)

	require.Len(t, r.replies, 1)
	assert.Contains(t, r.replies[0], "ONLY respond when summoned")
	assert.True(t, r.ephemeral[0])
	assert.False(t, r.deferred)

	stored, err := f.store.GetGuildSettings(ctx, "G1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.SlashRequired, stored.SlashMode)
	// Defaults backfilled on first write.
	assert.Equal(t, "medium", stored.ResponseLength)
}

func TestModeCommandInDMUsesSentinelGuild(t *testing.T) {
	f := newFixture(&fakeGenerator{})
	ctx := context.Background()
	r := &fakeReplier{}

	f.dispatcher.Handle(ctx, Command{
		Name:      "aimode",
		Options:   map[string]string{"mode": "disabled"},
		UserID:    "alice-id",
		Username:  "alice",
		ChannelID: "D1",
	}, r)

	stored, err := f.store.GetGuildSettings(ctx, models.DMGuildID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.SlashDisabled, stored.SlashMode)
}

func TestModeCommandUnknownModeYieldsApology(t *testing.T) {
	f := newFixture(&fakeGenerator{})
	r := &fakeReplier{}

	f.dispatcher.Handle(context.Background(), Command{
		Name:    "aimode",
		Options: map[string]string{"mode": "bogus"},
		GuildID: "G1",
	}, r)

	require.Len(t, r.replies, 1)
	assert.Equal(t, genericApology, r.replies[0])
}

func TestActivateAddsChannelOnce(t *testing.T) {
	f := newFixture(&fakeGenerator{})
	ctx := context.Background()

	cmd := Command{Name: "activate", UserID: "u", ChannelID: "C1", GuildID: "G1"}
	f.dispatcher.Handle(ctx, cmd, &fakeReplier{})
	f.dispatcher.Handle(ctx, cmd, &fakeReplier{})

	stored, err := f.store.GetGuildSettings(ctx, "G1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, []string{"C1"}, stored.ActivatedChannels)
	assert.Equal(t, models.SlashActivated, stored.SlashMode)
}

func TestDeactivateRemovesChannel(t *testing.T) {
	f := newFixture(&fakeGenerator{})
	ctx := context.Background()

	f.dispatcher.Handle(ctx, Command{Name: "activate", ChannelID: "C1", GuildID: "G1"}, &fakeReplier{})
	f.dispatcher.Handle(ctx, Command{Name: "activate", ChannelID: "C2", GuildID: "G1"}, &fakeReplier{})
	f.dispatcher.Handle(ctx, Command{Name: "deactivate", ChannelID: "C1", GuildID: "G1"}, &fakeReplier{})

	stored, err := f.store.GetGuildSettings(ctx, "G1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, []string{"C2"}, stored.ActivatedChannels)
}

func TestDeactivateWithoutSettingsRepliesNoSettings(t *testing.T) {
	f := newFixture(&fakeGenerator{})
	ctx := context.Background()
	r := &fakeReplier{}

	f.dispatcher.Handle(ctx, Command{Name: "deactivate", ChannelID: "C1", GuildID: "G1"}, r)

	require.Len(t, r.replies, 1)
	assert.Contains(t, r.replies[0], "No settings found")

	stored, err := f.store.GetGuildSettings(ctx, "G1")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestUnknownCommandRepliesWithHelp(t *testing.T) {
	f := newFixture(&fakeGenerator{})
	r := &fakeReplier{}

	f.dispatcher.Handle(context.Background(), Command{Name: "bogus"}, r)

	require.Len(t, r.replies, 1)
	assert.Equal(t, helpMessage, r.replies[0])
	assert.True(t, r.ephemeral[0])
}

func TestAskMissingPromptYieldsApologyWithoutDefer(t *testing.T) {
	f := newFixture(&fakeGenerator{response: "never"})
	r := &fakeReplier{}

	f.dispatcher.Handle(context.Background(), Command{Name: "ai", GuildID: "G1"}, r)

	assert.Zero(t, f.generator.calls)
	require.Len(t, r.replies, 1)
	assert.Equal(t, genericApology, r.replies[0])
}
