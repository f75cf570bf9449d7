package bot

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// replyGate enforces the reply state machine shared by every Replier
// implementation. The interaction interface forbids replying twice and
// editing without a prior defer; tracking the state here prevents both
// structurally.
type replyGate struct {
	mu    sync.Mutex
	state ReplyState
}

func (g *replyGate) State() ReplyState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *replyGate) markDefer() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateReceived {
		return fmt.Errorf("cannot defer: reply already in progress")
	}
	g.state = StateDeferred
	return nil
}

func (g *replyGate) markReply() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateReceived {
		return fmt.Errorf("cannot reply: interaction already acknowledged")
	}
	g.state = StateReplied
	return nil
}

func (g *replyGate) markEdit() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateDeferred {
		return fmt.Errorf("cannot edit: no deferred reply outstanding")
	}
	g.state = StateReplied
	return nil
}

func (g *replyGate) markFollowUp() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateReplied {
		return fmt.Errorf("cannot follow up: no primary reply delivered")
	}
	return nil
}

// interactionReplier delivers replies for one Discord interaction.
type interactionReplier struct {
	replyGate
	session     *discordgo.Session
	interaction *discordgo.Interaction
}

func newInteractionReplier(session *discordgo.Session, interaction *discordgo.Interaction) *interactionReplier {
	return &interactionReplier{session: session, interaction: interaction}
}

func (r *interactionReplier) Defer() error {
	if err := r.markDefer(); err != nil {
		return err
	}
	return r.session.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
}

func (r *interactionReplier) Reply(content string, ephemeral bool) error {
	if err := r.markReply(); err != nil {
		return err
	}
	data := &discordgo.InteractionResponseData{Content: content}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return r.session.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
}

func (r *interactionReplier) Edit(content string) error {
	if err := r.markEdit(); err != nil {
		return err
	}
	_, err := r.session.InteractionResponseEdit(r.interaction, &discordgo.WebhookEdit{
		Content: &content,
	})
	return err
}

func (r *interactionReplier) FollowUp(content string) error {
	if err := r.markFollowUp(); err != nil {
		return err
	}
	_, err := r.session.FollowupMessageCreate(r.interaction, true, &discordgo.WebhookParams{
		Content: content,
	})
	return err
}
