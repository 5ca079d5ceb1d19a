package forumbot

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// editView replaces the interaction response's embed and components.
// Passing nil components clears any select menu or buttons on the
// message.
func editView(
	ctx context.Context,
	handler InteractionHandler,
	embed *discordgo.MessageEmbed,
	components []discordgo.MessageComponent,
) error {
	if components == nil {
		components = []discordgo.MessageComponent{}
	}
	embeds := []*discordgo.MessageEmbed{embed}
	_, err := handler.Edit(
		ctx, &discordgo.WebhookEdit{
			Embeds:     &embeds,
			Components: &components,
		},
	)
	return err
}

// handleSearchCommand handles `/search`: defers, queries the forum,
// caches the result set and renders the results view.
func (b *Bot) handleSearchCommand(
	ctx context.Context,
	handler InteractionHandler,
) error {
	i := handler.GetInteraction()
	user := interactionUser(i)

	var query string
	if opt, ok := discordInteractionOptions(i)[searchCommandQueryOption]; ok {
		query = opt.StringValue()
	}

	if err := handler.Respond(
		ctx, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		},
	); err != nil {
		return fmt.Errorf("error acknowledging search command: %w", err)
	}

	results, err := b.forum.Search(ctx, b.config.Flarum.HelpTag, query)
	if err != nil {
		handler.Logger().ErrorContext(
			ctx,
			"error searching help center",
			"query", query,
			tint.Err(err),
		)
		if editErr := editView(ctx, handler, searchErrorView(), nil); editErr != nil {
			handler.Logger().ErrorContext(
				ctx,
				"error sending search error response",
				tint.Err(editErr),
			)
		}
		return nil
	}

	session, ok := beginSearch(b.searchCache, user.ID, query, results)
	if !ok {
		return editView(ctx, handler, noResultsView(query), nil)
	}

	embed, components := searchResultsView(session)
	return editView(ctx, handler, embed, components)
}

// handlePostSelection handles the result select menu: resolves the
// chosen post against the acting user's cached session and renders the
// detail view.
func (b *Bot) handlePostSelection(
	ctx context.Context,
	handler InteractionHandler,
) error {
	i := handler.GetInteraction()
	user := interactionUser(i)

	values := i.MessageComponentData().Values
	if len(values) == 0 {
		return errors.New("no value in select menu interaction")
	}
	postID := values[0]

	if err := handler.Respond(
		ctx, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredMessageUpdate,
		},
	); err != nil {
		return fmt.Errorf("error acknowledging post selection: %w", err)
	}

	post, err := resolveSelect(b.searchCache, user.ID, postID)
	switch {
	case errors.Is(err, ErrSessionExpired):
		return editView(ctx, handler, sessionExpiredView(), nil)
	case errors.Is(err, ErrPostNotFound):
		return editView(ctx, handler, postNotFoundView(), nil)
	case err != nil:
		return err
	}

	embed, components := postDetailView(post)
	return editView(ctx, handler, embed, components)
}

// handleBackToResults re-renders the results view from the acting
// user's cached session.
func (b *Bot) handleBackToResults(
	ctx context.Context,
	handler InteractionHandler,
) error {
	i := handler.GetInteraction()
	user := interactionUser(i)

	if err := handler.Respond(
		ctx, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredMessageUpdate,
		},
	); err != nil {
		return fmt.Errorf("error acknowledging back button: %w", err)
	}

	session, err := resolveBack(b.searchCache, user.ID)
	if errors.Is(err, ErrSessionExpired) {
		return editView(ctx, handler, sessionExpiredView(), nil)
	}
	if err != nil {
		return err
	}

	embed, components := searchResultsView(session)
	return editView(ctx, handler, embed, components)
}

// handleNewSearch replaces the message with the new-search prompt. The
// cached session is left untouched.
func (b *Bot) handleNewSearch(
	ctx context.Context,
	handler InteractionHandler,
) error {
	return handler.Respond(
		ctx, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseUpdateMessage,
			Data: &discordgo.InteractionResponseData{
				Embeds:     []*discordgo.MessageEmbed{newSearchPromptView()},
				Components: []discordgo.MessageComponent{},
			},
		},
	)
}
