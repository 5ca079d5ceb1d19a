package forumbot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"
)

// newsPageLimit is the number of recent news discussions fetched per
// check. Only posts inside the time radius are announced, so a small
// page is enough.
const newsPageLimit = 5

// NewsWatcher periodically polls the forum's news tag and announces
// fresh posts to the configured channel. A post is announced at most
// once, tracked by a seen-ID set that is pruned alongside the time
// radius.
type NewsWatcher struct {
	bot    *Bot
	config *NewsConfig

	// seen maps announced discussion IDs to their creation time, so
	// stale entries can be pruned.
	seen map[string]time.Time

	// limiter spaces out channel sends to stay clear of rate limits
	limiter *rate.Limiter

	now    func() time.Time
	logger *slog.Logger
}

func newNewsWatcher(b *Bot) *NewsWatcher {
	return &NewsWatcher{
		bot:     b,
		config:  b.config.News,
		seen:    map[string]time.Time{},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		now:     time.Now,
		logger:  b.logger.With(loggerNameKey, "news_watcher"),
	}
}

// Run polls for news until the context is canceled. The first check
// runs immediately.
func (n *NewsWatcher) Run(ctx context.Context) {
	n.logger.InfoContext(
		ctx,
		"news watcher started",
		"interval", n.config.CheckInterval,
		"time_radius", n.config.TimeRadius,
	)

	n.check(ctx)

	ticker := time.NewTicker(n.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			n.logger.InfoContext(ctx, "news watcher stopped")
			return
		case <-ticker.C:
			n.check(ctx)
		}
	}
}

// check fetches recent news discussions and announces any created
// within the time radius that haven't been posted yet.
func (n *NewsWatcher) check(ctx context.Context) {
	channelID := n.bot.config.Discord.NewsChannelID

	botUserID := n.bot.config.Discord.ApplicationID
	if !n.bot.discord.channelPermissionsOK(botUserID, channelID) {
		n.logger.WarnContext(
			ctx,
			"missing required permissions in news channel",
			"channel_id", channelID,
		)
		return
	}

	posts, err := n.bot.forum.RecentNews(
		ctx,
		n.bot.config.Flarum.NewsTag,
		newsPageLimit,
	)
	if err != nil {
		n.logger.ErrorContext(ctx, "error checking for news", tint.Err(err))
		return
	}
	if len(posts) == 0 {
		return
	}

	currentTime := n.now()

	// oldest first, so announcements land in chronological order
	for i := len(posts) - 1; i >= 0; i-- {
		post := posts[i]

		if currentTime.Sub(post.CreatedAt) > n.config.TimeRadius {
			continue
		}
		if _, announced := n.seen[post.ID]; announced {
			continue
		}
		n.seen[post.ID] = post.CreatedAt

		n.announce(ctx, channelID, post)
	}

	n.prune(currentTime)
}

// announce fetches the full discussion (for the rendered first post)
// and sends the news embed.
func (n *NewsWatcher) announce(ctx context.Context, channelID string, post Post) {
	if err := n.limiter.Wait(ctx); err != nil {
		return
	}

	full, err := n.bot.forum.FetchDiscussion(ctx, post.ID)
	if err != nil {
		n.logger.ErrorContext(
			ctx,
			"error fetching news discussion",
			"discussion_id", post.ID,
			tint.Err(err),
		)
		full = post
	}

	_, err = n.bot.discord.session.ChannelMessageSendComplex(
		channelID, &discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{newsEmbed(full)},
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.Button{
							Label: "View Full Post",
							Style: discordgo.LinkButton,
							URL:   full.URL,
						},
					},
				},
			},
		},
	)
	if err != nil {
		n.logger.ErrorContext(
			ctx,
			"error announcing news post",
			"discussion_id", post.ID,
			tint.Err(err),
		)
		return
	}
	n.logger.InfoContext(
		ctx,
		"announced news post",
		"discussion_id", post.ID,
		"title", full.Title,
	)
}

// prune drops seen IDs older than the time radius; they can no longer
// be re-announced anyway.
func (n *NewsWatcher) prune(currentTime time.Time) {
	for id, createdAt := range n.seen {
		if currentTime.Sub(createdAt) > n.config.TimeRadius {
			delete(n.seen, id)
		}
	}
}

// newsEmbed renders a news discussion as an announcement embed.
func newsEmbed(post Post) *discordgo.MessageEmbed {
	title := post.Title
	if title == "" {
		title = "Untitled News Post"
	}

	embed := &discordgo.MessageEmbed{
		Color:     colorStaff,
		Title:     "📢 " + title,
		URL:       post.URL,
		Timestamp: embedTimestamp(post.CreatedAt),
	}

	if body := post.PlainText(); body != "" {
		embed.Description = truncateWithEllipsis(body, maxEmbedBody)
	}

	if post.Author.Name != "" {
		embed.Author = &discordgo.MessageEmbedAuthor{
			Name:    post.Author.Name,
			IconURL: post.Author.AvatarURL,
			URL:     post.Author.ProfileURL,
		}
	}

	if len(post.Tags) > 0 {
		tagValue := ""
		for i, tag := range post.Tags {
			if i > 0 {
				tagValue += " "
			}
			tagValue += fmt.Sprintf("`%s`", tag)
		}
		embed.Fields = append(
			embed.Fields, &discordgo.MessageEmbedField{
				Name:  "Categories",
				Value: tagValue,
			},
		)
	}

	embed.Fields = append(
		embed.Fields,
		&discordgo.MessageEmbedField{
			Name:   "Posted",
			Value:  formatDiscussionDate(post.CreatedAt),
			Inline: true,
		},
		&discordgo.MessageEmbedField{
			Name:   "Comments",
			Value:  fmt.Sprintf("%d", post.CommentCount),
			Inline: true,
		},
	)

	embed.Footer = &discordgo.MessageEmbedFooter{
		Text: fmt.Sprintf(
			"News Post #%s • %s",
			post.ID,
			formatDiscussionDate(post.CreatedAt),
		),
	}

	return embed
}
