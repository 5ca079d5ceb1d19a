package forumbot

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Embed colors, shared across the search, news and staff views.
const (
	colorInfo  = 0x3498DB
	colorPost  = 0x2ECC71
	colorError = 0xE74C3C
	colorStaff = 0xFF9900
)

const (
	maxMenuOptions   = 25
	maxSummaryPosts  = 5
	maxEmbedBody     = 4000
	maxOptionLabel   = 100
	selectMenuPrompt = "Select a help center post to view"
)

func formatDiscussionDate(t time.Time) string {
	if t.IsZero() {
		return "Unknown date"
	}
	return t.Format("Jan 2, 2006, 3:04 PM")
}

func embedTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// searchResultsView renders the summary embed (first 5 posts) and the
// select menu (first 25 posts, original order).
func searchResultsView(session SearchSession) (
	*discordgo.MessageEmbed,
	[]discordgo.MessageComponent,
) {
	posts := session.Results

	title := "FreeMinecraftHost Help Center Posts"
	description := fmt.Sprintf("Found **%d** help center posts.", len(posts))
	if session.Query != "" {
		title = fmt.Sprintf("Help Center Search Results: %q", session.Query)
		description = fmt.Sprintf(
			"Found **%d** help center posts matching your query.",
			len(posts),
		)
	}

	summaryCount := len(posts)
	if summaryCount > maxSummaryPosts {
		summaryCount = maxSummaryPosts
	}
	fields := make([]*discordgo.MessageEmbedField, 0, summaryCount)
	for i := 0; i < summaryCount; i++ {
		post := posts[i]
		name := post.Title
		if name == "" {
			name = "Untitled"
		}
		fields = append(
			fields, &discordgo.MessageEmbedField{
				Name: fmt.Sprintf(
					"%d. %s",
					i+1,
					truncateWithEllipsis(name, maxOptionLabel),
				),
				Value: fmt.Sprintf(
					"Posted: %s | Comments: %d",
					formatDiscussionDate(post.CreatedAt),
					post.CommentCount,
				),
			},
		)
	}

	embed := &discordgo.MessageEmbed{
		Color:       colorInfo,
		Title:       title,
		Description: description,
		Fields:      fields,
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Select a help center post from the dropdown menu below",
		},
		Timestamp: embedTimestamp(time.Now()),
	}

	menuCount := len(posts)
	if menuCount > maxMenuOptions {
		menuCount = maxMenuOptions
	}
	options := make([]discordgo.SelectMenuOption, 0, menuCount)
	for i := 0; i < menuCount; i++ {
		post := posts[i]
		label := post.Title
		if label == "" {
			label = fmt.Sprintf("Help Center Post #%s", post.ID)
		}
		emoji := "📝"
		if i < 9 {
			emoji = fmt.Sprintf("%d️⃣", i+1)
		}
		options = append(
			options, discordgo.SelectMenuOption{
				Label: truncateWithEllipsis(label, maxOptionLabel),
				Value: post.ID,
				Description: fmt.Sprintf(
					"Posted: %s",
					formatDiscussionDate(post.CreatedAt),
				),
				Emoji: &discordgo.ComponentEmoji{Name: emoji},
			},
		)
	}

	components := []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.SelectMenu{
					MenuType:    discordgo.StringSelectMenu,
					CustomID:    customIDSelectPost,
					Placeholder: selectMenuPrompt,
					Options:     options,
				},
			},
		},
	}

	return embed, components
}

// postDetailView renders the full post embed with the link/back/new
// action row.
func postDetailView(post Post) (
	*discordgo.MessageEmbed,
	[]discordgo.MessageComponent,
) {
	title := post.Title
	if title == "" {
		title = "Untitled Help Center Post"
	}

	embed := &discordgo.MessageEmbed{
		Color:     colorPost,
		Title:     title,
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
				Name:  "Tags",
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
			"Help Center Post #%s • %s",
			post.ID,
			formatDiscussionDate(post.CreatedAt),
		),
	}

	components := []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label: "View on Website",
					Style: discordgo.LinkButton,
					URL:   post.URL,
					Emoji: &discordgo.ComponentEmoji{Name: "🔗"},
				},
				discordgo.Button{
					Label:    "Back to Results",
					Style:    discordgo.SecondaryButton,
					CustomID: customIDBackToResults,
					Emoji:    &discordgo.ComponentEmoji{Name: "↩️"},
				},
				discordgo.Button{
					Label:    "New Search",
					Style:    discordgo.PrimaryButton,
					CustomID: customIDNewSearch,
					Emoji:    &discordgo.ComponentEmoji{Name: "🔍"},
				},
			},
		},
	}

	return embed, components
}

func noResultsView(query string) *discordgo.MessageEmbed {
	description := "No help center posts found."
	footer := "Check back later for new help center posts"
	if query != "" {
		description = fmt.Sprintf(
			"No help center posts found for query: **%s**",
			query,
		)
		footer = "Try a different search term"
	}
	return &discordgo.MessageEmbed{
		Color:       colorError,
		Title:       "No Help Center Posts Found",
		Description: description,
		Footer:      &discordgo.MessageEmbedFooter{Text: footer},
		Timestamp:   embedTimestamp(time.Now()),
	}
}

func sessionExpiredView() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Color:       colorError,
		Title:       "Session Expired",
		Description: "Your help center post results have expired.",
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Please try searching again",
		},
		Timestamp: embedTimestamp(time.Now()),
	}
}

func postNotFoundView() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Color:       colorError,
		Title:       "Help Center Post Not Found",
		Description: "Could not find the selected help center post.",
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Please try searching again",
		},
		Timestamp: embedTimestamp(time.Now()),
	}
}

func searchErrorView() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Color:       colorError,
		Title:       "Search Error",
		Description: "An error occurred while searching the help center.",
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Please try again later",
		},
		Timestamp: embedTimestamp(time.Now()),
	}
}

func genericErrorView(description string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Color:       colorError,
		Title:       "Error",
		Description: description,
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Please try again later",
		},
		Timestamp: embedTimestamp(time.Now()),
	}
}

func newSearchPromptView() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Color: colorInfo,
		Title: "Search FreeMinecraftHost Help Center",
		Description: "To search the help center, use the `/search` " +
			"command followed by your query.",
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Type /search in the message box to begin",
		},
		Timestamp: embedTimestamp(time.Now()),
	}
}
