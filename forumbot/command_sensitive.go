package forumbot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	sensitiveTypeOption   = "type"
	sensitiveInfoOption   = "info"
	sensitiveReasonOption = "reason"
	sensitiveUserOption   = "user"
)

// SensitiveType categorizes the kinds of sensitive information users
// may need to share with staff.
type SensitiveType string

const (
	SensitiveTypeIP       SensitiveType = "ip"
	SensitiveTypeEmail    SensitiveType = "email"
	SensitiveTypeLink     SensitiveType = "link"
	SensitiveTypeUsername SensitiveType = "username"
	SensitiveTypeOther    SensitiveType = "other"
)

// Classifier detects sensitive information in message content. The
// default NoopClassifier matches nothing; deployments plug in their own
// pattern and keyword tables.
type Classifier interface {
	// Classify returns the sensitive categories found in the text, or
	// an empty slice when the text is clean.
	Classify(text string) []SensitiveType
}

// NoopClassifier never matches anything.
type NoopClassifier struct{}

func (NoopClassifier) Classify(_ string) []SensitiveType {
	return nil
}

// infoEmbed returns the type-specific how-to embed shown alongside
// sensitive-info warnings and requests.
func infoEmbed(sensitiveType SensitiveType) *discordgo.MessageEmbed {
	footer := &discordgo.MessageEmbedFooter{
		Text: "Use /sensitive command to share this information securely",
	}
	switch sensitiveType {
	case SensitiveTypeIP:
		return &discordgo.MessageEmbed{
			Color:       colorInfo,
			Title:       "📍 How to Find Your IP Address",
			Description: "Follow these steps to safely locate your server IP address:",
			Fields: []*discordgo.MessageEmbedField{
				{
					Name:  "1️⃣ Access Control Panel",
					Value: "Log into your control panel at control.freeminecrafthost.com",
				},
				{
					Name:  "2️⃣ Navigate to Overview",
					Value: `Look for the "Server Information" or "Overview" section`,
				},
				{
					Name:  "3️⃣ Locate IP",
					Value: `Find the "IP Address" field (Format: xxx.xxx.xxx.xxx:port)`,
				},
				{
					Name:  "⚠️ Security Note",
					Value: "Never share your IP address in public channels",
				},
			},
			Footer: footer,
		}
	case SensitiveTypeEmail:
		return &discordgo.MessageEmbed{
			Color:       colorPost,
			Title:       "📧 How to Find Your Email",
			Description: "Follow these steps to locate your account email:",
			Fields: []*discordgo.MessageEmbedField{
				{
					Name:  "1️⃣ Open Profile",
					Value: "Enter the email you made the account with!",
				},
			},
			Footer: footer,
		}
	case SensitiveTypeLink:
		return &discordgo.MessageEmbed{
			Color:       colorError,
			Title:       "🔗 How to Find Your Server Link",
			Description: "Follow these steps to get your server control panel link:",
			Fields: []*discordgo.MessageEmbedField{
				{
					Name:  "1️⃣ Login",
					Value: "Log into your control panel",
				},
				{
					Name:  "2️⃣ Check URL",
					Value: "Look at your browser's address bar",
				},
				{
					Name:  "3️⃣ Copy Link",
					Value: "The format will be: control.freeminecrafthost.com/server/[ID]",
				},
				{
					Name:  "⚠️ Security Note",
					Value: "Only share this link with trusted staff members",
				},
			},
			Footer: footer,
		}
	case SensitiveTypeUsername:
		return &discordgo.MessageEmbed{
			Color:       0x9B59B6,
			Title:       "👤 How to Find Your Username",
			Description: "Follow these steps to locate your account username:",
			Fields: []*discordgo.MessageEmbedField{
				{
					Name:  "1️⃣ Open Profile",
					Value: "Click your profile in the top-right corner",
				},
				{
					Name:  "2️⃣ View Username",
					Value: "It will show your username!",
				},
			},
			Footer: footer,
		}
	default:
		return &discordgo.MessageEmbed{
			Color:       0xF1C40F,
			Title:       "🔒 Sharing Other Sensitive Information",
			Description: "Guidelines for sharing sensitive information:",
			Fields: []*discordgo.MessageEmbedField{
				{
					Name:  "❌ Never Share",
					Value: "Passwords, authentication tokens, or private keys",
				},
				{
					Name:  "✅ Use Secure Methods",
					Value: "Always use the /sensitive command",
				},
				{
					Name:  "⏳ Wait for Staff",
					Value: "Only share information when requested by staff",
				},
				{
					Name:  "❓ When Unsure",
					Value: "Ask staff about the security of specific information",
				},
			},
			Footer: footer,
		}
	}
}

// scanMessage checks a guild message for sensitive content. Matching
// messages are deleted and replaced with a warning plus the relevant
// how-to embed. Bot and staff messages are never scanned.
func (b *Bot) scanMessage(ctx context.Context, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if b.discord.hasStaffRole(m.Member) {
		return
	}

	categories := b.classifier.Classify(m.Content)
	if len(categories) == 0 {
		return
	}

	logger := b.logger.With(
		"channel_id", m.ChannelID,
		"user_id", m.Author.ID,
	)
	logger.InfoContext(
		ctx,
		"detected sensitive message content",
		"categories", categories,
	)

	if err := b.discord.session.ChannelMessageDelete(
		m.ChannelID,
		m.ID,
	); err != nil {
		logger.ErrorContext(ctx, "error deleting sensitive message", tint.Err(err))
		return
	}

	names := make([]string, 0, len(categories))
	for _, category := range categories {
		names = append(names, string(category))
	}

	warning := &discordgo.MessageEmbed{
		Color: 0xFF0000,
		Title: "⚠️ Sensitive Information Detected",
		Description: fmt.Sprintf(
			"<@%s>, your message contained sensitive information (%s) "+
				"and was removed for your security.",
			m.Author.ID,
			strings.Join(names, ", "),
		),
		Fields: []*discordgo.MessageEmbedField{
			{
				Name: "How to Share Sensitive Information",
				Value: "Please use the `/sensitive` command to securely " +
					"share sensitive information with staff.",
			},
		},
		Footer:    &discordgo.MessageEmbedFooter{Text: "This is for your security"},
		Timestamp: embedTimestamp(time.Now()),
	}

	if _, err := b.discord.session.ChannelMessageSendComplex(
		m.ChannelID, &discordgo.MessageSend{
			Content: fmt.Sprintf("<@%s>", m.Author.ID),
			Embeds: []*discordgo.MessageEmbed{
				warning,
				infoEmbed(categories[0]),
			},
		},
	); err != nil {
		logger.ErrorContext(ctx, "error sending sensitive warning", tint.Err(err))
	}
}

// handleSensitiveCommand handles `/sensitive`: relays the submission to
// the staff channel with the info spoilered, and confirms to the user
// with a reference ID.
func (b *Bot) handleSensitiveCommand(
	ctx context.Context,
	handler InteractionHandler,
) error {
	i := handler.GetInteraction()
	user := interactionUser(i)
	options := discordInteractionOptions(i)

	var submissionType, info string
	if opt, ok := options[sensitiveTypeOption]; ok {
		submissionType = opt.StringValue()
	}
	if opt, ok := options[sensitiveInfoOption]; ok {
		info = opt.StringValue()
	}

	if err := handler.Respond(
		ctx, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Flags: discordgo.MessageFlagsEphemeral,
			},
		},
	); err != nil {
		return fmt.Errorf("error acknowledging sensitive command: %w", err)
	}

	staffChannelID := b.config.Discord.StaffChannelID
	if staffChannelID == "" {
		content := "Error: Staff channel not configured. Please contact an administrator."
		_, err := handler.Edit(ctx, &discordgo.WebhookEdit{Content: &content})
		return err
	}

	referenceID := newReferenceID()

	staffEmbed := &discordgo.MessageEmbed{
		Color: colorStaff,
		Title: "🔒 Sensitive Information Submitted",
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Reference ID", Value: referenceID, Inline: true},
			{Name: "User", Value: fmt.Sprintf("<@%s>", user.ID), Inline: true},
			{Name: "Type", Value: submissionType, Inline: true},
			{Name: "Information", Value: fmt.Sprintf("||%s||", info)},
			{
				Name:   "Channel",
				Value:  fmt.Sprintf("<#%s>", i.ChannelID),
				Inline: true,
			},
			{
				Name:   "Timestamp",
				Value:  time.Now().UTC().Format(time.RFC3339),
				Inline: true,
			},
		},
		Timestamp: embedTimestamp(time.Now()),
	}

	if _, err := b.discord.session.ChannelMessageSendComplex(
		staffChannelID, &discordgo.MessageSend{
			Content: fmt.Sprintf(
				"New sensitive information submitted: ||%s|| \n Reference ID: %s",
				info,
				referenceID,
			),
			Embeds: []*discordgo.MessageEmbed{staffEmbed},
		},
	); err != nil {
		handler.Logger().ErrorContext(
			ctx,
			"error relaying sensitive submission",
			tint.Err(err),
		)
		content := "An error occurred while processing your sensitive " +
			"information. Please try again or contact staff directly."
		_, editErr := handler.Edit(ctx, &discordgo.WebhookEdit{Content: &content})
		return editErr
	}

	go b.auditSensitiveSubmission(referenceID, user, i.ChannelID, submissionType)

	confirmEmbed := &discordgo.MessageEmbed{
		Color:       0x00FF00,
		Title:       "✅ Information Securely Submitted",
		Description: "Your sensitive information has been securely submitted to staff.",
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:  "Reference ID",
				Value: fmt.Sprintf("Keep this ID for reference: `%s`", referenceID),
			},
			{
				Name: "Next Steps",
				Value: "Staff have been notified and will review your " +
					"submission. They will contact you if needed.",
			},
			{
				Name: "Security Note",
				Value: "Your submission is only visible to staff members " +
					"and yourself.",
			},
		},
		Timestamp: embedTimestamp(time.Now()),
	}

	return editView(ctx, handler, confirmEmbed, nil)
}

// auditSensitiveSubmission persists submission metadata. The submitted
// information itself is never written to the database.
func (b *Bot) auditSensitiveSubmission(
	referenceID string,
	user *discordgo.User,
	channelID string,
	submissionType string,
) {
	if b.db == nil {
		return
	}
	record := SensitiveSubmission{
		ReferenceID: referenceID,
		UserID:      user.ID,
		Username:    user.String(),
		ChannelID:   channelID,
		Type:        submissionType,
	}
	if err := b.db.Create(&record).Error; err != nil {
		b.logger.Error(
			"error creating sensitive submission record",
			tint.Err(err),
		)
	}
}

// handleRequestSensitiveCommand handles `/requestsensitive` (staff
// only): posts an instruction embed plus the type-specific how-to in
// the current channel, addressed to the target user. In a thread the
// thread starter is the implied target.
func (b *Bot) handleRequestSensitiveCommand(
	ctx context.Context,
	handler InteractionHandler,
) error {
	i := handler.GetInteraction()
	options := discordInteractionOptions(i)

	if err := handler.Respond(
		ctx, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Flags: discordgo.MessageFlagsEphemeral,
			},
		},
	); err != nil {
		return fmt.Errorf("error acknowledging request command: %w", err)
	}

	if !b.discord.hasStaffRole(i.Member) {
		content := "❌ This command is only available to staff members."
		_, err := handler.Edit(ctx, &discordgo.WebhookEdit{Content: &content})
		return err
	}

	targetUser := b.threadStarter(ctx, i.ChannelID)
	if targetUser == nil {
		if opt, ok := options[sensitiveUserOption]; ok {
			targetUser = opt.UserValue(nil)
		}
	}
	if targetUser == nil {
		content := "❌ Could not determine the target user. Please specify " +
			"a user or use this command in a thread."
		_, err := handler.Edit(ctx, &discordgo.WebhookEdit{Content: &content})
		return err
	}

	var requestType, reason string
	if opt, ok := options[sensitiveTypeOption]; ok {
		requestType = opt.StringValue()
	}
	if opt, ok := options[sensitiveReasonOption]; ok {
		reason = opt.StringValue()
	}

	requester := interactionUser(i)
	instructionEmbed := &discordgo.MessageEmbed{
		Color: colorPost,
		Title: "📬 Sensitive Information Request",
		Description: fmt.Sprintf(
			"Hello <@%s>, a staff member has requested some sensitive "+
				"information from you.",
			targetUser.ID,
		),
		Fields: []*discordgo.MessageEmbedField{
			{
				Name: "📋 Requested Information",
				Value: fmt.Sprintf(
					"Type: `%s`\nReason: %s",
					requestType,
					reason,
				),
			},
			{
				Name: "🔒 How to Submit",
				Value: "Please use the `/sensitive` command to securely " +
					"submit the requested information.\nThis ensures your " +
					"information is handled securely and only visible to " +
					"staff members.",
			},
			{
				Name: "⚠️ Important",
				Value: "Do not post sensitive information directly in the " +
					"chat.\nOnly use the `/sensitive` command to submit " +
					"this information.",
			},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text:    fmt.Sprintf("Requested by %s", requester.String()),
			IconURL: requester.AvatarURL(""),
		},
		Timestamp: embedTimestamp(time.Now()),
	}

	if _, err := b.discord.session.ChannelMessageSendComplex(
		i.ChannelID, &discordgo.MessageSend{
			Content: fmt.Sprintf("<@%s>", targetUser.ID),
			Embeds: []*discordgo.MessageEmbed{
				instructionEmbed,
				infoEmbed(SensitiveType(requestType)),
			},
		},
	); err != nil {
		handler.Logger().ErrorContext(
			ctx,
			"error sending sensitive request",
			tint.Err(err),
		)
		content := "❌ An error occurred while processing the request. Please try again."
		_, editErr := handler.Edit(ctx, &discordgo.WebhookEdit{Content: &content})
		return editErr
	}

	content := fmt.Sprintf("✅ Request sent to %s", targetUser.String())
	_, err := handler.Edit(ctx, &discordgo.WebhookEdit{Content: &content})
	return err
}

// threadStarter returns the author of a thread's starter message, or
// nil when the channel isn't a thread or the starter can't be fetched.
func (b *Bot) threadStarter(
	ctx context.Context,
	channelID string,
) *discordgo.User {
	channel, err := b.discord.session.Channel(channelID)
	if err != nil {
		b.logger.WarnContext(
			ctx,
			"unable to fetch channel",
			"channel_id", channelID,
			tint.Err(err),
		)
		return nil
	}
	if !channel.IsThread() {
		return nil
	}

	// a thread's starter message shares the thread's ID
	starter, err := b.discord.session.ChannelMessage(channelID, channelID)
	if err != nil {
		b.logger.WarnContext(
			ctx,
			"unable to fetch thread starter message",
			"channel_id", channelID,
			tint.Err(err),
		)
		return nil
	}
	return starter.Author
}
