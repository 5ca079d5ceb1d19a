package forumbot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	tutorialCustomIDPrefix  = "tutorial_"
	tutorialRestartCustomID = "tutorial_restart"
	tutorialUserOption      = "user"
	tutorialVideoURL        = "https://youtu.be/g5PHQ07Lki4?si=w28qj8xHpMmEahKx"
)

type tutorialStep struct {
	title       string
	description string
	fields      []*discordgo.MessageEmbedField
}

// tutorialSteps is the static getting-started walkthrough, paged one
// step per embed.
var tutorialSteps = []tutorialStep{
	{
		title: "👋 Welcome to FreeMinecraftHost!",
		description: "Let's get you started with creating your own free " +
			"Minecraft server! This guide will walk you through every step.",
		fields: []*discordgo.MessageEmbedField{
			{
				Name: "📚 What You'll Learn",
				Value: "• How to create your account\n• Setting up your " +
					"first server\n• Managing your server\n• Understanding " +
					"the coin system\n• Handling server suspension\n" +
					"• Getting support when needed",
			},
		},
	},
	{
		title:       "🎮 Step 1: Creating Your Account",
		description: "First, let's get your account set up on FreeMinecraftHost.com",
		fields: []*discordgo.MessageEmbedField{
			{
				Name: "📝 Account Creation",
				Value: "1. Visit FreeMinecraftHost.com\n2. Click the " +
					`"Play Now!" button` + "\n3. Fill in your registration " +
					"details\n4. Verify your email if required\n5. Log in " +
					"to your new account",
			},
			{
				Name: "⚠️ Important Note",
				Value: "Keep your login credentials safe and secure. Never " +
					"share your password with anyone!",
			},
		},
	},
	{
		title:       "🚀 Step 2: Creating Your First Server",
		description: "Now let's create your very own Minecraft server!",
		fields: []*discordgo.MessageEmbedField{
			{
				Name: "🔧 Server Setup",
				Value: `1. Click "No servers yet. Why not create one?"` +
					"\n2. Choose a server name\n3. Select your preferred " +
					"location\n4. Choose your Minecraft version\n5. Select " +
					"server resources (up to 8GB RAM available)\n6. Click " +
					`"Create Server"`,
			},
			{
				Name: "⏳ Processing",
				Value: "Wait about 5 seconds while your server is being " +
					"created. The page will refresh automatically when ready.",
			},
		},
	},
	{
		title:       "💰 Step 3: Understanding Coins",
		description: "Learn about our coin system that keeps your server running!",
		fields: []*discordgo.MessageEmbedField{
			{
				Name: "🪙 What Are Coins?",
				Value: "• Coins are the currency that keeps your server " +
					"online\n• 1 coin = 5 minutes of server uptime\n• Your " +
					"server uses 1 coin every 5 minutes while running",
			},
			{
				Name: "💫 How to Earn Coins",
				Value: "1. Watch ads on our website to earn free coins\n" +
					"2. Use our mobile app to earn coins through ads\n" +
					"3. Purchase coins directly for instant credit",
			},
			{
				Name: "📊 Coin Management",
				Value: "Keep an eye on your coin balance in the control " +
					"panel to ensure your server stays online",
			},
		},
	},
	{
		title:       "⚙️ Step 4: Managing Your Server",
		description: "Let's learn how to access and control your server!",
		fields: []*discordgo.MessageEmbedField{
			{
				Name: "🎛️ Control Panel Access",
				Value: "1. Open the Control Panel in a new tab\n2. Log in " +
					"with your account credentials\n3. Select your server " +
					`from the list` + "\n4. Navigate to the \"Terminal\" tab",
			},
			{
				Name: "▶️ Starting Your Server",
				Value: "Look for the Start icon in the top right corner of " +
					"the Terminal tab and click it to launch your server",
			},
		},
	},
	{
		title:       "🌐 Step 5: Connecting to Your Server",
		description: "Time to get your server's IP address and start playing!",
		fields: []*discordgo.MessageEmbedField{
			{
				Name: "📋 Finding Your IP",
				Value: "1. Go to the Terminal tab in your Control Panel\n" +
					`2. Look for "Server Address" on the right side` +
					"\n3. Copy the IP address shown",
			},
			{
				Name: "🎮 Joining the Server",
				Value: "1. Open Minecraft\n2. Click \"Multiplayer\"\n" +
					"3. Click \"Add Server\"\n4. Paste your server IP\n" +
					"5. Click \"Done\" and join!",
			},
		},
	},
	{
		title: "⚠️ Step 6: Handling Server Suspension",
		description: "If your server gets suspended, don't worry! Here's " +
			"how to fix it:",
		fields: []*discordgo.MessageEmbedField{
			{
				Name: "❓ Why Was My Server Suspended?",
				Value: "Servers are suspended when they run out of coins. " +
					"This is a temporary state and can be easily fixed!",
			},
			{
				Name: "🔄 How to Reactivate Your Server",
				Value: "1. Ensure you have at least 5 coins in your " +
					"account\n2. Go to your control panel\n3. Navigate to " +
					"your suspended server\n4. Click the \"Activate\" " +
					"button\n5. Your server will be back online immediately!",
			},
			{
				Name: "💡 Prevention Tips",
				Value: "• Keep a minimum balance of 50 coins\n• Enable " +
					"email notifications for low coin balance\n• Regularly " +
					"check your coin balance\n• Consider purchasing coins " +
					"in bulk for better value",
			},
		},
	},
	{
		title:       "🔍 Getting Help",
		description: "Need assistance? We've got you covered!",
		fields: []*discordgo.MessageEmbedField{
			{
				Name:  "📖 Help Center",
				Value: "Use `/search` to find detailed guides about any topic",
			},
			{
				Name: "❓ Support",
				Value: "Create a ticket if you need direct assistance from " +
					"our staff team",
			},
			{
				Name:  "🔒 Sharing Sensitive Info",
				Value: "Use `/sensitive` to safely share server details with staff",
			},
		},
	},
	{
		title: "✨ Final Tips & Best Practices",
		description: "Some important tips to help you manage your server " +
			"successfully:",
		fields: []*discordgo.MessageEmbedField{
			{
				Name: "💾 Backups",
				Value: "Regular backups are important! Use the backup " +
					"feature in your control panel",
			},
			{
				Name: "👥 Player Management",
				Value: "Use whitelist and operator commands to manage your " +
					"players effectively",
			},
			{
				Name: "🔄 Updates",
				Value: "Keep your server updated to the latest version for " +
					"best performance and security",
			},
			{
				Name: "🎉 Ready to Play?",
				Value: "Your server is now ready! If you need any help, " +
					"don't hesitate to ask in the appropriate channels!",
			},
		},
	},
}

func tutorialStepEmbed(index int) *discordgo.MessageEmbed {
	step := tutorialSteps[index]
	return &discordgo.MessageEmbed{
		Color:       colorInfo,
		Title:       step.title,
		Description: step.description,
		Fields:      step.fields,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf(
				"Tutorial Step %d/%d",
				index+1,
				len(tutorialSteps),
			),
		},
		Timestamp: embedTimestamp(time.Now()),
	}
}

// tutorialNavigationButtons builds the prev/next/video row, with the
// restart button added on the final step. The current step index is
// carried in the custom IDs.
func tutorialNavigationButtons(currentStep int) []discordgo.MessageComponent {
	buttons := []discordgo.MessageComponent{
		discordgo.Button{
			CustomID: fmt.Sprintf("tutorial_prev_%d", currentStep),
			Label:    "Previous",
			Style:    discordgo.SecondaryButton,
			Emoji:    &discordgo.ComponentEmoji{Name: "⬅️"},
			Disabled: currentStep == 0,
		},
		discordgo.Button{
			CustomID: fmt.Sprintf("tutorial_next_%d", currentStep),
			Label:    "Next",
			Style:    discordgo.PrimaryButton,
			Emoji:    &discordgo.ComponentEmoji{Name: "➡️"},
			Disabled: currentStep == len(tutorialSteps)-1,
		},
		discordgo.Button{
			Label: "📺 Watch Tutorial",
			Style: discordgo.LinkButton,
			URL:   tutorialVideoURL,
		},
	}

	if currentStep == len(tutorialSteps)-1 {
		buttons = append(
			buttons, discordgo.Button{
				CustomID: tutorialRestartCustomID,
				Label:    "Start Over",
				Style:    discordgo.SuccessButton,
				Emoji:    &discordgo.ComponentEmoji{Name: "🔄"},
			},
		)
	}

	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: buttons},
	}
}

// sendTutorialDM sends the first tutorial step to a user's DMs. When
// the DM can't be delivered, a fallback notice is posted in the log
// channel, if one is configured.
func (b *Bot) sendTutorialDM(ctx context.Context, user *discordgo.User) error {
	dmChannel, err := b.discord.session.UserChannelCreate(user.ID)
	if err != nil {
		return fmt.Errorf("error creating DM channel: %w", err)
	}

	welcome := fmt.Sprintf(
		"Welcome <@%s>! 🎉 Here's your step-by-step guide to creating "+
			"your own Minecraft server! Also, you can watch our video "+
			"version via the button below!",
		user.ID,
	)

	_, err = b.discord.session.ChannelMessageSendComplex(
		dmChannel.ID, &discordgo.MessageSend{
			Content:    welcome,
			Embeds:     []*discordgo.MessageEmbed{tutorialStepEmbed(0)},
			Components: tutorialNavigationButtons(0),
		},
	)
	if err != nil {
		b.logger.WarnContext(
			ctx,
			"failed to send tutorial DM",
			"user_id", user.ID,
			tint.Err(err),
		)
		if logChannelID := b.config.Discord.LogChannelID; logChannelID != "" {
			if sendErr := b.discord.channelMessageSend(
				logChannelID,
				fmt.Sprintf(
					"<@%s>, I couldn't send you a DM. Please make sure "+
						"your DMs are open for this server!",
					user.ID,
				),
			); sendErr != nil {
				b.logger.ErrorContext(
					ctx,
					"error sending DM fallback notice",
					tint.Err(sendErr),
				)
			}
		}
		return err
	}
	return nil
}

// handleTutorialCommand handles `/tutorial` (staff only): DMs the
// first tutorial step to the target user.
func (b *Bot) handleTutorialCommand(
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
		return fmt.Errorf("error acknowledging tutorial command: %w", err)
	}

	if !b.discord.hasStaffRole(i.Member) {
		content := "❌ This command is only available to staff members."
		_, err := handler.Edit(ctx, &discordgo.WebhookEdit{Content: &content})
		return err
	}

	var targetUser *discordgo.User
	if opt, ok := options[tutorialUserOption]; ok {
		targetUser = opt.UserValue(nil)
	}
	if targetUser == nil {
		content := "❌ Please specify a user to send the tutorial to."
		_, err := handler.Edit(ctx, &discordgo.WebhookEdit{Content: &content})
		return err
	}

	var content string
	if sendErr := b.sendTutorialDM(ctx, targetUser); sendErr != nil {
		content = fmt.Sprintf(
			"❌ Failed to send tutorial to %s. Please ensure they have "+
				"DMs enabled.",
			targetUser.String(),
		)
	} else {
		content = fmt.Sprintf(
			"✅ Tutorial sent to %s's DMs",
			targetUser.String(),
		)
	}
	_, err := handler.Edit(ctx, &discordgo.WebhookEdit{Content: &content})
	return err
}

// handleTutorialNavigation handles the prev/next/restart buttons. The
// step index is parsed from the custom ID; out-of-range targets leave
// the message untouched.
func (b *Bot) handleTutorialNavigation(
	ctx context.Context,
	handler InteractionHandler,
) error {
	i := handler.GetInteraction()
	customID := i.MessageComponentData().CustomID

	parts := strings.Split(customID, "_")
	if len(parts) < 2 {
		return fmt.Errorf("malformed tutorial custom ID: %q", customID)
	}
	action := parts[1]

	newIndex := 0
	if action != "restart" {
		if len(parts) != 3 {
			return fmt.Errorf("malformed tutorial custom ID: %q", customID)
		}
		currentStep, err := strconv.Atoi(parts[2])
		if err != nil {
			return fmt.Errorf("invalid tutorial step in %q: %w", customID, err)
		}
		switch action {
		case "next":
			newIndex = currentStep + 1
		case "prev":
			newIndex = currentStep - 1
		default:
			return fmt.Errorf("unknown tutorial action: %q", action)
		}
	}

	if newIndex < 0 || newIndex >= len(tutorialSteps) {
		// stale or disabled button; acknowledge without changing anything
		return handler.Respond(
			ctx, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseDeferredMessageUpdate,
			},
		)
	}

	return handler.Respond(
		ctx, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseUpdateMessage,
			Data: &discordgo.InteractionResponseData{
				Embeds: []*discordgo.MessageEmbed{
					tutorialStepEmbed(newIndex),
				},
				Components: tutorialNavigationButtons(newIndex),
			},
		},
	)
}
