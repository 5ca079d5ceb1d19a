// Package forumbot implements a community-support Discord bot that bridges
// a Discord guild with a Flarum forum knowledge base.
//
// The bot lets users search help-center posts from Discord (`/search`),
// navigate the results through select menus and buttons, announces new
// news-tagged forum posts to a channel, walks new members through a
// getting-started tutorial, and provides a secure path for sharing
// sensitive information with staff.
//
// Key components of the package include:
//
//   - Bot: The main struct that encapsulates the bot's core functionality.
//   - Discord: Handles the Discord gateway session and slash commands.
//   - ForumClient: Fetches and filters discussions from the Flarum API.
//   - SearchCache: Per-user search sessions with TTL expiry and a
//     background sweeper.
//   - NewsWatcher: Periodically announces fresh forum news posts.
//   - API: Backend HTTP API for role assignment and OAuth guild joins.
//
// The bot supports these commands:
//
//   - /search: Search the help center and browse results interactively.
//   - /sensitive: Submit sensitive information securely to staff.
//   - /requestsensitive: Ask a user for sensitive information (staff only).
//   - /tutorial: Send the getting-started tutorial to a user (staff only).
package forumbot
