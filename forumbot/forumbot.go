package forumbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/go-playground/validator/v10"
	"github.com/lmittmann/tint"
	"gorm.io/gorm"
)

var (
	// When building, set these like:
	// -ldflags "-X github.com/freemchost/forumbot/forumbot.Version=$$(date +'%Y%m%d')"

	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

var (
	defaultLogWriter io.Writer = os.Stdout

	structValidator = validator.New(validator.WithRequiredStructEnabled())
)

// Bot is the main application struct. It owns the Discord integration,
// the forum client, the search-session cache, the news watcher, the
// control API and the audit database, and coordinates their lifecycle.
type Bot struct {
	config *Config

	db *gorm.DB

	// Standard logger. Missing loggers will try to use this,
	// and fall back to slog.Default()
	logger *slog.Logger

	// Handler to use for the above
	logHandler slog.Handler

	// Handles discord integration, sessions
	discord *Discord

	// Fetches and filters forum discussions
	forum *ForumClient

	// Per-user search sessions
	searchCache *SearchCache

	// Announces fresh news-tagged forum posts
	news *NewsWatcher

	// Provides the back-end API for role assignment and OAuth joins
	api *API

	// Classifies message content for the sensitive-info scan. Defaults
	// to NoopClassifier.
	classifier Classifier

	// signalStop enables an explicit stop signal to be sent to the bot
	signalStop chan struct{}

	// signalReady has a value sent on it when Run has finished
	// initializing: database connected, API listening, discord session
	// open and commands registered.
	signalReady chan struct{}

	// A signal is sent on this channel when shutdown finishes
	eventShutdown chan struct{}

	// prevents Run from executing concurrently
	runMu sync.Mutex

	// The time Run was called
	startedAt time.Time

	// getInteractionHandlerFunc returns the InteractionHandler to use
	// for an incoming interaction. Swappable for tests.
	getInteractionHandlerFunc func(
		ctx context.Context,
		i *discordgo.InteractionCreate,
	) InteractionHandler
}

// New creates a Bot from the given config, wiring up loggers and all
// components. The database connection is deferred until Run.
func New(config *Config) (*Bot, error) {
	if config == nil {
		return nil, errors.New("nil config")
	}

	var errs []error

	switch config.DatabaseType {
	case dbTypeSQLite, dbTypePostgres:
		//
	default:
		errs = append(
			errs,
			errors.New("invalid database type (must be 'sqlite' or 'postgres')"),
		)
	}

	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}

	b := &Bot{
		config:        config,
		signalReady:   make(chan struct{}, 1),
		eventShutdown: make(chan struct{}, 1),
		classifier:    NoopClassifier{},
	}

	b.logHandler = tint.NewHandler(
		defaultLogWriter, &tint.Options{
			Level:     b.config.LogLevel,
			AddSource: true,
		},
	)

	b.logger = slog.New(b.logHandler)
	slog.SetDefault(b.logger)

	b.config.Discord.httpClient = b.config.HTTPClient

	disc, err := newDiscord(b.config.Discord)
	if err != nil {
		errs = append(errs, err)
	}

	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     b.config.Discord.DiscordGoLogLevel,
				AddSource: true,
			},
		).WithAttrs([]slog.Attr{slog.String(loggerNameKey, "discordgo")}),
	)

	if disc != nil {
		disc.logger = slog.New(
			tint.NewHandler(
				defaultLogWriter, &tint.Options{
					Level:     b.config.Discord.LogLevel,
					AddSource: true,
				},
			),
		).With(loggerNameKey, "discord")
		disc.bot = b
		b.discord = disc
	}

	b.forum = NewForumClient(
		b.config.Flarum,
		slog.New(
			tint.NewHandler(
				defaultLogWriter, &tint.Options{
					Level:     b.config.Flarum.LogLevel,
					AddSource: true,
				},
			),
		),
	)

	b.searchCache = NewSearchCache(b.config.Cache, b.logger)

	b.news = newNewsWatcher(b)

	api, err := newAPI(b, config.API)
	errs = append(errs, err)
	b.api = api

	b.getInteractionHandlerFunc = func(
		_ context.Context,
		i *discordgo.InteractionCreate,
	) InteractionHandler {
		return GatewayHandler{
			session:     b.discord.session,
			interaction: i,
			logger: b.discord.logger.With(
				loggerNameKey,
				"gateway_handler",
			),
		}
	}

	return b, errors.Join(errs...)
}

// ValidateConfig validates the bot's configuration.
func (b *Bot) ValidateConfig() error {
	return structValidator.Struct(b.config)
}

func (b *Bot) getLogger(ctx context.Context) (context.Context, *slog.Logger) {
	logger, ok := ContextLogger(ctx)
	if logger == nil || !ok {
		logger = b.logger
		ctx = WithLogger(ctx, logger)
	}
	return ctx, logger
}

// RegisterSlashCommands registers the bot's slash commands with Discord.
func (b *Bot) RegisterSlashCommands(options ...discordgo.RequestOption) (
	[]*discordgo.ApplicationCommand,
	error,
) {
	return b.discord.registerCommands(options...)
}

// Run starts the bot and blocks until the context is canceled or a stop
// signal is received, then shuts everything down gracefully.
func (b *Bot) Run(ctx context.Context) error {
	// prevents concurrent runs
	b.runMu.Lock()
	defer b.runMu.Unlock()

	b.signalStop = make(chan struct{}, 1)
	b.startedAt = time.Now()
	logger := b.logger

	if err := b.ValidateConfig(); err != nil {
		logger.Error("invalid config", tint.Err(err))
		return err
	}

	ctx = WithLogger(ctx, logger)
	logger.LogAttrs(ctx, slog.LevelInfo, "starting", slog.Any("config", b.config))

	if b.signalReady == nil {
		b.signalReady = make(chan struct{}, 1)
	}

	// this is the 'runtime' context, which triggers a graceful shutdown
	// when canceled
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-b.signalStop:
			b.logger.Warn("got stop signal, canceling")
			cancel()
		case <-ctx.Done():
			b.logger.Warn("context canceled, sending stop signal")
			b.signalStop <- struct{}{}
			return
		}
	}()

	runtimeWG := &sync.WaitGroup{}

	startCtx, startCancel := context.WithTimeout(ctx, b.config.StartupTimeout)
	defer startCancel()

	initErr := make(chan error, 1)
	go func() {
		logger.Debug("initializing run...")
		initErr <- b.initRun(startCtx)
	}()

	select {
	case <-startCtx.Done():
		return fmt.Errorf("startup cancelled or timed out")
	case err := <-initErr:
		if err != nil {
			logger.ErrorContext(ctx, "init error", tint.Err(err))
			return err
		}
	}

	go func() {
		httpErr := b.api.Serve(ctx)
		if httpErr != nil && !errors.Is(httpErr, http.ErrServerClosed) {
			b.logger.ErrorContext(ctx, "error serving api HTTP", tint.Err(httpErr))
		}
	}()

	runtimeWG.Add(1)
	go func() {
		defer runtimeWG.Done()
		b.searchCache.runSweeper(ctx)
	}()

	if b.config.News.Enabled && b.config.Discord.NewsChannelID != "" {
		runtimeWG.Add(1)
		go func() {
			defer runtimeWG.Done()
			b.news.Run(ctx)
		}()
	}

	b.signalReady <- struct{}{}
	b.logger.InfoContext(ctx, "sent ready signal")

	<-ctx.Done()

	return b.shutdown(ctx, runtimeWG)
}

// initRun connects the database, opens the discord session and
// registers slash commands.
func (b *Bot) initRun(ctx context.Context) error {
	db, err := CreateDB(
		b.config.DatabaseType,
		b.config.Database,
		b.config.DatabaseSlowThreshold,
		b.config.DatabaseLogLevel.Level(),
	)
	if err != nil {
		return err
	}
	b.db = db

	session, err := b.discord.newSession()
	if err != nil {
		return err
	}
	b.discord.session = session

	b.discord.discordgoRemoveHandlerFuncs = []func(){
		session.AddHandler(b.discord.handlerReady()),
		session.AddHandler(b.discord.handlerConnect()),
		session.AddHandler(b.discord.handlerDisconnect()),
		session.AddHandler(b.handlerInteractionCreate()),
		session.AddHandler(b.handlerMessageCreate()),
		session.AddHandler(b.handlerGuildMemberAdd()),
	}

	b.logger.InfoContext(ctx, "connecting to discord")
	if err = session.Open(); err != nil {
		return fmt.Errorf("error connecting to discord: %w", err)
	}

	if _, err = b.discord.registerCommands(); err != nil {
		return fmt.Errorf("error registering commands: %w", err)
	}

	return nil
}

func (b *Bot) shutdown(
	ctx context.Context,
	runtimeWG *sync.WaitGroup,
) error {
	b.logger.WarnContext(ctx, "shutting down")
	defer func() {
		if b.eventShutdown != nil {
			go func() {
				b.eventShutdown <- struct{}{}
			}()
		}
	}()

	shutdownStart := time.Now()
	shutdownTimeout := b.config.ShutdownTimeout
	shutdownDeadline := shutdownStart.Add(shutdownTimeout)

	closeCtx, closeCancel := context.WithDeadline(
		context.Background(),
		shutdownDeadline,
	)
	defer closeCancel()

	if b.discord != nil && b.discord.session != nil {
		for _, removeHandler := range b.discord.discordgoRemoveHandlerFuncs {
			removeHandler()
		}
		if discErr := b.discord.session.Close(); discErr != nil {
			b.logger.Error("error closing discord session", tint.Err(discErr))
		}
	}

	if b.api != nil && b.api.httpServer != nil {
		if apiErr := b.api.httpServer.Shutdown(closeCtx); apiErr != nil {
			b.logger.Error("error shutting down api server", tint.Err(apiErr))
		}
	}

	gracefulShutdownCh := make(chan struct{}, 1)
	go func() {
		runtimeWG.Wait()
		gracefulShutdownCh <- struct{}{}
	}()

	select {
	case <-gracefulShutdownCh:
		b.logger.InfoContext(
			ctx,
			"graceful shutdown complete",
			"duration", time.Since(shutdownStart),
		)
		return nil
	case <-closeCtx.Done():
		return fmt.Errorf("shutdown deadline exceeded")
	}
}

// handlerInteractionCreate returns the gateway handler for incoming
// interactions. Each interaction is dispatched on its own goroutine by
// discordgo, so this only builds the handler and delegates.
func (b *Bot) handlerInteractionCreate() func(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	return func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		ctx := WithLogger(context.Background(), b.logger)
		handler := b.getInteractionHandlerFunc(ctx, i)
		go b.handleInteraction(ctx, handler)
	}
}

func (b *Bot) handlerMessageCreate() func(
	s *discordgo.Session,
	m *discordgo.MessageCreate,
) {
	return func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		ctx := WithLogger(context.Background(), b.logger)
		go b.scanMessage(ctx, m)
	}
}

func (b *Bot) handlerGuildMemberAdd() func(
	s *discordgo.Session,
	m *discordgo.GuildMemberAdd,
) {
	return func(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
		if m.User == nil || m.User.Bot {
			return
		}
		ctx := WithLogger(context.Background(), b.logger)
		go func() {
			if err := b.sendTutorialDM(ctx, m.User); err != nil {
				b.logger.ErrorContext(
					ctx,
					"error sending welcome tutorial",
					"user_id", m.User.ID,
					tint.Err(err),
				)
			}
		}()
	}
}

// handleInteraction routes a single interaction: slash commands to
// their command handlers, message components to the navigation and
// tutorial handlers. Failures outside the individual handlers produce
// one generic ephemeral notice; failures sending that notice are only
// logged.
func (b *Bot) handleInteraction(
	ctx context.Context,
	handler InteractionHandler,
) {
	defer func() {
		if rc := recover(); rc != nil {
			b.logger.ErrorContext(
				ctx,
				"recovered from panic",
				"panic_arg", rc,
				"stack_trace", string(debug.Stack()),
			)
		}
	}()

	i := handler.GetInteraction()
	logger := handler.Logger()

	discordUser := interactionUser(i)
	if discordUser == nil {
		logger.ErrorContext(
			ctx,
			"no user found in interaction",
			"interaction", structToSlogValue(i),
		)
		return
	}

	logger = logger.With(slog.Group("interaction", interactionLogAttrs(*i)...))
	ctx = WithLogger(ctx, logger)
	logger.InfoContext(
		ctx,
		"received new interaction",
		"user", structToSlogValue(discordUser),
	)

	go b.auditInteraction(i, discordUser)

	var err error
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		switch data.Name {
		case DiscordSlashCommandSearch:
			err = b.handleSearchCommand(ctx, handler)
		case DiscordSlashCommandSensitive:
			err = b.handleSensitiveCommand(ctx, handler)
		case DiscordSlashCommandRequestSensitive:
			err = b.handleRequestSensitiveCommand(ctx, handler)
		case DiscordSlashCommandTutorial:
			err = b.handleTutorialCommand(ctx, handler)
		default:
			logger.WarnContext(ctx, "unknown command", "command", data.Name)
		}
	case discordgo.InteractionMessageComponent:
		data := i.MessageComponentData()
		switch {
		case data.CustomID == customIDSelectPost:
			err = b.handlePostSelection(ctx, handler)
		case data.CustomID == customIDBackToResults:
			err = b.handleBackToResults(ctx, handler)
		case data.CustomID == customIDNewSearch:
			err = b.handleNewSearch(ctx, handler)
		case strings.HasPrefix(data.CustomID, tutorialCustomIDPrefix):
			err = b.handleTutorialNavigation(ctx, handler)
		default:
			logger.WarnContext(
				ctx,
				"unknown component",
				"custom_id", data.CustomID,
			)
		}
	default:
		logger.WarnContext(ctx, "ignoring interaction type", "type", i.Type)
	}

	if err != nil {
		logger.ErrorContext(ctx, "error handling interaction", tint.Err(err))
		respondErr := handler.Respond(
			ctx, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseChannelMessageWithSource,
				Data: &discordgo.InteractionResponseData{
					Content: DefaultDiscordErrorMessage,
					Flags:   discordgo.MessageFlagsEphemeral,
				},
			},
		)
		if respondErr != nil {
			logger.ErrorContext(
				ctx,
				"error sending error response",
				tint.Err(respondErr),
			)
		}
	}
}

// auditInteraction persists an InteractionLog row. Write failures never
// affect user-facing flows.
func (b *Bot) auditInteraction(
	i *discordgo.InteractionCreate,
	u *discordgo.User,
) {
	if b.db == nil {
		return
	}
	payload, err := json.Marshal(i)
	if err != nil {
		b.logger.Error("error marshaling interaction", tint.Err(err))
	}

	record := InteractionLog{
		InteractionID: i.ID,
		Type:          i.Type.String(),
		UserID:        u.ID,
		Username:      u.String(),
		GuildID:       i.GuildID,
		ChannelID:     i.ChannelID,
		Payload:       string(payload),
	}
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		record.CommandName = i.ApplicationCommandData().Name
	case discordgo.InteractionMessageComponent:
		record.CustomID = i.MessageComponentData().CustomID
	}

	if err = b.db.Create(&record).Error; err != nil {
		b.logger.Error("error creating interaction log", tint.Err(err))
	}
}

// InteractionHandler defines the interface for handling Discord
// interactions. It provides methods for responding to interactions,
// retrieving responses, editing messages, and managing interaction
// lifecycle.
type InteractionHandler interface {
	// Respond sends an initial response to a Discord interaction.
	Respond(ctx context.Context, i *discordgo.InteractionResponse) error

	// GetResponse retrieves the current response for an interaction.
	GetResponse(ctx context.Context) (*discordgo.Message, error)

	// Edit modifies an existing interaction response.
	Edit(
		ctx context.Context,
		e *discordgo.WebhookEdit,
		opts ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// Delete removes an interaction response.
	Delete(ctx context.Context, opts ...discordgo.RequestOption)

	// GetInteraction returns the original InteractionCreate event.
	GetInteraction() *discordgo.InteractionCreate

	// Logger returns the logger associated with this handler.
	Logger() *slog.Logger
}

// GatewayHandler implements [InteractionHandler] for interactions
// received via the discord websocket gateway.
type GatewayHandler struct {
	session     DiscordSessionHandler
	interaction *discordgo.InteractionCreate
	logger      *slog.Logger
}

func (w GatewayHandler) Respond(
	ctx context.Context,
	response *discordgo.InteractionResponse,
) error {
	err := w.session.InteractionRespond(w.interaction.Interaction, response)
	if err != nil {
		w.logger.ErrorContext(ctx, "error responding to interaction", tint.Err(err))
	} else {
		w.logger.InfoContext(ctx, "responded to interaction")
	}
	return err
}

func (w GatewayHandler) GetResponse(ctx context.Context) (
	*discordgo.Message,
	error,
) {
	msg, err := w.session.InteractionResponse(w.interaction.Interaction)
	if err != nil {
		w.logger.ErrorContext(ctx, "error getting interaction", tint.Err(err))
	}
	return msg, err
}

func (w GatewayHandler) Edit(
	ctx context.Context,
	wh *discordgo.WebhookEdit,
	opts ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	msg, err := w.session.InteractionResponseEdit(
		w.interaction.Interaction,
		wh,
		opts...,
	)
	if err != nil {
		w.logger.ErrorContext(ctx, "error editing interaction response", tint.Err(err))
	}
	return msg, err
}

func (w GatewayHandler) Delete(ctx context.Context, opts ...discordgo.RequestOption) {
	err := w.session.InteractionResponseDelete(
		w.interaction.Interaction,
		opts...,
	)
	if err != nil {
		w.logger.ErrorContext(ctx, "error deleting interaction response", tint.Err(err))
	}
}

func (w GatewayHandler) GetInteraction() *discordgo.InteractionCreate {
	return w.interaction
}

func (w GatewayHandler) Logger() *slog.Logger {
	return w.logger
}
