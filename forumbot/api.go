package forumbot

import (
	"context"
	cryprand "crypto/rand"
	"crypto/subtle"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-contrib/cors"
	ginPprof "github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"golang.org/x/oauth2"
)

const (
	pprofPrefix = "/debug"

	apiPathAssignRole = "/assign-role"
	apiPathRemoveRole = "/remove-role"
	apiPathOAuthJoin  = "/api"
	apiHealthCheck    = "/healthz"
)

const (
	xAPIKeyHeader    = "X-API-Key"
	xRequestIDHeader = "X-Request-ID"
)

// Discord OAuth2 endpoints used by the guild-join flow
const (
	discordOAuthTokenURL = "https://discord.com/api/oauth2/token"
	discordUserMeURL     = "https://discord.com/api/users/@me"
)

// Audit source recorded on RoleChange rows created by the control API
const roleChangeSourceAPI = "api"

type httpReply struct {
	Message string `json:"message"`
}

type httpError struct {
	Error string `json:"error"`
}

// API is the bot's backend control server. It exposes tier role
// assignment and the OAuth2 guild-join exchange to the billing panel,
// authenticated by a shared key in the X-API-Key header.
type API struct {
	bot        *Bot
	config     *APIConfig
	httpServer *http.Server
	listener   net.Listener
	engine     *gin.Engine

	requestMetrics   map[string]int
	requestMetricsMu sync.Mutex

	logger *slog.Logger
}

// newAPI initializes the API server, its middleware stack and routes.
func newAPI(b *Bot, config *APIConfig) (*API, error) {
	setupLogger := slog.New(
		tint.NewHandler(
			os.Stdout, &tint.Options{
				Level:     config.LogLevel,
				AddSource: true,
			},
		),
	)

	r := gin.New()

	api := &API{
		bot:            b,
		config:         config,
		engine:         r,
		requestMetrics: map[string]int{},
		logger:         setupLogger.With(loggerNameKey, "api"),
	}

	var tlsCfg *tls.Config
	if config.SSL.Cert != "" {
		cfg, e := tlsConfig(
			config.SSL.Cert,
			config.SSL.Key,
			config.SSL.TLSMinVersion,
		)
		if e != nil {
			return nil, fmt.Errorf("error loading SSL certs: %w", e)
		}
		tlsCfg = cfg
	}

	httpServer := &http.Server{
		Addr:              config.Listen,
		Handler:           r,
		TLSConfig:         tlsCfg,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}
	api.httpServer = httpServer

	corsConfig := config.CORS.GINConfig()
	if len(corsConfig.AllowOrigins) == 0 && config.Development {
		corsConfig.AllowOrigins = []string{"*"}
	}

	if !config.Development {
		r.Use(gin.Recovery())
	}
	r.Use(
		requestIDMiddleware(),
		ginLoggingMiddleware(),
		metricMiddleware(api),
		cors.New(corsConfig),
	)

	r.GET(apiHealthCheck, api.healthCheck)

	if config.Development {
		ginPprof.Register(r, pprofPrefix)
	}

	protected := r.Group("")
	protected.Use(apiKeyMiddleware(config))

	protected.POST(apiPathAssignRole, api.assignRole)
	protected.POST(apiPathRemoveRole, api.removeRole)
	protected.POST(apiPathOAuthJoin, api.oauthGuildJoin)

	return api, nil
}

// Serve listens and serves until the server is shut down. TLS is used
// only when a certificate is configured.
func (a *API) Serve(ctx context.Context) error {
	if a.listener != nil {
		return a.httpServer.Serve(a.listener)
	}
	listenCfg := &net.ListenConfig{}
	ln, e := listenCfg.Listen(ctx, a.config.ListenNetwork, a.config.Listen)
	if e != nil {
		return e
	}
	if a.httpServer.TLSConfig != nil {
		ln = tls.NewListener(ln, a.httpServer.TLSConfig)
	}
	a.listener = ln
	return a.httpServer.Serve(a.listener)
}

func (a *API) healthCheck(c *gin.Context) {
	c.JSON(
		http.StatusOK, gin.H{
			"status":     "ok",
			"version":    Version,
			"started_at": a.bot.startedAt,
		},
	)
}

type assignRoleRequest struct {
	UserID string `json:"userId"`
	Tier   string `json:"tier"`
}

// assignRole grants the requested tier role to a guild member, after
// stripping any other tier role they hold. Tiers map to role IDs via
// the discord.tier_roles config.
func (a *API) assignRole(c *gin.Context) {
	logger := ginContextLogger(c)

	var req assignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" || req.Tier == "" {
		c.JSON(
			http.StatusBadRequest,
			httpError{Error: "Missing userId or tier"},
		)
		return
	}

	tier := strings.ToLower(req.Tier)
	tierRoles := a.bot.config.Discord.TierRoles
	roleID, ok := tierRoles[tier]
	if !ok || roleID == "" {
		c.JSON(
			http.StatusBadRequest,
			httpError{Error: "Invalid tier specified"},
		)
		return
	}

	guildID := a.bot.config.Discord.GuildID
	session := a.bot.discord.session

	member, err := session.GuildMember(guildID, req.UserID)
	if err != nil {
		c.JSON(
			http.StatusNotFound,
			httpError{Error: "User not found in guild"},
		)
		return
	}

	// a member only ever holds one tier role
	for otherTier, otherRoleID := range tierRoles {
		if otherRoleID == "" || otherRoleID == roleID {
			continue
		}
		if !memberHasRole(member, otherRoleID) {
			continue
		}
		if err = session.GuildMemberRoleRemove(
			guildID, req.UserID, otherRoleID,
		); err != nil {
			logger.Error(
				"error removing previous tier role",
				"user_id", req.UserID,
				"role_id", otherRoleID,
				tint.Err(err),
			)
			continue
		}
		go a.auditRoleChange(req.UserID, otherRoleID, otherTier, "remove")
	}

	if err = session.GuildMemberRoleAdd(guildID, req.UserID, roleID); err != nil {
		logger.Error(
			"error assigning tier role",
			"user_id", req.UserID,
			"role_id", roleID,
			tint.Err(err),
		)
		c.JSON(
			http.StatusInternalServerError,
			httpError{Error: "Failed to assign role"},
		)
		return
	}
	go a.auditRoleChange(req.UserID, roleID, tier, "add")

	logger.Info(
		"assigned tier role",
		"user_id", req.UserID,
		"tier", tier,
		"role_id", roleID,
	)
	c.JSON(
		http.StatusOK, httpReply{
			Message: fmt.Sprintf(
				"Successfully assigned %s role to user %s",
				tier,
				req.UserID,
			),
		},
	)
}

type removeRoleRequest struct {
	UserID string `json:"userId"`
}

// removeRole strips every tier role from a guild member, reporting
// which tiers were removed.
func (a *API) removeRole(c *gin.Context) {
	logger := ginContextLogger(c)

	var req removeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		c.JSON(http.StatusBadRequest, httpError{Error: "Missing userId"})
		return
	}

	guildID := a.bot.config.Discord.GuildID
	session := a.bot.discord.session

	member, err := session.GuildMember(guildID, req.UserID)
	if err != nil {
		c.JSON(
			http.StatusNotFound,
			httpError{Error: "User not found in guild"},
		)
		return
	}

	var removed []string
	for tier, roleID := range a.bot.config.Discord.TierRoles {
		if roleID == "" || !memberHasRole(member, roleID) {
			continue
		}
		if err = session.GuildMemberRoleRemove(
			guildID, req.UserID, roleID,
		); err != nil {
			logger.Error(
				"error removing tier role",
				"user_id", req.UserID,
				"role_id", roleID,
				tint.Err(err),
			)
			continue
		}
		removed = append(removed, tier)
		go a.auditRoleChange(req.UserID, roleID, tier, "remove")
	}

	if len(removed) == 0 {
		c.JSON(
			http.StatusOK, httpReply{
				Message: fmt.Sprintf(
					"No tier roles found to remove from user %s",
					req.UserID,
				),
			},
		)
		return
	}

	logger.Info(
		"removed tier roles",
		"user_id", req.UserID,
		"tiers", removed,
	)
	c.JSON(
		http.StatusOK, httpReply{
			Message: fmt.Sprintf(
				"Removed %s role(s) from user %s",
				strings.Join(removed, ", "),
				req.UserID,
			),
		},
	)
}

type oauthJoinRequest struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirectUri"`
}

// oauthGuildJoin exchanges an OAuth2 authorization code for a token,
// resolves the authorizing user and joins them to the guild using the
// guilds.join scope.
func (a *API) oauthGuildJoin(c *gin.Context) {
	logger := ginContextLogger(c)

	var req oauthJoinRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" || req.RedirectURI == "" {
		c.JSON(
			http.StatusBadRequest,
			httpError{Error: "Missing code or redirectUri"},
		)
		return
	}

	discordConfig := a.bot.config.Discord
	oauthConfig := &oauth2.Config{
		ClientID:     discordConfig.ClientID,
		ClientSecret: discordConfig.ClientSecret,
		RedirectURL:  req.RedirectURI,
		Endpoint: oauth2.Endpoint{
			TokenURL:  discordOAuthTokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx := c.Request.Context()
	if a.bot.config.HTTPClient != nil {
		ctx = context.WithValue(
			ctx,
			oauth2.HTTPClient,
			a.bot.config.HTTPClient,
		)
	}

	token, err := oauthConfig.Exchange(ctx, req.Code)
	if err != nil {
		logger.Warn("oauth code exchange failed", tint.Err(err))
		c.JSON(
			http.StatusBadRequest,
			httpError{Error: "Invalid authorization code"},
		)
		return
	}

	user, err := a.oauthUser(ctx, oauthConfig, token)
	if err != nil {
		logger.Error("error fetching oauth user", tint.Err(err))
		c.JSON(
			http.StatusInternalServerError,
			httpError{Error: "Failed to fetch user information"},
		)
		return
	}

	err = a.bot.discord.session.GuildMemberAdd(
		discordConfig.GuildID,
		user.ID,
		&discordgo.GuildMemberAddParams{
			AccessToken: token.AccessToken,
			Nick:        user.Username,
		},
	)
	if err != nil {
		logger.Error(
			"error joining user to guild",
			"user_id", user.ID,
			tint.Err(err),
		)
		c.JSON(
			http.StatusInternalServerError,
			httpError{Error: "Failed to join user to guild"},
		)
		return
	}

	logger.Info(
		"joined user to guild",
		"user_id", user.ID,
		"username", user.Username,
	)
	c.JSON(
		http.StatusOK, gin.H{
			"user":         user,
			"accessToken":  token.AccessToken,
			"refreshToken": token.RefreshToken,
			"expiresIn":    int(time.Until(token.Expiry).Seconds()),
		},
	)
}

// oauthUser fetches the authorizing user's identity with the bearer
// token from the exchange.
func (a *API) oauthUser(
	ctx context.Context,
	oauthConfig *oauth2.Config,
	token *oauth2.Token,
) (*discordgo.User, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		discordUserMeURL,
		nil,
	)
	if err != nil {
		return nil, err
	}

	rsp, err := oauthConfig.Client(ctx, token).Do(req)
	if err != nil {
		return nil, err
	}
	//goland:noinspection GoUnhandledErrorResult
	defer rsp.Body.Close()

	if rsp.StatusCode < 200 || rsp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status fetching user: %s", rsp.Status)
	}

	var user discordgo.User
	if err = json.NewDecoder(rsp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("error decoding user: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("user response missing id")
	}
	return &user, nil
}

// auditRoleChange persists a RoleChange row. Nothing is recorded when
// the database isn't available yet.
func (a *API) auditRoleChange(userID string, roleID string, tier string, action string) {
	db := a.bot.db
	if db == nil {
		return
	}
	rec := RoleChange{
		UserID:  userID,
		GuildID: a.bot.config.Discord.GuildID,
		RoleID:  roleID,
		Tier:    tier,
		Action:  action,
		Source:  roleChangeSourceAPI,
	}
	if err := db.Create(&rec).Error; err != nil {
		a.logger.Error(
			"error recording role change",
			"user_id", userID,
			"role_id", roleID,
			tint.Err(err),
		)
	}
}

func memberHasRole(member *discordgo.Member, roleID string) bool {
	for _, r := range member.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

// apiKeyMiddleware rejects requests whose X-API-Key header doesn't
// match the configured key, using a constant-time comparison.
func apiKeyMiddleware(config *APIConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(xAPIKeyHeader)
		if provided == "" || subtle.ConstantTimeCompare(
			[]byte(provided),
			[]byte(config.Key),
		) != 1 {
			c.AbortWithStatusJSON(
				http.StatusUnauthorized,
				httpError{Error: "unauthorized"},
			)
			return
		}
		c.Next()
	}
}

// requestIDMiddleware assigns a random request ID to each request and
// echoes it in the X-Request-ID response header.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := generateRandomHexString(32)
		if err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Set(xRequestIDHeader, id)
		if requestID, exists := c.Get(xRequestIDHeader); exists {
			c.Header(xRequestIDHeader, requestID.(string))
		}
		c.Next()
	}
}

// ginContextLogger returns the slog.Logger from the given gin context,
// or, if it doesn't exist, creates a logger with request details
// included and stores it in the context for subsequent calls.
func ginContextLogger(c *gin.Context) *slog.Logger {
	var requestLogger *slog.Logger
	logger, ok := c.Get(string(loggerContextKey))
	if ok {
		requestLogger, ok = logger.(*slog.Logger)
		if ok {
			return requestLogger
		}
	}
	requestLogger = slog.Default()
	requestID, _ := c.Get(xRequestIDHeader)
	path := c.Request.URL.Path
	raw := c.Request.URL.RawQuery
	if raw != "" {
		path = path + "?" + raw
	}

	requestLogger = requestLogger.With(
		slog.Group(
			"request",
			"method", c.Request.Method,
			"path", path,
			"remote_addr", c.Request.RemoteAddr,
			"remote_ip", c.RemoteIP(),
			"user_agent", c.Request.UserAgent(),
			"referer", c.Request.Referer(),
		),
		slog.Any(xRequestIDHeader, requestID),
	)
	c.Set(string(loggerContextKey), requestLogger)
	return requestLogger
}

// ginLoggingMiddleware logs each request with its duration and
// response status.
func ginLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestLogger := ginContextLogger(c)
		c.Next()
		latency := time.Since(start)

		var errs []error
		for _, e := range c.Errors.ByType(gin.ErrorTypePrivate) {
			errs = append(errs, *e)
		}
		if len(errs) > 0 {
			requestLogger.Error(
				fmt.Sprintf(
					"%s %s finished with errors",
					c.Request.Method,
					c.Request.URL,
				),
				"duration", latency,
				"errors", errs,
				slog.Group(
					"response",
					"status_code", c.Writer.Status(),
					"body_size", c.Writer.Size(),
				),
			)
		} else {
			requestLogger.Info(
				fmt.Sprintf("%s %s finished", c.Request.Method, c.Request.URL),
				"duration", latency,
				slog.Group(
					"response",
					"status_code", c.Writer.Status(),
					"body_size", c.Writer.Size(),
				),
			)
		}
	}
}

// metricMiddleware counts requests per method and path.
func metricMiddleware(a *API) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Next()

		a.requestMetricsMu.Lock()
		defer a.requestMetricsMu.Unlock()

		key := fmt.Sprintf("%s %s", c.Request.Method, c.Request.URL.Path)
		a.requestMetrics[key]++
	}
}

//nolint:gochecknoinits // validator tag registration
func init() {
	structValidator.SetTagName("binding")
}

func generateRandomHexString(n int) (string, error) {
	bytes := make([]byte, n/2)
	if _, err := cryprand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
