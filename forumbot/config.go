//nolint:lll // struct tags can't be split
package forumbot

import (
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-contrib/cors"
)

const (
	EnvvarSetEnvPrefix = "FORUMBOT_ENV_PREFIX"
	DefaultEnvPrefix   = "FMB"

	DefaultDatabaseType          = "sqlite"
	DefaultDatabase              = "forumbot.sqlite3"
	DefaultDatabaseSlowThreshold = 200 * time.Millisecond
	DefaultDatabaseLogLevel      = slog.LevelInfo

	DefaultLogLevel        = slog.LevelInfo
	DefaultStartupTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 60 * time.Second

	// DefaultSessionTTL is how long a cached search session remains valid
	// for Select/Back navigation. Matches the Discord interaction token
	// lifespan, so navigation components die with the session.
	DefaultSessionTTL = 15 * time.Minute

	// DefaultSweepInterval is both the sweeper period and the age at which
	// entries are physically removed from the cache.
	DefaultSweepInterval = 30 * time.Minute

	DefaultFlarumHelpTag        = "help-center"
	DefaultFlarumNewsTag        = "news"
	DefaultFlarumPageLimit      = 50
	DefaultFlarumRequestTimeout = 10 * time.Second
	DefaultFlarumLogLevel       = slog.LevelInfo

	DefaultNewsCheckInterval = 5 * time.Minute
	DefaultNewsTimeRadius    = 5 * time.Minute

	DefaultReadTimeout       = 5 * time.Second
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 30 * time.Second

	DefaultAPIListen               = "127.0.0.1:3000"
	DefaultAPILogLevel             = slog.LevelInfo
	DefaultAPITLSMinVersion        = tls.VersionTLS12
	DefaultAPICORSAllowCredentials = true
	defaultListenNetwork           = "tcp"

	DefaultDiscordLogLevel      = slog.LevelWarn
	DefaultDiscordgoLogLevel    = slog.LevelWarn
	DefaultDiscordGatewayIntent = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildMembers
	DefaultDiscordStartupMessage = "I'm here!"
	DefaultDiscordCustomStatus   = "/search the help center!"
	DefaultDiscordErrorMessage   = "An error occurred while processing your request. Please try again later."

	DiscordSlashCommandSearch           = "search"
	DiscordSlashCommandSensitive        = "sensitive"
	DiscordSlashCommandRequestSensitive = "requestsensitive"
	DiscordSlashCommandTutorial         = "tutorial"

	searchCommandQueryOption = "query"
)

var (
	DefaultCORSAllowMethods = []string{
		http.MethodGet,
		http.MethodPost,
		http.MethodOptions,
		http.MethodHead,
	}
	DefaultCORSAllowHeaders = []string{
		"Origin",
		"Content-Length",
		"Content-Type",
		"Accept",
		"Authorization",
		"X-Requested-With",
		"Cache-Control",
		xAPIKeyHeader,
		xRequestIDHeader,
	}
	DefaultCORSExposeHeaders = []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		xRequestIDHeader,
	}
	DefaultCORSMaxAge = 12 * time.Hour
)

// Config is the top-level configuration for the bot process.
type Config struct {
	// Database connection string (sqlite file path or postgres DSN)
	Database string `yaml:"database" mapstructure:"database" json:"database"`

	// DatabaseType specifies the type of database, either 'sqlite' or 'postgres'
	DatabaseType string `yaml:"database_type" mapstructure:"database_type" json:"database_type" binding:"oneof=sqlite postgres"`

	// DatabaseLogLevel sets the log level for database operations
	DatabaseLogLevel *slog.LevelVar `yaml:"database_log_level" mapstructure:"database_log_level" json:"database_log_level"`

	// DatabaseSlowThreshold is the duration threshold for identifying slow database queries
	DatabaseSlowThreshold time.Duration `yaml:"database_slow_threshold" mapstructure:"database_slow_threshold" json:"database_slow_threshold"`

	// Discord configures the Discord bot itself
	Discord *DiscordConfig `yaml:"discord" mapstructure:"discord" json:"discord"`

	// Flarum configures the forum API client
	Flarum *FlarumConfig `yaml:"flarum" mapstructure:"flarum" json:"flarum"`

	// Cache configures the per-user search-session cache
	Cache *CacheConfig `yaml:"cache" mapstructure:"cache" json:"cache"`

	// News configures the forum news watcher
	News *NewsConfig `yaml:"news" mapstructure:"news" json:"news"`

	// API configures the backend API server
	API *APIConfig `yaml:"api" mapstructure:"api" json:"api"`

	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// StartupTimeout sets a limit on the amount of time the bot has to
	// initialize. If this is passed, the bot will abort startup.
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" json:"startup_timeout"`

	// ShutdownTimeout is the time to allow for a graceful shutdown. After this
	// elapses, the bot will force close all connections and exit.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout"`

	HTTPClient *http.Client `log:"[redacted]"`
}

func (c Config) LogValue() slog.Value {
	return structToSlogValue(c)
}

// DiscordConfig configures the Discord bot itself.
//
//nolint:lll // can't break tags
type DiscordConfig struct {
	// Discord bot token (from the 'Bot' tab in the discord dev portal)
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]" binding:"required"`

	// Discord application ID (from the 'General Information' tab in the discord dev portal)
	ApplicationID string `yaml:"application_id" mapstructure:"application_id" json:"application_id" binding:"required"`

	// GuildID is the guild the bot serves. Role assignment and OAuth guild
	// joins operate on this guild, and slash commands are registered to it.
	GuildID string `yaml:"guild_id" mapstructure:"guild_id" json:"guild_id" binding:"required"`

	// OAuth2 client credentials, used by the `/api` guild-join endpoint
	ClientID     string `yaml:"client_id" mapstructure:"client_id" json:"client_id"`
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret" json:"client_secret" log:"[redacted]"`

	// NewsChannelID is the channel forum news posts are announced in
	NewsChannelID string `yaml:"news_channel_id" mapstructure:"news_channel_id" json:"news_channel_id"`

	// StaffChannelID receives sensitive-information submissions
	StaffChannelID string `yaml:"staff_channel_id" mapstructure:"staff_channel_id" json:"staff_channel_id"`

	// LogChannelID receives fallback notices when a DM can't be delivered
	LogChannelID string `yaml:"log_channel_id" mapstructure:"log_channel_id" json:"log_channel_id"`

	// StaffRoleID gates the /tutorial command
	StaffRoleID string `yaml:"staff_role_id" mapstructure:"staff_role_id" json:"staff_role_id"`

	// TierRoles maps subscription tier names (silver/gold/diamond) to role IDs
	TierRoles map[string]string `yaml:"tier_roles" mapstructure:"tier_roles" json:"tier_roles"`

	// Base discord logging level
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Log level for the `discordgo` library's logger
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`

	// StartupMessage is sent to the news channel when the bot connects,
	// if a news channel is configured.
	StartupMessage string `yaml:"startup_message" mapstructure:"startup_message" json:"startup_message"`

	// CustomStatus is set as the bot user's status on connect
	CustomStatus string `yaml:"custom_status" mapstructure:"custom_status" json:"custom_status"`

	// Discord gateway intents. See: https://discord.com/developers/docs/topics/gateway#gateway-intents
	GatewayIntents discordgo.Intent `yaml:"gateway_intents" mapstructure:"gateway_intents" json:"gateway_intents"`

	httpClient *http.Client
}

func (c DiscordConfig) LogValue() slog.Value {
	return structToSlogValue(c)
}

// FlarumConfig configures the forum API client.
type FlarumConfig struct {
	// Base URL of the Flarum installation (no trailing slash, no /api suffix)
	URL string `yaml:"url" mapstructure:"url" json:"url" binding:"required,url"`

	// HelpTag is the tag help-center discussions carry
	HelpTag string `yaml:"help_tag" mapstructure:"help_tag" json:"help_tag"`

	// NewsTag is the tag news discussions carry
	NewsTag string `yaml:"news_tag" mapstructure:"news_tag" json:"news_tag"`

	// PageLimit is the number of discussions fetched per search. Query
	// filtering happens client-side over this single page, so it also
	// bounds the result set.
	PageLimit int `yaml:"page_limit" mapstructure:"page_limit" json:"page_limit" binding:"min=1,max=50"`

	// RequestTimeout bounds each API request
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout" json:"request_timeout"`

	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

// CacheConfig configures the search-session cache and its sweeper.
type CacheConfig struct {
	// SessionTTL is the validity window checked on every navigation action
	SessionTTL time.Duration `yaml:"session_ttl" mapstructure:"session_ttl" json:"session_ttl" binding:"min=1m"`

	// SweepInterval is both the sweeper period and the age at which
	// entries are physically deleted, regardless of access
	SweepInterval time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval" json:"sweep_interval" binding:"min=1m"`
}

// NewsConfig configures the forum news watcher.
type NewsConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled" json:"enabled"`

	// CheckInterval is how often the news tag is polled
	CheckInterval time.Duration `yaml:"check_interval" mapstructure:"check_interval" json:"check_interval"`

	// TimeRadius - only posts created within this window are announced
	TimeRadius time.Duration `yaml:"time_radius" mapstructure:"time_radius" json:"time_radius"`
}

// APIConfig configures the backend API server.
type APIConfig struct {
	// The address and port on which the server should listen (e.g., "127.0.0.1:3000").
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen" binding:"required,hostname_port|filepath"`

	// The network type for listening (e.g., "tcp", "tcp4", "tcp6", "unix").
	ListenNetwork string `yaml:"listen_network" mapstructure:"listen_network" json:"listen_network" binding:"required,oneof=tcp tcp4 tcp6 unix"`

	// Key is the shared secret required in the X-API-Key header
	Key string `yaml:"key" mapstructure:"key" json:"key" log:"[redacted]" binding:"required"`

	// Configuration for SSL/TLS. When no cert is configured the server
	// listens in plaintext.
	SSL SSLConfig `yaml:"ssl" mapstructure:"ssl" json:"ssl"`

	// The logging level for the API server.
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Cross-origin configuration
	CORS CORSConfig `yaml:"cors" mapstructure:"cors" json:"cors"`

	// Maximum duration for reading the entire request, including the body.
	ReadTimeout time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout" binding:"min=1s"`

	// Amount of time allowed to read request headers.
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" json:"read_header_timeout" binding:"min=1s"`

	// Maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout" binding:"min=1s"`

	// Maximum amount of time to wait for the next request when keep-alives are enabled.
	IdleTimeout time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout" binding:"min=1s"`

	// Development enables pprof endpoints and permissive CORS
	Development bool `yaml:"development" mapstructure:"development" json:"development"`
}

func (c APIConfig) LogValue() slog.Value {
	return structToSlogValue(c)
}

// SSLConfig specifies cert paths and the TLS version to use
type SSLConfig struct {
	// Path to an SSL certificate
	Cert string `yaml:"cert" mapstructure:"cert" json:"cert"`

	// Path to an SSL cert key
	Key string `yaml:"key" mapstructure:"key" json:"key"`

	// Minimum TLS version
	TLSMinVersion uint16 `yaml:"tls_min_version" mapstructure:"tls_min_version" json:"tls_min_version"`
}

// CORSConfig specifies cross-origin resource sharing settings
type CORSConfig struct {
	AllowOrigins     []string      `yaml:"allow_origins" mapstructure:"allow_origins" json:"allow_origins"`
	AllowMethods     []string      `yaml:"allow_methods" mapstructure:"allow_methods" json:"allow_methods"`
	AllowHeaders     []string      `yaml:"allow_headers" mapstructure:"allow_headers" json:"allow_headers"`
	ExposeHeaders    []string      `yaml:"expose_headers" mapstructure:"expose_headers" json:"expose_headers"`
	AllowCredentials bool          `yaml:"allow_credentials" mapstructure:"allow_credentials" json:"allow_credentials"`
	MaxAge           time.Duration `yaml:"max_age" mapstructure:"max_age" json:"max_age"`
}

func (c CORSConfig) GINConfig() cors.Config {
	return cors.Config{
		AllowOrigins:     c.AllowOrigins,
		AllowMethods:     c.AllowMethods,
		AllowHeaders:     c.AllowHeaders,
		MaxAge:           c.MaxAge,
		ExposeHeaders:    c.ExposeHeaders,
		AllowCredentials: c.AllowCredentials,
	}
}

func DefaultCORSConfig() CORSConfig {
	defaultMethods := make([]string, len(DefaultCORSAllowMethods))
	copy(defaultMethods, DefaultCORSAllowMethods)

	defaultHeaders := make([]string, len(DefaultCORSAllowHeaders))
	copy(defaultHeaders, DefaultCORSAllowHeaders)

	defaultExpose := make([]string, len(DefaultCORSExposeHeaders))
	copy(defaultExpose, DefaultCORSExposeHeaders)

	return CORSConfig{
		AllowOrigins:     []string{},
		AllowMethods:     defaultMethods,
		AllowHeaders:     defaultHeaders,
		ExposeHeaders:    defaultExpose,
		MaxAge:           DefaultCORSMaxAge,
		AllowCredentials: DefaultAPICORSAllowCredentials,
	}
}

// DefaultConfig returns a Config with all default settings populated
func DefaultConfig() *Config {
	mainLogLevel := &slog.LevelVar{}
	discordLogLevel := &slog.LevelVar{}
	discordgoLogLevel := &slog.LevelVar{}
	flarumLogLevel := &slog.LevelVar{}
	dbLogLevel := &slog.LevelVar{}
	apiLogLevel := &slog.LevelVar{}

	mainLogLevel.Set(DefaultLogLevel)
	discordLogLevel.Set(DefaultDiscordLogLevel)
	discordgoLogLevel.Set(DefaultDiscordgoLogLevel)
	flarumLogLevel.Set(DefaultFlarumLogLevel)
	dbLogLevel.Set(DefaultDatabaseLogLevel)
	apiLogLevel.Set(DefaultAPILogLevel)

	return &Config{
		DatabaseType:          DefaultDatabaseType,
		Database:              DefaultDatabase,
		DatabaseLogLevel:      dbLogLevel,
		DatabaseSlowThreshold: DefaultDatabaseSlowThreshold,
		LogLevel:              mainLogLevel,
		StartupTimeout:        DefaultStartupTimeout,
		ShutdownTimeout:       DefaultShutdownTimeout,
		Discord: &DiscordConfig{
			GatewayIntents:    DefaultDiscordGatewayIntent,
			LogLevel:          discordLogLevel,
			DiscordGoLogLevel: discordgoLogLevel,
			StartupMessage:    DefaultDiscordStartupMessage,
			CustomStatus:      DefaultDiscordCustomStatus,
			TierRoles:         map[string]string{},
		},
		Flarum: &FlarumConfig{
			HelpTag:        DefaultFlarumHelpTag,
			NewsTag:        DefaultFlarumNewsTag,
			PageLimit:      DefaultFlarumPageLimit,
			RequestTimeout: DefaultFlarumRequestTimeout,
			LogLevel:       flarumLogLevel,
		},
		Cache: &CacheConfig{
			SessionTTL:    DefaultSessionTTL,
			SweepInterval: DefaultSweepInterval,
		},
		News: &NewsConfig{
			Enabled:       true,
			CheckInterval: DefaultNewsCheckInterval,
			TimeRadius:    DefaultNewsTimeRadius,
		},
		API: &APIConfig{
			Listen:        DefaultAPIListen,
			ListenNetwork: defaultListenNetwork,
			SSL: SSLConfig{
				TLSMinVersion: DefaultAPITLSMinVersion,
			},
			LogLevel:          apiLogLevel,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			ReadTimeout:       DefaultReadTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
			CORS:              DefaultCORSConfig(),
		},
	}
}
