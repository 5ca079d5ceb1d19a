package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"

	"github.com/freemchost/forumbot/forumbot"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfg        = forumbot.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use: "forumbot [flags]",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		err := viper.Unmarshal(
			cfg,
			viper.DecodeHook(
				mapstructure.ComposeDecodeHookFunc(
					mapstructure.StringToTimeDurationHookFunc(),
					LevelToStringHookFunc(),
				),
			),
		)
		if err != nil {
			log.Fatalln(err)
		}
	},
}

func getLogLevel(level string) (slog.Level, error) {
	switch level {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}

		typ := t.Elem()

		if typ != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s", data)
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initConfig() {
	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		fmt.Println("loading env from file", configFile)
		if err := godotenv.Load(configFile); err != nil {
			log.Println("No .env file found")
		}
	}

	viper.SetDefault("database", forumbot.DefaultDatabase)
	viper.SetDefault("database_type", forumbot.DefaultDatabaseType)
	viper.SetDefault(
		"database_slow_threshold",
		forumbot.DefaultDatabaseSlowThreshold,
	)
	viper.SetDefault(
		"database_log_level",
		forumbot.DefaultDatabaseLogLevel.String(),
	)

	viper.SetDefault("log_level", forumbot.DefaultLogLevel.String())

	viper.SetDefault("startup_timeout", forumbot.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", forumbot.DefaultShutdownTimeout)

	// Discord config
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.application_id", "")
	viper.SetDefault("discord.guild_id", "")
	viper.SetDefault("discord.client_id", "")
	viper.SetDefault("discord.client_secret", "")
	viper.SetDefault("discord.news_channel_id", "")
	viper.SetDefault("discord.staff_channel_id", "")
	viper.SetDefault("discord.log_channel_id", "")
	viper.SetDefault("discord.staff_role_id", "")
	viper.SetDefault(
		"discord.log_level",
		forumbot.DefaultDiscordLogLevel.String(),
	)
	viper.SetDefault(
		"discord.discordgo_log_level",
		forumbot.DefaultDiscordgoLogLevel.String(),
	)
	viper.SetDefault(
		"discord.gateway_intents",
		forumbot.DefaultDiscordGatewayIntent,
	)
	viper.SetDefault(
		"discord.startup_message",
		forumbot.DefaultDiscordStartupMessage,
	)
	viper.SetDefault(
		"discord.custom_status",
		forumbot.DefaultDiscordCustomStatus,
	)

	// Flarum config
	viper.SetDefault("flarum.url", "")
	viper.SetDefault("flarum.help_tag", forumbot.DefaultFlarumHelpTag)
	viper.SetDefault("flarum.news_tag", forumbot.DefaultFlarumNewsTag)
	viper.SetDefault("flarum.page_limit", forumbot.DefaultFlarumPageLimit)
	viper.SetDefault(
		"flarum.request_timeout",
		forumbot.DefaultFlarumRequestTimeout,
	)
	viper.SetDefault("flarum.log_level", forumbot.DefaultFlarumLogLevel.String())

	// Search session cache
	viper.SetDefault("cache.session_ttl", forumbot.DefaultSessionTTL)
	viper.SetDefault("cache.sweep_interval", forumbot.DefaultSweepInterval)

	// News watcher
	viper.SetDefault("news.enabled", true)
	viper.SetDefault("news.check_interval", forumbot.DefaultNewsCheckInterval)
	viper.SetDefault("news.time_radius", forumbot.DefaultNewsTimeRadius)

	// API config
	viper.SetDefault("api.listen", forumbot.DefaultAPIListen)
	viper.SetDefault("api.listen_network", "tcp")
	viper.SetDefault("api.key", "")
	viper.SetDefault("api.log_level", forumbot.DefaultAPILogLevel.String())
	viper.SetDefault("api.development", false)

	viper.SetDefault("api.read_timeout", forumbot.DefaultReadTimeout)
	viper.SetDefault(
		"api.read_header_timeout",
		forumbot.DefaultReadHeaderTimeout,
	)
	viper.SetDefault("api.write_timeout", forumbot.DefaultWriteTimeout)
	viper.SetDefault("api.idle_timeout", forumbot.DefaultIdleTimeout)

	fatalErr := func(err error) {
		if err != nil {
			log.Fatalf("error: %v", err)
		}
	}

	// API: SSL config
	fatalErr(viper.BindEnv("api.ssl.cert"))
	fatalErr(viper.BindEnv("api.ssl.key"))
	fatalErr(viper.BindEnv("api.ssl.tls_min_version"))

	// API: CORS config
	viper.SetDefault(
		"api.cors.allow_headers",
		forumbot.DefaultCORSAllowHeaders,
	)
	viper.SetDefault(
		"api.cors.allow_methods",
		forumbot.DefaultCORSAllowMethods,
	)
	viper.SetDefault(
		"api.cors.expose_headers",
		forumbot.DefaultCORSExposeHeaders,
	)
	viper.SetDefault(
		"api.cors.allow_origins",
		[]string{},
	)
	viper.SetDefault("api.cors.max_age", forumbot.DefaultCORSMaxAge)
	viper.SetDefault(
		"api.cors.allow_credentials",
		forumbot.DefaultAPICORSAllowCredentials,
	)

	envPrefix := os.Getenv(forumbot.EnvvarSetEnvPrefix)
	if envPrefix == "" {
		envPrefix = forumbot.DefaultEnvPrefix
	}
	viper.SetEnvPrefix(envPrefix)

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	// Convert values to correct types
	viper.Set(
		"api.cors.allow_headers",
		viper.GetStringSlice("api.cors.allow_headers"),
	)
	viper.Set(
		"api.cors.allow_origins",
		viper.GetStringSlice("api.cors.allow_origins"),
	)
	viper.Set(
		"api.cors.allow_methods",
		viper.GetStringSlice("api.cors.allow_methods"),
	)
	viper.Set(
		"api.cors.expose_headers",
		viper.GetStringSlice("api.cors.expose_headers"),
	)

	for _, key := range []string{
		"log_level",
		"database_log_level",
		"discord.log_level",
		"discord.discordgo_log_level",
		"flarum.log_level",
		"api.log_level",
	} {
		logLevelVar, err := levelStringToLevelVar(viper.GetString(key))
		if err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		viper.Set(key, logLevelVar)
	}
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Config file to use",
	)
}
