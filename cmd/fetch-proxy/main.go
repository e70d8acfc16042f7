package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/resilient-fetch/pkg/auth"
	"github.com/Sternrassler/resilient-fetch/pkg/client"
	"github.com/Sternrassler/resilient-fetch/pkg/logging"
	"github.com/Sternrassler/resilient-fetch/pkg/policy"
	"github.com/Sternrassler/resilient-fetch/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "fetch-proxy",
	Short: "Resilient GET gateway with caching, retries and stale fallback",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if file := viper.GetString("config"); file != "" {
			viper.SetConfigFile(file)
			if err := viper.ReadInConfig(); err != nil {
				return fmt.Errorf("read config %s: %w", file, err)
			}
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP gateway",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, loadConfig())
	},
}

var getCmd = &cobra.Command{
	Use:   "get <path-or-url>",
	Short: "Fetch one resource and print the response envelope",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGet(cmd.Context(), loadConfig(), args[0], cmd.OutOrStdout())
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (yaml, json or toml)")
	flags.String("base-url", "", "base URL for relative paths")
	flags.Duration("timeout", client.DefaultTimeout, "per-attempt timeout")
	flags.Int("max-retries", 2, "retries after the first attempt")
	flags.Duration("base-delay", 250*time.Millisecond, "delay before the first retry")
	flags.Duration("max-delay", 2*time.Second, "backoff cap")
	flags.Duration("cache-ttl", 30*time.Second, "freshness window")
	flags.Duration("stale-if-error", 5*time.Minute, "stale fallback window")
	flags.Bool("allow-stale", true, "serve stale entries when every attempt fails")
	flags.String("token", "", "static bearer token")
	flags.String("oauth-token-url", "", "OAuth2 client-credentials token endpoint")
	flags.String("oauth-client-id", "", "OAuth2 client ID")
	flags.String("oauth-client-secret", "", "OAuth2 client secret")
	flags.StringSlice("oauth-scopes", nil, "OAuth2 scopes")
	flags.String("redis-addr", "", "Redis address for shared upstream budget state")
	flags.String("log-level", "info", "log level (debug, info, warn, error, disabled)")
	flags.Bool("log-pretty", false, "human-readable console logs")

	serveFlags := serveCmd.Flags()
	serveFlags.String("addr", ":8080", "listen address")
	serveFlags.Float64("client-rate", 10, "requests per second per client IP")
	serveFlags.Int("client-burst", 20, "burst per client IP")
	serveFlags.String("admin-token", "", "bearer token required by DELETE /cache (empty disables it)")

	viper.SetEnvPrefix("fetch")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlags(flags)
	_ = viper.BindPFlags(serveFlags)

	rootCmd.AddCommand(serveCmd, getCmd)
}

// proxyConfig is the resolved configuration of one run.
type proxyConfig struct {
	Addr        string
	ClientRate  float64
	ClientBurst int
	AdminToken  string

	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	CacheTTL     time.Duration
	StaleIfError time.Duration
	AllowStale   bool

	Token             string
	OAuthTokenURL     string
	OAuthClientID     string
	OAuthClientSecret string
	OAuthScopes       []string

	RedisAddr string

	LogLevel  string
	LogPretty bool
}

func loadConfig() proxyConfig {
	return proxyConfig{
		Addr:              viper.GetString("addr"),
		ClientRate:        viper.GetFloat64("client-rate"),
		ClientBurst:       viper.GetInt("client-burst"),
		AdminToken:        viper.GetString("admin-token"),
		BaseURL:           viper.GetString("base-url"),
		Timeout:           viper.GetDuration("timeout"),
		MaxRetries:        viper.GetInt("max-retries"),
		BaseDelay:         viper.GetDuration("base-delay"),
		MaxDelay:          viper.GetDuration("max-delay"),
		CacheTTL:          viper.GetDuration("cache-ttl"),
		StaleIfError:      viper.GetDuration("stale-if-error"),
		AllowStale:        viper.GetBool("allow-stale"),
		Token:             viper.GetString("token"),
		OAuthTokenURL:     viper.GetString("oauth-token-url"),
		OAuthClientID:     viper.GetString("oauth-client-id"),
		OAuthClientSecret: viper.GetString("oauth-client-secret"),
		OAuthScopes:       viper.GetStringSlice("oauth-scopes"),
		RedisAddr:         viper.GetString("redis-addr"),
		LogLevel:          viper.GetString("log-level"),
		LogPretty:         viper.GetBool("log-pretty"),
	}
}

// buildClient wires the fetch client from cfg. The returned cleanup closes
// the client and the Redis connection if one was opened.
func buildClient(ctx context.Context, cfg proxyConfig, logger zerolog.Logger) (*client.Client, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var tokenProvider auth.TokenProvider
	switch {
	case cfg.OAuthTokenURL != "":
		p, err := auth.ClientCredentials(ctx, auth.ClientCredentialsConfig{
			TokenURL:     cfg.OAuthTokenURL,
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			Scopes:       cfg.OAuthScopes,
		})
		if err != nil {
			return nil, func() {}, err
		}
		tokenProvider = p
	case cfg.Token != "":
		tokenProvider = auth.Static(cfg.Token)
	}

	var limiter *ratelimit.Tracker
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		closers = append(closers, func() { redisClient.Close() })

		if err := redisClient.Ping(ctx).Err(); err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		logger.Info().Str("addr", cfg.RedisAddr).Msg("Connected to Redis")

		limiter = ratelimit.NewTracker(ratelimit.NewRedisStateStore(redisClient), ratelimit.DefaultConfig(), logger)
	}

	c, err := client.New(client.Config{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
		Retry: policy.RetryOverrides{
			MaxRetries: policy.Int(cfg.MaxRetries),
			BaseDelay:  policy.Duration(cfg.BaseDelay),
			MaxDelay:   policy.Duration(cfg.MaxDelay),
		},
		Cache: policy.CacheOverrides{
			TTL:          policy.Duration(cfg.CacheTTL),
			StaleIfError: policy.Duration(cfg.StaleIfError),
		},
		TokenProvider:     tokenProvider,
		AllowStaleOnError: client.Bool(cfg.AllowStale),
		RateLimiter:       limiter,
		Logger:            &logger,
	})
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	closers = append(closers, func() { c.Close() })

	return c, cleanup, nil
}

func setupLogging(cfg proxyConfig) zerolog.Logger {
	return logging.Setup(logging.Config{
		Level:   logging.LogLevel(cfg.LogLevel),
		Pretty:  cfg.LogPretty,
		Output:  os.Stderr,
		Service: "fetch-proxy",
	})
}

func runServe(ctx context.Context, cfg proxyConfig) error {
	setupLogging(cfg)
	logger := logging.NewLogger("gateway")

	c, cleanup, err := buildClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newServer(c, newIPRateLimiter(cfg.ClientRate, cfg.ClientBurst), cfg.AdminToken, logger).routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.Addr).
			Str("base_url", cfg.BaseURL).
			Msg("Starting fetch proxy")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down fetch proxy")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runGet(ctx context.Context, cfg proxyConfig, pathOrURL string, out io.Writer) error {
	setupLogging(cfg)
	logger := logging.NewLogger("cli")

	c, cleanup, err := buildClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := c.Get(ctx, pathOrURL, nil)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("fetch failed: %s", resp.Error)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
