package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	auth "github.com/opendigitaleducation/edifice-mobile-framework-sub000"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/metrics/export/prometheus"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/navigation"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/platform"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/tokenstore"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/transport"
	"github.com/redis/go-redis/v9"
)

// report is printed on stdout. Navigation params are left out: they carry the
// typed password.
type report struct {
	Platform  string `json:"platform,omitempty"`
	LoggedIn  bool   `json:"loggedIn"`
	Login     string `json:"login,omitempty"`
	UserID    string `json:"userId,omitempty"`
	Scenario  string `json:"scenario,omitempty"`
	NextKind  string `json:"nextKind,omitempty"`
	NextRoute string `json:"nextRoute,omitempty"`
}

func main() {
	var (
		platformsPath = flag.String("platforms", "platforms.yaml", "platform registry file")
		platformName  = flag.String("platform", "", "platform to log in to; empty restores the last session")
		username      = flag.String("user", "", "login")
		password      = flag.String("password", "", "password; EMF_PASSWORD env is used when empty")
		remember      = flag.Bool("remember", false, "keep the session for the next run")
		redisAddr     = flag.String("redis-addr", "", "redis address for the token store; REDIS_ADDR env is used when empty")
		storeFile     = flag.String("store-file", "", "encrypted file token store, used when no redis address is set")
		passphrase    = flag.String("passphrase", "", "file store passphrase; EMF_STORE_PASSPHRASE env is used when empty")
		metricsAddr   = flag.String("metrics-addr", "", "serve prometheus metrics on this address after the login")
		pushToken     = flag.String("push-token", "", "register this push notification token with the session")
		verbose       = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := platform.LoadFile(*platformsPath)
	if err != nil {
		logger.Error("load platforms", "path", *platformsPath, "error", err)
		os.Exit(2)
	}

	store, closeStore, err := openStore(*redisAddr, *storeFile, *passphrase)
	if err != nil {
		logger.Error("open token store", "error", err)
		os.Exit(2)
	}
	defer closeStore()

	cfg := auth.DefaultConfig()
	cfg.Metrics.EnableLatencyHistograms = true

	client, err := transport.New(transport.Options{
		Timeout:   cfg.Transport.Timeout,
		RateLimit: cfg.Transport.RateLimit,
		Burst:     cfg.Transport.Burst,
		UserAgent: cfg.Transport.UserAgent,
	})
	if err != nil {
		logger.Error("build transport", "error", err)
		os.Exit(2)
	}

	builder := auth.New().
		WithConfig(cfg).
		WithPlatforms(registry).
		WithTransport(client).
		WithTokenStore(store).
		WithLogger(logger)
	if *pushToken != "" {
		builder.WithDeviceRegistrar(auth.NewTimelineRegistrar(client, staticPushToken(*pushToken)))
	}

	engine, err := builder.Build()
	if err != nil {
		logger.Error("build engine", "error", err)
		os.Exit(2)
	}
	defer engine.Close()

	res, err := run(ctx, engine, *platformName, *username, *password, *remember)
	if err != nil {
		logger.Error("login failed", "kind", auth.ErrorKind(err), "error", err)
		os.Exit(1)
	}

	state := engine.State()
	out := report{
		Platform: state.Platform,
		LoggedIn: state.LoggedIn(),
	}
	next := navigation.Project(navigation.Input{
		Result:      res,
		Session:     state.Session,
		PhoneRegion: cfg.Activation.PhoneRegion,
	})
	if next != nil {
		out.NextKind = string(next.Kind)
		out.NextRoute = next.Route
	}
	if s := state.Session; s != nil {
		out.Login = s.User.Login
		out.UserID = s.User.ID
		out.Scenario = string(s.Scenario)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.Error("write report", "error", err)
		os.Exit(1)
	}

	if *metricsAddr != "" {
		serveMetrics(ctx, logger, *metricsAddr, engine)
	}
}

func run(ctx context.Context, engine *auth.Engine, name, username, password string, remember bool) (*auth.LoginResult, error) {
	if name == "" {
		return engine.Restore(ctx)
	}

	p, err := engine.Platforms().Get(name)
	if err != nil {
		return nil, err
	}
	if password == "" {
		password = os.Getenv("EMF_PASSWORD")
	}
	if username == "" || password == "" {
		return nil, errors.New("user and password are required to log in")
	}

	return engine.Login(ctx, p, &auth.Credentials{Username: username, Password: password}, auth.LoginOptions{
		RememberMe:     remember,
		ErrorTimestamp: time.Now(),
	})
}

func staticPushToken(token string) auth.PushTokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

func openStore(redisAddr, storeFile, passphrase string) (*tokenstore.Store, func(), error) {
	if redisAddr == "" {
		redisAddr = os.Getenv("REDIS_ADDR")
	}
	if redisAddr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{redisAddr}})
		return tokenstore.New(tokenstore.NewRedisBackend(client, "emf", "cli")), func() { _ = client.Close() }, nil
	}

	if storeFile != "" {
		if passphrase == "" {
			passphrase = os.Getenv("EMF_STORE_PASSPHRASE")
		}
		backend, err := tokenstore.NewFileBackend(storeFile, passphrase, tokenstore.DefaultKDF)
		if err != nil {
			return nil, nil, fmt.Errorf("file store %s: %w", storeFile, err)
		}
		return tokenstore.New(backend), func() {}, nil
	}

	return tokenstore.New(tokenstore.NewMemoryBackend()), func() {}, nil
}

func serveMetrics(ctx context.Context, logger *slog.Logger, addr string, engine *auth.Engine) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", prometheus.NewPrometheusExporter(engine).Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server", "error", err)
	}
}
