// Command authcontextd serves a login form flow on top of the authentication
// context service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/acme-app/authcontext"
	"github.com/acme-app/authcontext/bearer"
	"github.com/acme-app/authcontext/config"
	"github.com/acme-app/authcontext/core"
	"github.com/acme-app/authcontext/credential"
	"github.com/acme-app/authcontext/csrf"
	"github.com/acme-app/authcontext/directory"
	authgrpc "github.com/acme-app/authcontext/framework/grpc"
	"github.com/acme-app/authcontext/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "authcontextd: %v\n", err)
		os.Exit(2)
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "authcontextd: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("authcontextd stopped")
	}
}

func newLogger(cfg config.Config) (*logrus.Logger, error) {
	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	log.SetLevel(level)

	switch cfg.LogFormat {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}
	return log, nil
}

func run(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	logger := authcontext.NewLogrusLogger(log)

	db, err := directory.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	users := directory.NewSQLDirectory(db)
	if err := users.CreateSchema(ctx); err != nil {
		return err
	}
	if err := seedUser(ctx, cfg, users); err != nil {
		return err
	}

	sessions, err := newSessionBackend(ctx, cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tokens := csrf.NewManager()
	svc, err := core.New(
		core.WithUserDirectory(users),
		core.WithCredentialVerifier(credential.NewBcryptVerifier()),
		core.WithCsrfTokenValidator(tokens),
		core.WithLogger(logger),
		core.WithMetrics(authcontext.NewPrometheusMetrics(reg)),
	)
	if err != nil {
		return fmt.Errorf("configure service: %w", err)
	}

	var issuer *bearer.Authenticator
	if cfg.BearerEnabled() {
		opts := []bearer.Option{bearer.WithIssuer(cfg.BearerIssuer)}
		if cfg.BearerAudience != "" {
			opts = append(opts, bearer.WithAudience(cfg.BearerAudience))
		}
		issuer, err = bearer.New(users, "HS256", []byte(cfg.BearerSecret), opts...)
		if err != nil {
			return fmt.Errorf("configure bearer authenticator: %w", err)
		}
	}

	cookie := authcontext.DefaultCookieConfig()
	cookie.Name = cfg.CookieName
	cookie.Secure = cfg.CookieSecure

	a, err := newApp(svc, sessions, tokens, issuer, cfg.BearerTTL, cookie, logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           a.routes(reg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		grpcSrv, err = newGRPCServer(svc, issuer, logger)
		if err != nil {
			return err
		}
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		go func() {
			log.WithField("addr", cfg.GRPCAddr).Info("grpc server listening")
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	return httpSrv.Shutdown(shutdownCtx)
}

func newSessionBackend(ctx context.Context, cfg config.Config) (session.Backend, error) {
	if cfg.SessionBackend != config.SessionRedis {
		return session.NewMemoryBackend(cfg.SessionTTL), nil
	}

	client, err := session.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, err
	}
	return session.NewRedisBackend(client, session.WithTTL(cfg.SessionTTL))
}

func seedUser(ctx context.Context, cfg config.Config, users *directory.SQLDirectory) error {
	if cfg.SeedEmail == "" {
		return nil
	}

	hash, err := credential.Hash(cfg.SeedPassword, cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}
	err = users.Create(ctx, &core.User{Email: cfg.SeedEmail, PasswordHash: hash})
	if errors.Is(err, directory.ErrEmailTaken) {
		return nil
	}
	return err
}

// newGRPCServer serves the health service behind the bearer interceptor.
// Health checks themselves stay reachable without a token.
func newGRPCServer(svc *core.Service, issuer *bearer.Authenticator, logger core.Logger) (*grpc.Server, error) {
	interceptor, err := authgrpc.New(
		authgrpc.WithService(svc),
		authgrpc.WithAuthenticator(issuer),
		authgrpc.WithLogger(logger),
		authgrpc.WithExcludedMethods(
			healthpb.Health_Check_FullMethodName,
			healthpb.Health_Watch_FullMethodName,
		),
	)
	if err != nil {
		return nil, fmt.Errorf("configure grpc interceptor: %w", err)
	}

	srv := grpc.NewServer(
		grpc.UnaryInterceptor(interceptor.UnaryServerInterceptor()),
		grpc.StreamInterceptor(interceptor.StreamServerInterceptor()),
	)
	healthpb.RegisterHealthServer(srv, health.NewServer())
	return srv, nil
}
