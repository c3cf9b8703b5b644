package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-wallet-auth/internal/application/auth"
	"github.com/go-wallet-auth/internal/application/token"
	"github.com/go-wallet-auth/internal/config"
	"github.com/go-wallet-auth/internal/infrastructure/dynamo"
	"github.com/go-wallet-auth/internal/infrastructure/ethrpc"
	"github.com/go-wallet-auth/internal/infrastructure/secrets"
	"github.com/go-wallet-auth/internal/infrastructure/signer"
	"github.com/go-wallet-auth/internal/infrastructure/sns"
	"github.com/go-wallet-auth/internal/logging"
	transporthttp "github.com/go-wallet-auth/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.IsDevelopment())
	slog.SetDefault(logger)
	if envErr != nil {
		slog.Info("no .env file found, reading from environment")
	}

	if err := run(cfg); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	dynamoClient, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		return err
	}
	if cfg.DynamoBootstrap {
		// Creates the users table, wallet index and TTL if they don't exist.
		dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)
	}

	tokenSigner, err := newSigner(ctx, cfg)
	if err != nil {
		return err
	}
	tokens := token.NewService(tokenSigner, token.Options{
		Issuer:        cfg.TokenIssuer,
		Audience:      cfg.TokenAudience,
		AccessExpiry:  cfg.AccessTokenExpiry,
		RefreshExpiry: cfg.RefreshTokenExpiry,
	})

	deps := &transporthttp.Deps{
		UserRepo:  dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users),
		Tokens:    tokens,
		Validator: newAddressValidator(ctx, cfg),
	}
	if cfg.LoginTopicARN != "" {
		snsClient, err := sns.NewClient(ctx, cfg)
		if err != nil {
			return err
		}
		deps.Events = sns.NewPublisher(snsClient, cfg.LoginTopicARN)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      transporthttp.NewRouter(cfg, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

// newSigner prefers the managed KMS key and falls back to a local PEM key.
func newSigner(ctx context.Context, cfg *config.Config) (token.Signer, error) {
	if cfg.KMSKeyID != "" {
		client, err := signer.NewKMSClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		slog.Info("signing tokens with KMS", "key_id", cfg.KMSKeyID)
		return signer.NewKMSSigner(client, cfg.KMSKeyID), nil
	}
	slog.Warn("KMS_KEY_ID not set, signing tokens with local key", "path", cfg.JWTPrivateKeyPath)
	return signer.NewFileSigner(cfg.JWTPrivateKeyPath)
}

// newAddressValidator returns nil when the check is disabled or its secret
// cannot be read. The check is optional, so neither stops startup.
func newAddressValidator(ctx context.Context, cfg *config.Config) auth.AddressValidator {
	if cfg.ValidationSecretID == "" {
		return nil
	}
	client, err := secrets.NewClient(ctx, cfg)
	if err != nil {
		slog.Warn("address validation disabled", "err", err)
		return nil
	}
	creds, err := secrets.NewProvider(client).Credentials(ctx, cfg.ValidationSecretID)
	if err != nil {
		slog.Warn("address validation disabled", "err", err)
		return nil
	}
	v := ethrpc.NewValidator(cfg.EthRPCURL, creds, cfg.RequestTimeout/2)
	if v == nil {
		slog.Info("address validation disabled by secret")
		return nil
	}
	return v
}
