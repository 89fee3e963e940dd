// Command diagramhub runs the diagram workbench server: REST API, WebSocket
// collaboration hub, and the background reapers that keep storage and
// thumbnails tidy.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/evalgo-org/diagramhub/api"
	"github.com/evalgo-org/diagramhub/common"
	"github.com/evalgo-org/diagramhub/config"
	"github.com/evalgo-org/diagramhub/hub"
	"github.com/evalgo-org/diagramhub/quota"
	"github.com/evalgo-org/diagramhub/storage"
	"github.com/evalgo-org/diagramhub/thumbnail"
	"github.com/evalgo-org/diagramhub/tokenauth"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const envPrefix = "DIAGRAMHUB"

func main() {
	loadConfigFileOverlay()
	setDefaultEnv(envPrefix+"_NAME", "diagramhub")
	setDefaultEnv(envPrefix+"_ENVIRONMENT", "development")
	setDefaultEnv(envPrefix+"_LOG_LEVEL", "info")

	cfg, err := config.NewConfigLoader(envPrefix).LoadAll()
	if err != nil {
		fmt.Fprintf(os.Stderr, "diagramhub: invalid configuration: %v\n", err)
		os.Exit(1)
	}
	env := config.NewEnvConfig(envPrefix)

	logger := common.NewLogger(common.LoggerConfig{
		Level:      common.LogLevel(cfg.Service.LogLevel),
		Format:     cfg.Service.LogFormat,
		AddCaller:  false,
		TimeFormat: time.RFC3339,
	})
	entry := logrus.NewEntry(logger).WithField("service", cfg.Service.Name)

	serverCfg := cfg.Server
	authCfg := cfg.Auth
	corsCfg := cfg.CORS

	dbPath := env.GetString("DB_PATH", "./diagramhub.db")
	dataDir := env.GetString("DATA_DIR", "./data")

	guard := quota.NewGuard(quota.DefaultLimits())

	sqliteStore, err := storage.Open(dbPath, guard, entry)
	if err != nil {
		entry.WithError(err).Fatal("failed to open storage engine")
	}

	protectedStore := storage.NewProtected(sqliteStore, entry)
	defer protectedStore.Close()

	thumbs, err := thumbnail.New(dataDir, entry)
	if err != nil {
		entry.WithError(err).Fatal("failed to open thumbnail store")
	}

	roomHub := hub.New(entry)

	verifier := buildVerifier(authCfg, entry)

	reaperStop := make(chan struct{})
	roomHub.RunReaper(reaperStop)
	go thumbs.RunReaper(30*time.Second, 1*time.Hour, thumbnail.OrphanGrace, func() map[string]bool {
		return existingDiagramIDs(protectedStore, entry)
	}, reaperStop)

	apiConfig := api.DefaultConfig()
	apiConfig.Port = serverCfg.Port
	apiConfig.Debug = serverCfg.Debug
	apiConfig.ReadTimeout = serverCfg.ReadTimeout
	apiConfig.WriteTimeout = serverCfg.WriteTimeout
	apiConfig.ShutdownTimeout = serverCfg.ShutdownTimeout
	apiConfig.AllowedOrigins = corsCfg.AllowedOrigins

	srv := api.New(apiConfig, protectedStore, guard, thumbs, roomHub, verifier, entry)

	go func() {
		if err := srv.Start(); err != nil {
			entry.WithError(err).Info("server stopped")
		}
	}()

	quitCh := make(chan os.Signal, 1)
	signal.Notify(quitCh, syscall.SIGINT, syscall.SIGTERM)
	<-quitCh

	entry.Info("shutting down")
	close(reaperStop)

	ctx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		entry.WithError(err).Error("graceful shutdown failed")
	}
}

// loadConfigFileOverlay loads an optional TOML/YAML/JSON config file into
// the process environment, so config.EnvConfig picks up file-provided
// values the same way it would env vars. Env vars still win: Viper only
// seeds variables that aren't already set.
func loadConfigFileOverlay() {
	path := os.Getenv(envPrefix + "_CONFIG_FILE")
	if path == "" {
		return
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "diagramhub: failed to read config file %s: %v\n", path, err)
		return
	}

	for _, key := range v.AllKeys() {
		envKey := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		setDefaultEnv(envKey, v.GetString(key))
	}
}

func setDefaultEnv(key, value string) {
	if os.Getenv(key) == "" {
		_ = os.Setenv(key, value)
	}
}

func buildVerifier(authCfg config.AuthConfig, logger *logrus.Entry) api.TokenVerifier {
	var verifiers []tokenauth.Verifier

	if authCfg.JWTSecret != "" {
		issuer := os.Getenv(envPrefix + "_AUTH_JWT_ISSUER")
		audience := os.Getenv(envPrefix + "_AUTH_JWT_AUDIENCE")
		logger.WithField("jwtSecret", common.MaskSecret(authCfg.JWTSecret)).Info("JWT verifier configured")
		if issuer != "" {
			verifiers = append(verifiers, tokenauth.NewJWTVerifierWithIssuer(authCfg.JWTSecret, issuer, audience))
		} else {
			verifiers = append(verifiers, tokenauth.NewJWTVerifier(authCfg.JWTSecret))
		}
	}

	if providerURL := os.Getenv(envPrefix + "_OIDC_PROVIDER_URL"); providerURL != "" {
		oidcVerifier, err := tokenauth.NewOIDCVerifier(context.Background(), tokenauth.OIDCConfig{
			ProviderURL: providerURL,
			ClientID:    os.Getenv(envPrefix + "_OIDC_CLIENT_ID"),
		})
		if err != nil {
			logger.WithError(err).Warn("OIDC verifier unavailable, continuing without it")
		} else {
			verifiers = append(verifiers, oidcVerifier)
		}
	}

	switch len(verifiers) {
	case 0:
		logger.Warn("no token verifier configured, all connections are anonymous")
		return nil
	case 1:
		return verifiers[0]
	default:
		return tokenauth.NewChainVerifier(verifiers...)
	}
}

func existingDiagramIDs(store storage.Engine, logger *logrus.Entry) map[string]bool {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	diagrams, err := store.List(ctx, "")
	if err != nil {
		logger.WithError(err).Warn("failed to list diagrams for thumbnail reaper")
		return map[string]bool{}
	}

	ids := make(map[string]bool, len(diagrams))
	for _, d := range diagrams {
		ids[d.ID] = true
	}
	return ids
}
