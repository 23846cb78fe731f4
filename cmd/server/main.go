/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the hospital ledger server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env + environment)
  2. Build the zap logger
  3. Initialize the SQLite store and verify the schema
  4. Seed the admin user if the users table is empty
  5. Wire the ledger engine, auth service and HTTP router
  6. Start server with graceful shutdown

CONFIGURATION:
  PORT          HTTP server port (default: 8080)
  DB_PATH       SQLite database path (default: ./data/hospital.db)
                Use ":memory:" for an in-memory database
  LOG_LEVEL     debug|info|warn|error (default: info)
  LOG_FORMAT    json|console (default: console)
  JWT_SECRET    Session token signing key (required)
  TOKEN_TTL     Session lifetime (default: 12h)
  CORS_ORIGINS  Allowed origins (default: *)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/medcore/hospital-ledger/api"
	"github.com/medcore/hospital-ledger/auth"
	"github.com/medcore/hospital-ledger/config"
	"github.com/medcore/hospital-ledger/ledger"
	"github.com/medcore/hospital-ledger/logger"
	"github.com/medcore/hospital-ledger/store/sqlite"
)

// defaultAdminPassword is used only when the users table is empty.
// Change it after first login.
const defaultAdminPassword = "admin123"

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "hospital-ledger")
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	missing, err := store.VerifySchema(ctx)
	if err != nil {
		log.Fatal("schema verification failed", zap.Error(err))
	}
	if len(missing) > 0 {
		log.Fatal("schema incomplete", zap.Strings("missing", missing))
	}

	if err := seedAdminUser(ctx, store, log); err != nil {
		log.Fatal("failed to seed admin user", zap.Error(err))
	}

	engine := ledger.New(store, log)
	authSvc := auth.NewService(userStore{store}, cfg.JWTSecret, cfg.TokenTTL)
	handler := api.NewHandler(store, engine, authSvc, log)
	router := api.NewRouter(handler, cfg.CORSOrigins)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("db", cfg.DBPath))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal("server forced to shutdown", zap.Error(err))
	}
	log.Info("server stopped")
}

// seedAdminUser creates the initial admin login when no users exist.
func seedAdminUser(ctx context.Context, store *sqlite.Store, log *zap.Logger) error {
	n, err := store.CountUsers(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	hash, err := auth.HashPassword(defaultAdminPassword)
	if err != nil {
		return err
	}
	if _, err := store.CreateUser(ctx, sqlite.User{
		Username:     "admin",
		PasswordHash: hash,
		Role:         auth.RoleAdmin,
	}); err != nil {
		return err
	}
	log.Warn("seeded default admin user; change the password",
		zap.String("username", "admin"))
	return nil
}

// userStore adapts the SQLite store to the auth.UserStore interface.
type userStore struct {
	store *sqlite.Store
}

func (u userStore) GetUserByUsername(ctx context.Context, username string) (*auth.StoredUser, error) {
	user, err := u.store.GetUserByUsername(ctx, username)
	if err != nil || user == nil {
		return nil, err
	}
	return &auth.StoredUser{
		ID:           user.ID,
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		Role:         user.Role,
	}, nil
}
