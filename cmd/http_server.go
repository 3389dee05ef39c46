package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/procurex/requisition-engine/internal"
	"github.com/procurex/requisition-engine/internal/auth"
	authPostgres "github.com/procurex/requisition-engine/internal/auth/postgres"
	"github.com/procurex/requisition-engine/internal/budget"
	budgetPostgres "github.com/procurex/requisition-engine/internal/budget/postgres"
	"github.com/procurex/requisition-engine/internal/core/events"
	"github.com/procurex/requisition-engine/internal/notification"
	notificationPostgres "github.com/procurex/requisition-engine/internal/notification/postgres"
	"github.com/procurex/requisition-engine/internal/requisition"
	requisitionPostgres "github.com/procurex/requisition-engine/internal/requisition/postgres"
	"github.com/procurex/requisition-engine/internal/sequence"
	sequencePostgres "github.com/procurex/requisition-engine/internal/sequence/postgres"
	"github.com/procurex/requisition-engine/internal/tenant"
	tenantPostgres "github.com/procurex/requisition-engine/internal/tenant/postgres"
	"github.com/procurex/requisition-engine/internal/transport/rest"
	"github.com/procurex/requisition-engine/internal/user"
	userPostgres "github.com/procurex/requisition-engine/internal/user/postgres"
	"github.com/procurex/requisition-engine/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config *internal.Config
	DB     *sqlx.DB
	GormDB *gorm.DB
	Router *chi.Mux
	Logger *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	if err := setupRoutes(deps); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up routes: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func setupRoutes(deps *Dependencies) error {
	cfg := deps.Config
	lg := deps.Logger

	// Fail fast on a broken API contract before accepting traffic.
	if err := validateOpenAPISpec(cfg.Server.OpenAPISpecPath); err != nil {
		return fmt.Errorf("openapi spec validation: %w", err)
	}

	bus := events.NewEventBus(lg)

	// auth
	tokenGen := auth.NewJWTTokenGenerator(cfg.Security.AccessTokenSecret, cfg.Security.RefreshTokenSecret)
	tokenGen.AccessTokenTTL = cfg.Security.AccessTokenDuration
	tokenGen.RefreshTokenTTL = cfg.Security.RefreshTokenDuration
	authService := auth.NewService(authPostgres.NewRepository(deps.GormDB), tokenGen, cfg.Security.BCryptCost)
	authHandler := auth.NewHandler(authService)

	// users
	userService := user.NewService(userPostgres.NewRepository(deps.GormDB))
	userHandler := user.NewHandler(userService)

	// tenant resolution and the cross-org guard
	resolver := tenant.NewResolver(tenantPostgres.NewMembershipRepository(deps.GormDB), lg)
	guard := tenant.NewGuard(tenantPostgres.NewAuditRepository(deps.GormDB), lg)

	// requisition workflow
	ledger := budget.NewLedger(budgetPostgres.NewProjectRepository(), lg)
	numbers := sequence.NewGenerator(sequencePostgres.NewCounterRepository(), lg)
	requisitionService := requisition.NewService(
		deps.GormDB,
		requisitionPostgres.NewRequisitionRepository(),
		ledger,
		numbers,
		guard,
		resolver,
		bus,
		lg,
		cfg.Database.LockTimeout,
	)
	requisitionHandler := requisition.NewHandler(requisitionService, resolver)

	// notifications
	notificationRepo := notificationPostgres.NewNotificationRepository(deps.GormDB)
	dispatcher := notification.NewDispatcher(
		notificationRepo,
		notificationPostgres.NewRecipientDirectory(deps.GormDB),
		userService,
		lg,
		cfg.Notification.EmailEnabled,
	)
	dispatcher.Register(bus)

	notificationService := notification.NewService(notificationRepo, lg)
	notificationHandler := notification.NewHandler(notificationService)

	rest.RegisterAllRoutes(deps.Router, deps.DB.DB, authHandler, userHandler, requisitionHandler, notificationHandler, lg)
	return nil
}

func validateOpenAPISpec(path string) error {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return doc.Validate(loader.Context)
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"), config.Observability.Logging.Level)
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := gorm.Open(gormPostgres.New(gormPostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm over pgx pool: %w", err)
	}

	return &Dependencies{
		Config: config,
		Logger: lg,
		DB:     db,
		GormDB: gormDB,
		Router: chi.NewRouter(),
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
