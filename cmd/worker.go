package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/procurex/requisition-engine/internal/mailer"
	"github.com/procurex/requisition-engine/internal/notification"
	notificationPostgres "github.com/procurex/requisition-engine/internal/notification/postgres"
	"github.com/procurex/requisition-engine/internal/user"
	userPostgres "github.com/procurex/requisition-engine/internal/user/postgres"
	"github.com/procurex/requisition-engine/pkg/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start worker pools for various services",
	Long:  `Start and manage background workers, currently the notification email delivery worker.`,
}

var notificationWorkerCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Start notification delivery worker",
	Long:  `Start the worker that drains pending notification delivery jobs and sends emails`,
	Run: func(cmd *cobra.Command, args []string) {
		startNotificationWorker()
	},
}

var (
	maxWorkers int
	batchSize  int
	maxRetries int
)

func startNotificationWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(os.Getenv("APP_ENV"), config.Observability.Logging.Level)
	lg := logger.LoggerWrapper()

	sqlDB, err := initDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}

	db, err := gorm.Open(gormPostgres.New(gormPostgres.Config{Conn: sqlDB.DB}), &gorm.Config{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open gorm: %v\n", err)
		os.Exit(1)
	}

	workerConfig := notification.DeliveryWorkerConfig{
		MaxWorkers:   getIntFlag(maxWorkers, config.Notification.MaxWorkers),
		BatchSize:    getIntFlag(batchSize, config.Notification.JobQueueSize),
		MaxRetries:   getIntFlag(maxRetries, config.Notification.MaxRetries),
		PollInterval: config.Notification.PollInterval,
	}

	lg.Info("starting notification delivery worker",
		"max_workers", workerConfig.MaxWorkers,
		"batch_size", workerConfig.BatchSize,
		"max_retries", workerConfig.MaxRetries,
		"poll_interval", workerConfig.PollInterval)

	sender := mailer.NewClient(mailer.Config{
		APIURL:        config.Notification.EmailAPIURL,
		APIKey:        config.Notification.APIKey,
		SenderAddress: config.Notification.SenderAddress,
		SendTimeout:   config.Notification.SendTimeout,
	}, lg)

	userService := user.NewService(userPostgres.NewRepository(db))
	worker := notification.NewDeliveryWorker(
		notificationPostgres.NewNotificationRepository(db),
		userService,
		sender,
		lg,
		workerConfig,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lg.Info("notification worker is running. Press Ctrl+C to stop.")
	worker.Run(ctx)

	if err := sqlDB.Close(); err != nil {
		lg.Error("database close error", "error", err)
	}
	lg.Info("notification worker shutdown complete")
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	notificationWorkerCmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "Maximum number of workers (overrides config)")
	notificationWorkerCmd.Flags().IntVar(&batchSize, "batch-size", 0, "Delivery job batch size (overrides config)")
	notificationWorkerCmd.Flags().IntVar(&maxRetries, "max-retries", 0, "Delivery attempt limit (overrides config)")

	workerCmd.AddCommand(notificationWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
