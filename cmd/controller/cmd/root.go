package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/gitopslab/sync-controller/internal/controller"
)

//nolint:gochecknoglobals // set by SetVersion from main
var (
	version = "development"
	gitsha  = "development"
)

func SetVersion(ver, sha string) {
	version = ver
	gitsha = sha
}

//nolint:gochecknoglobals // cobra command pattern
var rootCmd = &cobra.Command{
	Use:   "sync-controller",
	Short: "GitOps reconciliation controller for Kubernetes",
	Long: `A Kubernetes controller that keeps clusters converged on declared state.
It watches Application resources, renders their chart sources, compares the
result against the live cluster, and applies the difference in ordered waves.`,
	RunE:          runController,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "Log format (json, text)")

	rootCmd.Flags().String("metrics-addr", ":8080", "Address for metrics endpoint")
	rootCmd.Flags().String("health-addr", ":8081", "Address for health probe endpoint")
	rootCmd.Flags().String("watch-namespace", "", "Namespace to watch for Applications (empty watches all)")
	rootCmd.Flags().Duration("sync-interval", controller.DefaultSyncInterval, "Steady-state reconcile period per Application")
	rootCmd.Flags().Duration("retry-delay", controller.DefaultRetryDelay, "Requeue delay after transient failures")
	rootCmd.Flags().Int("max-concurrent-reconciles", 8, "Maximum Applications reconciled in parallel")
	rootCmd.Flags().String("chart-cache-dir", "", "Directory for fetched chart archives (defaults to OS temp dir)")
	rootCmd.Flags().Duration("source-timeout", 0, "Timeout for a single registry call or archive download")
	rootCmd.Flags().Int("apply-parallelism", 4, "Maximum concurrent resource writes within one sync wave")

	// Leader election flags
	rootCmd.Flags().Bool("leader-elect", false, "Enable leader election for high availability")
	rootCmd.Flags().String("leader-election-namespace", "", "Namespace for leader election lease (defaults to controller namespace)")
	rootCmd.Flags().String("leader-election-name", "sync-controller-leader", "Name of the leader election lease")

	_ = viper.BindPFlags(rootCmd.Flags())
	_ = viper.BindPFlags(rootCmd.PersistentFlags())
}

func initConfig() {
	viper.SetEnvPrefix("SYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("metrics-addr", ":8080")
	viper.SetDefault("health-addr", ":8081")
	viper.SetDefault("log-level", "info")
	viper.SetDefault("log-format", "json")
	viper.SetDefault("sync-interval", controller.DefaultSyncInterval)
	viper.SetDefault("retry-delay", controller.DefaultRetryDelay)
	viper.SetDefault("max-concurrent-reconciles", 8)
	viper.SetDefault("apply-parallelism", 4)
	viper.SetDefault("leader-elect", false)
	viper.SetDefault("leader-election-name", "sync-controller-leader")
}

func Execute() error {
	return errors.Wrap(rootCmd.Execute(), "command execution failed")
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo

	switch viper.GetString("log-level") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if viper.GetString("log-format") == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

//nolint:noinlineerr // inline error handling is fine here
func runController(_ *cobra.Command, _ []string) error {
	logger := setupLogger()
	slog.SetDefault(logger)

	ctrl.SetLogger(logr.FromSlogHandler(logger.Handler()))

	logger.Info("starting sync-controller",
		"version", version,
		"gitsha", gitsha,
	)

	cfg := controller.Config{
		MetricsAddr:    viper.GetString("metrics-addr"),
		HealthAddr:     viper.GetString("health-addr"),
		WatchNamespace: viper.GetString("watch-namespace"),

		LeaderElect:     viper.GetBool("leader-elect"),
		LeaderElectNS:   viper.GetString("leader-election-namespace"),
		LeaderElectName: viper.GetString("leader-election-name"),

		SyncInterval:            viper.GetDuration("sync-interval"),
		RetryDelay:              viper.GetDuration("retry-delay"),
		MaxConcurrentReconciles: viper.GetInt("max-concurrent-reconciles"),

		ChartCacheDir:    viper.GetString("chart-cache-dir"),
		SourceTimeout:    viper.GetDuration("source-timeout"),
		ApplyParallelism: viper.GetInt("apply-parallelism"),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := controller.Run(ctx, &cfg); err != nil {
		return errors.Wrap(err, "failed to run controller")
	}

	return nil
}
