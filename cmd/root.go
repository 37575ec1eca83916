package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/backdrop/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Options holds the configuration of the render command
type Options struct {
	InputPath    string
	InputFormat  string
	OutputPath   string
	OutputFormat string
	Width        int
	Height       int
	FPS          float64
	MaxFrames    int

	Mode            string
	Model           string
	Background      string
	AnimationDir    string
	AnimationLength int

	NumEngines    int
	WorkerScript  string
	Python        string
	WorkerTimeout string

	SigmaMask       float64
	SigmaBackground float64
	SnowSeed        uint64
	SnowScale       float64
	SnowBlurScale   float64
}

var (
	// DB is the optional session history store shared by subcommands.
	// It stays nil unless --db or the POSTGRES_* environment is set.
	DB *store.Store
	// dbURL is the connection string
	dbURL    string
	logLevel string
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "backdrop",
	Short:   "Real-time webcam background effects",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid --log-level: %w", err)
		}
		logrus.SetOutput(os.Stderr)
		logrus.SetLevel(level)

		// If no flag was provided, try to build the connection string from the environment
		if dbURL == "" {
			if host := os.Getenv("POSTGRES_HOST"); host != "" {
				user := os.Getenv("POSTGRES_USER")
				pass := os.Getenv("POSTGRES_PASSWORD")
				name := os.Getenv("POSTGRES_DB")
				port := os.Getenv("POSTGRES_PORT")
				if port == "" {
					port = "5432"
				}
				dbURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
			}
		}
		if dbURL == "" {
			return nil
		}

		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.New(cmd.Context(), dbURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
		}
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// requireDB reports a uniform error for commands that need session history.
func requireDB() error {
	if DB == nil {
		return fmt.Errorf("no database configured: pass --db or set POSTGRES_HOST")
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for session history (optional)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
}
