// Package cmd defines the CLI commands for the retriever executable.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/parse-artifact-retriever/internal/config"
	"github.com/JakeFAU/parse-artifact-retriever/internal/retrieval"
	"github.com/JakeFAU/parse-artifact-retriever/internal/server"
	"github.com/JakeFAU/parse-artifact-retriever/internal/service"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the application surface the commands use. Tests inject a fake.
type App interface {
	Service() Retriever
	Config() *config.Config
	Logger() *zap.Logger
	Run(ctx context.Context) error
	Close()
}

// Retriever is the slice of the service the commands call.
type Retriever interface {
	Retrieve(ctx context.Context, req service.RetrieveRequest) (service.Report, error)
	ResolveWithMetadata(ctx context.Context, jobID string) (retrieval.ResolutionRecord, error)
	FetchRaw(ctx context.Context, taskType, jobID string, files []string) (retrieval.Outcome, error)
	Mapping(ctx context.Context, jobID string) (retrieval.TaskMapping, error)
	Mappings(ctx context.Context) ([]retrieval.TaskMapping, error)
}

// newApp is the application factory. It is a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg *config.Config) (App, error) {
	app, err := server.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return serverApp{app}, nil
}

type serverApp struct{ *server.App }

func (a serverApp) Service() Retriever { return a.App.Service() }

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "retriever",
		Short: "Retrieves parse artifacts for analysis jobs.",
		Long: `retriever resolves an external job id to its internal task id and pulls the
task's parse artifact to local disk. It tries the pre-signed download link
from the analysis response first, then the computed storage key, then a
prefix search, and always writes the result as parse_result.json.`,
		SilenceUsage: true,

		// Build the application once flags are parsed and hand it to the
		// subcommand through the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), &cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	cmd.AddCommand(
		newServeCmd(),
		newFetchCmd(),
		newResolveCmd(),
		newRawCmd(),
		newMappingsCmd(),
	)
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := loadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// loadDotEnv loads path into the environment when it exists. Variables that
// are already set win.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// withApp adapts fn to a RunE that closes the application however fn exits.
func withApp(fn func(cmd *cobra.Command, args []string, app App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		appInstance, err := resolveApp(cmd.Context())
		if err != nil {
			return err
		}
		defer appInstance.Close()
		return fn(cmd, args, appInstance)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
