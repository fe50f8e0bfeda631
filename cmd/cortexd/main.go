// Command cortexd runs the cortex services: the HTTP/WebSocket ingest
// surface, the pipeline worker, and the local filesystem observer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cortex-mentor/cortex/internal/observer"
	"github.com/cortex-mentor/cortex/internal/server"
	"github.com/cortex-mentor/cortex/internal/worker"
	"github.com/cortex-mentor/cortex/pkg/config"
	"github.com/cortex-mentor/cortex/pkg/logging"
	"github.com/cortex-mentor/cortex/pkg/queue"
)

const version = "0.1.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "cortexd",
	Short: "Cortex turns developer activity into a searchable, spoken knowledge base",
	Long: `cortexd ingests developer-activity events (git commits, file changes),
derives LLM insights from them, persists those insights into a markdown
knowledge graph and a vector index, and synthesizes spoken answers that
combine private and public knowledge.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP ingest endpoint and WebSocket fan-out",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}

		tasks := queue.New(cfg.Redis)
		defer tasks.Close()
		if err := tasks.Ping(cmd.Context()); err != nil {
			logging.GetLogger().Warn(cmd.Context(), "Redis not reachable at startup: %v", err)
		}

		return server.New(cfg.Server.Addr, tasks, tasks).Run(signalContext(cmd.Context()))
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume the task queue and run the pipelines",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}

		tasks := queue.New(cfg.Redis)
		defer tasks.Close()
		if err := tasks.Ping(cmd.Context()); err != nil {
			return err
		}

		return worker.New(cfg, tasks).Run(signalContext(cmd.Context()))
	},
}

var observeCmd = &cobra.Command{
	Use:   "observe [path]",
	Short: "Watch a local source tree and emit file-change events",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}

		root := "."
		if len(args) == 1 {
			root = args[0]
		}

		tasks := queue.New(cfg.Redis)
		defer tasks.Close()
		if err := tasks.Ping(cmd.Context()); err != nil {
			return err
		}

		return observer.New(root, tasks).Run(signalContext(cmd.Context()))
	},
}

// setup loads configuration and installs the global logger.
func setup() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	outputs := []logging.Output{logging.NewConsoleOutput(true)}
	if cfg.Logging.File != "" {
		fileOut, err := logging.NewFileOutput(cfg.Logging.File)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, fileOut)
	}
	logging.SetLogger(logging.NewLogger(logging.Config{
		Severity: logging.ParseSeverity(cfg.Logging.Level),
		Outputs:  outputs,
	}))

	return cfg, nil
}

// signalContext cancels on SIGINT/SIGTERM for clean shutdown.
func signalContext(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the configuration file")
	rootCmd.AddCommand(serveCmd, workerCmd, observeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
