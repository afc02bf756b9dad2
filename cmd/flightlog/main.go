package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skyfleet/flightlog/internal/controller"
	"github.com/skyfleet/flightlog/internal/dataflash"
	"github.com/skyfleet/flightlog/internal/metric"
	"github.com/skyfleet/flightlog/internal/pkg/security"
	"github.com/skyfleet/flightlog/internal/server"
	"github.com/skyfleet/flightlog/internal/session"
	"github.com/skyfleet/flightlog/internal/transport"
	"github.com/skyfleet/flightlog/internal/worker"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "flightlog",
		Short: "FlightLog - flight telemetry log decoding service",
		Long: `FlightLog decodes binary flight telemetry logs (DataFlash, MAVLink
telemetry streams and DJI flight recorder files) into columnar tables,
served over an HTTP API with live progress updates.`,
	}

	root.AddCommand(versionCmd(), serveCmd(), decodeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("FlightLog v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func serveCmd() *cobra.Command {
	var (
		addr     string
		dataDir  string
		endpoint string
		queue    int
		debug    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the decoding service",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(debug)
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer log.Sync()

			if err := os.MkdirAll(dataDir, 0o700); err != nil {
				return fmt.Errorf("data dir: %w", err)
			}

			keychain, generated, err := security.OpenKeychain(filepath.Join(dataDir, "master.key"))
			if err != nil {
				return fmt.Errorf("master key: %w", err)
			}
			if generated {
				log.Info("generated new master key", zap.String("dir", dataDir))
			}

			meta := controller.NewStore(filepath.Join(dataDir, "meta.enc"), keychain)
			if err := meta.Load(); err != nil {
				return fmt.Errorf("metadata load: %w", err)
			}

			// Flag wins over stored config so deployments can override.
			if endpoint == "" {
				endpoint = meta.GetConfig().RemoteEndpoint
			}

			m := metric.NewMetrics()
			promReg := prometheus.NewRegistry()
			if err := m.Register(promReg); err != nil {
				return fmt.Errorf("metrics register: %w", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sessions := session.NewStore()
			sessions.StartCleanupLoop(ctx, time.Minute, 30*time.Minute)

			sender := transport.NewClient(endpoint, log, m)
			w := worker.New(queue, sender, sessions, log, m)
			go w.Run(ctx)

			hub := server.NewHub(log)
			go hub.Run(ctx, w.Updates())

			srv := server.NewAPIServer(w.Inbox(), w.Stats(), hub, sessions, meta, m, promReg, log)

			go func() {
				log.Info("listening", zap.String("addr", addr))
				if err := srv.Start(addr); err != nil {
					log.Error("server stopped", zap.Error(err))
					cancel()
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case sig := <-quit:
				log.Info("shutting down", zap.String("signal", sig.String()))
			case <-ctx.Done():
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn("server shutdown", zap.Error(err))
			}

			cancel()
			// Let in-flight result uploads drain before exiting.
			sender.Wait()
			log.Info("exited")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8088", "HTTP listen address")
	cmd.Flags().StringVar(&dataDir, "data", "./data", "directory for keys and metadata")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "URL to POST decoded results to (empty disables)")
	cmd.Flags().IntVar(&queue, "queue", 16, "parse queue depth")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	return cmd
}

func decodeCmd() *cobra.Command {
	var (
		summary bool
		debug   bool
	)

	cmd := &cobra.Command{
		Use:   "decode <file>",
		Short: "Decode a single DataFlash log to JSON on stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(debug)
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer log.Sync()

			buf, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", path.Base(args[0]), err)
			}

			result, stats := dataflash.NewParser(log).Parse(buf)

			enc := json.NewEncoder(os.Stdout)
			if summary {
				counts := make(map[string]int, len(result))
				for name, table := range result {
					counts[name] = table.RowCount()
				}
				return enc.Encode(map[string]any{
					"formats_learned":   stats.Formats,
					"records_decoded":   stats.RecordsDecoded,
					"dropped_truncated": stats.DroppedTruncated,
					"dropped_unknown":   stats.DroppedUnknown,
					"duration_ms":       stats.Duration.Milliseconds(),
					"rows_per_type":     counts,
				})
			}
			return enc.Encode(result)
		},
	}

	cmd.Flags().BoolVar(&summary, "summary", false, "print per-type row counts instead of full tables")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	return cmd
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
