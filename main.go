package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/reflection"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/TFMV/estateflow/api"
	"github.com/TFMV/estateflow/gateway"
	"github.com/TFMV/estateflow/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "estateflow",
	Short: "Listing publication, payment and approval orchestration",
	Long: `estateflow runs the publishing state machine, the payment saga and the
listing approval workflow, durably on Temporal or directly in process.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML configuration file")
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(sandboxGatewayCmd())
	rootCmd.AddCommand(runCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger
func setup() (*AppConfig, *logger.Logger, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	l, err := logger.New(config.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return config, l, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func serveCmd() *cobra.Command {
	var withWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the orchestration gRPC API and Prometheus metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, l, err := setup()
			if err != nil {
				return err
			}
			defer l.Sync()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := newApp(ctx, config, l, prometheus.DefaultRegisterer)
			if err != nil {
				return err
			}
			defer a.Close()

			if withWorker && a.orchestrator.Enabled() {
				if err := a.startWorker(); err != nil {
					return err
				}
			}
			a.router.Initialize()

			g, gctx := errgroup.WithContext(ctx)

			lis, err := net.Listen("tcp", config.GRPC.Address)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", config.GRPC.Address, err)
			}
			srv := grpc.NewServer()
			api.RegisterOrchestratorServer(srv, api.NewServer(a.router, l))
			reflection.Register(srv)

			g.Go(func() error {
				l.Info("Starting orchestration API", "address", config.GRPC.Address, "mode", config.Router.Mode)
				return srv.Serve(lis)
			})
			g.Go(func() error {
				<-gctx.Done()
				srv.GracefulStop()
				return nil
			})

			if config.Metrics.Address != "" {
				metricsSrv := &http.Server{Addr: config.Metrics.Address, Handler: metricsHandler()}
				g.Go(func() error {
					l.Info("Starting Prometheus metrics server", "address", config.Metrics.Address)
					if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return metricsSrv.Shutdown(shutdownCtx)
				})
			}

			err = g.Wait()
			l.Info("Shutting down")
			return err
		},
	}
	cmd.Flags().BoolVar(&withWorker, "worker", true, "also run a Temporal worker when Temporal is enabled")
	return cmd
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run a Temporal worker for every workflow and activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, l, err := setup()
			if err != nil {
				return err
			}
			defer l.Sync()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := newApp(ctx, config, l, prometheus.DefaultRegisterer)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.startWorker(); err != nil {
				return err
			}

			<-ctx.Done()
			l.Info("Shutting down worker")
			return nil
		},
	}
}

func sandboxGatewayCmd() *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "sandbox-gateway",
		Short: "Run the ISO 8583 sandbox acquirer",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, l, err := setup()
			if err != nil {
				return err
			}
			defer l.Sync()

			sandboxConfig := config.Gateway.Sandbox
			if address != "" {
				sandboxConfig.Address = address
			}
			sandbox := gateway.NewSandbox(sandboxConfig, l)

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(sandbox.Start)
			g.Go(func() error {
				<-gctx.Done()
				return sandbox.Shutdown()
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&address, "addr", "", "listen address (overrides gateway.sandbox.address)")
	return cmd
}

func runCmd() *cobra.Command {
	var (
		server    string
		name      string
		draftType string
		input     string
		wait      bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a workflow through the orchestration API and print the result",
		Example: `  estateflow run --draft-type PROPERTY --input '{"draftId":42,"ownerId":"u1"}'
  estateflow run --workflow ListingApproval --input '{"listingKind":"PROPERTY","listingId":7,"submitterId":"u1"}' --wait=false`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]interface{}{"workflow": name, "draftType": draftType}
			if input != "" {
				var doc interface{}
				if err := json.Unmarshal([]byte(input), &doc); err != nil {
					return fmt.Errorf("invalid --input: %w", err)
				}
				req["input"] = doc
			}
			startReq, err := structpb.NewStruct(req)
			if err != nil {
				return err
			}

			conn, err := grpc.NewClient(server, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return fmt.Errorf("failed to connect to %s: %w", server, err)
			}
			defer conn.Close()
			client := api.NewOrchestratorClient(conn)

			ctx := cmd.Context()
			started, err := client.Start(ctx, startReq)
			if err != nil {
				return err
			}
			if !wait {
				return printJSON(cmd, started.AsMap())
			}

			run := started.AsMap()
			resultReq, err := structpb.NewStruct(map[string]interface{}{
				"runId":    run["runId"],
				"mode":     run["mode"],
				"workflow": run["workflow"],
			})
			if err != nil {
				return err
			}
			res, err := client.Result(ctx, resultReq)
			if err != nil {
				return err
			}
			return printJSON(cmd, res.AsMap())
		},
	}
	cmd.Flags().StringVar(&server, "server", "localhost:9443", "orchestration API address")
	cmd.Flags().StringVar(&name, "workflow", "", "workflow name")
	cmd.Flags().StringVar(&draftType, "draft-type", "", "draft type whose publishing workflow to run")
	cmd.Flags().StringVar(&input, "input", "", "workflow input as JSON")
	cmd.Flags().BoolVar(&wait, "wait", true, "wait for the result")
	return cmd
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
