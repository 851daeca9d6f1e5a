package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/javanstorm/capledger/internal/api"
	"github.com/javanstorm/capledger/internal/telemetry"
	"github.com/javanstorm/capledger/internal/timing"
	"github.com/javanstorm/capledger/internal/version"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the ledger over HTTP",
	Long: `Serve the ledger over HTTP until interrupted.

The server holds the ledger open for its whole lifetime. With the bolt
backend, other capledger commands wait up to lock_timeout for it and then
fail.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: http_addr from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	timer := timing.New()

	metricsHandler, err := telemetry.Setup(cfg.MetricsEnabled)
	if err != nil {
		return err
	}
	timer.Mark("telemetry")

	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()
	timer.Mark("ledger")

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.NewService(l, logger), logger, api.RouterOptions{Metrics: metricsHandler})
	timer.Mark("router")

	addr := cfg.HTTPAddr
	if serveAddr != "" {
		addr = serveAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	timer.Mark("listen")
	timer.Log(logger)

	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("serving ledger", "addr", ln.Addr().String(), "version", version.String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
