package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tmoreaux/detectlab/internal/server"
)

var servePort int

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the experiment bridge daemon",
	Long: `Serve starts the loopback HTTP bridge the browser instrument talks to.
It owns the trial state, the model calls and the event log, and keeps
running until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if ok := a.Controller.ProviderAvailable(ctx); !ok {
			zap.L().Warn("model endpoint not reachable at startup, continuing anyway",
				zap.String("provider", cfg.LLM.Provider),
				zap.String("base_url", cfg.LLM.BaseURL),
			)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := server.New(a.Controller, a.Store, a.Events)
		addr := fmt.Sprintf("127.0.0.1:%d", port)
		return srv.ListenAndServe(ctx, addr, cfg.Server.AllowedOrigins)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")
}
