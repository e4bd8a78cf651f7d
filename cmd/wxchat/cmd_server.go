package wxchat

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/takeaway1/wxchat/internal/chatlog/http"
	"github.com/takeaway1/wxchat/internal/chatlog/mcp"
)

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().String("http-addr", "", "listen address (default 127.0.0.1:5030)")
	serverCmd.Flags().Bool("watch", true, "reopen databases when their files are replaced")
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Serve the HTTP API, metrics and MCP endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, cfg, err := openDatabase(cmd, true)
		if err != nil {
			return err
		}
		defer db.Stop()

		svc := http.NewService(cfg, db, mcp.NewService(db))
		errCh := make(chan error, 1)
		go func() { errCh <- svc.Start() }()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		select {
		case err := <-errCh:
			return err
		case s := <-sig:
			log.Info().Str("signal", s.String()).Msg("shutting down")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return svc.Stop(ctx)
	},
}
