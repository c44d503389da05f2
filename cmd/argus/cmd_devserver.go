package main

import (
	"os/signal"
	"syscall"

	"argus/internal/devserver"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var devserverAddr string

// devserverCmd runs the bundled development backend
var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a local backend with canned streamed replies",
	Long: `Serves the backend endpoints locally for development and demos.

Replies are canned and streamed in small chunks. A message containing
"fail" fails mid-stream, a token warning is injected after the configured
number of turns, and /chat is rate limited per client.`,
	RunE: runDevserver,
}

func init() {
	devserverCmd.Flags().StringVar(&devserverAddr, "addr", "", "Listen address (overrides devserver.addr)")
}

func runDevserver(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := appConfig.DevServer.Addr
	if devserverAddr != "" {
		addr = devserverAddr
	}
	srv, err := devserver.New(devserver.OptionsFromConfig(appConfig))
	if err != nil {
		return err
	}
	logger.Info("Development backend listening",
		zap.String("addr", addr),
		zap.String("upload_dir", srv.UploadDir()))
	return srv.ListenAndServe(ctx, addr)
}
