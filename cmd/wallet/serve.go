package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Maphikza/sip-privacy-wallet/internal/api"
	"github.com/Maphikza/sip-privacy-wallet/internal/ipc"
	"github.com/Maphikza/sip-privacy-wallet/internal/logger"
	"github.com/Maphikza/sip-privacy-wallet/internal/notify"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the background scanner",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var extra []notify.Notifier
		if socket, _ := cmd.Flags().GetString("ipc"); socket != "" {
			events, err := ipc.NewServer(socket)
			if err != nil {
				return fmt.Errorf("failed to open ipc socket: %w", err)
			}
			defer events.Close()
			extra = append(extra, events)
			logger.Info("Streaming notifications", "socket", events.Addr())
		}

		s, err := openSession(ctx, true, extra...)
		if err != nil {
			return err
		}
		defer s.Close()

		if _, err := s.engine.MetaAddress(ctx); err != nil {
			return err
		}

		cfg := api.Config{
			Port:          s.settings.APIPort,
			AllowedOrigin: s.settings.AllowedOrigin,
			UserPubKey:    s.settings.UserPubKey,
		}
		if s.settings.JWTSecret != "" {
			cfg.JWTKey = []byte(s.settings.JWTSecret)
		}
		if cfg.UserPubKey == "" {
			logger.Warn("user_pubkey is not set; API login is disabled")
		}
		server, err := api.NewServer(s.engine, s.store, cfg)
		if err != nil {
			return err
		}

		scanDone := s.engine.StartBackgroundScan(ctx)
		err = server.ListenAndServe(ctx)
		stop()
		<-scanDone
		return err
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print notifications from a running serve process",
	RunE: func(cmd *cobra.Command, args []string) error {
		socket, _ := cmd.Flags().GetString("ipc")
		client, err := ipc.NewClient(cmd.Context(), socket)
		if err != nil {
			return fmt.Errorf("is serve running with --ipc? %w", err)
		}
		defer client.Close()

		for {
			ev, err := client.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			if err := printJSON(ev); err != nil {
				return err
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, watchCmd)

	serveCmd.Flags().String("ipc", "", "Also stream notifications on this socket, e.g. "+ipc.DefaultSocketPath)
	watchCmd.Flags().String("ipc", ipc.DefaultSocketPath, "Socket of the serve process")
}
