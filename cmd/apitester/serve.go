package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourorg/apitester/internal/relay"
	"github.com/yourorg/apitester/internal/server"
)

func newServeCmd(g *globals) *cobra.Command {
	var host string
	var port int
	var noRelay bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API together with the relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if err := cfg.ValidateServe(); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 2)
			if !noRelay {
				relayAddr := net.JoinHostPort(cfg.Relay.Host, strconv.Itoa(cfg.Relay.Port))
				go func() {
					log.Info().Str("addr", relayAddr).Str("environment", cfg.Relay.Environment).Msg("relay listening")
					errCh <- relay.NewServer(cfg.Relay, log).ListenAndServe(ctx, relayAddr)
				}()
			}

			client := relay.NewClient(cfg.Relay.ClientURL(), time.Duration(cfg.Relay.TimeoutSeconds+30)*time.Second)
			srv, err := server.New(cfg, st, client, log)
			if err != nil {
				return err
			}
			addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
			httpSrv := &http.Server{Addr: addr, Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}
			go func() {
				log.Info().Str("addr", addr).Str("relay", cfg.Relay.ClientURL()).Msg("api listening")
				errCh <- httpSrv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					stop()
					return err
				}
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "server host")
	cmd.Flags().IntVar(&port, "port", 3000, "server port")
	cmd.Flags().BoolVar(&noRelay, "no-relay", false, "use the relay at relay.url instead of starting one")
	return cmd
}

func newRelayCmd(g *globals) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Start only the forwarding relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Relay.Port = port
			}
			if err := cfg.ValidateServe(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			addr := net.JoinHostPort(cfg.Relay.Host, strconv.Itoa(cfg.Relay.Port))
			log.Info().Str("addr", addr).Strs("blocked", cfg.Relay.BlockedHostList()).Msg("relay listening")
			return relay.NewServer(cfg.Relay, log).ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().IntVar(&port, "port", 3001, "relay port")
	return cmd
}

func newHealthCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the configured relay is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := g.loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			hs, err := relay.NewClient(cfg.Relay.ClientURL(), 10*time.Second).Health(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "relay %s: %s at %s\n", cfg.Relay.ClientURL(), hs.Status, hs.Timestamp.Format(time.RFC3339))
			return nil
		},
	}
}
