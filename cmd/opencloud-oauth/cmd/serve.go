package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jrsteele09/go-opencloud-oauth/flowstate"
	"github.com/jrsteele09/go-opencloud-oauth/server"
	"github.com/jrsteele09/go-opencloud-oauth/session"
	"github.com/jrsteele09/go-opencloud-oauth/tokenstore"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 5 * time.Second
	janitorInterval = time.Minute
)

func newServeCmd(c *cli) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve /login and /callback for the configured application",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = c.cfg.ListenAddr
			}
			c.banner(cmd.OutOrStdout())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.serve(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default OPENCLOUD_LISTEN_ADDR)")
	return cmd
}

func (c *cli) openFlowStore(ctx context.Context) (flowstate.Store, func() error, error) {
	if c.cfg.RedisAddr == "" {
		store := flowstate.NewMemoryStore(flowstate.WithLogger(c.logger))
		store.StartJanitor(ctx, janitorInterval)
		return store, func() error { return nil }, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     c.cfg.RedisAddr,
		Password: c.cfg.RedisPassword,
		DB:       c.cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", c.cfg.RedisAddr, err)
	}
	c.logger.Info().Str("addr", c.cfg.RedisAddr).Msg("pending flows stored in redis")
	return flowstate.NewRedisStore(client, ""), client.Close, nil
}

func (c *cli) openTokenStore() (tokenstore.Store, func() error, error) {
	if c.cfg.BoltPath == "" {
		c.logger.Warn().Msg("OPENCLOUD_BOLT_PATH is not set; sessions are lost on restart")
		return tokenstore.NewMemoryStore(), func() error { return nil }, nil
	}
	store, err := tokenstore.OpenBolt(c.cfg.BoltPath)
	if err != nil {
		return nil, nil, err
	}
	c.logger.Info().Str("path", c.cfg.BoltPath).Msg("sessions stored in bbolt")
	return store, store.Close, nil
}

func (c *cli) serve(ctx context.Context, addr string) error {
	app, err := c.app()
	if err != nil {
		return err
	}

	flows, closeFlows, err := c.openFlowStore(ctx)
	if err != nil {
		return err
	}
	defer closeFlows()

	records, closeRecords, err := c.openTokenStore()
	if err != nil {
		return err
	}
	defer closeRecords()

	manager := session.NewManager(app, flows, records,
		session.WithFlowTTL(c.cfg.FlowTTL),
		session.WithLogger(c.logger),
	)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.New(manager, server.WithScopes(c.cfg.Scopes), server.WithLogger(c.logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.logger.Info().Str("addr", addr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server.ListenAndServe: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server.Shutdown: %w", err)
		}
		c.logger.Info().Msg("server stopped")
		return nil
	})
	return g.Wait()
}
