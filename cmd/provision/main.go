package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ariefcatur/go-courier-orders/internal/app"
	"github.com/ariefcatur/go-courier-orders/internal/config"
	"github.com/ariefcatur/go-courier-orders/internal/logger"
	"github.com/ariefcatur/go-courier-orders/internal/orders"
	"github.com/ariefcatur/go-courier-orders/internal/store"
)

type env struct {
	dialer store.Dialer
	table  string
	log    zerolog.Logger
}

func loadEnv() (*env, error) {
	cfg, err := config.LoadEnv()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.ServiceName+"-provision", cfg.LogLevel)
	d, err := app.NewStoreDialer(cfg, log)
	if err != nil {
		return nil, err
	}
	return &env{dialer: d, table: cfg.OrdersTable, log: log}, nil
}

func main() {
	_ = godotenv.Load()
	if err := newRootCmd(loadEnv).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(load func() (*env, error)) *cobra.Command {
	var timeout time.Duration
	root := &cobra.Command{
		Use:           "provision",
		Short:         "manage the orders table",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "overall timeout")

	withRepo := func(cmd *cobra.Command, fn func(ctx context.Context, repo *orders.Repo, log zerolog.Logger) error) error {
		e, err := load()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		st, err := e.dialer.Dial(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		return fn(ctx, &orders.Repo{Store: st, Table: e.table}, e.log)
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "create-table",
			Short: "create the orders table and its column families",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withRepo(cmd, func(ctx context.Context, repo *orders.Repo, log zerolog.Logger) error {
					if err := repo.CreateTable(ctx); err != nil {
						return err
					}
					log.Info().Strs("families", orders.Families).Msg("orders table ready")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "seed [order_id] [customer_id] [restaurant_id] [customer_address] [restaurant_address]",
			Short: "write an order in state Created",
			Args:  cobra.ExactArgs(5),
			RunE: func(cmd *cobra.Command, args []string) error {
				o, err := orders.NewOrder(args[0], args[1], args[2], args[3], args[4], orders.StateCreated)
				if err != nil {
					return err
				}
				return withRepo(cmd, func(ctx context.Context, repo *orders.Repo, log zerolog.Logger) error {
					if err := repo.SaveOrder(ctx, o, time.Now()); err != nil {
						return err
					}
					log.Info().Str("order_id", o.OrderID).Msg("order seeded")
					return nil
				})
			},
		},
	)
	return root
}
