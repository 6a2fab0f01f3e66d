// Command giftctl checks gift messages and exports or follows annotated orders.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gate4ai/giftmessage/server/order"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// storeOpener opens the order store named by dsn
type storeOpener func(ctx context.Context, dsn string) (order.Store, error)

func openPostgres(ctx context.Context, dsn string) (order.Store, error) {
	return order.NewPostgresStore(ctx, dsn, zap.NewNop())
}

func newRootCommand(open storeOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "giftctl",
		Short:         "Gift message tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		newValidateCommand(),
		newExportCommand(open),
		newWatchCommand(),
	)
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(openPostgres).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
