package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gate4ai/giftmessage/server/display"
	"github.com/gate4ai/giftmessage/server/export"
	"github.com/gate4ai/giftmessage/shared/config"
	"github.com/spf13/cobra"
)

type exportOptions struct {
	databaseURL string
	metaKey     string
	ids         []int64
	output      string
}

func newExportCommand(open storeOpener) *cobra.Command {
	var opts exportOptions

	cmd := &cobra.Command{
		Use:   "export [OPTIONS]",
		Short: "Export gift messages of stored orders as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.databaseURL == "" {
				opts.databaseURL = os.Getenv("GIFTMESSAGE_DATABASE_URL")
			}
			if opts.databaseURL == "" {
				return errors.New("--database-url is required")
			}
			return runExport(cmd, open, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection string")
	flags.StringVar(&opts.metaKey, "meta-key", config.DefaultMetaKey, "Order line attribute holding the gift message")
	flags.Int64SliceVar(&opts.ids, "ids", nil, "Order IDs to export (default all)")
	flags.StringVarP(&opts.output, "output", "o", "", "Output file, '-' for stdout (default a timestamped file name)")

	return cmd
}

func runExport(cmd *cobra.Command, open storeOpener, opts exportOptions) error {
	ctx := cmd.Context()
	store, err := open(ctx, opts.databaseURL)
	if err != nil {
		return fmt.Errorf("open order store: %w", err)
	}
	defer store.Close()

	orders, err := store.ListOrders(ctx, opts.ids)
	if err != nil {
		return fmt.Errorf("load orders: %w", err)
	}

	var out io.Writer = cmd.OutOrStdout()
	name := opts.output
	if name == "" {
		name = export.Filename(time.Now())
	}
	if name != "-" {
		f, err := os.Create(name)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	if err := export.New(display.New(opts.metaKey)).WriteCSV(out, orders); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	if name != "-" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d orders to %s\n", len(orders), name)
	}
	return nil
}
