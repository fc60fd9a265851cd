// Command grove-backfill derives memoized values over a filesystem-backed
// store.  It is a thin driver around the derive engine, mostly useful for
// backfilling a new derived type over existing history.
package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/grovescm/grove/v2/src/changeset"
	"github.com/grovescm/grove/v2/src/derive"
	"github.com/grovescm/grove/v2/src/derive/manifest"
	"github.com/grovescm/grove/v2/src/internal/errors"
	"github.com/grovescm/grove/v2/src/internal/pctx"
	"github.com/grovescm/grove/v2/src/internal/signals"
	"github.com/grovescm/grove/v2/src/internal/storage/kv"
)

var (
	storeDir    string
	gapSize     int
	parallelism int
	verbose     bool

	root = &cobra.Command{
		Use:           os.Args[0],
		Short:         "Derive memoized values over stored history.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func newEngine() (*derive.Engine, error) {
	if storeDir == "" {
		return nil, errors.New("--store is required")
	}
	store := kv.NewFSStore(storeDir)
	registry, err := derive.NewRegistry(
		manifest.NewType(),
		manifest.NewSkeletonType(),
		manifest.NewTypeV2(),
	)
	if err != nil {
		return nil, err
	}
	graph := changeset.NewKVGraph(store)
	return derive.NewEngine(graph, store, registry, derive.WithParallelism(parallelism)), nil
}

func parseIDs(args []string) ([]changeset.ID, error) {
	ids := make([]changeset.ID, len(args))
	for i, arg := range args {
		id, err := changeset.ParseID(arg)
		if err != nil {
			return nil, errors.Wrapf(err, "argument %q", arg)
		}
		ids[i] = id
	}
	return ids, nil
}

var deriveCmd = &cobra.Command{
	Use:   "derive <type> <changeset>",
	Short: "Derive one changeset's value, computing missing ancestors first.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		ids, err := parseIDs(args[1:])
		if err != nil {
			return err
		}
		v, err := e.Derive(cmd.Context(), args[0], ids[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%v\n", ids[0], v)
		return nil
	},
}

var backfillCmd = &cobra.Command{
	Use:   "backfill <type> <changeset>...",
	Short: "Derive many heads in one pass, skipping intermediate persistence.",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		heads, err := parseIDs(args[1:])
		if err != nil {
			return err
		}
		vals, err := e.DeriveBatch(cmd.Context(), args[0], heads, gapSize)
		if err != nil {
			return err
		}
		for _, h := range heads {
			fmt.Printf("%s\t%v\n", h, vals[h])
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate <type> <changeset>...",
	Short: "Compute values from an already-derived predecessor type.",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		ids, err := parseIDs(args[1:])
		if err != nil {
			return err
		}
		vals, err := e.Migrate(cmd.Context(), args[0], ids)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Printf("%s\t%v\n", id, vals[id])
		}
		return nil
	},
}

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List the registered derivable types.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := derive.NewRegistry(
			manifest.NewType(),
			manifest.NewSkeletonType(),
			manifest.NewTypeV2(),
		)
		if err != nil {
			return err
		}
		for _, name := range registry.Names() {
			fmt.Println(name)
		}
		return nil
	},
}

func init() {
	root.PersistentFlags().StringVar(&storeDir, "store", "", "Directory holding the store.")
	root.PersistentFlags().IntVar(&parallelism, "parallelism", derive.DefaultParallelism, "Concurrent computations per derivation pass.")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "If true, show all log messages.")
	backfillCmd.Flags().IntVar(&gapSize, "gap-size", 0, "Ancestors to skip between persisted entries.")
	root.AddCommand(deriveCmd, backfillCmd, migrateCmd, typesCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(pctx.Background(""), signals.TerminationSignals...)
	defer cancel()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		if verbose {
			if v := fmt.Sprintf("%+v", err); v != err.Error() {
				fmt.Fprintf(os.Stderr, "%v\n", v)
			}
		}
		os.Exit(1)
	}
}
