package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/browserdb/internal/browserdb"
	"github.com/mesh-intelligence/browserdb/pkg/types"
)

func newQueueCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Manage tabs queued for opening",
	}

	add := &cobra.Command{
		Use:   "add <url> [title]",
		Short: "Queue a tab",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tab := &types.QueuedTab{URL: args[0]}
			if len(args) == 2 {
				tab.Title = args[1]
			}
			return a.withDB(cmd, func(ctx context.Context, db *browserdb.BrowserDB, out io.Writer) error {
				if _, err := db.Insert(ctx, types.TableQueue, tab); err != nil {
					return err
				}
				return a.emit(out, tab, func(w io.Writer) {
					fmt.Fprintf(w, "Queued %s\n", tab.URL)
				})
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List queued tabs in the order they were added",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(cmd, func(ctx context.Context, db *browserdb.BrowserDB, out io.Writer) error {
				tabs, err := collect[*types.QueuedTab](db.Query(ctx, types.TableQueue, nil))
				if err != nil {
					return err
				}
				return a.emit(out, tabs, func(w io.Writer) {
					table(w, "URL\tTITLE", func(w io.Writer) {
						for _, t := range tabs {
							fmt.Fprintf(w, "%s\t%s\n", t.URL, t.Title)
						}
					})
				})
			})
		},
	}

	remove := &cobra.Command{
		Use:   "remove <url>",
		Short: "Remove one queued tab",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(cmd, func(ctx context.Context, db *browserdb.BrowserDB, out io.Writer) error {
				n, err := db.Delete(ctx, types.TableQueue, &types.QueuedTab{URL: args[0]})
				if err != nil {
					return err
				}
				if n == 0 {
					return userError(fmt.Errorf("queued tab %q: %w", args[0], types.ErrNotFound))
				}
				return a.emit(out, map[string]any{"deleted": n}, func(w io.Writer) {
					fmt.Fprintf(w, "Removed %s\n", args[0])
				})
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every queued tab",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(cmd, func(ctx context.Context, db *browserdb.BrowserDB, out io.Writer) error {
				n, err := db.Delete(ctx, types.TableQueue, nil)
				if err != nil {
					return err
				}
				return a.emit(out, map[string]any{"deleted": n}, func(w io.Writer) {
					fmt.Fprintf(w, "Cleared %d tabs\n", n)
				})
			})
		},
	}

	cmd.AddCommand(add, list, remove, clearCmd)
	return cmd
}
