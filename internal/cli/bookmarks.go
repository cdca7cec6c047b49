package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/browserdb/internal/browserdb"
	"github.com/mesh-intelligence/browserdb/pkg/types"
)

func newBookmarksCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookmarks",
		Short: "Read and edit bookmarks",
	}
	cmd.AddCommand(newBookmarksAddCmd(a), newBookmarksListCmd(a), newBookmarksDeleteCmd(a))
	return cmd
}

func newBookmarksAddCmd(a *app) *cobra.Command {
	var (
		title  string
		parent string
		folder bool
	)
	cmd := &cobra.Command{
		Use:   "add [url]",
		Short: "Add a bookmark, or a folder with --folder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b := &types.Bookmark{Title: title, ParentGUID: parent}
			switch {
			case folder && len(args) > 0:
				return userError(errors.New("a folder has no url"))
			case folder:
				b.Kind = types.BookmarkKindFolder
			case len(args) == 0:
				return userError(fmt.Errorf("a bookmark needs a url: %w", types.ErrInvalidURL))
			default:
				b.URL = args[0]
			}
			return a.withDB(cmd, func(ctx context.Context, db *browserdb.BrowserDB, out io.Writer) error {
				if _, err := db.Insert(ctx, types.TableBookmarks, b); err != nil {
					return err
				}
				return a.emit(out, newBookmarkRecord(b), func(w io.Writer) {
					fmt.Fprintf(w, "Added %s %s\n", bookmarkKindName(b.Kind), b.GUID)
				})
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "bookmark or folder title")
	cmd.Flags().StringVar(&parent, "parent", types.MobileFolderGUID, "GUID of the parent folder")
	cmd.Flags().BoolVar(&folder, "folder", false, "create a folder instead of a bookmark")
	return cmd
}

func newBookmarksListCmd(a *app) *cobra.Command {
	var (
		parent string
		sort   string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the children of a folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := queryOptions(parent, sort, limit)
			if err != nil {
				return err
			}
			return a.withDB(cmd, func(ctx context.Context, db *browserdb.BrowserDB, out io.Writer) error {
				items, err := collect[*types.Bookmark](db.Query(ctx, types.TableBookmarks, opts))
				if err != nil {
					return err
				}
				records := make([]bookmarkRecord, 0, len(items))
				for _, b := range items {
					records = append(records, newBookmarkRecord(b))
				}
				return a.emit(out, records, func(w io.Writer) {
					table(w, "GUID\tKIND\tTITLE\tURL", func(w io.Writer) {
						for _, r := range records {
							fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.GUID, r.Kind, r.Title, r.URL)
						}
					})
				})
			})
		},
	}
	cmd.Flags().StringVar(&parent, "parent", types.MobileFolderGUID, "GUID of the folder to list")
	cmd.Flags().StringVar(&sort, "sort", "none", "ordering: none, last-visit (date added) or frecency")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of entries (0 for all)")
	return cmd
}

func newBookmarksDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <guid>",
		Short: "Delete a bookmark, or a folder and everything in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(cmd, func(ctx context.Context, db *browserdb.BrowserDB, out io.Writer) error {
				n, err := db.Delete(ctx, types.TableBookmarks, &types.Bookmark{GUID: args[0]})
				if err != nil {
					return err
				}
				if n == 0 {
					return userError(fmt.Errorf("bookmark %q: %w", args[0], types.ErrNotFound))
				}
				return a.emit(out, map[string]any{"deleted": n}, func(w io.Writer) {
					fmt.Fprintf(w, "Deleted %d entries\n", n)
				})
			})
		},
	}
}
