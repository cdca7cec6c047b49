package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/browserdb/internal/browserdb"
	"github.com/mesh-intelligence/browserdb/pkg/types"
)

func newFaviconsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "favicons",
		Short: "Read and record site icons",
	}

	var (
		site          string
		width, height int
	)
	add := &cobra.Command{
		Use:   "add <icon-url>",
		Short: "Record a favicon, optionally for a site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			icon := &types.Favicon{URL: args[0], Width: width, Height: height}
			if site != "" {
				icon.Site = &types.Site{URL: site}
			}
			return a.withDB(cmd, func(ctx context.Context, db *browserdb.BrowserDB, out io.Writer) error {
				if _, err := db.Insert(ctx, types.TableFavicons, icon); err != nil {
					return err
				}
				return a.emit(out, newFaviconRecord(icon), func(w io.Writer) {
					fmt.Fprintf(w, "Recorded favicon %d\n", icon.ID)
				})
			})
		},
	}
	add.Flags().StringVar(&site, "site", "", "URL of the site using the icon")
	add.Flags().IntVar(&width, "width", 0, "icon width in pixels")
	add.Flags().IntVar(&height, "height", 0, "icon height in pixels")

	var (
		listSite string
		sort     string
		limit    int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List favicons",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := queryOptions(listSite, sort, limit)
			if err != nil {
				return err
			}
			return a.withDB(cmd, func(ctx context.Context, db *browserdb.BrowserDB, out io.Writer) error {
				icons, err := collect[*types.Favicon](db.Query(ctx, types.TableFavicons, opts))
				if err != nil {
					return err
				}
				records := make([]faviconRecord, 0, len(icons))
				for _, f := range icons {
					records = append(records, newFaviconRecord(f))
				}
				return a.emit(out, records, func(w io.Writer) {
					table(w, "ID\tURL\tSIZE\tDATE", func(w io.Writer) {
						for _, r := range records {
							fmt.Fprintf(w, "%d\t%s\t%dx%d\t%s\n", r.ID, r.URL, r.Width, r.Height, formatTime(r.Date))
						}
					})
				})
			})
		},
	}
	list.Flags().StringVar(&listSite, "site", "", "only icons of this exact site URL")
	list.Flags().StringVar(&sort, "sort", "none", "ordering: none, last-visit (newest) or frecency (widest)")
	list.Flags().IntVar(&limit, "limit", 0, "maximum number of icons (0 for all)")

	cmd.AddCommand(add, list)
	return cmd
}
