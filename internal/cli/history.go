package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/browserdb/internal/browserdb"
	"github.com/mesh-intelligence/browserdb/pkg/types"
)

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Read and edit browsing history",
	}
	cmd.AddCommand(newHistoryAddCmd(a), newHistoryListCmd(a), newHistoryDeleteCmd(a), newHistoryClearCmd(a))
	return cmd
}

func newHistoryAddCmd(a *app) *cobra.Command {
	var (
		title    string
		typeName string
		at       string
	)
	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Record a visit to a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := parseVisitType(typeName)
			if err != nil {
				return err
			}
			date := time.Now()
			if at != "" {
				if date, err = time.Parse(time.RFC3339, at); err != nil {
					return userError(fmt.Errorf("--at: %w", err))
				}
			}
			visit := types.NewVisit(args[0], title, date, typ)
			return a.withDB(cmd, func(ctx context.Context, db *browserdb.BrowserDB, out io.Writer) error {
				id, err := db.Insert(ctx, types.TableHistory, visit)
				if err != nil {
					return err
				}
				return a.emit(out, newVisitRecord(visit), func(w io.Writer) {
					fmt.Fprintf(w, "Recorded visit %d to %s\n", id, visit.Site.URL)
				})
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "page title")
	cmd.Flags().StringVar(&typeName, "type", "link", "visit type (link, typed, bookmark, embed, redirect-permanent, redirect-temporary, download, framed-link)")
	cmd.Flags().StringVar(&at, "at", "", "visit time in RFC 3339 (default: now)")
	return cmd
}

func newHistoryListCmd(a *app) *cobra.Command {
	var (
		filter string
		titles bool
		sort   string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List visited sites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := queryOptions(filter, sort, limit)
			if err != nil {
				return err
			}
			if titles {
				opts.FilterType = types.FilterURLAndTitle
			}
			return a.withDB(cmd, func(ctx context.Context, db *browserdb.BrowserDB, out io.Writer) error {
				sites, err := collect[*types.Site](db.Query(ctx, types.TableHistory, opts))
				if err != nil {
					return err
				}
				records := make([]siteRecord, 0, len(sites))
				for _, s := range sites {
					records = append(records, newSiteRecord(s))
				}
				return a.emit(out, records, func(w io.Writer) {
					table(w, "ID\tURL\tTITLE\tVISITS\tLAST VISIT", func(w io.Writer) {
						for _, r := range records {
							last := "-"
							if r.LastVisit != nil {
								last = formatTime(*r.LastVisit)
							}
							fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", r.ID, r.URL, r.Title, r.Visits, last)
						}
					})
				})
			})
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "substring to match in the URL")
	cmd.Flags().BoolVar(&titles, "titles", false, "match --filter against titles as well")
	cmd.Flags().StringVar(&sort, "sort", "last-visit", "ordering: none, last-visit or frecency")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of sites (0 for all)")
	return cmd
}

func newHistoryDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <url>",
		Short: "Delete a site and its visits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(cmd, func(ctx context.Context, db *browserdb.BrowserDB, out io.Writer) error {
				n, err := db.Delete(ctx, types.TableHistory, &types.Site{URL: args[0]})
				if err != nil {
					return err
				}
				if n == 0 {
					return userError(fmt.Errorf("site %q: %w", args[0], types.ErrNotFound))
				}
				return a.emit(out, map[string]any{"deleted": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "Deleted %s\n", args[0])
				})
			})
		},
	}
}

func newHistoryClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(cmd, func(ctx context.Context, db *browserdb.BrowserDB, out io.Writer) error {
				n, err := db.Delete(ctx, types.TableHistory, nil)
				if err != nil {
					return err
				}
				return a.emit(out, map[string]any{"deleted": n}, func(w io.Writer) {
					fmt.Fprintf(w, "Deleted %d sites\n", n)
				})
			})
		},
	}
}

func newVisitsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "visits",
		Short: "Read individual visits",
	}
	var (
		site  string
		sort  string
		limit int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List visits, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := queryOptions(site, sort, limit)
			if err != nil {
				return err
			}
			return a.withDB(cmd, func(ctx context.Context, db *browserdb.BrowserDB, out io.Writer) error {
				visits, err := collect[*types.Visit](db.Query(ctx, types.TableVisits, opts))
				if err != nil {
					return err
				}
				records := make([]visitRecord, 0, len(visits))
				for _, v := range visits {
					records = append(records, newVisitRecord(v))
				}
				return a.emit(out, records, func(w io.Writer) {
					table(w, "ID\tURL\tDATE\tTYPE", func(w io.Writer) {
						for _, r := range records {
							fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", r.ID, r.URL, formatTime(r.Date), r.Type)
						}
					})
				})
			})
		},
	}
	list.Flags().StringVar(&site, "site", "", "only visits to this exact URL")
	list.Flags().StringVar(&sort, "sort", "last-visit", "ordering: none or last-visit")
	list.Flags().IntVar(&limit, "limit", 0, "maximum number of visits (0 for all)")
	cmd.AddCommand(list)
	return cmd
}
