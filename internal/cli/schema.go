package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/browserdb/internal/browserdb"
)

type schemaInfo struct {
	Path    string   `json:"path"`
	Version int      `json:"version"`
	Target  int      `json:"target"`
	Tables  []string `json:"tables"`
}

func newSchemaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Show the schema version and logical tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(cmd, func(ctx context.Context, db *browserdb.BrowserDB, out io.Writer) error {
				version, err := db.SchemaVersion(ctx)
				if err != nil {
					return err
				}
				info := schemaInfo{Path: db.Path(), Version: version, Target: browserdb.SchemaVersion, Tables: db.Tables()}
				return a.emit(out, info, func(w io.Writer) {
					fmt.Fprintf(w, "path:    %s\nversion: %d\ntables:\n", info.Path, info.Version)
					for _, t := range info.Tables {
						fmt.Fprintf(w, "  %s\n", t)
					}
				})
			})
		},
	}
}
