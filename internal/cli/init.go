package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/browserdb/internal/browserdb"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the configuration and profile database",
		Long: "Write config.yaml if missing, record --data-dir in it when given, then\n" +
			"open the profile database so it is created or migrated to the current schema.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.recordDataDir(); err != nil {
				return err
			}
			return a.withDB(cmd, func(ctx context.Context, db *browserdb.BrowserDB, out io.Writer) error {
				version, err := db.SchemaVersion(ctx)
				if err != nil {
					return err
				}
				a.logger.Info("profile initialized", "path", db.Path(), "version", version)
				return a.emit(out, map[string]any{"path": db.Path(), "schema_version": version}, func(w io.Writer) {
					fmt.Fprintf(w, "Initialized %s (schema version %d)\n", db.Path(), version)
				})
			})
		},
	}
}

// recordDataDir stores an explicit --data-dir in config.yaml so later runs
// find the same database.
func (a *app) recordDataDir() error {
	if a.dataDir == "" {
		return nil
	}
	dir, err := filepath.Abs(a.dataDir)
	if err != nil {
		return sysError(err)
	}
	cfg, err := readFileConfig(a.configDir)
	if err != nil {
		return userError(err)
	}
	if cfg.DataDir == dir {
		return nil
	}
	cfg.DataDir = dir
	if err := writeFileConfig(a.configDir, cfg); err != nil {
		return sysError(err)
	}
	return nil
}
