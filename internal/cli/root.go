// Package cli implements the browserdb command-line interface, a thin
// operator tool over a browser profile database.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/browserdb/internal/browserdb"
	"github.com/mesh-intelligence/browserdb/internal/log"
	"github.com/mesh-intelligence/browserdb/internal/paths"
	"github.com/mesh-intelligence/browserdb/pkg/types"
)

// Exit codes.
const (
	ExitSuccess   = 0
	ExitUserError = 1
	ExitSysError  = 2
)

// app holds the state shared by every subcommand of one invocation.
type app struct {
	configDir string
	dataDir   string
	jsonMode  bool

	v      *viper.Viper
	logger *slog.Logger
}

// NewRootCmd creates the top-level "browserdb" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "browserdb",
		Short: "Inspect and edit a browser profile database",
		Long: "browserdb opens the SQLite profile database of the browser storage layer,\n" +
			"migrating or quarantining it as needed, and reads or edits its history,\n" +
			"favicons, bookmarks and tab queue.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	root.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "data directory (default: $(CWD)/"+paths.DefaultDataDirName+")")
	root.PersistentFlags().BoolVar(&a.jsonMode, "json", false, "output as JSON")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(a),
		newSchemaCmd(a),
		newHistoryCmd(a),
		newVisitsCmd(a),
		newBookmarksCmd(a),
		newFaviconsCmd(a),
		newQueueCmd(a),
	)
	return root
}

// Execute runs the root command with args and returns the process exit
// code. Errors are printed to the command's error stream.
func Execute(ctx context.Context, args []string) int {
	root := NewRootCmd()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "browserdb:", err)
		return exitCode(err)
	}
	return ExitSuccess
}

// setup loads the configuration and installs the process logger.
func (a *app) setup(cmd *cobra.Command) error {
	configDir, err := paths.ResolveConfigDir(a.configDir)
	if err != nil {
		return sysError(fmt.Errorf("resolve config dir: %w", err))
	}
	a.configDir = configDir

	v, err := loadConfig(configDir)
	if err != nil {
		return err
	}
	a.v = v

	log.Init(log.Options{
		Level:  v.GetString(keyLogLevel),
		Format: v.GetString(keyLogFormat),
		File:   v.GetString(keyLogFile),
		Writer: cmd.ErrOrStderr(),
	})
	a.logger = log.WithComponent("cli")
	return nil
}

// profileConfig builds the database configuration from flags and config.
func (a *app) profileConfig() (types.Config, error) {
	dataDir, err := paths.ResolveDataDir(a.dataDir, a.v.GetString(keyDataDir))
	if err != nil {
		return types.Config{}, sysError(fmt.Errorf("resolve data dir: %w", err))
	}
	cfg := types.Config{
		DataDir:     dataDir,
		Database:    a.v.GetString(keyDatabase),
		BusyTimeout: a.v.GetDuration(keyBusyTimeout),
		BusyRetries: a.v.GetInt(keyBusyRetries),
	}
	if err := cfg.Validate(); err != nil {
		return types.Config{}, userError(fmt.Errorf("config: %w", err))
	}
	return cfg.Normalize(), nil
}

// open opens the profile database. The caller must Close it.
func (a *app) open(ctx context.Context) (*browserdb.BrowserDB, error) {
	cfg, err := a.profileConfig()
	if err != nil {
		return nil, err
	}
	db, err := browserdb.Open(ctx, browserdb.DirAccessor{Dir: cfg.DataDir},
		browserdb.WithConfig(cfg),
		browserdb.WithLogger(log.WithComponent("browserdb")),
	)
	if err != nil {
		return nil, sysError(fmt.Errorf("open database: %w", err))
	}
	return db, nil
}

// withDB opens the database, runs fn and closes it.
func (a *app) withDB(cmd *cobra.Command, fn func(ctx context.Context, db *browserdb.BrowserDB, out io.Writer) error) error {
	ctx := cmd.Context()
	db, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			a.logger.Warn("closing database", "err", cerr)
		}
	}()
	return fn(ctx, db, cmd.OutOrStdout())
}

// cliError carries an exit code alongside the error.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func userError(err error) error { return &cliError{code: ExitUserError, err: err} }

func sysError(err error) error { return &cliError{code: ExitSysError, err: err} }

var systemErrors = []error{
	types.ErrOpen,
	types.ErrPrepare,
	types.ErrBind,
	types.ErrStep,
	types.ErrMigration,
	types.ErrQuarantineExhausted,
	types.ErrClosed,
}

// exitCode maps err to an exit code. Storage engine failures are system
// errors; bad arguments, flags and entity data are user errors.
func exitCode(err error) int {
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	for _, target := range systemErrors {
		if errors.Is(err, target) {
			return ExitSysError
		}
	}
	return ExitUserError
}
