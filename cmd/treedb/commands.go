package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/maruel/treedb"
	"github.com/maruel/treedb/internal/config"
	"github.com/maruel/treedb/internal/search"
	"github.com/maruel/treedb/internal/tree"
	"github.com/maruel/treedb/internal/utils"
	"github.com/spf13/cobra"
)

// app holds the state shared by the commands.
type app struct {
	out       io.Writer
	lookupEnv func(string) (string, bool)

	configPath string
	logLevel   string
	dir        string
	method     string
	key        string
	crypted    bool
	autoBackup bool

	cfg *config.Config
}

func newRootCmd(out io.Writer, lookupEnv func(string) (string, bool)) *cobra.Command {
	a := &app{out: out, lookupEnv: lookupEnv}
	root := &cobra.Command{
		Use:          "treedb",
		Short:        "Read and write a path addressed JSON document store",
		SilenceUsage: true,
	}
	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return a.setup(cmd)
	}
	root.SetOut(out)
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "treedb.yaml", "YAML configuration file; ignored when the default is missing")
	pf.StringVar(&a.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	pf.StringVar(&a.dir, "dir", "", "Database directory")
	pf.StringVar(&a.method, "method", "", "Encoding method when crypted (plain, keyed)")
	pf.StringVar(&a.key, "key", "", "Secret for the keyed method; prefer TREEDB_ENCRYPTION_KEY")
	pf.BoolVar(&a.crypted, "crypted", false, "Store the tree encoded")
	pf.BoolVar(&a.autoBackup, "auto-backup", false, "Back up the file before each save")

	root.AddCommand(
		newGetCmd(a),
		newExistsCmd(a),
		newSetCmd(a),
		newEditCmd(a),
		newRmCmd(a),
		newAddCmd(a),
		newDumpCmd(a),
		newFilterCmd(a),
		newBackupCmd(a),
		newRestoreCmd(a),
		newSearchCmd(a),
		newExportCmd(a),
		newPushCmd(a),
		newWatchCmd(a),
		newPasswdCmd(a),
		newKeygenCmd(a),
		newSchemaCmd(a),
		newVersionCmd(a),
	)
	return root
}

// setup resolves the configuration: defaults, then the file, then the
// environment, then flags.
func (a *app) setup(cmd *cobra.Command) error {
	if err := setupLogging(a.logLevel); err != nil {
		return err
	}
	f := cmd.Flags()
	cfg, err := config.Load(a.configPath, !f.Changed("config"))
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(a.lookupEnv); err != nil {
		return err
	}
	if f.Changed("dir") {
		cfg.Dir = a.dir
	}
	if f.Changed("method") {
		cfg.EncryptionMethod = a.method
	}
	if f.Changed("key") {
		cfg.EncryptionKey = a.key
	}
	if f.Changed("crypted") {
		cfg.Crypted = a.crypted
	}
	if f.Changed("auto-backup") {
		cfg.AutoBackup = a.autoBackup
	}
	if a.logLevel == "debug" || a.logLevel == "info" {
		cfg.Log = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *app) open() (*treedb.DB, error) {
	o := a.cfg.Options()
	o.Logger = slog.Default()
	return treedb.Open(o)
}

// run opens the store, calls fn and closes it.
func (a *app) run(fn func(db *treedb.DB) error) error {
	db, err := a.open()
	if err != nil {
		return err
	}
	return errors.Join(fn(db), db.Close())
}

func (a *app) print(v any) error {
	return utils.PrettyPrint(a.out, v)
}

// parseValue decodes a JSON command line argument, keeping integers exact.
func parseValue(s string) (any, error) {
	v, err := tree.DecodeJSON([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("value must be JSON: %w", err)
	}
	return v, nil
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "Print the value at a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return a.run(func(db *treedb.DB) error {
				v, err := db.Get(args[0])
				if err != nil {
					return err
				}
				return a.print(v)
			})
		},
	}
}

func newExistsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exists <path>",
		Short: "Print whether a path exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return a.run(func(db *treedb.DB) error {
				_, err := fmt.Fprintln(a.out, db.Exists(args[0]))
				return err
			})
		},
	}
}

func newSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <path> [json]",
		Short: "Insert a JSON object at a new path",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			var v any
			if len(args) == 2 {
				var err error
				if v, err = parseValue(args[1]); err != nil {
					return err
				}
			}
			return a.run(func(db *treedb.DB) error {
				return db.Set(args[0], v)
			})
		},
	}
}

func newEditCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <path> <json>",
		Short: `Merge a JSON object into a path, or increment fields with {"n": "+1"}`,
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			v, err := parseValue(args[1])
			if err != nil {
				return err
			}
			return a.run(func(db *treedb.DB) error {
				return db.Edit(args[0], v)
			})
		},
	}
}

func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Remove the value at a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return a.run(func(db *treedb.DB) error {
				return db.Remove(args[0])
			})
		},
	}
}

func newAddCmd(a *app) *cobra.Command {
	var stamp bool
	cmd := &cobra.Command{
		Use:   "add <collection> <json>",
		Short: "Add a record to a collection under a generated id and print the id",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			v, err := parseValue(args[1])
			if err != nil {
				return err
			}
			if m, ok := v.(map[string]any); ok && stamp {
				utils.KeyExistsOrAdd(m, "created_at", time.Now().UTC().Format(time.RFC3339))
			}
			return a.run(func(db *treedb.DB) error {
				id, err := db.AddItem(args[0], v)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(a.out, id)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&stamp, "stamp", false, "Set created_at unless the record has one")
	return cmd
}

func newDumpCmd(a *app) *cobra.Command {
	var raw, flat, lower, sanitize bool
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the whole tree",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return a.run(func(db *treedb.DB) error {
				if raw {
					data, err := db.Raw()
					if err != nil {
						return err
					}
					_, err = a.out.Write(data)
					return err
				}
				root, err := db.GetDB()
				if err != nil {
					return err
				}
				if flat {
					root = utils.Flatten(root, ".")
				}
				if lower {
					root = utils.NormalizeKeys(root)
				}
				if sanitize {
					root = utils.SanitizeOutput(root)
				}
				return a.print(root)
			})
		},
	}
	f := cmd.Flags()
	f.BoolVar(&raw, "raw", false, "Print the file as stored")
	f.BoolVar(&flat, "flat", false, "Flatten nested maps into dotted keys")
	f.BoolVar(&lower, "lower", false, "Lower case top level keys")
	f.BoolVar(&sanitize, "sanitize", false, "Escape HTML in top level strings")
	return cmd
}

func newFilterCmd(a *app) *cobra.Command {
	var field, eq, timeField, after, before, sortBy string
	var reverse bool
	cmd := &cobra.Command{
		Use:   "filter <collection>",
		Short: "Print the records of a collection matching conditions",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var from, to time.Time
			var err error
			if after != "" {
				if from, err = utils.ParseTime(after); err != nil {
					return err
				}
			}
			if before != "" {
				if to, err = utils.ParseTime(before); err != nil {
					return err
				}
			}
			return a.run(func(db *treedb.DB) error {
				coll, err := db.GetSubcollection(args[0])
				if err != nil {
					return err
				}
				var records []map[string]any
				for _, k := range slices.Sorted(maps.Keys(coll)) {
					if r, ok := coll[k].(map[string]any); ok {
						records = append(records, r)
					}
				}
				records = utils.Filter(records, func(r map[string]any) bool {
					if field != "" && search.Text(utils.GetOrDefault(r, field, nil)) != eq {
						return false
					}
					if from.IsZero() && to.IsZero() {
						return true
					}
					s, _ := r[timeField].(string)
					ts, err := utils.ParseTime(s)
					if err != nil {
						return false
					}
					return (from.IsZero() || ts.After(from)) && (to.IsZero() || ts.Before(to))
				})
				if sortBy != "" {
					utils.Sort(records, sortBy, reverse)
				}
				if records == nil {
					records = []map[string]any{}
				}
				return a.print(records)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&field, "field", "", "Field to compare with --eq")
	f.StringVar(&eq, "eq", "", "Text value --field must have")
	f.StringVar(&timeField, "time-field", "created_at", "ISO 8601 field compared with --after and --before")
	f.StringVar(&after, "after", "", "Keep records strictly after this time")
	f.StringVar(&before, "before", "", "Keep records strictly before this time")
	f.StringVar(&sortBy, "sort", "", "Field to sort by")
	f.BoolVar(&reverse, "reverse", false, "Sort in descending order")
	return cmd
}

func newBackupCmd(a *app) *cobra.Command {
	var timestamped bool
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Copy the database file to its backup",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return a.run(func(db *treedb.DB) error {
				p := db.BackupPath()
				if timestamped {
					var err error
					if p, err = db.BackupTimestamped(); err != nil {
						return err
					}
				} else if err := db.Backup(); err != nil {
					return err
				}
				_, err := fmt.Fprintln(a.out, p)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&timestamped, "timestamped", false, "Write a new file named after the current time")
	return cmd
}

func newRestoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Replace the database file with its backup",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return a.run(func(db *treedb.DB) error {
				return db.Restore()
			})
		},
	}
}

func newSearchCmd(a *app) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "search <value>",
		Short: "Print the paths holding a value",
		Long:  "Print the paths holding a value. The value is parsed as JSON when possible, so 30 finds numbers and strings alike.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var v any = args[0]
			if parsed, err := parseValue(args[0]); err == nil {
				v = parsed
			}
			return a.run(func(db *treedb.DB) error {
				found, err := db.Search(v, key)
				if err != nil {
					return err
				}
				return a.print(found)
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "Only search this top level key")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:       "export <csv|yaml> [path]",
		Short:     "Export the tree or a fragment into the database directory",
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: []string{"csv", "yaml"},
		RunE: func(_ *cobra.Command, args []string) error {
			path := ""
			if len(args) == 2 {
				path = args[1]
			}
			return a.run(func(db *treedb.DB) error {
				var p string
				var err error
				switch args[0] {
				case "csv":
					p, err = db.ExportCSV(path, output)
				case "yaml":
					p, err = db.ExportYAML(path, output)
				default:
					return fmt.Errorf("unknown export format %q", args[0])
				}
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(a.out, p)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "File name within the database directory")
	return cmd
}

func newPushCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Send a fresh backup through every configured transport",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			transports, err := a.cfg.Transports()
			if err != nil {
				return err
			}
			if len(transports) == 0 {
				return errors.New("no backup transport configured; add telegram or git to the config file")
			}
			return a.run(func(db *treedb.DB) error {
				for _, t := range transports {
					p, err := db.PushBackup(cmd.Context(), t)
					if err != nil {
						return err
					}
					if _, err := fmt.Fprintf(a.out, "%s: %s\n", t.Name(), p); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the tree every time the database file changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(func(db *treedb.DB) error {
				w, err := newFileWatcher(db.Path())
				if err != nil {
					return err
				}
				if err := a.printTree(db); err != nil {
					_ = w.Close()
					return err
				}
				return w.run(cmd.Context(), func() {
					if err := db.Reload(); err != nil {
						slog.WarnContext(cmd.Context(), "Reload failed", "err", err)
						return
					}
					if err := a.printTree(db); err != nil {
						slog.WarnContext(cmd.Context(), "Print failed", "err", err)
					}
				})
			})
		},
	}
}

func (a *app) printTree(db *treedb.DB) error {
	root, err := db.GetDB()
	if err != nil {
		return err
	}
	return a.print(root)
}

func newPasswdCmd(a *app) *cobra.Command {
	var field string
	var check bool
	cmd := &cobra.Command{
		Use:   "passwd <path> <password>",
		Short: "Store a bcrypt hash of a password in a record, or check one",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return a.run(func(db *treedb.DB) error {
				if check {
					v, err := db.Get(args[0] + "/" + field)
					if err != nil {
						return err
					}
					hash, _ := v.(string)
					if !utils.CheckPassword(hash, args[1]) {
						return errors.New("password mismatch")
					}
					_, err = fmt.Fprintln(a.out, "ok")
					return err
				}
				hash, err := utils.HashPassword(args[1])
				if err != nil {
					return err
				}
				return db.Edit(args[0], map[string]any{field: hash})
			})
		},
	}
	cmd.Flags().StringVar(&field, "field", "password", "Record field holding the hash")
	cmd.Flags().BoolVar(&check, "check", false, "Verify the password instead of storing it")
	return cmd
}

func newKeygenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a random secret for the keyed method",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			s, err := utils.GenerateToken(32)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.out, s)
			return err
		},
	}
}

func newSchemaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return a.print(config.Schema())
		},
	}
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			printVersion(a.out)
			return nil
		},
	}
}
