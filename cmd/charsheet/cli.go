package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/charsheet/charsheet"
	"github.com/arthur-debert/charsheet/charsheet/persist"
	"github.com/arthur-debert/charsheet/charsheet/rules"
	"github.com/arthur-debert/charsheet/charsheet/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// CLI is the viper-configured command tree around a character sheet.
type CLI struct {
	rootCmd   *cobra.Command
	viperInst *viper.Viper
	in        io.Reader
	out       io.Writer
	errOut    io.Writer
	logger    *slog.Logger
	logCloser io.Closer
}

// NewCLI creates the command tree.
func NewCLI(in io.Reader, out, errOut io.Writer) *CLI {
	cli := &CLI{
		viperInst: viper.New(),
		in:        in,
		out:       out,
		errOut:    errOut,
		logger:    slog.Default(),
	}
	cli.setupViperConfig()
	cli.createRootCommand()
	cli.addCommands()
	return cli
}

// Execute runs the command line.
func (cli *CLI) Execute() error {
	defer cli.closeLog()
	return cli.rootCmd.Execute()
}

// SetArgs overrides os.Args, for tests.
func (cli *CLI) SetArgs(args []string) {
	cli.rootCmd.SetArgs(args)
}

func (cli *CLI) closeLog() {
	if cli.logCloser != nil {
		_ = cli.logCloser.Close()
		cli.logCloser = nil
	}
}

// setupViperConfig configures Viper with environment variables and config files
func (cli *CLI) setupViperConfig() {
	if configFile := os.Getenv("CHARSHEET_CONFIG"); configFile != "" {
		cli.viperInst.SetConfigFile(configFile)
	} else {
		cli.viperInst.SetConfigName("charsheet")
		cli.viperInst.AddConfigPath(".")
		cli.viperInst.AddConfigPath("$HOME/.charsheet")
		cli.viperInst.AddConfigPath("/etc/charsheet")
	}

	cli.viperInst.SetEnvPrefix("CHARSHEET")
	// redis.addr -> CHARSHEET_REDIS_ADDR, log-level -> CHARSHEET_LOG_LEVEL
	cli.viperInst.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	cli.viperInst.AutomaticEnv()

	cli.viperInst.SetDefault("backend", string(storage.BackendFile))
	cli.viperInst.SetDefault("key", persist.DefaultKey)
	cli.viperInst.SetDefault("debounce", persist.DefaultDebounce)
	cli.viperInst.SetDefault("log-level", "warn")
	cli.viperInst.SetDefault("format", "table")

	// Read config file if it exists (ignore errors)
	_ = cli.viperInst.ReadInConfig()
}

func (cli *CLI) createRootCommand() {
	cli.rootCmd = &cobra.Command{
		Use:   "charsheet",
		Short: "Warhammer Fantasy Roleplay character sheet",
		Long: `charsheet keeps a WFRP 4e character record with derived values
(current characteristics, skill totals, experience and encumbrance) and
persists it to a file, a bbolt database or Redis.

Configuration Sources (in order of precedence):
1. Command line flags
2. Environment variables (CHARSHEET_*)
3. Configuration files (CHARSHEET_CONFIG, ./charsheet.yaml, ~/.charsheet/, /etc/charsheet/)

Examples:
  charsheet set name "Hilde Brandt"
  charsheet set characteristics.ws.initial 38
  charsheet section add weapons name=Sword enc=1
  charsheet get _computed.currentWS
  charsheet export -o hilde.json`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, closer, err := initLogging(cli.viperInst.GetString("log-level"), cli.viperInst.GetBool("verbose"), cli.errOut)
			if err != nil {
				// Logging is best effort: keep running with the default logger.
				fmt.Fprintf(cli.errOut, "Warning: %v\n", err)
				return nil
			}
			cli.logger = logger
			cli.logCloser = closer
			return nil
		},
	}
	cli.rootCmd.SetIn(cli.in)
	cli.rootCmd.SetOut(cli.out)
	cli.rootCmd.SetErr(cli.errOut)

	cli.addGlobalFlags()
}

// addGlobalFlags adds persistent flags that apply to all commands
func (cli *CLI) addGlobalFlags() {
	flags := cli.rootCmd.PersistentFlags()

	flags.String("backend", string(storage.BackendFile), "Storage backend (file|bolt|redis|memory)")
	flags.String("path", "", "Data file for the file and bolt backends")
	flags.String("key", persist.DefaultKey, "Storage key of the character")
	flags.Duration("debounce", persist.DefaultDebounce, "Quiet window before a save")
	flags.String("redis-addr", "", "Redis server address")
	flags.String("redis-password", "", "Redis password")
	flags.Int("redis-db", 0, "Redis database number")
	flags.String("rules", "", "YAML rules file replacing the built-in rules")
	flags.StringP("format", "f", "table", "Output format (table|json|yaml)")
	flags.String("log-level", "warn", "Log level (debug|info|warn|error)")
	flags.BoolP("verbose", "v", false, "Also write logs to stderr")

	bindings := map[string]string{
		"backend":        "backend",
		"path":           "path",
		"key":            "key",
		"debounce":       "debounce",
		"redis.addr":     "redis-addr",
		"redis.password": "redis-password",
		"redis.db":       "redis-db",
		"rules":          "rules",
		"format":         "format",
		"log-level":      "log-level",
		"verbose":        "verbose",
	}
	for key, flag := range bindings {
		_ = cli.viperInst.BindPFlag(key, flags.Lookup(flag))
	}
}

// addCommands adds all the CLI commands
func (cli *CLI) addCommands() {
	cli.addShowCommand()
	cli.addGetCommand()
	cli.addSetCommand()
	cli.addSectionCommand()
	cli.addExportCommand()
	cli.addImportCommand()
	cli.addResetCommand()
}

// storageConfig builds the backend configuration from viper.
func (cli *CLI) storageConfig() storage.Config {
	backend := storage.Backend(strings.ToLower(cli.viperInst.GetString("backend")))
	path := cli.viperInst.GetString("path")
	if path == "" {
		name := "character.json"
		if backend == storage.BackendBolt {
			name = "character.db"
		}
		path = filepath.Join(getXDGDataDir(), name)
	}
	return storage.Config{
		Backend: backend,
		Path:    path,
		Redis: storage.RedisConfig{
			Addr:     cli.viperInst.GetString("redis.addr"),
			Password: cli.viperInst.GetString("redis.password"),
			DB:       cli.viperInst.GetInt("redis.db"),
		},
	}
}

// withSheet opens the configured sheet, runs fn and closes the sheet, which
// flushes any pending save before the store is closed.
func (cli *CLI) withSheet(operation string, fn func(*charsheet.Sheet) error) error {
	ctx := context.Background()

	opts := []charsheet.Option{
		charsheet.WithLogger(cli.logger),
		charsheet.WithKey(cli.viperInst.GetString("key")),
		charsheet.WithDebounce(cli.viperInst.GetDuration("debounce")),
	}
	if path := cli.viperInst.GetString("rules"); path != "" {
		r, err := rules.LoadFile(path)
		if err != nil {
			return NewConfigError(operation, err, CommonSuggestions.CheckConfig)
		}
		opts = append(opts, charsheet.WithRules(r))
	}

	durable, err := storage.Open(cli.storageConfig())
	if err != nil {
		return NewConfigError(operation, err, CommonSuggestions.CheckConfig)
	}
	defer func() { _ = durable.Close() }()

	sheet, err := charsheet.Open(ctx, durable, opts...)
	if err != nil {
		return WrapError(operation, err)
	}

	runErr := fn(sheet)
	if err := sheet.Close(ctx); err != nil && runErr == nil {
		runErr = err
	}
	return WrapError(operation, runErr)
}
