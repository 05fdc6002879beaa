package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"cfinav/config"
	"cfinav/misc"
	"cfinav/state"
)

// initializeAppContext prepares application context before command execution but
// after command line has been parsed
func initializeAppContext(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	var err error

	if cmd.NArg() == 0 {
		// nothing to do, just return
		return ctx, nil
	}

	env := state.EnvFromContext(ctx)

	configFile := cmd.String("config")
	if env.Cfg, err = config.LoadConfiguration(configFile); err != nil {
		return ctx, fmt.Errorf("unable to prepare configuration: %w", err)
	}
	if cmd.Bool("debug") {
		if env.Rpt, err = env.Cfg.Reporting.Prepare(); err != nil {
			return ctx, fmt.Errorf("unable to prepare debug reporter: %w", err)
		}
		// save complete processed configuration if external configuration was provided
		if len(configFile) > 0 {
			if data, err := config.Dump(env.Cfg); err == nil {
				env.Rpt.StoreData(fmt.Sprintf("config/%s", filepath.Base(configFile)), data)
			}
		}
	}
	if env.Log, err = env.Cfg.Logging.Prepare(env.Rpt); err != nil {
		return ctx, fmt.Errorf("unable to prepare logs: %w", err)
	}
	env.RedirectStdLog()

	env.Log.Debug("Program started", zap.Strings("args", os.Args), zap.String("ver", misc.GetVersion()), zap.String("runtime", runtime.Version()), zap.String("hash", misc.GetGitHash()))

	if env.Rpt != nil {
		env.Log.Info("Creating debug report", zap.String("location", env.Rpt.Name()))
	}
	if len(configFile) == 0 {
		env.Log.Info("Using defaults (no configuration file)")
	}

	cp := env.Cfg.Reader.ZipCodePage
	if forced := cmd.String("force-zip-cp"); len(forced) > 0 {
		cp = forced
	}
	env.SetCodePage(cp)

	// cache is an optimization, program works without it
	if err := env.OpenCache(); err != nil {
		env.Log.Warn("Unable to open location cache, continuing without it", zap.Error(err))
	}
	return ctx, nil
}

func destroyAppContext(ctx context.Context, cmd *cli.Command) (err error) {
	env := state.EnvFromContext(ctx)

	if er := env.Close(); er != nil {
		err = multierr.Append(err, fmt.Errorf("unable to release resources: %w", er))
	}

	if env.Log != nil {
		env.Log.Debug("Program ended", zap.Duration("elapsed", env.Uptime()), zap.Strings("parsed args", cmd.Args().Slice()))
	}

	// close logging
	env.RestoreStdLog()

	// log is synced now and result can be used in report if necessary, errors
	// must be reported directly to stderr from now on
	if env.Rpt != nil {
		if er := env.Rpt.Close(); er != nil {
			err = multierr.Append(err, fmt.Errorf("unable to close debug report: %w", er))
		}
	}
	// reporting is closed now - remove empty panic file if any
	if env.Cfg != nil && len(env.Cfg.Logging.FileLogger.Destination) > 0 {
		debug.SetCrashOutput(nil, debug.CrashOptions{})
		fname := filepath.Join(filepath.Dir(env.Cfg.Logging.FileLogger.Destination), misc.GetAppName()+"-panic.log")
		if fi, er := os.Stat(fname); er == nil && fi.Size() == 0 {
			if er := os.Remove(fname); er != nil {
				err = multierr.Append(err, fmt.Errorf("unable to remove empty panic log file '%s': %w", fname, er))
			}
		}
	}
	return
}

// Errors from subcommands are regular errors, they are reported either by
// exitErrHandler or on exit directly to stderr.
var errWasHandled bool

// this is called before appContext is destroyed, so we have a chance to
// properly log any error from subcommand
func exitErrHandler(ctx context.Context, _ *cli.Command, err error) {
	env := state.EnvFromContext(ctx)

	if env.Log != nil {
		env.Log.Error("Program ended with error", zap.Error(err))
		errWasHandled = true
	}
}

func usageErrorHandler(_ context.Context, _ *cli.Command, err error, _ bool) error {
	return err
}

func subcommandNotFoundHandler(ctx context.Context, _ *cli.Command, name string) {
	state.EnvFromContext(ctx).Log.Warn("Unknown command, nothing to do", zap.String("command", name))
}

const bookHelp = `
BOOK:
    path to the book, either EPUB file or directory with unpacked EPUB
    (select with --input-type or "reader.input_type" configuration value)
`

func main() {

	// allow graceful shutdown on interrupt, open command waits for
	// background work which could be long for big books
	ctx, stop := signal.NotifyContext(state.ContextWithEnv(context.Background()), os.Interrupt, syscall.SIGTERM)

	inputTypeFlag := func() cli.Flag {
		return &cli.StringFlag{Name: "input-type", Aliases: []string{"it"},
			Usage: "override book `TYPE` (supported types: " + strings.Join(config.InputTypeNames(), ", ") + ")"}
	}

	app := &cli.Command{
		Name:            misc.GetAppName(),
		Usage:           "navigation core for EPUB books: locators, table of contents, locations and reading position",
		Version:         misc.GetVersion() + " (" + runtime.Version() + ") : " + misc.GetGitHash(),
		HideHelpCommand: true,
		Before:          initializeAppContext,
		After:           destroyAppContext,
		OnUsageError:    usageErrorHandler,
		ExitErrHandler:  exitErrHandler,
		CommandNotFound: subcommandNotFoundHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, DefaultText: "", Usage: "load configuration from `FILE` (YAML)"},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "changes program behavior to help troubleshooting, produces report archive"},
			&cli.StringFlag{Name: "force-zip-cp",
				Usage: "Force `ENCODING` for ALL non UTF-8 file names in book archives (see IANA.org for character set names)"},
		},
		Commands: []*cli.Command{
			{
				Name:         "open",
				Usage:        "Opens book and reports reader events as JSON lines on STDOUT",
				OnUsageError: usageErrorHandler,
				Action:       openBook,
				Flags: []cli.Flag{
					inputTypeFlag(),
					&cli.StringFlag{Name: "flow", Usage: "override reading `FLOW` (supported: " + strings.Join(config.FlowNames(), ", ") + ")"},
					&cli.StringFlag{Name: "locations", Aliases: []string{"l"}, Usage: "load saved location table from `FILE` instead of generating it"},
					&cli.IntFlag{Name: "pages", Aliases: []string{"p"}, Usage: "turn `N` pages after book is displayed"},
				},
				ArgsUsage: "BOOK [CFI]",
				CustomHelpTemplate: fmt.Sprintf(`%s%s
CFI:
    position to display after book is opened, for example "epubcfi(/6/4!/4/2/1:0)"

When location cache is enabled, location tables are taken from and stored to
the cache automatically.
`, cli.CommandHelpTemplate, bookHelp),
			},
			{
				Name:               "toc",
				Usage:              "Prints navigation tree of the book and table of contents anchored to CFIs",
				OnUsageError:       usageErrorHandler,
				Action:             printTOC,
				Flags:              []cli.Flag{inputTypeFlag()},
				ArgsUsage:          "BOOK",
				CustomHelpTemplate: fmt.Sprintf(`%s%s`, cli.CommandHelpTemplate, bookHelp),
			},
			{
				Name:         "locations",
				Usage:        "Generates location table of the book",
				OnUsageError: usageErrorHandler,
				Action:       generateLocations,
				Flags: []cli.Flag{
					inputTypeFlag(),
					&cli.IntFlag{Name: "chars-per-page", Usage: "override page size, `N` characters"},
					&cli.BoolFlag{Name: "overwrite", Aliases: []string{"ow"}, Usage: "overwrite destination if it exists"},
				},
				ArgsUsage: "BOOK [DESTINATION]",
				CustomHelpTemplate: fmt.Sprintf(`%s%s
DESTINATION:
    file to write serialized location table to, if absent - file named after
    the book in current working directory
`, cli.CommandHelpTemplate, bookHelp),
			},
			{
				Name:               "locate",
				Usage:              "Prints reading position for CFI and text found at that address",
				OnUsageError:       usageErrorHandler,
				Action:             locate,
				Flags:              []cli.Flag{inputTypeFlag()},
				ArgsUsage:          "BOOK CFI",
				CustomHelpTemplate: fmt.Sprintf(`%s%s`, cli.CommandHelpTemplate, bookHelp),
			},
			{
				Name:  "dumpconfig",
				Usage: "Dumps either default or actual configuration (YAML)",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "default", Usage: "output default embedded configuration"},
				},
				OnUsageError: usageErrorHandler,
				Action:       outputConfiguration,
				ArgsUsage:    "DESTINATION",
				CustomHelpTemplate: fmt.Sprintf(`%s

DESTINATION:
    file name to write configuration to, if absent - STDOUT

Produces file with actual "active" configuration values which is composition of
default values and values specified in configuration file. To see default
configuration embedded into the program use --default flag.
`, cli.CommandHelpTemplate),
			},
		},
	}

	var err error
	// NOTE: os.Exit is called at the end of main to set exit code, make sure
	// there are no other deffered functions after that
	defer func() {
		stop()
		if err != nil {
			// It may happen that log is either not set yet (argument parsing) or already closed,
			// report errors to stderr directly
			if !errWasHandled {
				fmt.Fprintf(os.Stderr, "Program ended with error: %v\n", err)
			}
			os.Exit(1)
		}
	}()
	err = app.Run(ctx, os.Args)
}

func outputConfiguration(ctx context.Context, cmd *cli.Command) error {

	env := state.EnvFromContext(ctx)
	if cmd.Args().Len() > 1 {
		env.Log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}

	fname := cmd.Args().Get(0)

	var (
		err  error
		data []byte
		kind string
	)

	out := os.Stdout
	if len(fname) > 0 {
		out, err = os.Create(fname)
		if err != nil {
			return fmt.Errorf("unable to create destination file '%s': %w", fname, err)
		}
		defer out.Close()
	}

	if cmd.Bool("default") {
		kind = "default"
		data, err = config.Prepare()
	} else {
		kind = "actual"
		data, err = config.Dump(env.Cfg)
	}
	if err != nil {
		return fmt.Errorf("unable to get configuration: %w", err)
	}

	if len(fname) == 0 {
		fname = "STDOUT"
	}
	env.Log.Info("Outputing configuration", zap.String("state", kind), zap.String("file", fname))

	_, err = out.Write(data)
	if err != nil {
		return fmt.Errorf("unable to write configuration: %w", err)
	}
	return nil
}
