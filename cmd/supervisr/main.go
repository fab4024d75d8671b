package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/supervisr"
)

const defaultAPIURL = "http://127.0.0.1:8080/api"

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds the persistent flags shared by every command
type GlobalFlags struct {
	ConfigPath string
}

// buildRoot creates the root command with all subcommands attached
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createDemoCommand(),
		createStatusCommand(),
		createStopCommand(),
		createRegisterCommand(),
		createDepsCommand(),
		createLoginCommand(),
		createHashPasswordCommand(),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "supervisr",
		Short: "Process supervision with restart strategies",
		Long: `Supervisr restarts failed processes according to a strategy
(one_for_one, one_for_all, rest_for_one) and gives up on a process
once its restart budget inside the sliding window is spent.

Examples:
  supervisr serve --config=supervisr.toml   # Start daemon
  supervisr status --name=web              # Query a running daemon
  supervisr stop --name=web --api-url=http://remote:8080/api
  supervisr demo --duration=20s            # Run the built-in demonstration`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func addAPIFlags(cmd *cobra.Command, f *APIFlags) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", defaultAPIURL, "daemon URL (e.g. http://host:8080/api)")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	cmd.Flags().BoolVar(&f.Insecure, "insecure", false, "skip TLS certificate verification (self-signed daemons)")
	cmd.Flags().StringVar(&f.Token, "token", os.Getenv("SUPERVISR_TOKEN"), "bearer token (default $SUPERVISR_TOKEN)")
	cmd.Flags().StringVar(&f.Username, "user", "", "basic auth username")
	cmd.Flags().StringVar(&f.Password, "password", "", "basic auth password")
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the supervisr daemon",
		Long: `Start the supervisr daemon. Processes, dependencies, history sinks,
metrics and the HTTP API are configured by the config file.

Examples:
  supervisr serve --config=supervisr.toml
  supervisr serve supervisr.toml
  supervisr serve supervisr.toml --daemonize --pidfile=/run/supervisr.pid`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			if len(args) > 0 {
				serveFlags.ConfigPath = args[0]
			}
			return runServe(cmd.Context(), serveFlags, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write the daemon PID to this file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon output to file")
	return cmd
}

func createDemoCommand() *cobra.Command {
	f := &DemoFlags{}
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run an unstable and a dependent stable process under supervision",
		Long: `Run the demonstration: "unstable_process" panics after --crash-after,
"stable_process" depends on it and logs once per second. States are printed
every --interval until --duration elapses.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), *f, cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVar(&f.Duration, "duration", 20*time.Second, "how long to observe")
	cmd.Flags().DurationVar(&f.Interval, "interval", 5*time.Second, "state print interval")
	cmd.Flags().DurationVar(&f.CrashAfter, "crash-after", 2*time.Second, "lifetime of each unstable instance")
	cmd.Flags().StringVar(&f.Strategy, "strategy", "one_for_one", "restart strategy")
	return cmd
}

func createStatusCommand() *cobra.Command {
	f := &StatusFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show process status",
		Long: `Show the status of processes supervised by a running daemon.

Examples:
  supervisr status                    # Show all processes
  supervisr status --name=web         # Show specific process`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newCommand(f.APIFlags, cmd.OutOrStdout()).Status(cmd.Context(), *f)
		},
	}
	cmd.Flags().StringVar(&f.Name, "name", "", "process name (optional)")
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func createStopCommand() *cobra.Command {
	f := &StopFlags{}
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a process permanently",
		Long: `Mark a process as stopped. A stopped process is never restarted.

Examples:
  supervisr stop --name=web`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newCommand(f.APIFlags, cmd.OutOrStdout()).Stop(cmd.Context(), *f)
		},
	}
	cmd.Flags().StringVar(&f.Name, "name", "", "process name")
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func createRegisterCommand() *cobra.Command {
	f := &RegisterFlags{}
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Add a shell command to a running daemon",
		Long: `Add a shell command as a supervised process. It starts immediately.

Examples:
  supervisr register --name=web --command="python app.py" --work-dir=/app --depends-on=db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newCommand(f.APIFlags, cmd.OutOrStdout()).Register(cmd.Context(), *f)
		},
	}
	cmd.Flags().StringVar(&f.Name, "name", "", "process name")
	cmd.Flags().StringVar(&f.Command, "command", "", "shell command to run")
	cmd.Flags().StringVar(&f.WorkDir, "work-dir", "", "absolute working directory")
	cmd.Flags().StringSliceVar(&f.Env, "env", nil, "KEY=VALUE environment entries")
	cmd.Flags().StringSliceVar(&f.DependsOn, "depends-on", nil, "processes this one depends on")
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func createDepsCommand() *cobra.Command {
	f := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Show the dependency graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newCommand(*f, cmd.OutOrStdout()).Dependencies(cmd.Context())
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}

func createLoginCommand() *cobra.Command {
	f := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Obtain a bearer token from the daemon",
		Long: `Exchange --user/--password for a bearer token. Export it as
SUPERVISR_TOKEN to use it with the other commands.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newCommand(*f, cmd.OutOrStdout()).Login(cmd.Context(), *f)
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}

func createHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for a [[server.auth.users]] entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := supervisr.HashPassword(args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
}
