package cmds

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/go-pstack/pstack/pkg/config"
	"github.com/go-pstack/pstack/pkg/logflags"
	"github.com/go-pstack/pstack/pkg/pstack"
	"github.com/go-pstack/pstack/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// gdbPath overrides the gdb binary used.
	gdbPath string
	// printVersion is whether to print version information and exit.
	printVersion bool

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
)

const pstackLongDesc = `pstack prints a stack trace for each of the given running processes.

It drives an ordinary gdb through its console: for every pid it
attaches, lists the target's threads, prints a backtrace per thread
(or a single backtrace for single-threaded targets) and detaches,
then moves on to the next pid. The processes are only stopped for as
long as it takes gdb to walk their stacks.`

// New returns an initialized command tree.
func New() *cobra.Command {
	conf = config.LoadConfig()

	rootCommand = &cobra.Command{
		Use:   "pstack [flags] pid [pid...]",
		Short: "pstack prints stack traces of running processes.",
		Long:  pstackLongDesc,
		Args:  cobra.ArbitraryArgs,
		Run:   pstackCmd,
	}

	rootCommand.Flags().BoolVarP(&printVersion, "version", "V", false, "Print version information and exit.")
	rootCommand.Flags().BoolVarP(&log, "log", "", false, "Enable debug logging.")
	rootCommand.Flags().StringVarP(&logOutput, "log-output", "", "", "Comma separated list of components that should produce debug output (gdbwire,driver).")
	rootCommand.Flags().StringVar(&gdbPath, "gdb", "", "Path to the gdb binary to drive. Overrides the config file and PATH lookup.")

	return rootCommand
}

func pstackCmd(cmd *cobra.Command, args []string) {
	if printVersion {
		fmt.Printf("pstack - print stack traces of running processes\n%s\n%s\n", version.PstackVersion, version.BuildInfo())
		return
	}

	if err := logflags.Setup(log, logOutput); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	pids, err := parsePids(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\n", err)
		cmd.Usage()
		os.Exit(1)
	}

	os.Exit(pstack.Run(pids, runOptions()))
}

// parsePids validates the positional arguments. Every argument must
// parse fully as a positive integer within the platform's pid range.
func parsePids(args []string) ([]int, error) {
	if len(args) == 0 {
		return nil, errors.New("No valid pids given")
	}

	pids := make([]int, 0, len(args))
	for _, arg := range args {
		pid, err := strconv.ParseInt(arg, 10, 32)
		if err != nil || pid <= 0 {
			return nil, fmt.Errorf("Invalid pid: %s", arg)
		}
		pids = append(pids, int(pid))
	}
	return pids, nil
}

func runOptions() pstack.Options {
	opts := pstack.Options{
		GdbPath: gdbPath,
		GdbArgs: conf.GdbArgs,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
	if opts.GdbPath == "" {
		opts.GdbPath = conf.GdbPath
	}
	if conf.ReapDelayMillis != nil {
		opts.ReapDelay = time.Duration(*conf.ReapDelayMillis) * time.Millisecond
	}
	if conf.ReapRetries != nil {
		opts.ReapRetries = *conf.ReapRetries
	}
	return opts
}
