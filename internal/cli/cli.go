package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"syscall"

	"github.com/ElliotLearnsThings/KVOpt/internal/logger"
	"github.com/ElliotLearnsThings/KVOpt/internal/persist"
	"github.com/ElliotLearnsThings/KVOpt/internal/server"
	"github.com/ElliotLearnsThings/KVOpt/internal/store"
)

var Version string

func version() string {
	if Version != "" {
		return Version
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "(devel)"
	}

	return info.Main.Version
}

type CLI struct {
	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader

	stderrIsTerminal bool
}

func NewCLI(stdout, stderr io.Writer, stdin io.Reader, stderrIsTerminal bool) *CLI {
	return &CLI{
		stdout:           stdout,
		stderr:           stderr,
		stdin:            stdin,
		stderrIsTerminal: stderrIsTerminal,
	}
}

func (c *CLI) Run(args []string) int {
	opts, err := parseFlags(args[1:], c.stderrIsTerminal)
	if err != nil {
		fmt.Fprintf(c.stderr, "failed to parse flags: %v\n", err)
		return 2
	}
	if opts.showVersion {
		fmt.Fprintf(c.stdout, "kvopt version %s; %s\n", version(), runtime.Version())
		return 0
	}

	logFile := opts.logFile
	if logFile == "" {
		logFile = filepath.Join(opts.dataDir, "kvopt.log")
	}
	lg, err := logger.New(logger.Config{
		Path:    logFile,
		Echo:    opts.echoLog,
		EchoTo:  c.stderr,
		Verbose: opts.verbose,
	})
	if err != nil {
		fmt.Fprintf(c.stderr, "failed to open log file: %v\n", err)
		return 1
	}
	defer lg.Close()

	st := store.New()
	srv := server.New(server.Config{
		In:             c.stdin,
		Out:            c.stdout,
		Store:          st,
		Persister:      persist.New(opts.dataDir, st, lg.Logger),
		SweepInterval:  opts.sweepInterval,
		SaveInterval:   opts.saveInterval,
		SaveDirtyOnly:  opts.saveDirtyOnly,
		SweepThreshold: opts.sweepThreshold,
		Verbose:        opts.verbose,
		Logger:         lg.Logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Serve(ctx); err != nil {
		lg.Error("server failed", "error", err)
		fmt.Fprintf(c.stderr, "server failed: %v\n", err)
		return 1
	}
	return 0
}
