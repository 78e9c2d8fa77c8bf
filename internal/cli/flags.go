package cli

import (
	"flag"
	"os"
	"time"

	"github.com/ElliotLearnsThings/KVOpt/internal/dispatch"
	"github.com/ElliotLearnsThings/KVOpt/internal/server"
)

type options struct {
	dataDir        string
	logFile        string
	echoLog        bool
	sweepInterval  time.Duration
	saveInterval   time.Duration
	saveDirtyOnly  bool
	sweepThreshold int
	verbose        bool
	showVersion    bool
}

func parseFlags(args []string, echoDefault bool) (options, error) {
	opt := options{}
	fs := flag.NewFlagSet("kvopt", flag.ContinueOnError)
	fs.StringVar(&opt.dataDir, "data", envDefault("KVOPT_DATA", "data"), "data directory for the persistence file")
	fs.StringVar(&opt.logFile, "log-file", envDefault("KVOPT_LOG", ""), "log file path; defaults to kvopt.log inside the data directory")
	fs.BoolVar(&opt.echoLog, "echo-log", echoDefault, "echo log records to stderr")
	fs.DurationVar(&opt.sweepInterval, "sweep-interval", server.DefaultSweepInterval, "interval between expiration sweeps")
	fs.DurationVar(&opt.saveInterval, "save-interval", server.DefaultSaveInterval, "interval between persistence saves")
	fs.BoolVar(&opt.saveDirtyOnly, "save-dirty-only", true, "skip periodic saves while the store is unchanged")
	fs.IntVar(&opt.sweepThreshold, "sweep-threshold", dispatch.DefaultSweepThreshold, "mutations between counter-driven sweeps")
	fs.BoolVar(&opt.verbose, "verbose", false, "verbose logging")
	fs.BoolVar(&opt.showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	return opt, nil
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
