// Command worker is the fleet's child process: one emulator, one VM,
// driven over stdin/stdout by the parallel runner.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/jahorta/soasim/fleetlog"
	"github.com/jahorta/soasim/host"
	"github.com/jahorta/soasim/ipc"
	"github.com/jahorta/soasim/pscontext"
	"github.com/jahorta/soasim/worker"
)

func main() {
	var (
		id        = flag.Int("id", 0, "Worker id assigned by the runner")
		isoPath   = flag.String("iso", "", "Path to the game disc image")
		savestate = flag.String("savestate", "", "Savestate to load after boot")
		qtBase    = flag.String("qtbase", "", "Emulator base directory (read-only, must contain Sys)")
		userDir   = flag.String("userdir", "", "Per-worker user directory (exclusive to this worker)")
		timeoutMs = flag.Uint("timeout", 60000, "Default run-until-bp timeout in milliseconds")
		logLevel  = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		logFile   = flag.String("log-file", "", "Log file path (default: stderr)")
	)
	flag.Parse()

	level, err := fleetlog.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(worker.ExitInvalidHandles)
	}

	var logOut io.Writer = os.Stderr
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "worker: open log file: %v\n", err)
			os.Exit(worker.ExitInvalidHandles)
		}
		defer f.Close()
		logOut = f
	}
	log := fleetlog.New(logOut, level, fmt.Sprintf("worker %d: ", *id))

	if *isoPath == "" {
		log.Errorf("missing required --iso")
		os.Exit(worker.ExitInvalidHandles)
	}

	if ok, detail := pscontext.ValidateRegistry(); !ok {
		log.Errorf("key registry invalid: %s", detail)
		os.Exit(worker.ExitInvalidHandles)
	}

	emu, err := host.Open(*qtBase, *userDir)
	if err != nil {
		log.Errorf("open emulator: %v", err)
		os.Exit(worker.ExitBootFailed)
	}

	conn := ipc.NewConn(os.Stdin, os.Stdout)
	w := worker.New(worker.Options{
		ID:               *id,
		ISOPath:          *isoPath,
		SavestatePath:    *savestate,
		QtBaseDir:        *qtBase,
		UserDir:          *userDir,
		DefaultTimeoutMs: uint32(*timeoutMs),
		Log:              log,
	}, emu, conn)

	if code := w.Boot(); code != worker.ExitClean {
		os.Exit(code)
	}

	monitor := worker.NewParentMonitor(log, func() { os.Exit(worker.ExitClean) })
	monitor.Start()
	defer monitor.Stop()

	if err := w.Serve(); err != nil {
		log.Errorf("serve: %v", err)
		os.Exit(worker.ExitInvalidHandles)
	}
}
