// Command fleetctl is the thin driver that boots a worker fleet from
// the TOML configuration and runs one exploration mode against it.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jahorta/soasim/codec"
	"github.com/jahorta/soasim/config"
	"github.com/jahorta/soasim/explorer"
	"github.com/jahorta/soasim/fleetlog"
	"github.com/jahorta/soasim/pscontext"
	"github.com/jahorta/soasim/runner"
)

func main() {
	var (
		configPath = flag.String("config", "", "Config file path (default: platform config dir)")
		mode       = flag.String("mode", "seedprobe", "Exploration mode: seedprobe, battlecontext")
		probes     = flag.Int("probes", 16, "seedprobe: how many stick positions to sweep")
	)
	flag.Parse()

	if err := run(*configPath, *mode, *probes); err != nil {
		fmt.Fprintf(os.Stderr, "fleetctl: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, mode string, probes int) error {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFrom(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if cfg.Paths.ISO == "" {
		return fmt.Errorf("config: paths.iso is required")
	}

	level, err := fleetlog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	var logOut io.Writer = os.Stderr
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	log := fleetlog.New(logOut, level, "fleetctl: ")

	if ok, detail := pscontext.ValidateRegistry(); !ok {
		return fmt.Errorf("key registry invalid: %s", detail)
	}
	log.Infof("key registry fingerprint %08x", pscontext.RegistryHash())

	plan := runner.BootPlan{
		WorkerExe:        cfg.Fleet.WorkerExe,
		ISOPath:          cfg.Paths.ISO,
		SavestatePath:    cfg.Paths.Savestate,
		QtBaseDir:        cfg.Paths.QtBaseDir,
		UserDirTemplate:  cfg.Paths.UserDirTemplate,
		Workers:          cfg.Fleet.Workers,
		DefaultTimeoutMs: cfg.Timeouts.RunMs,
		ReadyTimeout:     time.Duration(cfg.Timeouts.ReadyMs) * time.Millisecond,
		AckTimeout:       time.Duration(cfg.Timeouts.AckMs) * time.Millisecond,
	}

	r := runner.New(log)
	if err := r.Start(plan, &runner.ProcessLauncher{Plan: plan}); err != nil {
		return err
	}
	defer r.Stop()

	switch mode {
	case "seedprobe":
		return runSeedProbe(r, cfg, probes, log)
	case "battlecontext":
		return runBattleContext(r, cfg, log)
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

// runSeedProbe sweeps the main stick across probes positions and
// prints the RNG seed observed for each input.
func runSeedProbe(r *runner.Runner, cfg *config.Config, probes int, log *fleetlog.Logger) error {
	if err := r.SetProgram(0, codec.KindSeedProbe, cfg.Timeouts.RunMs, cfg.Paths.Savestate); err != nil {
		return err
	}
	if err := r.ActivateMain(); err != nil {
		return err
	}

	frames := make(map[uint64]pscontext.InputFrame, probes)
	for i := 0; i < probes; i++ {
		frame := pscontext.NeutralInputFrame()
		frame.MainX = uint8(i * 255 / max(probes-1, 1))
		jid := r.Submit(codec.EncodeSeedProbe(codec.SeedProbeSpec{
			RunMs:     cfg.Timeouts.RunMs,
			ViStallMs: cfg.Timeouts.ViStallMs,
			Frame:     frame,
		}))
		frames[jid] = frame
	}

	remaining := len(frames)
	for remaining > 0 {
		var res runner.Result
		if !r.TryGetResult(&res) {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		frame := frames[res.JobID]
		if !res.Accepted || !res.VMOk || res.Ctx == nil {
			log.Warnf("probe main_x=%d failed (accepted=%v vm_ok=%v)", frame.MainX, res.Accepted, res.VMOk)
			remaining--
			continue
		}
		seed, _ := pscontext.Get[uint32](res.Ctx, pscontext.KeySeedSeed)
		fmt.Printf("main_x=%3d seed=%08X\n", frame.MainX, seed)
		remaining--
	}
	return nil
}

// runBattleContext probes the live battle and prints the combatant
// slot table plus the path-count estimate for a one-turn any-enemy
// plan under the configured fake-attack budget.
func runBattleContext(r *runner.Runner, cfg *config.Config, log *fleetlog.Logger) error {
	e := explorer.New(cfg.Paths.Savestate, log)
	bc, err := e.GatherContext(r)
	if err != nil {
		return err
	}

	for i, slot := range bc.Slots {
		kind := "enemy"
		if slot.IsPlayer {
			kind = "player"
		}
		state := "empty"
		if slot.Present {
			state = fmt.Sprintf("instance 0x%08X", slot.InstanceAddr)
		}
		fmt.Printf("slot %2d (%s): %s\n", i, kind, state)
	}

	ui := explorer.UIConfig{
		Turns: []explorer.UITurn{{
			{ActorSlot: 0, Macro: 1, Target: explorer.TargetBinding{Kind: explorer.AnyEnemy}},
		}},
		FakeAttackBudget: cfg.Explorer.FakeAttackBudget,
	}
	noFake := e.EstimatePathsNoFake(bc, ui)
	fmt.Printf("one-turn any-enemy paths: %d (with fake attacks: %d)\n",
		noFake, e.EstimatePathsWithFake(ui, noFake))
	return nil
}
