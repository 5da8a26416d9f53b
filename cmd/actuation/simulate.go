package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/sarchlab/actuation/calibration"
	"github.com/sarchlab/actuation/canpack"
	"github.com/sarchlab/actuation/controller"
	"github.com/sarchlab/actuation/datarecording"
	"github.com/sarchlab/actuation/monitoring"
	"github.com/sarchlab/actuation/scenario"
	"github.com/sarchlab/actuation/session"
	"github.com/sarchlab/actuation/timing"
	"github.com/sarchlab/actuation/tracing"
)

// engineFreq is the clock of the simulated engine. Loop frequencies must
// divide it.
const engineFreq = 1 * timing.MHz

type simulateOptions struct {
	scenario    string
	file        string
	family      string
	calibration string
	realtime    bool
	freq        float64

	record    bool
	db        string
	tickStart uint64
	tickEnd   uint64

	monitor     bool
	monitorPort int
	openBrowser bool
}

func newSimulateCmd() *cobra.Command {
	opts := simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Play a scenario through the control loop.",
		Long: `Play a built-in or file scenario through the control loop, ` +
			`either on a simulated clock (default) or in real time, and ` +
			`print a summary of the commands sent.`,
		Args: cobra.NoArgs,
		PreRun: func(cmd *cobra.Command, _ []string) {
			if !cmd.Flags().Changed("freq") {
				opts.freq = getEnvFloat(envFreq, opts.freq)
			}

			if !cmd.Flags().Changed("monitor-port") {
				opts.monitorPort = getEnvInt(envMonitorPort, opts.monitorPort)
			}

			if !cmd.Flags().Changed("record") {
				opts.record, _ = strconv.ParseBool(getEnv(envRecord, "false"))
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			return runSimulation(ctx, opts, cmd.OutOrStdout(), slog.Default())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.scenario, "scenario", "s", "lane_keep",
		"built-in scenario to play")
	f.StringVarP(&opts.file, "file", "f", "",
		"scenario file to play instead of a built-in one")
	f.StringVar(&opts.family, "family", "",
		"vehicle family, overriding the scenario's")
	f.StringVar(&opts.calibration, "calibration", "",
		".env file with calibration overrides")
	f.BoolVar(&opts.realtime, "realtime", false,
		"tick on the wall clock instead of the simulated engine")
	f.Float64Var(&opts.freq, "freq", 100,
		"loop frequency in Hz (env "+envFreq+")")
	f.BoolVar(&opts.record, "record", false,
		"record telemetry to SQLite (env "+envRecord+")")
	f.StringVar(&opts.db, "db", "",
		"recording database name without extension (default unique name)")
	f.Uint64Var(&opts.tickStart, "trace-start", 0,
		"first tick to record")
	f.Uint64Var(&opts.tickEnd, "trace-end", 0,
		"last tick to record, 0 for no limit")
	f.BoolVar(&opts.monitor, "monitor", false,
		"serve the HTTP monitor while running")
	f.IntVar(&opts.monitorPort, "monitor-port", 0,
		"monitor port, 0 for a random port (env "+envMonitorPort+")")
	f.BoolVar(&opts.openBrowser, "open-browser", false,
		"open the monitor in the default browser")

	return cmd
}

func loadScenario(opts simulateOptions) (*scenario.Scenario, error) {
	var (
		sc  *scenario.Scenario
		err error
	)

	if opts.file != "" {
		sc, err = scenario.Load(opts.file)
	} else {
		sc, err = scenario.Builtin(opts.scenario)
	}

	if err != nil {
		return nil, err
	}

	if opts.family != "" {
		sc.Family = calibration.Family(opts.family)
		if err := sc.Validate(); err != nil {
			return nil, err
		}
	}

	return sc, nil
}

func loadParams(
	f calibration.Family,
	calibrationFile string,
) (calibration.Params, error) {
	p, err := calibration.Lookup(f)
	if err != nil {
		return p, err
	}

	if calibrationFile != "" {
		p, err = calibration.LoadOverrides(p, calibrationFile)
		if err != nil {
			return p, err
		}
	}

	return calibration.ApplyOverrides(p, calibration.Environ())
}

// simulation holds everything wired around one session.
type simulation struct {
	sc      *scenario.Scenario
	player  *scenario.Player
	ctrl    *controller.Controller
	session *session.Session

	commands   *tracing.CommandCountTracer
	engagement *tracing.EngagementLog
	registry   *prometheus.Registry

	recorder datarecording.DataRecorder
	exec     *datarecording.ExecRecorder
	monitor  *monitoring.Monitor
	progress *monitoring.ProgressBar
}

func buildSimulation(
	opts simulateOptions,
	logger *slog.Logger,
) (*simulation, error) {
	sc, err := loadScenario(opts)
	if err != nil {
		return nil, err
	}

	params, err := loadParams(sc.Family, opts.calibration)
	if err != nil {
		return nil, err
	}

	packer := canpack.NewPacker(canpack.LayoutFor(sc.Family))
	sim := &simulation{
		sc:         sc,
		player:     scenario.NewPlayer(sc, packer),
		ctrl:       controller.MakeBuilder(params).Build(sc.Name),
		commands:   tracing.NewCommandCountTracer(),
		engagement: tracing.NewEngagementLog(logger),
		registry:   prometheus.NewRegistry(),
	}

	builder := session.MakeBuilder().
		WithSnapshotReader(sim.player).
		WithRequestSource(sim.player).
		WithController(sim.ctrl).
		WithSerializer(packer).
		WithSender(sim.player).
		WithLogger(logger)

	// Recorded frame IDs must not collide across runs.
	if opts.record {
		builder = builder.WithIDGenerator(session.XIDGenerator{})
	}

	sim.session = builder.Build(sc.Name)

	sim.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := tracing.NewMetrics(sim.registry)

	sim.ctrl.AcceptHook(sim.commands)
	sim.ctrl.AcceptHook(sim.engagement)
	sim.ctrl.AcceptHook(metrics)
	sim.session.AcceptHook(metrics)

	if opts.record {
		if err := sim.attachRecorder(opts); err != nil {
			return nil, err
		}
	}

	if opts.monitor {
		sim.attachMonitor(opts, logger)
	}

	return sim, nil
}

func (s *simulation) attachRecorder(opts simulateOptions) error {
	rec, err := datarecording.New(opts.db)
	if err != nil {
		return err
	}

	tracer := tracing.NewDBTracer(rec)
	tracer.SetTickRange(opts.tickStart, opts.tickEnd)
	s.ctrl.AcceptHook(tracer)
	s.session.AcceptHook(tracer)

	s.recorder = rec
	s.exec = datarecording.NewExecRecorder(rec)
	s.exec.Start()
	s.exec.Set("Scenario", s.sc.Name)
	s.exec.Set("Family", string(s.sc.Family))
	s.exec.Set("Session", s.session.ID())

	return nil
}

func (s *simulation) attachMonitor(opts simulateOptions, logger *slog.Logger) {
	m := monitoring.NewMonitor().WithLogger(logger).WithGatherer(s.registry)
	if opts.monitorPort != 0 {
		m.WithPortNumber(opts.monitorPort)
	}

	if opts.openBrowser {
		m.WithBrowser()
	}

	m.RegisterSession(s.session)

	s.progress = m.CreateProgressBar(s.sc.Name, uint64(s.sc.Len()))
	s.ctrl.AcceptHook(s.progress)
	s.session.AcceptHook(s.progress)

	s.monitor = m
}

func runSimulation(
	ctx context.Context,
	opts simulateOptions,
	out io.Writer,
	logger *slog.Logger,
) error {
	freq := timing.Freq(opts.freq)
	if freq <= 0 {
		return fmt.Errorf("frequency must be positive, got %g Hz", opts.freq)
	}

	sim, err := buildSimulation(opts, logger)
	if err != nil {
		return err
	}

	if sim.monitor != nil {
		sim.monitor.StartServer()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(
				context.Background(), time.Second)
			defer cancel()

			if err := sim.monitor.StopServer(shutdownCtx); err != nil {
				logger.Warn("monitor shutdown failed", "error", err)
			}
		}()
	}

	var elapsed time.Duration

	if opts.realtime {
		runCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		start := time.Now()
		err = sim.session.Run(runCtx, freq)
		elapsed = time.Since(start)

		stop()
	} else {
		elapsed, err = sim.runSimulated(freq)
	}

	if sim.recorder != nil {
		sim.exec.Set("Loop Frequency", fmt.Sprintf("%g Hz", opts.freq))
		sim.exec.End()

		if closeErr := sim.recorder.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}

	if sim.monitor != nil {
		sim.monitor.CompleteProgressBar(sim.progress)
	}

	if err != nil {
		return err
	}

	return sim.printSummary(out, elapsed)
}

func (s *simulation) runSimulated(freq timing.Freq) (time.Duration, error) {
	interval, err := engineFreq.CyclesPerTick(freq)
	if err != nil {
		return 0, err
	}

	engine := timing.NewSerialEngine()
	if s.monitor != nil {
		s.monitor.RegisterEngine(engine)
	}

	s.session.Schedule(engine, interval)

	if err := engine.Run(); err != nil {
		return 0, err
	}

	return engineFreq.Duration(engine.CurrentTime()), nil
}

func (s *simulation) printSummary(out io.Writer, elapsed time.Duration) error {
	st := s.session.Status()

	fmt.Fprintf(out, "scenario %s on %s: %d ticks (%d skipped), %d frames in %s\n",
		s.sc.Name, st.Family, st.TickIndex, st.Skipped, st.FramesSent, elapsed)
	fmt.Fprintf(out, "final state %s, applied steer %d, %d lateral disables\n",
		st.Engagement, st.AppliedSteer, s.engagement.Disables())

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COMMAND\tCOUNT\tLAST TICK")

	for _, k := range s.commands.Kinds() {
		fmt.Fprintf(w, "%s\t%d\t%d\n", k, s.commands.Count(k), s.commands.LastFrame(k))
	}

	return w.Flush()
}
