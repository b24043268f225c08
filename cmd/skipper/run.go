package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/browser"
	"github.com/remeh/sizedwaitgroup"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/james-see/skipper/pkg/api"
	"github.com/james-see/skipper/pkg/engine"
	"github.com/james-see/skipper/pkg/host"
	"github.com/james-see/skipper/pkg/program"
	"github.com/james-see/skipper/pkg/registry"
	"github.com/james-see/skipper/pkg/tui"
)

// loadProgram resolves a builtin name or reads a .json payload or MIDI file
func loadProgram(arg string) (*program.Program, error) {
	if p, err := program.Builtin(arg); err == nil {
		return p, nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return nil, fmt.Errorf("%q is neither a builtin (%s) nor a readable file: %w",
			arg, strings.Join(program.BuiltinNames(), ", "), err)
	}
	name := strings.TrimSuffix(filepath.Base(arg), filepath.Ext(arg))
	if strings.EqualFold(filepath.Ext(arg), ".json") {
		p, _, err := program.Parse(data)
		return p, err
	}
	p, _, err := program.FromSMF(name, data)
	return p, err
}

func runPlay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg, !headless)
	if err != nil {
		return err
	}
	defer closeLog()

	e := engine.New(cfg.Host.Channel, logger)
	if len(args) == 1 {
		p, err := loadProgram(args[0])
		if err != nil {
			return err
		}
		e.SetProgram(p)
	}

	track := trackName
	if track == "" {
		track = cfg.Host.Track
	}
	e.SetHostInfo(engine.HostInfo{TrackName: track})

	var out host.Output
	port := portName
	if port == "" {
		port = cfg.Host.Port
	}
	if port != "" {
		sink, err := host.OpenPort(port)
		if err != nil {
			return err
		}
		defer func() { _ = sink.Close() }()
		logger.WithField("port", sink.Name()).Info("MIDI output open")
		out = sink
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	clock := host.NewClock(cfg.Host.SampleRate, cfg.Host.BlockSize, tempoOr(cfg))
	runner := host.NewRunner(e, clock, out, logger)
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	if !offline {
		interval, err := cfg.Registry.IntervalDuration()
		if err != nil {
			return err
		}
		w := registry.NewWorker(registry.NewClient(cfg.Registry.URL), e,
			engine.InstanceUUID(e.ID()), cfg.Registry.Attempts, interval, logger)
		// the worker logs its own outcome
		_ = w.Start(ctx)
	}

	if autoplay {
		runner.Play()
	}

	if headless {
		<-ctx.Done()
	} else if err := tui.Run(e, runner); err != nil {
		cancel()
		<-done
		return err
	}
	cancel()
	return <-done
}

type renderJob struct {
	source string
	output string
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer closeLog()

	if loops < 1 {
		return fmt.Errorf("loops must be at least 1, got %d", loops)
	}

	var jobs []renderJob
	switch {
	case renderAll:
		dir := outputFile
		if dir == "" {
			dir = "."
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
		for _, name := range program.BuiltinNames() {
			jobs = append(jobs, renderJob{source: name, output: filepath.Join(dir, name+".mid")})
		}
	case len(args) == 1:
		output := outputFile
		if output == "" {
			output = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0])) + ".mid"
		}
		jobs = append(jobs, renderJob{source: args[0], output: output})
	default:
		return fmt.Errorf("render needs a program or --all")
	}

	bpm := tempoOr(cfg)
	errs := make([]error, len(jobs))
	wg := sizedwaitgroup.New(runtime.NumCPU())
	for i, job := range jobs {
		wg.Add()
		go func(i int, job renderJob) {
			defer wg.Done()
			errs[i] = renderOne(cfg.Host.SampleRate, cfg.Host.BlockSize, bpm, job, logger)
		}(i, job)
	}
	wg.Wait()

	failed := 0
	for i, err := range errs {
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", jobs[i].source, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d renders failed", failed, len(jobs))
	}
	return nil
}

func renderOne(sampleRate float64, blockSize int, bpm float64, job renderJob, logger *logrus.Logger) error {
	p, err := loadProgram(job.source)
	if err != nil {
		return err
	}
	e := engine.New(0, logger)
	e.SetProgram(p)

	clock := host.NewClock(sampleRate, blockSize, bpm)
	events := host.Render(e, clock, clock.BlocksFor(p.LengthBeats*float64(loops)))
	if err := host.WriteSMFFile(job.output, p.Name(), events, bpm); err != nil {
		return err
	}

	size := int64(0)
	if info, err := os.Stat(job.output); err == nil {
		size = info.Size()
	}
	fmt.Printf("Rendered %s -> %s (%d events, %s)\n",
		p.Name(), job.output, len(events), humanize.Bytes(uint64(size)))
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer closeLog()

	port := serverPort
	if port == 0 {
		port = cfg.Server.Port
	}
	staging, err := cfg.Server.StagingPath()
	if err != nil {
		return err
	}

	docs := fmt.Sprintf("http://localhost:%d/swagger/index.html", port)
	fmt.Printf("Starting registry server on port %d...\n", port)
	fmt.Printf("Swagger docs available at %s\n", docs)
	if openDocs {
		go func() {
			time.Sleep(500 * time.Millisecond)
			if err := browser.OpenURL(docs); err != nil {
				logger.WithError(err).Warn("failed to open browser")
			}
		}()
	}
	return api.StartServer(port, staging, logger)
}

func runStage(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	track, source := args[0], args[1]

	p, err := loadProgram(source)
	if err != nil {
		return err
	}
	payload, err := p.Payload()
	if err != nil {
		return err
	}

	client := registry.NewClient(cfg.Registry.URL)
	if err := client.Stage(cmd.Context(), track, payload); err != nil {
		return err
	}
	fmt.Printf("Staged %s (%d notes, %g bars) for track %s\n", p.Name(), p.NoteCount, p.LengthBars, track)
	return nil
}

func runPrograms(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	programs, err := registry.NewClient(cfg.Registry.URL).Programs(cmd.Context())
	if err != nil {
		return err
	}
	if len(programs) == 0 {
		fmt.Println("No programs staged")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRACK\tNAME\tNOTES\tBARS\tSOURCE")
	for _, info := range programs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%g\t%s\n", info.Track, info.Name, info.Notes, info.LengthBars, info.Source)
	}
	return tw.Flush()
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports := host.OutPorts()
	if len(ports) == 0 {
		fmt.Println("No MIDI output ports found")
		return nil
	}
	for i, name := range ports {
		fmt.Printf("%d: %s\n", i, name)
	}
	return nil
}
