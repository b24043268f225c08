// Package main is the entry point for the skipper CLI
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // register MIDI driver

	"github.com/james-see/skipper/pkg/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configPath string
	logLevel   string

	outputFile string
	portName   string
	trackName  string
	tempo      float64
	loops      int
	renderAll  bool
	offline    bool
	headless   bool
	autoplay   bool
	serverPort int
	openDocs   bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "skipper",
	Short: "Loop note programs against a host transport",
	Long: `skipper plays looping note programs in time with a host transport,
sending note events to a MIDI output port.

Programs are staged per track on a registry server; each running engine
registers its track name and picks up the program staged for it.

Examples:
  skipper serve
  skipper stage Bass bass
  skipper play --track Bass --port "IAC Driver"
  skipper render arpeggio -o arpeggio.mid --loops 4
  skipper render --all -o ./renders`,
	Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage: true,
}

var playCmd = &cobra.Command{
	Use:   "play [builtin|file]",
	Short: "Run an engine on a simulated host with the terminal monitor",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPlay,
}

var renderCmd = &cobra.Command{
	Use:   "render [builtin|file]",
	Short: "Render a program through the scheduler to a MIDI file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRender,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the registry server",
	RunE:  runServe,
}

var stageCmd = &cobra.Command{
	Use:   "stage <track> <builtin|file>",
	Short: "Stage a program for a track on the registry",
	Args:  cobra.ExactArgs(2),
	RunE:  runStage,
}

var programsCmd = &cobra.Command{
	Use:   "programs",
	Short: "List programs staged on the registry",
	RunE:  runPrograms,
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI output ports",
	RunE:  runPorts,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default "+config.DefaultPath+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")

	// play command
	playCmd.Flags().StringVarP(&portName, "port", "p", "", "MIDI output port (substring match)")
	playCmd.Flags().StringVarP(&trackName, "track", "t", "", "Track name to register")
	playCmd.Flags().Float64Var(&tempo, "tempo", 0, "Tempo in BPM (default from config)")
	playCmd.Flags().BoolVar(&offline, "offline", false, "Do not register with the registry")
	playCmd.Flags().BoolVar(&headless, "headless", false, "Run without the terminal monitor")
	playCmd.Flags().BoolVar(&autoplay, "autoplay", false, "Start the transport immediately")

	// render command
	renderCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output .mid file, or directory with --all")
	renderCmd.Flags().Float64Var(&tempo, "tempo", 0, "Tempo in BPM (default from config)")
	renderCmd.Flags().IntVarP(&loops, "loops", "n", 1, "Loop passes to render")
	renderCmd.Flags().BoolVar(&renderAll, "all", false, "Render every builtin program")

	// serve command
	serveCmd.Flags().IntVar(&serverPort, "port", 0, "Server port (default from config)")
	serveCmd.Flags().BoolVar(&openDocs, "open", false, "Open the API docs in a browser")

	// Add commands
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stageCmd)
	rootCmd.AddCommand(programsCmd)
	rootCmd.AddCommand(portsCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// newLogger builds the process logger. With quiet set, output goes to the
// configured log file or nowhere, so it cannot tear the terminal monitor.
func newLogger(cfg *config.Config, quiet bool) (*logrus.Logger, func(), error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	closer := func() {}
	switch {
	case cfg.Log.File != "":
		path, err := homedir.Expand(cfg.Log.File)
		if err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger.SetOutput(f)
		closer = func() { _ = f.Close() }
	case quiet:
		logger.SetOutput(io.Discard)
	default:
		logger.SetOutput(os.Stderr)
	}
	return logger, closer, nil
}

func tempoOr(cfg *config.Config) float64 {
	if tempo > 0 {
		return tempo
	}
	return cfg.Host.Tempo
}
