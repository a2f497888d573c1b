package cmd

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pasta-project/pasta-go/analysis"
	"github.com/pasta-project/pasta-go/cmd/internal/cmderr"
	"github.com/pasta-project/pasta-go/cmd/internal/ordset"
	"github.com/pasta-project/pasta-go/convo"
	"github.com/pasta-project/pasta-go/decoder"
	"github.com/pasta-project/pasta-go/printer"
	"github.com/pasta-project/pasta-go/report"
	"github.com/pasta-project/pasta-go/rtt"
	"github.com/pasta-project/pasta-go/util"
	"github.com/pasta-project/pasta-go/version"
)

var (
	captureFile  string
	ordinalsSpec string
	allStreams   bool
	tsharkBinary string
	summaryOnly  bool
	fullReport   bool
	csvReport    bool
	noColors     bool
	noPlugins    bool
	listPlugins  bool
	verboseCount int
	logFile      string
)

var rootCmd = &cobra.Command{
	Use:           "pasta",
	Short:         "Offline analyzer for captured SSH traffic.",
	Long:          "pasta reconstructs SSH conversations from a packet capture and reports their negotiated algorithms, traffic shape, and stepping-stone relay participation.",
	Version:       version.CLIDisplayString(),
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          run,
}

func init() {
	var flags *flag.FlagSet = rootCmd.Flags()
	flags.StringVarP(&captureFile, "read", "r", "", "capture input file (required)")
	flags.StringVarP(&ordinalsSpec, "conversations", "n", "", "process only listed conversation ordinals (n,m-p,...)")
	flags.BoolVarP(&allStreams, "all", "a", false, "also report non-SSH streams")
	flags.StringVar(&tsharkBinary, "tshark", decoder.DefaultBinary, "decoder binary path")
	flags.BoolVarP(&summaryOnly, "summary", "s", false, "one-line summary report")
	flags.BoolVarP(&fullReport, "full", "S", false, "full report")
	flags.BoolVar(&csvReport, "csv", false, "CSV report")
	_ = flags.MarkHidden("csv")
	flags.BoolVar(&noColors, "no-colors", false, "disable terminal color codes")
	flags.BoolVar(&noPlugins, "no-plugins", false, "skip extension analyzers")
	flags.BoolVar(&listPlugins, "list-plugins", false, "list analyzers and exit")
	flags.CountVarP(&verboseCount, "verbose", "v", "logging verbosity (repeatable, max 4)")
	flags.StringVar(&logFile, "logfile", "", "log destination")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and exit.",
	RunE: func(cmd *cobra.Command, args []string) error {
		printer.Stdout.RawOutput(version.CLIDisplayString())
		return nil
	},
}

func Execute() {
	if cmd, err := rootCmd.ExecuteC(); err != nil {
		exitCode := 1
		var exitErr util.ExitError
		isExitErr := errors.As(err, &exitErr)
		if isExitErr {
			exitCode = exitErr.ExitCode
		}
		_, isPastaErr := err.(cmderr.PastaErr)

		// Only a bare CLI parsing error (neither of our own error kinds)
		// gets a usage reminder printed alongside it.
		if !isExitErr && !isPastaErr {
			cmd.Println(cmd.UsageString())
		}

		printer.Stderr.Errorf("%s\n", err)
		os.Exit(exitCode)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if summaryOnly && fullReport {
		return util.ExitError{ExitCode: 2, Err: errors.New("-s and -S are mutually exclusive")}
	}
	if captureFile == "" && !listPlugins {
		return util.ExitError{ExitCode: 2, Err: errors.New("-r is required")}
	}

	if verboseCount > 4 {
		verboseCount = 4
	}
	viper.Set("verbose-level", verboseCount)
	viper.Set("debug", verboseCount >= 4)

	if noColors {
		printer.SwitchToPlain()
	}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return util.ExitError{ExitCode: 2, Err: errors.Wrap(err, "failed to open logfile")}
		}
		printer.Stderr = printer.NewP(f)
		printer.SwitchToPlain()
	}

	pipelineAnalyzers, pairAnalyzers := analysis.Default()
	if noPlugins {
		pipelineAnalyzers = nil
		pairAnalyzers = nil
	}
	pipeline := analysis.NewPipeline(pipelineAnalyzers, pairAnalyzers)

	if listPlugins {
		for _, p := range pipeline.List() {
			printer.Stdout.RawOutput(p.Name + ": " + p.Description)
		}
		return nil
	}

	ordinals, err := ordset.Parse(ordinalsSpec)
	if err != nil {
		return util.ExitError{ExitCode: 2, Err: err}
	}

	sel := convo.Selection{
		All:      allStreams,
		SSHOnly:  !allStreams,
		Ordinals: ordinals,
	}

	dec := decoder.New(tsharkBinary)
	ctx := context.Background()

	conversations, err := convo.Ingest(ctx, dec, captureFile, sel)
	if err != nil {
		return mapDecoderErr(err)
	}

	for _, c := range conversations {
		rtt.Reconstruct(c)
	}

	pipeline.Run(conversations)

	switch {
	case csvReport:
		if err := report.CSV(os.Stdout, conversations); err != nil {
			return cmderr.PastaErr{Err: err}
		}
	case summaryOnly:
		report.Summary(os.Stdout, conversations)
	case fullReport:
		report.Full(os.Stdout, conversations)
	default:
		report.Table(os.Stdout, conversations)
	}

	return nil
}

func mapDecoderErr(err error) error {
	var missing *decoder.DecoderMissing
	if errors.As(err, &missing) {
		return util.ExitError{ExitCode: 3, Err: err}
	}
	return util.ExitError{ExitCode: 1, Err: err}
}
