// Package main is the entry point for the qybridge CLI
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/james-see/qybridge/pkg/api"
	"github.com/james-see/qybridge/pkg/config"
	"github.com/james-see/qybridge/pkg/converter"
	"github.com/james-see/qybridge/pkg/converter/devices"
	"github.com/james-see/qybridge/pkg/logging"
	"github.com/james-see/qybridge/pkg/pattern"
	"github.com/james-see/qybridge/pkg/tui"
	"github.com/james-see/qybridge/pkg/validate"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultConfig = "qybridge.yaml"

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries the global flags and what is built from them before a
// subcommand runs.
type app struct {
	out io.Writer

	configPath   string
	templatePath string
	strict       bool
	skipCorrupt  bool
	device       uint8

	cfg      config.Config
	template []byte
	logger   *log.Logger
	closer   io.Closer
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:   "qybridge",
		Short: "Convert between Yamaha QY70 style dumps and QY700 pattern files",
		Long: `qybridge converts pattern data between the Yamaha QY70 SysEx style
bulk dump (.syx) and the QY700 pattern file (.Q7P).

Pattern files are written against a known-good template so that regions
whose meaning is not confirmed keep the bytes of a real file.

Examples:
  qybridge convert style.syx -o pattern.Q7P --template base.Q7P
  qybridge convert pattern.Q7P -o style.syx
  qybridge validate pattern.Q7P --strict
  qybridge info style.syx
  qybridge export-midi pattern.Q7P --section 2 -o setup.mid
  qybridge batch ./styles --to q7p --out-dir ./patterns
  qybridge tui
  qybridge serve --port 8080`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closer != nil {
				return a.closer.Close()
			}
			return nil
		},
	}
	root.SetOut(out)

	// Global flags
	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", defaultConfig, "YAML configuration file")
	pf.StringVarP(&a.templatePath, "template", "t", "", "QY700 pattern file to write against")
	pf.BoolVar(&a.strict, "strict", false, "Treat validation warnings as errors")
	pf.BoolVar(&a.skipCorrupt, "skip-corrupt", false, "Drop corrupt SysEx messages instead of failing")
	pf.Uint8VarP(&a.device, "device", "d", 0, "QY70 device number (0-15) used when writing")

	root.AddCommand(
		a.convertCmd(),
		a.validateCmd(),
		a.infoCmd(),
		a.exportMIDICmd(),
		a.batchCmd(),
		a.tuiCmd(),
		a.serveCmd(),
	)
	return root
}

// setup loads the configuration and lets flags given on the command line
// override it.
func (a *app) setup(cmd *cobra.Command) error {
	flags := cmd.Flags()
	cfg, err := config.Load(a.configPath, !flags.Changed("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flags.Changed("template") {
		cfg.Template = a.templatePath
	}
	if flags.Changed("strict") {
		cfg.Strict = a.strict
	}
	if flags.Changed("skip-corrupt") {
		cfg.SkipCorrupt = a.skipCorrupt
	}
	if flags.Changed("device") {
		if a.device > 15 {
			return fmt.Errorf("device number %d out of range 0-15", a.device)
		}
		cfg.DeviceNumber = a.device
	}
	a.cfg = cfg

	if a.template, err = cfg.LoadTemplate(); err != nil {
		return fmt.Errorf("load template: %w", err)
	}
	if a.template == nil {
		a.template = devices.DefaultTemplate()
	}
	a.logger, a.closer, err = logging.Setup(cfg.Logs, "qybridge")
	return err
}

func (a *app) converter() *converter.Converter {
	conv := converter.Default(a.logger)
	conv.SetDevice(&devices.QY70{DeviceNumber: a.cfg.DeviceNumber, SkipCorrupt: a.cfg.SkipCorrupt, Logger: a.logger})
	conv.SetDevice(&devices.QY700{RequireTemplate: a.cfg.RequireTemplate, Logger: a.logger})
	return conv
}

func (a *app) findings(data []byte) []validate.Finding {
	f := validate.Bytes(data)
	if a.cfg.Strict {
		f = validate.Strict(f)
	}
	return f
}

func (a *app) printFindings(findings []validate.Finding) {
	for _, f := range findings {
		fmt.Fprintln(a.out, f)
	}
}

// vet fails when validation reports an error. The first error is quoted
// since batch jobs cannot print their findings as they run.
func (a *app) vet(data []byte) error {
	findings := a.findings(data)
	if !validate.HasErrors(findings) {
		return nil
	}
	for _, f := range findings {
		if f.Severity == validate.ERROR {
			return fmt.Errorf("%d validation errors, nothing written: %s", validate.Count(findings, validate.ERROR), f)
		}
	}
	return nil
}

// checked reads path and refuses it when validation reports an error.
func (a *app) checked(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	findings := a.findings(data)
	if validate.HasErrors(findings) {
		a.printFindings(findings)
		return nil, fmt.Errorf("%s: %d validation errors, nothing written", path, validate.Count(findings, validate.ERROR))
	}
	return data, nil
}

func outputPath(input, output, ext string) string {
	if output != "" {
		return output
	}
	return strings.TrimSuffix(input, filepath.Ext(input)) + ext
}

func (a *app) convertCmd() *cobra.Command {
	var output, to string
	cmd := &cobra.Command{
		Use:   "convert <input>",
		Short: "Convert a style dump or pattern file",
		Long: `Detects the input format from its content and converts it to the
other format. The target comes from --to or the output file extension.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			data, err := a.checked(input)
			if err != nil {
				return err
			}

			target := converter.DetectFormat(output)
			if to != "" {
				if target, err = pattern.ParseFormat(to); err != nil {
					return err
				}
			}
			if target == pattern.FormatUnknown {
				if target = otherFormat(converter.DetectFormatFromContent(data)); target == pattern.FormatUnknown {
					return errors.New("cannot determine output format, use --to or an output extension")
				}
			}
			output = outputPath(input, output, target.Extension())

			res, err := a.converter().ConvertBytes(data, target, a.template)
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, res.Data, 0644); err != nil {
				return fmt.Errorf("failed to write output file: %w", err)
			}

			fmt.Fprintf(a.out, "Converted %s -> %s\n", input, output)
			if res.Fidelity != "" {
				fmt.Fprintf(a.out, "Fidelity: %s\n", res.Fidelity)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file path")
	cmd.Flags().StringVar(&to, "to", "", "Target format (syx, q7p)")
	return cmd
}

func otherFormat(f pattern.Format) pattern.Format {
	switch f {
	case pattern.FormatTransport:
		return pattern.FormatRecord
	case pattern.FormatRecord:
		return pattern.FormatTransport
	default:
		return pattern.FormatUnknown
	}
}

func (a *app) validateCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check style dumps or pattern files for structural problems",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			report := make(map[string][]validate.Finding, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				findings := a.findings(data)
				report[path] = findings
				if validate.HasErrors(findings) {
					failed++
				}
				if asJSON {
					continue
				}
				fmt.Fprintf(a.out, "%s: %d errors, %d warnings\n", path,
					validate.Count(findings, validate.ERROR), validate.Count(findings, validate.WARN))
				a.printFindings(findings)
			}
			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed validation", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print findings as JSON")
	return cmd
}

func (a *app) infoCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "info <file>",
		Short: "Show tempo, sections and track mixer settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			p, err := a.converter().Read(data)
			if err != nil {
				return err
			}
			sum := pattern.Summarize(p)
			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(sum)
			}
			printSummary(a.out, sum)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the summary as JSON")
	return cmd
}

func printSummary(w io.Writer, sum pattern.Summary) {
	fmt.Fprintf(w, "Format: %s\n", sum.Format)
	if sum.Name != "" {
		fmt.Fprintf(w, "Name:   %s\n", sum.Name)
	}
	fmt.Fprintf(w, "Tempo:  %.1f BPM\n", sum.Tempo)
	fmt.Fprintf(w, "Meter:  %s\n", sum.TimeSignature)
	for _, sec := range sum.Sections {
		if !sec.Active {
			fmt.Fprintf(w, "\n%s: empty\n", sec.Name)
			continue
		}
		fmt.Fprintf(w, "\n%s: %d bars\n", sec.Name, sec.Bars)
		for _, tr := range sec.Tracks {
			fmt.Fprintf(w, "  %-5s ch%-2d vol %3d pan %-4s rev %3d cho %3d  %-8s %d event bytes\n",
				tr.Name, tr.Channel, tr.Volume, tr.Pan, tr.Reverb, tr.Chorus, tr.Voice, tr.Events)
		}
	}
}

func (a *app) exportMIDICmd() *cobra.Command {
	var output string
	var section int
	cmd := &cobra.Command{
		Use:   "export-midi <file>",
		Short: "Write the setup of one section as a Standard MIDI File",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			data, err := a.checked(input)
			if err != nil {
				return err
			}
			p, err := a.converter().Read(data)
			if err != nil {
				return err
			}
			output = outputPath(input, output, ".mid")
			if err := converter.NewMIDIConverter().WriteMIDIFile(p, section, output); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Exported %s %s -> %s\n", input, pattern.SectionName(section), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output .mid file path")
	cmd.Flags().IntVarP(&section, "section", "s", 0, "Section index to export")
	return cmd
}

// collectJobs finds every file under dir in the format opposite to target.
func collectJobs(dir, outDir string, target pattern.Format) ([]converter.Job, error) {
	var jobs []converter.Job
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || converter.DetectFormat(path) != otherFormat(target) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		out := filepath.Join(outDir, strings.TrimSuffix(rel, filepath.Ext(rel))+target.Extension())
		jobs = append(jobs, converter.Job{Input: path, Output: out})
		return nil
	})
	return jobs, err
}

func (a *app) batchCmd() *cobra.Command {
	var to, outDir string
	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Convert every file of a directory tree concurrently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := pattern.ParseFormat(to)
			if err != nil {
				return err
			}
			if outDir == "" {
				outDir = args[0]
			}
			jobs, err := collectJobs(args[0], outDir, target)
			if err != nil {
				return err
			}
			for i := range jobs {
				jobs[i].Check = a.vet
			}
			if len(jobs) == 0 {
				return fmt.Errorf("no %s files under %s", otherFormat(target).Extension(), args[0])
			}
			for _, job := range jobs {
				if err := os.MkdirAll(filepath.Dir(job.Output), 0o755); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			results, err := a.converter().ConvertBatch(ctx, jobs, a.template, a.cfg.Concurrency)
			failed := 0
			for i, res := range results {
				if res.Error != nil {
					failed++
					fmt.Fprintf(a.out, "FAIL %s: %v\n", jobs[i].Input, res.Error)
					continue
				}
				fmt.Fprintf(a.out, "ok   %s -> %s\n", jobs[i].Input, res.Filename)
			}
			if err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d conversions failed", failed, len(jobs))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "q7p", "Target format (syx, q7p)")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Output directory (default: next to the inputs)")
	return cmd
}

func (a *app) tuiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Launch interactive terminal UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tui.Run(tui.Options{
				Converter: a.converter(),
				Template:  a.template,
				Strict:    a.cfg.Strict,
				Logger:    a.logger,
			})
		},
	}
}

func (a *app) serveCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Port = port
			}
			fmt.Fprintf(a.out, "Starting API server on port %d...\n", a.cfg.Port)
			return api.StartServer(a.cfg, a.template, a.logger)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Server port")
	return cmd
}
