// dbcheck runs the static contract checker over a model file and renders
// the diagnostics. Unproven obligations never fail the run unless
// --strict asks for that policy.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rfielding/dbc/diag"
	"github.com/rfielding/dbc/logging"
	"github.com/rfielding/dbc/model"
	"github.com/rfielding/dbc/static"
	"github.com/spf13/cobra"
)

var (
	flagLog       string
	flagSpec      string
	flagFormat    string
	flagStrict    bool
	flagMaxVisits int
	flagProtocol  string
)

func main() {
	root := &cobra.Command{
		Use:           "dbcheck",
		Short:         "static design-by-contract checker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagLog, "log", "", "enable logging (dev or prod)")

	check := &cobra.Command{
		Use:   "check [model.yaml]",
		Short: "analyze a model and report unproven obligations",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runCheck,
	}
	check.Flags().StringVar(&flagSpec, "spec", "", "use a compiled-in model instead of a file")
	check.Flags().StringVar(&flagFormat, "format", "text", "output format: text, markdown or json")
	check.Flags().BoolVar(&flagStrict, "strict", false, "exit nonzero when obligations remain unproven")
	check.Flags().IntVar(&flagMaxVisits, "max-visits", static.DefaultMaxVisits, "per-block revisit bound")

	graph := &cobra.Command{
		Use:   "graph [model.yaml]",
		Short: "render a protocol state graph",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runGraph,
	}
	graph.Flags().StringVar(&flagSpec, "spec", "", "use a compiled-in model instead of a file")
	graph.Flags().StringVar(&flagFormat, "format", "dot", "output format: dot or mermaid")
	graph.Flags().StringVar(&flagProtocol, "protocol", "", "protocol name (default: first declared)")

	specs := &cobra.Command{
		Use:   "specs",
		Short: "list compiled-in models",
		Run: func(cmd *cobra.Command, args []string) {
			for _, s := range model.Specs() {
				fmt.Printf("%s\t%s\n", s.Name(), s.Description())
			}
		},
	}

	root.AddCommand(check, graph, specs)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildModel(args []string) (*model.Built, error) {
	if flagSpec != "" {
		for _, s := range model.Specs() {
			if s.Name() == flagSpec {
				return s.Build()
			}
		}
		return nil, fmt.Errorf("no compiled-in model named %q", flagSpec)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("a model file or --spec is required")
	}
	f, err := model.Load(args[0])
	if err != nil {
		return nil, err
	}
	return f.Build()
}

func newLogger() (*logging.Logger, error) {
	if flagLog == "" {
		return logging.Nop(), nil
	}
	return logging.New(flagLog)
}

func runCheck(cmd *cobra.Command, args []string) error {
	built, err := buildModel(args)
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	checker := static.NewChecker(static.WithLogger(log), static.WithMaxVisits(flagMaxVisits))
	report, err := checker.Check(context.Background(), built.Program)
	if err != nil {
		return err
	}

	switch flagFormat {
	case "text":
		fmt.Print(report.GenerateText())
	case "markdown":
		fmt.Print(report.GenerateMarkdownTable())
	case "json":
		out, err := report.GenerateJSON()
		if err != nil {
			return err
		}
		fmt.Println(out)
	default:
		return fmt.Errorf("unknown format %q", flagFormat)
	}

	unproven := report.CountSeverity(diag.SeverityWarning)
	log.Info("check complete", "diagnostics", len(report.Diagnostics), "unproven", unproven)
	if flagStrict && unproven > 0 {
		return fmt.Errorf("%d unproven obligation(s)", unproven)
	}
	return nil
}

func runGraph(cmd *cobra.Command, args []string) error {
	built, err := buildModel(args)
	if err != nil {
		return err
	}
	if len(built.Domains) == 0 {
		return fmt.Errorf("model declares no protocols")
	}
	dom := built.Domains[0]
	if flagProtocol != "" {
		var ok bool
		dom, ok = built.Domain(flagProtocol)
		if !ok {
			return fmt.Errorf("no protocol named %q", flagProtocol)
		}
	}

	switch flagFormat {
	case "dot":
		fmt.Print(dom.GenerateGraphviz())
	case "mermaid":
		fmt.Print(dom.GenerateMermaid())
	default:
		return fmt.Errorf("unknown format %q", flagFormat)
	}
	return nil
}
