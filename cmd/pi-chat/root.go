// ABOUTME: Cobra command tree: stream, replay, render and version subcommands
// ABOUTME: Persistent flags become config overrides applied on top of the YAML layers

package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mauromedda/pi-chat-stream/internal/config"
	pilog "github.com/mauromedda/pi-chat-stream/internal/log"
	"github.com/mauromedda/pi-chat-stream/internal/mode/interactive"
	"github.com/mauromedda/pi-chat-stream/internal/mode/print"
	"github.com/mauromedda/pi-chat-stream/internal/termfix"
	"github.com/mauromedda/pi-chat-stream/pkg/citation"
	"github.com/mauromedda/pi-chat-stream/pkg/render"
	"github.com/mauromedda/pi-chat-stream/pkg/stream"
)

type cliArgs struct {
	baseURL      string
	model        string
	provider     string
	format       string
	width        int
	style        string
	conversation string
	interactive  bool
	verbose      bool
	projectRoot  string

	readSize  int
	citations string
}

func newRootCmd() *cobra.Command {
	var args cliArgs

	root := &cobra.Command{
		Use:           "pi-chat [prompt]",
		Short:         "Stream chat completions and render markdown replies",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, rest []string) error {
			if len(rest) > 0 && !args.interactive {
				return runStream(cmd, args, strings.Join(rest, " "))
			}
			return runInteractive(cmd, args)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&args.baseURL, "base-url", "", "Backend base URL")
	pf.StringVarP(&args.model, "model", "m", "", "Model id, provider:model, or an abbreviation of a configured model")
	pf.StringVar(&args.provider, "provider", "", "Provider for bare model ids")
	pf.StringVarP(&args.format, "format", "f", "", "Output format: text, ansi, html, json, stream-json")
	pf.IntVar(&args.width, "width", 0, "Wrap column for ansi output (0 = terminal width)")
	pf.StringVar(&args.style, "style", "", "Chroma style for code blocks")
	pf.StringVarP(&args.conversation, "conversation", "C", "", "Continue an existing conversation")
	pf.BoolVarP(&args.verbose, "verbose", "v", false, "Debug logging to stderr")
	pf.StringVar(&args.projectRoot, "project", ".", "Directory holding the project .pi-chat/config.yaml")
	root.Flags().BoolVarP(&args.interactive, "interactive", "i", false, "Run the interactive chat view")

	root.AddCommand(
		newStreamCmd(&args),
		newReplayCmd(&args),
		newRenderCmd(&args),
		newVersionCmd(),
	)
	return root
}

func newStreamCmd(args *cliArgs) *cobra.Command {
	return &cobra.Command{
		Use:   "stream <prompt>",
		Short: "Send a prompt and print the streamed reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, rest []string) error {
			return runStream(cmd, *args, strings.Join(rest, " "))
		},
	}
}

func newReplayCmd(args *cliArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "Feed a recorded stream body through the pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, rest []string) error {
			settings, err := loadSettings(*args)
			if err != nil {
				return err
			}
			f, err := os.Open(rest[0])
			if err != nil {
				return err
			}
			defer f.Close()

			var cites []citation.Citation
			if args.citations != "" {
				if cites, err = readCitations(args.citations); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			cfg := printConfig(cmd, *args, settings, cites)
			var opts []stream.ConsumeOption
			if args.readSize > 0 {
				opts = append(opts, stream.WithReadSize(args.readSize))
			}
			return print.Replay(ctx, f, cfg, opts...)
		},
	}
	cmd.Flags().IntVar(&args.readSize, "read-size", 0, "Bytes per read, to exercise fragment boundaries")
	cmd.Flags().StringVar(&args.citations, "citations", "", "JSON file with the citation list")
	return cmd
}

func newRenderCmd(args *cliArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render <file>",
		Short: "Render a markdown file; citations come from --citations or the frontmatter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, rest []string) error {
			settings, err := loadSettings(*args)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(rest[0])
			if err != nil {
				return err
			}
			doc, body, err := config.ParseDocument(string(data))
			if err != nil {
				return fmt.Errorf("reading %s: %w", rest[0], err)
			}
			cites := doc.Citations
			if args.citations != "" {
				if cites, err = readCitations(args.citations); err != nil {
					return err
				}
			}

			p, err := render.NewPipeline(renderFormat(cmd, settings), outputWidth(cmd, settings), settings.Render.Style)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), p.WriteMessage(rest[0], body, cites))
			return nil
		},
	}
	cmd.Flags().StringVar(&args.citations, "citations", "", "JSON file with the citation list")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pi-chat %s (%s) built %s\n", version, commit, date)
		},
	}
}

func runStream(cmd *cobra.Command, args cliArgs, prompt string) error {
	settings, err := loadSettings(args)
	if err != nil {
		return err
	}
	req, err := submitRequest(settings, args.conversation, prompt)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	b := newBackend(settings)
	defer b.Close()
	req.Seq = b.nextSeq(ctx, req.ConversationID)
	return print.Run(ctx, b.manager, req, printConfig(cmd, args, settings, nil))
}

func runInteractive(cmd *cobra.Command, args cliArgs) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("interactive mode needs a terminal; pass a prompt to stream instead")
	}
	settings, err := loadSettings(args)
	if err != nil {
		return err
	}
	spec, err := resolveModel(settings)
	if err != nil {
		return err
	}

	format := render.FormatANSI
	if termfix.NoColor() {
		format = render.FormatText
	}
	pipeline, err := render.NewPipeline(format, outputWidth(cmd, settings), settings.Render.Style)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	b := newBackend(settings)
	defer b.Close()
	// The chat renders the loaded conversation and numbers prompts after it.
	b.nextSeq(ctx, args.conversation)
	return interactive.Run(ctx, interactive.Deps{
		Manager:        b.manager,
		View:           b.view,
		Pipeline:       pipeline,
		Model:          spec.Model,
		Provider:       spec.Provider,
		ConversationID: args.conversation,
		Version:        version,
	})
}

// loadSettings merges the config layers with the CLI overrides and applies
// the log level.
func loadSettings(args cliArgs) (*config.Settings, error) {
	settings, err := config.Load(args.projectRoot, buildCLIOverrides(args))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	pilog.SetLevel(pilog.ParseLevel(settings.LogLevel))
	return settings, nil
}

// buildCLIOverrides converts CLI flags into a Settings overlay.
func buildCLIOverrides(args cliArgs) *config.Settings {
	o := &config.Settings{
		BaseURL:  args.baseURL,
		Model:    args.model,
		Provider: args.provider,
		Render: config.RenderSettings{
			Width: args.width,
			Style: args.style,
		},
	}
	if !isPrintFormat(args.format) {
		o.Render.Format = args.format
	}
	if args.verbose {
		o.LogLevel = "debug"
	}
	return o
}

// resolveModel resolves the configured model; with none configured the
// backend picks its default.
func resolveModel(settings *config.Settings) (config.ModelSpec, error) {
	if settings.Model == "" {
		return config.ModelSpec{Provider: settings.Provider}, nil
	}
	return settings.ResolveModel(settings.Model)
}

func submitRequest(settings *config.Settings, conversationID, prompt string) (stream.SubmitRequest, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return stream.SubmitRequest{}, fmt.Errorf("empty prompt")
	}
	spec, err := resolveModel(settings)
	if err != nil {
		return stream.SubmitRequest{}, err
	}
	return stream.SubmitRequest{
		ConversationID: conversationID,
		Prompt:         prompt,
		Model:          spec.Model,
		Provider:       spec.Provider,
	}, nil
}

func isPrintFormat(format string) bool {
	return format == print.FormatJSON || format == print.FormatStreamJSON
}

// renderFormat is the configured render format; styled output falls back to
// plain text when stdout is not a terminal.
func renderFormat(cmd *cobra.Command, settings *config.Settings) render.Format {
	if settings.Render.Format == config.FormatANSI && !isTerminal(cmd) {
		return render.FormatText
	}
	return render.Format(settings.Render.Format)
}

func printConfig(cmd *cobra.Command, args cliArgs, settings *config.Settings, cites []citation.Citation) print.Config {
	format := string(renderFormat(cmd, settings))
	if isPrintFormat(args.format) {
		format = args.format
	}
	return print.Config{
		OutputFormat: format,
		Width:        outputWidth(cmd, settings),
		Style:        settings.Render.Style,
		Citations:    cites,
		Out:          cmd.OutOrStdout(),
		Err:          cmd.ErrOrStderr(),
	}
}

func isTerminal(cmd *cobra.Command) bool {
	f, ok := cmd.OutOrStdout().(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// outputWidth returns the configured width, or the terminal's when output
// is a terminal.
func outputWidth(cmd *cobra.Command, settings *config.Settings) int {
	if settings.Render.Width > 0 {
		return settings.Render.Width
	}
	f, ok := cmd.OutOrStdout().(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		pilog.Debug("terminal size: %v", err)
		return 0
	}
	return w
}

func readCitations(path string) ([]citation.Citation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cites, err := citation.ParseList(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cites, nil
}
