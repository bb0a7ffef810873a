package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/atotto/clipboard"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// cliOptions holds the persistent flags shared by every command
type cliOptions struct {
	configDir  string
	port       int
	browser    bool
	skipHidden bool
	verbose    bool

	store *configStore
	cfg   Config
}

// newRootCmd creates the root command. Without a subcommand it serves the
// given folder (default ".").
func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	rootCmd := &cobra.Command{
		Use:           "markview [path]",
		Short:         "Browse a folder of Markdown files in your browser",
		Long:          `markview lists the Markdown files below a folder, renders the one you pick and follows changes on disk.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runServe(cmd.Context(), opts, dir)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configDir, "config-dir", "", "settings directory (default is $HOME/.markview)")
	flags.IntVar(&opts.port, "port", defaultPort, "Port to serve on")
	flags.BoolVar(&opts.browser, "browser", true, "Open browser automatically")
	flags.BoolVar(&opts.skipHidden, "skip-hidden", false, "Skip dotfiles and dot-directories when listing")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(newLsCmd(opts))
	rootCmd.AddCommand(newSearchCmd(opts))
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newCopyCmd())
	rootCmd.AddCommand(newThemeCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// load opens the settings store and applies flag overrides
func (o *cliOptions) load(cmd *cobra.Command) error {
	store, err := newConfigStore(o.configDir)
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}
	o.store = store
	o.cfg = loadConfig(store)

	flags := cmd.Flags()
	if flags.Changed("port") {
		o.cfg.Port = o.port
	}
	if flags.Changed("browser") {
		o.cfg.OpenBrowser = o.browser
	}
	if flags.Changed("skip-hidden") {
		o.cfg.SkipHidden = o.skipHidden
	}

	setupLogging(o.cfg.LogLevel, o.verbose, os.Stderr)
	return nil
}

func runServe(ctx context.Context, opts *cliOptions, dir string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(opts.cfg, opts.store)
	a.start(ctx)
	defer a.close()

	root, err := a.openFolder(dir)
	if err != nil {
		return err
	}

	srv, err := newServer(a, opts.cfg.Port)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://localhost:%d", opts.cfg.Port)
	log.WithFields(log.Fields{"root": root, "url": url}).Info("Serving Markdown folder")
	if opts.cfg.OpenBrowser {
		openURL(url)
	}
	return srv.listen(ctx)
}

func newLsCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ls <dir>",
		Short: "List the Markdown files below a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveDirectory(args[0])
			if err != nil {
				return err
			}
			files, err := scanMarkdownFiles(root, scanOptions{skipHidden: opts.cfg.SkipHidden})
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintln(cmd.OutOrStdout(), f.RelativePath)
			}
			return nil
		},
	}
}

func newSearchCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search <dir> <query>",
		Short: "Fuzzy-search Markdown file names below a folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveDirectory(args[0])
			if err != nil {
				return err
			}
			files, err := scanMarkdownFiles(root, scanOptions{skipHidden: opts.cfg.SkipHidden})
			if err != nil {
				return err
			}
			for _, f := range newSearchIndex(files).search(args[1]) {
				fmt.Fprintln(cmd.OutOrStdout(), f.RelativePath)
			}
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Write a Markdown file as a standalone HTML document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			name := filepath.Base(args[0])
			doc, err := exportHTML(name, source, renderMarkdown)
			if err != nil {
				return err
			}
			if output == "" {
				output = filepath.Join(filepath.Dir(args[0]), exportFileName(name))
			}
			if err := os.WriteFile(output, doc, 0644); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default is <name>.html next to the input)")
	return cmd
}

func newCopyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "copy <file>",
		Short: "Copy a Markdown file's source to the clipboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if err := clipboard.WriteAll(string(source)); err != nil {
				return fmt.Errorf("clipboard: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Copied %d bytes\n", len(source))
			return nil
		},
	}
}

func newThemeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "theme [light|dark]",
		Short:     "Show or set the display theme",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{themeLight, themeDark},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				theme := opts.store.GetString(themeKey)
				if theme == "" {
					theme = themeLight
				}
				fmt.Fprintln(cmd.OutOrStdout(), theme)
				return nil
			}
			if err := opts.store.Set(themeKey, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), args[0])
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "markview %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
