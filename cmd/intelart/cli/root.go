package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/intelart/internal/config"
	"github.com/felixgeelhaar/intelart/internal/observe"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	verbose    bool
	jsonOut    bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "intelart",
		Short: "Intelart, an art assistant that learns from your documents",
		Long: `Intelart learns from PDFs and web pages, then answers questions from
that knowledge or narrates an interactive story, over HTTP or in the terminal.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default ./intelart.yaml or ~/.config/intelart/config.yaml)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "JSON logs and JSON command output")

	root.AddCommand(
		newServeCmd(opts),
		newTrainCmd(opts),
		newTrainURLCmd(opts),
		newAskCmd(opts),
		newChatCmd(opts),
		newStatusCmd(opts),
		newResetCmd(opts),
		newSourcesCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads .env, then the config file, then applies the flags.
func (o *rootOptions) loadConfig() (*config.AppConfig, error) {
	if err := config.LoadEnv(); err != nil {
		return nil, err
	}

	var cfg *config.AppConfig
	var err error
	if o.configPath != "" {
		cfg, err = config.Load(o.configPath)
	} else {
		cfg, _, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}

	if o.verbose {
		cfg.Log.Verbose = true
	}
	if o.jsonOut {
		cfg.Log.JSON = true
	}
	return cfg, nil
}

// observer logs to w; command output goes to stdout.
func observer(cfg *config.AppConfig, w io.Writer) *observe.Observer {
	if cfg.Log.JSON {
		return observe.NewJSON(w, cfg.Log.Verbose)
	}
	return observe.New(w, cfg.Log.Verbose)
}
