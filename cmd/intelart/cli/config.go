package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/intelart/internal/config"
	"github.com/felixgeelhaar/intelart/internal/credential"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage stored settings such as API keys",
	}
	cmd.AddCommand(newConfigSetCmd(opts), newConfigGetCmd(opts), newConfigInitCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a config file with the default settings",
		Long:  "Write a config file with the default settings. Without a path, ~/.config/intelart/config.yaml is used.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			} else {
				p, err := config.DefaultUserConfigPath()
				if err != nil {
					return err
				}
				path = p
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}

			if err := config.Save(path, config.Default()); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written: %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

func newConfigSetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Set a configuration value; keys such as openai.api_key are encrypted",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			if credential.IsSecretKey(key) {
				sealer, err := credential.NewSealer()
				if err != nil {
					return err
				}
				if value, err = sealer.Seal(value); err != nil {
					return err
				}
			}

			if err := s.SetConfig(key, value); err != nil {
				return fmt.Errorf("failed to set config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration saved: %s\n", key)
			return nil
		},
	}
}

func newConfigGetCmd(opts *rootOptions) *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "get [key]",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			sealer, err := credential.NewSealer()
			if err != nil {
				return err
			}
			val, err := sealer.Resolve(s.GetConfig, key)
			if err != nil {
				return err
			}

			switch {
			case val == "":
				fmt.Fprintln(cmd.OutOrStdout(), "(not set)")
			case credential.IsSecretKey(key) && !reveal:
				fmt.Fprintln(cmd.OutOrStdout(), credential.Mask(val))
			default:
				fmt.Fprintln(cmd.OutOrStdout(), val)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print secrets in clear")
	return cmd
}
