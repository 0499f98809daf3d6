package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/linocr/internal/config"
)

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and create configuration files",
		// Configuration commands must work with a broken config.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return nil },
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [file]",
		Short: "Write the default configuration to a file (default: linocr.yaml)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ConfigFileName + ".yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.GenerateDefaultConfigFile(path, force); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
			return err
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l := config.NewLoaderWithViper(a.v)
			var (
				cfg *config.Config
				err error
			)
			if a.cfgFile != "" {
				cfg, err = l.LoadWithFile(a.cfgFile)
			} else {
				cfg, err = l.LoadWithoutValidation()
			}
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}
			if used := l.ConfigFileUsed(); used != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# from %s\n", used)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	pathsCmd := &cobra.Command{
		Use:   "paths",
		Short: "List the directories searched for " + config.ConfigFileName + ".yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), strings.Join(config.SearchPaths(), "\n"))
			return err
		},
	}

	cmd.AddCommand(initCmd, showCmd, pathsCmd)
	return cmd
}
