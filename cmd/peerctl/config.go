package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"peerctl/internal/config"
)

func newConfigCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create and check configuration files",
	}

	var out string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out == "" {
				return errors.New("--out is required")
			}
			if _, err := os.Stat(out); err == nil && !force {
				return fmt.Errorf("%s exists; use --force to overwrite", out)
			}
			if err := config.Save(out, config.Default()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&out, "out", "o", "", "output path")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	check := &cobra.Command{
		Use:   "check",
		Short: "Load and validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root.configPath)
			if err != nil {
				return err
			}
			network, _ := cfg.Network()
			fmt.Fprintf(cmd.OutOrStdout(), "ok: interface=%s network=%s store=%s (%s) control=%s\n",
				cfg.WireGuard.Interface, network, cfg.Store.Root, cfg.Store.Strategy, cfg.Daemon.Control)
			return nil
		},
	}

	cmd.AddCommand(initCmd, check)
	return cmd
}
