package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

func newPeerCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Manage peers through the HTTP API",
	}

	var out string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a peer and print or save its client config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := root.client()
			resp, err := c.AddPeer(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "added %s address=%s public_key=%s\n", resp.PeerName, resp.IPAddress, resp.PublicKey)
			if out == "" {
				return nil
			}
			pc, err := c.PeerConfig(cmd.Context(), resp.PeerName)
			if err != nil {
				return err
			}
			return writeClientConfig(out, pc.Config)
		},
	}
	add.Flags().StringVarP(&out, "out", "o", "", "write the client config to this file")

	remove := &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a peer",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := root.client().RemovePeer(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show <name>",
		Short: "Print a peer's client config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pc, err := root.client().PeerConfig(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), pc.Config)
			return nil
		},
	}

	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List peer names",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := root.client().Peers(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}

	cmd.AddCommand(add, remove, show, list)
	return cmd
}

func newServerInfoCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "server-info",
		Short: "Show the server identity and file status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info, err := root.client().ServerInfo(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, info)
		},
	}
}

func newReloadCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Restart the WireGuard daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := root.client().Reload(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", resp.Message, time.Duration(resp.DurationMs)*time.Millisecond)
			return nil
		},
	}
}

func newEventsCmd(root *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent registry and daemon events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := root.client().Events(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, ev := range items {
				fmt.Fprintf(w, "%s %-20s %-10s %-8s %dms %s\n",
					ev.Timestamp.Format(time.RFC3339), ev.Kind, ev.Peer, ev.Outcome, ev.DurationMs, ev.Detail)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of events")
	return cmd
}

func writeClientConfig(path, conf string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(conf), 0o600)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
