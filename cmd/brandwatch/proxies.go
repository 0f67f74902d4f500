package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/brandwatch/internal/proxy"
)

var proxiesCmd = &cobra.Command{
	Use:   "proxies",
	Short: "Manage the proxy list file",
}

var proxiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the proxies in the list file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		addrs, err := proxy.NewFileStore(cfg.ProxyFile).Load()
		if err != nil {
			return err
		}
		return printProxies(cmd.OutOrStdout(), addrs)
	},
}

var proxiesAddCmd = &cobra.Command{
	Use:   "add <addr>...",
	Short: "Append proxies to the list file",
	Long:  "Append proxies to the list file. Addresses without a scheme get http://. Duplicates are skipped.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addrs, err := proxy.NewFileStore(cfg.ProxyFile).Append(args...)
		if err != nil {
			return err
		}
		return printProxies(cmd.OutOrStdout(), addrs)
	},
}

var proxiesRemoveCmd = &cobra.Command{
	Use:   "remove <addr>...",
	Short: "Remove proxies from the list file",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addrs, err := proxy.NewFileStore(cfg.ProxyFile).Remove(args...)
		if err != nil {
			return err
		}
		return printProxies(cmd.OutOrStdout(), addrs)
	},
}

func init() {
	proxiesCmd.AddCommand(proxiesListCmd, proxiesAddCmd, proxiesRemoveCmd)
	rootCmd.AddCommand(proxiesCmd)
}

func printProxies(out io.Writer, addrs []string) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tADDRESS")
	for i, a := range addrs {
		fmt.Fprintf(tw, "%d\t%s\n", i+1, a)
	}
	fmt.Fprintf(tw, "\t%d proxies in %s\n", len(addrs), cfg.ProxyFile)
	return tw.Flush()
}
