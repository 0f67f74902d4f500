package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/brandwatch/internal/entity"
	"github.com/user/brandwatch/internal/usecase"
)

var (
	searchKeywords  []string
	searchBrands    []string
	searchPlatforms []string
	searchDryRun    bool
	searchJSON      bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Run one search now and print the new listings",
	Long: `Run a single search over the given keywords or brands and platforms.
Without --keywords or --brands the configured mode decides what is searched.
With --dry-run the run goes through the same worker pool but nothing is stored
or notified; every extracted listing is printed and marked new when the store
does not know it yet.`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringSliceVarP(&searchKeywords, "keywords", "k", nil, "Keywords to search verbatim")
	searchCmd.Flags().StringSliceVarP(&searchBrands, "brands", "b", nil, "Brand names to expand into keywords")
	searchCmd.Flags().StringSliceVarP(&searchPlatforms, "platforms", "p", nil, "Platforms to search (default: all)")
	searchCmd.Flags().BoolVar(&searchDryRun, "dry-run", false, "Fetch and extract only; do not store or notify")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Print listings as JSON lines")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	run := usecase.ManualRun{Keywords: searchKeywords, Brands: searchBrands, DryRun: searchDryRun}
	for _, p := range searchPlatforms {
		run.Platforms = append(run.Platforms, entity.PlatformID(p))
	}

	h, err := a.ctrl.StartRun(ctx, run)
	if err != nil {
		return err
	}
	// Interrupt asks the run to stop after its current work items.
	go func() {
		<-ctx.Done()
		a.ctrl.Stop()
	}()
	res := <-h.Done

	if err := printListings(cmd.OutOrStdout(), res.New, res.Known); err != nil {
		return err
	}
	s := res.Summary
	fmt.Fprintf(cmd.ErrOrStderr(), "found %d, new %d, brands %d, failed checks %d/%d\n",
		s.Total, s.New, len(s.Brands), s.Failed, s.WorkItems)
	return nil
}

// printListings writes new listings, then already known ones, as a table or
// JSON lines.
func printListings(out io.Writer, fresh, known []entity.Listing) error {
	if searchJSON {
		enc := json.NewEncoder(out)
		for i, l := range append(append([]entity.Listing{}, fresh...), known...) {
			row := map[string]any{
				"id":       l.ID,
				"title":    l.Title,
				"price":    l.PriceText,
				"url":      l.URL,
				"platform": l.Platform,
				"brand":    l.Brand,
				"new":      i < len(fresh),
			}
			if err := enc.Encode(row); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATE\tPLATFORM\tBRAND\tPRICE\tTITLE\tURL")
	for _, l := range fresh {
		fmt.Fprintf(tw, "new\t%s\t%s\t%s\t%s\t%s\n", l.Platform, l.Brand, l.PriceText, l.Title, l.URL)
	}
	for _, l := range known {
		fmt.Fprintf(tw, "seen\t%s\t%s\t%s\t%s\t%s\n", l.Platform, l.Brand, l.PriceText, l.Title, l.URL)
	}
	return tw.Flush()
}
