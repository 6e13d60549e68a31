package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/JakeFAU/tenderwatch/internal/config"
)

const (
	flagSearchTerm       = "search-term"
	flagMaxPages         = "max-pages"
	flagMinPublishedDate = "min-published-date"
	flagFetchDetails     = "fetch-details"
	flagClassify         = "classify"
	flagOutput           = "output"
	flagFormat           = "format"
	flagPort             = "port"
)

// addRunFlags registers the per-run parameters shared by scrape and dispatch.
func addRunFlags(fs *pflag.FlagSet) {
	fs.String(flagSearchTerm, "", "search term typed into the listing search box")
	fs.Int(flagMaxPages, 0, "maximum number of result pages to scan")
	fs.String(flagMinPublishedDate, "", "drop listings published before this date (YYYY-MM-DD)")
}

// applyFlagOverrides copies every flag the user set onto cfg.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) error {
	fs := cmd.Flags()
	var err error
	changed := func(name string) bool {
		f := fs.Lookup(name)
		return f != nil && f.Changed && err == nil
	}
	if changed(flagSearchTerm) {
		cfg.Scrape.SearchTerm, err = fs.GetString(flagSearchTerm)
	}
	if changed(flagMaxPages) {
		cfg.Scrape.MaxPages, err = fs.GetInt(flagMaxPages)
	}
	if changed(flagMinPublishedDate) {
		cfg.Scrape.MinPublishedDate, err = fs.GetString(flagMinPublishedDate)
	}
	if changed(flagFetchDetails) {
		cfg.Scrape.FetchDetails, err = fs.GetBool(flagFetchDetails)
	}
	if changed(flagClassify) {
		cfg.Classifier.Enabled, err = fs.GetBool(flagClassify)
	}
	if changed(flagOutput) {
		cfg.Output.Path, err = fs.GetString(flagOutput)
	}
	if changed(flagFormat) {
		cfg.Output.Format, err = fs.GetString(flagFormat)
	}
	if changed(flagPort) {
		cfg.Server.Port, err = fs.GetInt(flagPort)
	}
	if err != nil {
		return fmt.Errorf("read flags: %w", err)
	}
	return nil
}
