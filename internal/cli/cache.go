// Package cli — cache.go implements the "pipewright cache" command group.
//
// Two subcommands manage the on-disk cache store:
//
//	cache list  [pipeline]  — show saved entries
//	cache clean [pipeline]  — remove saved entries
//
// Without a pipeline argument both operate on the whole store.
package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pipewright/pipewright/internal/cache"
	"github.com/pipewright/pipewright/internal/config"
	"github.com/pipewright/pipewright/internal/model"
)

// NewCacheCommand creates the "cache" parent command with its list and
// clean subcommands. It is called from NewRootCommand.
func NewCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clean the build cache",
		Long: `Manage directories saved between pipeline runs.

Cache entries are stored per pipeline under the cache root directory
(see PIPEWRIGHT_CACHE_ROOT). Entries never expire on their own; use
"cache clean" to reclaim space.`,
	}

	cmd.AddCommand(newCacheListCommand())
	cmd.AddCommand(newCacheCleanCommand())

	return cmd
}

// newCacheListCommand creates the "cache list" subcommand.
func newCacheListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list [pipeline]",
		Short: "List saved cache entries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline := ""
			if len(args) == 1 {
				pipeline = args[0]
			}
			return runCacheList(pipeline)
		},
	}
}

// newCacheCleanCommand creates the "cache clean" subcommand.
func newCacheCleanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [pipeline]",
		Short: "Remove saved cache entries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline := ""
			if len(args) == 1 {
				pipeline = args[0]
			}
			return runCacheClean(pipeline)
		},
	}
}

// runCacheList is the main logic function for "cache list".
func runCacheList(pipeline string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	entries, err := store.List(pipeline)
	if err != nil {
		return model.WrapCLIError(model.ExitCacheError, "failed to list cache entries", err)
	}

	if IsJSONOutput() {
		if entries == nil {
			entries = []cache.Entry{}
		}
		data, _ := json.MarshalIndent(entries, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	if len(entries) == 0 {
		fmt.Println("No cache entries found.")
		return nil
	}

	fmt.Printf("%-20s %-14s %-22s %s\n", "PIPELINE", "KEY", "SAVED", "PATH")
	for _, entry := range entries {
		fmt.Printf("%-20s %-14s %-22s %s\n",
			entry.Pipeline, entry.Key, entry.SavedAt.Format(time.RFC3339), entry.Path)
	}
	return nil
}

// runCacheClean is the main logic function for "cache clean".
func runCacheClean(pipeline string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	if err := store.Clean(pipeline); err != nil {
		return model.WrapCLIError(model.ExitCacheError, "failed to clean cache", err)
	}

	if pipeline == "" {
		fmt.Println("Cache cleaned.")
	} else {
		fmt.Printf("Cache cleaned for pipeline %q.\n", pipeline)
	}
	return nil
}

// openStore resolves the cache root from the tool settings and opens
// the store.
func openStore() (*cache.Store, error) {
	settings, err := config.LoadSettings()
	if err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError, "failed to load settings", err)
	}
	VerboseLog("Cache root: %s", settings.CacheRoot)
	return cache.NewStore(settings.CacheRoot), nil
}
