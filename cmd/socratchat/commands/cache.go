package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/socratchat/pkg/cli"
	"github.com/haivivi/socratchat/pkg/kv"
	"github.com/haivivi/socratchat/pkg/voice/tts"
)

var cacheFormat string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the synthesized speech cache",
	Long: `Inspect or clear the synthesized speech cache kept in voice.cache_dir.

Examples:
  socratchat config set home voice cache_dir $HOME/.cache/socratchat
  socratchat cache stats
  socratchat cache clear`,
}

// openCache opens the disk cache of the selected context.
func openCache() (kv.Store, error) {
	svc, err := loadServices()
	if err != nil {
		return nil, err
	}
	if svc.Voice.CacheDir == "" {
		return nil, errors.New("voice.cache_dir is not set; the cache only lives in memory")
	}
	return kv.NewBadger(kv.BadgerOptions{Dir: svc.Voice.CacheDir})
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count the cached clips",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCache()
		if err != nil {
			return err
		}
		defer store.Close()
		st, err := tts.Stats(cmd.Context(), store)
		if err != nil {
			return err
		}
		if cacheFormat == string(cli.FormatRaw) {
			fmt.Printf("%d clips, %s\n", st.Clips, cli.FormatBytes(st.Bytes))
			return nil
		}
		return cli.Output(st, cli.OutputOptions{Format: cli.OutputFormat(cacheFormat), Indent: "  "})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached clip",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCache()
		if err != nil {
			return err
		}
		defer store.Close()
		n, err := tts.Purge(cmd.Context(), store)
		if err != nil {
			return err
		}
		cli.PrintSuccess("Removed %d cached clips.", n)
		return nil
	},
}

func init() {
	cacheStatsCmd.Flags().StringVarP(&cacheFormat, "output", "o", "raw", "output format: raw, yaml or json")
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
