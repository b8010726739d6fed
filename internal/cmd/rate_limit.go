package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/ledgersweep/ledgersweep/internal/core/store"
)

var rateLimitCmd = &cobra.Command{
	Use:   "rate-limit",
	Short: "Manage persisted throttle windows and 429 backoff",
}

func init() {
	rateLimitCmd.AddCommand(rateLimitListCmd)
	rateLimitCmd.AddCommand(rateLimitResetCmd)
	rootCmd.AddCommand(rateLimitCmd)
}

func addRateLimitSelectors(cmd *cobra.Command, verb string) {
	cmd.Flags().Bool("all", false, verb+" every tenant")
	cmd.Flags().String("key", "", verb+" a single tenant key (host/realm, exact match)")
	cmd.Flags().String("realm", "", verb+" every host for a realm id")
	cmd.Flags().String("host", "", verb+" every realm on a host")
}

func rateLimitQueryFromFlags(cmd *cobra.Command) store.RateLimitQuery {
	all, _ := cmd.Flags().GetBool("all")
	key, _ := cmd.Flags().GetString("key")
	realm, _ := cmd.Flags().GetString("realm")
	host, _ := cmd.Flags().GetString("host")
	return store.RateLimitQuery{
		All:   all,
		Key:   strings.TrimSpace(key),
		Realm: strings.TrimSpace(realm),
		Host:  strings.TrimSpace(host),
	}
}
