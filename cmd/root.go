package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "telemetry",
	Short: "Telemetry service for polling energy meter controllers",
	Long: `A service that polls remote energy meter controllers, derives
consumption, demand, and power factor metrics, persists them, and fans the
results out to subscribed clients.`,
	Run: func(cmd *cobra.Command, args []string) {
		err := cmd.Help()
		if err != nil {
			log.Error().Err(err).Msg("Failed to display help")
		}
	},
}

// Execute executes the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize()
}
