package commands

import (
	"github.com/spf13/cobra"

	"github.com/haivivi/socratchat/pkg/audio/portaudio"
	"github.com/haivivi/socratchat/pkg/cli"
)

var devicesFormat string

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := portaudio.Devices()
		if err != nil {
			return err
		}
		return cli.Output(devices, cli.OutputOptions{
			Format: cli.OutputFormat(devicesFormat),
			Indent: "  ",
		})
	},
}

func init() {
	devicesCmd.Flags().StringVarP(&devicesFormat, "output", "o", "yaml", "output format: yaml or json")
	rootCmd.AddCommand(devicesCmd)
}
