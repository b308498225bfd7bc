// Package cli holds terminal helpers shared by the socratchat commands:
// structured output (YAML, JSON, raw), human readable sizes and durations,
// and lipgloss styles for chat transcripts and voice session state.
//
// Example:
//
//	styles := cli.NewStyles(cli.DefaultTheme)
//	fmt.Println(styles.Message(msg))
//	cli.Output(devices, cli.OutputOptions{Format: cli.FormatJSON})
package cli
