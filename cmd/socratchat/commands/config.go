package commands

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/haivivi/socratchat/cmd/socratchat/internal/config"
	"github.com/haivivi/socratchat/pkg/cli"
)

var knownServices = []string{
	config.ServiceGroq,
	config.ServiceGemini,
	config.ServiceOpenAI,
	config.ServicePolly,
	config.ServiceVoice,
}

func validateServiceName(service string) error {
	if !slices.Contains(knownServices, service) {
		return fmt.Errorf("unknown service %q (want one of %s)", service, strings.Join(knownServices, ", "))
	}
	return nil
}

// existingContext validates name and returns its directory.
func existingContext(cfg *config.Config, name string) (string, error) {
	if err := config.ValidateContextName(name); err != nil {
		return "", err
	}
	dir := cfg.ContextDir(name)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return "", fmt.Errorf("context %q not found", name)
	}
	return dir, nil
}

// parseValue reads value as a YAML scalar so numbers and booleans keep
// their type; anything else stays a string.
func parseValue(value string) any {
	var v any
	if err := yaml.Unmarshal([]byte(value), &v); err != nil || v == nil {
		return value
	}
	switch v.(type) {
	case string, bool, int, int64, uint64, float64:
		return v
	}
	return value
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage contexts and service settings",
	Long: `Manage contexts and service settings.

A context is a named directory of per-service YAML files: groq.yaml,
gemini.yaml, openai.yaml, polly.yaml and voice.yaml.

Examples:
  socratchat config add-context home
  socratchat config use-context home
  socratchat config set home groq api_key gsk-xxx
  socratchat config set home voice silence_ms 1200
  socratchat config get home voice tts_provider
  socratchat config show -o json`,
}

var configListContextsCmd = &cobra.Command{
	Use:     "list-contexts",
	Aliases: []string{"ls"},
	Short:   "List contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		names, err := cfg.ListContexts()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("No contexts configured.")
			fmt.Println("Create one with: socratchat config add-context <name>")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CURRENT\tNAME\tSERVICES")
		for _, name := range names {
			current := ""
			if name == cfg.CurrentContext {
				current = "*"
			}
			services, _ := config.ListServices(cfg.ContextDir(name))
			fmt.Fprintf(w, "%s\t%s\t%s\n", current, name, strings.Join(services, ", "))
		}
		return w.Flush()
	},
}

var configAddContextCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Create a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if err := cfg.AddContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Context %q created.", args[0])
		return nil
	},
}

var configDeleteContextCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context and its service files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if err := cfg.DeleteContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Context %q deleted.", args[0])
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if err := cfg.UseContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Switched to context %q.", args[0])
		return nil
	},
}

var configCurrentContextCmd = &cobra.Command{
	Use:   "current-context",
	Short: "Print the current context",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if cfg.CurrentContext == "" {
			fmt.Println("No current context set.")
			return nil
		}
		fmt.Println(cfg.CurrentContext)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <context> <service> <key> <value>",
	Short: "Set a service value",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		ctxName, service, key, value := args[0], args[1], args[2], args[3]
		if err := validateServiceName(service); err != nil {
			return err
		}
		dir, err := existingContext(cfg, ctxName)
		if err != nil {
			return err
		}

		m := map[string]any{}
		existing, err := config.LoadService[map[string]any](dir, service)
		switch {
		case err == nil && *existing != nil:
			m = *existing
		case err != nil && !errors.Is(err, config.ErrServiceNotFound):
			return fmt.Errorf("cannot read existing %s config: %w", service, err)
		}
		m[key] = parseValue(value)

		if err := config.SaveService(dir, service, &m); err != nil {
			return err
		}
		cli.PrintSuccess("Set %s.%s (context: %s)", service, key, ctxName)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <context> <service> <key>",
	Short: "Print a service value",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		ctxName, service, key := args[0], args[1], args[2]
		if err := validateServiceName(service); err != nil {
			return err
		}
		dir, err := existingContext(cfg, ctxName)
		if err != nil {
			return err
		}
		m, err := config.LoadService[map[string]any](dir, service)
		if err != nil {
			return err
		}
		val, ok := (*m)[key]
		if !ok {
			return fmt.Errorf("key %q not found in %s config", key, service)
		}
		fmt.Println(val)
		return nil
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit <context> <service>",
	Short: "Open a service file in $EDITOR",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		ctxName, service := args[0], args[1]
		if err := validateServiceName(service); err != nil {
			return err
		}
		if _, err := existingContext(cfg, ctxName); err != nil {
			return err
		}

		path := cfg.ServicePath(ctxName, service)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte("# "+service+" settings\n"), 0600); err != nil {
				return fmt.Errorf("create %s: %w", path, err)
			}
		}

		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = "vi"
		}
		c := exec.Command(editor, path)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		return c.Run()
	},
}

var showFormat string

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved settings with secrets masked",
	Long: `Print the settings the other commands would use: the selected context
merged with the environment. Secrets are masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := loadServices()
		if err != nil {
			return err
		}
		return cli.Output(svc.Redacted(), cli.OutputOptions{
			Format: cli.OutputFormat(showFormat),
			Indent: "  ",
		})
	},
}

func init() {
	configShowCmd.Flags().StringVarP(&showFormat, "output", "o", "yaml", "output format: yaml or json")

	configCmd.AddCommand(configListContextsCmd)
	configCmd.AddCommand(configAddContextCmd)
	configCmd.AddCommand(configDeleteContextCmd)
	configCmd.AddCommand(configUseContextCmd)
	configCmd.AddCommand(configCurrentContextCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configShowCmd)

	rootCmd.AddCommand(configCmd)
}
