package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/soyeahso/supportim/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or edit the config file",
		Long: "Keys are dotted paths into the YAML config, for example gateway.port or\n" +
			"rateLimit.realtime.message.agent. Unknown keys are rejected.",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print a value from the config file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRaw(args[0], false, func(raw map[string]any, key []string) error {
					val, ok := config.GetValueAtPath(raw, key)
					if !ok {
						return fmt.Errorf("%s is not set", args[0])
					}
					return printValue(cmd.OutOrStdout(), val)
				})
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Write a value to the config file",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				value := parseValue(args[1])
				err := withRaw(args[0], true, func(raw map[string]any, key []string) error {
					config.SetValueAtPath(raw, key, value)
					return nil
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", args[0], value)
				warnIssues(cmd.ErrOrStderr())
				return nil
			},
		},
		&cobra.Command{
			Use:   "unset <key>",
			Short: "Remove a value so its default applies",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				err := withRaw(args[0], true, func(raw map[string]any, key []string) error {
					if !config.UnsetValueAtPath(raw, key) {
						return fmt.Errorf("%s is not set", args[0])
					}
					return nil
				})
				if err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s unset\n", args[0])
				}
				return err
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file location",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), paths.Config)
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Load the config with defaults and report problems",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				issues, err := configIssues()
				if err != nil {
					return err
				}
				for _, issue := range issues {
					fmt.Fprintln(cmd.OutOrStdout(), issue.String())
				}
				if len(issues) > 0 {
					return fmt.Errorf("%d config issue(s)", len(issues))
				}
				fmt.Fprintln(cmd.OutOrStdout(), "config OK")
				return nil
			},
		},
	)
	return cmd
}

// withRaw resolves key against the config schema and runs fn on the raw
// YAML document. When save is set the document is written back after fn
// succeeds.
func withRaw(key string, save bool, fn func(raw map[string]any, key []string) error) error {
	segments, err := config.ParseConfigPath(key)
	if err != nil {
		return err
	}
	raw, err := config.LoadRaw(paths.Config)
	if err != nil {
		return err
	}
	if err := fn(raw, segments); err != nil {
		return err
	}
	if !save {
		return nil
	}
	return config.SaveRaw(paths.Config, raw)
}

func configIssues() ([]config.ValidationIssue, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return nil, err
	}
	return config.Validate(&cfg), nil
}

// warnIssues reports problems in the saved config without failing the edit,
// so multi-step changes can pass through invalid states.
func warnIssues(w io.Writer) {
	issues, err := configIssues()
	if err != nil {
		fmt.Fprintf(w, "warning: %v\n", err)
		return
	}
	for _, issue := range issues {
		fmt.Fprintf(w, "warning: %s\n", issue)
	}
}

// printValue writes a value as plain text, or as YAML for maps and lists.
func printValue(w io.Writer, v any) error {
	switch v.(type) {
	case map[string]any, []any:
		data, err := yaml.Marshal(v)
		if err == nil {
			_, err = w.Write(data)
		}
		return err
	}
	_, err := fmt.Fprintln(w, v)
	return err
}

// parseValue interprets a command-line string as a YAML scalar: bool, int,
// float or string. Durations like "90s" stay strings.
func parseValue(s string) any {
	if b, err := strconv.ParseBool(strings.ToLower(s)); err == nil && len(s) > 1 {
		return b
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if _, err := time.ParseDuration(s); err == nil {
		return s
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
