package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/iksnae/ragulate/internal"
	"github.com/spf13/cobra"
)

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "Read or change your retrieval options on the server",
	Long: `Show the per-user option bag stored by the backend (retrieval mode,
top-k and similar settings), or update keys in it.`,
}

var optionsGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Show all options or one key",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := requireUsername()
		if err != nil {
			return err
		}
		opts, err := internal.NewClient(cfg).GetOptions(cmd.Context(), user)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			v, ok := opts[args[0]]
			if !ok {
				return fmt.Errorf("option %q is not set", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatOption(v))
			return nil
		}
		printOptions(cmd, opts)
		return nil
	},
}

var optionsSetCmd = &cobra.Command{
	Use:   "set <key=value>...",
	Short: "Update one or more options",
	Long: `Update options. Values are parsed as JSON when possible (numbers,
booleans, lists), otherwise stored as strings.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := requireUsername()
		if err != nil {
			return err
		}
		update, err := parseOptionArgs(args)
		if err != nil {
			return err
		}
		stored, err := internal.NewClient(cfg).SetOptions(cmd.Context(), user, update)
		if err != nil {
			return err
		}
		internal.PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Updated %d option(s)", len(update)))
		printOptions(cmd, stored)
		return nil
	},
}

func parseOptionArgs(args []string) (map[string]interface{}, error) {
	update := make(map[string]interface{}, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		var v interface{}
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		update[key] = v
	}
	return update, nil
}

func formatOption(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}

func printOptions(cmd *cobra.Command, opts map[string]interface{}) {
	out := cmd.OutOrStdout()
	if len(opts) == 0 {
		fmt.Fprintln(out, idStyle.Render("(no options set)"))
		return
	}
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "%s = %s\n", titleStyle.Render(k), formatOption(opts[k]))
	}
}

func init() {
	rootCmd.AddCommand(optionsCmd)
	optionsCmd.AddCommand(optionsGetCmd)
	optionsCmd.AddCommand(optionsSetCmd)
}
