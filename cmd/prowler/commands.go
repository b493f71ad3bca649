package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/prowler/internal/config"
	"github.com/kalambet/prowler/internal/history"
	"github.com/kalambet/prowler/internal/lookup"
	"github.com/kalambet/prowler/internal/postcode"
)

// --- lookup ---

var lookupCmd = &cobra.Command{
	Use:   "lookup <postcode>",
	Short: "Look up a UK postcode",
	Long: `Look up a UK postcode and show its status, geography,
administrative areas, codes and district boundary.

Examples:
  prowler lookup "SW1A 1AA"
  prowler lookup sw1a1aa --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		raw := strings.Join(args, " ")
		pc := postcode.Normalize(raw)
		if !postcode.Valid(pc) {
			return fmt.Errorf("invalid postcode %q", raw)
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.orch.Search(cmd.Context(), pc)
		if err != nil {
			return err
		}
		if st.Phase == lookup.PhaseError {
			return errors.New(st.Error)
		}
		if st.Result == nil {
			return errors.New(lookup.GenericMessage)
		}
		return showResult(cmd, a, *st.Result, asJSON)
	},
}

func init() {
	lookupCmd.Flags().Bool("json", false, "Print the raw lookup result as JSON")
}

func showResult(cmd *cobra.Command, a *app, r postcode.LookupResult, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	renderResult(out, r, a.prefs.Theme())
	return nil
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List, show or clear remembered lookups",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List remembered lookups, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix, _ := cmd.Flags().GetString("prefix")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		entries := history.Suggest(prefix, a.orch.State().History)
		if len(entries) == 0 {
			printWarning("No history entries")
			return nil
		}

		out := cmd.OutOrStdout()
		for _, e := range entries {
			when := time.UnixMilli(e.Timestamp).Local().Format("2006-01-02 15:04")
			fmt.Fprintf(out, "  %-9s %s  %s %s\n", colorize(colorBold, e.Postcode), when, badge(e.Data.StatusLabel()), e.Data.District())
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <postcode>",
	Short: "Show a remembered lookup without contacting any remote service",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		raw := strings.Join(args, " ")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		entry, ok := history.Find(postcode.Normalize(raw), a.orch.State().History)
		if !ok {
			return fmt.Errorf("no history entry for %q", raw)
		}
		st := a.orch.SelectHistoryEntry(entry)
		return showResult(cmd, a, *st.Result, asJSON)
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget all remembered lookups",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.history.Clear(); err != nil {
			return err
		}
		printSuccess("History cleared")
		return nil
	},
}

func init() {
	historyListCmd.Flags().String("prefix", "", "Only list postcodes starting with this prefix")
	historyShowCmd.Flags().Bool("json", false, "Print the stored lookup result as JSON")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyClearCmd)
}

// --- suggest ---

var suggestCmd = &cobra.Command{
	Use:   "suggest <prefix>",
	Short: "Suggest remembered postcodes matching a prefix",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var prefix string
		if len(args) == 1 {
			prefix = args[0]
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		for _, e := range history.Suggest(prefix, a.orch.State().History) {
			fmt.Fprintln(out, e.Postcode)
		}
		return nil
	},
}

// --- theme ---

var themeCmd = &cobra.Command{
	Use:   "theme [dark|light]",
	Short: "Show or set the colour theme",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 1 {
			if err := a.prefs.SetTheme(args[0]); err != nil {
				return err
			}
			printSuccess("Theme set to %s", strings.ToLower(args[0]))
			return nil
		}

		_, stored, err := a.prefs.Stored()
		if err != nil {
			return err
		}
		source := "terminal"
		if stored {
			source = "saved"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", a.prefs.Theme(), source)
		return nil
	},
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show prowler status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		client := &http.Client{Timeout: 2 * time.Second}
		resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", a.cfg.Server.Port))
		if err != nil {
			printStatus(out, "View server", "stopped")
		} else {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				printStatus(out, "View server", "running on port %d", a.cfg.Server.Port)
			} else {
				printStatus(out, "View server", "error (HTTP %d)", resp.StatusCode)
			}
		}

		printStatus(out, "History", "%d of %d entries", len(a.orch.State().History), a.history.Max())
		printStatus(out, "Theme", "%s", a.prefs.Theme())
		printStatus(out, "Boundary API", "%s", a.cfg.Boundary.URL)
		printStatus(out, "Data dir", "%s", a.cfg.Storage.DataDir)

		entries, err := a.store.Entries()
		if err != nil {
			return fmt.Errorf("listing stored state: %w", err)
		}
		for _, e := range entries {
			printStatus(out, "Updated "+e.Key, "%s", e.UpdatedAt.Local().Format(time.DateTime))
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: fmt.Sprintf(`Set a configuration value.

Valid keys:
  %s`, strings.Join(config.ValidKeys(), "\n  ")),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}

		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
