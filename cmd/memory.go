package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/samsaffron/term-agent/internal/memory"
	"github.com/spf13/cobra"
)

var (
	memoryNamespace []string
	memoryLimit     int
	memorySeedFile  string
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and edit the agent's long-term memory",
	Long: `Read and write the namespaced memory the agent uses across sessions.
The namespace defaults to (<memory.user_id>, memories).

Examples:
  term-agent memory put fav-film '{"movie_preference":"Alien"}'
  term-agent memory get fav-film
  term-agent memory search "space movies" --limit 3
  term-agent memory namespaces
  term-agent memory seed --file memories.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var memoryPutCmd = &cobra.Command{
	Use:   "put <key> <value>",
	Short: "Store a value (JSON object, or text wrapped as {\"value\": ...})",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		ns := memoryNS()
		if err := store.Put(cmd.Context(), ns, args[0], parseCLIValue(args[1])); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stored %q in %s.\n", args[0], ns)
		return nil
	},
}

var memoryGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a stored value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		item, err := store.Get(cmd.Context(), memoryNS(), args[0])
		if errors.Is(err, memory.ErrNotFound) {
			return fmt.Errorf("no value stored for %q in %s", args[0], memoryNS())
		}
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), item)
	},
}

var memoryDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Remove a stored value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		deleted, err := store.Delete(cmd.Context(), memoryNS(), args[0])
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("no value stored for %q in %s", args[0], memoryNS())
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %q from %s.\n", args[0], memoryNS())
		return nil
	},
}

var memorySearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search memories by meaning (keywords without embeddings)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		query := ""
		if len(args) == 1 {
			query = args[0]
		}
		items, err := store.Search(cmd.Context(), memoryNS(), query, memoryLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(items) == 0 {
			fmt.Fprintln(out, "No memories found.")
			return nil
		}
		for _, item := range items {
			value, _ := json.Marshal(item.Value)
			if item.Score != 0 {
				fmt.Fprintf(out, "%s  %s  %s  (score %.3f)\n", item.Namespace, item.Key, value, item.Score)
			} else {
				fmt.Fprintf(out, "%s  %s  %s\n", item.Namespace, item.Key, value)
			}
		}
		return nil
	},
}

var memoryNamespacesCmd = &cobra.Command{
	Use:   "namespaces",
	Short: "List namespaces under --namespace (all when empty)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		namespaces, err := store.ListNamespaces(cmd.Context(), memory.Namespace(memoryNamespace))
		if err != nil {
			return err
		}
		for _, ns := range namespaces {
			fmt.Fprintln(cmd.OutOrStdout(), ns)
		}
		return nil
	},
}

var memorySeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the default memories, or import items from a YAML file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		var n int
		if memorySeedFile != "" {
			items, err := memory.LoadSeedFile(memorySeedFile)
			if err != nil {
				return err
			}
			n, err = store.Import(cmd.Context(), items)
			if err != nil {
				return err
			}
		} else {
			n, err = memory.SeedIfEmpty(cmd.Context(), store, cfg.Memory.UserID)
			if err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d item(s).\n", n)
		return nil
	},
}

func init() {
	memoryCmd.PersistentFlags().StringSliceVarP(&memoryNamespace, "namespace", "n", nil, "Namespace segments, comma-separated (default <user_id>,memories)")
	memorySearchCmd.Flags().IntVarP(&memoryLimit, "limit", "l", memory.DefaultSearchLimit, "Maximum number of results")
	memorySeedCmd.Flags().StringVarP(&memorySeedFile, "file", "f", "", "YAML file with items to import")

	memoryCmd.AddCommand(memoryPutCmd)
	memoryCmd.AddCommand(memoryGetCmd)
	memoryCmd.AddCommand(memoryDeleteCmd)
	memoryCmd.AddCommand(memorySearchCmd)
	memoryCmd.AddCommand(memoryNamespacesCmd)
	memoryCmd.AddCommand(memorySeedCmd)
}

// memoryNS returns --namespace, or the user's memories namespace.
func memoryNS() memory.Namespace {
	if len(memoryNamespace) > 0 {
		return memory.Namespace(memoryNamespace)
	}
	return memory.UserNamespace(cfg.Memory.UserID)
}

// parseCLIValue accepts a JSON object as is. Other JSON values and plain
// text are wrapped as {"value": ...}.
func parseCLIValue(raw string) map[string]any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return map[string]any{"value": strings.TrimSpace(raw)}
	}
	if obj, ok := v.(map[string]any); ok {
		return obj
	}
	return map[string]any{"value": v}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
