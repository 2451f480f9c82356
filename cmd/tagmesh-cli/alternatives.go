package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/rmacdonaldsmith/tagmesh/pkg/httpclient"
	"github.com/spf13/cobra"
)

// maxSuggestions bounds the "did you mean" list
const maxSuggestions = 3

func newAlternativesCommand() *cobra.Command {
	var tag string

	cmd := &cobra.Command{
		Use:     "alternatives",
		Aliases: []string{"alts"},
		Short:   "Show the alternative routing table",
		Long: `Display the alternative routing table, highest priority first within each source tag.
With --tag only that source tag's chain is shown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAlternatives(cmd, tag)
		},
	}

	cmd.Flags().StringVar(&tag, "tag", "", "Source tag to show (default: all)")

	return cmd
}

func runAlternatives(cmd *cobra.Command, tag string) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	out := cmd.OutOrStdout()
	response, err := client.ListAlternatives(ctx, tag)
	if err != nil {
		if tag != "" && httpclient.IsNotFound(err) {
			return notFoundWithSuggestions(ctx, out, tag)
		}
		return err
	}

	if len(response.Alternatives) == 0 {
		fmt.Fprintln(out, "📭 No alternatives registered")
		return nil
	}

	tags := make([]string, 0, len(response.Alternatives))
	for src := range response.Alternatives {
		tags = append(tags, src)
	}
	slices.Sort(tags)

	fmt.Fprintf(out, "🔀 %d source tag(s):\n\n", response.Rows)
	for _, src := range tags {
		printChain(out, src, response.Alternatives[src])
	}
	return nil
}

// printChain prints one row in routing order
func printChain(out io.Writer, src string, chain []httpclient.AlternativeEntry) {
	fmt.Fprintf(out, "%s\n", src)
	for i, entry := range chain {
		fmt.Fprintf(out, "  %d. %-40s priority %-6d (%s)\n", i+1, entry.Tag, entry.Priority, entry.Plugin)
	}
	fmt.Fprintln(out)
}

// notFoundWithSuggestions reports an unknown source tag along with the closest known ones
func notFoundWithSuggestions(ctx context.Context, out io.Writer, tag string) error {
	fmt.Fprintf(out, "🔍 No alternatives registered for '%s'\n", tag)

	all, err := client.ListAlternatives(ctx, "")
	if err != nil {
		return fmt.Errorf("no alternatives for tag %q", tag)
	}
	known := make([]string, 0, len(all.Alternatives))
	for src := range all.Alternatives {
		known = append(known, src)
	}

	if suggestions := suggestTags(tag, known); len(suggestions) > 0 {
		fmt.Fprintf(out, "💡 Did you mean: %s\n", strings.Join(suggestions, ", "))
	}
	return fmt.Errorf("no alternatives for tag %q", tag)
}

// suggestTags returns the known tags within edit distance of tag, closest first
func suggestTags(tag string, known []string) []string {
	threshold := max(2, len(tag)/4)

	type candidate struct {
		tag      string
		distance int
	}
	var candidates []candidate
	for _, k := range known {
		d := levenshtein.ComputeDistance(tag, k)
		if d <= threshold {
			candidates = append(candidates, candidate{tag: k, distance: d})
		}
	}

	slices.SortFunc(candidates, func(a, b candidate) int {
		if a.distance != b.distance {
			return a.distance - b.distance
		}
		return strings.Compare(a.tag, b.tag)
	})

	suggestions := make([]string, 0, maxSuggestions)
	for _, c := range candidates {
		if len(suggestions) == maxSuggestions {
			break
		}
		suggestions = append(suggestions, c.tag)
	}
	return suggestions
}
