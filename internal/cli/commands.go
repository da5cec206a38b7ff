package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jsamuelsen/quote-sync/internal/adapters/http/dto"
	"github.com/jsamuelsen/quote-sync/internal/domain"
)

// categoryFlag is an optional --category. Unset means all categories.
type categoryFlag struct {
	value string
}

func (f *categoryFlag) bind(cmd *cobra.Command, usage string) {
	cmd.Flags().StringVarP(&f.value, "category", "c", "", usage)
}

func (f *categoryFlag) get(cmd *cobra.Command) *string {
	if !cmd.Flags().Changed("category") {
		return nil
	}

	v := f.value

	return &v
}

func newListCommand(rt *runtime) *cobra.Command {
	var category categoryFlag

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List quotes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			quotes, err := rt.client.List(cmd.Context(), category.get(cmd))
			if err != nil {
				return err
			}

			if rt.opts.json {
				return rt.printJSON(dto.QuotesFromDomain(quotes))
			}

			for _, q := range quotes {
				d := domain.Render(q)
				rt.printf("%s  %s %s\n", q.ID, d.Text, d.Category)
			}

			return nil
		},
	}

	category.bind(cmd, "only quotes in this category")

	return cmd
}

func newAddCommand(rt *runtime) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "add TEXT",
		Short: "Add a quote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := rt.client.Add(cmd.Context(), args[0], category)
			if err != nil {
				return err
			}

			if rt.opts.json {
				return rt.printJSON(dto.QuoteFromDomain(q))
			}

			rt.printf("added %s\n", q.ID)

			return nil
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "category of the new quote")
	_ = cmd.MarkFlagRequired("category")

	return cmd
}

func newRandomCommand(rt *runtime) *cobra.Command {
	var (
		category categoryFlag
		all      bool
	)

	cmd := &cobra.Command{
		Use:   "random",
		Short: "Show a random quote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			selected := category.get(cmd)
			if selected == nil && !all {
				saved, err := rt.client.Filter(cmd.Context())
				if err != nil {
					return err
				}

				selected = saved
			}

			resp, err := rt.client.Random(cmd.Context(), selected)
			if err != nil {
				return err
			}

			if rt.opts.json {
				return rt.printJSON(resp)
			}

			rt.printf("%s\n%s\n", resp.Display.Text, resp.Display.Category)

			return nil
		},
	}

	category.bind(cmd, "pick from this category instead of the saved filter")
	cmd.Flags().BoolVar(&all, "all", false, "ignore the saved filter")

	return cmd
}

func newCategoriesCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List categories in first-seen order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			categories, err := rt.client.Categories(cmd.Context())
			if err != nil {
				return err
			}

			if rt.opts.json {
				return rt.printJSON(dto.CategoriesResponse{Categories: categories})
			}

			for _, c := range categories {
				rt.printf("%s\n", c)
			}

			return nil
		},
	}
}

func newFilterCommand(rt *runtime) *cobra.Command {
	var clearFilter bool

	cmd := &cobra.Command{
		Use:   "filter [CATEGORY]",
		Short: "Show or set the saved category filter",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			switch {
			case clearFilter && len(args) > 0:
				return fmt.Errorf("%w: --clear takes no category", errUsage)
			case clearFilter:
				if err := rt.client.SetFilter(ctx, nil); err != nil {
					return err
				}
			case len(args) == 1:
				category := args[0]
				if err := rt.client.SetFilter(ctx, &category); err != nil {
					return err
				}
			}

			current, err := rt.client.Filter(ctx)
			if err != nil {
				return err
			}

			if rt.opts.json {
				return rt.printJSON(dto.FilterResponse{Category: current})
			}

			if current == nil {
				rt.printf("all\n")
				return nil
			}

			rt.printf("%s\n", *current)

			return nil
		},
	}

	cmd.Flags().BoolVar(&clearFilter, "clear", false, "select all categories")

	return cmd
}

func newExportCommand(rt *runtime) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the collection as a JSON document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := rt.client.Export(cmd.Context())
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err = rt.out.Write(doc)
				return err
			}

			if err := os.WriteFile(output, doc, 0o600); err != nil {
				return fmt.Errorf("writing export: %w", err)
			}

			rt.logger.Info("export written", "path", output, "bytes", len(doc))

			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write; stdout when empty")

	return cmd
}

func newImportCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Replace the collection with a JSON document (- reads stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				doc []byte
				err error
			)

			if args[0] == "-" {
				doc, err = io.ReadAll(rt.in)
			} else {
				doc, err = os.ReadFile(args[0])
			}

			if err != nil {
				return fmt.Errorf("reading import: %w", err)
			}

			result, err := rt.client.Import(cmd.Context(), doc)
			if err != nil {
				return err
			}

			if rt.opts.json {
				return rt.printJSON(result)
			}

			rt.printf("imported %d quotes (%d new ids)\n", result.Imported, result.AssignedIDs)

			return nil
		},
	}
}

func newStatusCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the sync status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := rt.client.Status(cmd.Context())
			if err != nil {
				return err
			}

			if rt.opts.json {
				return rt.printJSON(status)
			}

			rt.printf("status:  %s\n", status.Status)
			rt.printf("state:   %s\n", status.State)

			if status.LastSyncAt != nil {
				rt.printf("last:    %s\n", status.LastSyncAt.Format("2006-01-02 15:04:05"))
			}

			if status.LastError != "" {
				rt.printf("error:   %s\n", status.LastError)
			}

			if status.PendingCount > 0 {
				rt.printf("pending: %d conflicts\n", status.PendingCount)
			}

			return nil
		},
	}
}

func newConflictsCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "List conflicts awaiting a decision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conflicts, err := rt.client.Conflicts(cmd.Context())
			if err != nil {
				return err
			}

			if rt.opts.json {
				return rt.printJSON(dto.ConflictsResponse{Conflicts: conflicts})
			}

			rt.printConflicts(conflicts)

			return nil
		},
	}
}

func newResolveCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:       "resolve POLICY",
		Short:     "Apply a policy to the pending conflicts",
		Args:      cobra.ExactArgs(1),
		ValidArgs: policyNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := domain.ParsePolicy(args[0])
			if err != nil {
				return err
			}

			report, err := rt.client.Resolve(cmd.Context(), policy)
			if err != nil {
				return err
			}

			return rt.printReport(report)
		},
	}
}

func newDiscardCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "discard",
		Short: "Drop the pending conflicts without changing any quote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			discarded, err := rt.client.Discard(cmd.Context())
			if err != nil {
				return err
			}

			if rt.opts.json {
				return rt.printJSON(dto.DiscardResponse{Discarded: discarded})
			}

			if discarded {
				rt.printf("pending conflicts discarded\n")
			} else {
				rt.printf("nothing pending\n")
			}

			return nil
		},
	}
}

func (rt *runtime) printReport(report dto.SyncReportResponse) error {
	if rt.opts.json {
		return rt.printJSON(report)
	}

	switch report.Outcome {
	case "merged":
		rt.printf("synced: %d added, %d unchanged\n", report.Added, report.Unchanged)
	case "resolved":
		rt.printf("resolved with %s: %d replaced, %d inserted, %d added\n",
			report.Policy, report.Replaced, report.Inserted, report.Added)
	case "skipped":
		rt.printf("sync skipped while %s\n", strings.ReplaceAll(report.State, "_", " "))
	case "awaiting_resolution":
		rt.printf("%d conflicts need a decision\n", len(report.Conflicts))
		rt.printConflicts(report.Conflicts)
	default:
		rt.printf("%s\n", report.Outcome)
	}

	return nil
}

func (rt *runtime) printConflicts(conflicts []dto.ConflictResponse) {
	for i, c := range conflicts {
		rt.printf("%d. %s\n", i+1, c.Local.ID)
		rt.printf("   local:  %q [%s] @%d\n", c.Local.Text, c.Local.Category, c.Local.Timestamp)
		rt.printf("   remote: %q [%s] @%d\n", c.Remote.Text, c.Remote.Category, c.Remote.Timestamp)
	}
}

func policyNames() []string {
	policies := domain.Policies()
	names := make([]string, 0, len(policies))

	for _, p := range policies {
		names = append(names, string(p))
	}

	return names
}
