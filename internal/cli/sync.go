package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jsamuelsen/quote-sync/internal/domain"
)

func newSyncCommand(rt *runtime) *cobra.Command {
	var (
		policy      string
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile with the remote source",
		Long: `Start a reconciliation run. New remote records merge automatically.
When records conflict the run pauses: pass --policy to resolve immediately,
or --interactive to choose a policy at a prompt. Otherwise the conflicts stay
pending for a later "quotectl resolve" or "quotectl discard".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if policy != "" {
				if _, err := domain.ParsePolicy(policy); err != nil {
					return err
				}
			}

			report, err := rt.client.Sync(cmd.Context())
			if err != nil {
				return err
			}

			if report.Outcome != "awaiting_resolution" {
				return rt.printReport(report)
			}

			chosen := domain.Policy(policy)

			if chosen == "" && interactive {
				if !rt.opts.json {
					rt.printConflicts(report.Conflicts)
				}

				chosen, err = promptPolicy(rt.in, rt.out, len(report.Conflicts))
				if err != nil {
					return err
				}
			}

			if chosen == "" {
				return rt.printReport(report)
			}

			resolved, err := rt.client.Resolve(cmd.Context(), chosen)
			if err != nil {
				return err
			}

			return rt.printReport(resolved)
		},
	}

	cmd.Flags().StringVarP(&policy, "policy", "p", "", "resolve conflicts with this policy ("+strings.Join(policyNames(), ", ")+")")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "prompt for a policy when conflicts are found")
	cmd.MarkFlagsMutuallyExclusive("policy", "interactive")

	return cmd
}

// promptPolicy asks for a policy by number or name. An empty answer or end
// of input leaves the conflicts pending and returns "".
func promptPolicy(in io.Reader, out io.Writer, conflicts int) (domain.Policy, error) {
	policies := domain.Policies()

	_, _ = fmt.Fprintf(out, "%d conflicts. Choose a policy:\n", conflicts)
	for i, p := range policies {
		_, _ = fmt.Fprintf(out, "  %d) %s\n", i+1, p)
	}

	scanner := bufio.NewScanner(in)

	for {
		_, _ = fmt.Fprint(out, "policy (blank to decide later): ")

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", fmt.Errorf("reading answer: %w", err)
			}

			_, _ = fmt.Fprintln(out)

			return "", nil
		}

		answer := strings.TrimSpace(scanner.Text())
		if answer == "" {
			return "", nil
		}

		if n, err := strconv.Atoi(answer); err == nil {
			if n >= 1 && n <= len(policies) {
				return policies[n-1], nil
			}
		} else if p, err := domain.ParsePolicy(answer); err == nil {
			return p, nil
		}

		_, _ = fmt.Fprintf(out, "unknown policy %q\n", answer)
	}
}
