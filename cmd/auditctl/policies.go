package main

import (
	"bytes"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	attestation "zerotrust/internal/attestation/models"
	"zerotrust/internal/policy/loader"
	policy "zerotrust/internal/policy/models"
)

func newLintPoliciesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint-policies <path>",
		Short: "Validate policy documents before publishing",
		Long: `Checks a policy file or directory against the policy schema, compiles every
rule against the attribute schema, and reports scopes bound to conflicting
definitions, including clashes with the built-in baseline tiers.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			l, err := loader.New()
			if err != nil {
				return err
			}
			docs, err := l.Load(args[0])
			if err != nil {
				return err
			}

			printHeader(out, "Policy lint")
			schema := attestation.DefaultSchema()
			seen := make(map[string]*policy.Policy)
			for _, doc := range policy.Baseline() {
				p, err := policy.NewPolicy(doc, schema, time.Time{})
				if err != nil {
					return fmt.Errorf("baseline %s: %w", doc.ScopeID, err)
				}
				seen[doc.ScopeID] = p
			}

			failed := 0
			for _, doc := range docs {
				p, err := policy.NewPolicy(doc, schema, time.Time{})
				if err != nil {
					printError(out, fmt.Sprintf("%s: %v", doc.ScopeID, err))
					failed++
					continue
				}
				if prev, ok := seen[doc.ScopeID]; ok && !bytes.Equal(prev.Hash, p.Hash) {
					printError(out, fmt.Sprintf("%s: scope already bound to a different definition", doc.ScopeID))
					failed++
					continue
				}
				seen[doc.ScopeID] = p
				printSuccess(out, fmt.Sprintf("%s (%s)", doc.ScopeID, doc.Jurisdiction))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d policies failed", failed, len(docs))
			}
			return nil
		},
	}
}
