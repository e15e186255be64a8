package main

import (
	"chainledger/internal/core"
	"chainledger/pkg/domain"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newLoadCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "load file",
		Short: "Replace the stored chain with a JSON chain document",
		Args:  exactArgs("file"),
		RunE: withSession(opts, func(cmd *cobra.Command, s *session, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if err := s.svc.ImportChain(raw); err != nil {
				return err
			}
			n, err := s.svc.Flush(cmd.Context())
			if err != nil {
				return err
			}
			chain := s.svc.Chain()
			return s.render(map[string]any{"chain": chain.Name, "records": n}, func() {
				s.printf("loaded chain %q: %d jumps, %d characters\n", chain.Name, len(chain.JumpList), len(chain.CharacterList))
			})
		}),
	}
}

// newVerifyCommand checks a document without touching storage.
func newVerifyCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify file",
		Short: "Check a JSON chain document against the integrity rules",
		Args:  exactArgs("file"),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var res domain.Result
			var violation domain.RuleViolationError
			if err := core.NewService(nil).ImportChain(raw); errors.As(err, &violation) {
				res = violation.Result
			} else if err != nil {
				return err
			}
			out := newOutput(cmd, opts)
			if err := out.render(res, func() {
				if len(res.Violations) == 0 {
					out.printf("no violations\n")
				}
				for _, v := range res.Violations {
					out.printf("%s\t%s\t%s %d: %s\n", v.Severity, v.Rule, v.Entity, v.ID, v.Message)
				}
			}); err != nil {
				return err
			}
			if res.HasBlocking() {
				return &exitError{code: exitFailure, err: fmt.Errorf("%s: %d violation(s)", args[0], len(res.Violations))}
			}
			return nil
		},
	}
}

func newPatchesCommand(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "patches",
		Short: "Show the newest entries of the storage patch log",
		Args:  exactArgs(),
		RunE: withSession(opts, func(cmd *cobra.Command, s *session, _ []string) error {
			if limit <= 0 {
				return usageErrorf("--limit must be positive")
			}
			entries, err := s.svc.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return s.render(entries, func() {
				for _, e := range entries {
					s.printf("%d\t%s\t%s\t%s\t%s\n", e.Seq, e.AppliedAt.Format(time.RFC3339), e.Batch, e.Action, e.Path)
				}
			})
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries to show")
	return cmd
}
