package main

import (
	"chainledger/internal/ledger"
	"chainledger/pkg/domain"

	"github.com/spf13/cobra"
)

var participantArgs = []string{"jump", "character"}

func parseParticipant(args []string) (domain.JumpID, domain.CharacterID, error) {
	ids, err := parseIDs(participantArgs, args[:2])
	if err != nil {
		return 0, 0, err
	}
	return domain.JumpID(ids[0]), domain.CharacterID(ids[1]), nil
}

func newBudgetCommand(opts *rootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "budget [jump character]",
		Short: "Compute and store the budget of a jump participant",
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return exactArgs()(cmd, args)
			}
			return exactArgs(participantArgs...)(cmd, args)
		},
		RunE: withSession(opts, func(_ *cobra.Command, s *session, args []string) error {
			if all {
				changed, err := s.svc.RecomputeBudgets()
				if err != nil {
					return err
				}
				return s.render(map[string]int{"changed": changed}, func() {
					s.printf("%d budgets updated\n", changed)
				})
			}
			jumpID, characterID, err := parseParticipant(args)
			if err != nil {
				return err
			}
			b, err := s.svc.ComputeBudgets(jumpID, characterID)
			if err != nil {
				return err
			}
			jump := s.svc.Chain().Jumps[jumpID]
			return s.render(b, func() { printBudget(s, jump, b) })
		}),
	}
	cmd.Flags().BoolVar(&all, "all", false, "recompute every participant of every jump")
	return cmd
}

func printBudget(s *session, jump *domain.Jump, b ledger.Budget) {
	for _, cur := range domain.SortedKeys(b.Currencies) {
		c := jump.Currencies[cur]
		s.printf("%s (%s): %d\n", c.Name, c.Abbrev, b.Currencies[cur])
		for _, sub := range domain.SortedKeys(b.Stipends[cur]) {
			if v := b.Stipends[cur][sub]; v != 0 {
				s.printf("  %s stipend: %d\n", jump.Subtypes[sub].Name, v)
			}
		}
	}
}

func newBankCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "bank jump character",
		Short: "Show the pooled bank balance available at a jump",
		Args:  exactArgs(participantArgs...),
		RunE: withSession(opts, func(_ *cobra.Command, s *session, args []string) error {
			jumpID, characterID, err := parseParticipant(args)
			if err != nil {
				return err
			}
			balance, err := s.svc.BankBalance(jumpID, characterID)
			if err != nil {
				return err
			}
			return s.render(map[string]int{"balance": balance}, func() {
				s.printf("bank balance: %d\n", balance)
			})
		}),
	}
}

func newSupplementCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "supplement jump character supplement",
		Short: "Show a participant's budget in a chain supplement",
		Args:  exactArgs("jump", "character", "supplement"),
		RunE: withSession(opts, func(_ *cobra.Command, s *session, args []string) error {
			jumpID, characterID, err := parseParticipant(args)
			if err != nil {
				return err
			}
			raw, err := parseID("supplement", args[2])
			if err != nil {
				return err
			}
			supID := domain.SupplementID(raw)
			budget, err := s.svc.SupplementBudget(jumpID, characterID, supID)
			if err != nil {
				return err
			}
			sup := s.svc.Chain().Supplements[supID]
			return s.render(map[string]any{"supplement": sup.Name, "budget": budget}, func() {
				s.printf("%s: %d %s\n", sup.Name, budget, sup.Currency)
			})
		}),
	}
}

type retainedDrawback struct {
	ID    domain.PurchaseID   `json:"id"`
	Name  string              `json:"name"`
	Kind  domain.PurchaseKind `json:"kind"`
	Value int                 `json:"value"`
}

func newRetainedCommand(opts *rootOptions) *cobra.Command {
	var chainLevel bool
	cmd := &cobra.Command{
		Use:   "retained jump character",
		Short: "List the drawbacks carried into a jump",
		Args:  exactArgs(participantArgs...),
		RunE: withSession(opts, func(_ *cobra.Command, s *session, args []string) error {
			jumpID, characterID, err := parseParticipant(args)
			if err != nil {
				return err
			}
			ids, err := s.svc.RetainedDrawbacks(jumpID, characterID, chainLevel)
			if err != nil {
				return err
			}
			chain := s.svc.Chain()
			out := make([]retainedDrawback, 0, len(ids))
			for _, id := range ids {
				p := chain.Purchases[id]
				value, _ := ledger.OverrideValue(chain.Jumps[jumpID], characterID, p)
				out = append(out, retainedDrawback{ID: id, Name: p.Name, Kind: p.Kind, Value: value})
			}
			return s.render(out, func() {
				if len(out) == 0 {
					s.printf("no retained drawbacks\n")
				}
				for _, d := range out {
					s.printf("%d\t%s\t%d\n", int(d.ID), d.Name, d.Value)
				}
			})
		}),
	}
	cmd.Flags().BoolVar(&chainLevel, "chain-drawbacks", false, "include chain drawbacks")
	return cmd
}
