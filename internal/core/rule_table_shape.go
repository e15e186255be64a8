package core

import (
	"chainledger/pkg/domain"
	"fmt"
)

// TableShapeRule checks that every per-character table of every jump is
// keyed by exactly the jump's participants.
func TableShapeRule() domain.Rule {
	return tableShapeRule{}
}

type tableShapeRule struct{}

func (tableShapeRule) Name() string { return "table_shape" }

func (tableShapeRule) Evaluate(chain *domain.Chain, _ []domain.Record) domain.Result {
	res := domain.Result{}
	for _, jid := range domain.SortedKeys(chain.Jumps) {
		j := chain.Jumps[jid]
		for _, table := range domain.CharacterTables {
			keys := TableKeys(j, table)
			if keys.Equal(j.Characters) {
				continue
			}
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "table_shape",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("jump %d table %s is keyed by %v, participants are %v", jid, table, keys.Sorted(), j.Participants()),
				Entity:   domain.EntityJump,
				ID:       int(jid),
			})
		}
	}
	return res
}

// TableKeys returns the character keys of the named per-character table.
func TableKeys(j *domain.Jump, table string) domain.IDSet[domain.CharacterID] {
	switch table {
	case "purchases":
		return keySet(j.Purchases)
	case "drawbacks":
		return keySet(j.Drawbacks)
	case "retained_drawbacks":
		return keySet(j.RetainedDrawbacks)
	case "drawback_overrides":
		return keySet(j.DrawbackOverrides)
	case "origins":
		return keySet(j.Origins)
	case "bank_deposits":
		return keySet(j.BankDeposits)
	case "currency_exchanges":
		return keySet(j.CurrencyExchanges)
	case "supplement_purchases":
		return keySet(j.SupplementPurchases)
	case "supplement_investments":
		return keySet(j.SupplementInvestments)
	case "subsystem_summaries":
		return keySet(j.SubsystemSummaries)
	case "narratives":
		return keySet(j.Narratives)
	case "alt_forms":
		return keySet(j.AltForms)
	case "budgets":
		return keySet(j.Budgets)
	case "stipends":
		return keySet(j.Stipends)
	default:
		panic("core: unknown character table " + table)
	}
}

func keySet[V any](m map[domain.CharacterID]V) domain.IDSet[domain.CharacterID] {
	out := domain.NewIDSet[domain.CharacterID]()
	for k := range m {
		out.Add(k)
	}
	return out
}
