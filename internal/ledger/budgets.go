// Package ledger derives budgets, stipends, supplement budgets and bank
// balances from the chain. Every function is a pure read of the graph; nothing
// is cached.
package ledger

import (
	"chainledger/pkg/domain"
	"fmt"
)

// Budget is the available balance of one character in one jump.
type Budget struct {
	Currencies map[domain.CurrencyID]int                      `json:"currencies"`
	Stipends   map[domain.CurrencyID]map[domain.SubtypeID]int `json:"stipends"`
}

func newBudget(j *domain.Jump) Budget {
	b := Budget{
		Currencies: make(map[domain.CurrencyID]int, len(j.Currencies)),
		Stipends:   make(map[domain.CurrencyID]map[domain.SubtypeID]int, len(j.Currencies)),
	}
	for id := range j.Currencies {
		b.Currencies[id] = 0
		b.Stipends[id] = map[domain.SubtypeID]int{}
	}
	return b
}

func (b Budget) addStipend(currency domain.CurrencyID, subtype domain.SubtypeID, amount int) {
	pool, ok := b.Stipends[currency]
	if !ok {
		pool = map[domain.SubtypeID]int{}
		b.Stipends[currency] = pool
	}
	pool[subtype] += amount
}

// Negative reports whether any currency total is below zero.
func (b Budget) Negative() bool {
	for _, v := range b.Currencies {
		if v < 0 {
			return true
		}
	}
	return false
}

// lookup validates the jump/character pair shared by every ledger query.
func lookup(chain *domain.Chain, jumpID domain.JumpID, characterID domain.CharacterID) (*domain.Jump, *domain.Character, error) {
	j, err := chain.Jump(jumpID)
	if err != nil {
		return nil, nil, err
	}
	ch, err := chain.Character(characterID)
	if err != nil {
		return nil, nil, err
	}
	if !j.HasCharacter(characterID) {
		return nil, nil, fmt.Errorf("character %d is not part of jump %d: %w", characterID, jumpID, domain.ErrInvalid)
	}
	return j, ch, nil
}

// ComputeBudgets returns the remaining currency totals and stipend pools of a
// character in a jump. Totals may be negative when the character overspends.
func ComputeBudgets(chain *domain.Chain, jumpID domain.JumpID, characterID domain.CharacterID) (Budget, error) {
	j, ch, err := lookup(chain, jumpID, characterID)
	if err != nil {
		return Budget{}, err
	}
	b := newBudget(j)
	itemSubtype, hasItemSubtype := j.ItemSubtype()
	creditItemStipend := func(currency domain.CurrencyID, amount int) {
		if hasItemSubtype && amount != 0 {
			b.addStipend(currency, itemSubtype, amount)
		}
	}

	// starting funds
	if ch.Primary {
		for id, cur := range j.Currencies {
			b.Currencies[id] = cur.Budget
		}
		for id, st := range j.Subtypes {
			b.addStipend(st.Currency, id, st.Stipend)
		}
	} else {
		for _, owner := range j.Participants() {
			for _, pid := range j.Purchases[owner] {
				p := chain.Purchases[pid]
				if p == nil || p.Kind != domain.KindImport || p.Import == nil || !p.Import.Characters.Has(characterID) {
					continue
				}
				for cur, amount := range p.Import.Allowances {
					b.Currencies[cur] += amount
				}
				for cur, pools := range p.Import.Stipends {
					for sub, amount := range pools {
						b.addStipend(cur, sub, amount)
					}
				}
			}
		}
	}

	// local drawbacks and scenarios
	for _, pid := range j.Drawbacks[characterID] {
		p := chain.Purchases[pid]
		if p == nil {
			continue
		}
		b.Currencies[p.Currency] += p.Cost()
		creditItemStipend(p.Currency, p.ItemStipend)
	}

	for _, ex := range j.CurrencyExchanges[characterID] {
		b.Currencies[ex.From] -= ex.FromAmount
		b.Currencies[ex.To] += ex.ToAmount
	}

	retained, err := RetainedDrawbacks(chain, jumpID, characterID, true)
	if err != nil {
		return Budget{}, err
	}
	for _, pid := range retained {
		p := chain.Purchases[pid]
		if p.Kind == domain.KindChainDrawback && !ch.Primary && !chain.Settings.ChainDrawbacksForCompanions {
			b.Currencies[domain.PrimaryCurrency] += p.CompanionStipend
			continue
		}
		value, active := OverrideValue(j, characterID, p)
		b.Currencies[domain.PrimaryCurrency] += value
		if active {
			creditItemStipend(domain.PrimaryCurrency, p.ItemStipend)
		}
	}

	if chain.Bank.Enabled {
		b.Currencies[domain.PrimaryCurrency] -= j.BankDeposits[characterID]
	}

	for _, amount := range j.SupplementInvestments[characterID] {
		b.Currencies[domain.PrimaryCurrency] -= amount
	}

	for sub, summaries := range j.SubsystemSummaries[characterID] {
		for _, summary := range summaries {
			for cur, amount := range summary.Stipend {
				b.addStipend(cur, sub, amount)
			}
		}
	}

	for _, origin := range j.Origins[characterID] {
		b.Currencies[domain.PrimaryCurrency] -= origin.Cost
	}

	// spending waterfall: stipends before the general budget
	for _, pid := range j.Purchases[characterID] {
		p := chain.Purchases[pid]
		if p == nil || p.Kind.IsSupplementKind() {
			continue
		}
		cost := p.Cost()
		paid := 0
		if p.Subtype != nil {
			available := b.Stipends[p.Currency][*p.Subtype]
			paid = max(0, min(available, cost))
			if paid != 0 {
				b.addStipend(p.Currency, *p.Subtype, -paid)
			}
		}
		b.Currencies[p.Currency] -= cost - paid
	}
	return b, nil
}

// OverrideValue returns the contribution of a retained or chain drawback to
// the jump under the character's override for it. active is false when the
// drawback contributes nothing positive (excluded or bought off).
func OverrideValue(j *domain.Jump, characterID domain.CharacterID, p *domain.Purchase) (value int, active bool) {
	value = p.Cost()
	override, ok := j.DrawbackOverrides[characterID][p.ID]
	if !ok {
		return value, true
	}
	if override.Modifier != "" {
		value = override.Modifier.Apply(p.Value, override.CustomValue)
	}
	switch override.State {
	case domain.OverrideExcluded:
		return 0, false
	case domain.OverrideBoughtOffTemporarily, domain.OverrideBoughtOffPermanently:
		return -value, false
	default:
		return value, true
	}
}
