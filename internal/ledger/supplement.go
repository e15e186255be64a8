package ledger

import "chainledger/pkg/domain"

// SupplementBudget returns the points a character has available in a
// supplement at a jump. The walk covers every jump from the start of the chain
// (or from the target chunk's root for single-jump supplements) through the
// end of the target chunk.
func SupplementBudget(chain *domain.Chain, jumpID domain.JumpID, characterID domain.CharacterID, supplementID domain.SupplementID) (int, error) {
	if _, _, err := lookup(chain, jumpID, characterID); err != nil {
		return 0, err
	}
	sup, err := chain.Supplement(supplementID)
	if err != nil {
		return 0, err
	}
	w := supplementWalk{
		chain:    chain,
		sup:      sup,
		visiting: domain.NewIDSet[domain.CharacterID](),
		grantors: map[domain.CharacterID]int{},
	}
	return w.budget(jumpID, characterID), nil
}

type supplementWalk struct {
	chain *domain.Chain
	sup   *domain.ChainSupplement
	// characters whose budget is currently being evaluated up the call stack
	visiting domain.IDSet[domain.CharacterID]
	// grantor budgets already computed during this query
	grantors map[domain.CharacterID]int
}

func (w supplementWalk) eligible(id domain.CharacterID) bool {
	if w.chain.IsPrimary(id) {
		return true
	}
	return w.sup.CompanionAccess == domain.AccessAvailable || w.sup.CompanionAccess == domain.AccessCommunal
}

// span returns the canonical index range [start, end] walked for a query at jumpID.
func (w supplementWalk) span(jumpID domain.JumpID) (int, int) {
	end := w.chain.ChunkEnd(jumpID)
	start := 0
	if w.sup.SingleJump {
		start = w.chain.JumpIndex(w.chain.ChunkRoot(jumpID))
	}
	return start, end
}

func (w supplementWalk) budget(jumpID domain.JumpID, characterID domain.CharacterID) int {
	w.visiting.Add(characterID)
	defer w.visiting.Remove(characterID)

	communal := w.sup.CompanionAccess == domain.AccessCommunal
	eligible := w.eligible(characterID)
	start, end := w.span(jumpID)

	total := 0
	if eligible {
		total += w.sup.InitialStipend
	}
	visited := domain.NewIDSet[domain.JumpID]()
	for _, jid := range w.chain.JumpList[start : end+1] {
		j := w.chain.Jumps[jid]
		if j == nil || !j.UseSupplements {
			continue
		}
		var contributors []domain.CharacterID
		switch {
		case communal:
			contributors = j.Participants()
		case j.HasCharacter(characterID):
			contributors = []domain.CharacterID{characterID}
		}
		if len(contributors) == 0 {
			continue
		}
		if eligible && visited.Add(w.chain.ChunkRoot(jid)) {
			total += w.sup.PerJumpStipend
		}
		for _, c := range contributors {
			total += domain.FloorDiv(j.SupplementInvestments[c][w.sup.ID]*w.sup.InvestmentRatio, 100)
			for _, pid := range j.SupplementPurchases[c][w.sup.ID] {
				if p := w.chain.Purchases[pid]; p != nil {
					total -= p.Cost()
				}
			}
		}
	}

	if w.sup.CompanionAccess == domain.AccessPartial {
		total += w.grants(jumpID, characterID, start, end)
	}
	return total
}

// grants sums the supplement-import grants other characters made to
// characterID. A grantor already being evaluated further up the stack
// contributes its flat allowance only, which breaks grant cycles. Each
// grantor's budget is evaluated at most once per query.
func (w supplementWalk) grants(jumpID domain.JumpID, characterID domain.CharacterID, start, end int) int {
	total := 0
	for _, jid := range w.chain.JumpList[start : end+1] {
		j := w.chain.Jumps[jid]
		if j == nil {
			continue
		}
		for _, owner := range j.Participants() {
			if owner == characterID {
				continue
			}
			for _, pid := range j.SupplementPurchases[owner][w.sup.ID] {
				p := w.chain.Purchases[pid]
				if p == nil || p.Kind != domain.KindSupplementImport || p.SupplementImport == nil {
					continue
				}
				grant := p.SupplementImport
				if !grant.Characters.Has(characterID) {
					continue
				}
				total += grant.Allowance
				if grant.Percentage != 0 && !w.visiting.Has(owner) {
					total += domain.FloorDiv(grant.Percentage*w.grantorBudget(jumpID, owner), 100)
				}
			}
		}
	}
	return total
}

func (w supplementWalk) grantorBudget(jumpID domain.JumpID, owner domain.CharacterID) int {
	if v, ok := w.grantors[owner]; ok {
		return v
	}
	v := w.budget(jumpID, owner)
	w.grantors[owner] = v
	return v
}
