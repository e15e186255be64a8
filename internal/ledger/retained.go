package ledger

import "chainledger/pkg/domain"

// RetainedDrawbacks lists the drawbacks carried into a jump for a character:
// everything the character marked retained in a strictly earlier jump they
// took part in, plus chain drawbacks when includeChainLevel is set. Expired
// and permanently bought-off drawbacks are left out. The result is sorted.
func RetainedDrawbacks(chain *domain.Chain, jumpID domain.JumpID, characterID domain.CharacterID, includeChainLevel bool) ([]domain.PurchaseID, error) {
	if _, _, err := lookup(chain, jumpID, characterID); err != nil {
		return nil, err
	}
	idx := chain.JumpIndex(jumpID)
	seq := chain.SequenceNumber(jumpID)

	candidates := domain.NewIDSet[domain.PurchaseID]()
	for _, earlier := range chain.JumpList[:max(idx, 0)] {
		ej := chain.Jumps[earlier]
		if ej == nil || !ej.HasCharacter(characterID) {
			continue
		}
		for pid := range ej.RetainedDrawbacks[characterID] {
			candidates.Add(pid)
		}
	}
	if includeChainLevel {
		companionsBenefit := chain.Settings.ChainDrawbacksForCompanions
		primary := chain.IsPrimary(characterID)
		for _, pid := range chain.ChainDrawbacks {
			p := chain.Purchases[pid]
			if p == nil {
				continue
			}
			if primary || companionsBenefit || p.CompanionStipend > 0 {
				candidates.Add(pid)
			}
		}
	}

	out := make([]domain.PurchaseID, 0, len(candidates))
	for _, pid := range candidates.Sorted() {
		p := chain.Purchases[pid]
		if p == nil {
			continue
		}
		if expired(chain, p, seq) {
			continue
		}
		if boughtOffBefore(chain, p, idx, jumpID, characterID) {
			continue
		}
		out = append(out, pid)
	}
	return out, nil
}

// expired reports whether the drawback's explicit duration, counted in
// sequence numbers from its origin jump, has elapsed by seq. Chain drawbacks
// originate at sequence 0.
func expired(chain *domain.Chain, p *domain.Purchase, seq int) bool {
	if p.PersistsIndefinitely() {
		return false
	}
	origin := 0
	if p.Jump != nil {
		origin = chain.SequenceNumber(*p.Jump)
	}
	return seq-origin >= *p.Duration
}

func boughtOffBefore(chain *domain.Chain, p *domain.Purchase, idx int, jumpID domain.JumpID, characterID domain.CharacterID) bool {
	if p.Buyoff == nil {
		return false
	}
	if p.Buyoff.Jump == jumpID && p.Buyoff.Character == characterID {
		return false
	}
	at := chain.JumpIndex(p.Buyoff.Jump)
	return at >= 0 && at <= idx
}
