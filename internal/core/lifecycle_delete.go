package core

import (
	"chainledger/pkg/domain"
	"slices"
)

// DeletePurchase removes a purchase and every reference to it. Subsystem
// purchases bought through it are deleted first. Deleting an import drops
// the companions it was the last grant for.
func (s *Store) DeletePurchase(id domain.PurchaseID) error {
	defer s.begin("delete_purchase")()
	if _, err := s.chain.Purchase(id); err != nil {
		return err
	}
	s.deletePurchase(id)
	return nil
}

func (s *Store) deletePurchase(id domain.PurchaseID) {
	c := s.chain
	p, ok := c.Purchases[id]
	if !ok {
		return
	}
	var j *domain.Jump
	if p.Jump != nil {
		j = c.Jumps[*p.Jump]
	}
	if j != nil && p.Subtype != nil {
		if idx, ok := s.summaryIndex(j, p.Character, *p.Subtype, id); ok {
			children := slices.Clone(j.SubsystemSummaries[p.Character][*p.Subtype][idx].Subpurchases)
			for _, child := range children {
				s.deletePurchase(child)
			}
			idx, _ = s.summaryIndex(j, p.Character, *p.Subtype, id)
			summaries := j.SubsystemSummaries[p.Character]
			summaries[*p.Subtype] = slices.Delete(summaries[*p.Subtype], idx, idx+1)
			if len(summaries[*p.Subtype]) == 0 {
				delete(summaries, *p.Subtype)
			}
			s.pushJumpTable(j, "subsystem_summaries", p.Character)
		}
	}

	delete(c.Purchases, id)
	s.unlinkEverywhere(id)
	if p.Group != nil {
		if g, err := c.PurchaseGroup(p.Character, *p.Group); err == nil {
			g.Components, _ = domain.RemoveID(g.Components, id)
			s.push(domain.ActionUpdate, domain.EntityPurchaseGroup, p.Character, g.ID, "components")
		}
	}
	s.adjustCounters(p, -1)
	s.push(domain.ActionDelete, domain.EntityPurchase, id)
	s.observer.Cascade(domain.EntityPurchase, int(id))

	if p.Kind == domain.KindImport && j != nil {
		s.pruneUnreachableCompanions(j)
	}
}

// unlinkEverywhere strips a purchase ID from every list, set and map that
// may reference it.
func (s *Store) unlinkEverywhere(id domain.PurchaseID) {
	c := s.chain
	var removed bool
	if c.ChainDrawbacks, removed = domain.RemoveID(c.ChainDrawbacks, id); removed {
		s.push(domain.ActionUpdate, "chain_drawbacks")
	}
	for _, jid := range c.JumpList {
		j := c.Jumps[jid]
		for _, cid := range j.Participants() {
			if j.Purchases[cid], removed = domain.RemoveID(j.Purchases[cid], id); removed {
				s.pushJumpTable(j, "purchases", cid)
			}
			if j.Drawbacks[cid], removed = domain.RemoveID(j.Drawbacks[cid], id); removed {
				s.pushJumpTable(j, "drawbacks", cid)
			}
			if j.RetainedDrawbacks[cid].Remove(id) {
				s.pushJumpTable(j, "retained_drawbacks", cid)
			}
			if _, ok := j.DrawbackOverrides[cid][id]; ok {
				delete(j.DrawbackOverrides[cid], id)
				s.pushJumpTable(j, "drawback_overrides", cid)
			}
			for sid, list := range j.SupplementPurchases[cid] {
				if j.SupplementPurchases[cid][sid], removed = domain.RemoveID(list, id); removed {
					s.push(domain.ActionUpdate, domain.EntityJump, jid, "supplement_purchases", cid, sid)
				}
			}
			for sub, summaries := range j.SubsystemSummaries[cid] {
				for i := range summaries {
					if summaries[i].Subpurchases, removed = domain.RemoveID(summaries[i].Subpurchases, id); removed {
						s.push(domain.ActionUpdate, domain.EntityJump, jid, "subsystem_summaries", cid, sub)
					}
				}
			}
		}
	}
}

// pruneUnreachableCompanions removes companions no import in the jump grants.
func (s *Store) pruneUnreachableCompanions(j *domain.Jump) {
	reachable := s.importedCompanions(j)
	for _, cid := range j.Participants() {
		if s.chain.IsPrimary(cid) || reachable.Has(cid) {
			continue
		}
		s.removeCharacterFromJump(j, cid)
	}
}

func (s *Store) importedCompanions(j *domain.Jump) domain.IDSet[domain.CharacterID] {
	reachable := domain.NewIDSet[domain.CharacterID]()
	for _, owner := range j.Participants() {
		for _, pid := range j.Purchases[owner] {
			p := s.chain.Purchases[pid]
			if p == nil || p.Kind != domain.KindImport || p.Import == nil {
				continue
			}
			for cid := range p.Import.Characters {
				reachable.Add(cid)
			}
		}
	}
	return reachable
}

// RemoveCharacterFromJump drops a companion from a jump along with every
// purchase, alt-form and buyoff they hold there. Primary characters take part
// in every jump and cannot be removed individually.
func (s *Store) RemoveCharacterFromJump(jumpID domain.JumpID, characterID domain.CharacterID) error {
	defer s.begin("remove_character_from_jump")()
	j, err := s.chain.Jump(jumpID)
	if err != nil {
		return err
	}
	if _, err := s.chain.Character(characterID); err != nil {
		return err
	}
	if s.chain.IsPrimary(characterID) {
		return domain.Invalidf("primary character %d takes part in every jump", characterID)
	}
	s.removeCharacterFromJump(j, characterID)
	return nil
}

func (s *Store) removeCharacterFromJump(j *domain.Jump, cid domain.CharacterID) {
	key := jumpMember{jump: j.ID, character: cid}
	if !j.HasCharacter(cid) || s.removing[key] {
		return
	}
	s.removing[key] = true
	defer delete(s.removing, key)

	s.stripGrantsInJump(j, cid)

	owned := slices.Clone(j.Purchases[cid])
	owned = append(owned, j.Drawbacks[cid]...)
	for _, sid := range domain.SortedKeys(j.SupplementPurchases[cid]) {
		owned = append(owned, j.SupplementPurchases[cid][sid]...)
	}
	for _, pid := range owned {
		s.deletePurchase(pid)
	}
	for _, fid := range slices.Clone(j.AltForms[cid]) {
		s.deleteAltForm(fid)
	}
	s.clearBuyoffs(func(b domain.Buyoff) bool { return b.Jump == j.ID && b.Character == cid })

	j.Characters.Remove(cid)
	delete(j.Purchases, cid)
	delete(j.Drawbacks, cid)
	delete(j.RetainedDrawbacks, cid)
	delete(j.DrawbackOverrides, cid)
	delete(j.Origins, cid)
	delete(j.BankDeposits, cid)
	delete(j.CurrencyExchanges, cid)
	delete(j.SupplementPurchases, cid)
	delete(j.SupplementInvestments, cid)
	delete(j.SubsystemSummaries, cid)
	delete(j.Narratives, cid)
	delete(j.AltForms, cid)
	delete(j.Budgets, cid)
	delete(j.Stipends, cid)
	s.push(domain.ActionUpdate, domain.EntityJump, j.ID, "characters")
	for _, table := range domain.CharacterTables {
		s.push(domain.ActionDelete, domain.EntityJump, j.ID, table, cid)
	}
}

// stripGrantsInJump removes a character from every import and
// supplement-import grant made in the jump.
func (s *Store) stripGrantsInJump(j *domain.Jump, cid domain.CharacterID) {
	for _, owner := range j.Participants() {
		for _, pid := range j.Purchases[owner] {
			s.stripGrant(s.chain.Purchases[pid], cid)
		}
		for _, sid := range domain.SortedKeys(j.SupplementPurchases[owner]) {
			for _, pid := range j.SupplementPurchases[owner][sid] {
				s.stripGrant(s.chain.Purchases[pid], cid)
			}
		}
	}
}

func (s *Store) stripGrant(p *domain.Purchase, cid domain.CharacterID) {
	if p == nil {
		return
	}
	if p.Import != nil && p.Import.Characters.Remove(cid) {
		s.push(domain.ActionUpdate, domain.EntityPurchase, p.ID, "import", "characters")
	}
	if p.SupplementImport != nil && p.SupplementImport.Characters.Remove(cid) {
		s.push(domain.ActionUpdate, domain.EntityPurchase, p.ID, "supplement_import", "characters")
	}
}

func (s *Store) clearBuyoffs(match func(domain.Buyoff) bool) {
	for _, pid := range domain.SortedKeys(s.chain.Purchases) {
		p := s.chain.Purchases[pid]
		if p.Buyoff != nil && match(*p.Buyoff) {
			p.Buyoff = nil
			s.push(domain.ActionUpdate, domain.EntityPurchase, pid, "buyoff")
		}
	}
}

// DeleteJump removes a jump with everything its participants hold in it.
// Child jumps become roots and buyoffs anchored to the jump are cleared.
func (s *Store) DeleteJump(id domain.JumpID) error {
	defer s.begin("delete_jump")()
	c := s.chain
	j, err := c.Jump(id)
	if err != nil {
		return err
	}
	for _, cid := range j.Participants() {
		s.removeCharacterFromJump(j, cid)
	}
	for _, jid := range c.JumpList {
		child := c.Jumps[jid]
		if child.ParentJump != nil && *child.ParentJump == id {
			child.ParentJump = nil
			s.push(domain.ActionUpdate, domain.EntityJump, jid, "parent_jump")
		}
	}
	s.clearBuyoffs(func(b domain.Buyoff) bool { return b.Jump == id })
	c.JumpList, _ = domain.RemoveID(c.JumpList, id)
	delete(c.Jumps, id)
	s.push(domain.ActionDelete, domain.EntityJump, id)
	s.push(domain.ActionUpdate, "jump_list")
	s.observer.Cascade(domain.EntityJump, int(id))
	return nil
}

// DeleteCharacter removes a character from every jump, deletes their chain
// drawbacks, purchase groups and alt-forms, and strips them from every grant.
func (s *Store) DeleteCharacter(id domain.CharacterID) error {
	defer s.begin("delete_character")()
	c := s.chain
	if _, err := c.Character(id); err != nil {
		return err
	}
	for _, jid := range slices.Clone(c.JumpList) {
		s.removeCharacterFromJump(c.Jumps[jid], id)
	}
	for _, pid := range slices.Clone(c.ChainDrawbacks) {
		if p := c.Purchases[pid]; p != nil && p.Character == id {
			s.deletePurchase(pid)
		}
	}
	for _, pid := range domain.SortedKeys(c.Purchases) {
		s.stripGrant(c.Purchases[pid], id)
	}
	for _, gid := range domain.SortedKeys(c.PurchaseGroups[id]) {
		s.observer.Cascade(domain.EntityPurchaseGroup, int(gid))
	}
	delete(c.PurchaseGroups, id)
	s.push(domain.ActionDelete, domain.EntityPurchaseGroup, id)
	for _, fid := range domain.SortedKeys(c.AltForms) {
		if c.AltForms[fid].Character == id {
			s.deleteAltForm(fid)
		}
	}
	s.clearBuyoffs(func(b domain.Buyoff) bool { return b.Character == id })
	c.CharacterList, _ = domain.RemoveID(c.CharacterList, id)
	delete(c.Characters, id)
	s.push(domain.ActionDelete, domain.EntityCharacter, id)
	s.push(domain.ActionUpdate, "character_list")
	s.observer.Cascade(domain.EntityCharacter, int(id))
	return nil
}

// DeleteSupplement deletes every purchase made in a supplement before
// removing the supplement and its per-character entries.
func (s *Store) DeleteSupplement(id domain.SupplementID) error {
	defer s.begin("delete_supplement")()
	c := s.chain
	if _, err := c.Supplement(id); err != nil {
		return err
	}
	for _, jid := range c.JumpList {
		j := c.Jumps[jid]
		for _, cid := range j.Participants() {
			for _, pid := range slices.Clone(j.SupplementPurchases[cid][id]) {
				s.deletePurchase(pid)
			}
		}
	}
	for _, jid := range c.JumpList {
		j := c.Jumps[jid]
		for _, cid := range j.Participants() {
			delete(j.SupplementPurchases[cid], id)
			delete(j.SupplementInvestments[cid], id)
			s.push(domain.ActionDelete, domain.EntityJump, jid, "supplement_purchases", cid, id)
			s.push(domain.ActionDelete, domain.EntityJump, jid, "supplement_investments", cid, id)
		}
	}
	delete(c.Supplements, id)
	s.push(domain.ActionDelete, domain.EntitySupplement, id)
	s.observer.Cascade(domain.EntitySupplement, int(id))
	return nil
}

// DeletePurchaseGroup removes a group; its components stay but lose their
// group reference.
func (s *Store) DeletePurchaseGroup(characterID domain.CharacterID, id domain.GroupID) error {
	defer s.begin("delete_purchase_group")()
	g, err := s.chain.PurchaseGroup(characterID, id)
	if err != nil {
		return err
	}
	for _, pid := range g.Components {
		if p := s.chain.Purchases[pid]; p != nil {
			p.Group = nil
			s.push(domain.ActionUpdate, domain.EntityPurchase, pid, "group")
		}
	}
	delete(s.chain.PurchaseGroups[characterID], id)
	s.push(domain.ActionDelete, domain.EntityPurchaseGroup, characterID, id)
	s.observer.Cascade(domain.EntityPurchaseGroup, int(id))
	return nil
}

// DeleteAltForm removes a jump alt-form. Original forms go away only with
// their character.
func (s *Store) DeleteAltForm(id domain.AltFormID) error {
	defer s.begin("delete_alt_form")()
	f, err := s.chain.AltForm(id)
	if err != nil {
		return err
	}
	if ch := s.chain.Characters[f.Character]; ch != nil && ch.OriginalForm == id {
		return domain.Invalidf("alt-form %d is the original form of character %d", id, f.Character)
	}
	s.deleteAltForm(id)
	return nil
}

func (s *Store) deleteAltForm(id domain.AltFormID) {
	f, ok := s.chain.AltForms[id]
	if !ok {
		return
	}
	if f.Jump != nil {
		if j := s.chain.Jumps[*f.Jump]; j != nil {
			var removed bool
			if j.AltForms[f.Character], removed = domain.RemoveID(j.AltForms[f.Character], id); removed {
				s.pushJumpTable(j, "alt_forms", f.Character)
			}
		}
	}
	delete(s.chain.AltForms, id)
	s.push(domain.ActionDelete, domain.EntityAltForm, id)
	s.observer.Cascade(domain.EntityAltForm, int(id))
}
