package core

import (
	"chainledger/pkg/domain"
	"slices"
)

// SetCharacterPrimary flips a character between primary and companion.
// Becoming primary strips every import grant naming the character and joins
// every jump; becoming a companion leaves every jump.
func (s *Store) SetCharacterPrimary(id domain.CharacterID, primary bool) error {
	defer s.begin("set_character_primary")()
	c := s.chain
	ch, err := c.Character(id)
	if err != nil {
		return err
	}
	if ch.Primary == primary {
		return nil
	}
	ch.Primary = primary
	s.push(domain.ActionUpdate, domain.EntityCharacter, id)
	if primary {
		for _, pid := range domain.SortedKeys(c.Purchases) {
			if p := c.Purchases[pid]; p.Import != nil && p.Import.Characters.Remove(id) {
				s.push(domain.ActionUpdate, domain.EntityPurchase, pid, "import", "characters")
			}
		}
		for _, jid := range c.JumpList {
			s.addCharacterToJump(c.Jumps[jid], id)
		}
		return nil
	}
	for _, jid := range slices.Clone(c.JumpList) {
		s.removeCharacterFromJump(c.Jumps[jid], id)
	}
	return nil
}

// SetImportCharacters replaces the companions granted by an import purchase.
// Primary characters and the importer are ignored. Newly granted companions
// join the jump; companions no longer granted by any import leave it.
func (s *Store) SetImportCharacters(purchaseID domain.PurchaseID, characters []domain.CharacterID) error {
	defer s.begin("set_import_characters")()
	p, err := s.chain.Purchase(purchaseID)
	if err != nil {
		return err
	}
	if p.Kind != domain.KindImport {
		return domain.Invalidf("purchase %d is a %s, not an import", purchaseID, p.Kind)
	}
	for _, cid := range characters {
		if _, err := s.chain.Character(cid); err != nil {
			return err
		}
	}
	return s.setImportCharacters(p, characters)
}

func (s *Store) setImportCharacters(p *domain.Purchase, characters []domain.CharacterID) error {
	j, err := s.chain.Jump(*p.Jump)
	if err != nil {
		return err
	}
	next := domain.NewIDSet[domain.CharacterID]()
	for _, cid := range characters {
		if cid == p.Character || s.chain.IsPrimary(cid) {
			continue
		}
		if _, err := s.chain.Character(cid); err != nil {
			return err
		}
		next.Add(cid)
	}
	if p.Import.Characters.Equal(next) {
		return nil
	}
	p.Import.Characters = next
	s.push(domain.ActionUpdate, domain.EntityPurchase, p.ID, "import", "characters")
	for _, cid := range next.Sorted() {
		s.addCharacterToJump(j, cid)
	}
	s.pruneUnreachableCompanions(j)
	return nil
}

// SetSupplementImportCharacters replaces the recipients of a supplement
// import grant. The granting character is ignored.
func (s *Store) SetSupplementImportCharacters(purchaseID domain.PurchaseID, characters []domain.CharacterID) error {
	defer s.begin("set_supplement_import_characters")()
	p, err := s.chain.Purchase(purchaseID)
	if err != nil {
		return err
	}
	if p.Kind != domain.KindSupplementImport {
		return domain.Invalidf("purchase %d is a %s, not a supplement import", purchaseID, p.Kind)
	}
	for _, cid := range characters {
		if _, err := s.chain.Character(cid); err != nil {
			return err
		}
	}
	s.setSupplementImportCharacters(p, characters)
	return nil
}

func (s *Store) setSupplementImportCharacters(p *domain.Purchase, characters []domain.CharacterID) {
	next := domain.NewIDSet[domain.CharacterID]()
	for _, cid := range characters {
		if cid != p.Character {
			if _, ok := s.chain.Characters[cid]; ok {
				next.Add(cid)
			}
		}
	}
	if p.SupplementImport.Characters.Equal(next) {
		return
	}
	p.SupplementImport.Characters = next
	s.push(domain.ActionUpdate, domain.EntityPurchase, p.ID, "supplement_import", "characters")
}

// SetDrawbackOverride sets (or, with nil, clears) how a retained or chain
// drawback is valued for a character in a jump. A permanent buyoff moves the
// drawback's single buyoff anchor to this jump and character, replacing any
// permanent buyoff recorded elsewhere.
func (s *Store) SetDrawbackOverride(jumpID domain.JumpID, characterID domain.CharacterID, purchaseID domain.PurchaseID, override *domain.DrawbackOverride) error {
	defer s.begin("set_drawback_override")()
	j, err := s.memberOf(jumpID, characterID)
	if err != nil {
		return err
	}
	p, err := s.chain.Purchase(purchaseID)
	if err != nil {
		return err
	}
	if p.Kind != domain.KindDrawback && p.Kind != domain.KindChainDrawback {
		return domain.Invalidf("purchase %d is a %s, not a drawback", purchaseID, p.Kind)
	}
	anchoredHere := p.Buyoff != nil && p.Buyoff.Jump == jumpID && p.Buyoff.Character == characterID

	if override == nil {
		if _, ok := j.DrawbackOverrides[characterID][purchaseID]; ok {
			delete(j.DrawbackOverrides[characterID], purchaseID)
			s.pushJumpTable(j, "drawback_overrides", characterID)
		}
		if anchoredHere {
			s.setBuyoff(p, nil)
		}
		return nil
	}
	switch override.State {
	case domain.OverrideEnabled, domain.OverrideExcluded, domain.OverrideBoughtOffTemporarily, domain.OverrideBoughtOffPermanently:
	default:
		return domain.Invalidf("unknown override state %q", override.State)
	}

	if override.State == domain.OverrideBoughtOffPermanently {
		if p.Buyoff != nil && !anchoredHere {
			if old := s.chain.Jumps[p.Buyoff.Jump]; old != nil {
				if prev, ok := old.DrawbackOverrides[p.Buyoff.Character][purchaseID]; ok && prev.State == domain.OverrideBoughtOffPermanently {
					delete(old.DrawbackOverrides[p.Buyoff.Character], purchaseID)
					s.pushJumpTable(old, "drawback_overrides", p.Buyoff.Character)
				}
			}
		}
		s.setBuyoff(p, &domain.Buyoff{Jump: jumpID, Character: characterID})
	} else if anchoredHere {
		s.setBuyoff(p, nil)
	}
	j.DrawbackOverrides[characterID][purchaseID] = *override
	s.pushJumpTable(j, "drawback_overrides", characterID)
	return nil
}

func (s *Store) setBuyoff(p *domain.Purchase, b *domain.Buyoff) {
	p.Buyoff = b
	s.push(domain.ActionUpdate, domain.EntityPurchase, p.ID, "buyoff")
}

// SetRetained marks (or unmarks) a drawback taken in a jump as carried into
// later jumps.
func (s *Store) SetRetained(jumpID domain.JumpID, characterID domain.CharacterID, purchaseID domain.PurchaseID, retained bool) error {
	defer s.begin("set_retained")()
	j, err := s.memberOf(jumpID, characterID)
	if err != nil {
		return err
	}
	if !slices.Contains(j.Drawbacks[characterID], purchaseID) {
		return domain.Invalidf("purchase %d is not a drawback of character %d in jump %d", purchaseID, characterID, jumpID)
	}
	if p := s.chain.Purchases[purchaseID]; p.Kind != domain.KindDrawback {
		return domain.Invalidf("only drawbacks can be retained, purchase %d is a %s", purchaseID, p.Kind)
	}
	set := j.RetainedDrawbacks[characterID]
	changed := set.Remove(purchaseID)
	if retained {
		changed = set.Add(purchaseID) || changed
	}
	if changed {
		s.pushJumpTable(j, "retained_drawbacks", characterID)
	}
	return nil
}

// AddToGroup moves a perk or item into one of its owner's groups.
func (s *Store) AddToGroup(purchaseID domain.PurchaseID, groupID domain.GroupID) error {
	defer s.begin("add_to_group")()
	p, err := s.chain.Purchase(purchaseID)
	if err != nil {
		return err
	}
	return s.addToGroup(p, groupID)
}

func (s *Store) addToGroup(p *domain.Purchase, groupID domain.GroupID) error {
	g, err := s.chain.PurchaseGroup(p.Character, groupID)
	if err != nil {
		return err
	}
	if g.Kind != p.Kind {
		return domain.Invalidf("group %d holds %s purchases, not %s", groupID, g.Kind, p.Kind)
	}
	if p.Group != nil && *p.Group == groupID {
		return nil
	}
	s.removeFromGroup(p)
	g.Components = append(g.Components, p.ID)
	p.Group = &g.ID
	s.push(domain.ActionUpdate, domain.EntityPurchaseGroup, p.Character, groupID, "components")
	s.push(domain.ActionUpdate, domain.EntityPurchase, p.ID, "group")
	return nil
}

// RemoveFromGroup detaches a purchase from its group, if any.
func (s *Store) RemoveFromGroup(purchaseID domain.PurchaseID) error {
	defer s.begin("remove_from_group")()
	p, err := s.chain.Purchase(purchaseID)
	if err != nil {
		return err
	}
	s.removeFromGroup(p)
	return nil
}

func (s *Store) removeFromGroup(p *domain.Purchase) {
	if p.Group == nil {
		return
	}
	if g, err := s.chain.PurchaseGroup(p.Character, *p.Group); err == nil {
		g.Components, _ = domain.RemoveID(g.Components, p.ID)
		s.push(domain.ActionUpdate, domain.EntityPurchaseGroup, p.Character, g.ID, "components")
	}
	p.Group = nil
	s.push(domain.ActionUpdate, domain.EntityPurchase, p.ID, "group")
}

// SetBankDeposit records a deposit (or, when negative, a withdrawal).
func (s *Store) SetBankDeposit(jumpID domain.JumpID, characterID domain.CharacterID, amount int) error {
	defer s.begin("set_bank_deposit")()
	j, err := s.memberOf(jumpID, characterID)
	if err != nil {
		return err
	}
	if j.BankDeposits[characterID] != amount {
		j.BankDeposits[characterID] = amount
		s.pushJumpTable(j, "bank_deposits", characterID)
	}
	return nil
}

// SetSupplementInvestment stores an investment clamped to zero and, when the
// supplement configures one, to its maximum. The stored amount is returned.
func (s *Store) SetSupplementInvestment(jumpID domain.JumpID, characterID domain.CharacterID, supplementID domain.SupplementID, amount int) (int, error) {
	defer s.begin("set_supplement_investment")()
	j, err := s.memberOf(jumpID, characterID)
	if err != nil {
		return 0, err
	}
	sup, err := s.chain.Supplement(supplementID)
	if err != nil {
		return 0, err
	}
	amount = clampInvestment(amount, sup.MaxInvestment)
	if j.SupplementInvestments[characterID][supplementID] != amount {
		j.SupplementInvestments[characterID][supplementID] = amount
		s.push(domain.ActionUpdate, domain.EntityJump, jumpID, "supplement_investments", characterID, supplementID)
	}
	return amount, nil
}

func clampInvestment(amount, maxInvestment int) int {
	amount = max(amount, 0)
	if maxInvestment > 0 {
		amount = min(amount, maxInvestment)
	}
	return amount
}

// AddCurrencyExchange appends an exchange between two of the jump's currencies.
func (s *Store) AddCurrencyExchange(jumpID domain.JumpID, characterID domain.CharacterID, ex domain.CurrencyExchange) error {
	defer s.begin("add_currency_exchange")()
	j, err := s.memberOf(jumpID, characterID)
	if err != nil {
		return err
	}
	for _, cur := range []domain.CurrencyID{ex.From, ex.To} {
		if _, ok := j.Currencies[cur]; !ok {
			return domain.Invalidf("jump %d has no currency %d", jumpID, cur)
		}
	}
	j.CurrencyExchanges[characterID] = append(j.CurrencyExchanges[characterID], ex)
	s.pushJumpTable(j, "currency_exchanges", characterID)
	return nil
}

// RemoveCurrencyExchange deletes the exchange at index.
func (s *Store) RemoveCurrencyExchange(jumpID domain.JumpID, characterID domain.CharacterID, index int) error {
	defer s.begin("remove_currency_exchange")()
	j, err := s.memberOf(jumpID, characterID)
	if err != nil {
		return err
	}
	list := j.CurrencyExchanges[characterID]
	if index < 0 || index >= len(list) {
		return domain.Invalidf("exchange %d out of range", index)
	}
	j.CurrencyExchanges[characterID] = slices.Delete(list, index, index+1)
	s.pushJumpTable(j, "currency_exchanges", characterID)
	return nil
}

// SetOrigin records a character's pick for an origin category.
func (s *Store) SetOrigin(jumpID domain.JumpID, characterID domain.CharacterID, category domain.OriginCategoryID, origin domain.Origin) error {
	defer s.begin("set_origin")()
	j, err := s.memberOf(jumpID, characterID)
	if err != nil {
		return err
	}
	if _, ok := j.OriginCategories[category]; !ok {
		return domain.Invalidf("jump %d has no origin category %d", jumpID, category)
	}
	j.Origins[characterID][category] = origin
	s.push(domain.ActionUpdate, domain.EntityJump, jumpID, "origins", characterID, category)
	return nil
}

// SetSubsystemStipend sets the stipend a subsystem access purchase grants.
func (s *Store) SetSubsystemStipend(purchaseID domain.PurchaseID, currency domain.CurrencyID, amount int) error {
	defer s.begin("set_subsystem_stipend")()
	p, err := s.chain.Purchase(purchaseID)
	if err != nil {
		return err
	}
	if p.Jump == nil || p.Subtype == nil {
		return domain.Invalidf("purchase %d does not grant subsystem access", purchaseID)
	}
	j := s.chain.Jumps[*p.Jump]
	idx, ok := s.summaryIndex(j, p.Character, *p.Subtype, purchaseID)
	if !ok {
		return domain.Invalidf("purchase %d does not grant subsystem access", purchaseID)
	}
	if _, ok := j.Currencies[currency]; !ok {
		return domain.Invalidf("jump %d has no currency %d", j.ID, currency)
	}
	j.SubsystemSummaries[p.Character][*p.Subtype][idx].Stipend[currency] = amount
	s.push(domain.ActionUpdate, domain.EntityJump, j.ID, "subsystem_summaries", p.Character, *p.Subtype)
	return nil
}

// SetNarrative stores a character's narrative for a jump. The chain's
// narrative feature must be enabled.
func (s *Store) SetNarrative(jumpID domain.JumpID, characterID domain.CharacterID, n domain.Narrative) error {
	defer s.begin("set_narrative")()
	if !s.chain.Settings.Narratives {
		return domain.Invalidf("narratives are disabled for this chain")
	}
	j, err := s.memberOf(jumpID, characterID)
	if err != nil {
		return err
	}
	j.Narratives[characterID] = n
	s.pushJumpTable(j, "narratives", characterID)
	return nil
}

// ReorderJumps rearranges the timeline. order must be a permutation of the
// current jump list. Roots keep the relative order they have in order and
// each root is followed by its children, also in their order in order.
func (s *Store) ReorderJumps(order []domain.JumpID) error {
	defer s.begin("reorder_jumps")()
	c := s.chain
	if len(order) != len(c.JumpList) {
		return domain.Invalidf("expected %d jumps, got %d", len(c.JumpList), len(order))
	}
	seen := domain.NewIDSet[domain.JumpID]()
	for _, id := range order {
		if _, err := c.Jump(id); err != nil {
			return err
		}
		if !seen.Add(id) {
			return domain.Invalidf("jump %d listed twice", id)
		}
	}
	next := make([]domain.JumpID, 0, len(order))
	for _, root := range order {
		if !c.IsRoot(root) {
			continue
		}
		next = append(next, root)
		for _, id := range order {
			if id != root && c.ChunkRoot(id) == root {
				next = append(next, id)
			}
		}
	}
	if slices.Equal(next, c.JumpList) {
		return nil
	}
	c.JumpList = next
	s.push(domain.ActionUpdate, "jump_list")
	return nil
}

// UpdateChainSettings replaces the chain's feature toggles.
func (s *Store) UpdateChainSettings(settings domain.ChainSettings) {
	defer s.begin("update_chain_settings")()
	if s.chain.Settings == settings {
		return
	}
	s.chain.Settings = settings
	s.push(domain.ActionUpdate, "settings")
}

// UpdateBank replaces the chain's bank policy.
func (s *Store) UpdateBank(bank domain.BankSettings) error {
	defer s.begin("update_bank")()
	if bank.DepositRatio < 0 || bank.InterestRate < -100 || bank.MaxDeposit < 0 {
		return domain.Invalidf("bank settings out of range")
	}
	if s.chain.Bank == bank {
		return nil
	}
	s.chain.Bank = bank
	s.push(domain.ActionUpdate, "bank")
	return nil
}

// SetJumpCurrency creates or updates a currency of a jump.
func (s *Store) SetJumpCurrency(jumpID domain.JumpID, id domain.CurrencyID, cur domain.Currency) error {
	defer s.begin("set_jump_currency")()
	j, err := s.chain.Jump(jumpID)
	if err != nil {
		return err
	}
	action := domain.ActionUpdate
	if _, ok := j.Currencies[id]; !ok {
		action = domain.ActionNew
	}
	j.Currencies[id] = cur
	s.push(action, domain.EntityJump, jumpID, "currencies", id)
	return nil
}

// SetJumpSubtype creates or updates a purchase subtype of a jump. The subsystem
// flag of an existing subtype cannot change while purchases use it.
func (s *Store) SetJumpSubtype(jumpID domain.JumpID, id domain.SubtypeID, st domain.PurchaseSubtype) error {
	defer s.begin("set_jump_subtype")()
	j, err := s.chain.Jump(jumpID)
	if err != nil {
		return err
	}
	if st.Type != domain.KindPerk && st.Type != domain.KindItem {
		return domain.Invalidf("subtypes classify perks or items, not %s", st.Type)
	}
	if _, ok := j.Currencies[st.Currency]; !ok {
		return domain.Invalidf("jump %d has no currency %d", jumpID, st.Currency)
	}
	action := domain.ActionNew
	if prev, ok := j.Subtypes[id]; ok {
		action = domain.ActionUpdate
		if prev.Subsystem != st.Subsystem && s.subtypeInUse(j, id) {
			return domain.Invalidf("subtype %d is in use; its subsystem flag is fixed", id)
		}
	}
	j.Subtypes[id] = st
	s.push(action, domain.EntityJump, jumpID, "subtypes", id)
	return nil
}

func (s *Store) subtypeInUse(j *domain.Jump, id domain.SubtypeID) bool {
	for _, cid := range j.Participants() {
		for _, pid := range j.Purchases[cid] {
			if p := s.chain.Purchases[pid]; p != nil && p.Subtype != nil && *p.Subtype == id {
				return true
			}
		}
	}
	return false
}

// SetOriginCategory creates or updates an origin category of a jump.
func (s *Store) SetOriginCategory(jumpID domain.JumpID, id domain.OriginCategoryID, cat domain.OriginCategory) error {
	defer s.begin("set_origin_category")()
	j, err := s.chain.Jump(jumpID)
	if err != nil {
		return err
	}
	action := domain.ActionUpdate
	if _, ok := j.OriginCategories[id]; !ok {
		action = domain.ActionNew
	}
	j.OriginCategories[id] = cat
	s.push(action, domain.EntityJump, jumpID, "origin_categories", id)
	return nil
}

// StoreComputedBudget writes a computed budget into the jump's budget and
// stipend tables. A change is recorded only when the stored value differs.
func (s *Store) StoreComputedBudget(jumpID domain.JumpID, characterID domain.CharacterID, currencies map[domain.CurrencyID]int, stipends map[domain.CurrencyID]map[domain.SubtypeID]int) (bool, error) {
	defer s.begin("store_computed_budget")()
	j, err := s.memberOf(jumpID, characterID)
	if err != nil {
		return false, err
	}
	changed := false
	if !mapsEqual(j.Budgets[characterID], currencies) {
		j.Budgets[characterID] = cloneIntMap(currencies)
		s.pushJumpTable(j, "budgets", characterID)
		changed = true
	}
	if !stipendsEqual(j.Stipends[characterID], stipends) {
		j.Stipends[characterID] = cloneStipends(stipends)
		s.pushJumpTable(j, "stipends", characterID)
		changed = true
	}
	return changed, nil
}

func mapsEqual[K comparable](a, b map[K]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}

func stipendsEqual(a, b map[domain.CurrencyID]map[domain.SubtypeID]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		w, ok := b[k]
		if !ok || !mapsEqual(v, w) {
			return false
		}
	}
	return true
}
