package core

import (
	"chainledger/pkg/domain"
	"slices"
)

// RegisterCharacter creates a character with its original form. Primary
// characters join every existing jump.
func (s *Store) RegisterCharacter(name string, primary bool) domain.CharacterID {
	defer s.begin("register_character")()
	c := s.chain
	id := domain.CharacterID(c.AllocateID(domain.EntityCharacter))
	ch := &domain.Character{ID: id, Name: name, Primary: primary}
	c.Characters[id] = ch
	c.CharacterList = append(c.CharacterList, id)
	c.PurchaseGroups[id] = map[domain.GroupID]*domain.PurchaseGroup{}
	s.push(domain.ActionNew, domain.EntityCharacter, id)
	s.push(domain.ActionUpdate, "character_list")
	s.push(domain.ActionNew, domain.EntityPurchaseGroup, id)

	ch.OriginalForm = s.newAltForm(id, nil, name)
	if primary {
		for _, jid := range c.JumpList {
			s.addCharacterToJump(c.Jumps[jid], id)
		}
	}
	return id
}

// RegisterJump appends a jump to the timeline. With a parent the jump joins
// the parent's chunk (the parent is normalized to its root) and is placed
// after the chunk's last member. Every primary character joins the new jump.
func (s *Store) RegisterJump(name string, parent *domain.JumpID) (domain.JumpID, error) {
	defer s.begin("register_jump")()
	c := s.chain
	var root *domain.JumpID
	if parent != nil {
		if _, err := c.Jump(*parent); err != nil {
			return 0, err
		}
		r := c.ChunkRoot(*parent)
		root = &r
	}
	id := domain.JumpID(c.AllocateID(domain.EntityJump))
	j := domain.NewJump(id, name)
	j.ParentJump = root
	c.Jumps[id] = j
	if root != nil {
		at := c.ChunkEnd(*root) + 1
		c.JumpList = slices.Insert(c.JumpList, at, id)
	} else {
		c.JumpList = append(c.JumpList, id)
	}
	s.push(domain.ActionNew, domain.EntityJump, id)
	s.push(domain.ActionUpdate, "jump_list")
	for _, cid := range c.PrimaryCharacters() {
		s.addCharacterToJump(j, cid)
	}
	return id, nil
}

// AddCharacterToJump makes a character a participant and initializes every
// per-character table of the jump for them.
func (s *Store) AddCharacterToJump(jumpID domain.JumpID, characterID domain.CharacterID) error {
	defer s.begin("add_character_to_jump")()
	j, err := s.chain.Jump(jumpID)
	if err != nil {
		return err
	}
	if _, err := s.chain.Character(characterID); err != nil {
		return err
	}
	s.addCharacterToJump(j, characterID)
	return nil
}

func (s *Store) addCharacterToJump(j *domain.Jump, id domain.CharacterID) {
	if !j.Characters.Add(id) {
		return
	}
	j.Purchases[id] = []domain.PurchaseID{}
	j.Drawbacks[id] = []domain.PurchaseID{}
	j.RetainedDrawbacks[id] = domain.NewIDSet[domain.PurchaseID]()
	j.DrawbackOverrides[id] = map[domain.PurchaseID]domain.DrawbackOverride{}
	j.Origins[id] = map[domain.OriginCategoryID]domain.Origin{}
	j.BankDeposits[id] = 0
	j.CurrencyExchanges[id] = []domain.CurrencyExchange{}
	j.SupplementPurchases[id] = map[domain.SupplementID][]domain.PurchaseID{}
	j.SupplementInvestments[id] = map[domain.SupplementID]int{}
	for sid := range s.chain.Supplements {
		j.SupplementPurchases[id][sid] = []domain.PurchaseID{}
		j.SupplementInvestments[id][sid] = 0
	}
	j.SubsystemSummaries[id] = map[domain.SubtypeID][]domain.SubsystemSummary{}
	j.Narratives[id] = domain.Narrative{}
	j.AltForms[id] = []domain.AltFormID{}
	j.Budgets[id] = map[domain.CurrencyID]int{}
	j.Stipends[id] = map[domain.CurrencyID]map[domain.SubtypeID]int{}

	s.push(domain.ActionUpdate, domain.EntityJump, j.ID, "characters")
	for _, table := range domain.CharacterTables {
		s.push(domain.ActionNew, domain.EntityJump, j.ID, table, id)
	}
}

// RegisterSupplement adds a supplement and initializes its purchase and
// investment entries for every participant of every jump.
func (s *Store) RegisterSupplement(sup domain.ChainSupplement) domain.SupplementID {
	defer s.begin("register_supplement")()
	c := s.chain
	id := domain.SupplementID(c.AllocateID(domain.EntitySupplement))
	sup.ID = id
	if sup.Categories == nil {
		sup.Categories = []string{}
	}
	if sup.CompanionAccess == "" {
		sup.CompanionAccess = domain.AccessUnavailable
	}
	c.Supplements[id] = &sup
	s.push(domain.ActionNew, domain.EntitySupplement, id)
	for _, jid := range c.JumpList {
		j := c.Jumps[jid]
		for _, cid := range j.Participants() {
			j.SupplementPurchases[cid][id] = []domain.PurchaseID{}
			j.SupplementInvestments[cid][id] = 0
			s.push(domain.ActionNew, domain.EntityJump, jid, "supplement_purchases", cid, id)
			s.push(domain.ActionNew, domain.EntityJump, jid, "supplement_investments", cid, id)
		}
	}
	return id
}

// RegisterPurchaseGroup creates an empty perk or item group for a character.
func (s *Store) RegisterPurchaseGroup(characterID domain.CharacterID, kind domain.PurchaseKind, name, description string) (domain.GroupID, error) {
	defer s.begin("register_purchase_group")()
	if _, err := s.chain.Character(characterID); err != nil {
		return 0, err
	}
	if kind != domain.KindPerk && kind != domain.KindItem {
		return 0, domain.Invalidf("purchase groups hold perks or items, not %s", kind)
	}
	id := domain.GroupID(s.chain.AllocateID(domain.EntityPurchaseGroup))
	s.chain.PurchaseGroups[characterID][id] = &domain.PurchaseGroup{
		ID:          id,
		Character:   characterID,
		Kind:        kind,
		Name:        name,
		Description: description,
		Components:  []domain.PurchaseID{},
	}
	s.push(domain.ActionNew, domain.EntityPurchaseGroup, characterID, id)
	return id, nil
}

// RegisterAltForm adds an alternate form for a character in a jump. The
// chain's alt-form feature must be enabled.
func (s *Store) RegisterAltForm(jumpID domain.JumpID, characterID domain.CharacterID, name string) (domain.AltFormID, error) {
	defer s.begin("register_alt_form")()
	if !s.chain.Settings.AltForms {
		return 0, domain.Invalidf("alt-forms are disabled for this chain")
	}
	j, err := s.memberOf(jumpID, characterID)
	if err != nil {
		return 0, err
	}
	jid := j.ID
	return s.newAltForm(characterID, &jid, name), nil
}

func (s *Store) newAltForm(characterID domain.CharacterID, jumpID *domain.JumpID, name string) domain.AltFormID {
	id := domain.AltFormID(s.chain.AllocateID(domain.EntityAltForm))
	s.chain.AltForms[id] = &domain.AltForm{ID: id, Character: characterID, Jump: jumpID, Name: name}
	s.push(domain.ActionNew, domain.EntityAltForm, id)
	if jumpID != nil {
		j := s.chain.Jumps[*jumpID]
		j.AltForms[characterID] = append(j.AltForms[characterID], id)
		s.pushJumpTable(j, "alt_forms", characterID)
	}
	return id
}

// RegisterPurchase validates and links a purchase into the graph. The ID of
// p is ignored and a fresh one is assigned.
//
// Import grants and supplement-import grants in p are applied through the
// same paths as SetImportCharacters and SetSupplementImportCharacters.
func (s *Store) RegisterPurchase(p domain.Purchase) (domain.PurchaseID, error) {
	defer s.begin("register_purchase")()
	c := s.chain
	if _, err := c.Character(p.Character); err != nil {
		return 0, err
	}
	var j *domain.Jump
	if p.Kind == domain.KindChainDrawback {
		if p.Jump != nil {
			return 0, domain.Invalidf("chain drawbacks are not scoped to a jump")
		}
	} else {
		if p.Jump == nil {
			return 0, domain.Invalidf("%s purchases need a jump", p.Kind)
		}
		var err error
		if j, err = s.memberOf(*p.Jump, p.Character); err != nil {
			return 0, err
		}
	}
	if err := s.validatePurchase(j, &p); err != nil {
		return 0, err
	}

	id := domain.PurchaseID(c.AllocateID(domain.EntityPurchase))
	p.ID = id
	if p.Modifier == "" {
		p.Modifier = domain.ModifierFull
	}
	if p.Categories == nil {
		p.Categories = []int{}
	}
	var importChars, supplementChars []domain.CharacterID
	if p.Import != nil {
		importChars = p.Import.Characters.Sorted()
		p.Import = &domain.ImportGrant{
			Characters: domain.NewIDSet[domain.CharacterID](),
			Allowances: cloneIntMap(p.Import.Allowances),
			Stipends:   cloneStipends(p.Import.Stipends),
		}
	}
	if p.SupplementImport != nil {
		supplementChars = p.SupplementImport.Characters.Sorted()
		grant := *p.SupplementImport
		grant.Characters = domain.NewIDSet[domain.CharacterID]()
		p.SupplementImport = &grant
	}
	group := p.Group
	p.Group = nil
	stored := p
	c.Purchases[id] = &stored
	s.push(domain.ActionNew, domain.EntityPurchase, id)
	s.link(j, &stored)

	if group != nil {
		mustApply("group purchase", s.addToGroup(&stored, *group))
	}
	if stored.Kind == domain.KindImport {
		mustApply("import grant", s.setImportCharacters(&stored, importChars))
	}
	if stored.Kind == domain.KindSupplementImport {
		s.setSupplementImportCharacters(&stored, supplementChars)
	}
	return id, nil
}

func (s *Store) validatePurchase(j *domain.Jump, p *domain.Purchase) error {
	c := s.chain
	switch p.Kind {
	case domain.KindPerk, domain.KindItem, domain.KindImport, domain.KindDrawback, domain.KindScenario, domain.KindChainDrawback:
	case domain.KindSupplement, domain.KindSupplementImport:
		if p.Supplement == nil {
			return domain.Invalidf("%s purchases need a supplement", p.Kind)
		}
		if _, err := c.Supplement(*p.Supplement); err != nil {
			return err
		}
	case domain.KindSubsystem:
		if p.Parent == nil || p.Subtype == nil {
			return domain.Invalidf("subsystem purchases need a parent and a subtype")
		}
		if _, ok := s.summaryIndex(j, p.Character, *p.Subtype, *p.Parent); !ok {
			return domain.Invalidf("purchase %d does not grant access to subsystem %d", *p.Parent, *p.Subtype)
		}
	default:
		return domain.Invalidf("unknown purchase kind %q", p.Kind)
	}
	if p.Kind != domain.KindSubsystem && p.Parent != nil {
		return domain.Invalidf("only subsystem purchases have a parent")
	}
	if p.Kind == domain.KindImport && p.Import == nil {
		p.Import = &domain.ImportGrant{}
	}
	if p.Kind != domain.KindImport && p.Import != nil {
		return domain.Invalidf("only import purchases carry an import grant")
	}
	if p.Kind == domain.KindSupplementImport && p.SupplementImport == nil {
		p.SupplementImport = &domain.SupplementImportGrant{}
	}
	if p.Kind != domain.KindSupplementImport && p.SupplementImport != nil {
		return domain.Invalidf("only supplement imports carry a supplement grant")
	}
	if p.Buyoff != nil {
		return domain.Invalidf("buyoffs are set through drawback overrides")
	}
	if p.Import != nil {
		for id := range p.Import.Characters {
			if _, err := c.Character(id); err != nil {
				return err
			}
		}
	}
	if p.Group != nil {
		g, err := c.PurchaseGroup(p.Character, *p.Group)
		if err != nil {
			return err
		}
		if g.Kind != p.Kind {
			return domain.Invalidf("group %d holds %s purchases, not %s", g.ID, g.Kind, p.Kind)
		}
	}
	if j != nil {
		if _, ok := j.Currencies[p.Currency]; !ok {
			return domain.Invalidf("jump %d has no currency %d", j.ID, p.Currency)
		}
		if p.Subtype != nil {
			if _, ok := j.Subtypes[*p.Subtype]; !ok {
				return domain.Invalidf("jump %d has no subtype %d", j.ID, *p.Subtype)
			}
		}
	}
	return nil
}

// link inserts a freshly stored purchase into the lists that own it.
func (s *Store) link(j *domain.Jump, p *domain.Purchase) {
	c := s.chain
	switch p.Kind {
	case domain.KindChainDrawback:
		c.ChainDrawbacks = append(c.ChainDrawbacks, p.ID)
		s.push(domain.ActionUpdate, "chain_drawbacks")
	case domain.KindDrawback, domain.KindScenario:
		j.Drawbacks[p.Character] = append(j.Drawbacks[p.Character], p.ID)
		s.pushJumpTable(j, "drawbacks", p.Character)
	case domain.KindSupplement, domain.KindSupplementImport:
		sid := *p.Supplement
		j.SupplementPurchases[p.Character][sid] = append(j.SupplementPurchases[p.Character][sid], p.ID)
		s.push(domain.ActionUpdate, domain.EntityJump, j.ID, "supplement_purchases", p.Character, sid)
	case domain.KindSubsystem:
		idx, _ := s.summaryIndex(j, p.Character, *p.Subtype, *p.Parent)
		summary := &j.SubsystemSummaries[p.Character][*p.Subtype][idx]
		summary.Subpurchases = append(summary.Subpurchases, p.ID)
		j.Purchases[p.Character] = append(j.Purchases[p.Character], p.ID)
		s.pushJumpTable(j, "subsystem_summaries", p.Character)
		s.pushJumpTable(j, "purchases", p.Character)
	default:
		j.Purchases[p.Character] = append(j.Purchases[p.Character], p.ID)
		s.pushJumpTable(j, "purchases", p.Character)
		s.adjustCounters(p, 1)
		if p.Subtype != nil && j.Subtypes[*p.Subtype].Subsystem {
			summaries := j.SubsystemSummaries[p.Character]
			summaries[*p.Subtype] = append(summaries[*p.Subtype], domain.SubsystemSummary{
				Purchase:     p.ID,
				Stipend:      map[domain.CurrencyID]int{},
				Subpurchases: []domain.PurchaseID{},
			})
			s.pushJumpTable(j, "subsystem_summaries", p.Character)
		}
	}
}

func (s *Store) adjustCounters(p *domain.Purchase, delta int) {
	ch := s.chain.Characters[p.Character]
	if ch == nil {
		return
	}
	switch p.Kind {
	case domain.KindPerk:
		ch.PerkCount += delta
	case domain.KindItem:
		ch.ItemCount += delta
	default:
		return
	}
	s.push(domain.ActionUpdate, domain.EntityCharacter, ch.ID)
}

// summaryIndex finds the summary entry of parent within a subsystem subtype.
func (s *Store) summaryIndex(j *domain.Jump, characterID domain.CharacterID, subtype domain.SubtypeID, parent domain.PurchaseID) (int, bool) {
	if j == nil {
		return 0, false
	}
	for i, summary := range j.SubsystemSummaries[characterID][subtype] {
		if summary.Purchase == parent {
			return i, true
		}
	}
	return 0, false
}

func cloneIntMap[K comparable](m map[K]int) map[K]int {
	out := make(map[K]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneStipends(m map[domain.CurrencyID]map[domain.SubtypeID]int) map[domain.CurrencyID]map[domain.SubtypeID]int {
	out := make(map[domain.CurrencyID]map[domain.SubtypeID]int, len(m))
	for k, v := range m {
		out[k] = cloneIntMap(v)
	}
	return out
}
