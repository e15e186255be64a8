package domain

import "slices"

// Chain is the root aggregate. Entities never point back at it; every
// operation that needs the graph takes the chain explicitly.
type Chain struct {
	Name     string        `json:"name"`
	Settings ChainSettings `json:"settings"`
	Bank     BankSettings  `json:"bank"`

	Characters     map[CharacterID]*Character                 `json:"characters"`
	Jumps          map[JumpID]*Jump                           `json:"jumps"`
	Purchases      map[PurchaseID]*Purchase                   `json:"purchases"`
	Supplements    map[SupplementID]*ChainSupplement          `json:"supplements"`
	AltForms       map[AltFormID]*AltForm                     `json:"alt_forms"`
	PurchaseGroups map[CharacterID]map[GroupID]*PurchaseGroup `json:"purchase_groups"`

	JumpList       []JumpID      `json:"jump_list"`
	CharacterList  []CharacterID `json:"character_list"`
	ChainDrawbacks []PurchaseID  `json:"chain_drawbacks"`
}

// NewChain returns an empty chain with every arena allocated.
func NewChain(name string) *Chain {
	c := &Chain{Name: name}
	c.Normalize()
	return c
}

// Normalize replaces nil containers with empty ones so that a decoded chain
// serializes identically to one built in memory.
func (c *Chain) Normalize() {
	if c.Characters == nil {
		c.Characters = map[CharacterID]*Character{}
	}
	if c.Jumps == nil {
		c.Jumps = map[JumpID]*Jump{}
	}
	if c.Purchases == nil {
		c.Purchases = map[PurchaseID]*Purchase{}
	}
	if c.Supplements == nil {
		c.Supplements = map[SupplementID]*ChainSupplement{}
	}
	if c.AltForms == nil {
		c.AltForms = map[AltFormID]*AltForm{}
	}
	if c.PurchaseGroups == nil {
		c.PurchaseGroups = map[CharacterID]map[GroupID]*PurchaseGroup{}
	}
	if c.JumpList == nil {
		c.JumpList = []JumpID{}
	}
	if c.CharacterList == nil {
		c.CharacterList = []CharacterID{}
	}
	if c.ChainDrawbacks == nil {
		c.ChainDrawbacks = []PurchaseID{}
	}
	for _, j := range c.Jumps {
		j.normalize()
	}
	for _, p := range c.Purchases {
		p.normalize()
	}
	for _, s := range c.Supplements {
		if s.Categories == nil {
			s.Categories = []string{}
		}
	}
	for _, groups := range c.PurchaseGroups {
		for _, g := range groups {
			if g.Components == nil {
				g.Components = []PurchaseID{}
			}
		}
	}
}

// Character returns the live character with the given ID.
func (c *Chain) Character(id CharacterID) (*Character, error) {
	if ch, ok := c.Characters[id]; ok {
		return ch, nil
	}
	return nil, notFound(EntityCharacter, id)
}

// Jump returns the live jump with the given ID.
func (c *Chain) Jump(id JumpID) (*Jump, error) {
	if j, ok := c.Jumps[id]; ok {
		return j, nil
	}
	return nil, notFound(EntityJump, id)
}

// Purchase returns the live purchase with the given ID.
func (c *Chain) Purchase(id PurchaseID) (*Purchase, error) {
	if p, ok := c.Purchases[id]; ok {
		return p, nil
	}
	return nil, notFound(EntityPurchase, id)
}

// Supplement returns the live supplement with the given ID.
func (c *Chain) Supplement(id SupplementID) (*ChainSupplement, error) {
	if s, ok := c.Supplements[id]; ok {
		return s, nil
	}
	return nil, notFound(EntitySupplement, id)
}

// AltForm returns the live alt-form with the given ID.
func (c *Chain) AltForm(id AltFormID) (*AltForm, error) {
	if f, ok := c.AltForms[id]; ok {
		return f, nil
	}
	return nil, notFound(EntityAltForm, id)
}

// PurchaseGroup returns the live group owned by character.
func (c *Chain) PurchaseGroup(character CharacterID, id GroupID) (*PurchaseGroup, error) {
	if g, ok := c.PurchaseGroups[character][id]; ok {
		return g, nil
	}
	return nil, notFound(EntityPurchaseGroup, id)
}

// AllocateID returns the smallest non-negative ID not currently live for the
// given entity kind. Freed IDs become available again once their entity has
// been fully deregistered.
func (c *Chain) AllocateID(kind EntityType) int {
	switch kind {
	case EntityCharacter:
		return int(FreeID(c.Characters))
	case EntityJump:
		return int(FreeID(c.Jumps))
	case EntityPurchase:
		return int(FreeID(c.Purchases))
	case EntitySupplement:
		return int(FreeID(c.Supplements))
	case EntityAltForm:
		return int(FreeID(c.AltForms))
	case EntityPurchaseGroup:
		used := map[GroupID]struct{}{}
		for _, groups := range c.PurchaseGroups {
			for id := range groups {
				used[id] = struct{}{}
			}
		}
		return int(FreeID(used))
	default:
		panic("domain: unknown entity kind " + string(kind))
	}
}

// FreeID returns the smallest non-negative key absent from m.
func FreeID[K ID, V any](m map[K]V) K {
	var id K
	for {
		if _, ok := m[id]; !ok {
			return id
		}
		id++
	}
}

// JumpIndex returns the canonical position of a jump, or -1.
func (c *Chain) JumpIndex(id JumpID) int {
	return slices.Index(c.JumpList, id)
}

// ChunkRoot returns the root jump of the chunk containing id.
func (c *Chain) ChunkRoot(id JumpID) JumpID {
	j, ok := c.Jumps[id]
	if !ok || j.ParentJump == nil {
		return id
	}
	return *j.ParentJump
}

// IsRoot reports whether the jump starts its own chunk.
func (c *Chain) IsRoot(id JumpID) bool {
	j, ok := c.Jumps[id]
	return ok && j.ParentJump == nil
}

// SequenceNumber numbers root jumps 0, 1, ... in canonical order. Child jumps
// share the number of their root; -1 is returned for unknown jumps.
func (c *Chain) SequenceNumber(id JumpID) int {
	root := c.ChunkRoot(id)
	seq := -1
	for _, jid := range c.JumpList {
		if c.IsRoot(jid) {
			seq++
		}
		if jid == root {
			return seq
		}
	}
	return -1
}

// ChunkMembers returns the root followed by its children in canonical order.
func (c *Chain) ChunkMembers(root JumpID) []JumpID {
	var out []JumpID
	for _, jid := range c.JumpList {
		if c.ChunkRoot(jid) == root {
			out = append(out, jid)
		}
	}
	return out
}

// ChunkEnd returns the canonical index of the last member of the chunk
// containing id, or -1 when id is unknown.
func (c *Chain) ChunkEnd(id JumpID) int {
	root := c.ChunkRoot(id)
	end := -1
	for i, jid := range c.JumpList {
		if c.ChunkRoot(jid) == root {
			end = i
		}
	}
	return end
}

// PrimaryCharacters returns the primary characters in character-list order.
func (c *Chain) PrimaryCharacters() []CharacterID {
	var out []CharacterID
	for _, id := range c.CharacterList {
		if ch, ok := c.Characters[id]; ok && ch.Primary {
			out = append(out, id)
		}
	}
	return out
}

// IsPrimary reports whether the character exists and is primary.
func (c *Chain) IsPrimary(id CharacterID) bool {
	ch, ok := c.Characters[id]
	return ok && ch.Primary
}

// NewJump returns a jump with every container allocated and the stock
// configuration: one currency and one perk and one item subtype.
func NewJump(id JumpID, name string) *Jump {
	j := &Jump{ID: id, Name: name}
	j.normalize()
	j.Currencies[PrimaryCurrency] = Currency{Name: "Choice Points", Abbrev: "CP", Budget: 1000}
	j.Subtypes[0] = PurchaseSubtype{Name: "Perk", Type: KindPerk, Currency: PrimaryCurrency}
	j.Subtypes[1] = PurchaseSubtype{Name: "Item", Type: KindItem, Currency: PrimaryCurrency}
	return j
}

func (j *Jump) normalize() {
	if j.Characters == nil {
		j.Characters = IDSet[CharacterID]{}
	}
	if j.Currencies == nil {
		j.Currencies = map[CurrencyID]Currency{}
	}
	if j.Subtypes == nil {
		j.Subtypes = map[SubtypeID]PurchaseSubtype{}
	}
	if j.OriginCategories == nil {
		j.OriginCategories = map[OriginCategoryID]OriginCategory{}
	}
	j.Purchases = ensure(j.Purchases)
	j.Drawbacks = ensure(j.Drawbacks)
	j.RetainedDrawbacks = ensure(j.RetainedDrawbacks)
	j.DrawbackOverrides = ensure(j.DrawbackOverrides)
	j.Origins = ensure(j.Origins)
	j.BankDeposits = ensure(j.BankDeposits)
	j.CurrencyExchanges = ensure(j.CurrencyExchanges)
	j.SupplementPurchases = ensure(j.SupplementPurchases)
	j.SupplementInvestments = ensure(j.SupplementInvestments)
	j.SubsystemSummaries = ensure(j.SubsystemSummaries)
	j.Narratives = ensure(j.Narratives)
	j.AltForms = ensure(j.AltForms)
	j.Budgets = ensure(j.Budgets)
	j.Stipends = ensure(j.Stipends)
}

func ensure[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return map[K]V{}
	}
	return m
}

func (p *Purchase) normalize() {
	if p.Categories == nil {
		p.Categories = []int{}
	}
	if p.Import != nil {
		if p.Import.Characters == nil {
			p.Import.Characters = IDSet[CharacterID]{}
		}
		p.Import.Allowances = ensure(p.Import.Allowances)
		p.Import.Stipends = ensure(p.Import.Stipends)
	}
	if p.SupplementImport != nil && p.SupplementImport.Characters == nil {
		p.SupplementImport.Characters = IDSet[CharacterID]{}
	}
}

// ItemSubtype returns the lowest-ID subtype of type Item. Drawback item
// stipends are credited there.
func (j *Jump) ItemSubtype() (SubtypeID, bool) {
	ids := SortedKeys(j.Subtypes)
	for _, id := range ids {
		if j.Subtypes[id].Type == KindItem {
			return id, true
		}
	}
	return 0, false
}

// HasCharacter reports whether the character participates in the jump.
func (j *Jump) HasCharacter(id CharacterID) bool {
	return j.Characters.Has(id)
}

// Participants returns the jump's characters sorted by ID.
func (j *Jump) Participants() []CharacterID {
	return j.Characters.Sorted()
}
