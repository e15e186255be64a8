package core

import (
	"chainledger/pkg/domain"
	"errors"
	"slices"
	"testing"
)

type recordingObserver struct {
	ops      []string
	cascades map[domain.EntityType]int
}

func (o *recordingObserver) Mutation(op string) { o.ops = append(o.ops, op) }

func (o *recordingObserver) Cascade(entity domain.EntityType, _ int) {
	if o.cascades == nil {
		o.cascades = map[domain.EntityType]int{}
	}
	o.cascades[entity]++
}

func newCheckedStore(t *testing.T, opts ...StoreOption) *Store {
	t.Helper()
	opts = append([]StoreOption{WithRulesEngine(NewDefaultRulesEngine())}, opts...)
	return NewStore(domain.NewChain("test"), opts...)
}

func mustJump(t *testing.T, s *Store, name string, parent *domain.JumpID) domain.JumpID {
	t.Helper()
	id, err := s.RegisterJump(name, parent)
	if err != nil {
		t.Fatalf("register jump %s: %v", name, err)
	}
	return id
}

func mustPurchase(t *testing.T, s *Store, p domain.Purchase) domain.PurchaseID {
	t.Helper()
	id, err := s.RegisterPurchase(p)
	if err != nil {
		t.Fatalf("register %s purchase: %v", p.Kind, err)
	}
	return id
}

func assertTablesAligned(t *testing.T, s *Store) {
	t.Helper()
	for _, jid := range s.Chain().JumpList {
		j := s.Chain().Jumps[jid]
		for _, table := range domain.CharacterTables {
			if !TableKeys(j, table).Equal(j.Characters) {
				t.Fatalf("jump %d table %s keys %v, participants %v", jid, table, TableKeys(j, table).Sorted(), j.Characters.Sorted())
			}
		}
	}
}

func TestPrimaryCharactersJoinEveryJump(t *testing.T) {
	s := newCheckedStore(t)
	first := mustJump(t, s, "Pokemon", nil)
	hero := s.RegisterCharacter("Hero", true)
	companion := s.RegisterCharacter("Sidekick", false)
	second := mustJump(t, s, "Naruto", nil)

	for _, jid := range []domain.JumpID{first, second} {
		j := s.Chain().Jumps[jid]
		if !j.HasCharacter(hero) {
			t.Fatalf("primary missing from jump %d", jid)
		}
		if j.HasCharacter(companion) {
			t.Fatalf("companion joined jump %d without an import", jid)
		}
	}
	if _, ok := s.Chain().AltForms[s.Chain().Characters[hero].OriginalForm]; !ok {
		t.Fatalf("original form not created")
	}
	assertTablesAligned(t, s)
}

func TestRegisterJumpWithParentJoinsRootChunk(t *testing.T) {
	s := newCheckedStore(t)
	root := mustJump(t, s, "A", nil)
	other := mustJump(t, s, "B", nil)
	child := mustJump(t, s, "A2", &root)
	grandchild := mustJump(t, s, "A3", &child)

	if got := *s.Chain().Jumps[grandchild].ParentJump; got != root {
		t.Fatalf("parent not normalized to root: got %d", got)
	}
	want := []domain.JumpID{root, child, grandchild, other}
	if !slices.Equal(s.Chain().JumpList, want) {
		t.Fatalf("jump list %v, want %v", s.Chain().JumpList, want)
	}
	missing := domain.JumpID(99)
	if _, err := s.RegisterJump("X", &missing); !errors.Is(err, domain.ErrNotFound{Entity: domain.EntityJump}) {
		t.Fatalf("expected jump not found, got %v", err)
	}
}

func TestImportGrantAddsAndPrunesCompanions(t *testing.T) {
	obs := &recordingObserver{}
	s := newCheckedStore(t, WithObserver(obs))
	jump := mustJump(t, s, "Bleach", nil)
	hero := s.RegisterCharacter("Hero", true)
	companion := s.RegisterCharacter("Ally", false)

	imp := mustPurchase(t, s, domain.Purchase{
		Kind:      domain.KindImport,
		Jump:      &jump,
		Character: hero,
		Value:     100,
		Import: &domain.ImportGrant{
			Characters: domain.NewIDSet(companion, hero),
			Allowances: map[domain.CurrencyID]int{domain.PrimaryCurrency: 600},
		},
	})
	j := s.Chain().Jumps[jump]
	if !j.HasCharacter(companion) {
		t.Fatalf("imported companion did not join the jump")
	}
	if s.Chain().Purchases[imp].Import.Characters.Has(hero) {
		t.Fatalf("importer should not be part of its own grant")
	}
	perk := mustPurchase(t, s, domain.Purchase{Kind: domain.KindPerk, Jump: &jump, Character: companion, Value: 50})
	assertTablesAligned(t, s)

	if err := s.DeletePurchase(imp); err != nil {
		t.Fatalf("delete import: %v", err)
	}
	if j.HasCharacter(companion) {
		t.Fatalf("companion should leave once no import grants them")
	}
	if _, ok := s.Chain().Purchases[perk]; ok {
		t.Fatalf("companion purchase survived removal from the jump")
	}
	if obs.cascades[domain.EntityPurchase] != 2 {
		t.Fatalf("expected 2 purchase cascades, got %d", obs.cascades[domain.EntityPurchase])
	}
	assertTablesAligned(t, s)
}

func TestSecondImportKeepsCompanion(t *testing.T) {
	s := newCheckedStore(t)
	jump := mustJump(t, s, "Bleach", nil)
	hero := s.RegisterCharacter("Hero", true)
	companion := s.RegisterCharacter("Ally", false)
	grant := func() *domain.ImportGrant {
		return &domain.ImportGrant{Characters: domain.NewIDSet(companion)}
	}
	first := mustPurchase(t, s, domain.Purchase{Kind: domain.KindImport, Jump: &jump, Character: hero, Import: grant()})
	mustPurchase(t, s, domain.Purchase{Kind: domain.KindImport, Jump: &jump, Character: hero, Import: grant()})

	if err := s.DeletePurchase(first); err != nil {
		t.Fatalf("delete import: %v", err)
	}
	if !s.Chain().Jumps[jump].HasCharacter(companion) {
		t.Fatalf("companion still granted by the second import was removed")
	}
}

func TestRemovePrimaryFromJumpIsRejected(t *testing.T) {
	s := newCheckedStore(t)
	jump := mustJump(t, s, "A", nil)
	hero := s.RegisterCharacter("Hero", true)
	if err := s.RemoveCharacterFromJump(jump, hero); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestDeleteJumpPromotesChildrenAndClearsBuyoffs(t *testing.T) {
	s := newCheckedStore(t)
	root := mustJump(t, s, "A", nil)
	child := mustJump(t, s, "A2", &root)
	later := mustJump(t, s, "B", nil)
	hero := s.RegisterCharacter("Hero", true)
	chainDrawback := mustPurchase(t, s, domain.Purchase{Kind: domain.KindChainDrawback, Character: hero, Value: 200})
	if err := s.SetDrawbackOverride(root, hero, chainDrawback, &domain.DrawbackOverride{State: domain.OverrideBoughtOffPermanently}); err != nil {
		t.Fatalf("buy off: %v", err)
	}

	if err := s.DeleteJump(root); err != nil {
		t.Fatalf("delete jump: %v", err)
	}
	if s.Chain().Jumps[child].ParentJump != nil {
		t.Fatalf("child of a deleted root must become a root")
	}
	if s.Chain().Purchases[chainDrawback].Buyoff != nil {
		t.Fatalf("buyoff anchored to the deleted jump survived")
	}
	if !slices.Equal(s.Chain().JumpList, []domain.JumpID{child, later}) {
		t.Fatalf("jump list %v", s.Chain().JumpList)
	}
	if err := s.DeleteJump(root); !errors.Is(err, domain.ErrNotFound{}) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestDeleteCharacterCascades(t *testing.T) {
	obs := &recordingObserver{}
	s := newCheckedStore(t, WithObserver(obs))
	s.UpdateChainSettings(domain.ChainSettings{AltForms: true})
	jump := mustJump(t, s, "A", nil)
	hero := s.RegisterCharacter("Hero", true)
	ally := s.RegisterCharacter("Ally", false)

	imp := mustPurchase(t, s, domain.Purchase{Kind: domain.KindImport, Jump: &jump, Character: hero, Import: &domain.ImportGrant{Characters: domain.NewIDSet(ally)}})
	group, err := s.RegisterPurchaseGroup(ally, domain.KindPerk, "Magic", "")
	if err != nil {
		t.Fatalf("register group: %v", err)
	}
	mustPurchase(t, s, domain.Purchase{Kind: domain.KindPerk, Jump: &jump, Character: ally, Value: 100, Group: &group})
	mustPurchase(t, s, domain.Purchase{Kind: domain.KindChainDrawback, Character: ally, Value: 50})
	if _, err := s.RegisterAltForm(jump, ally, "Wolf"); err != nil {
		t.Fatalf("register alt-form: %v", err)
	}

	if err := s.DeleteCharacter(ally); err != nil {
		t.Fatalf("delete character: %v", err)
	}
	c := s.Chain()
	if _, ok := c.Characters[ally]; ok || slices.Contains(c.CharacterList, ally) {
		t.Fatalf("character still listed")
	}
	if c.Purchases[imp].Import.Characters.Has(ally) {
		t.Fatalf("import grant still names the deleted character")
	}
	if len(c.ChainDrawbacks) != 0 {
		t.Fatalf("chain drawback of the deleted character survived: %v", c.ChainDrawbacks)
	}
	if _, ok := c.PurchaseGroups[ally]; ok {
		t.Fatalf("purchase groups survived")
	}
	for _, f := range c.AltForms {
		if f.Character == ally {
			t.Fatalf("alt-form %d survived", f.ID)
		}
	}
	if obs.cascades[domain.EntityAltForm] != 2 || obs.cascades[domain.EntityPurchaseGroup] != 1 || obs.cascades[domain.EntityCharacter] != 1 {
		t.Fatalf("unexpected cascades %v", obs.cascades)
	}
	assertTablesAligned(t, s)
}

func TestDeleteSupplementRemovesPurchasesAndEntries(t *testing.T) {
	s := newCheckedStore(t)
	jump := mustJump(t, s, "A", nil)
	hero := s.RegisterCharacter("Hero", true)
	sup := s.RegisterSupplement(domain.ChainSupplement{Name: "Body Mod", InvestmentRatio: 100})
	if got := s.Chain().Jumps[jump].SupplementInvestments[hero]; len(got) != 1 {
		t.Fatalf("supplement entries not initialized: %v", got)
	}
	pid := mustPurchase(t, s, domain.Purchase{Kind: domain.KindSupplement, Jump: &jump, Character: hero, Supplement: &sup, Value: 100})

	if err := s.DeleteSupplement(sup); err != nil {
		t.Fatalf("delete supplement: %v", err)
	}
	j := s.Chain().Jumps[jump]
	if _, ok := s.Chain().Purchases[pid]; ok {
		t.Fatalf("supplement purchase survived")
	}
	if _, ok := j.SupplementPurchases[hero][sup]; ok {
		t.Fatalf("supplement purchase entry survived")
	}
	if _, ok := j.SupplementInvestments[hero][sup]; ok {
		t.Fatalf("supplement investment entry survived")
	}
}

func TestDeleteSubsystemAccessDeletesSubpurchases(t *testing.T) {
	s := newCheckedStore(t)
	jump := mustJump(t, s, "A", nil)
	hero := s.RegisterCharacter("Hero", true)
	const subsystem domain.SubtypeID = 2
	if err := s.SetJumpSubtype(jump, subsystem, domain.PurchaseSubtype{Name: "Magic", Type: domain.KindPerk, Currency: domain.PrimaryCurrency, Subsystem: true}); err != nil {
		t.Fatalf("set subtype: %v", err)
	}
	sub := subsystem
	access := mustPurchase(t, s, domain.Purchase{Kind: domain.KindPerk, Jump: &jump, Character: hero, Value: 200, Subtype: &sub})
	spell := mustPurchase(t, s, domain.Purchase{Kind: domain.KindSubsystem, Jump: &jump, Character: hero, Value: 50, Subtype: &sub, Parent: &access})

	j := s.Chain().Jumps[jump]
	if got := j.SubsystemSummaries[hero][subsystem]; len(got) != 1 || !slices.Equal(got[0].Subpurchases, []domain.PurchaseID{spell}) {
		t.Fatalf("unexpected summaries %+v", got)
	}
	if err := s.SetJumpSubtype(jump, subsystem, domain.PurchaseSubtype{Name: "Magic", Type: domain.KindPerk, Currency: domain.PrimaryCurrency}); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected subsystem flag change to be rejected, got %v", err)
	}

	if err := s.DeletePurchase(access); err != nil {
		t.Fatalf("delete access: %v", err)
	}
	if _, ok := s.Chain().Purchases[spell]; ok {
		t.Fatalf("subpurchase survived its access purchase")
	}
	if _, ok := j.SubsystemSummaries[hero][subsystem]; ok {
		t.Fatalf("empty summary list should be dropped")
	}
	if s.Chain().Characters[hero].PerkCount != 0 {
		t.Fatalf("perk counter not decremented: %d", s.Chain().Characters[hero].PerkCount)
	}
}

func TestRegisterPurchaseValidation(t *testing.T) {
	s := newCheckedStore(t)
	jump := mustJump(t, s, "A", nil)
	hero := s.RegisterCharacter("Hero", true)
	companion := s.RegisterCharacter("Ally", false)
	badCurrency := domain.CurrencyID(7)

	cases := map[string]domain.Purchase{
		"perk without jump":        {Kind: domain.KindPerk, Character: hero},
		"chain drawback with jump": {Kind: domain.KindChainDrawback, Jump: &jump, Character: hero},
		"owner outside jump":       {Kind: domain.KindPerk, Jump: &jump, Character: companion},
		"unknown currency":         {Kind: domain.KindPerk, Jump: &jump, Character: hero, Currency: badCurrency},
		"supplement missing":       {Kind: domain.KindSupplement, Jump: &jump, Character: hero},
		"buyoff set directly":      {Kind: domain.KindDrawback, Jump: &jump, Character: hero, Buyoff: &domain.Buyoff{Jump: jump, Character: hero}},
	}
	for name, p := range cases {
		if _, err := s.RegisterPurchase(p); !errors.Is(err, domain.ErrInvalid) {
			t.Fatalf("%s: expected invalid argument, got %v", name, err)
		}
	}
	if len(s.Chain().Purchases) != 0 {
		t.Fatalf("rejected purchases were stored")
	}
}

func TestAllocatorReusesSmallestFreeID(t *testing.T) {
	s := newCheckedStore(t)
	jump := mustJump(t, s, "A", nil)
	hero := s.RegisterCharacter("Hero", true)
	a := mustPurchase(t, s, domain.Purchase{Kind: domain.KindPerk, Jump: &jump, Character: hero})
	mustPurchase(t, s, domain.Purchase{Kind: domain.KindPerk, Jump: &jump, Character: hero})
	if err := s.DeletePurchase(a); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := mustPurchase(t, s, domain.Purchase{Kind: domain.KindItem, Jump: &jump, Character: hero}); got != a {
		t.Fatalf("expected freed id %d to be reused, got %d", a, got)
	}
}
