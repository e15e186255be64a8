package core

import (
	"chainledger/pkg/domain"
	"errors"
	"fmt"
	"slices"
	"testing"
)

func expectPanic(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		if r == nil {
			t.Fatalf("expected panic")
		}
		err, ok := r.(error)
		if !ok || !errors.Is(err, target) {
			t.Fatalf("expected panic wrapping %v, got %v", target, r)
		}
	}()
	fn()
}

func TestUpdateCharacterRejectsIdentityChanges(t *testing.T) {
	s := newCheckedStore(t)
	hero := s.RegisterCharacter("Hero", true)
	s.Tracker().Reset()

	if err := s.UpdateCharacter(hero, func(c *domain.Character) error {
		c.Name = "Renamed"
		c.Notes = "from the north"
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := s.Chain().Characters[hero].Name; got != "Renamed" {
		t.Fatalf("name not updated: %q", got)
	}
	if s.Tracker().Len() != 1 {
		t.Fatalf("expected one pending record, got %v", s.Tracker().Records())
	}

	expectPanic(t, domain.ErrImmutableField, func() {
		_ = s.UpdateCharacter(hero, func(c *domain.Character) error {
			c.ID = 42
			return nil
		})
	})
	expectPanic(t, domain.ErrImmutableField, func() {
		_ = s.UpdateCharacter(hero, func(c *domain.Character) error {
			c.Primary = false
			return nil
		})
	})
	if ch := s.Chain().Characters[hero]; ch.ID != hero || !ch.Primary {
		t.Fatalf("rejected update leaked into the live character: %+v", ch)
	}
}

func TestUpdateMutatorErrorLeavesEntityUntouched(t *testing.T) {
	s := newCheckedStore(t)
	jump := mustJump(t, s, "A", nil)
	boom := errors.New("boom")
	err := s.UpdateJump(jump, func(j *domain.Jump) error {
		j.Name = "B"
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutator error, got %v", err)
	}
	if s.Chain().Jumps[jump].Name != "A" {
		t.Fatalf("failed update modified the jump")
	}
	expectPanic(t, domain.ErrImmutableField, func() {
		_ = s.UpdateJump(jump, func(j *domain.Jump) error {
			j.Currencies[5] = domain.Currency{Name: "Gold"}
			return nil
		})
	})
}

func TestUpdatePurchaseValidatesValuation(t *testing.T) {
	s := newCheckedStore(t)
	jump := mustJump(t, s, "A", nil)
	hero := s.RegisterCharacter("Hero", true)
	pid := mustPurchase(t, s, domain.Purchase{Kind: domain.KindPerk, Jump: &jump, Character: hero, Value: 100})

	if err := s.UpdatePurchase(pid, func(p *domain.Purchase) error {
		p.Modifier = domain.ModifierReduced
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := s.Chain().Purchases[pid].Cost(); got != 50 {
		t.Fatalf("reduced cost %d, want 50", got)
	}
	if err := s.UpdatePurchase(pid, func(p *domain.Purchase) error {
		p.Modifier = "half-off"
		return nil
	}); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected invalid modifier, got %v", err)
	}
	expectPanic(t, domain.ErrImmutableField, func() {
		_ = s.UpdatePurchase(pid, func(p *domain.Purchase) error {
			p.Kind = domain.KindItem
			return nil
		})
	})
}

func TestSetSupplementInvestmentClamps(t *testing.T) {
	s := newCheckedStore(t)
	jump := mustJump(t, s, "A", nil)
	hero := s.RegisterCharacter("Hero", true)
	sup := s.RegisterSupplement(domain.ChainSupplement{Name: "Cosmic Warehouse", MaxInvestment: 300, InvestmentRatio: 200})

	for _, tc := range []struct{ in, want int }{{-20, 0}, {120, 120}, {900, 300}} {
		got, err := s.SetSupplementInvestment(jump, hero, sup, tc.in)
		if err != nil {
			t.Fatalf("invest %d: %v", tc.in, err)
		}
		if got != tc.want || s.Chain().Jumps[jump].SupplementInvestments[hero][sup] != tc.want {
			t.Fatalf("invest %d stored %d, want %d", tc.in, got, tc.want)
		}
	}
	if err := s.UpdateSupplement(sup, func(c *domain.ChainSupplement) error {
		c.MaxInvestment = 100
		return nil
	}); err != nil {
		t.Fatalf("update supplement: %v", err)
	}
	if got := s.Chain().Jumps[jump].SupplementInvestments[hero][sup]; got != 100 {
		t.Fatalf("lowered maximum not applied to stored investment: %d", got)
	}
}

func TestPermanentBuyoffHasSingleAnchor(t *testing.T) {
	s := newCheckedStore(t)
	first := mustJump(t, s, "A", nil)
	second := mustJump(t, s, "B", nil)
	hero := s.RegisterCharacter("Hero", true)
	drawback := mustPurchase(t, s, domain.Purchase{Kind: domain.KindChainDrawback, Character: hero, Value: 300})
	permanent := &domain.DrawbackOverride{State: domain.OverrideBoughtOffPermanently}

	if err := s.SetDrawbackOverride(first, hero, drawback, permanent); err != nil {
		t.Fatalf("first buyoff: %v", err)
	}
	if err := s.SetDrawbackOverride(second, hero, drawback, permanent); err != nil {
		t.Fatalf("second buyoff: %v", err)
	}
	p := s.Chain().Purchases[drawback]
	if p.Buyoff == nil || p.Buyoff.Jump != second {
		t.Fatalf("buyoff anchor %+v, want jump %d", p.Buyoff, second)
	}
	if _, ok := s.Chain().Jumps[first].DrawbackOverrides[hero][drawback]; ok {
		t.Fatalf("stale permanent override left on the first jump")
	}
	if err := s.SetDrawbackOverride(second, hero, drawback, nil); err != nil {
		t.Fatalf("clear override: %v", err)
	}
	if p.Buyoff != nil {
		t.Fatalf("clearing the anchoring override must clear the buyoff")
	}
	perk := mustPurchase(t, s, domain.Purchase{Kind: domain.KindPerk, Jump: &first, Character: hero})
	if err := s.SetDrawbackOverride(first, hero, perk, permanent); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected overrides on perks to be rejected, got %v", err)
	}
}

func TestSetRetainedOnlyAcceptsLocalDrawbacks(t *testing.T) {
	s := newCheckedStore(t)
	jump := mustJump(t, s, "A", nil)
	hero := s.RegisterCharacter("Hero", true)
	drawback := mustPurchase(t, s, domain.Purchase{Kind: domain.KindDrawback, Jump: &jump, Character: hero, Value: 100})
	scenario := mustPurchase(t, s, domain.Purchase{Kind: domain.KindScenario, Jump: &jump, Character: hero})

	if err := s.SetRetained(jump, hero, drawback, true); err != nil {
		t.Fatalf("retain: %v", err)
	}
	if !s.Chain().Jumps[jump].RetainedDrawbacks[hero].Has(drawback) {
		t.Fatalf("drawback not retained")
	}
	if err := s.SetRetained(jump, hero, scenario, true); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected scenarios to be rejected, got %v", err)
	}
	if err := s.DeletePurchase(drawback); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(s.Chain().Jumps[jump].RetainedDrawbacks[hero]) != 0 {
		t.Fatalf("deleted drawback still retained")
	}
}

func TestReorderJumpsKeepsChunksContiguous(t *testing.T) {
	s := newCheckedStore(t)
	a := mustJump(t, s, "A", nil)
	a2 := mustJump(t, s, "A2", &a)
	b := mustJump(t, s, "B", nil)
	c := mustJump(t, s, "C", nil)

	if err := s.ReorderJumps([]domain.JumpID{a2, c, b, a}); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	want := []domain.JumpID{c, b, a, a2}
	if !slices.Equal(s.Chain().JumpList, want) {
		t.Fatalf("jump list %v, want %v", s.Chain().JumpList, want)
	}
	if err := s.ReorderJumps([]domain.JumpID{a, a, b, c}); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	if err := s.ReorderJumps([]domain.JumpID{a}); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected length rejection, got %v", err)
	}
}

func TestGroupMembershipFollowsPurchase(t *testing.T) {
	s := newCheckedStore(t)
	jump := mustJump(t, s, "A", nil)
	hero := s.RegisterCharacter("Hero", true)
	perks, _ := s.RegisterPurchaseGroup(hero, domain.KindPerk, "Perks", "")
	other, _ := s.RegisterPurchaseGroup(hero, domain.KindPerk, "More", "")
	items, _ := s.RegisterPurchaseGroup(hero, domain.KindItem, "Items", "")
	perk := mustPurchase(t, s, domain.Purchase{Kind: domain.KindPerk, Jump: &jump, Character: hero})

	if err := s.AddToGroup(perk, items); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected kind mismatch, got %v", err)
	}
	if err := s.AddToGroup(perk, perks); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddToGroup(perk, other); err != nil {
		t.Fatalf("move: %v", err)
	}
	groups := s.Chain().PurchaseGroups[hero]
	if len(groups[perks].Components) != 0 || !slices.Equal(groups[other].Components, []domain.PurchaseID{perk}) {
		t.Fatalf("unexpected components %v / %v", groups[perks].Components, groups[other].Components)
	}
	if err := s.DeletePurchaseGroup(hero, other); err != nil {
		t.Fatalf("delete group: %v", err)
	}
	if s.Chain().Purchases[perk].Group != nil {
		t.Fatalf("purchase kept a reference to the deleted group")
	}
}

func TestFeatureTogglesGateMutations(t *testing.T) {
	s := newCheckedStore(t)
	jump := mustJump(t, s, "A", nil)
	hero := s.RegisterCharacter("Hero", true)
	if _, err := s.RegisterAltForm(jump, hero, "Wolf"); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected alt-forms to be disabled, got %v", err)
	}
	if err := s.SetNarrative(jump, hero, domain.Narrative{Goals: "survive"}); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected narratives to be disabled, got %v", err)
	}
	s.UpdateChainSettings(domain.ChainSettings{AltForms: true, Narratives: true})
	form, err := s.RegisterAltForm(jump, hero, "Wolf")
	if err != nil {
		t.Fatalf("register alt-form: %v", err)
	}
	if err := s.DeleteAltForm(s.Chain().Characters[hero].OriginalForm); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected original form deletion to be rejected, got %v", err)
	}
	if err := s.DeleteAltForm(form); err != nil {
		t.Fatalf("delete alt-form: %v", err)
	}
	if err := s.SetNarrative(jump, hero, domain.Narrative{Goals: "survive"}); err != nil {
		t.Fatalf("narrative: %v", err)
	}
}

func TestCurrencyExchangesAndBank(t *testing.T) {
	s := newCheckedStore(t)
	jump := mustJump(t, s, "A", nil)
	hero := s.RegisterCharacter("Hero", true)
	if err := s.SetJumpCurrency(jump, 1, domain.Currency{Name: "Gold", Abbrev: "G", Budget: 50}); err != nil {
		t.Fatalf("currency: %v", err)
	}
	ex := domain.CurrencyExchange{From: 0, To: 1, FromAmount: 100, ToAmount: 10}
	if err := s.AddCurrencyExchange(jump, hero, ex); err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if err := s.AddCurrencyExchange(jump, hero, domain.CurrencyExchange{From: 0, To: 9}); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected unknown currency rejection, got %v", err)
	}
	if err := s.RemoveCurrencyExchange(jump, hero, 3); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected out of range, got %v", err)
	}
	if err := s.RemoveCurrencyExchange(jump, hero, 0); err != nil {
		t.Fatalf("remove exchange: %v", err)
	}
	if err := s.UpdateBank(domain.BankSettings{Enabled: true, DepositRatio: -1}); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected bank validation, got %v", err)
	}
	if err := s.SetBankDeposit(jump, hero, 250); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got := s.Chain().Jumps[jump].BankDeposits[hero]; got != 250 {
		t.Fatalf("deposit stored %d", got)
	}
}

func TestSetCharacterPrimaryMovesMembership(t *testing.T) {
	s := newCheckedStore(t)
	a := mustJump(t, s, "A", nil)
	b := mustJump(t, s, "B", nil)
	hero := s.RegisterCharacter("Hero", true)
	ally := s.RegisterCharacter("Ally", false)
	imp := mustPurchase(t, s, domain.Purchase{Kind: domain.KindImport, Jump: &a, Character: hero, Import: &domain.ImportGrant{Characters: domain.NewIDSet(ally)}})

	if err := s.SetCharacterPrimary(ally, true); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if s.Chain().Purchases[imp].Import.Characters.Has(ally) {
		t.Fatalf("primary still named in an import grant")
	}
	for _, jid := range []domain.JumpID{a, b} {
		if !s.Chain().Jumps[jid].HasCharacter(ally) {
			t.Fatalf("promoted character missing from jump %d", jid)
		}
	}
	if err := s.SetCharacterPrimary(ally, false); err != nil {
		t.Fatalf("demote: %v", err)
	}
	for _, jid := range []domain.JumpID{a, b} {
		if s.Chain().Jumps[jid].HasCharacter(ally) {
			t.Fatalf("demoted character still in jump %d", jid)
		}
	}
	assertTablesAligned(t, s)
}

func TestMutationsReportToObserver(t *testing.T) {
	obs := &recordingObserver{}
	s := newCheckedStore(t, WithObserver(obs))
	jump := mustJump(t, s, "A", nil)
	s.RegisterCharacter("Hero", true)
	if err := s.UpdateJump(jump, func(j *domain.Jump) error {
		j.Duration = domain.Duration{Years: 10}
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	want := []string{"register_jump", "register_character", "update_jump"}
	if fmt.Sprint(obs.ops) != fmt.Sprint(want) {
		t.Fatalf("ops %v, want %v", obs.ops, want)
	}
}
