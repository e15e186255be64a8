package core

import (
	"bytes"
	"chainledger/pkg/domain"
	"encoding/json"
	"fmt"
)

// edit runs mutate against a deep copy of live. If the mutator changes any
// field selected by guarded the call panics with ErrImmutableField; those
// fields belong to the lifecycle paths or to a named mutation. On success
// the copy replaces live and changed reports whether anything differs.
func edit[T any](label string, live *T, mutate func(*T) error, guarded func(*T) any) (changed bool, err error) {
	before := mustJSON(label, live)
	draft := new(T)
	mustApply(label, json.Unmarshal(before, draft))
	if err := mutate(draft); err != nil {
		return false, err
	}
	if !bytes.Equal(mustJSON(label, guarded(live)), mustJSON(label, guarded(draft))) {
		panic(fmt.Errorf("%s: %w", label, domain.ErrImmutableField))
	}
	after := mustJSON(label, draft)
	if bytes.Equal(before, after) {
		return false, nil
	}
	*live = *draft
	return true, nil
}

func mustJSON(label string, v any) []byte {
	raw, err := json.Marshal(v)
	mustApply(label, err)
	return raw
}

// UpdateCharacter edits the free-form fields of a character (name, notes).
func (s *Store) UpdateCharacter(id domain.CharacterID, mutate func(*domain.Character) error) error {
	defer s.begin("update_character")()
	ch, err := s.chain.Character(id)
	if err != nil {
		return err
	}
	changed, err := edit(fmt.Sprintf("update character %d", id), ch, mutate, func(c *domain.Character) any {
		return []any{c.ID, c.Primary, c.PerkCount, c.ItemCount, c.OriginalForm}
	})
	if err != nil || !changed {
		return err
	}
	s.push(domain.ActionUpdate, domain.EntityCharacter, id)
	return nil
}

// UpdateJump edits the descriptive fields of a jump (name, duration, notes,
// supplement and alt-form toggles). Participants, parentage, configuration
// and per-character tables have their own mutations.
func (s *Store) UpdateJump(id domain.JumpID, mutate func(*domain.Jump) error) error {
	defer s.begin("update_jump")()
	j, err := s.chain.Jump(id)
	if err != nil {
		return err
	}
	changed, err := edit(fmt.Sprintf("update jump %d", id), j, mutate, func(j *domain.Jump) any {
		guarded := *j
		guarded.Name, guarded.Duration, guarded.Notes = "", domain.Duration{}, ""
		guarded.UseSupplements, guarded.UseAltForms = false, false
		return guarded
	})
	if err != nil || !changed {
		return err
	}
	for _, field := range []string{"name", "duration", "notes", "use_supplements", "use_alt_forms"} {
		s.push(domain.ActionUpdate, domain.EntityJump, id, field)
	}
	return nil
}

// UpdatePurchase edits the valuation and descriptive fields of a purchase.
// Ownership, placement, grant recipients, group membership and buyoffs have
// their own mutations.
func (s *Store) UpdatePurchase(id domain.PurchaseID, mutate func(*domain.Purchase) error) error {
	defer s.begin("update_purchase")()
	p, err := s.chain.Purchase(id)
	if err != nil {
		return err
	}
	check := func(draft *domain.Purchase) error {
		if err := mutate(draft); err != nil {
			return err
		}
		if draft.Jump != nil {
			if j := s.chain.Jumps[*draft.Jump]; j != nil {
				if _, ok := j.Currencies[draft.Currency]; !ok {
					return domain.Invalidf("jump %d has no currency %d", j.ID, draft.Currency)
				}
			}
		}
		switch draft.Modifier {
		case domain.ModifierFull, domain.ModifierReduced, domain.ModifierFree, domain.ModifierCustom:
		default:
			return domain.Invalidf("unknown cost modifier %q", draft.Modifier)
		}
		if draft.Categories == nil {
			draft.Categories = []int{}
		}
		return nil
	}
	changed, err := edit(fmt.Sprintf("update purchase %d", id), p, check, purchaseIdentity)
	if err != nil || !changed {
		return err
	}
	s.push(domain.ActionUpdate, domain.EntityPurchase, id)
	return nil
}

func purchaseIdentity(p *domain.Purchase) any {
	var importChars, supplementChars domain.IDSet[domain.CharacterID]
	if p.Import != nil {
		importChars = p.Import.Characters
	}
	if p.SupplementImport != nil {
		supplementChars = p.SupplementImport.Characters
	}
	return []any{
		p.ID, p.Kind, p.Jump, p.Character, p.Subtype, p.Buyoff, p.Supplement, p.Parent, p.Group,
		p.Import != nil, importChars, p.SupplementImport != nil, supplementChars,
	}
}

// UpdateSupplement edits a supplement's rules. Stored investments are clamped
// again when the maximum changes.
func (s *Store) UpdateSupplement(id domain.SupplementID, mutate func(*domain.ChainSupplement) error) error {
	defer s.begin("update_supplement")()
	sup, err := s.chain.Supplement(id)
	if err != nil {
		return err
	}
	check := func(draft *domain.ChainSupplement) error {
		if err := mutate(draft); err != nil {
			return err
		}
		switch draft.CompanionAccess {
		case domain.AccessUnavailable, domain.AccessAvailable, domain.AccessCommunal, domain.AccessPartial:
		default:
			return domain.Invalidf("unknown companion access %q", draft.CompanionAccess)
		}
		if draft.Categories == nil {
			draft.Categories = []string{}
		}
		return nil
	}
	changed, err := edit(fmt.Sprintf("update supplement %d", id), sup, check, func(s *domain.ChainSupplement) any {
		return s.ID
	})
	if err != nil || !changed {
		return err
	}
	s.push(domain.ActionUpdate, domain.EntitySupplement, id)
	for _, jid := range s.chain.JumpList {
		j := s.chain.Jumps[jid]
		for _, cid := range j.Participants() {
			current := j.SupplementInvestments[cid][id]
			if clamped := clampInvestment(current, sup.MaxInvestment); clamped != current {
				j.SupplementInvestments[cid][id] = clamped
				s.push(domain.ActionUpdate, domain.EntityJump, jid, "supplement_investments", cid, id)
			}
		}
	}
	return nil
}

// UpdateAltForm edits the descriptive fields of an alt-form.
func (s *Store) UpdateAltForm(id domain.AltFormID, mutate func(*domain.AltForm) error) error {
	defer s.begin("update_alt_form")()
	f, err := s.chain.AltForm(id)
	if err != nil {
		return err
	}
	changed, err := edit(fmt.Sprintf("update alt-form %d", id), f, mutate, func(f *domain.AltForm) any {
		return []any{f.ID, f.Character, f.Jump}
	})
	if err != nil || !changed {
		return err
	}
	s.push(domain.ActionUpdate, domain.EntityAltForm, id)
	return nil
}
