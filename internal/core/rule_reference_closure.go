package core

import (
	"chainledger/pkg/domain"
	"fmt"
)

// ReferenceClosureRule reports any ID stored in the graph that does not
// resolve to a live entity of the expected kind.
func ReferenceClosureRule() domain.Rule {
	return referenceClosureRule{}
}

type referenceClosureRule struct{}

func (referenceClosureRule) Name() string { return "reference_closure" }

func (referenceClosureRule) Evaluate(chain *domain.Chain, _ []domain.Record) domain.Result {
	v := closureCheck{chain: chain}
	v.lists()
	for _, id := range domain.SortedKeys(chain.Characters) {
		if _, err := chain.AltForm(chain.Characters[id].OriginalForm); err != nil {
			v.fail(domain.EntityCharacter, int(id), "original form: %v", err)
		}
	}
	for _, id := range domain.SortedKeys(chain.Jumps) {
		v.jump(chain.Jumps[id])
	}
	for _, id := range domain.SortedKeys(chain.Purchases) {
		v.purchase(chain.Purchases[id])
	}
	for _, cid := range domain.SortedKeys(chain.PurchaseGroups) {
		if _, err := chain.Character(cid); err != nil {
			v.fail(domain.EntityPurchaseGroup, int(cid), "group table owner: %v", err)
		}
		for _, gid := range domain.SortedKeys(chain.PurchaseGroups[cid]) {
			for _, pid := range chain.PurchaseGroups[cid][gid].Components {
				p, err := chain.Purchase(pid)
				if err != nil {
					v.fail(domain.EntityPurchaseGroup, int(gid), "component: %v", err)
					continue
				}
				if p.Group == nil || *p.Group != gid {
					v.fail(domain.EntityPurchaseGroup, int(gid), "component %d does not point back at the group", pid)
				}
			}
		}
	}
	for _, id := range domain.SortedKeys(chain.AltForms) {
		f := chain.AltForms[id]
		if _, err := chain.Character(f.Character); err != nil {
			v.fail(domain.EntityAltForm, int(id), "owner: %v", err)
		}
		if f.Jump != nil {
			if _, err := chain.Jump(*f.Jump); err != nil {
				v.fail(domain.EntityAltForm, int(id), "jump: %v", err)
			}
		}
	}
	return v.res
}

type closureCheck struct {
	chain *domain.Chain
	res   domain.Result
}

func (v *closureCheck) fail(entity domain.EntityType, id int, format string, args ...any) {
	v.res.Violations = append(v.res.Violations, domain.Violation{
		Rule:     "reference_closure",
		Severity: domain.SeverityBlock,
		Message:  fmt.Sprintf("%s %d %s", entity, id, fmt.Sprintf(format, args...)),
		Entity:   entity,
		ID:       id,
	})
}

func (v *closureCheck) lists() {
	c := v.chain
	if len(c.JumpList) != len(c.Jumps) {
		v.fail(domain.EntityJump, -1, "jump list holds %d entries for %d jumps", len(c.JumpList), len(c.Jumps))
	}
	for _, id := range c.JumpList {
		if _, err := c.Jump(id); err != nil {
			v.fail(domain.EntityJump, int(id), "listed: %v", err)
		}
	}
	if len(c.CharacterList) != len(c.Characters) {
		v.fail(domain.EntityCharacter, -1, "character list holds %d entries for %d characters", len(c.CharacterList), len(c.Characters))
	}
	for _, id := range c.CharacterList {
		if _, err := c.Character(id); err != nil {
			v.fail(domain.EntityCharacter, int(id), "listed: %v", err)
		}
	}
	for _, id := range c.ChainDrawbacks {
		if _, err := c.Purchase(id); err != nil {
			v.fail(domain.EntityPurchase, int(id), "chain drawback: %v", err)
		}
	}
}

func (v *closureCheck) jump(j *domain.Jump) {
	c := v.chain
	id := int(j.ID)
	if j.ParentJump != nil {
		if !c.IsRoot(*j.ParentJump) {
			v.fail(domain.EntityJump, id, "parent %d is not a live root jump", *j.ParentJump)
		}
	}
	purchase := func(table string, pid domain.PurchaseID) {
		if _, err := c.Purchase(pid); err != nil {
			v.fail(domain.EntityJump, id, "%s: %v", table, err)
		}
	}
	for _, cid := range j.Participants() {
		if _, err := c.Character(cid); err != nil {
			v.fail(domain.EntityJump, id, "participant: %v", err)
		}
		for _, pid := range j.Purchases[cid] {
			purchase("purchases", pid)
		}
		for _, pid := range j.Drawbacks[cid] {
			purchase("drawbacks", pid)
		}
		for pid := range j.RetainedDrawbacks[cid] {
			purchase("retained_drawbacks", pid)
		}
		for pid := range j.DrawbackOverrides[cid] {
			purchase("drawback_overrides", pid)
		}
		for sid, list := range j.SupplementPurchases[cid] {
			if _, err := c.Supplement(sid); err != nil {
				v.fail(domain.EntityJump, id, "supplement_purchases: %v", err)
			}
			for _, pid := range list {
				purchase("supplement_purchases", pid)
			}
		}
		for sid := range j.SupplementInvestments[cid] {
			if _, err := c.Supplement(sid); err != nil {
				v.fail(domain.EntityJump, id, "supplement_investments: %v", err)
			}
		}
		for _, summaries := range j.SubsystemSummaries[cid] {
			for _, summary := range summaries {
				purchase("subsystem_summaries", summary.Purchase)
				for _, pid := range summary.Subpurchases {
					purchase("subsystem_summaries", pid)
				}
			}
		}
		for _, fid := range j.AltForms[cid] {
			if _, err := c.AltForm(fid); err != nil {
				v.fail(domain.EntityJump, id, "alt_forms: %v", err)
			}
		}
	}
	// every live supplement has an entry for every participant
	for sid := range c.Supplements {
		for _, cid := range j.Participants() {
			if _, ok := j.SupplementInvestments[cid][sid]; !ok {
				v.fail(domain.EntityJump, id, "character %d has no investment entry for supplement %d", cid, sid)
			}
		}
	}
}

func (v *closureCheck) purchase(p *domain.Purchase) {
	c := v.chain
	id := int(p.ID)
	if _, err := c.Character(p.Character); err != nil {
		v.fail(domain.EntityPurchase, id, "owner: %v", err)
	}
	if p.Jump != nil {
		j, err := c.Jump(*p.Jump)
		if err != nil {
			v.fail(domain.EntityPurchase, id, "jump: %v", err)
		} else if !j.HasCharacter(p.Character) {
			v.fail(domain.EntityPurchase, id, "owner %d is not part of jump %d", p.Character, j.ID)
		}
	}
	if p.Supplement != nil {
		if _, err := c.Supplement(*p.Supplement); err != nil {
			v.fail(domain.EntityPurchase, id, "supplement: %v", err)
		}
	}
	if p.Parent != nil {
		if _, err := c.Purchase(*p.Parent); err != nil {
			v.fail(domain.EntityPurchase, id, "parent: %v", err)
		}
	}
	if p.Group != nil {
		if _, err := c.PurchaseGroup(p.Character, *p.Group); err != nil {
			v.fail(domain.EntityPurchase, id, "group: %v", err)
		}
	}
	if p.Buyoff != nil {
		if _, err := c.Jump(p.Buyoff.Jump); err != nil {
			v.fail(domain.EntityPurchase, id, "buyoff: %v", err)
		}
		if _, err := c.Character(p.Buyoff.Character); err != nil {
			v.fail(domain.EntityPurchase, id, "buyoff: %v", err)
		}
	}
	if p.Import != nil {
		for _, cid := range p.Import.Characters.Sorted() {
			if _, err := c.Character(cid); err != nil {
				v.fail(domain.EntityPurchase, id, "import grant: %v", err)
			}
		}
	}
	if p.SupplementImport != nil {
		for _, cid := range p.SupplementImport.Characters.Sorted() {
			if _, err := c.Character(cid); err != nil {
				v.fail(domain.EntityPurchase, id, "supplement grant: %v", err)
			}
		}
	}
}
