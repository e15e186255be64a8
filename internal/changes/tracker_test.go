package changes

import (
	"chainledger/pkg/domain"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

func jumpPath(id domain.JumpID, rest ...any) domain.Path {
	return domain.P(append([]any{domain.EntityJump, id}, rest...)...)
}

func TestPushSameUpdateTwiceKeepsOne(t *testing.T) {
	tr := New()
	p := jumpPath(1, "name")
	tr.Push(p, domain.ActionUpdate)
	tr.Push(p, domain.ActionUpdate)
	if tr.Len() != 1 {
		t.Fatalf("expected one record, got %d", tr.Len())
	}
}

func TestPushNewThenDeleteCancels(t *testing.T) {
	tr := New()
	p := domain.P(domain.EntityPurchase, domain.PurchaseID(3))
	tr.Push(p, domain.ActionNew)
	tr.Push(p, domain.ActionDelete)
	if tr.Len() != 0 {
		t.Fatalf("expected records to cancel, got %+v", tr.Records())
	}
}

func TestPushParentAfterChildReplacesChild(t *testing.T) {
	tr := New()
	tr.Push(jumpPath(1, "purchases", domain.CharacterID(0)), domain.ActionUpdate)
	tr.Push(jumpPath(1, "drawbacks", domain.CharacterID(0)), domain.ActionUpdate)
	tr.Push(jumpPath(1), domain.ActionUpdate)
	recs := tr.Records()
	if len(recs) != 1 || !recs[0].Path.Equal(jumpPath(1)) {
		t.Fatalf("expected single parent record, got %+v", recs)
	}
}

func TestPushChildUnderPendingParentIsDropped(t *testing.T) {
	tr := New()
	tr.Push(jumpPath(2), domain.ActionNew)
	tr.Push(jumpPath(2, "bank_deposits", domain.CharacterID(0)), domain.ActionUpdate)
	recs := tr.Records()
	if len(recs) != 1 || recs[0].Action != domain.ActionNew {
		t.Fatalf("expected child to be absorbed, got %+v", recs)
	}
}

func TestMergeActions(t *testing.T) {
	cases := []struct {
		older, newer domain.Action
		want         domain.Action
		keep         bool
	}{
		{domain.ActionNew, domain.ActionDelete, "", false},
		{domain.ActionUpdate, domain.ActionDelete, domain.ActionDelete, true},
		{domain.ActionDelete, domain.ActionDelete, domain.ActionDelete, true},
		{domain.ActionNew, domain.ActionUpdate, domain.ActionNew, true},
		{domain.ActionUpdate, domain.ActionNew, domain.ActionNew, true},
		{domain.ActionDelete, domain.ActionNew, domain.ActionUpdate, true},
		{domain.ActionUpdate, domain.ActionUpdate, domain.ActionUpdate, true},
	}
	for _, tc := range cases {
		got, keep := mergeActions(tc.older, tc.newer)
		if got != tc.want || keep != tc.keep {
			t.Fatalf("%s then %s: expected (%q,%v), got (%q,%v)", tc.older, tc.newer, tc.want, tc.keep, got, keep)
		}
	}
}

func TestRecordsNeverPrefixEachOther(t *testing.T) {
	tr := New()
	paths := []domain.Path{
		jumpPath(1, "purchases", domain.CharacterID(0)),
		jumpPath(1, "purchases"),
		jumpPath(1, "purchases", domain.CharacterID(1)),
		jumpPath(2),
		jumpPath(2, "name"),
		domain.P(domain.EntityCharacter, domain.CharacterID(0)),
		jumpPath(1),
	}
	for _, p := range paths {
		tr.Push(p, domain.ActionUpdate)
	}
	recs := tr.Records()
	for i := range recs {
		for j := range recs {
			if i != j && recs[i].Path.HasPrefix(recs[j].Path) {
				t.Fatalf("record %s is covered by %s", recs[i].Path, recs[j].Path)
			}
		}
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 surviving records, got %+v", recs)
	}
}

func goldenChain() *domain.Chain {
	c := domain.NewChain("golden")
	c.Characters[0] = &domain.Character{ID: 0, Name: "Jumper", Primary: true}
	c.CharacterList = []domain.CharacterID{0}
	j := domain.NewJump(0, "Gauntlet")
	j.Characters.Add(0)
	j.BankDeposits[0] = 50
	c.Jumps[0] = j
	c.JumpList = []domain.JumpID{0}
	return c
}

func TestCompileResolvesCurrentValues(t *testing.T) {
	c := goldenChain()
	tr := New()
	tr.Push(jumpPath(0, "bank_deposits", domain.CharacterID(0)), domain.ActionUpdate)
	tr.Push(jumpPath(0, "narratives", domain.CharacterID(0)), domain.ActionNew)

	updates, err := tr.Compile(c)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(updates))
	}
	if string(updates[0].Value.Raw()) != "50" {
		t.Fatalf("expected deposit value 50, got %s", updates[0].Value.Raw())
	}
	if updates[1].Action != domain.ActionDelete || updates[1].Value.Defined() {
		t.Fatalf("expected unresolvable path to compile to delete, got %+v", updates[1])
	}
	if tr.Len() != 2 {
		t.Fatalf("compile must not reset the tracker")
	}
	if _, err := tr.Drain(c); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if tr.Len() != 0 {
		t.Fatalf("expected drain to reset the tracker")
	}
}

func TestCompileRootPathCarriesWholeChain(t *testing.T) {
	c := goldenChain()
	tr := New()
	tr.Push(domain.Path{}, domain.ActionNew)
	updates, err := tr.Compile(c)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var decoded domain.Chain
	if err := updates[0].Value.Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Name != "golden" || len(decoded.Jumps) != 1 {
		t.Fatalf("unexpected root payload %+v", decoded)
	}
}

func TestGJSONPathEscapesSpecialCharacters(t *testing.T) {
	got := GJSONPath(domain.P("a.b", 3, "c*"))
	if got != `a\.b.3.c\*` {
		t.Fatalf("unexpected gjson path %s", got)
	}
}

func TestCompiledStreamGolden(t *testing.T) {
	c := goldenChain()
	tr := New()
	tr.Push(domain.P(domain.EntityCharacter, domain.CharacterID(0)), domain.ActionNew)
	tr.Push(jumpPath(0, "bank_deposits", domain.CharacterID(0)), domain.ActionUpdate)
	tr.Push(jumpPath(0, "name"), domain.ActionUpdate)
	tr.Push(domain.P(domain.EntityPurchase, domain.PurchaseID(4)), domain.ActionDelete)

	updates, err := tr.Drain(c)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	data, err := json.MarshalIndent(updates, "", "  ")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "compiled_stream", append(data, '\n'))
}
