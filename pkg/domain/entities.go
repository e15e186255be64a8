// Package domain defines the chain entity graph, its typed identifiers, the
// patch record types emitted on mutation, and the persistence contracts used
// by chainledger.
package domain

// EntityType identifies the kind of record stored in the chain.
type EntityType string

// Supported entity kinds. The values double as the top-level field names of
// the serialized chain, so they also serve as the first token of patch paths.
const (
	EntityCharacter     EntityType = "characters"
	EntityJump          EntityType = "jumps"
	EntityPurchase      EntityType = "purchases"
	EntitySupplement    EntityType = "supplements"
	EntityPurchaseGroup EntityType = "purchase_groups"
	EntityAltForm       EntityType = "alt_forms"
)

// PurchaseKind classifies a purchase.
type PurchaseKind string

// Purchase kinds.
const (
	KindPerk             PurchaseKind = "perk"
	KindItem             PurchaseKind = "item"
	KindImport           PurchaseKind = "import"
	KindDrawback         PurchaseKind = "drawback"
	KindScenario         PurchaseKind = "scenario"
	KindSupplement       PurchaseKind = "supplement"
	KindSupplementImport PurchaseKind = "supplement_import"
	KindSubsystem        PurchaseKind = "subsystem"
	KindChainDrawback    PurchaseKind = "chain_drawback"
)

// IsDrawbackLike reports whether the kind adds to a budget rather than spending it.
func (k PurchaseKind) IsDrawbackLike() bool {
	return k == KindDrawback || k == KindScenario || k == KindChainDrawback
}

// IsSupplementKind reports whether the kind belongs to a secondary economy.
func (k PurchaseKind) IsSupplementKind() bool {
	return k == KindSupplement || k == KindSupplementImport
}

// CostModifier transforms a purchase value into its effective cost.
type CostModifier string

// Cost modifiers.
const (
	ModifierFull    CostModifier = "full"
	ModifierReduced CostModifier = "reduced"
	ModifierFree    CostModifier = "free"
	ModifierCustom  CostModifier = "custom"
)

// Apply returns the effective cost of value under the modifier. custom is
// used only by ModifierCustom.
func (m CostModifier) Apply(value, custom int) int {
	switch m {
	case ModifierReduced:
		return FloorDiv(value, 2)
	case ModifierFree:
		return 0
	case ModifierCustom:
		return custom
	default:
		return value
	}
}

// OverrideState is the per-jump treatment of a retained drawback.
type OverrideState string

// Retained drawback override states.
const (
	OverrideEnabled              OverrideState = "enabled"
	OverrideExcluded             OverrideState = "excluded"
	OverrideBoughtOffTemporarily OverrideState = "bought_off_temporarily"
	OverrideBoughtOffPermanently OverrideState = "bought_off_permanently"
)

// CompanionAccess is the companion policy of a supplement.
type CompanionAccess string

// Supplement companion access policies.
const (
	AccessUnavailable CompanionAccess = "unavailable"
	AccessAvailable   CompanionAccess = "available"
	AccessCommunal    CompanionAccess = "communal"
	AccessPartial     CompanionAccess = "partial"
)

// Character is a chain participant. Primary characters receive full jump
// budgets; companions only receive what import purchases grant them.
type Character struct {
	ID           CharacterID `json:"id"`
	Name         string      `json:"name"`
	Primary      bool        `json:"primary"`
	PerkCount    int         `json:"perk_count"`
	ItemCount    int         `json:"item_count"`
	OriginalForm AltFormID   `json:"original_form"`
	Notes        string      `json:"notes"`
}

// Duration is the in-world length of a jump.
type Duration struct {
	Days   int `json:"days"`
	Months int `json:"months"`
	Years  int `json:"years"`
}

// Currency is a jump-scoped currency and its starting budget.
type Currency struct {
	Name   string `json:"name"`
	Abbrev string `json:"abbrev"`
	Budget int    `json:"budget"`
}

// PurchaseSubtype is a stipend category. Stipend is granted to primary
// characters in Currency at the start of the jump.
type PurchaseSubtype struct {
	Name      string       `json:"name"`
	Type      PurchaseKind `json:"type"`
	Currency  CurrencyID   `json:"currency"`
	Stipend   int          `json:"stipend"`
	Subsystem bool         `json:"subsystem"`
}

// OriginCategory describes one origin slot (background, location, ...).
type OriginCategory struct {
	Name       string `json:"name"`
	Singleline bool   `json:"singleline"`
}

// Origin is a character's pick for an origin category.
type Origin struct {
	Summary string `json:"summary"`
	Cost    int    `json:"cost"`
}

// DrawbackOverride revalues a retained drawback for one jump.
type DrawbackOverride struct {
	State       OverrideState `json:"state"`
	Modifier    CostModifier  `json:"modifier,omitempty"`
	CustomValue int           `json:"custom_value,omitempty"`
}

// CurrencyExchange converts an amount of one currency into another.
type CurrencyExchange struct {
	From       CurrencyID `json:"from"`
	To         CurrencyID `json:"to"`
	FromAmount int        `json:"from_amount"`
	ToAmount   int        `json:"to_amount"`
}

// SubsystemSummary tracks a subsystem access purchase, the stipend it grants
// and the purchases made inside it.
type SubsystemSummary struct {
	Purchase     PurchaseID         `json:"purchase"`
	Stipend      map[CurrencyID]int `json:"stipend"`
	Subpurchases []PurchaseID       `json:"subpurchases"`
}

// Narrative is a character's story notes for a jump.
type Narrative struct {
	Goals           string `json:"goals"`
	Challenges      string `json:"challenges"`
	Accomplishments string `json:"accomplishments"`
}

// Jump is one episode of the timeline. A jump without a parent is a root and
// receives a sequence number; children share their root's chunk.
//
// Every map keyed by CharacterID below must have exactly Characters as its key
// set; only the lifecycle paths in internal/core add or remove those keys.
type Jump struct {
	ID               JumpID                              `json:"id"`
	Name             string                              `json:"name"`
	Duration         Duration                            `json:"duration"`
	Characters       IDSet[CharacterID]                  `json:"characters"`
	ParentJump       *JumpID                             `json:"parent_jump"`
	Notes            string                              `json:"notes"`
	UseSupplements   bool                                `json:"use_supplements"`
	UseAltForms      bool                                `json:"use_alt_forms"`
	Currencies       map[CurrencyID]Currency             `json:"currencies"`
	Subtypes         map[SubtypeID]PurchaseSubtype       `json:"subtypes"`
	OriginCategories map[OriginCategoryID]OriginCategory `json:"origin_categories"`

	Purchases             map[CharacterID][]PurchaseID                           `json:"purchases"`
	Drawbacks             map[CharacterID][]PurchaseID                           `json:"drawbacks"`
	RetainedDrawbacks     map[CharacterID]IDSet[PurchaseID]                      `json:"retained_drawbacks"`
	DrawbackOverrides     map[CharacterID]map[PurchaseID]DrawbackOverride        `json:"drawback_overrides"`
	Origins               map[CharacterID]map[OriginCategoryID]Origin            `json:"origins"`
	BankDeposits          map[CharacterID]int                                    `json:"bank_deposits"`
	CurrencyExchanges     map[CharacterID][]CurrencyExchange                     `json:"currency_exchanges"`
	SupplementPurchases   map[CharacterID]map[SupplementID][]PurchaseID          `json:"supplement_purchases"`
	SupplementInvestments map[CharacterID]map[SupplementID]int                   `json:"supplement_investments"`
	SubsystemSummaries    map[CharacterID]map[SubtypeID][]SubsystemSummary       `json:"subsystem_summaries"`
	Narratives            map[CharacterID]Narrative                              `json:"narratives"`
	AltForms              map[CharacterID][]AltFormID                            `json:"alt_forms"`
	Budgets               map[CharacterID]map[CurrencyID]int                     `json:"budgets"`
	Stipends              map[CharacterID]map[CurrencyID]map[SubtypeID]int       `json:"stipends"`
}

// CharacterTables lists the serialized names of every per-character table of
// a jump. Patch paths and invariant checks use it.
var CharacterTables = []string{
	"purchases",
	"drawbacks",
	"retained_drawbacks",
	"drawback_overrides",
	"origins",
	"bank_deposits",
	"currency_exchanges",
	"supplement_purchases",
	"supplement_investments",
	"subsystem_summaries",
	"narratives",
	"alt_forms",
	"budgets",
	"stipends",
}

// Buyoff anchors the permanent retirement of a drawback.
type Buyoff struct {
	Jump      JumpID      `json:"jump"`
	Character CharacterID `json:"character"`
}

// ImportGrant is the companion grant carried by an import purchase.
type ImportGrant struct {
	Characters IDSet[CharacterID]                `json:"characters"`
	Allowances map[CurrencyID]int                `json:"allowances"`
	Stipends   map[CurrencyID]map[SubtypeID]int `json:"stipends"`
}

// SupplementImportGrant grants supplement points from one character to others:
// a flat allowance plus Percentage of the grantor's own supplement budget.
type SupplementImportGrant struct {
	Characters IDSet[CharacterID] `json:"characters"`
	Allowance  int                `json:"allowance"`
	Percentage int                `json:"percentage"`
}

// Purchase is any priced entry. Jump is nil only for chain drawbacks.
type Purchase struct {
	ID               PurchaseID             `json:"id"`
	Kind             PurchaseKind           `json:"kind"`
	Jump             *JumpID                `json:"jump"`
	Character        CharacterID            `json:"character"`
	Name             string                 `json:"name"`
	Description      string                 `json:"description"`
	Value            int                    `json:"value"`
	Currency         CurrencyID             `json:"currency"`
	Modifier         CostModifier           `json:"modifier"`
	CustomValue      int                    `json:"custom_value"`
	Categories       []int                  `json:"categories"`
	Subtype          *SubtypeID             `json:"subtype"`
	Duration         *int                   `json:"duration"`
	Buyoff           *Buyoff                `json:"buyoff"`
	ItemStipend      int                    `json:"item_stipend"`
	CompanionStipend int                    `json:"companion_stipend"`
	Import           *ImportGrant           `json:"import"`
	Supplement       *SupplementID          `json:"supplement"`
	SupplementImport *SupplementImportGrant `json:"supplement_import"`
	Parent           *PurchaseID            `json:"parent"`
	Group            *GroupID               `json:"group"`
}

// Cost is the effective cost of the purchase under its modifier.
func (p Purchase) Cost() int {
	return p.Modifier.Apply(p.Value, p.CustomValue)
}

// PersistsIndefinitely reports whether the drawback has no explicit duration.
func (p Purchase) PersistsIndefinitely() bool {
	return p.Duration == nil || *p.Duration < 0
}

// ChainSupplement is a secondary economy with its own budget rules.
type ChainSupplement struct {
	ID              SupplementID    `json:"id"`
	Name            string          `json:"name"`
	Currency        string          `json:"currency"`
	InvestmentRatio int             `json:"investment_ratio"`
	InitialStipend  int             `json:"initial_stipend"`
	PerJumpStipend  int             `json:"per_jump_stipend"`
	MaxInvestment   int             `json:"max_investment"`
	CompanionAccess CompanionAccess `json:"companion_access"`
	SingleJump      bool            `json:"single_jump"`
	Categories      []string        `json:"categories"`
}

// PurchaseGroup is a named bag of purchases of one kind owned by one character.
type PurchaseGroup struct {
	ID          GroupID      `json:"id"`
	Character   CharacterID  `json:"character"`
	Kind        PurchaseKind `json:"kind"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Components  []PurchaseID `json:"components"`
}

// AltForm is an alternate body. Jump is nil for a character's original form.
type AltForm struct {
	ID           AltFormID   `json:"id"`
	Character    CharacterID `json:"character"`
	Jump         *JumpID     `json:"jump"`
	Name         string      `json:"name"`
	Species      string      `json:"species"`
	Sex          string      `json:"sex"`
	Height       string      `json:"height"`
	Weight       string      `json:"weight"`
	Physical     string      `json:"physical"`
	Capabilities string      `json:"capabilities"`
}

// ChainSettings holds chain-wide feature toggles.
type ChainSettings struct {
	ChainDrawbacksForCompanions bool `json:"chain_drawbacks_for_companions"`
	AltForms                    bool `json:"alt_forms"`
	Narratives                  bool `json:"narratives"`
}

// BankSettings configures the pooled, interest-bearing balance.
type BankSettings struct {
	Enabled      bool `json:"enabled"`
	MaxDeposit   int  `json:"max_deposit"`
	DepositRatio int  `json:"deposit_ratio"`
	InterestRate int  `json:"interest_rate"`
}

// FloorDiv divides rounding toward negative infinity.
func FloorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
