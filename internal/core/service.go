package core

import (
	"chainledger/internal/ledger"
	"chainledger/internal/metrics"
	"chainledger/internal/platform/logger"
	"chainledger/pkg/domain"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Service wraps a Store with the ledger computations and the ambient
// concerns around it: logging, metrics, patch persistence and archives.
// Every Store mutation is available directly on the Service.
type Service struct {
	*Store
	sink     domain.PatchSink
	log      *slog.Logger
	recorder *metrics.Recorder
	now      func() time.Time
}

type serviceConfig struct {
	sink     domain.PatchSink
	log      *slog.Logger
	recorder *metrics.Recorder
	rules    *domain.RulesEngine
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceConfig)

// WithPatchSink sets the persistence collaborator. The default is an
// in-memory sink.
func WithPatchSink(sink domain.PatchSink) ServiceOption {
	return func(c *serviceConfig) { c.sink = sink }
}

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(c *serviceConfig) {
		if log != nil {
			c.log = log
		}
	}
}

// WithMetrics reports mutations, cascades and flushes to r.
func WithMetrics(r *metrics.Recorder) ServiceOption {
	return func(c *serviceConfig) { c.recorder = r }
}

// WithRules replaces the invariant rules checked after every mutation.
func WithRules(engine *domain.RulesEngine) ServiceOption {
	return func(c *serviceConfig) { c.rules = engine }
}

func newServiceConfig(opts []ServiceOption) serviceConfig {
	cfg := serviceConfig{log: logger.Discard(), rules: NewDefaultRulesEngine()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sink == nil {
		cfg.sink = newMemorySink()
	}
	return cfg
}

// NewService wraps chain. A nil chain starts an empty one. The sink is
// assumed to hold nothing yet, so the whole chain is recorded as new and the
// first flush writes a complete document.
func NewService(chain *domain.Chain, opts ...ServiceOption) *Service {
	svc := newService(chain, newServiceConfig(opts))
	svc.push(domain.ActionNew)
	return svc
}

func newService(chain *domain.Chain, cfg serviceConfig) *Service {
	obs := serviceObserver{log: cfg.log, recorder: cfg.recorder}
	return &Service{
		Store:    NewStore(chain, WithObserver(obs), WithRulesEngine(cfg.rules)),
		sink:     cfg.sink,
		log:      cfg.log,
		recorder: cfg.recorder,
		now:      time.Now,
	}
}

// LoadService restores the chain stored in the sink. An empty sink yields a
// new chain called name whose first flush writes the whole document.
func LoadService(ctx context.Context, name string, opts ...ServiceOption) (*Service, error) {
	cfg := newServiceConfig(opts)
	doc, err := cfg.sink.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chain: %w", err)
	}
	if doc == nil {
		svc := newService(nil, cfg)
		svc.ReplaceChain(domain.NewChain(name))
		cfg.log.Info("started new chain", "chain", name)
		return svc, nil
	}
	chain, err := decodeChain(doc, cfg.rules)
	if err != nil {
		return nil, err
	}
	svc := newService(chain, cfg)
	cfg.log.Info("loaded chain", "chain", chain.Name, "jumps", len(chain.JumpList), "characters", len(chain.CharacterList))
	return svc, nil
}

// decodeChain parses a stored document and rejects graphs that break the
// store invariants, so they never reach a Store.
func decodeChain(doc []byte, rules *domain.RulesEngine) (*domain.Chain, error) {
	chain := new(domain.Chain)
	if err := json.Unmarshal(doc, chain); err != nil {
		return nil, fmt.Errorf("decode chain: %w", err)
	}
	chain.Normalize()
	if rules != nil {
		if res := rules.Evaluate(chain, nil); res.HasBlocking() {
			return nil, fmt.Errorf("decode chain: %w", domain.RuleViolationError{Result: res})
		}
	}
	return chain, nil
}

// ImportChain replaces the chain with a JSON document. The document is
// checked against the invariant rules first and a rejected one leaves the
// current chain untouched. The next flush rewrites the whole document.
func (s *Service) ImportChain(doc []byte) error {
	chain, err := decodeChain(doc, s.rules)
	if err != nil {
		return err
	}
	s.ReplaceChain(chain)
	return nil
}

// Verify runs the invariant rules against the current chain.
func (s *Service) Verify() domain.Result {
	if s.rules == nil {
		return domain.Result{}
	}
	return s.rules.Evaluate(s.chain, nil)
}

// Flush compiles pending changes and applies them to the sink as one batch.
// The tracker is only cleared once the sink accepts the batch, so a failed
// flush can be retried.
func (s *Service) Flush(ctx context.Context) (int, error) {
	batch, err := s.tracker.Compile(s.chain)
	if err != nil {
		return 0, fmt.Errorf("compile changes: %w", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}
	batchID := uuid.NewString()
	ctx = context.WithValue(ctx, domain.BatchIDKey{}, batchID)
	start := s.now()
	err = s.sink.Apply(ctx, batch)
	elapsed := s.now().Sub(start)
	if s.recorder != nil {
		s.recorder.Flush(batch, elapsed, err)
	}
	if err != nil {
		s.log.Error("flush failed", "batch", batchID, "records", len(batch), "error", err)
		return 0, fmt.Errorf("flush batch %s: %w", batchID, err)
	}
	s.tracker.Reset()
	s.log.Info("flushed changes", "batch", batchID, "records", len(batch), "elapsed", elapsed)
	return len(batch), nil
}

// ErrNoHistory is returned when the sink keeps no patch log.
var ErrNoHistory = errors.New("patch sink keeps no history")

// History returns the newest limit entries of the sink's patch log.
func (s *Service) History(ctx context.Context, limit int) ([]domain.PatchEntry, error) {
	h, ok := s.sink.(domain.PatchHistory)
	if !ok {
		return nil, ErrNoHistory
	}
	return h.History(ctx, limit)
}

// Close releases the sink.
func (s *Service) Close() error {
	return s.sink.Close()
}

// ComputeBudgets runs the ledger for one participant and writes the result
// into the jump's computed tables.
func (s *Service) ComputeBudgets(jumpID domain.JumpID, characterID domain.CharacterID) (ledger.Budget, error) {
	b, err := ledger.ComputeBudgets(s.chain, jumpID, characterID)
	if err != nil {
		return ledger.Budget{}, err
	}
	if _, err := s.StoreComputedBudget(jumpID, characterID, b.Currencies, b.Stipends); err != nil {
		return ledger.Budget{}, err
	}
	if b.Negative() {
		s.log.Warn("budget overspent", "jump", jumpID, "character", characterID, "currencies", b.Currencies)
	}
	return b, nil
}

// RecomputeBudgets refreshes the computed tables of every participant in
// every jump, in canonical order, and reports how many changed. The whole
// refresh is one mutation, so invariant rules run once at the end.
func (s *Service) RecomputeBudgets() (int, error) {
	defer s.begin("recompute_budgets")()
	changed := 0
	for _, jid := range append([]domain.JumpID(nil), s.chain.JumpList...) {
		for _, cid := range s.chain.Jumps[jid].Participants() {
			b, err := ledger.ComputeBudgets(s.chain, jid, cid)
			if err != nil {
				return changed, err
			}
			updated, err := s.StoreComputedBudget(jid, cid, b.Currencies, b.Stipends)
			if err != nil {
				return changed, err
			}
			if updated {
				changed++
			}
			if b.Negative() {
				s.log.Warn("budget overspent", "jump", jid, "character", cid, "currencies", b.Currencies)
			}
		}
	}
	return changed, nil
}

// SupplementBudget returns a participant's secondary budget for supplementID.
func (s *Service) SupplementBudget(jumpID domain.JumpID, characterID domain.CharacterID, supplementID domain.SupplementID) (int, error) {
	return ledger.SupplementBudget(s.chain, jumpID, characterID, supplementID)
}

// BankBalance returns the pooled balance available at jumpID.
func (s *Service) BankBalance(jumpID domain.JumpID, characterID domain.CharacterID) (int, error) {
	return ledger.BankBalance(s.chain, jumpID, characterID)
}

// RetainedDrawbacks lists the drawbacks carried into jumpID.
func (s *Service) RetainedDrawbacks(jumpID domain.JumpID, characterID domain.CharacterID, includeChainLevel bool) ([]domain.PurchaseID, error) {
	return ledger.RetainedDrawbacks(s.chain, jumpID, characterID, includeChainLevel)
}

type serviceObserver struct {
	log      *slog.Logger
	recorder *metrics.Recorder
}

func (o serviceObserver) Mutation(op string) {
	if o.recorder != nil {
		o.recorder.Mutation(op)
	}
}

func (o serviceObserver) Cascade(entity domain.EntityType, id int) {
	o.log.Debug("cascade delete", "entity", entity, "id", id)
	if o.recorder != nil {
		o.recorder.Cascade(entity, id)
	}
}
