// Package monitor runs monitoring passes: for every candidate/client pair it
// walks the evidence sources in order, scores what they return and records
// alerts for human review.
package monitor

import (
	"context"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/placement-monitor/internal/evidence"
	"github.com/sells-group/placement-monitor/internal/metrics"
	"github.com/sells-group/placement-monitor/internal/model"
	"github.com/sells-group/placement-monitor/internal/normalize"
	"github.com/sells-group/placement-monitor/internal/relate"
	"github.com/sells-group/placement-monitor/internal/resilience"
	"github.com/sells-group/placement-monitor/internal/score"
	"github.com/sells-group/placement-monitor/internal/scrape"
	"github.com/sells-group/placement-monitor/internal/store"
	"github.com/sells-group/placement-monitor/pkg/serpapi"
)

// Stage is a step in the per-pair state machine.
type Stage string

const (
	StagePending         Stage = "pending"
	StagePipelineChecked Stage = "pipeline_checked"
	StageEnriched        Stage = "enriched"
	StageRegistryChecked Stage = "registry_checked"
	StageSearchChecked   Stage = "search_checked"
	StageDone            Stage = "done"
)

// Notifier is told about every newly created alert.
type Notifier interface {
	Notify(ctx context.Context, a model.Alert) error
}

// Summary reports what a run did.
type Summary struct {
	Checked       int                                     `json:"checked"`
	Pairs         int                                     `json:"pairs"`
	AlertsCreated int                                     `json:"alerts_created"`
	PerSource     map[model.Source]map[evidence.Status]int `json:"per_source"`
	Disabled      []string                                `json:"disabled,omitempty"`
	Skipped       bool                                    `json:"skipped,omitempty"`
	// Error is set when the run could not read its work from the store.
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

func (s *Summary) count(src model.Source, status evidence.Status) {
	if s.PerSource == nil {
		s.PerSource = make(map[model.Source]map[evidence.Status]int)
	}
	if s.PerSource[src] == nil {
		s.PerSource[src] = make(map[evidence.Status]int)
	}
	s.PerSource[src][status]++
}

// Config tunes a Monitor.
type Config struct {
	// PlacedStages are CRM pipeline stages that count as confirmed placements.
	PlacedStages []string
	// SourceTimeout bounds every single adapter call. Default 15s.
	SourceTimeout time.Duration
	// Enrich turns on client website harvesting.
	Enrich        bool
	MinConfidence model.Confidence
}

// Deps are the collaborators a Monitor drives. Nil adapters are skipped.
type Deps struct {
	Store     store.Store
	Vocab     *normalize.Vocab
	Registry  evidence.Adapter
	WebSearch evidence.Adapter
	Directory evidence.Adapter
	Network   evidence.Adapter
	// Search resolves client websites that the CRM does not carry.
	Search  serpapi.Client
	Fetcher scrape.Fetcher
	// Breakers guard the credit-limited upstreams. They live as long as the
	// Monitor, so a latched breaker stays open across runs.
	Breakers  *resilience.ServiceBreakers
	Notifiers []Notifier
}

// Monitor coordinates monitoring runs.
type Monitor struct {
	store      store.Store
	vocab      *normalize.Vocab
	index      *relate.Index
	scorer     *score.Scorer
	registry   evidence.Adapter
	searchers  []evidence.Adapter
	search     serpapi.Client
	fetcher    scrape.Fetcher
	breakers   *resilience.ServiceBreakers
	notifiers  []Notifier
	placed     map[string]bool
	timeout    time.Duration
	enrich     bool
	practiceRe *regexp.Regexp

	running atomic.Bool
	log     *zap.Logger
}

// New builds a Monitor and loads persisted relatedness edges into its index.
func New(ctx context.Context, deps Deps, cfg Config) (*Monitor, error) {
	if deps.Store == nil {
		return nil, eris.New("monitor: store is required")
	}
	vocab := deps.Vocab
	if vocab == nil {
		vocab = normalize.Default()
	}

	edges, err := deps.Store.ListRelationships(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitor: load relationships")
	}
	index := relate.NewIndex(vocab, edges)

	timeout := cfg.SourceTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	placed := make(map[string]bool, len(cfg.PlacedStages))
	for _, s := range cfg.PlacedStages {
		placed[stageKey(s)] = true
	}

	m := &Monitor{
		store:      deps.Store,
		vocab:      vocab,
		index:      index,
		scorer:     score.New(vocab, index, cfg.MinConfidence),
		registry:   deps.Registry,
		search:     deps.Search,
		fetcher:    deps.Fetcher,
		breakers:   deps.Breakers,
		notifiers:  deps.Notifiers,
		placed:     placed,
		timeout:    timeout,
		enrich:     cfg.Enrich,
		practiceRe: evidence.PracticeNameRe(vocab.PracticeSuffixes),
		log:        zap.L().With(zap.String("component", "monitor")),
	}
	for _, a := range []evidence.Adapter{deps.WebSearch, deps.Directory, deps.Network} {
		if a != nil {
			m.searchers = append(m.searchers, a)
		}
	}
	return m, nil
}

func stageKey(s string) string { return strings.ToLower(strings.Join(strings.Fields(s), " ")) }

// Running reports whether a run is in progress.
func (m *Monitor) Running() bool { return m.running.Load() }

// Run performs one monitoring pass over every candidate and submission. A
// call made while another run is in progress returns immediately with
// Summary.Skipped set. Store failures are logged and reported in
// Summary.Error; the run itself does not fail.
func (m *Monitor) Run(ctx context.Context) (sum Summary, err error) {
	if !m.running.CompareAndSwap(false, true) {
		m.log.Info("monitor: run already in progress, skipping")
		metrics.Runs.WithLabelValues("skipped").Inc()
		return Summary{Skipped: true}, nil
	}
	defer m.running.Store(false)

	start := time.Now()
	defer func() {
		sum.Duration = time.Since(start)
		metrics.RunDuration.Observe(sum.Duration.Seconds())
		m.recordBreakers()
	}()

	candidates, err := m.store.ListCandidates(ctx)
	if err != nil {
		err = eris.Wrap(err, "monitor: list candidates")
		m.log.Error("monitor: run aborted", zap.Error(err))
		metrics.Runs.WithLabelValues("failed").Inc()
		sum.Error = err.Error()
		sum.Disabled = m.disabled()
		return sum, nil
	}

	state := newRunState()
	m.log.Info("monitor: run started", zap.Int("candidates", len(candidates)))

	for _, c := range candidates {
		if ctx.Err() != nil {
			m.log.Warn("monitor: run interrupted", zap.Error(ctx.Err()))
			break
		}
		m.checkCandidate(ctx, state, c, &sum)
	}

	sum.Disabled = m.disabled()
	metrics.Runs.WithLabelValues("completed").Inc()
	m.log.Info("monitor: run finished",
		zap.Int("checked", sum.Checked),
		zap.Int("pairs", sum.Pairs),
		zap.Int("alerts_created", sum.AlertsCreated),
		zap.Strings("disabled", sum.Disabled),
		zap.Duration("duration", time.Since(start)),
	)
	return sum, nil
}

func (m *Monitor) checkCandidate(ctx context.Context, state *runState, c model.Candidate, sum *Summary) {
	log := m.log.With(zap.String("candidate_id", c.ID))

	person := m.vocab.ParsePerson(c.Name)
	if person.Empty() {
		log.Warn("monitor: candidate name unusable, skipping", zap.String("name", c.Name))
		return
	}
	subs, err := m.store.ListSubmissionsFor(ctx, c.ID)
	if err != nil {
		log.Error("monitor: list submissions", zap.Error(err))
		return
	}
	sum.Checked++

	for _, sub := range subs {
		if ctx.Err() != nil {
			return
		}
		if strings.TrimSpace(sub.ClientName) == "" {
			continue
		}
		sum.Pairs++
		metrics.PairsChecked.Inc()
		p := &pair{candidate: &c, person: person, sub: sub, stage: StagePending}
		m.checkPair(ctx, state, p, sum)
	}
}

// pair is one candidate/submission moving through the stages.
type pair struct {
	candidate *model.Candidate
	person    normalize.PersonName
	sub       model.Submission
	client    score.ClientContext
	stage     Stage
}

func (p *pair) key() pairKey {
	return pairKey{candidateID: p.candidate.ID, client: model.ClientKey(p.sub.ClientName)}
}

func (p *pair) query() evidence.Query {
	return evidence.Query{Candidate: *p.candidate, Person: p.person, ClientName: p.sub.ClientName}
}

func (m *Monitor) advance(p *pair, to Stage) {
	m.log.Debug("monitor: pair stage",
		zap.String("candidate_id", p.candidate.ID),
		zap.String("client", p.sub.ClientName),
		zap.String("from", string(p.stage)),
		zap.String("to", string(to)),
	)
	p.stage = to
}

func (m *Monitor) checkPair(ctx context.Context, state *runState, p *pair, sum *Summary) {
	m.checkPipeline(ctx, state, p, sum)
	m.advance(p, StagePipelineChecked)

	info := m.enrichment(ctx, state, p.sub)
	p.client = score.ClientContext{Name: p.sub.ClientName, Location: info.Location}
	m.advance(p, StageEnriched)

	if m.registry != nil {
		r := m.evaluate(ctx, state, p, m.registry, sum)
		m.writeBack(ctx, p, r)
	}
	m.advance(p, StageRegistryChecked)

	for _, a := range m.searchers {
		if a.Source() == model.SourceNetwork && state.alerted[p.key()] {
			sum.count(a.Source(), "skipped")
			continue
		}
		m.evaluate(ctx, state, p, a, sum)
	}
	m.advance(p, StageSearchChecked)
	m.advance(p, StageDone)
}

// checkPipeline raises a confirmed alert when the CRM stage already says the
// candidate was placed.
func (m *Monitor) checkPipeline(ctx context.Context, state *runState, p *pair, sum *Summary) {
	stage := stageKey(p.sub.PipelineStage)
	if stage == "" || !m.placed[stage] {
		return
	}
	sum.count(model.SourcePipeline, evidence.StatusFound)
	m.record(ctx, state, p, model.Alert{
		Source:     model.SourcePipeline,
		Confidence: model.ConfidenceConfirmed,
		Reason:     "pipeline stage " + p.sub.PipelineStage,
		Evidence:   model.AlertEvidence{Organization: p.sub.ClientName},
	}, sum)
}

// evaluate runs one adapter for a pair, scores its mentions and records an
// alert when the best outcome clears the floor.
func (m *Monitor) evaluate(ctx context.Context, state *runState, p *pair, a evidence.Adapter, sum *Summary) evidence.Result {
	src := a.Source()
	log := m.log.With(
		zap.String("candidate_id", p.candidate.ID),
		zap.String("client", p.sub.ClientName),
		zap.String("source", string(src)),
	)

	if existing, err := m.store.FindAlert(ctx, p.candidate.ID, p.sub.ClientName, src); err != nil {
		log.Warn("monitor: find alert", zap.Error(err))
	} else if existing != nil && !a.CandidateScoped() {
		// Already on record; repeating a per-pair search would only spend credits.
		state.alerted[p.key()] = true
		sum.count(src, "already_alerted")
		return evidence.Result{Source: src, Status: evidence.StatusFound}
	}

	r := m.lookup(ctx, state, p, a)
	sum.count(src, r.Status)
	if r.Status != evidence.StatusFound {
		if r.Note != "" {
			log.Debug("monitor: no evidence", zap.String("status", string(r.Status)), zap.String("note", r.Note))
		}
		return r
	}

	best := m.scorer.Best(r.Mentions, p.client)
	if !m.scorer.Alertable(best) {
		log.Debug("monitor: no alertable match", zap.String("reason", best.Reason))
		return r
	}

	ev := alertEvidence(best)
	if best.Mention.URL != "" {
		ev.URLs = []string{best.Mention.URL}
	}
	if r.ProfileURL != "" && r.ProfileURL != best.Mention.URL {
		ev.URLs = append(ev.URLs, r.ProfileURL)
	}
	m.record(ctx, state, p, model.Alert{
		Source:     src,
		Confidence: best.Confidence,
		Reason:     best.Reason,
		Evidence:   ev,
	}, sum)
	return r
}

const (
	maxEvidenceOrg     = 200
	maxEvidenceExcerpt = 300
)

// alertEvidence keeps the matched organization and, for free-text mentions, a
// short excerpt around it. Raw snippet and page text is never stored whole.
func alertEvidence(best score.Outcome) model.AlertEvidence {
	ev := model.AlertEvidence{Location: best.Mention.Location}
	switch best.Mention.Kind {
	case model.KindPage, model.KindSearchResult:
		ev.Organization = score.Excerpt(best.Matched, "", maxEvidenceOrg)
		ev.Excerpt = score.Excerpt(best.Mention.Organization, best.Matched, maxEvidenceExcerpt)
	default:
		ev.Organization = score.Excerpt(best.Mention.Organization, "", maxEvidenceOrg)
	}
	return ev
}

// lookup calls the adapter under the per-source timeout. Candidate-scoped
// results are reused for the candidate's other submissions in this run.
func (m *Monitor) lookup(ctx context.Context, state *runState, p *pair, a evidence.Adapter) evidence.Result {
	src := a.Source()
	if !a.Configured() {
		return evidence.Result{Source: src, Status: evidence.StatusNotConfigured}
	}

	ck := cacheKey{candidateID: p.candidate.ID, source: src}
	if a.CandidateScoped() {
		if r, ok := state.evidence[ck]; ok {
			return r
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	r := a.Find(callCtx, p.query())
	metrics.SourceDuration.WithLabelValues(string(src)).Observe(time.Since(start).Seconds())
	metrics.SourceCalls.WithLabelValues(string(src), string(r.Status)).Inc()

	if a.CandidateScoped() {
		state.evidence[ck] = r
	}
	return r
}

// record stores an alert and notifies when it is new. Persistence failures
// are logged and the run moves on.
func (m *Monitor) record(ctx context.Context, state *runState, p *pair, a model.Alert, sum *Summary) {
	a.CandidateID = p.candidate.ID
	a.CandidateName = p.candidate.Name
	a.ClientName = p.sub.ClientName

	stored, created, err := m.store.AppendAlert(ctx, a)
	if err != nil {
		m.log.Error("monitor: append alert",
			zap.String("candidate_id", a.CandidateID),
			zap.String("client", a.ClientName),
			zap.String("source", string(a.Source)),
			zap.Error(err),
		)
		return
	}
	state.alerted[p.key()] = true
	if !created {
		return
	}

	sum.AlertsCreated++
	metrics.AlertsCreated.WithLabelValues(string(stored.Source), string(stored.Confidence)).Inc()
	m.log.Info("monitor: alert created",
		zap.String("alert_id", stored.ID),
		zap.String("candidate_id", stored.CandidateID),
		zap.String("client", stored.ClientName),
		zap.String("source", string(stored.Source)),
		zap.String("confidence", string(stored.Confidence)),
		zap.String("reason", stored.Reason),
	)
	m.notify(ctx, stored)
}

func (m *Monitor) notify(ctx context.Context, a model.Alert) {
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, a); err != nil {
			metrics.NotifyFailures.WithLabelValues(notifierName(n)).Inc()
			m.log.Warn("monitor: notify", zap.String("alert_id", a.ID), zap.Error(err))
		}
	}
}

type named interface{ Name() string }

func notifierName(n Notifier) string {
	if nn, ok := n.(named); ok {
		return nn.Name()
	}
	return "unknown"
}

// writeBack stores a registry number discovered for a candidate that had none.
func (m *Monitor) writeBack(ctx context.Context, p *pair, r evidence.Result) {
	if r.DiscoveredNPI == "" || p.candidate.NPI != "" {
		return
	}
	npi := r.DiscoveredNPI
	if err := m.store.UpdateCandidate(ctx, p.candidate.ID, model.CandidateUpdate{NPI: &npi}); err != nil {
		m.log.Error("monitor: store discovered npi", zap.String("candidate_id", p.candidate.ID), zap.Error(err))
		return
	}
	p.candidate.NPI = npi
	m.log.Info("monitor: discovered npi", zap.String("candidate_id", p.candidate.ID), zap.String("npi", npi))
}

func (m *Monitor) disabled() []string {
	if m.breakers == nil {
		return nil
	}
	return m.breakers.Open()
}

func (m *Monitor) recordBreakers() {
	if m.breakers == nil {
		return
	}
	for svc, st := range m.breakers.States() {
		v := 0.0
		if st == resilience.CircuitOpen {
			v = 1
		}
		metrics.BreakerOpen.WithLabelValues(svc).Set(v)
	}
}

// AddRelationship records a manual relatedness edge and persists it.
func (m *Monitor) AddRelationship(ctx context.Context, parent, alias string) (model.RelatednessEdge, bool, error) {
	e, added, err := m.index.Add(parent, alias, model.OriginManual)
	if err != nil {
		return e, false, err
	}
	if !added {
		return e, false, nil
	}
	if err := m.store.AddRelationship(ctx, e); err != nil {
		return e, true, eris.Wrap(err, "monitor: persist relationship")
	}
	return e, true, nil
}

// Relationships returns the known edges grouped by origin.
func (m *Monitor) Relationships(_ context.Context) relate.Groups {
	return m.index.Grouped()
}
