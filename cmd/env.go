package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/placement-monitor/internal/evidence"
	"github.com/sells-group/placement-monitor/internal/model"
	"github.com/sells-group/placement-monitor/internal/monitor"
	"github.com/sells-group/placement-monitor/internal/normalize"
	"github.com/sells-group/placement-monitor/internal/resilience"
	"github.com/sells-group/placement-monitor/internal/review"
	"github.com/sells-group/placement-monitor/internal/scrape"
	"github.com/sells-group/placement-monitor/internal/store"
	"github.com/sells-group/placement-monitor/pkg/cms"
	"github.com/sells-group/placement-monitor/pkg/netrows"
	"github.com/sells-group/placement-monitor/pkg/notion"
	"github.com/sells-group/placement-monitor/pkg/nppes"
	"github.com/sells-group/placement-monitor/pkg/serpapi"
)

// Breaker names, shared with the upstream clients' quota errors.
const (
	serviceSearch   = "serpapi"
	serviceProfiles = "netrows"
)

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// openStore opens the configured backend without migrating it.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "", "file":
		return store.NewFile(cfg.Store.Path)
	case "sqlite":
		return store.NewSQLite(cfg.Store.Path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initStore opens and migrates the configured backend.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initVocab() (*normalize.Vocab, error) {
	v, err := normalize.LoadVocab(cfg.Vocab.Path)
	if err != nil {
		return nil, eris.Wrap(err, "load vocabulary")
	}
	return v, nil
}

// initReview builds the new-alert notifiers. The Notion queue is returned
// separately so sync can pull reviewer decisions from it.
func initReview() ([]monitor.Notifier, *review.Queue) {
	var notifiers []monitor.Notifier
	var queue *review.Queue
	if cfg.Notion.Token != "" && cfg.Notion.ReviewDB != "" {
		queue = review.NewQueue(notion.NewClient(cfg.Notion.Token), cfg.Notion.ReviewDB)
		notifiers = append(notifiers, queue)
	}
	if cfg.Review.WebhookURL != "" {
		notifiers = append(notifiers, review.NewWebhook(cfg.Review.WebhookURL))
	}
	return notifiers, queue
}

// initMonitor wires every evidence source the configuration enables. Sources
// without credentials are still passed to the monitor so runs report them as
// not_configured.
func initMonitor(ctx context.Context, st store.Store) (*monitor.Monitor, error) {
	vocab, err := initVocab()
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("component", "setup"))
	breakers := resilience.NewServiceBreakers(resilience.QuotaCircuitBreakerConfig())

	var search serpapi.Client
	if cfg.Search.Key != "" {
		search = evidence.GuardSearch(serpapi.NewClient(cfg.Search.Key,
			serpapi.WithBaseURL(cfg.Search.BaseURL),
			serpapi.WithHTTPClient(&http.Client{Timeout: seconds(cfg.Search.TimeoutSecs)}),
			serpapi.WithMinInterval(millis(cfg.Search.MinIntervalMs)),
			serpapi.WithRetry(resilience.DefaultRetryConfig()),
		), breakers.Get(serviceSearch))
	} else {
		log.Warn("search key not set; web search, directory and network sources disabled")
	}

	var profiles netrows.Client
	if cfg.Netrows.Key != "" {
		profiles = evidence.GuardProfiles(netrows.NewClient(cfg.Netrows.Key,
			netrows.WithBaseURL(cfg.Netrows.BaseURL),
			netrows.WithHTTPClient(&http.Client{Timeout: seconds(cfg.Netrows.TimeoutSecs)}),
			netrows.WithMinInterval(millis(cfg.Netrows.MinIntervalMs)),
		), breakers.Get(serviceProfiles))
	}

	var npi nppes.Client
	if cfg.NPI.Enabled {
		npi = nppes.NewClient(
			nppes.WithBaseURL(cfg.NPI.BaseURL),
			nppes.WithHTTPClient(&http.Client{Timeout: seconds(cfg.NPI.TimeoutSecs)}),
			nppes.WithMinInterval(millis(cfg.NPI.MinIntervalMs)),
			nppes.WithLimit(cfg.NPI.Limit),
		)
	}
	regOpts := []evidence.RegistryOption{evidence.WithNumberSearch(search)}
	if cfg.CMS.Enabled {
		regOpts = append(regOpts, evidence.WithAffiliations(cms.NewClient(
			cms.WithBaseURL(cfg.CMS.BaseURL),
			cms.WithDatasetID(cfg.CMS.DatasetID),
			cms.WithHTTPClient(&http.Client{Timeout: seconds(cfg.CMS.TimeoutSecs)}),
		)))
	}

	fetcher := scrape.NewHTTPFetcher(
		scrape.WithTimeout(seconds(cfg.Scrape.TimeoutSecs)),
		scrape.WithMaxBytes(cfg.Scrape.MaxBytes),
		scrape.WithMaxRedirects(cfg.Scrape.MaxRedirects),
		scrape.WithUserAgent(cfg.Scrape.UserAgent),
	)

	netOpts := []evidence.NetworkOption{evidence.WithMinScore(cfg.Network.MinScore)}
	if profiles != nil {
		netOpts = append(netOpts, evidence.WithProfiles(profiles))
	}

	notifiers, _ := initReview()

	return monitor.New(ctx, monitor.Deps{
		Store:     st,
		Vocab:     vocab,
		Registry:  evidence.NewRegistry(npi, vocab, regOpts...),
		WebSearch: evidence.NewWebSearch(search, vocab, evidence.WithMaxResults(cfg.Search.MaxResults), evidence.WithPageFetch(fetcher, cfg.Search.FetchPages)),
		Directory: evidence.NewDirectory(search, vocab, cfg.Directory.Domain, cfg.Directory.PathSegments),
		Network:   evidence.NewNetwork(search, vocab, netOpts...),
		Search:    search,
		Fetcher:   fetcher,
		Breakers:  breakers,
		Notifiers: notifiers,
	}, monitor.Config{
		PlacedStages:  cfg.Monitor.PlacedStages,
		SourceTimeout: seconds(cfg.Monitor.SourceTimeoutSecs),
		Enrich:        cfg.Monitor.Enrich,
		MinConfidence: model.ParseConfidence(cfg.Score.MinConfidence),
	})
}

// initRelations builds a monitor with no evidence sources, enough to manage
// relatedness edges.
func initRelations(ctx context.Context, st store.Store) (*monitor.Monitor, error) {
	vocab, err := initVocab()
	if err != nil {
		return nil, err
	}
	return monitor.New(ctx, monitor.Deps{Store: st, Vocab: vocab}, monitor.Config{})
}
