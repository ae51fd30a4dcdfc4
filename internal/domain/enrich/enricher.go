package enrich

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mal33k-eden/pms-agent-api/internal/domain/drug"
	"github.com/mal33k-eden/pms-agent-api/internal/platform/db"
	"github.com/mal33k-eden/pms-agent-api/internal/platform/sources"
)

// ErrUpstream is returned when every attempted source failed at the
// transport level, so no assessment could be built at all. A source that
// answers cleanly with no record is not a failure.
var ErrUpstream = errors.New("upstream sources unavailable")

// Mode selects which sources feed an assessment.
type Mode string

const (
	// ModeBasic consults the openFDA label only.
	ModeBasic Mode = "basic"
	// ModeEnhanced adds DailyMed and PubMed on top of the FDA label.
	ModeEnhanced Mode = "enhanced"
)

// DataSource returns the tag stored with rows produced under this mode.
func (m Mode) DataSource() string {
	if m == ModeEnhanced {
		return drug.SourceEnhanced
	}
	return drug.SourceFDA
}

// Result is one completed enrichment: the drug row, the safety row just
// recorded for it, and which sources actually contributed.
type Result struct {
	Drug        *drug.Drug
	Safety      *drug.SafetyData
	SourcesUsed []string
}

// Enricher runs the fetch, analyze and store pipeline for one drug.
type Enricher struct {
	drugs    DrugStore
	fetcher  Fetcher
	analyzer Analyzer
	pool     *pgxpool.Pool
	logger   zerolog.Logger
}

func NewEnricher(drugs DrugStore, fetcher Fetcher, pool *pgxpool.Pool, logger zerolog.Logger) *Enricher {
	return &Enricher{
		drugs:    drugs,
		fetcher:  fetcher,
		analyzer: NewRuleAnalyzer(),
		pool:     pool,
		logger:   logger.With().Str("component", "enrich").Logger(),
	}
}

// SetAnalyzer swaps the default rule analyzer.
func (e *Enricher) SetAnalyzer(a Analyzer) {
	if a != nil {
		e.analyzer = a
	}
}

// Enrich fetches sources for the drug, derives an assessment and records it.
// Individual source failures are tolerated and logged; the assessment is
// built from whatever arrived. Only when every attempted source fails does
// Enrich give up with ErrUpstream, so a transient outage never gets stored
// as "no data exists for this drug".
func (e *Enricher) Enrich(ctx context.Context, drugName string, mode Mode) (*Result, error) {
	var (
		label    *sources.FDALabel
		spl      *sources.DailyMedSPL
		research *sources.PubMedResearch

		fdaErr, splErr, pubmedErr error
	)

	attempted := 1
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		label, fdaErr = e.fetcher.SearchDrugLabel(gctx, drugName)
		if fdaErr != nil {
			e.logger.Warn().Err(fdaErr).Str("drug", drugName).Msg("fda lookup failed")
		}
		return nil
	})
	if mode == ModeEnhanced {
		attempted = 3
		g.Go(func() error {
			spl, splErr = e.fetcher.SearchSPL(gctx, drugName)
			if splErr != nil {
				e.logger.Warn().Err(splErr).Str("drug", drugName).Msg("dailymed lookup failed")
			}
			return nil
		})
		g.Go(func() error {
			research, pubmedErr = e.fetcher.ResearchSummary(gctx, drugName)
			if pubmedErr != nil {
				e.logger.Warn().Err(pubmedErr).Str("drug", drugName).Msg("pubmed lookup failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, err := range []error{fdaErr, splErr, pubmedErr} {
		if err != nil {
			failed++
		}
	}
	if failed == attempted {
		return nil, fmt.Errorf("%w: %d of %d sources failed for %q", ErrUpstream, failed, attempted, drugName)
	}

	var used []string
	if label != nil {
		used = append(used, "fda")
	}
	if spl != nil {
		used = append(used, "dailymed")
	}
	if research != nil {
		used = append(used, "pubmed")
	}

	assessment, err := e.analyzer.Analyze(ctx, AnalysisInput{
		DrugName: drugName,
		Label:    label,
		SPL:      spl,
		Research: research,
	})
	if err != nil {
		return nil, fmt.Errorf("analyze %q: %w", drugName, err)
	}

	sd := &drug.SafetyData{
		PregnancySafety:     assessment.PregnancySafety,
		BreastfeedingSafety: assessment.BreastfeedingSafety,
		AISummary:           &assessment.Summary,
		KeyWarnings:         assessment.Warnings,
		DataSource:          mode.DataSource(),
		ConfidenceScore:     assessment.Confidence,
		StudyCount:          assessment.StudyCount,
	}
	var generic *string
	if label != nil {
		generic = label.GenericName()
		sd.PregnancyCategory = label.PregnancyCategory
		sd.PregnancyText = label.PregnancyText
		sd.BreastfeedingText = label.BreastfeedingText
	}
	if sd.BreastfeedingText == nil && spl != nil {
		sd.BreastfeedingText = spl.LactationText
	}

	var d *drug.Drug
	err = e.inTx(ctx, func(txCtx context.Context) error {
		var txErr error
		d, txErr = e.drugs.EnsureDrug(txCtx, drugName, generic)
		if txErr != nil {
			return txErr
		}
		sd.DrugID = d.ID
		return e.drugs.RecordSafety(txCtx, sd)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("drug", d.Name).
		Str("mode", string(mode)).
		Strs("sources", used).
		Float64("confidence", sd.ConfidenceScore).
		Msg("safety data recorded")

	return &Result{Drug: d, Safety: sd, SourcesUsed: used}, nil
}

func (e *Enricher) inTx(ctx context.Context, fn func(context.Context) error) error {
	if e.pool == nil {
		return fn(ctx)
	}
	return db.WithTx(ctx, e.pool, fn)
}
