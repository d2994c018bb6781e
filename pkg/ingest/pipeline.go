// Package ingest implements the asynchronous pickup pipeline: cooldown
// gating, media fetch, content dedup, classifier round-trip and race-safe
// commit into the store.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wenli/memekeeper/pkg/store"
)

// Outcome labels how an ingestion attempt ended, for the diagnostic sink
type Outcome string

const (
	OutcomeCooldown        Outcome = "cooldown"
	OutcomeFetchError      Outcome = "fetch_error"
	OutcomeDuplicate       Outcome = "duplicate"
	OutcomeClassifierError Outcome = "classifier_error"
	OutcomeRejected        Outcome = "rejected"
	OutcomeCommitError     Outcome = "commit_error"
	OutcomeAccepted        Outcome = "accepted"
)

const defaultClassifyTimeout = 60 * time.Second

// Options configures a Pipeline
type Options struct {
	// FetchTimeout bounds the media download
	FetchTimeout time.Duration
	// ClassifyTimeout bounds the classifier call
	ClassifyTimeout time.Duration
	// Observer, when set, receives the outcome of every attempt
	Observer func(Outcome)
}

// Pipeline runs ingestion attempts. Attempts never surface errors to the
// caller: a flaky classifier or network drops the candidate, it does not
// disturb the surrounding conversation. Failures stay observable through
// the logger and the observer hook.
type Pipeline struct {
	store      *store.Store
	gate       *Gate
	fetcher    Fetcher
	classifier Classifier
	options    Options
	logger     zerolog.Logger
}

// New creates an ingestion pipeline
func New(st *store.Store, gate *Gate, fetcher Fetcher, classifier Classifier, options Options, logger zerolog.Logger) *Pipeline {
	if options.ClassifyTimeout <= 0 {
		options.ClassifyTimeout = defaultClassifyTimeout
	}
	if options.FetchTimeout <= 0 {
		options.FetchTimeout = defaultFetchTimeout
	}
	return &Pipeline{
		store:      st,
		gate:       gate,
		fetcher:    fetcher,
		classifier: classifier,
		options:    options,
		logger:     logger.With().Str("component", "ingest").Logger(),
	}
}

// Gate returns the pipeline's cooldown gate
func (p *Pipeline) Gate() *Gate {
	return p.gate
}

// Process runs one ingestion attempt to completion. It is safe to call from
// its own goroutine per inbound media event; the gate is the only shared
// state between concurrent attempts.
func (p *Pipeline) Process(ctx context.Context, mediaRef string, contextText string) {
	log := p.logger.With().Str("attempt_id", uuid.New().String()).Logger()

	if !p.gate.TryAcquire(time.Now()) {
		log.Debug().Msg("Attempt dropped by cooldown")
		p.observe(OutcomeCooldown)
		return
	}

	fetchCtx, cancelFetch := context.WithTimeout(ctx, p.options.FetchTimeout)
	payload, err := p.fetcher.Fetch(fetchCtx, mediaRef)
	cancelFetch()
	if err != nil {
		log.Warn().Err(err).Msg("Media fetch failed, dropping attempt")
		p.observe(OutcomeFetchError)
		return
	}

	// Known content never reaches the classifier; those calls are costly
	hash := store.HashContent(payload)
	if p.store.HasContent(hash) {
		log.Debug().Str("hash", hash).Msg("Content already stored, skipping classifier")
		p.observe(OutcomeDuplicate)
		return
	}

	classifyCtx, cancelClassify := context.WithTimeout(ctx, p.options.ClassifyTimeout)
	raw, err := p.classifier.Classify(classifyCtx, payload, contextText)
	cancelClassify()
	if err != nil {
		log.Warn().Err(err).Msg("Classifier call failed, dropping attempt")
		p.observe(OutcomeClassifierError)
		return
	}

	verdict := ParseVerdict(raw)
	if !verdict.Accepted {
		log.Debug().Msg("Classifier rejected the image")
		p.observe(OutcomeRejected)
		return
	}

	rec, err := p.store.Create(store.CreateParams{
		Payload: payload,
		TagText: verdict.TagText,
		Source:  store.SourceAuto,
	})
	if err != nil {
		// Another attempt may have committed identical content between the
		// dedup check and here; the store's hash check is authoritative
		if errors.Is(err, store.ErrDuplicate) {
			log.Debug().Str("hash", hash).Msg("Content committed by a concurrent attempt")
			p.observe(OutcomeDuplicate)
			return
		}
		log.Warn().Err(err).Msg("Commit failed, dropping attempt")
		p.observe(OutcomeCommitError)
		return
	}

	log.Info().Str("id", rec.ID).Str("tags", rec.TagText).Msg("Picked up new meme")
	p.observe(OutcomeAccepted)
}

func (p *Pipeline) observe(outcome Outcome) {
	if p.options.Observer != nil {
		p.options.Observer(outcome)
	}
}
