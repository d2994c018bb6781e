package ingest

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wenli/memekeeper/pkg/store"
)

type fakeFetcher struct {
	payloads map[string][]byte
	err      error
}

func (f *fakeFetcher) Fetch(_ context.Context, mediaRef string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.payloads[mediaRef], nil
}

type fakeClassifier struct {
	verdict string
	err     error
	calls   atomic.Int32
}

func (f *fakeClassifier) Classify(context.Context, []byte, string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return f.verdict, nil
}

func newTestPipeline(t *testing.T, cooldown time.Duration, fetcher Fetcher, classifier Classifier) (*Pipeline, *store.Store, *[]Outcome) {
	t.Helper()

	st, err := store.Open(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	var outcomes []Outcome
	p := New(st, NewGate(cooldown), fetcher, classifier, Options{
		Observer: func(o Outcome) { outcomes = append(outcomes, o) },
	}, zerolog.Nop())

	return p, st, &outcomes
}

func TestProcess(t *testing.T) {
	t.Run("accepted image is committed as auto", func(t *testing.T) {
		fetcher := &fakeFetcher{payloads: map[string][]byte{"ref": []byte("img")}}
		classifier := &fakeClassifier{verdict: "YES\ndoggo:wholesome"}
		p, st, outcomes := newTestPipeline(t, 0, fetcher, classifier)

		p.Process(context.Background(), "ref", "look at him")

		require.Equal(t, 1, st.Count())
		rec := st.List()[0]
		assert.Equal(t, "doggo:wholesome", rec.TagText)
		assert.Equal(t, store.SourceAuto, rec.Source)
		assert.Equal(t, []Outcome{OutcomeAccepted}, *outcomes)
	})

	t.Run("rejection stores nothing", func(t *testing.T) {
		fetcher := &fakeFetcher{payloads: map[string][]byte{"ref": []byte("img")}}
		classifier := &fakeClassifier{verdict: "NO"}
		p, st, outcomes := newTestPipeline(t, 0, fetcher, classifier)

		p.Process(context.Background(), "ref", "")

		assert.Equal(t, 0, st.Count())
		assert.Equal(t, []Outcome{OutcomeRejected}, *outcomes)
	})

	t.Run("cooldown allows at most one classifier call", func(t *testing.T) {
		fetcher := &fakeFetcher{payloads: map[string][]byte{
			"ref1": []byte("img1"),
			"ref2": []byte("img2"),
		}}
		classifier := &fakeClassifier{verdict: "NO"}
		p, st, outcomes := newTestPipeline(t, time.Hour, fetcher, classifier)

		p.Process(context.Background(), "ref1", "")
		p.Process(context.Background(), "ref2", "")

		assert.Equal(t, int32(1), classifier.calls.Load())
		assert.Equal(t, 0, st.Count())
		assert.Equal(t, []Outcome{OutcomeRejected, OutcomeCooldown}, *outcomes)
	})

	t.Run("cooldown is stamped even when classification fails", func(t *testing.T) {
		fetcher := &fakeFetcher{payloads: map[string][]byte{"ref": []byte("img")}}
		classifier := &fakeClassifier{err: errors.New("model offline")}
		p, _, outcomes := newTestPipeline(t, time.Hour, fetcher, classifier)

		p.Process(context.Background(), "ref", "")
		p.Process(context.Background(), "ref", "")

		assert.Equal(t, int32(1), classifier.calls.Load())
		assert.Equal(t, []Outcome{OutcomeClassifierError, OutcomeCooldown}, *outcomes)
	})

	t.Run("fetch failure is swallowed", func(t *testing.T) {
		fetcher := &fakeFetcher{err: errors.New("network down")}
		classifier := &fakeClassifier{verdict: "YES\nx:y"}
		p, st, outcomes := newTestPipeline(t, 0, fetcher, classifier)

		p.Process(context.Background(), "ref", "")

		assert.Equal(t, 0, st.Count())
		assert.Equal(t, int32(0), classifier.calls.Load())
		assert.Equal(t, []Outcome{OutcomeFetchError}, *outcomes)
	})

	t.Run("known content skips the classifier", func(t *testing.T) {
		fetcher := &fakeFetcher{payloads: map[string][]byte{"ref": []byte("img")}}
		classifier := &fakeClassifier{verdict: "YES\nx:y"}
		p, st, outcomes := newTestPipeline(t, 0, fetcher, classifier)

		_, err := st.Create(store.CreateParams{Payload: []byte("img"), TagText: "x:y"})
		require.NoError(t, err)

		p.Process(context.Background(), "ref", "")

		assert.Equal(t, int32(0), classifier.calls.Load())
		assert.Equal(t, 1, st.Count())
		assert.Equal(t, []Outcome{OutcomeDuplicate}, *outcomes)
	})

	t.Run("malformed acceptance commits with placeholder tag", func(t *testing.T) {
		fetcher := &fakeFetcher{payloads: map[string][]byte{"ref": []byte("img")}}
		classifier := &fakeClassifier{verdict: "YES\nno separator here"}
		p, st, _ := newTestPipeline(t, 0, fetcher, classifier)

		p.Process(context.Background(), "ref", "")

		require.Equal(t, 1, st.Count())
		assert.Equal(t, PlaceholderTag, st.List()[0].TagText)
	})
}
