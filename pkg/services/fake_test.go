package services

import (
	"context"
	"sync"
)

// fakeProvider replays scripted results, one per call.
type fakeProvider struct {
	mu         sync.Mutex
	configured bool
	results    []fakeResult
	calls      []fakeCall
}

type fakeResult struct {
	text   string
	chunks []string
	err    error
	// block waits for ctx cancellation after emitting chunks
	block bool
}

type fakeCall struct {
	model string
	msgs  []ChatMessage
}

func newFake(results ...fakeResult) *fakeProvider {
	return &fakeProvider{configured: true, results: results}
}

func (f *fakeProvider) Name() string     { return "fake" }
func (f *fakeProvider) Configured() bool { return f.configured }

func (f *fakeProvider) next(model string, msgs []ChatMessage) fakeResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fakeCall{model: model, msgs: append([]ChatMessage(nil), msgs...)})
	if len(f.results) == 0 {
		return fakeResult{text: "default answer"}
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r
}

func (f *fakeProvider) Complete(ctx context.Context, model string, msgs []ChatMessage) (string, error) {
	r := f.next(model, msgs)
	return r.text, r.err
}

func (f *fakeProvider) Stream(ctx context.Context, model string, msgs []ChatMessage, onDelta func(string)) (string, error) {
	r := f.next(model, msgs)
	out := ""
	chunks := r.chunks
	if chunks == nil && r.text != "" {
		chunks = []string{r.text}
	}
	for _, c := range chunks {
		out += c
		onDelta(c)
	}
	if r.block {
		<-ctx.Done()
		return out, ctx.Err()
	}
	return out, r.err
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
