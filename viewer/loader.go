package viewer

import (
	"context"
	"errors"
	"fmt"
)

// decode turns src into a document. Decoded sources pass through; the others
// go to the engine, which calls back into askPassword for encrypted files.
func (v *Viewer) decode(ctx context.Context, src Source) (Document, error) {
	switch s := src.(type) {
	case *Decoded:
		if s.Document == nil {
			return nil, errors.New("decoded source has no document")
		}
		return s.Document, nil
	case *Raw, *Stream, *Remote:
		if v.engine == nil {
			return nil, fmt.Errorf("no engine to decode %s", sourceName(src))
		}
		return v.engine.Decode(ctx, src, v.askPassword)
	}
	return nil, fmt.Errorf("unsupported source %T", src)
}

// askPassword notifies the listener and waits for the prompt to be answered
// or the operation to be superseded.
func (v *Viewer) askPassword(ctx context.Context, retry bool) (string, bool) {
	prompt := newPasswordPrompt()
	v.logger.Info("Document requires a password", "retry", retry)
	v.listener.PasswordRequested(prompt, retry)
	select {
	case a := <-prompt.ch:
		return a.password, a.ok
	case <-ctx.Done():
		prompt.Cancel()
		return "", false
	}
}

// load decodes opts.Source for generation gen. It returns the notification
// to emit once opMu is released and whether the caller should go on to
// render.
func (v *Viewer) load(ctx context.Context, gen uint64, opts Options) (func(), bool) {
	src := opts.Source
	if src == nil {
		v.mu.Lock()
		if gen == v.gen {
			v.loadedSource, v.settled = nil, true
		}
		v.mu.Unlock()
		return nil, false
	}

	v.logger.Info("Loading document", "source", sourceName(src), "generation", gen)
	doc, err := v.decode(ctx, src)

	v.mu.Lock()
	if gen != v.gen {
		v.mu.Unlock()
		// a superseded load leaves the source unsettled so the next update
		// decodes it again
		if _, passThrough := src.(*Decoded); doc != nil && !passThrough {
			if cerr := doc.Close(); cerr != nil {
				v.logger.Warn("Closing superseded document", "error", cerr)
			}
		}
		v.logger.Debug("Discarding superseded load", "generation", gen)
		return nil, false
	}
	v.loadedSource, v.settled = src, true
	if err != nil {
		v.mu.Unlock()
		v.logger.Error("Loading document failed", "source", sourceName(src), "error", err)
		return func() { v.listener.LoadingFailed(&LoadError{Err: err}) }, false
	}
	v.doc = doc
	v.pageCount = doc.PageCount()
	v.syncLocked(opts)
	v.mu.Unlock()

	v.logger.Info("Document loaded", "source", sourceName(src), "pages", doc.PageCount())
	return func() { v.listener.Loaded(doc) }, true
}
