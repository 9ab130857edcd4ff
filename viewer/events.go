package viewer

import "sync"

// Listener receives the notifications of a viewer. Methods are called from
// the goroutine running the operation. Loaded, LoadingFailed, Rendered,
// RenderingFailed and PrintingFailed run after the operation has released
// the viewer, so they may call Update or Print. PasswordRequested runs while
// the load waits for the answer: it must not call Update or Print, and its
// prompt may be answered later from any goroutine.
type Listener interface {
	Loaded(doc Document)
	LoadingFailed(err error)
	Rendered()
	RenderingFailed(err error)
	PrintingFailed(err error)
	PasswordRequested(prompt *PasswordPrompt, retry bool)
	JumpRequested(page int)
}

// Events adapts optional callbacks to a Listener. Nil fields are ignored.
type Events struct {
	OnLoaded            func(doc Document)
	OnLoadingFailed     func(err error)
	OnRendered          func()
	OnRenderingFailed   func(err error)
	OnPrintingFailed    func(err error)
	OnPasswordRequested func(prompt *PasswordPrompt, retry bool)
	OnJumpRequested     func(page int)
}

func (e Events) Loaded(doc Document) {
	if e.OnLoaded != nil {
		e.OnLoaded(doc)
	}
}

func (e Events) LoadingFailed(err error) {
	if e.OnLoadingFailed != nil {
		e.OnLoadingFailed(err)
	}
}

func (e Events) Rendered() {
	if e.OnRendered != nil {
		e.OnRendered()
	}
}

func (e Events) RenderingFailed(err error) {
	if e.OnRenderingFailed != nil {
		e.OnRenderingFailed(err)
	}
}

func (e Events) PrintingFailed(err error) {
	if e.OnPrintingFailed != nil {
		e.OnPrintingFailed(err)
	}
}

// PasswordRequested cancels the prompt when no callback is set, so decoding
// fails instead of waiting forever.
func (e Events) PasswordRequested(prompt *PasswordPrompt, retry bool) {
	if e.OnPasswordRequested != nil {
		e.OnPasswordRequested(prompt, retry)
		return
	}
	prompt.Cancel()
}

func (e Events) JumpRequested(page int) {
	if e.OnJumpRequested != nil {
		e.OnJumpRequested(page)
	}
}

// PasswordPrompt is answered exactly once with Submit or Cancel; later
// calls are ignored.
type PasswordPrompt struct {
	once sync.Once
	ch   chan passwordAnswer
}

type passwordAnswer struct {
	password string
	ok       bool
}

func newPasswordPrompt() *PasswordPrompt {
	return &PasswordPrompt{ch: make(chan passwordAnswer, 1)}
}

// Submit supplies a password.
func (p *PasswordPrompt) Submit(password string) {
	p.once.Do(func() { p.ch <- passwordAnswer{password: password, ok: true} })
}

// Cancel abandons decoding.
func (p *PasswordPrompt) Cancel() {
	p.once.Do(func() { p.ch <- passwordAnswer{} })
}
