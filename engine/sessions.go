package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/drummonds/pdfview/database"
	"github.com/drummonds/pdfview/viewer"
)

// ErrSessionNotFound is returned for an unknown or swept session id.
var ErrSessionNotFound = errors.New("viewer session not found")

// ErrPrintingDisabled is returned when no browser is configured.
var ErrPrintingDisabled = errors.New("printing is not configured")

// Session is one viewer driven over HTTP. The source is fixed at creation;
// option updates keep it, so only layout changes re-render.
type Session struct {
	ID         ulid.ULID
	DocumentID string
	Name       string
	Created    time.Time

	viewer *viewer.Viewer
	events *eventLog
	db     database.Repository
	ctx    context.Context
	cancel context.CancelFunc
	source viewer.Source
	// printable is false when the store has no presentation
	printable bool

	mu       sync.Mutex
	opts     viewer.Options
	updates  uint64
	lastUsed time.Time
	running  sync.WaitGroup
}

// PageState describes the committed surfaces of one page.
type PageState struct {
	ID        string            `json:"id"`
	Page      int               `json:"page"`
	Display   viewer.Dimensions `json:"display"`
	Rendered  bool              `json:"rendered"`
	Fragments int               `json:"fragments"`
	Widgets   int               `json:"widgets"`
}

// SessionState is the snapshot the front end polls.
type SessionState struct {
	ID              string         `json:"id"`
	DocumentID      string         `json:"documentId,omitempty"`
	Name            string         `json:"name"`
	Options         viewer.Options `json:"options"`
	PageCount       int            `json:"pageCount"`
	Pages           []PageState    `json:"pages"`
	PasswordPending bool           `json:"passwordPending"`
	LastEvent       uint64         `json:"lastEvent"`
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Update applies new options in the background. Configuration errors are
// returned at once; everything else arrives as events. The viewer generation
// is reserved before Update returns, so back to back updates apply in call
// order and the last one wins.
func (s *Session) Update(opts viewer.Options) error {
	opts.Source = s.source
	if opts.Identifier == "" {
		opts.Identifier = s.ID.String()
	}
	s.mu.Lock()
	pending, err := s.viewer.Request(opts)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.opts = opts
	s.updates++
	gen := s.updates
	s.lastUsed = time.Now()
	s.mu.Unlock()

	s.running.Add(1)
	go func() {
		defer s.running.Done()
		s.run(gen, opts, pending)
	}()
	return nil
}

func (s *Session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates == gen
}

// run applies one update and records it as a render job.
func (s *Session) run(gen uint64, opts viewer.Options, pending *viewer.PendingUpdate) {
	job, err := s.db.CreateJob(database.JobTypeRender, s.ID.String(), fmt.Sprintf("Render %s (page %d)", s.Name, opts.Page))
	if err != nil {
		Logger.Error("Failed to create render job", "session", s.ID.String(), "error", err)
	} else {
		s.db.UpdateJobStatus(job.ID, database.JobStatusRunning, "Rendering")
	}
	startSeq := s.events.last()

	pending.Apply(s.ctx)
	if job == nil {
		return
	}
	switch {
	case !s.current(gen) || s.ctx.Err() != nil:
		s.db.UpdateJobStatus(job.ID, database.JobStatusCancelled, "Superseded")
	default:
		if e, failed := s.events.find(startSeq, EventLoadingFailed, EventRenderingFailed); failed {
			s.db.UpdateJobError(job.ID, e.Error)
			return
		}
		result, _ := json.Marshal(map[string]interface{}{"pages": s.viewer.Pages(), "pageCount": s.viewer.PageCount()})
		s.db.CompleteJob(job.ID, string(result))
	}
}

// wait blocks until every started update has returned.
func (s *Session) wait() {
	s.running.Wait()
}

// State snapshots the session.
func (s *Session) State() SessionState {
	s.mu.Lock()
	opts := s.opts
	s.mu.Unlock()
	state := SessionState{
		ID:              s.ID.String(),
		DocumentID:      s.DocumentID,
		Name:            s.Name,
		Options:         opts,
		PageCount:       s.viewer.PageCount(),
		Pages:           []PageState{},
		PasswordPending: s.events.pendingPassword(),
		LastEvent:       s.events.last(),
	}
	for _, p := range s.viewer.AllSurfaces() {
		state.Pages = append(state.Pages, PageState{
			ID:        p.ID,
			Page:      p.Page,
			Display:   p.Raster.DisplaySize(),
			Rendered:  !p.Raster.Empty(),
			Fragments: p.Text.Len(),
			Widgets:   p.Annotations.Len(),
		})
	}
	return state
}

// Surfaces returns the committed surfaces of page, or nil.
func (s *Session) Surfaces(page int) *viewer.PageSurfaces {
	return s.viewer.Surfaces(page)
}

// Events returns events after seq, waiting up to timeout for new ones.
func (s *Session) Events(ctx context.Context, after uint64, timeout time.Duration) []Event {
	events := s.events.wait(ctx, after, timeout)
	if events == nil {
		events = []Event{}
	}
	return events
}

// AnswerPassword submits or cancels the pending password prompt.
func (s *Session) AnswerPassword(password string, cancel bool) error {
	s.touch()
	return s.events.answer(password, cancel)
}

// Activate follows a widget and returns the page jumped to, if any.
func (s *Session) Activate(ctx context.Context, page int, widget string) (int, error) {
	surfaces := s.viewer.Surfaces(page)
	if surfaces == nil {
		return 0, fmt.Errorf("page %d is not displayed", page)
	}
	startSeq := s.events.last()
	if err := surfaces.Annotations.Activate(ctx, widget); err != nil {
		return 0, err
	}
	if e, ok := s.events.find(startSeq, EventJumpRequested); ok {
		return e.Page, nil
	}
	return 0, nil
}

// PrintResult is a printed document.
type PrintResult struct {
	Title string
	PDF   []byte
}

type printResultKey struct{}

// PrintSink hands a printed document back to the request that asked for
// it. It is the sink of the print presenter.
func PrintSink(ctx context.Context, title string, pdf []byte) error {
	r, ok := ctx.Value(printResultKey{}).(*PrintResult)
	if !ok {
		return errors.New("print has no receiver")
	}
	r.Title, r.PDF = title, pdf
	return nil
}

// Print prints the session's document and returns the PDF.
func (s *Session) Print(ctx context.Context, dpi int, filename string, allPages bool) (*PrintResult, error) {
	if !s.printable {
		return nil, ErrPrintingDisabled
	}
	s.touch()
	job, err := s.db.CreateJob(database.JobTypePrint, s.ID.String(), fmt.Sprintf("Print %s", s.Name))
	if err != nil {
		Logger.Error("Failed to create print job", "session", s.ID.String(), "error", err)
	} else {
		s.db.UpdateJobStatus(job.ID, database.JobStatusRunning, "Printing")
	}
	startSeq := s.events.last()
	result := &PrintResult{}
	s.viewer.Print(context.WithValue(ctx, printResultKey{}, result), dpi, filename, allPages)

	err = nil
	if result.PDF == nil {
		err = viewer.ErrNoDocument
		if e, failed := s.events.find(startSeq, EventPrintingFailed); failed {
			err = e.err
		}
	}
	if job != nil {
		if err != nil {
			s.db.UpdateJobError(job.ID, err.Error())
		} else {
			s.db.CompleteJob(job.ID, fmt.Sprintf(`{"bytes": %d}`, len(result.PDF)))
		}
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Close stops the viewer and waits for running updates.
func (s *Session) Close() error {
	s.cancel()
	s.events.drop()
	err := s.viewer.Close()
	s.wait()
	return err
}

// SessionStore owns the live sessions.
type SessionStore struct {
	engine         viewer.Engine
	presentation   viewer.Presentation
	containerWidth float64
	db             database.Repository

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionStore returns an empty store. A nil presentation disables
// printing.
func NewSessionStore(engine viewer.Engine, presentation viewer.Presentation, containerWidth float64, db database.Repository) *SessionStore {
	return &SessionStore{
		engine:         engine,
		presentation:   presentation,
		containerWidth: containerWidth,
		db:             db,
		sessions:       make(map[string]*Session),
	}
}

// Create starts a session on src and applies opts.
func (st *SessionStore) Create(documentID, name string, src viewer.Source, opts viewer.Options) (*Session, error) {
	opts.Source = src
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	now := time.Now()
	id, err := database.CalculateUUID(now)
	if err != nil {
		return nil, err
	}
	if opts.Identifier == "" {
		opts.Identifier = id.String()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:         id,
		DocumentID: documentID,
		Name:       name,
		Created:    now,
		events:     newEventLog(),
		db:         st.db,
		ctx:        ctx,
		cancel:     cancel,
		source:     src,
		printable:  st.presentation != nil,
		lastUsed:   now,
	}
	vopts := []viewer.Option{
		viewer.WithListener(s.events),
		viewer.WithLogger(Logger.With("session", id.String())),
		viewer.WithContainerWidth(st.containerWidth),
	}
	if st.presentation != nil {
		vopts = append(vopts, viewer.WithPresentation(st.presentation))
	}
	s.viewer = viewer.New(st.engine, vopts...)

	st.mu.Lock()
	st.sessions[id.String()] = s
	st.mu.Unlock()
	Logger.Info("Viewer session created", "session", id.String(), "name", name)

	if err := s.Update(opts); err != nil {
		st.Remove(id.String())
		return nil, err
	}
	return s, nil
}

// Get returns the session with id and marks it used.
func (st *SessionStore) Get(id string) (*Session, error) {
	st.mu.Lock()
	s, ok := st.sessions[id]
	st.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch()
	return s, nil
}

// Remove closes and forgets the session with id.
func (st *SessionStore) Remove(id string) error {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	Logger.Info("Viewer session closed", "session", id)
	return s.Close()
}

// Len returns the number of live sessions.
func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// IDs returns the live session ids, oldest first.
func (st *SessionStore) IDs() []string {
	st.mu.Lock()
	defer st.mu.Unlock()
	ids := make([]string, 0, len(st.sessions))
	for id := range st.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sweep closes sessions unused for longer than idle and returns how many
// were closed.
func (st *SessionStore) Sweep(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)
	var stale []string
	st.mu.Lock()
	for id, s := range st.sessions {
		if s.idleSince().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	st.mu.Unlock()
	closed := 0
	for _, id := range stale {
		if err := st.Remove(id); err == nil {
			closed++
		}
	}
	return closed
}

// CloseAll closes every session.
func (st *SessionStore) CloseAll() {
	for _, id := range st.IDs() {
		st.Remove(id)
	}
}
