package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zzjbattlefield/smart-ledger-web/internal/ledger"
)

// RecognitionClient extracts bill fields from a receipt image
type RecognitionClient interface {
	RecognizeOnly(ctx context.Context, upload ledger.Upload) (*ledger.Recognition, error)
	RecognizeAndPersist(ctx context.Context, upload ledger.Upload) (*ledger.Bill, error)
}

// PersistenceClient creates and updates bills
type PersistenceClient interface {
	Create(ctx context.Context, fields ledger.BillFields) (*ledger.Bill, error)
	Update(ctx context.Context, id int64, fields ledger.BillFields) (*ledger.Bill, error)
}

// CategoryResolver maps a recognized category name to a category
type CategoryResolver interface {
	Resolve(ctx context.Context, billType ledger.BillType, name string) (ledger.Category, bool, error)
}

// ModeSource reports whether recognition should also persist the bill.
// It is read each time an item starts analyzing.
type ModeSource interface {
	AutoSubmit() bool
}

// ModeFunc adapts a function to ModeSource
type ModeFunc func() bool

// AutoSubmit calls f
func (f ModeFunc) AutoSubmit() bool { return f() }

// Engine drives capture items through recognition, review and persistence.
// All queue state is owned by the goroutine running Run; operations are sent
// to it as commands and network calls report back the same way.
type Engine struct {
	recognizer RecognitionClient
	persister  PersistenceClient
	mode       ModeSource
	categories CategoryResolver
	location   *time.Location
	now        func() time.Time
	newID      func() string
	newUUID    func() string
	logger     *slog.Logger
	observers  []Observer

	cmds    chan command
	done    chan struct{}
	running atomic.Bool
	calls   sync.WaitGroup
	snap    atomic.Pointer[Snapshot]

	// loop state
	ctx          context.Context
	store        *Store
	analyzing    string
	orphaned     string // removed item whose recognition call is still out
	navigateAway bool
	version      uint64
	pending      []Event
}

// Option configures an Engine
type Option func(*Engine)

// WithObserver registers an observer for engine events
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observers = append(e.observers, o)
	}
}

// WithCategoryResolver maps recognized category names to ids in manual mode
func WithCategoryResolver(r CategoryResolver) Option {
	return func(e *Engine) {
		e.categories = r
	}
}

// WithLocation sets the zone form pay times are entered in
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.location = loc
		}
	}
}

// WithIDGenerator replaces the item id generator
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		e.newID = gen
	}
}

// WithTimeSource replaces time.Now
func WithTimeSource(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an Engine. A nil mode means automatic mode.
func NewEngine(recognizer RecognitionClient, persister PersistenceClient, mode ModeSource, opts ...Option) *Engine {
	if mode == nil {
		mode = ModeFunc(func() bool { return true })
	}
	e := &Engine{
		recognizer: recognizer,
		persister:  persister,
		mode:       mode,
		location:   time.Local,
		now:        time.Now,
		newID:      uuid.NewString,
		newUUID:    uuid.NewString,
		logger:     slog.Default(),
		cmds:       make(chan command),
		done:       make(chan struct{}),
		store:      NewStore(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.snap.Store(&Snapshot{Items: []Item{}})
	return e
}

// Run applies commands until ctx is cancelled. Outstanding network calls are
// cancelled through ctx and awaited before Run returns.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine already running")
	}
	e.ctx = ctx
	e.logger.Info("Capture engine started")
	defer func() {
		close(e.done)
		e.calls.Wait()
		e.logger.Info("Capture engine stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-e.cmds:
			err := cmd.fn()
			e.schedule()
			e.publish()
			if cmd.reply != nil {
				cmd.reply <- err
			}
		}
	}
}

// Snapshot returns the latest published queue state
func (e *Engine) Snapshot() *Snapshot {
	return e.snap.Load()
}

// AddFiles queues image items as waiting
func (e *Engine) AddFiles(ctx context.Context, images []Image) ([]Item, error) {
	var added []Item
	err := e.call(ctx, func() error {
		now := e.now().In(e.location)
		for _, img := range images {
			img := img
			added = append(added, Item{
				ID:     e.newID(),
				Source: &img,
				Status: StatusWaiting,
				Form:   DefaultForm(now),
			})
		}
		if len(added) == 0 {
			return nil
		}
		e.store.Add(added...)
		e.navigateAway = false
		e.logger.Info("Queued receipts", "count", len(added))
		return nil
	})
	return added, err
}

// AddManual queues a manual entry, ready for review, and makes it active
func (e *Engine) AddManual(ctx context.Context) (Item, error) {
	var item Item
	err := e.call(ctx, func() error {
		item = Item{
			ID:     e.newID(),
			Status: StatusReviewReady,
			Form:   DefaultForm(e.now().In(e.location)),
		}
		e.store.Add(item)
		e.store.SetActive(item.ID)
		e.navigateAway = false
		return nil
	})
	return item, err
}

// SetActive selects the item shown for review
func (e *Engine) SetActive(ctx context.Context, id string) error {
	return e.call(ctx, func() error {
		if _, ok := e.store.Get(id); !ok {
			return fmt.Errorf("activating %s: %w", id, ErrNotFound)
		}
		e.store.SetActive(id)
		return nil
	})
}

// Retry sends an item whose recognition failed back to the queue
func (e *Engine) Retry(ctx context.Context, id string) error {
	return e.call(ctx, func() error {
		item, ok := e.store.Get(id)
		if !ok {
			return fmt.Errorf("retrying %s: %w", id, ErrNotFound)
		}
		if item.Status != StatusError || item.Manual() {
			return fmt.Errorf("retrying %s from %s: %w", id, item.Status, ErrInvalidTransition)
		}
		e.store.setErr(id, "")
		e.store.UpdateStatus(id, StatusWaiting)
		e.logger.Info("Retrying recognition", "item_id", id)
		return nil
	})
}

// EditForm applies a partial form edit. Edits are accepted in every status;
// fields edited before recognition finishes win over recognized values.
func (e *Engine) EditForm(ctx context.Context, id string, patch FormPatch) error {
	if err := patch.validate(); err != nil {
		return err
	}
	return e.call(ctx, func() error {
		if _, ok := e.store.Get(id); !ok {
			return fmt.Errorf("editing %s: %w", id, ErrNotFound)
		}
		e.store.UpdateForm(id, patch)
		return nil
	})
}

// Save persists the item's form: create for a new bill, update once the item
// has a server id. Validation happens before any network call; the outcome
// of the call is reported through snapshots and events.
func (e *Engine) Save(ctx context.Context, id string) error {
	return e.call(ctx, func() error {
		item, ok := e.store.Get(id)
		if !ok {
			return fmt.Errorf("saving %s: %w", id, ErrNotFound)
		}
		if item.Status == StatusWaiting || item.Status == StatusAnalyzing {
			return fmt.Errorf("saving %s while %s: %w", id, item.Status, ErrNotReady)
		}
		fields, err := item.Form.billFields(e.location)
		if err != nil {
			return err
		}
		if item.Status != StatusSaving {
			e.store.setPreSave(id, item.Status)
		}
		serverID := item.ServerID
		if !item.Persisted() {
			fields.UUID = e.newUUID()
			fields.Platform = item.platformTag()
		}
		e.store.setErr(id, "")
		e.store.UpdateStatus(id, StatusSaving)
		e.logger.Info("Saving bill", "item_id", id, "server_id", serverID)
		e.startPersist(id, serverID, fields)
		return nil
	})
}

// Remove deletes an item from the queue and returns it. A response still in
// flight for the item is discarded when it arrives.
func (e *Engine) Remove(ctx context.Context, id string) (Item, error) {
	var removed Item
	err := e.call(ctx, func() error {
		item, ok := e.store.Get(id)
		if !ok {
			return fmt.Errorf("removing %s: %w", id, ErrNotFound)
		}
		e.store.Remove(id)
		if e.analyzing == id {
			e.analyzing = ""
			e.orphaned = id
		}
		removed = item
		e.emit(EventRemoved, id, nil)
		e.logger.Info("Removed item", "item_id", id, "status", item.Status)
		return nil
	})
	return removed, err
}

// command is applied on the loop. The reply, if any, is sent once the
// resulting snapshot has been published.
type command struct {
	fn    func() error
	reply chan error
}

// call runs fn on the loop and waits for its result
func (e *Engine) call(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case e.cmds <- command{fn: fn, reply: reply}:
	case <-e.done:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-reply
}

// post hands a completion back to the loop; it is dropped after shutdown
func (e *Engine) post(fn func()) {
	cmd := command{fn: func() error {
		fn()
		return nil
	}}
	select {
	case e.cmds <- cmd:
	case <-e.done:
	}
}

func (e *Engine) emit(kind EventKind, id string, err error) {
	e.pending = append(e.pending, Event{Kind: kind, ItemID: id, Err: err})
}

func (e *Engine) publish() {
	e.version++
	snap := &Snapshot{
		Items:        e.store.Items(),
		ActiveID:     e.store.Active(),
		Analyzing:    e.analyzing,
		NavigateAway: e.navigateAway,
		Version:      e.version,
	}
	e.snap.Store(snap)

	events := e.pending
	e.pending = nil
	e.notify(Event{Kind: EventUpdated, Snapshot: snap})
	for _, ev := range events {
		ev.Snapshot = snap
		e.notify(ev)
	}
}

func (e *Engine) notify(ev Event) {
	for _, o := range e.observers {
		o(ev)
	}
}

// schedule promotes the first waiting item when nothing is analyzing
func (e *Engine) schedule() {
	if e.analyzing != "" || e.orphaned != "" {
		return
	}
	item, ok := e.store.firstWith("", StatusWaiting)
	if !ok || item.Source == nil {
		return
	}
	id := item.ID
	upload := item.Source.upload()
	auto := e.mode.AutoSubmit()

	e.analyzing = id
	e.store.UpdateStatus(id, StatusAnalyzing)
	e.logger.Info("Recognizing receipt", "item_id", id, "filename", upload.Filename, "auto_submit", auto)

	e.calls.Add(1)
	go func() {
		defer e.calls.Done()
		if auto {
			e.recognizeAndPersist(id, upload)
			return
		}
		e.recognizeOnly(id, upload)
	}()
}

func (e *Engine) recognizeOnly(id string, upload ledger.Upload) {
	rec, err := e.recognizer.RecognizeOnly(e.ctx, upload)
	if err == nil && rec == nil {
		err = errors.New("empty recognition result")
	}
	var cat *ledger.Category
	if err == nil {
		cat = e.resolveCategory(rec)
	}
	e.post(func() { e.finishRecognition(id, rec, cat, err) })
}

func (e *Engine) recognizeAndPersist(id string, upload ledger.Upload) {
	bill, err := e.recognizer.RecognizeAndPersist(e.ctx, upload)
	if err == nil && bill == nil {
		err = errors.New("empty bill")
	}
	e.post(func() { e.finishPersisted(id, bill, err) })
}

func (e *Engine) resolveCategory(rec *ledger.Recognition) *ledger.Category {
	if e.categories == nil || rec.Category == "" {
		return nil
	}
	billType := rec.BillType
	if !billType.Valid() {
		billType = ledger.BillTypeExpense
	}
	cat, found, err := e.categories.Resolve(e.ctx, billType, rec.Category)
	if err != nil {
		e.logger.Warn("Failed to resolve category", "category", rec.Category, "error", err)
		return nil
	}
	if !found {
		return nil
	}
	return &cat
}

func (e *Engine) startPersist(id string, serverID int64, fields ledger.BillFields) {
	e.calls.Add(1)
	go func() {
		defer e.calls.Done()
		e.persist(id, serverID, fields)
	}()
}

func (e *Engine) persist(id string, serverID int64, fields ledger.BillFields) {
	var (
		bill *ledger.Bill
		err  error
	)
	if serverID != 0 {
		bill, err = e.persister.Update(e.ctx, serverID, fields)
	} else {
		bill, err = e.persister.Create(e.ctx, fields)
	}
	if err == nil && bill == nil {
		err = errors.New("empty bill")
	}
	e.post(func() { e.finishSave(id, bill, err) })
}

func (e *Engine) finishRecognition(id string, rec *ledger.Recognition, cat *ledger.Category, err error) {
	e.recognitionDone(id)
	item, ok := e.store.Get(id)
	if !ok {
		e.logger.Info("Discarding recognition for removed item", "item_id", id)
		return
	}
	if err != nil {
		e.failRecognition(id, err)
		return
	}

	form := keep(formFromRecognition(rec, cat, e.location, e.now()), item.Form, item.touched)
	e.store.AttachResult(id, rec)
	e.store.setForm(id, form)
	e.store.setErr(id, "")
	e.store.UpdateStatus(id, StatusReviewReady)
	e.emit(EventRecognized, id, nil)
}

// recognitionDone releases the recognition slot held by id
func (e *Engine) recognitionDone(id string) {
	if e.analyzing == id {
		e.analyzing = ""
	}
	if e.orphaned == id {
		e.orphaned = ""
	}
}

func (e *Engine) finishPersisted(id string, bill *ledger.Bill, err error) {
	e.recognitionDone(id)
	item, ok := e.store.Get(id)
	if !ok {
		if err == nil {
			e.logger.Warn("Discarding bill for removed item", "item_id", id, "bill_id", bill.ID)
		}
		return
	}
	if err != nil {
		e.failRecognition(id, err)
		return
	}

	e.store.AttachServerID(id, bill.ID)
	e.emit(EventRecognized, id, nil)
	if item.touched != 0 {
		e.updateWithEdits(item, bill)
		return
	}

	e.store.setForm(id, formFromBill(bill, e.location, e.now()))
	e.store.setErr(id, "")
	e.store.UpdateStatus(id, StatusCompleted)
	e.emit(EventSaved, id, nil)
	e.logger.Info("Receipt recognized and saved", "item_id", id, "bill_id", bill.ID)

	if e.store.Len() == 1 {
		e.signalNavigateAway(id)
		return
	}
	if e.store.Active() == id {
		if next, ok := e.store.firstWith(id, StatusWaiting, StatusError); ok {
			e.store.SetActive(next.ID)
		}
	}
}

// updateWithEdits sends fields the user edited during analysis to the bill
// the backend just created. The item stays unsaved until the update lands.
func (e *Engine) updateWithEdits(item Item, bill *ledger.Bill) {
	id := item.ID
	form := keep(formFromBill(bill, e.location, e.now()), item.Form, item.touched)
	e.store.setForm(id, form)

	fields, err := form.billFields(e.location)
	if err != nil {
		e.logger.Warn("Edits made during analysis cannot be saved", "item_id", id, "bill_id", bill.ID, "error", err)
		e.store.setErr(id, err.Error())
		e.store.UpdateStatus(id, StatusReviewReady)
		e.emit(EventSaveFailed, id, err)
		return
	}
	e.store.setPreSave(id, StatusReviewReady)
	e.store.setErr(id, "")
	e.store.UpdateStatus(id, StatusSaving)
	e.logger.Info("Updating bill with edits made during analysis", "item_id", id, "bill_id", bill.ID)
	e.startPersist(id, bill.ID, fields)
}

func (e *Engine) failRecognition(id string, err error) {
	err = fmt.Errorf("%w: %w", ErrRecognitionFailed, err)
	e.logger.Error("Recognition failed", "item_id", id, "error", err)
	e.store.setErr(id, err.Error())
	e.store.UpdateStatus(id, StatusError)
	e.emit(EventRecognitionFailed, id, err)
}

func (e *Engine) finishSave(id string, bill *ledger.Bill, err error) {
	item, ok := e.store.Get(id)
	if !ok {
		e.logger.Info("Discarding save result for removed item", "item_id", id)
		return
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
		e.logger.Error("Failed to save bill", "item_id", id, "error", err)
		if item.Status == StatusSaving {
			e.store.UpdateStatus(id, item.preSave)
		}
		e.store.setErr(id, err.Error())
		e.emit(EventSaveFailed, id, err)
		return
	}

	e.store.AttachServerID(id, bill.ID)
	e.store.setErr(id, "")
	e.store.UpdateStatus(id, StatusCompleted)
	e.emit(EventSaved, id, nil)
	e.logger.Info("Bill saved", "item_id", id, "bill_id", bill.ID)

	if e.store.Len() == 1 {
		e.signalNavigateAway(id)
		return
	}
	if e.store.Active() == id {
		if next, ok := e.store.nextPreferring(id, StatusWaiting, StatusReviewReady, StatusError); ok {
			e.store.SetActive(next.ID)
		}
	}
}

func (e *Engine) signalNavigateAway(id string) {
	e.navigateAway = true
	e.emit(EventNavigateAway, id, nil)
}
