// Package session drives one reviewer's pass over the pending image queue.
//
// A Controller owns the current item, the draft manual caption, and the
// latest evaluation scores, and serializes operations so only one request is
// in flight at a time. It talks to the backend through the Dispatcher
// interface so terminal and test frontends share the same flow.
package session

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/SarangaVP/Car-Damage-Caption/internal/models"
	"github.com/SarangaVP/Car-Damage-Caption/internal/notify"
)

// State is the controller's lifecycle phase.
type State string

const (
	// StateLoading means the next item is being fetched.
	StateLoading State = "loading"
	// StateReady means an item is on screen and accepting edits.
	StateReady State = "ready"
	// StateSubmitting means a save is in flight.
	StateSubmitting State = "submitting"
	// StateDone means the queue is exhausted.
	StateDone State = "done"
)

// Item is one image awaiting review.
type Item struct {
	ImagePath        string
	GeneratedCaption string
	Total            int
}

// Result is the outcome of a fetch or save: either the next item or the
// terminal done message.
type Result struct {
	Done    bool
	Message string
	Item    *Item
}

// Scores holds one evaluation pass over both captions.
type Scores struct {
	Generated models.Evaluation
	Manual    models.Evaluation
}

// Review is the payload submitted for the current item.
type Review struct {
	ImagePath        string
	GeneratedCaption string
	ManualCaption    string
	Scores           *Scores
}

// UploadFile is one file of a folder upload, with its path relative to the
// chosen folder.
type UploadFile struct {
	Path string
	Data []byte
}

// Dispatcher is the backend the session talks to.
type Dispatcher interface {
	Fetch(ctx context.Context) (Result, error)
	Check(ctx context.Context, review Review) (Scores, error)
	Save(ctx context.Context, review Review) (Result, error)
	Upload(ctx context.Context, files []UploadFile) error
	Export(ctx context.Context, w io.Writer) error
	Clear(ctx context.Context) (string, error)
}

// Controller is the review session state machine.
type Controller struct {
	mu     sync.Mutex
	d      Dispatcher
	toasts *notify.Manager

	state  State
	item   *Item
	manual string
	scores *Scores
}

// NewController creates a session in the Loading state. Call LoadNext to
// fetch the first item.
func NewController(d Dispatcher, toasts *notify.Manager) *Controller {
	if toasts == nil {
		toasts = notify.NewManager()
	}
	return &Controller{d: d, toasts: toasts, state: StateLoading}
}

// State returns the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Current returns the item on screen, or nil while loading or done.
func (c *Controller) Current() *Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.item
}

// Scores returns the latest evaluation, or nil if the current item has not
// been checked.
func (c *Controller) Scores() *Scores {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scores
}

// ManualCaption returns the draft manual caption for the current item.
func (c *Controller) ManualCaption() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.manual
}

// SetManualCaption updates the draft manual caption. Editing after a check
// does not invalidate the scores; the reviewer re-checks when they care.
func (c *Controller) SetManualCaption(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manual = s
}

// Toasts exposes the session's notification manager.
func (c *Controller) Toasts() *notify.Manager {
	return c.toasts
}

// begin transitions into next if the current state allows it, returning the
// state it left so a failed operation can restore it. Every operation that
// talks to the dispatcher passes through here, so at most one request is in
// flight at a time.
func (c *Controller) begin(next State, allowed ...State) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range allowed {
		if c.state == s {
			prev := c.state
			c.state = next
			return prev, nil
		}
	}
	return c.state, fmt.Errorf("operation not allowed while %s", c.state)
}

// apply installs a fetch/save result: either the next item with cleared
// drafts and scores, or the terminal done state.
func (c *Controller) apply(res Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if res.Done {
		c.state = StateDone
		c.item = nil
		c.manual = ""
		c.scores = nil
		return
	}
	c.state = StateReady
	c.item = res.Item
	c.manual = ""
	c.scores = nil
}

// restore puts the controller back into prev after a failed operation,
// keeping the current item and any scores intact.
func (c *Controller) restore(prev State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = prev
}

// LoadNext fetches the next pending item. On success the session is Ready
// with fresh drafts; on an empty queue it is Done.
func (c *Controller) LoadNext(ctx context.Context) error {
	prev, err := c.begin(StateLoading, StateLoading, StateReady, StateDone)
	if err != nil {
		return err
	}

	res, err := c.d.Fetch(ctx)
	if err != nil {
		c.restore(prev)
		c.toasts.Push(notify.KindError, fmt.Sprintf("Failed to load image: %v", err))
		return err
	}

	c.apply(res)
	if res.Done {
		c.toasts.Push(notify.KindInfo, res.Message)
	}
	return nil
}

// Evaluate scores both captions of the current item. A sticky toast covers
// the round trip; on failure the previous scores are left untouched. The
// session stays in Submitting for the duration, so no save or reload can
// interleave with the evaluation.
func (c *Controller) Evaluate(ctx context.Context) error {
	if _, err := c.begin(StateSubmitting, StateReady); err != nil {
		return err
	}

	c.mu.Lock()
	review := Review{
		ImagePath:        c.item.ImagePath,
		GeneratedCaption: c.item.GeneratedCaption,
		ManualCaption:    c.manual,
	}
	c.mu.Unlock()

	sticky := c.toasts.PushSticky(notify.KindInfo, "Checking captions...")
	scores, err := c.d.Check(ctx, review)
	c.toasts.Dismiss(sticky)
	if err != nil {
		c.restore(StateReady)
		c.toasts.Push(notify.KindError, fmt.Sprintf("Evaluation failed: %v", err))
		return err
	}

	c.mu.Lock()
	// Install the scores only if the evaluated item is still on screen.
	if c.item != nil && c.item.ImagePath == review.ImagePath {
		c.scores = &scores
	}
	c.state = StateReady
	c.mu.Unlock()
	c.toasts.Push(notify.KindSuccess, "Captions evaluated")
	return nil
}

// Save submits the current item. On success the session advances to the
// next item or to Done; on failure it stays Ready with the item intact so
// the reviewer can retry.
func (c *Controller) Save(ctx context.Context) error {
	if _, err := c.begin(StateSubmitting, StateReady); err != nil {
		return err
	}

	c.mu.Lock()
	review := Review{
		ImagePath:        c.item.ImagePath,
		GeneratedCaption: c.item.GeneratedCaption,
		ManualCaption:    c.manual,
		Scores:           c.scores,
	}
	c.mu.Unlock()

	res, err := c.d.Save(ctx, review)
	if err != nil {
		c.restore(StateReady)
		c.toasts.Push(notify.KindError, fmt.Sprintf("Save failed: %v", err))
		return err
	}

	c.apply(res)
	if res.Done {
		c.toasts.Push(notify.KindSuccess, res.Message)
	} else {
		c.toasts.Push(notify.KindSuccess, "Saved")
	}
	return nil
}

// Upload pushes a folder of files to the backend, then reloads the queue so
// the new images become reviewable.
func (c *Controller) Upload(ctx context.Context, files []UploadFile) error {
	prev, err := c.begin(StateSubmitting, StateLoading, StateReady, StateDone)
	if err != nil {
		return err
	}

	sticky := c.toasts.PushSticky(notify.KindInfo, "Uploading folder...")
	err = c.d.Upload(ctx, files)
	c.toasts.Dismiss(sticky)
	if err != nil {
		c.restore(prev)
		c.toasts.Push(notify.KindError, fmt.Sprintf("Upload failed: %v", err))
		return err
	}
	c.toasts.Push(notify.KindSuccess, "Folder uploaded successfully")

	c.reset()
	return c.LoadNext(ctx)
}

// Export streams the dataset archive to w. It holds the in-flight slot so a
// save cannot race the download.
func (c *Controller) Export(ctx context.Context, w io.Writer) error {
	prev, err := c.begin(StateSubmitting, StateLoading, StateReady, StateDone)
	if err != nil {
		return err
	}
	defer c.restore(prev)

	if err := c.d.Export(ctx, w); err != nil {
		c.toasts.Push(notify.KindError, fmt.Sprintf("Download failed: %v", err))
		return err
	}
	c.toasts.Push(notify.KindSuccess, "Dataset downloaded")
	return nil
}

// Clear wipes the saved dataset and reloads the queue, so previously
// reviewed images become pending again.
func (c *Controller) Clear(ctx context.Context) error {
	prev, err := c.begin(StateSubmitting, StateLoading, StateReady, StateDone)
	if err != nil {
		return err
	}

	msg, err := c.d.Clear(ctx)
	if err != nil {
		c.restore(prev)
		c.toasts.Push(notify.KindError, fmt.Sprintf("Clear failed: %v", err))
		return err
	}
	c.toasts.Push(notify.KindSuccess, msg)

	c.reset()
	return c.LoadNext(ctx)
}

// reset puts the session back at the start of the queue with no item.
func (c *Controller) reset() {
	c.mu.Lock()
	c.state = StateLoading
	c.item = nil
	c.manual = ""
	c.scores = nil
	c.mu.Unlock()
}
