package services

import (
	"albumgrab/document"
	"albumgrab/types"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Attributes and class that mark a materialized control in the document
const (
	ControlClass     = "albumgrab-control"
	IdentityAttr     = "data-albumgrab-identity"
	ControlIDAttr    = "data-albumgrab-id"
	ControlStateAttr = "data-albumgrab-state"
)

// IsControlNode matches every control node, tagged or not
var IsControlNode = document.ByClass(ControlClass)

// Presenter receives every control update, usually the websocket hub
type Presenter interface {
	BroadcastControl(msg types.ControlMessage)
}

// Control is the per-entity download control and its state machine:
// actionable -> busy -> completed or error -> actionable. Completed is
// permanent unless the owner calls reset.
type Control struct {
	ID     string
	entity types.Entity

	doc       *document.Document
	presenter Presenter
	node      *html.Node

	mu       sync.Mutex
	state    types.ControlState
	label    string
	progress *types.ProgressSnapshot
	message  string
	detached bool
}

func newControl(entity types.Entity, doc *document.Document, presenter Presenter) *Control {
	ctl := &Control{
		ID:        uuid.New().String(),
		entity:    entity,
		doc:       doc,
		presenter: presenter,
	}

	ctl.state = types.ControlStateActionable
	ctl.label = actionLabel(entity)
	if entity.Completion == types.CompletionDownloaded {
		ctl.state = types.ControlStateCompleted
		ctl.label = "Downloaded"
	}

	ctl.node = &html.Node{
		Type:     html.ElementNode,
		Data:     "button",
		DataAtom: atom.Button,
		Attr: []html.Attribute{
			{Key: "class", Val: ControlClass},
			{Key: IdentityAttr, Val: entity.Identity},
			{Key: ControlIDAttr, Val: ctl.ID},
		},
	}
	ctl.paintNodeLocked()
	return ctl
}

// Entity returns the entity the control acts on
func (c *Control) Entity() types.Entity {
	return c.entity
}

// State returns the current presentation state
func (c *Control) State() types.ControlState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the message a host shell needs to draw the control
func (c *Control) Snapshot() types.ControlMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messageLocked()
}

// begin moves an actionable control to busy. It fails for any other state,
// which is what keeps a double click from starting two jobs.
func (c *Control) begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detached || c.state != types.ControlStateActionable {
		return false
	}
	c.transitionLocked(types.ControlStateBusy, "Starting...", nil, "")
	return true
}

func (c *Control) showProgress(label string, snapshot *types.ProgressSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != types.ControlStateBusy {
		return
	}
	c.transitionLocked(types.ControlStateBusy, label, snapshot, "")
}

func (c *Control) complete(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitionLocked(types.ControlStateCompleted, "Downloaded", nil, message)
}

func (c *Control) flashError(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == types.ControlStateCompleted {
		return
	}
	c.transitionLocked(types.ControlStateError, "Download Failed", nil, message)
}

// revert re-enables a control after its error flash. Completed controls
// never come back.
func (c *Control) revert() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != types.ControlStateError {
		return
	}
	c.transitionLocked(types.ControlStateActionable, actionLabel(c.entity), nil, "")
}

// reset re-enables a completed control so the same release can be fetched
// again
func (c *Control) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != types.ControlStateCompleted {
		return
	}
	c.transitionLocked(types.ControlStateActionable, actionLabel(c.entity), nil, "")
}

// detach cuts the control off from the page scope. Late updates from an
// abandoned poll loop are dropped from then on.
func (c *Control) detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detached = true
}

func (c *Control) transitionLocked(state types.ControlState, label string, progress *types.ProgressSnapshot, message string) {
	if c.detached {
		return
	}
	c.state = state
	c.label = label
	c.progress = progress
	c.message = message

	if c.doc != nil {
		c.doc.Mutate(func(*html.Node) { c.paintNodeLocked() })
	} else {
		c.paintNodeLocked()
	}
	if c.presenter != nil {
		c.presenter.BroadcastControl(c.messageLocked())
	}
}

// paintNodeLocked mirrors the state onto the document node. Callers hold
// the document write lock, or own the node before it is inserted.
func (c *Control) paintNodeLocked() {
	document.SetAttr(c.node, ControlStateAttr, string(c.state))
	if c.disabledLocked() {
		document.SetAttr(c.node, "disabled", "")
	} else {
		document.RemoveAttr(c.node, "disabled")
	}
	document.SetText(c.node, c.label)
}

func (c *Control) disabledLocked() bool {
	return c.state != types.ControlStateActionable
}

func (c *Control) messageLocked() types.ControlMessage {
	return types.ControlMessage{
		ControlID:   c.ID,
		Identity:    c.entity.Identity,
		DisplayName: c.entity.DisplayName,
		State:       c.state,
		Label:       c.label,
		Disabled:    c.disabledLocked(),
		Progress:    c.progress,
		Message:     c.message,
		Timestamp:   time.Now(),
	}
}

func actionLabel(entity types.Entity) string {
	kind := entity.Kind
	if kind == "" {
		kind = types.EntityKindAlbum
	}
	return fmt.Sprintf("Download %s", kind)
}

// progressLabel turns a snapshot into the text shown while busy
func progressLabel(s types.ProgressSnapshot) string {
	label := "Downloading..."
	if s.CurrentTrack != nil && s.TotalTracks != nil && *s.TotalTracks > 0 {
		label = fmt.Sprintf("Downloading track %d/%d", *s.CurrentTrack, *s.TotalTracks)
	} else if s.Progress != nil && *s.Progress > 0 {
		label = fmt.Sprintf("Downloading... %.0f%%", *s.Progress)
	}

	switch {
	case strings.Contains(s.Message, "spotDL"):
		label = "Downloading tracks..."
	case strings.Contains(s.Message, "cover art"):
		label = "Adding cover art..."
	}
	return label
}
