package inbox

import (
	"context"
	"fmt"

	"github.com/wacrm/wacrm/internal/bus"
	"github.com/wacrm/wacrm/internal/store"
	"go.uber.org/zap"
)

// Notifier surfaces exactly one user-facing notification per operation.
type Notifier interface {
	Success(msg string)
	Info(msg string)
	Error(msg string)
}

// BusNotifier publishes notifications as bus events, which the websocket
// feed relays to connected clients.
type BusNotifier struct {
	Bus *bus.Bus
}

func (n *BusNotifier) Success(msg string) { n.Bus.Emit(bus.KindNotifySuccess, msg) }
func (n *BusNotifier) Info(msg string)    { n.Bus.Emit(bus.KindNotifyInfo, msg) }
func (n *BusNotifier) Error(msg string)   { n.Bus.Emit(bus.KindNotifyError, msg) }

// Remote is the persistent side of conversation mutations.
type Remote interface {
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	ArchiveConversation(ctx context.Context, id string) error
	SetConversationTags(ctx context.Context, id string, tags []string) error
	AssignConversation(ctx context.Context, id, assignee string) error
}

// StoreRemote implements Remote on the workspace store.
type StoreRemote struct {
	DB *store.DB
}

func (r *StoreRemote) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	return r.DB.GetConversation(id)
}

func (r *StoreRemote) DeleteConversation(ctx context.Context, id string) error {
	return r.DB.DeleteConversation(id)
}

func (r *StoreRemote) ArchiveConversation(ctx context.Context, id string) error {
	return r.DB.SetConversationStatus(id, "archived")
}

func (r *StoreRemote) SetConversationTags(ctx context.Context, id string, tags []string) error {
	return r.DB.SetConversationTags(id, tags)
}

func (r *StoreRemote) AssignConversation(ctx context.Context, id, assignee string) error {
	return r.DB.SetConversationAssignee(id, assignee)
}

// Dispatcher performs conversation mutations with a single optimistic
// protocol: validate, apply locally, call the remote, notify. A failed
// remote call rolls the local mutation back before reporting the error.
type Dispatcher struct {
	state  *State
	remote Remote
	notify Notifier
	bus    *bus.Bus
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher over the shared inbox state.
func NewDispatcher(state *State, remote Remote, notify Notifier, b *bus.Bus, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		state:  state,
		remote: remote,
		notify: notify,
		bus:    b,
		logger: logger,
	}
}

// command is one optimistic mutation: applyLocal returns the rollback.
type command struct {
	name       string
	applyLocal func() (rollback func())
	callRemote func(ctx context.Context) error
	successMsg string
}

func (d *Dispatcher) run(ctx context.Context, cmd command) error {
	rollback := cmd.applyLocal()

	if err := cmd.callRemote(ctx); err != nil {
		if rollback != nil {
			rollback()
		}
		d.logger.Error("conversation mutation failed", zap.String("op", cmd.name), zap.Error(err))
		d.notify.Error(fmt.Sprintf("%s failed: %v", cmd.name, err))
		return fmt.Errorf("%s: %w", cmd.name, err)
	}

	d.notify.Success(cmd.successMsg)
	return nil
}

// Delete removes a conversation and its messages. When the deleted
// conversation is the active one, the selection moves to the first remaining
// conversation under the current filters.
func (d *Dispatcher) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("delete: conversation id is required")
	}

	return d.run(ctx, command{
		name: "delete",
		applyLocal: func() func() {
			removed, idx := d.state.Remove(id)
			return func() { d.state.Restore(removed, idx) }
		},
		callRemote: func(ctx context.Context) error {
			if err := d.remote.DeleteConversation(ctx, id); err != nil {
				return err
			}
			d.bus.Emit(bus.KindConversationDeleted, id)
			return nil
		},
		successMsg: "Conversation deleted",
	})
}

// Archive marks a conversation archived.
func (d *Dispatcher) Archive(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("archive: conversation id is required")
	}

	var prev string
	return d.run(ctx, command{
		name: "archive",
		applyLocal: func() func() {
			d.state.Update(id, func(c *store.Conversation) {
				prev = c.Status
				c.Status = "archived"
			})
			return func() {
				d.state.Update(id, func(c *store.Conversation) { c.Status = prev })
			}
		},
		callRemote: func(ctx context.Context) error {
			if err := d.remote.ArchiveConversation(ctx, id); err != nil {
				return err
			}
			d.bus.Emit(bus.KindConversationUpdated, id)
			return nil
		},
		successMsg: "Conversation archived",
	})
}

// AddTag appends a tag to a conversation. Adding a tag that is already
// present is a no-op: no remote call is made and an informational
// notification is surfaced instead of a success one.
func (d *Dispatcher) AddTag(ctx context.Context, id, tag string) error {
	if id == "" {
		return fmt.Errorf("add tag: conversation id is required")
	}
	if tag == "" {
		return fmt.Errorf("add tag: tag is required")
	}

	var already bool
	var newTags []string
	inState := d.state.Update(id, func(c *store.Conversation) {
		if containsTag(c.Tags, tag) {
			already = true
			return
		}
		c.Tags = append(c.Tags, tag)
		newTags = append([]string(nil), c.Tags...)
	})
	if !inState {
		// Not hydrated yet; the duplicate check and the derived tag set must
		// come from the persisted row, never from an absent in-memory entry.
		conv, err := d.remote.GetConversation(ctx, id)
		if err != nil {
			return fmt.Errorf("add tag: %w", err)
		}
		if conv == nil {
			return fmt.Errorf("add tag: conversation %s not found", id)
		}
		if containsTag(conv.Tags, tag) {
			already = true
		} else {
			newTags = append(append([]string(nil), conv.Tags...), tag)
		}
	}
	if already {
		d.notify.Info(fmt.Sprintf("Tag %q already present", tag))
		return nil
	}

	return d.run(ctx, command{
		name: "add tag",
		applyLocal: func() func() {
			// Tag already applied above so newTags could capture the result.
			if !inState {
				return nil
			}
			return func() {
				d.state.Update(id, func(c *store.Conversation) {
					c.Tags = c.Tags[:len(c.Tags)-1]
				})
			}
		},
		callRemote: func(ctx context.Context) error {
			if err := d.remote.SetConversationTags(ctx, id, newTags); err != nil {
				return err
			}
			d.bus.Emit(bus.KindConversationUpdated, id)
			return nil
		},
		successMsg: "Tag added",
	})
}

// Assign sets the conversation owner.
func (d *Dispatcher) Assign(ctx context.Context, id, assignee string) error {
	if id == "" {
		return fmt.Errorf("assign: conversation id is required")
	}
	if assignee == "" {
		return fmt.Errorf("assign: assignee is required")
	}

	var prev string
	return d.run(ctx, command{
		name: "assign",
		applyLocal: func() func() {
			d.state.Update(id, func(c *store.Conversation) {
				prev = c.AssignedTo
				c.AssignedTo = assignee
			})
			return func() {
				d.state.Update(id, func(c *store.Conversation) { c.AssignedTo = prev })
			}
		},
		callRemote: func(ctx context.Context) error {
			if err := d.remote.AssignConversation(ctx, id, assignee); err != nil {
				return err
			}
			d.bus.Emit(bus.KindConversationUpdated, id)
			return nil
		},
		successMsg: "Conversation assigned",
	})
}
