package searchsync

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/marche-app/marche/internal/catalog"
)

// Entity names the catalog collection an event refers to.
type Entity string

const (
	EntityProduct  Entity = "product"
	EntityCategory Entity = "category"
)

// Action names the catalog mutation.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

var (
	ErrUnknownAction = errors.New("searchsync: unknown action")
	ErrUnknownEntity = errors.New("searchsync: unknown entity")
	ErrMissingTarget = errors.New("searchsync: event has no target")
)

// Event describes one catalog change to mirror into the index. Create and
// update events carry the entity snapshot; delete events carry only EntityID.
type Event struct {
	ID         uuid.UUID         `json:"id"`
	Entity     Entity            `json:"entity"`
	Action     Action            `json:"action"`
	EntityID   string            `json:"entityId,omitempty"`
	Product    *catalog.Product  `json:"product,omitempty"`
	Category   *catalog.Category `json:"category,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// NewEvent stamps an event with a fresh id and timestamp.
func NewEvent(entity Entity, action Action) Event {
	return Event{ID: uuid.New(), Entity: entity, Action: action, OccurredAt: time.Now().UTC()}
}

// TargetID returns the identifier the event applies to.
func (e Event) TargetID() string {
	if e.EntityID != "" {
		return e.EntityID
	}
	switch e.Entity {
	case EntityProduct:
		if e.Product != nil {
			return e.Product.ID
		}
	case EntityCategory:
		if e.Category != nil {
			return e.Category.ID
		}
	}
	return ""
}

// Validate checks the event is well formed.
func (e Event) Validate() error {
	switch e.Action {
	case ActionCreate, ActionUpdate, ActionDelete:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, e.Action)
	}
	switch e.Entity {
	case EntityProduct:
		if e.Action != ActionDelete && e.Product == nil {
			return fmt.Errorf("%w: product payload required for %s", ErrMissingTarget, e.Action)
		}
	case EntityCategory:
		if e.Action != ActionDelete && e.Category == nil {
			return fmt.Errorf("%w: category payload required for %s", ErrMissingTarget, e.Action)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEntity, e.Entity)
	}
	if e.TargetID() == "" {
		return ErrMissingTarget
	}
	return nil
}

func (e Event) collection() string {
	if e.Entity == EntityCategory {
		return "categories"
	}
	return "products"
}
