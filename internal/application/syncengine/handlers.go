package syncengine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/ports"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/action"
	domainErrors "github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/errors"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/inspection"
)

// Remote table names.
const (
	TableInspections   = "inspections"
	TablePPEItems      = "ppe_items"
	TableNotifications = "notifications"
)

// ReplayFunc performs the remote mutation described by a queued action.
type ReplayFunc func(ctx context.Context, remote ports.RemoteServicePort, a *action.QueuedAction) error

// Handlers maps action types to replay functions. Types without a registered
// handler fall back to a generic remote procedure call named after the type.
type Handlers struct {
	mu       sync.RWMutex
	byType   map[action.Type]ReplayFunc
	fallback ReplayFunc
}

// NewHandlers creates an empty handler table with the generic fallback.
func NewHandlers() *Handlers {
	return &Handlers{
		byType:   make(map[action.Type]ReplayFunc),
		fallback: replayGeneric,
	}
}

// DefaultHandlers returns a table with handlers for every known action type.
func DefaultHandlers() *Handlers {
	h := NewHandlers()
	h.Register(action.TypeCreateInspection, replayCreateInspection)
	h.Register(action.TypeUpdatePPE, replayUpdatePPE)
	h.Register(action.TypeAddNotification, replayAddNotification)
	h.Register(action.TypeUpdateNotification, replayUpdateNotification)
	h.Register(action.TypeMarkAllRead, replayMarkAllRead)
	h.Register(action.TypeDeleteNotification, replayDeleteNotification)
	h.Register(action.TypeDeleteAllNotifications, replayDeleteAllNotifications)
	return h
}

// Register sets the handler for t, replacing any existing one.
func (h *Handlers) Register(t action.Type, fn ReplayFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byType[t] = fn
}

// SetFallback replaces the handler used for unregistered types.
func (h *Handlers) SetFallback(fn ReplayFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fallback = fn
}

// Lookup returns the handler for t and whether it was registered explicitly.
func (h *Handlers) Lookup(t action.Type) (ReplayFunc, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if fn, ok := h.byType[t]; ok {
		return fn, true
	}
	return h.fallback, false
}

// Types returns the registered types in sorted order.
func (h *Handlers) Types() []action.Type {
	h.mu.RLock()
	defer h.mu.RUnlock()
	types := make([]action.Type, 0, len(h.byType))
	for t := range h.byType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func replayCreateInspection(ctx context.Context, remote ports.RemoteServicePort, a *action.QueuedAction) error {
	return remote.Insert(ctx, TableInspections, a.Data)
}

func replayUpdatePPE(ctx context.Context, remote ports.RemoteServicePort, a *action.QueuedAction) error {
	id, patch, err := splitID(a.Data)
	if err != nil {
		return err
	}
	return remote.Update(ctx, TablePPEItems, ports.Match{"id": id}, patch)
}

func replayAddNotification(ctx context.Context, remote ports.RemoteServicePort, a *action.QueuedAction) error {
	return remote.Insert(ctx, TableNotifications, a.Data)
}

func replayUpdateNotification(ctx context.Context, remote ports.RemoteServicePort, a *action.QueuedAction) error {
	id, patch, err := splitID(a.Data)
	if err != nil {
		return err
	}
	return remote.Update(ctx, TableNotifications, ports.Match{"id": id}, patch)
}

func replayMarkAllRead(ctx context.Context, remote ports.RemoteServicePort, a *action.QueuedAction) error {
	userID, err := decodeUserID(a)
	if err != nil {
		return err
	}
	return remote.Update(ctx, TableNotifications,
		ports.Match{"user_id": userID, "read": false},
		json.RawMessage(`{"read":true}`))
}

func replayDeleteNotification(ctx context.Context, remote ports.RemoteServicePort, a *action.QueuedAction) error {
	var ref inspection.NotificationRef
	if err := a.DecodeData(&ref); err != nil {
		return err
	}
	if strings.TrimSpace(ref.ID) == "" {
		return missingField("id")
	}
	return remote.Delete(ctx, TableNotifications, ports.Match{"id": ref.ID})
}

func replayDeleteAllNotifications(ctx context.Context, remote ports.RemoteServicePort, a *action.QueuedAction) error {
	userID, err := decodeUserID(a)
	if err != nil {
		return err
	}
	return remote.Delete(ctx, TableNotifications, ports.Match{"user_id": userID})
}

func replayGeneric(ctx context.Context, remote ports.RemoteServicePort, a *action.QueuedAction) error {
	return remote.Call(ctx, string(a.Type), a.Data)
}

func decodeUserID(a *action.QueuedAction) (string, error) {
	var ref inspection.UserRef
	if err := a.DecodeData(&ref); err != nil {
		return "", err
	}
	if strings.TrimSpace(ref.UserID) == "" {
		return "", missingField("user_id")
	}
	return ref.UserID, nil
}

// splitID separates the "id" field from the rest of an object payload.
func splitID(data json.RawMessage) (string, json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", nil, domainErrors.NewError(domainErrors.CodeValidation, "payload must be a JSON object", domainErrors.ErrInvalidPayload)
	}

	rawID, ok := fields["id"]
	if !ok {
		return "", nil, missingField("id")
	}
	var id string
	if err := json.Unmarshal(rawID, &id); err != nil || strings.TrimSpace(id) == "" {
		return "", nil, missingField("id")
	}
	delete(fields, "id")

	patch, err := json.Marshal(fields)
	if err != nil {
		return "", nil, err
	}
	return id, patch, nil
}

func missingField(name string) error {
	return domainErrors.NewError(domainErrors.CodeValidation,
		fmt.Sprintf("payload is missing %q", name), domainErrors.ErrInvalidPayload)
}
