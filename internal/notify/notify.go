// Package notify delivers user-facing signals: queued/synced/failed events,
// connectivity changes and storage errors. The front-end subscribes over a
// websocket and turns these into transient notifications.
package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType classifies a notification event.
type EventType string

const (
	EventQueued       EventType = "queued"
	EventSynced       EventType = "synced"
	EventSyncFailed   EventType = "sync-failed"
	EventConnectivity EventType = "connectivity"
	EventStorageError EventType = "storage-error"
	EventCacheUpdated EventType = "cache-updated"
)

// Event is a single user-facing notification.
type Event struct {
	ID       string    `json:"id"`
	Type     EventType `json:"type"`
	Message  string    `json:"message"`
	Count    int       `json:"count,omitempty"`
	RecordID string    `json:"record_id,omitempty"`
	Online   bool      `json:"online,omitempty"`
	At       time.Time `json:"at"`
}

// Notifier publishes events to whoever is listening. Publish must never
// block the caller.
type Notifier interface {
	Publish(ev Event)
}

// NewEvent builds an event with a fresh ID and timestamp.
func NewEvent(t EventType, message string) Event {
	return Event{
		ID:      uuid.NewString(),
		Type:    t,
		Message: message,
		At:      time.Now().UTC(),
	}
}

// Queued builds the "saved offline, will send later" acknowledgment.
func Queued(recordID string) Event {
	ev := NewEvent(EventQueued, "Formulario guardado offline. Se enviará cuando recuperes la conexión.")
	ev.RecordID = recordID
	return ev
}

// Synced builds the post-pass notification with the synced count.
func Synced(count int) Event {
	ev := NewEvent(EventSynced, syncedMessage(count))
	ev.Count = count
	return ev
}

func syncedMessage(count int) string {
	if count == 1 {
		return "1 elemento sincronizado"
	}
	return fmt.Sprintf("%d elementos sincronizados", count)
}

// Connectivity builds the online/offline indicator event.
func Connectivity(online bool) Event {
	msg := "Sin conexión - Modo offline activado"
	if online {
		msg = "Conexión restaurada"
	}
	ev := NewEvent(EventConnectivity, msg)
	ev.Online = online
	return ev
}

// SyncFailed reports records left queued after a pass.
func SyncFailed(count int) Event {
	ev := NewEvent(EventSyncFailed, fmt.Sprintf("%d envíos pendientes no pudieron sincronizarse", count))
	ev.Count = count
	return ev
}

// CacheUpdated reports a cache generation activation.
func CacheUpdated(generation string) Event {
	return NewEvent(EventCacheUpdated, fmt.Sprintf("Contenido offline actualizado (%s)", generation))
}

// StorageError builds the hard "submission NOT saved" error event.
func StorageError(err error) Event {
	return NewEvent(EventStorageError, fmt.Sprintf("No se pudo guardar el envío: %v", err))
}
