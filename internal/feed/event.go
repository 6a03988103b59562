package feed

import (
	"encoding/json"

	"printshop/internal/models"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Event is one row-change notification for the orders table. The feed
// normally delivers full rows; Patch carries a partial payload instead when
// only some columns are known.
type Event struct {
	Type  EventType                  `json:"type"`
	ID    string                     `json:"id"`
	Row   *models.Order              `json:"row,omitempty"`
	Patch map[string]json.RawMessage `json:"patch,omitempty"`
}

func InsertEvent(o *models.Order) Event {
	return Event{Type: EventInsert, ID: o.ID, Row: o}
}

func UpdateEvent(o *models.Order) Event {
	return Event{Type: EventUpdate, ID: o.ID, Row: o}
}

func DeleteEvent(id string) Event {
	return Event{Type: EventDelete, ID: id}
}
