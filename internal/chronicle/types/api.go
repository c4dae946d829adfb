package types

// EventJSON is the read-side JSON shape of an Event.
type EventJSON struct {
	ID            uint64 `json:"id"`
	Type          string `json:"type"`
	Version       string `json:"version"`
	ValueType     string `json:"value_type"`
	Value         string `json:"value"`
	Originator    string `json:"originator"`
	CreatedAt     string `json:"created_at"`
	PropertyCount uint64 `json:"property_count"`
}

// PropertyJSON is the read-side JSON shape of a Property.
type PropertyJSON struct {
	EventIndex    uint64 `json:"event_index"`
	PropertyIndex uint64 `json:"property_index"`
	Name          string `json:"name"`
	ValueType     string `json:"value_type"`
	Value         string `json:"value"`
}

// StoresResponse lists store handles, optionally for one owner.
type StoresResponse struct {
	Owner  string   `json:"owner,omitempty"`
	Stores []string `json:"stores"`
}

// CountResponse reports the number of events in a store.
type CountResponse struct {
	Store string `json:"store"`
	Count uint64 `json:"count"`
}

// EventsResponse is one page of events from a store.
type EventsResponse struct {
	Store  string      `json:"store"`
	Events []EventJSON `json:"events"`
}

// PropertiesResponse holds the properties of one event.
type PropertiesResponse struct {
	Store      string         `json:"store"`
	EventID    uint64         `json:"event_id"`
	Properties []PropertyJSON `json:"properties"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries a stable machine-readable code and a message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MembersResponse lists the holders of one role in a store.
type MembersResponse struct {
	Store   string   `json:"store"`
	Role    string   `json:"role"`
	Members []string `json:"members"`
}
