package service

// EventType defines the type of event
type EventType string

const (
	EventDeviceDown          EventType = "device_down"
	EventDeviceUp            EventType = "device_up"
	EventDeviceDiscovered    EventType = "device_discovered"
	EventRemediationStarted  EventType = "remediation_started"
	EventRemediationFinished EventType = "remediation_finished"
	EventIncidentRecorded    EventType = "incident_recorded"
	EventTicketOpened        EventType = "ticket_opened"
	EventTicketResolved      EventType = "ticket_resolved"
	EventTopologyRebuilt     EventType = "topology_rebuilt"
)

// Event represents an event that occurred in the system
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// EventBus allows publishing and subscribing to events
type EventBus struct {
	subscribers []chan<- Event
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make([]chan<- Event, 0),
	}
}

// Subscribe adds a subscriber to receive events
func (eb *EventBus) Subscribe(ch chan<- Event) {
	eb.subscribers = append(eb.subscribers, ch)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	for _, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}
