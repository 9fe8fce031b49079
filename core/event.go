package core

type IEvent interface {
	GetId() string // Returns the unique identifier of the event.
}

// IExternalOutputEvent is implemented by events that should leave the session
// pipeline and be delivered to the console client and the control plane.
type IExternalOutputEvent interface {
	IEvent
	IsExternalOutput()
}
