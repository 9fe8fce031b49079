package core

// CriticalErrorEvent reports a failure a handler could not recover from on
// its own. It is sent to the top of the pipeline and logged by the runner.
type CriticalErrorEvent struct {
	Error string
}

func (e *CriticalErrorEvent) GetId() string {
	return "shared.critical_error"
}
