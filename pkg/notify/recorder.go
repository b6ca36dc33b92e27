package notify

import "sync"

// Notification is a notification received by a Recorder
type Notification struct {
	Message  string
	Severity Severity
}

// Recorder is a Sink that keeps the notifications for inspection in tests
type Recorder struct {
	mutex         sync.Mutex
	notifications []Notification
}

// NewRecorder returns an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Notify implements the Sink interface
func (r *Recorder) Notify(message string, severity Severity) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.notifications = append(r.notifications, Notification{Message: message, Severity: severity})
}

// Notifications returns a copy of the notifications received
func (r *Recorder) Notifications() []Notification {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	out := make([]Notification, len(r.notifications))
	copy(out, r.notifications)

	return out
}

// Count returns the number of notifications received with the given severity
func (r *Recorder) Count(severity Severity) int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	count := 0
	for _, n := range r.notifications {
		if n.Severity == severity {
			count++
		}
	}

	return count
}

// Last returns the last notification received, if any
func (r *Recorder) Last() (Notification, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if len(r.notifications) == 0 {
		return Notification{}, false
	}

	return r.notifications[len(r.notifications)-1], true
}

// Reset discards all the notifications received
func (r *Recorder) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.notifications = nil
}
