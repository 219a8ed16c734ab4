package model

// Notifier delivers incident reports to operators.
type Notifier interface {
	Send(subject, body string) error
}
