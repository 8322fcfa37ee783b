package whatsapp

import "fmt"

// DeliveryError is returned when an outbound send fails, either before a
// response arrived (StatusCode 0, Err set) or because the platform rejected it.
type DeliveryError struct {
	StatusCode int
	Code       int
	Subcode    int
	Type       string
	Message    string
	FBTraceID  string
	Err        error
}

func (e *DeliveryError) Error() string {
	msg := "whatsapp: send failed"
	switch {
	case e.StatusCode > 0 && e.Code > 0:
		msg += fmt.Sprintf(" (status %d, code %d)", e.StatusCode, e.Code)
	case e.StatusCode > 0:
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// ParseError is returned when a webhook body is not a valid event payload.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "whatsapp: invalid webhook payload: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
