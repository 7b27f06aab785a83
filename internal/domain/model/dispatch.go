package model

import "strings"

// ValidationError reports a malformed notification payload. It is returned
// before any side effect: no audit log entry is created and nothing is
// published for a request that fails validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

// EmailPayload is the caller-supplied body of an email send request.
type EmailPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
}

// Validate checks the payload schema for the email channel.
func (p EmailPayload) Validate() error {
	if strings.TrimSpace(p.From) == "" {
		return &ValidationError{Field: "from", Reason: "cannot be empty"}
	}
	if len(p.To) == 0 {
		return &ValidationError{Field: "to", Reason: "at least one recipient is required"}
	}
	for _, to := range p.To {
		if strings.TrimSpace(to) == "" {
			return &ValidationError{Field: "to", Reason: "recipient cannot be empty"}
		}
	}
	if strings.TrimSpace(p.Subject) == "" {
		return &ValidationError{Field: "subject", Reason: "cannot be empty"}
	}
	return nil
}

// SMSPayload is the caller-supplied body of an SMS send request.
type SMSPayload struct {
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
}

// Validate checks the payload schema for the SMS channel.
func (p SMSPayload) Validate() error {
	if strings.TrimSpace(p.PhoneNumber) == "" {
		return &ValidationError{Field: "phone_number", Reason: "cannot be empty"}
	}
	if !strings.HasPrefix(p.PhoneNumber, "+") {
		return &ValidationError{Field: "phone_number", Reason: "must be in international format"}
	}
	if strings.TrimSpace(p.Message) == "" {
		return &ValidationError{Field: "message", Reason: "cannot be empty"}
	}
	return nil
}

// DispatchMessage is the ephemeral bus payload linking a queued notification
// to the audit log entry it must resolve. Exactly one of Email or SMS is set,
// matching Channel.
type DispatchMessage struct {
	Channel      Channel       `json:"channel"`
	AccountID    string        `json:"account_id"`
	CredentialID string        `json:"credential_id"`
	LogID        string        `json:"log_id"`
	Email        *EmailPayload `json:"email,omitempty"`
	SMS          *SMSPayload   `json:"sms,omitempty"`
}
