// Package sms delivers text messages through a hosted SMS gateway.
package sms

import (
	"context"
	"errors"
)

// ErrRejectedRecipient is returned when the gateway refuses the destination
// number itself. Retrying the same number will not help.
var ErrRejectedRecipient = errors.New("sms: recipient rejected by gateway")

type SMSProvider interface {
	SendSMS(ctx context.Context, request *SMSRequest) (*SMSResponse, error)
	Name() string
}

type SMSRequest struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Message string `json:"message"`
}

func (r *SMSRequest) validate() error {
	if r.To == "" {
		return errors.New("sms: empty recipient")
	}
	if r.Message == "" {
		return errors.New("sms: empty message")
	}
	return nil
}

type SMSResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

func failed(err error) *SMSResponse {
	return &SMSResponse{Status: StatusFailed, Error: err.Error()}
}
