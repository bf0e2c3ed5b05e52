package sms

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

// Twilio error codes that mean the destination number can never be reached.
var twilioRecipientCodes = map[int]bool{
	21211: true, // invalid To number
	21408: true, // region not enabled
	21610: true, // recipient unsubscribed
	21614: true, // not a mobile number
}

// MessageCreator is the part of the Twilio REST API used to send an SMS.
type MessageCreator interface {
	CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error)
}

type TwilioProvider struct {
	messages   MessageCreator
	fromNumber string
}

func NewTwilioProvider(accountSID, authToken, fromNumber string) *TwilioProvider {
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return NewTwilioProviderFromClient(rest.Api, fromNumber)
}

func NewTwilioProviderFromClient(messages MessageCreator, fromNumber string) *TwilioProvider {
	return &TwilioProvider{messages: messages, fromNumber: fromNumber}
}

func (t *TwilioProvider) Name() string { return "twilio" }

// SendSMS sends through Twilio. A sender name in request.From is ignored
// unless it is a number; alphanumeric senders are not allowed on most routes.
func (t *TwilioProvider) SendSMS(ctx context.Context, request *SMSRequest) (*SMSResponse, error) {
	if err := request.validate(); err != nil {
		return failed(err), err
	}
	// The Twilio client takes no context; at least honour cancellation up front.
	if err := ctx.Err(); err != nil {
		return failed(err), err
	}

	from := t.fromNumber
	if len(request.From) > 0 && request.From[0] == '+' {
		from = request.From
	}

	params := &api.CreateMessageParams{}
	params.SetTo(request.To)
	params.SetFrom(from)
	params.SetBody(request.Message)

	msg, err := t.messages.CreateMessage(params)
	if err != nil {
		var restErr *client.TwilioRestError
		if errors.As(err, &restErr) && twilioRecipientCodes[restErr.Code] {
			err = fmt.Errorf("%w: twilio %d: %s", ErrRejectedRecipient, restErr.Code, restErr.Message)
		} else {
			err = fmt.Errorf("twilio send: %w", err)
		}
		return failed(err), err
	}

	out := &SMSResponse{Status: StatusSent}
	if msg.Sid != nil {
		out.MessageID = *msg.Sid
	}
	if msg.Status != nil {
		out.Status = string(*msg.Status)
	}
	return out, nil
}
