// Package notify tells a user's trusted contacts that an SOS session started.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/pkg/browser"
	"golang.org/x/sync/errgroup"

	"rakshak/internal/models"
	"rakshak/internal/permissions"
	"rakshak/internal/utils"
	"rakshak/pkg/logger"
	"rakshak/pkg/sms"
)

var (
	ErrNoRecipients = errors.New("notify: no valid recipients")
	ErrAllFailed    = errors.New("notify: every delivery failed")
)

// Launcher opens a URL with the system handler.
type Launcher interface {
	Open(rawURL string) error
}

type BrowserLauncher struct{}

func (BrowserLauncher) Open(rawURL string) error {
	return browser.OpenURL(rawURL)
}

type Alert struct {
	Phones    []string
	SessionID string
	Location  models.Coordinates
	Message   string
}

type Result struct {
	Phone     string `json:"phone"`
	MessageID string `json:"message_id,omitempty"`
	Err       error  `json:"-"`
}

type Report struct {
	Results     []Result `json:"results"`
	Delivered   int      `json:"delivered"`
	Failed      int      `json:"failed"`
	Fallback    bool     `json:"fallback"`
	FallbackURL string   `json:"fallback_url,omitempty"`
}

type Options struct {
	LinkBase    string
	CountryCode string
	From        string
	Concurrency int
}

// Dispatcher sends the alert silently through an SMS gateway when one is
// configured and permitted, and otherwise hands a prefilled message for the
// first contact to the system messaging app.
type Dispatcher struct {
	provider sms.SMSProvider
	perms    permissions.Gateway
	launcher Launcher
	opts     Options
	logger   *logger.Logger
}

// NewDispatcher accepts a nil provider, in which case every alert uses the fallback.
func NewDispatcher(provider sms.SMSProvider, perms permissions.Gateway, launcher Launcher, opts Options, log *logger.Logger) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.CountryCode == "" {
		opts.CountryCode = utils.DefaultCountryCode
	}
	if launcher == nil {
		launcher = BrowserLauncher{}
	}
	return &Dispatcher{
		provider: provider,
		perms:    perms,
		launcher: launcher,
		opts:     opts,
		logger:   log.WithComponent("notify"),
	}
}

func (d *Dispatcher) Notify(ctx context.Context, alert Alert) (*Report, error) {
	log := d.logger.WithSessionID(alert.SessionID)

	phones := d.recipients(alert.Phones)
	if len(phones) == 0 {
		return nil, ErrNoRecipients
	}
	text := BuildAlertMessage(alert.Message, alert.Location, alert.SessionID, d.opts.LinkBase)

	if !d.silentAvailable(ctx) {
		return d.fallback(phones[0], text)
	}

	report := &Report{Results: make([]Result, len(phones))}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Concurrency)
	for i, phone := range phones {
		g.Go(func() error {
			res := Result{Phone: phone}
			resp, err := d.provider.SendSMS(gctx, &sms.SMSRequest{To: phone, From: d.opts.From, Message: text})
			if err != nil {
				res.Err = err
				entry := log.WithError(err).WithField("to", phone)
				if errors.Is(err, sms.ErrRejectedRecipient) {
					entry.Warn("Gateway rejected contact number")
				} else {
					entry.Warn("SOS SMS failed")
				}
			} else if resp != nil {
				res.MessageID = resp.MessageID
			}
			report.Results[i] = res
			// A failed recipient must not cancel the others.
			return nil
		})
	}
	g.Wait()

	for _, r := range report.Results {
		if r.Err != nil {
			report.Failed++
		} else {
			report.Delivered++
		}
	}
	log.WithFields(map[string]interface{}{
		"provider":  d.provider.Name(),
		"delivered": report.Delivered,
		"failed":    report.Failed,
	}).Info("SOS alert dispatched")

	if report.Delivered == 0 {
		return report, fmt.Errorf("%w (%d recipients)", ErrAllFailed, report.Failed)
	}
	return report, nil
}

func (d *Dispatcher) silentAvailable(ctx context.Context) bool {
	if d.provider == nil {
		return false
	}
	if d.perms == nil {
		return true
	}
	ok, err := d.perms.Request(ctx, permissions.SMS)
	if err != nil {
		d.logger.WithError(err).Warn("SMS permission request failed")
		return false
	}
	return ok
}

func (d *Dispatcher) fallback(phone, text string) (*Report, error) {
	link := SMSLink(phone, text)
	report := &Report{Fallback: true, FallbackURL: link, Results: []Result{{Phone: phone}}}

	if err := d.launcher.Open(link); err != nil {
		report.Results[0].Err = err
		report.Failed = 1
		return report, fmt.Errorf("notify: open messaging app: %w", err)
	}
	report.Delivered = 1
	d.logger.WithField("to", phone).Info("Opened messaging app with prefilled SOS alert")
	return report, nil
}

// SMSLink builds an sms: URI with a percent-encoded body.
func SMSLink(phone, text string) string {
	body := strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
	return "sms:" + phone + "?body=" + body
}

// recipients normalizes numbers, drops invalid ones and removes duplicates.
func (d *Dispatcher) recipients(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		n := utils.NormalizePhone(p, d.opts.CountryCode)
		if !utils.IsValidPhone(n) {
			if p != "" {
				d.logger.WithField("phone", p).Warn("Skipping invalid contact number")
			}
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
