// Package tick runs one poll-and-notify pass over the mailbox.
package tick

import (
	"context"
	"encoding/json"

	"github.com/bassamadnan/mailreminder/config"
	"github.com/bassamadnan/mailreminder/gmail"
	"github.com/bassamadnan/mailreminder/notify"
	"github.com/bassamadnan/mailreminder/store"
	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// Authorizer yields a Gmail authorization.
type Authorizer interface {
	Authorize(ctx context.Context) (*gmail.Authorization, error)
}

// Mailbox lists unreplied emails with their subjects, in provider order.
type Mailbox interface {
	ListUnreplied(ctx context.Context) ([]gmail.UnrepliedEmail, error)
}

// DialFunc opens a mailbox with an authorization.
type DialFunc func(ctx context.Context, auth *gmail.Authorization) (Mailbox, error)

// GmailDialer opens the Gmail API with at most concurrency parallel message fetches.
func GmailDialer(concurrency int) DialFunc {
	return func(ctx context.Context, auth *gmail.Authorization) (Mailbox, error) {
		client, err := gmail.NewClient(ctx, concurrency, option.WithTokenSource(auth.TokenSource))
		if err != nil {
			return nil, trace.Wrap(err)
		}
		return client, nil
	}
}

// Config wires a Service.
type Config struct {
	Auth     Authorizer
	Dial     DialFunc
	Store    store.Store
	Notifier notify.Notifier
	Template notify.Template
	Filters  config.Filters
}

func (c *Config) CheckAndSetDefaults() error {
	if c.Auth == nil {
		return trace.BadParameter("missing authorizer")
	}
	if c.Dial == nil {
		return trace.BadParameter("missing mailbox dialer")
	}
	if c.Store == nil {
		return trace.BadParameter("missing store")
	}
	if c.Notifier == nil {
		c.Notifier = notify.Discard{}
	}
	return nil
}

// Options tune a single run.
type Options struct {
	// Notify posts the summary when the snapshot is not empty.
	Notify bool
}

// Result is the outcome of a run.
type Result struct {
	Emails []gmail.UnrepliedEmail `json:"emails"`
}

func (r Result) Count() int { return len(r.Emails) }

// Service executes ticks. Runs are independent; concurrent runs may interleave snapshot writes.
type Service struct {
	conf Config
}

func NewService(conf Config) (*Service, error) {
	if err := conf.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Service{conf: conf}, nil
}

// Run authorizes, lists unreplied mail, saves the snapshot and optionally notifies.
// Any failure aborts the run.
func (s *Service) Run(ctx context.Context, opts Options) (Result, error) {
	auth, err := s.conf.Auth.Authorize(ctx)
	if err != nil {
		return Result{}, trace.Wrap(err)
	}
	mailbox, err := s.conf.Dial(ctx, auth)
	if err != nil {
		return Result{}, trace.Wrap(err)
	}
	emails, err := mailbox.ListUnreplied(ctx)
	if err != nil {
		return Result{}, trace.Wrap(err)
	}
	emails = s.filter(emails)

	if err := s.save(emails); err != nil {
		return Result{}, trace.Wrap(err)
	}
	log.WithField("count", len(emails)).Info("Saved unreplied snapshot")

	if opts.Notify && len(emails) > 0 {
		if err := s.conf.Notifier.Notify(ctx, s.conf.Template.Build(emails)); err != nil {
			return Result{}, trace.Wrap(err)
		}
	}
	return Result{Emails: emails}, nil
}

func (s *Service) filter(emails []gmail.UnrepliedEmail) []gmail.UnrepliedEmail {
	if s.conf.Filters.Empty() && emails != nil {
		return emails
	}
	kept := make([]gmail.UnrepliedEmail, 0, len(emails))
	for _, email := range emails {
		if ignored, rule := s.conf.Filters.Ignored(email.From, email.Subject); ignored {
			log.WithField("message_id", email.ID).WithField("rule", rule).Debug("Filtered unreplied email")
			continue
		}
		kept = append(kept, email)
	}
	return kept
}

func (s *Service) save(emails []gmail.UnrepliedEmail) error {
	b, err := json.MarshalIndent(emails, "", "  ")
	if err != nil {
		return trace.Wrap(err)
	}
	return trace.Wrap(s.conf.Store.Write(store.SnapshotKey, b))
}

// Snapshot returns the last saved snapshot, empty if no run has completed yet.
func (s *Service) Snapshot() ([]gmail.UnrepliedEmail, error) {
	b, err := s.conf.Store.Read(store.SnapshotKey)
	if trace.IsNotFound(err) {
		return []gmail.UnrepliedEmail{}, nil
	} else if err != nil {
		return nil, trace.Wrap(err)
	}
	emails := []gmail.UnrepliedEmail{}
	if err := json.Unmarshal(b, &emails); err != nil {
		return nil, trace.Wrap(err)
	}
	return emails, nil
}
