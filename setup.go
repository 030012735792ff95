package main

import (
	"context"
	"io"

	"github.com/bassamadnan/mailreminder/config"
	"github.com/bassamadnan/mailreminder/gmail"
	"github.com/bassamadnan/mailreminder/notify"
	"github.com/bassamadnan/mailreminder/store"
	"github.com/bassamadnan/mailreminder/tick"
	"github.com/bassamadnan/mailreminder/tui"
	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// environment holds the wired components shared by the commands.
type environment struct {
	conf   *config.Config
	store  store.Store
	creds  *gmail.CredentialStore
	ticks  *tick.Service
	logger io.Closer
}

// setup loads the configuration and wires the tick service. A nil consent
// falls back to the loopback flow with the consent URL written to the log.
func setup(g *Globals, consent gmail.Consenter) (*environment, error) {
	conf, err := config.Load(g.Config)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if g.Debug {
		conf.Log.Severity = "debug"
	}
	logger, err := config.SetupLogger(conf.Log)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	if consent == nil {
		consent = &gmail.LoopbackConsent{
			Prompt: func(authURL string) {
				log.WithField("url", authURL).Warn("Open this URL in a browser to authorize Gmail access.")
			},
			Timeout: conf.Gmail.ConsentTimeout,
		}
	} else if p, ok := consent.(*tui.ConsentPrompt); ok && p.Timeout == 0 {
		p.Timeout = conf.Gmail.ConsentTimeout
	}

	st := store.NewDiskStore(conf.Storage.Dir)
	creds, err := gmail.NewCredentialStore(gmail.CredentialStoreConfig{
		Store:           st,
		CredentialsFile: conf.Gmail.CredentialsFile,
		CredentialsJSON: conf.Gmail.CredentialsJSON,
		Consent:         consent,
	})
	if err != nil {
		logger.Close()
		return nil, trace.Wrap(err)
	}
	if len(conf.Gmail.TokenJSON) > 0 {
		seeded, err := creds.Seed(conf.Gmail.TokenJSON)
		if err != nil {
			logger.Close()
			return nil, trace.Wrap(err)
		}
		if seeded {
			log.Info("Saved token from GOOGLE_TOKEN.")
		}
	}

	notifier, err := newNotifier(conf.Webhook)
	if err != nil {
		logger.Close()
		return nil, trace.Wrap(err)
	}

	ticks, err := tick.NewService(tick.Config{
		Auth:     creds,
		Dial:     tick.GmailDialer(conf.Gmail.Concurrency),
		Store:    st,
		Notifier: notifier,
		Template: notify.Template{
			Username:  conf.Webhook.Username,
			EventName: conf.Webhook.EventName,
			Status:    conf.Webhook.Status,
		},
		Filters: conf.Filters,
	})
	if err != nil {
		logger.Close()
		return nil, trace.Wrap(err)
	}

	return &environment{
		conf:   conf,
		store:  st,
		creds:  creds,
		ticks:  ticks,
		logger: logger,
	}, nil
}

func newNotifier(conf config.WebhookConfig) (notify.Notifier, error) {
	if conf.URL == "" {
		log.Info("No webhook URL configured, notifications are disabled.")
		return notify.Discard{}, nil
	}
	webhook, err := notify.NewWebhook(notify.WebhookConfig{
		URL:         conf.URL,
		Timeout:     conf.Timeout,
		MaxAttempts: conf.MaxAttempts,
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return webhook, nil
}

func (e *environment) Close() {
	if err := e.logger.Close(); err != nil {
		log.WithError(err).Debug("Failed to close log output.")
	}
}

// noConsent refuses the interactive flow for commands that own the terminal.
type noConsent struct{}

func (noConsent) Consent(context.Context, *oauth2.Config) (string, error) {
	return "", trace.AccessDenied("Gmail access is not authorized, run \"mailreminder authorize\" first")
}
