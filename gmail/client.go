package gmail

import (
	"context"

	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	user = "me"

	// UnrepliedQuery selects unread inbox mail that is not chat, not sent by the
	// account owner, carries no user label and is older than a day.
	UnrepliedQuery = "in:inbox -in:chats -from:me -has:userlabels older_than:1d is:unread"

	defaultConcurrency = 10
)

// Client wraps the Gmail API calls the service needs.
type Client struct {
	srv         *gmail.Service
	concurrency int
}

// NewClient creates a Gmail client. Production callers pass option.WithTokenSource;
// tests point it at a fake server with option.WithEndpoint and option.WithHTTPClient.
func NewClient(ctx context.Context, concurrency int, opts ...option.ClientOption) (*Client, error) {
	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, trace.Wrap(err, "unable to create Gmail service")
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Client{srv: srv, concurrency: concurrency}, nil
}

// ListUnrepliedMessageIDs returns the ids of all messages matching UnrepliedQuery
// in the order Gmail lists them.
func (c *Client) ListUnrepliedMessageIDs(ctx context.Context) ([]string, error) {
	ids := []string{}
	err := c.srv.Users.Messages.List(user).
		Q(UnrepliedQuery).
		Pages(ctx, func(resp *gmail.ListMessagesResponse) error {
			for _, m := range resp.Messages {
				ids = append(ids, m.Id)
			}
			return nil
		})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return ids, nil
}

// GetSubject returns the Subject header of a message, or NoSubject if it has none.
func (c *Client) GetSubject(ctx context.Context, messageID string) (string, error) {
	email, err := c.Summarize(ctx, messageID)
	if err != nil {
		return "", trace.Wrap(err)
	}
	return email.Subject, nil
}

// Summarize fetches the headers of one message.
func (c *Client) Summarize(ctx context.Context, messageID string) (UnrepliedEmail, error) {
	msg, err := c.srv.Users.Messages.Get(user, messageID).
		Format("metadata").
		MetadataHeaders("Subject", "From").
		Context(ctx).
		Do()
	if err != nil {
		return UnrepliedEmail{}, trace.Wrap(err)
	}
	return parseSummary(messageID, msg), nil
}

func parseSummary(messageID string, msg *gmail.Message) UnrepliedEmail {
	email := UnrepliedEmail{ID: messageID, Subject: NoSubject}
	if msg.Payload == nil {
		return email
	}
	subjectSeen := false
	for _, header := range msg.Payload.Headers {
		switch {
		case !subjectSeen && header.Name == "Subject":
			email.Subject = header.Value
			subjectSeen = true
		case email.From == "" && header.Name == "From":
			email.From = header.Value
		}
	}
	return email
}

// ListUnreplied lists the unreplied messages and resolves their headers concurrently.
// The result keeps the order of ListUnrepliedMessageIDs.
func (c *Client) ListUnreplied(ctx context.Context) ([]UnrepliedEmail, error) {
	ids, err := c.ListUnrepliedMessageIDs(ctx)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	log.WithField("count", len(ids)).Debug("Listed unreplied messages")

	emails := make([]UnrepliedEmail, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			email, err := c.Summarize(gctx, id)
			if err != nil {
				log.WithError(err).WithField("message_id", id).Debug("Unable to fetch message headers")
				return trace.Wrap(err)
			}
			emails[i] = email
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, trace.Wrap(err)
	}
	return emails, nil
}
