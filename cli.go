package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/bassamadnan/mailreminder/descriptor"
	"github.com/bassamadnan/mailreminder/gmail"
	"github.com/bassamadnan/mailreminder/server"
	"github.com/bassamadnan/mailreminder/store"
	"github.com/bassamadnan/mailreminder/tick"
	"github.com/bassamadnan/mailreminder/tui"
	"github.com/gravitational/trace"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
)

// Globals are flags shared by every command.
type Globals struct {
	// Config is the path to the TOML configuration file
	Config string `help:"Path to TOML configuration file" default:"mailreminder.toml" env:"MAILREMINDER_CONFIG" short:"c"`

	// Debug is a debug logging mode flag
	Debug bool `help:"Debug logging" short:"d"`
}

// CLI represents command structure
type CLI struct {
	Globals

	Serve     ServeCmd     `cmd:"true" help:"Serve the integration endpoints (default)"`
	Authorize AuthorizeCmd `cmd:"true" help:"Authorize Gmail access and save the token"`
	Tick      TickCmd      `cmd:"true" help:"Run a single check and print the unreplied emails"`
	Watch     WatchCmd     `cmd:"true" help:"Browse the last snapshot in a terminal dashboard"`
}

// ServeCmd runs the HTTP service.
type ServeCmd struct{}

func (c *ServeCmd) Run(g *Globals) error {
	ctx, cancel := signalContext()
	defer cancel()

	env, err := setup(g, nil)
	if err != nil {
		return trace.Wrap(err)
	}
	defer env.Close()

	raw, err := descriptor.Marshal(env.conf.Descriptor)
	if err != nil {
		return trace.Wrap(err)
	}
	srv, err := server.New(server.Config{
		Listen:         env.conf.HTTP.Listen,
		Descriptor:     raw,
		RootDescriptor: env.conf.HTTP.RootDescriptor,
		Unreplied:      !env.conf.HTTP.DisableUnreplied,
		Ticker:         env.ticks,
	})
	if err != nil {
		return trace.Wrap(err)
	}

	log.WithFields(log.Fields{
		"listen":     env.conf.HTTP.Listen,
		"app_url":    env.conf.Descriptor.AppURL,
		"variant":    env.conf.Descriptor.Variant,
		"has_token":  env.creds.LoadSavedCredentials(ctx) != nil,
		"has_target": env.conf.Webhook.URL != "",
	}).Info("Starting server")
	return trace.Wrap(srv.Run(ctx))
}

// AuthorizeCmd runs the consent flow in the terminal.
type AuthorizeCmd struct {
	Force bool `help:"Discard the saved token and authorize again" short:"f"`
}

func (c *AuthorizeCmd) Run(g *Globals) error {
	ctx, cancel := signalContext()
	defer cancel()

	env, err := setup(g, &tui.ConsentPrompt{})
	if err != nil {
		return trace.Wrap(err)
	}
	defer env.Close()

	if c.Force {
		if err := env.store.Erase(store.TokenKey); err != nil && !trace.IsNotFound(err) {
			return trace.Wrap(err)
		}
	} else if env.creds.LoadSavedCredentials(ctx) != nil {
		fmt.Println("Gmail access is already authorized. Use --force to authorize again.")
		return nil
	}

	if _, err := env.creds.Authorize(ctx); err != nil {
		return trace.Wrap(err)
	}
	fmt.Printf("Token saved to %s.\n", store.TokenKey)
	return nil
}

// TickCmd runs one check from the command line.
type TickCmd struct {
	Notify bool `help:"Post the summary to the configured webhook"`
}

func (c *TickCmd) Run(g *Globals) error {
	ctx, cancel := signalContext()
	defer cancel()

	env, err := setup(g, &tui.ConsentPrompt{})
	if err != nil {
		return trace.Wrap(err)
	}
	defer env.Close()

	res, err := env.ticks.Run(ctx, tick.Options{Notify: c.Notify})
	if err != nil {
		return trace.Wrap(err)
	}
	printEmails(os.Stdout, res.Emails)
	return nil
}

// WatchCmd opens the snapshot dashboard.
type WatchCmd struct {
	Notify bool `help:"Post the summary to the configured webhook on every check"`
}

func (c *WatchCmd) Run(g *Globals) error {
	ctx, cancel := signalContext()
	defer cancel()

	env, err := setup(g, noConsent{})
	if err != nil {
		return trace.Wrap(err)
	}
	defer env.Close()

	// The dashboard owns the terminal.
	if env.conf.Log.Output == "stderr" || env.conf.Log.Output == "stdout" {
		log.SetOutput(io.Discard)
	}
	return trace.Wrap(tui.NewApp(ctx, env.ticks, c.Notify).Run())
}

func printEmails(w io.Writer, emails []gmail.UnrepliedEmail) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Subject"})
	table.SetAutoWrapText(false)
	for _, email := range emails {
		table.Append([]string{email.ID, email.Subject})
	}
	table.SetFooter([]string{"Total", fmt.Sprintf("%d", len(emails))})
	table.Render()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
