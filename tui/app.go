package tui

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bassamadnan/mailreminder/gmail"
	"github.com/bassamadnan/mailreminder/tick"
	"github.com/gdamore/tcell/v2"
	"github.com/gravitational/trace"
	"github.com/rivo/tview"
	log "github.com/sirupsen/logrus"
)

// Ticker is the part of tick.Service the dashboard drives.
type Ticker interface {
	Run(ctx context.Context, opts tick.Options) (tick.Result, error)
	Snapshot() ([]gmail.UnrepliedEmail, error)
}

type App struct {
	*tview.Application
	emailListView *EmailListView
	previewPane   *PreviewPane
	statusBar     *tview.TextView

	ctx     context.Context
	ticker  Ticker
	notify  bool
	running atomic.Bool
}

// NewApp builds the snapshot dashboard. When notify is set, ticks started
// from the dashboard also post to the webhook.
func NewApp(ctx context.Context, ticker Ticker, notify bool) *App {
	a := &App{
		Application: tview.NewApplication(),
		ctx:         ctx,
		ticker:      ticker,
		notify:      notify,
	}

	a.previewPane = NewPreviewPane()
	a.emailListView = NewEmailListView(a)

	dashboard := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(a.emailListView.List, 0, 1, true).
		AddItem(a.previewPane, 0, 2, false)
	dashboard.SetBackgroundColor(tcell.ColorDefault)

	a.statusBar = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.statusBar.SetBackgroundColor(tcell.ColorDefault)

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(dashboard, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)
	layout.SetBackgroundColor(tcell.ColorDefault)

	a.Application.SetRoot(layout, true).EnableMouse(true)
	a.Application.SetInputCapture(a.handleKey)
	a.previewPane.SetWelcomeMessage()
	a.setStatus("[::d]Loading snapshot...")
	return a
}

func (a *App) Run() error {
	emails, err := a.ticker.Snapshot()
	if err != nil {
		a.setStatus(fmt.Sprintf("[red]Snapshot: %s", trace.UserMessage(err)))
	} else {
		a.showEmails(emails, "snapshot")
	}
	go func() {
		<-a.ctx.Done()
		a.Stop()
	}()
	a.Application.SetFocus(a.emailListView.List)
	return trace.Wrap(a.Application.Run())
}

func (a *App) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if event.Key() == tcell.KeyCtrlC {
		a.Stop()
		return nil
	}
	switch event.Rune() {
	case 'q', 'Q':
		a.Stop()
		return nil
	case 'r', 'R':
		a.refresh()
		return nil
	}
	return event
}

// refresh runs a tick in the background. Overlapping requests are dropped.
func (a *App) refresh() {
	if !a.running.CompareAndSwap(false, true) {
		return
	}
	a.setStatus("[yellow]Checking Gmail...")
	go func() {
		defer a.running.Store(false)
		res, err := a.ticker.Run(a.ctx, tick.Options{Notify: a.notify})
		a.QueueUpdateDraw(func() {
			if err != nil {
				log.WithError(err).Debug("Dashboard tick failed.")
				a.setStatus(fmt.Sprintf("[red]Check failed: %s", tview.Escape(trace.UserMessage(err))))
				return
			}
			a.showEmails(res.Emails, "checked")
		})
	}()
}

func (a *App) showEmails(emails []gmail.UnrepliedEmail, source string) {
	a.emailListView.SetEmails(emails)
	a.setStatus(fmt.Sprintf("[green]%d unreplied[-] | %s %s", len(emails), source, time.Now().Format("15:04:05")))
}

func (a *App) setStatus(text string) {
	a.statusBar.SetText(fmt.Sprintf(" %s | [::b]R[::-]:Check [::b]Q/Ctrl+C[::-]:Quit", text))
}
