package tui

import (
	"fmt"
	"strings"

	"github.com/bassamadnan/mailreminder/gmail"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

type EmailListView struct {
	*tview.List
	app    *App
	emails []gmail.UnrepliedEmail
}

func NewEmailListView(app *App) *EmailListView {
	list := tview.NewList().
		ShowSecondaryText(true).
		SetSecondaryTextColor(tcell.ColorDimGray)

	list.SetBackgroundColor(tcell.ColorDefault)
	list.SetSelectedStyle(tcell.StyleDefault.
		Foreground(tcell.ColorWhite).
		Background(tcell.ColorSteelBlue).
		Attributes(tcell.AttrBold))
	list.SetBorder(true).SetTitle("Unreplied")

	elv := &EmailListView{List: list, app: app}

	list.SetChangedFunc(func(index int, _ string, _ string, _ rune) {
		if elv.app == nil {
			return
		}
		if index >= 0 && index < len(elv.emails) {
			elv.app.previewPane.SetEmail(elv.emails[index])
		}
	})
	return elv
}

// SetEmails replaces the list contents. The highlighted email stays
// highlighted when it is still present.
func (elv *EmailListView) SetEmails(emails []gmail.UnrepliedEmail) {
	current := 0
	if prev, ok := elv.Selected(); ok {
		for i, email := range emails {
			if email.ID == prev.ID {
				current = i
				break
			}
		}
	}
	elv.emails = emails
	elv.List.Clear()
	for _, email := range emails {
		subject := email.Subject
		if subject == "" {
			subject = gmail.NoSubject
		}
		elv.List.AddItem(fmt.Sprintf("[white]%s", tview.Escape(truncate(subject, 40))), "[::d]"+email.ID, 0, nil)
	}
	elv.List.SetTitle(fmt.Sprintf("Unreplied (%d)", len(emails)))

	if len(emails) == 0 {
		if elv.app != nil {
			elv.app.previewPane.SetWelcomeMessage()
		}
		return
	}
	elv.List.SetCurrentItem(current)
	if elv.app != nil {
		elv.app.previewPane.SetEmail(emails[current])
	}
}

// Selected returns the highlighted email.
func (elv *EmailListView) Selected() (gmail.UnrepliedEmail, bool) {
	idx := elv.List.GetCurrentItem()
	if idx < 0 || idx >= len(elv.emails) {
		return gmail.UnrepliedEmail{}, false
	}
	return elv.emails[idx], true
}

type PreviewPane struct {
	*tview.TextView
	isWelcome bool
}

func NewPreviewPane() *PreviewPane {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(true)
	tv.SetBackgroundColor(tcell.ColorDefault)
	tv.SetBorder(true).SetTitle("Preview")
	return &PreviewPane{TextView: tv, isWelcome: true}
}

func (pp *PreviewPane) SetEmail(email gmail.UnrepliedEmail) {
	pp.isWelcome = false
	var b strings.Builder
	if email.From != "" {
		fmt.Fprintf(&b, "[::b]From:[::-] %s\n", tview.Escape(email.From))
	}
	fmt.Fprintf(&b, "[::b]Subject:[::-] %s\n", tview.Escape(email.Subject))
	fmt.Fprintf(&b, "[::b]ID:[::-] %s\n\n", email.ID)
	b.WriteString(strings.Repeat("─", 60) + "\n\n")
	fmt.Fprintf(&b, "[::d]%s[::-]\n", gmailURL(email.ID))
	pp.SetText(b.String()).ScrollToBeginning()
	pp.SetTitle(fmt.Sprintf("Preview: %s", tview.Escape(truncate(email.Subject, 40))))
}

func (pp *PreviewPane) SetWelcomeMessage() {
	pp.isWelcome = true
	pp.SetText("\n[lightblue::b]mailreminder[-::-]\n\nNo unreplied emails in the last snapshot.\n\n[::d]Press R to run a check.\nPress Q or Ctrl+C to quit.[::-]").
		ScrollToBeginning()
	pp.SetTitle("Home")
}
