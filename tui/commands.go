package tui

import tea "github.com/charmbracelet/bubbletea"

// waitForURLCmd waits for the consent URL. A closed channel means the flow
// ended without prompting and yields no message.
func waitForURLCmd(urls <-chan string) tea.Cmd {
	return func() tea.Msg {
		authURL, ok := <-urls
		if !ok {
			return nil
		}
		return authURLMsg(authURL)
	}
}

// waitForConsentCmd waits for the loopback flow to finish.
func waitForConsentCmd(results <-chan consentDoneMsg) tea.Cmd {
	return func() tea.Msg {
		return <-results
	}
}
