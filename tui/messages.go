package tui

// authURLMsg carries the consent URL once the callback listener is up.
type authURLMsg string

// consentDoneMsg reports the end of the loopback flow.
type consentDoneMsg struct {
	code string
	err  error
}
