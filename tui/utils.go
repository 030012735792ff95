package tui

import "fmt"

// truncate shortens a string to a max length, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 0 {
		return ""
	}
	if maxLen < 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// gmailURL links to a message in the Gmail web client.
func gmailURL(id string) string {
	return fmt.Sprintf("https://mail.google.com/mail/u/0/#inbox/%s", id)
}
