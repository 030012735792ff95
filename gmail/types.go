package gmail

// NoSubject stands in for a message without a Subject header.
const NoSubject = "(No Subject)"

// UnrepliedEmail is one entry of the unreplied snapshot.
type UnrepliedEmail struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	// From is only used for filtering and is not part of the snapshot.
	From string `json:"-"`
}
