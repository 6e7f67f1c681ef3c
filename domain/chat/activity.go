package chat

// Activity is one row of the admin board: a session and its unread badge,
// the number of customer messages no staff member has read yet.
type Activity struct {
	Session
	Unread int `json:"unread"`
}
