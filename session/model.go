package session

import "time"

// Identity is what the Engine asserts about the user at login time.
type Identity struct {
	UserID int64
	Email  string
}

// Session is the server-side record behind one browser session id.
type Session struct {
	ID            string    `json:"-"`
	UserID        int64     `json:"user_id"`
	Email         string    `json:"email"`
	Authenticated bool      `json:"authenticated"`
	CSRFToken     string    `json:"csrf_token"`
	LoginAt       time.Time `json:"login_at"`
	LastActivity  time.Time `json:"last_activity"`
	CreatedAt     time.Time `json:"created_at"`
}
