// Package github implements the client side of the GitHub notifications API:
// conditional polling of the unread feed and resolution of subject URLs to
// browser-facing pages.
package github

import "time"

// Notification is one unread item from the notifications feed.
//
// https://docs.github.com/en/rest/activity/notifications
type Notification struct {
	ID         string     `json:"id"`
	Reason     string     `json:"reason"`
	Unread     bool       `json:"unread"`
	Repository Repository `json:"repository"`
	Subject    Subject    `json:"subject"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type Repository struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
}

type Subject struct {
	Title            string `json:"title"`
	URL              string `json:"url"`
	LatestCommentURL string `json:"latest_comment_url"`
	Type             string `json:"type"`
}

// TargetURL is the API URL the notification points at, preferring the latest
// comment so activation lands on the newest content. Empty for subjects the
// API gives no URL for (e.g. some check-run notifications).
func (n Notification) TargetURL() string {
	if n.Subject.LatestCommentURL != "" {
		return n.Subject.LatestCommentURL
	}
	return n.Subject.URL
}
