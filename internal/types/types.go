package types

import (
	"time"
)

type User struct {
	Id           string    `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Channel struct {
	Id             string    `json:"id"`
	Name           string    `json:"name"`
	OrganizationId string    `json:"organization_id"`
	IsPrivate      bool      `json:"is_private"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
}

// Session is a direct-message conversation between two or more users.
type Session struct {
	Id             string    `json:"id"`
	OrganizationId string    `json:"organization_id"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
}

type Message struct {
	Id        string    `json:"id"`
	ChannelId string    `json:"channel_id,omitempty"`
	SessionId string    `json:"session_id,omitempty"`
	UserId    string    `json:"user_id"`
	ThreadId  string    `json:"thread_id,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
