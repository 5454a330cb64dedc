package database

import "time"

type User struct {
	Id           string
	Username     string
	EmailAddress string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Channel struct {
	Id             string
	Name           string
	OrganizationId string
	IsPrivate      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Session struct {
	Id             string
	OrganizationId string
	CreatedAt      time.Time
}
