package models

import "time"

type User struct {
	ID           int64
	Email        string
	Nickname     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}
