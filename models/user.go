package models

import (
	"time"
)

// DefaultRating is assigned to users without a stored rating.
const DefaultRating = 1000

// User defines a user entity
type User struct {
	ID        string    `bson:"_id" json:"id"`
	Username  string    `bson:"username" json:"username"`
	Rating    int       `bson:"rating" json:"rating"`
	Wins      int       `bson:"wins" json:"wins"`
	Losses    int       `bson:"losses" json:"losses"`
	Draws     int       `bson:"draws" json:"draws"`
	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
}
