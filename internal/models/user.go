package models

import "github.com/google/uuid"

// User statuses. Sign-up creates a pending row; the first successful
// sign-in activates it.
const (
	StatusPending = "pending"
	StatusActive  = "active"
)

// User represents an account reachable by phone number.
type User struct {
	BaseModel
	Phone        string     `gorm:"uniqueIndex" json:"phone"`
	Username     string     `json:"username"`
	FullName     string     `json:"full_name"`
	Status       string     `gorm:"default:pending" json:"status"`
	Bio          string     `json:"bio"`
	Budget       float64    `json:"budget"`
	ArtistRating float64    `json:"artist_rating"`
	HostRating   float64    `json:"host_rating"`
	Instagram    string     `json:"instagram"`
	Twitter      string     `json:"twitter"`
	// DeviceToken must survive the cache snapshot round trip; it is kept
	// out of client responses by the API views, not by the encoder.
	DeviceToken  string     `json:"device_token,omitempty"`
	IsArtist     bool       `json:"is_artist"`
	LocationID   *uuid.UUID `json:"location_id,omitempty"`

	Location      *Location     `gorm:"foreignKey:LocationID" json:"location,omitempty"`
	Categories    []Category    `gorm:"many2many:user_categories" json:"categories,omitempty"`
	Subcategories []Subcategory `gorm:"many2many:user_subcategories" json:"subcategories,omitempty"`
}

// Location is an optional 1:1 attachment to a user.
type Location struct {
	BaseModel
	Address   string  `json:"address"`
	City      string  `json:"city"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Category is a taxonomy tag attached to users via a join table.
type Category struct {
	BaseModel
	Name string `gorm:"uniqueIndex" json:"name"`
}

// Subcategory refines a category; attached to users via a join table.
type Subcategory struct {
	BaseModel
	Name string `gorm:"uniqueIndex" json:"name"`
}
