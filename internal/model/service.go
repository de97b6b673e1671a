package model

import (
	"time"
)

// Category groups service listings for browsing and filtered search.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Service is a marketplace listing.
type Service struct {
	ID          int64     `json:"id,omitempty"`
	ProviderID  string    `json:"provider_id"`
	CategoryID  int64     `json:"category_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Price       float64   `json:"price,omitempty"`
	City        string    `json:"city,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// Review is a rating left on a service listing.
type Review struct {
	ID         int64     `json:"id,omitempty"`
	ServiceID  int64     `json:"service_id"`
	ReviewerID string    `json:"reviewer_id"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}

// ServiceFilter narrows a listing search. Zero values mean "no constraint".
type ServiceFilter struct {
	Query      string
	CategoryID int64
	City       string
	Offset     int
}

// ServicePage is one page of search results.
type ServicePage struct {
	Services []Service
	HasMore  bool
}
