package models

import (
	"time"
)

// Location is a single coordinate fix. Only Lat and Lng travel to the backend.
type Location struct {
	Lat       float64   `json:"lat" bson:"lat"`
	Lng       float64   `json:"lng" bson:"lng"`
	Accuracy  float64   `json:"accuracy,omitempty" bson:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty" bson:"timestamp,omitempty"`
}

// Coordinates strips the fix down to the wire shape the backend stores.
func (l Location) Coordinates() Coordinates {
	return Coordinates{Lat: l.Lat, Lng: l.Lng}
}

func (l Location) IsZero() bool {
	return l.Lat == 0 && l.Lng == 0 && l.Timestamp.IsZero()
}

type Coordinates struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lng float64 `json:"lng" bson:"lng"`
}
