package models

import "time"

// SizeClass is a frame size. The ordered sequence below is the single
// source of truth for adjacency when probing substitute sizes.
type SizeClass string

const (
	SizeXS SizeClass = "XS"
	SizeS  SizeClass = "S"
	SizeM  SizeClass = "M"
	SizeL  SizeClass = "L"
	SizeXL SizeClass = "XL"
)

// SizeOrder lists every size class from smallest to largest.
var SizeOrder = []SizeClass{SizeXS, SizeS, SizeM, SizeL, SizeXL}

// SizeIndex returns the position of s in SizeOrder, or -1.
func SizeIndex(s SizeClass) int {
	for i, v := range SizeOrder {
		if v == s {
			return i
		}
	}
	return -1
}

type BikeStatus string

const (
	BikeAvailable   BikeStatus = "available"
	BikeRented      BikeStatus = "rented"
	BikeMaintenance BikeStatus = "maintenance"
	BikeUnavailable BikeStatus = "unavailable"
)

// Rentable reports whether the status alone permits offering the bike.
// rented does not exclude a bike from other slots; only the overlap
// rules do that.
func (s BikeStatus) Rentable() bool {
	return s == BikeAvailable || s == BikeRented
}

type Bike struct {
	ID     int        `json:"id"`
	Size   SizeClass  `json:"size"`
	Status BikeStatus `json:"status"`
}

// HeightRange is the active rider-height band for one size class, in cm.
type HeightRange struct {
	Size      SizeClass `json:"size"`
	MinHeight float64   `json:"min_height"`
	MaxHeight float64   `json:"max_height"`
}

// Midpoint is the center of the band, used for tolerance substitution.
func (h HeightRange) Midpoint() float64 { return (h.MinHeight + h.MaxHeight) / 2 }

// Session is a rental time window, not an auth session.
type Session string

const (
	SessionMorning Session = "morning"
	SessionDaily   Session = "daily"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCheckedIn BookingStatus = "checked-in"
	BookingActive    BookingStatus = "active"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

// Blocks reports whether a booking in this status still occupies bikes.
func (s BookingStatus) Blocks() bool {
	return s != BookingCancelled && s != BookingCompleted
}

type Rider struct {
	ID             string    `json:"id"`
	Height         float64   `json:"height"`
	AssignedBikeID int       `json:"assigned_bike_id,omitempty"`
	AssignedSize   SizeClass `json:"assigned_size,omitempty"`
}

type Booking struct {
	ID      string        `json:"id"`
	Date    time.Time     `json:"date"` // calendar day, midnight UTC
	Session Session       `json:"session"`
	Riders  []Rider       `json:"riders"`
	Status  BookingStatus `json:"status"`
}

// Assignment pairs one rider with the bike the planner proposed.
type Assignment struct {
	RiderID string    `json:"rider_id"`
	BikeID  int       `json:"bike_id"`
	Size    SizeClass `json:"size"`
}

// SizeAvailability is one row of the per-size availability breakdown.
type SizeAvailability struct {
	Size      SizeClass `json:"size"`
	Available int       `json:"available"`
	Total     int       `json:"total"`
	MinHeight float64   `json:"min_height"`
	MaxHeight float64   `json:"max_height"`
}

type AttemptCategory string

const (
	CategoryBooking AttemptCategory = "booking"
	CategoryCoupon  AttemptCategory = "coupon"
	CategoryLogin   AttemptCategory = "login"
)

type AttemptOutcome string

const (
	OutcomeSuccess AttemptOutcome = "success"
	OutcomeFailure AttemptOutcome = "failure"
)

// AttemptRecord is one throttled-operation attempt, published to the
// archive stream and pruned there by age.
type AttemptRecord struct {
	ClientID string          `json:"client_id"`
	Category AttemptCategory `json:"category"`
	Outcome  AttemptOutcome  `json:"outcome"`
	At       time.Time       `json:"at"`
}

// BookingCommit is the finalized payload handed to the external booking
// commit service once every bike in the plan is locked.
type BookingCommit struct {
	SessionToken string       `json:"session_token"`
	Date         time.Time    `json:"date"`
	Session      Session      `json:"session"`
	Riders       []Rider      `json:"riders"`
	Assignments  []Assignment `json:"assignments"`
}

// AvailabilityUpdate is pushed to websocket subscribers after a commit.
type AvailabilityUpdate struct {
	Date      string             `json:"date"`
	Session   Session            `json:"session"`
	Remaining int                `json:"remaining"`
	BySize    []SizeAvailability `json:"by_size"`
}
