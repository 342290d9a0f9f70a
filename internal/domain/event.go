package domain

// Attendee is one guest of an event.
type Attendee struct {
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status,omitempty"`
}

// GuestPermissions controls what attendees may do with an event.
type GuestPermissions struct {
	CanModify    bool `json:"canModify"`
	CanInvite    bool `json:"canInvite"`
	CanSeeGuests bool `json:"canSeeGuests"`
}

// AttendeesValue is the stored shape of an Attendees cell.
type AttendeesValue struct {
	Attendees   []Attendee       `json:"attendees"`
	Permissions GuestPermissions `json:"permissions"`
}

// DefaultGuestPermissions applies when an event has no stored permissions.
func DefaultGuestPermissions() GuestPermissions {
	return GuestPermissions{CanSeeGuests: true}
}

// Reminder is one entry of a Reminders cell, stored as a bare JSON array.
type Reminder struct {
	Method  string `json:"method"`
	Minutes int    `json:"minutes"`
}
