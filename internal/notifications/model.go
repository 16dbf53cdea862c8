package notifications

import "time"

// Notification is one row of the notifications table, always tied to a loan.
type Notification struct {
	ID        int64
	EmpruntID int64
	Message   string
	EstLu     bool
	CreatedAt time.Time
}

// hydrated joins the loan context shown in the notification list.
type hydrated struct {
	Notification
	DocumentTitre    string
	EmprunteurNom    string
	EmprunteurPrenom string
	DateRetourPrevue time.Time
	BatchCode        *string
}
