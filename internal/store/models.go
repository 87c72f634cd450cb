package store

import "time"

// Item statuses. An item starts as "lost" or "found" and ends as
// "returned" once an approved claim hands it back to its owner.
const (
	ItemStatusLost     = "lost"
	ItemStatusFound    = "found"
	ItemStatusPending  = "pending_verification"
	ItemStatusReturned = "returned"
)

const (
	ClaimStatusPending  = "pending"
	ClaimStatusApproved = "approved"
	ClaimStatusRejected = "rejected"
)

const (
	ChatStatusPending = "pending"
	ChatStatusActive  = "active"
)

type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         string
	Verified     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Location struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

type Item struct {
	ID            string
	Type          string
	Title         string
	Description   string
	Category      string
	Location      Location
	Images        []string
	PostedByID    string
	PostedByName  string
	PostedByEmail string
	Status        string
	// ClaimStatus is "" while no claim has ever been resolved against the
	// item; under the single-claim policy it is set to "pending" as soon as
	// the first claim lands.
	ClaimStatus string
	ClaimID     string
	ClaimantID  string
	ReturnedTo  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Claim struct {
	ID              string
	ItemID          string
	ItemTitle       string
	ClaimantID      string
	ClaimantName    string
	ClaimantEmail   string
	FinderID        string
	FinderName      string
	Status          string
	Description     string
	ProofImages     []string
	ChatID          string
	RejectionReason string
	ProcessedBy     string
	ProcessedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Chat struct {
	ID                string
	ItemID            string
	ClaimID           string
	FinderID          string
	ClaimantID        string
	Status            string
	LastMessageText   string
	LastMessageSender string
	LastMessageAt     *time.Time
	UnreadCount       int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type ChatMessage struct {
	ID        string
	ChatID    string
	SenderID  string
	Body      string
	System    bool
	CreatedAt time.Time
}

type Notification struct {
	ID        string
	UserID    string
	Type      string
	ItemID    string
	ItemTitle string
	ClaimID   string
	ChatID    string
	// Approved rides along on claim_processed notifications only.
	Approved  *bool
	Read      bool
	CreatedAt time.Time
}

type AdminNotification struct {
	ID         string
	Type       string
	ItemID     string
	ClaimID    string
	Status     string
	ResolvedBy string
	ResolvedAt *time.Time
	CreatedAt  time.Time
}

// ItemFilter narrows ListItems. Zero values mean "no restriction". Status
// and Statuses are alternatives; Statuses wins when both are set.
type ItemFilter struct {
	Status   string
	Statuses []string
	Category string
	Since    time.Time
	Limit    int
}

// ItemUpdate carries the patchable item fields. Nil pointers are left
// untouched.
type ItemUpdate struct {
	Title       *string
	Description *string
	Category    *string
	Location    *Location
	Images      *[]string
}
