// Package export generates the PDF return receipt handed out when an
// approved claim is completed.
package export

import (
	"errors"
	"time"
)

// Receipt holds everything printed on a return receipt.
type Receipt struct {
	ClaimID      string
	ItemID       string
	ItemTitle    string
	Category     string
	LocationName string
	FinderName   string
	ClaimantName string
	ApprovedBy   string
	ReturnedAt   time.Time
}

// Result contains the generated file.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates the headless Chrome runtime is not
// installed on this host.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
