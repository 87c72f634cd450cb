package export

import (
	"strings"
	"testing"
	"time"
)

func TestRenderReceiptHTML(t *testing.T) {
	r := Receipt{
		ClaimID:      "claim_abc123",
		ItemID:       "item_def456",
		ItemTitle:    "Black Umbrella",
		Category:     "accessories",
		LocationName: "Central Station",
		FinderName:   "Alice Finder",
		ClaimantName: "Bob Owner",
		ApprovedBy:   "Admin Carol",
		ReturnedAt:   time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC),
	}

	html, err := RenderReceiptHTML(r)
	if err != nil {
		t.Fatalf("RenderReceiptHTML failed: %v", err)
	}

	for _, want := range []string{
		"claim_abc123",
		"item_def456",
		"Black Umbrella",
		"Central Station",
		"Alice Finder",
		"Bob Owner",
		"Admin Carol",
		"March 15, 2026",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("receipt HTML missing %q", want)
		}
	}
}

func TestRenderReceiptHTMLEscapesInput(t *testing.T) {
	r := Receipt{
		ClaimID:   "claim_1",
		ItemTitle: "<script>alert('x')</script>",
	}

	html, err := RenderReceiptHTML(r)
	if err != nil {
		t.Fatalf("RenderReceiptHTML failed: %v", err)
	}

	if strings.Contains(html, "<script>") {
		t.Error("receipt HTML should escape user-provided markup")
	}
}

func TestEncodeDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello", "hello"},
		{"hello world", "hello%20world"},
		{"a-b_c.d~e", "a-b_c.d~e"},
		{"<html>", "%3Chtml%3E"},
		{"100%", "100%25"},
	}

	for _, tt := range tests {
		if got := encodeDataURL(tt.input); got != tt.expected {
			t.Errorf("encodeDataURL(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestSafeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"return-receipt-claim_1", "return-receipt-claim_1"},
		{"My Receipt", "My-Receipt"},
		{"!!!", "receipt"},
		{strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}

	for _, tt := range tests {
		if got := safeFilename(tt.input); got != tt.expected {
			t.Errorf("safeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
