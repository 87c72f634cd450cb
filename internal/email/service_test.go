package email

import (
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing port",
			config: Config{
				Host: "smtp.example.com",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "test@example.com",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestRenderClaimOutcomeTemplateApproved(t *testing.T) {
	data := ClaimOutcomeData{
		AppName:    "Findr",
		UserName:   "Test User",
		ItemTitle:  "Black Umbrella",
		Approved:   true,
		ProfileURL: "https://example.com/profile",
	}

	html, err := renderTemplate(claimOutcomeEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "Findr") {
		t.Error("template should contain app name")
	}
	if !strings.Contains(html, "Test User") {
		t.Error("template should contain user name")
	}
	if !strings.Contains(html, "Black Umbrella") {
		t.Error("template should contain item title")
	}
	if !strings.Contains(html, "approved") {
		t.Error("template should mention approval")
	}
	if strings.Contains(html, "not approved") {
		t.Error("approved template should not contain rejection text")
	}
}

func TestRenderClaimOutcomeTemplateRejected(t *testing.T) {
	data := ClaimOutcomeData{
		AppName:    "Findr",
		UserName:   "Test User",
		ItemTitle:  "Black Umbrella",
		Approved:   false,
		Reason:     "Another claim was accepted",
		ProfileURL: "https://example.com/profile",
	}

	html, err := renderTemplate(claimOutcomeEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "not approved") {
		t.Error("template should mention rejection")
	}
	if !strings.Contains(html, "Another claim was accepted") {
		t.Error("template should contain the rejection reason")
	}
}

func TestRenderPasswordResetTemplate(t *testing.T) {
	data := PasswordResetData{
		AppName:  "Findr",
		UserName: "Test User",
		ResetURL: "https://example.com/reset?token=xyz789",
	}

	html, err := renderTemplate(passwordResetEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "Findr") {
		t.Error("template should contain app name")
	}
	if !strings.Contains(html, "Test User") {
		t.Error("template should contain user name")
	}
	if !strings.Contains(html, "https://example.com/reset?token=xyz789") {
		t.Error("template should contain reset URL")
	}
	if !strings.Contains(html, "1 hour") {
		t.Error("template should mention expiration time")
	}
}
