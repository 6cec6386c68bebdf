package inventory

import (
	"errors"
	"testing"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line      string
		recipient string
		message   string
		wantErr   bool
	}{
		{"9876543210,Hello there", "9876543210", "Hello there", false},
		{" 9876543210 , Offer: 10% off, today only ", "9876543210", "Offer: 10% off, today only", false},
		{"9876543210", "", "", true},
		{"9876543210,", "", "", true},
		{",Hello", "", "", true},
		{" , ", "", "", true},
	}

	for _, tt := range tests {
		entry, err := ParseLine(tt.line)
		if tt.wantErr {
			if !errors.Is(err, ErrMalformedLine) {
				t.Errorf("ParseLine(%q): expected ErrMalformedLine, got %v", tt.line, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLine(%q) failed: %v", tt.line, err)
			continue
		}
		if entry.Recipient != tt.recipient || entry.Message != tt.message {
			t.Errorf("ParseLine(%q): expected (%q, %q), got (%q, %q)",
				tt.line, tt.recipient, tt.message, entry.Recipient, entry.Message)
		}
	}
}

func TestParseBulk(t *testing.T) {
	text := "9876543210,First\r\n\n   \nbadline\n9876543211,Second\n9876543212,\n"

	entries, skipped := ParseBulk(text)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if skipped != 2 {
		t.Errorf("Expected 2 skipped, got %d", skipped)
	}
	if entries[0].Message != "First" || entries[1].Recipient != "9876543211" {
		t.Errorf("Expected parsed per-line values, got %+v", entries)
	}
}
