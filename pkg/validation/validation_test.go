package validation

import (
	"strings"
	"testing"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{"valid email", "user@example.com", false},
		{"valid email with subdomain", "user@mail.example.com", false},
		{"empty email", "", true},
		{"invalid format", "invalid-email", true},
		{"missing @", "userexample.com", true},
		{"too long", strings.Repeat("a", 250) + "@example.com", true},
		{"valid with plus", "user+tag@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEmail() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateOptionalEmail(t *testing.T) {
	if err := ValidateOptionalEmail(""); err != nil {
		t.Errorf("empty email should be accepted, got %v", err)
	}
	if err := ValidateOptionalEmail("nope"); err == nil {
		t.Error("malformed email should be rejected")
	}
}

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"uuid", "3f1c9a7e-2b4d-4f8a-9c1e-7a6b5d4c3b2a", false},
		{"email-like", "alice@example.com", false},
		{"with colon", "auth0:12345", false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", MaxIdentifierLength+1), true},
		{"space", "alice smith", true},
		{"slash", "tenant/alice", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.id, "publisher_id")
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIdentifier() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRoomName(t *testing.T) {
	tests := []struct {
		name     string
		roomName string
		wantErr  bool
	}{
		{"generated", "alice-lq8x2k1f-9c1e7a6b", false},
		{"simple", "demo", false},
		{"empty", "", true},
		{"whitespace", "   ", true},
		{"slash", "tenant/room", true},
		{"too long", strings.Repeat("r", MaxRoomNameLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRoomName(tt.roomName)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRoomName() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateTitle(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		wantErr bool
	}{
		{"empty allowed", "", false},
		{"normal", "Finals - Game 3", false},
		{"unicode", "Турнир 🎮", false},
		{"control char", "bad\x07title", true},
		{"too long", strings.Repeat("t", MaxTitleLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTitle(tt.title)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTitle() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateText(t *testing.T) {
	if err := ValidateText("multi\nline description", "description"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateText(strings.Repeat("d", MaxTextLength+1), "description"); err == nil {
		t.Error("expected error for oversized text")
	}
	if err := ValidateText(string([]byte{0xff, 0xfe}), "description"); err == nil {
		t.Error("expected error for invalid utf-8")
	}
}

func TestValidateStringLength(t *testing.T) {
	if err := ValidateStringLength("ab", 3, 10, "name"); err == nil {
		t.Error("expected error for short string")
	}
	if err := ValidateStringLength("abc", 3, 10, "name"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
