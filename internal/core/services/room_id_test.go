package services

import (
	"strings"
	"testing"

	"screenshare/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func TestGenerateRoomID(t *testing.T) {
	cases := []struct {
		name       string
		publisher  domain.UserID
		wantPrefix string
	}{
		{"plain id", "alice", "alice-"},
		{"email", "alice@example.com", "alice-example-com-"},
		{"empty", "", "publisher-"},
		{"whitespace", "   ", "publisher-"},
		{"long", domain.UserID(strings.Repeat("x", 60)), strings.Repeat("x", 40) + "-"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id := GenerateRoomID(tc.publisher)
			assert.True(t, strings.HasPrefix(id, tc.wantPrefix), "got %q", id)
			assert.Regexp(t, `^[A-Za-z0-9_-]+$`, id)
		})
	}
}

func TestGenerateRoomID_Unique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := GenerateRoomID("alice")
		_, dup := seen[id]
		assert.False(t, dup, "duplicate room id %q", id)
		seen[id] = struct{}{}
	}
}
