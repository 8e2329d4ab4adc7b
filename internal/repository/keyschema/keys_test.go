package keyschema

import "testing"

func TestChatKey(t *testing.T) {
	if got := ChatKey("c1"); got != "chat:c1" {
		t.Errorf("ChatKey() = %q, want %q", got, "chat:c1")
	}
}

func TestChatIdFromKey(t *testing.T) {
	tests := []struct {
		key    string
		wantId string
		wantOk bool
	}{
		{"chat:c1", "c1", true},
		{"chat:", "", true},
		{"chat:with:colons", "with:colons", true},
		{"user:v2:chat:u1", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			id, ok := ChatIdFromKey(tt.key)
			if id != tt.wantId || ok != tt.wantOk {
				t.Errorf("ChatIdFromKey(%q) = (%q, %v), want (%q, %v)", tt.key, id, ok, tt.wantId, tt.wantOk)
			}
		})
	}
}

func TestOwnerIndexKey(t *testing.T) {
	tests := []struct {
		version string
		ownerId string
		want    string
	}{
		{"v2", "u1", "user:v2:chat:u1"},
		{"v3", "u1", "user:v3:chat:u1"},
		{"", "u1", "user:v2:chat:u1"},
	}

	for _, tt := range tests {
		if got := OwnerIndexKey(tt.version, tt.ownerId); got != tt.want {
			t.Errorf("OwnerIndexKey(%q, %q) = %q, want %q", tt.version, tt.ownerId, got, tt.want)
		}
	}
}
