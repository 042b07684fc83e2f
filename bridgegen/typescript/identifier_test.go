package typescript

import "testing"

func TestEscapeReservedWord(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"interface", "interface_"},
		{"class", "class_"},
		{"delete", "delete_"},
		{"default", "default_"},
		{"Orders", "Orders"},
		{"userName", "userName"},
		{"_private", "_private"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := escapeReservedWord(tt.input); got != tt.want {
				t.Errorf("escapeReservedWord(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestPropertyKey(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"id", "id"},
		{"$ref", "$ref"},
		{"_x", "_x"},
		{"created-at", `"created-at"`},
		{"2fa", `"2fa"`},
		{"a b", `"a b"`},
		{"", `""`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := propertyKey(tt.input); got != tt.want {
				t.Errorf("propertyKey(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeIdentifier(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", "_"},
		{"id", "id"},
		{"user-id", "user_id"},
		{"9lives", "_9lives"},
		{"new", "new_"},
		{"ünïcode", "ünïcode"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := sanitizeIdentifier(tt.input); got != tt.want {
				t.Errorf("sanitizeIdentifier(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestEventIdentifier(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"user-created", "UserCreated"},
		{"heartbeat", "Heartbeat"},
		{"order.item_added", "OrderItemAdded"},
		{"v2-sync", "V2Sync"},
		{"--x--", "X"},
		{"AlreadyPascal", "AlreadyPascal"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := EventIdentifier(tt.input); got != tt.want {
				t.Errorf("EventIdentifier(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
