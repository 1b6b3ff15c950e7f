package validator

import (
	"strings"
	"testing"
)

type joinForm struct {
	Name string `json:"student_name" binding:"required,max=10,display_name"`
}

func TestStructDisplayName(t *testing.T) {
	cases := []struct {
		name  string
		value string
		ok    bool
	}{
		{"Plain", "Alice", true},
		{"Unicode", "Zoë Ng", true},
		{"Blank", "   ", false},
		{"Tab", "Al\tice", false},
		{"TooLong", "Bartholomew Q", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fields := Struct(&joinForm{Name: tc.value})
			if tc.ok && fields != nil {
				t.Fatalf("unexpected errors: %v", fields)
			}
			if !tc.ok && fields["student_name"] == "" {
				t.Fatalf("expected a student_name error, got %v", fields)
			}
		})
	}
}

func TestDisplayNameTranslation(t *testing.T) {
	fields := Struct(&joinForm{Name: " "})
	if msg := fields["student_name"]; !strings.Contains(msg, "visible characters") {
		t.Fatalf("message = %q", msg)
	}
}
