package models

import (
	"context"
	"testing"
)

func TestCreateRunRejectsOutOfBoundsSettings(t *testing.T) {
	// Validation fires before any storage access, so these run without a DB.
	cases := []struct {
		name  string
		input NewRun
	}{
		{"min score above 1", NewRun{MinScore: 1.5}},
		{"min score negative", NewRun{MinScore: -0.1}},
		{"auto accept above 1", NewRun{AutoAcceptScore: 2}},
		{"date window negative", NewRun{DateWindowDays: -1}},
		{"date window too large", NewRun{DateWindowDays: 400}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := CreateRun(context.Background(), &c.input); err == nil {
				t.Fatalf("expected a validation error for %+v", c.input)
			}
		})
	}
}
