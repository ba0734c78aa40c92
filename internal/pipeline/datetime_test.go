package pipeline

import (
	"testing"
	"time"
)

func TestCombineDateTime(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	tests := []struct {
		name string
		date *string
		time *string
		want string // "" means nil
	}{
		{
			name: "date and time",
			date: strPtr("2026-08-12"),
			time: strPtr("18:45:30"),
			want: "2026-08-12T18:45:30",
		},
		{
			name: "time without seconds",
			date: strPtr("2026-08-12"),
			time: strPtr("18:45"),
			want: "2026-08-12T18:45:00",
		},
		{
			name: "date only defaults to midnight",
			date: strPtr("2026-08-12"),
			want: "2026-08-12T00:00:00",
		},
		{
			name: "malformed time keeps date",
			date: strPtr("2026-08-12"),
			time: strPtr("quarter past six"),
			want: "2026-08-12T00:00:00",
		},
		{
			name: "malformed date yields nil",
			date: strPtr("12.08.2026"),
			time: strPtr("18:45"),
			want: "",
		},
		{
			name: "empty date yields nil",
			date: strPtr("  "),
			want: "",
		},
		{
			name: "nil date yields nil",
			time: strPtr("18:45"),
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CombineDateTime(tt.date, tt.time, berlin, nil)
			if tt.want == "" {
				if got != nil {
					t.Fatalf("got %v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("got nil, want %s", tt.want)
			}
			if s := got.Format("2006-01-02T15:04:05"); s != tt.want {
				t.Fatalf("got %s, want %s", s, tt.want)
			}
			if got.Location() != berlin {
				t.Fatalf("location = %v, want Europe/Berlin", got.Location())
			}
		})
	}
}
