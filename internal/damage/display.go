package damage

import (
	"fmt"
)

// Priority buckets, used purely for display styling.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Display is the presentation projection of a Record. Recomputed on every
// fetch, never cached independently of the record list.
type Display struct {
	ID          string
	Priority    string
	Coordinates string
	Date        string
	PhotoURL    string
}

// FormatCoordinates renders both axes with exactly six decimal places.
func FormatCoordinates(latitude, longitude float64) string {
	return fmt.Sprintf("%.6f° %.6f°", latitude, longitude)
}

// Present transforms records into display entries. Pure: no I/O, no state.
// A record without a priority lands in the lowest bucket.
func Present(records []Record) []Display {
	out := make([]Display, 0, len(records))
	for _, r := range records {
		priority := r.Priority
		if priority == "" {
			priority = PriorityLow
		}
		out = append(out, Display{
			ID:          r.ID,
			Priority:    priority,
			Coordinates: FormatCoordinates(r.Latitude, r.Longitude),
			Date:        r.CreatedAt.Format("02.01.06 15:04"),
			PhotoURL:    r.PhotoURL,
		})
	}
	return out
}
