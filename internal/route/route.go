package route

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownPoint is returned when a point id is not part of the route.
	ErrUnknownPoint = errors.New("point not in route")
	// ErrAlreadyCompleted is returned when a completed point is completed again.
	ErrAlreadyCompleted = errors.New("point already completed")
)

// Point is a single address on the day's route.
type Point struct {
	ID        int64   `json:"id"`
	Address   string  `json:"address"`
	Completed bool    `json:"completed"`
	Leaflets  int     `json:"leaflets"`
	Photo     string  `json:"photo,omitempty"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
}

// Snapshot is the locally cached route. ID is zero when no route is loaded.
type Snapshot struct {
	ID     int64   `json:"routeId,omitempty"`
	Points []Point `json:"points"`
}

// Loaded reports whether the snapshot carries a server route id.
func (s Snapshot) Loaded() bool {
	return s.ID > 0
}

// Clone returns a deep copy so callers can mutate freely.
func (s Snapshot) Clone() Snapshot {
	dup := Snapshot{ID: s.ID}
	if len(s.Points) > 0 {
		dup.Points = make([]Point, len(s.Points))
		copy(dup.Points, s.Points)
	}
	return dup
}

// Find returns the point with the given id.
func (s Snapshot) Find(id int64) (Point, bool) {
	for _, p := range s.Points {
		if p.ID == id {
			return p, true
		}
	}
	return Point{}, false
}

// Complete returns a copy of the snapshot with the point marked completed.
// Points never transition back to incomplete, so completing twice is an error.
func (s Snapshot) Complete(id int64, leaflets int, photo string) (Snapshot, error) {
	if leaflets < 0 {
		return s, fmt.Errorf("leaflets must be non-negative, got %d", leaflets)
	}
	next := s.Clone()
	for i := range next.Points {
		if next.Points[i].ID != id {
			continue
		}
		if next.Points[i].Completed {
			return s, fmt.Errorf("point %d: %w", id, ErrAlreadyCompleted)
		}
		next.Points[i].Completed = true
		next.Points[i].Leaflets = leaflets
		next.Points[i].Photo = photo
		return next, nil
	}
	return s, fmt.Errorf("point %d: %w", id, ErrUnknownPoint)
}

// Progress summarises how far along the route is.
type Progress struct {
	Completed int
	Total     int
	Leaflets  int
}

// Percent returns completion as 0..100.
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Completed) / float64(p.Total) * 100
}

// Progress computes completion counters for the snapshot.
func (s Snapshot) Progress() Progress {
	prog := Progress{Total: len(s.Points)}
	for _, p := range s.Points {
		if p.Completed {
			prog.Completed++
			prog.Leaflets += p.Leaflets
		}
	}
	return prog
}

// Summary is the server's view of a sent report.
type Summary struct {
	ReportID  int64  `json:"report_id,omitempty"`
	Promoter  string `json:"promoter,omitempty"`
	Date      string `json:"date,omitempty"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Leaflets  int    `json:"leaflets,omitempty"`
}
