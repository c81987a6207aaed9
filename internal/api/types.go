package api

import (
	"github.com/five82/leafrun/internal/route"
)

// RouteResponse is the route GET body. The server answers null when no route
// exists for the promoter and date.
type RouteResponse struct {
	ID              int64           `json:"id"`
	PromoterName    string          `json:"promoter_name,omitempty"`
	RouteDate       string          `json:"route_date,omitempty"`
	TotalPoints     int             `json:"total_points,omitempty"`
	CompletedPoints int             `json:"completed_points,omitempty"`
	TotalLeaflets   int             `json:"total_leaflets,omitempty"`
	Points          []PointResponse `json:"points"`
}

// PointResponse is one route point as the server reports it. Coordinates
// and counters may be null.
type PointResponse struct {
	ID        int64    `json:"id"`
	Address   string   `json:"address"`
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
	Completed bool     `json:"completed"`
	Leaflets  *int     `json:"leaflets_distributed"`
	PhotoURL  *string  `json:"photo_url"`
}

// Snapshot converts the response into the local route representation.
func (r RouteResponse) Snapshot() route.Snapshot {
	snap := route.Snapshot{ID: r.ID, Points: make([]route.Point, 0, len(r.Points))}
	for _, p := range r.Points {
		pt := route.Point{
			ID:        p.ID,
			Address:   p.Address,
			Completed: p.Completed,
		}
		if p.Lat != nil {
			pt.Lat = *p.Lat
		}
		if p.Lng != nil {
			pt.Lng = *p.Lng
		}
		if p.Leaflets != nil {
			pt.Leaflets = *p.Leaflets
		}
		if p.PhotoURL != nil {
			pt.Photo = *p.PhotoURL
		}
		snap.Points = append(snap.Points, pt)
	}
	return snap
}

type completePointRequest struct {
	Action   string  `json:"action"`
	PointID  int64   `json:"point_id"`
	Leaflets int     `json:"leaflets"`
	PhotoURL *string `json:"photo_url"`
}

type sendReportRequest struct {
	RouteID int64 `json:"route_id"`
}

type sendReportResponse struct {
	ReportID int64         `json:"report_id"`
	Status   string        `json:"status"`
	Summary  route.Summary `json:"summary"`
}

// errorBody is decoded from every JSON response; the server reports some
// failures with status 200 and an error field.
type errorBody struct {
	Error string `json:"error"`
}
