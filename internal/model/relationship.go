package model

import "time"

// EdgeOrigin records who created a relatedness edge.
type EdgeOrigin string

const (
	OriginManual EdgeOrigin = "manual"
	OriginAuto   EdgeOrigin = "auto_discovered"
)

// RelatednessEdge asserts that two organization names refer to the same
// employer (alias, rebrand, parent or subsidiary).
type RelatednessEdge struct {
	Parent    string     `json:"parent"`
	Alias     string     `json:"alias"`
	Origin    EdgeOrigin `json:"origin"`
	CreatedAt time.Time  `json:"created_at"`
}
