// Package quota bounds diagram size and per-owner diagram counts before a
// write reaches storage, and provides the cheaper per-batch cap the hub
// applies to incoming change messages.
package quota

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/evalgo-org/diagramhub/diagramspec"
)

// Exceeded carries enough detail for both logging and the API boundary's
// 400-with-headroom response.
type Exceeded struct {
	Resource string `json:"resource"`
	Limit    int64  `json:"limit"`
	Actual   int64  `json:"actual"`
	Code     string `json:"code"`
}

func (e *Exceeded) Error() string {
	return fmt.Sprintf("quota exceeded for %s: %d > %d (%s)", e.Resource, e.Actual, e.Limit, e.Code)
}

func exceeded(resource string, limit, actual int64) *Exceeded {
	return &Exceeded{Resource: resource, Limit: limit, Actual: actual, Code: "QUOTA_EXCEEDED"}
}

// Limits holds the configured caps. Zero-value Limits uses the defaults
// from spec §6.5.
type Limits struct {
	MaxSpecSizeBytes     int64
	MaxNodesPerDiagram   int
	MaxEdgesPerDiagram   int
	MaxGroupsPerDiagram  int
	MaxMessagesPerDiagram int
	MaxRelationshipsPerDiagram int
	MaxDiagramsPerUser   int
}

// DefaultLimits returns the caps named in spec §6.5.
func DefaultLimits() Limits {
	return Limits{
		MaxSpecSizeBytes:           1048576,
		MaxNodesPerDiagram:         500,
		MaxEdgesPerDiagram:         1000,
		MaxGroupsPerDiagram:        50,
		MaxMessagesPerDiagram:      200,
		MaxRelationshipsPerDiagram: 200,
		MaxDiagramsPerUser:         100,
	}
}

// Guard enforces Limits against serialized specs and owner diagram counts.
type Guard struct {
	limits Limits
}

// NewGuard constructs a Guard from the given limits.
func NewGuard(limits Limits) *Guard {
	if limits == (Limits{}) {
		limits = DefaultLimits()
	}
	return &Guard{limits: limits}
}

// CheckSpec validates a spec's serialized size and element counts against
// the configured caps. The spec is serialized once by the caller and the
// resulting bytes are passed in, so storage and quota never serialize the
// same spec twice.
func (g *Guard) CheckSpec(raw []byte, spec *diagramspec.Spec) error {
	if int64(len(raw)) > g.limits.MaxSpecSizeBytes {
		return exceeded("specSizeBytes", g.limits.MaxSpecSizeBytes, int64(len(raw)))
	}
	if n := int64(len(spec.Nodes)); n > int64(g.limits.MaxNodesPerDiagram) {
		return exceeded("nodes", int64(g.limits.MaxNodesPerDiagram), n)
	}
	if n := int64(len(spec.Edges)); n > int64(g.limits.MaxEdgesPerDiagram) {
		return exceeded("edges", int64(g.limits.MaxEdgesPerDiagram), n)
	}
	if n := int64(len(spec.Groups)); n > int64(g.limits.MaxGroupsPerDiagram) {
		return exceeded("groups", int64(g.limits.MaxGroupsPerDiagram), n)
	}
	if n := int64(len(spec.Messages)); n > int64(g.limits.MaxMessagesPerDiagram) {
		return exceeded("messages", int64(g.limits.MaxMessagesPerDiagram), n)
	}
	if n := int64(len(spec.Relationships)); n > int64(g.limits.MaxRelationshipsPerDiagram) {
		return exceeded("relationships", int64(g.limits.MaxRelationshipsPerDiagram), n)
	}
	return nil
}

// CheckOwnerCount enforces the per-owner diagram cap. Anonymous owners
// (ownerID == "") are unlimited, matching spec §4.2.
func (g *Guard) CheckOwnerCount(ownerID string, currentCount int64) error {
	if ownerID == "" {
		return nil
	}
	if g.limits.MaxDiagramsPerUser <= 0 {
		return nil
	}
	if currentCount >= int64(g.limits.MaxDiagramsPerUser) {
		return exceeded("diagramsPerUser", int64(g.limits.MaxDiagramsPerUser), currentCount)
	}
	return nil
}

// HeadroomMessage renders a human-friendly "N of LIMIT used" string. The
// API layer does not call it; its quota responses carry the Exceeded
// fields as details.
func HeadroomMessage(resource string, used, limit int64) string {
	return fmt.Sprintf("%s: %s of %s used", resource, humanize.Comma(used), humanize.Comma(limit))
}
