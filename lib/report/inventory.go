// Package report describes the installed bundles for diagnostics.
package report

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/snowmerak/bundle.go/lib/framework"
)

// Source is what an inventory is collected from. *framework.Framework satisfies it.
type Source interface {
	UUID() string
	Bundles() []*framework.Bundle
}

// BundleInfo is one installed bundle.
type BundleInfo struct {
	ID           int64  `json:"id"`
	SymbolicName string `json:"symbolic_name"`
	Version      string `json:"version"`
	Location     string `json:"location"`
	State        string `json:"state"`
}

// Inventory lists the bundles of one framework, ordered by id.
type Inventory struct {
	FrameworkUUID string       `json:"framework_uuid"`
	Bundles       []BundleInfo `json:"bundles"`
}

// Collect snapshots src.
func Collect(src Source) Inventory {
	bundles := src.Bundles()
	inv := Inventory{
		FrameworkUUID: src.UUID(),
		Bundles:       make([]BundleInfo, 0, len(bundles)),
	}
	for _, b := range bundles {
		inv.Bundles = append(inv.Bundles, BundleInfo{
			ID:           b.ID(),
			SymbolicName: b.SymbolicName(),
			Version:      b.Version(),
			Location:     b.Location(),
			State:        b.State().String(),
		})
	}
	return inv
}

// Struct converts the inventory to a protobuf Struct.
func (inv Inventory) Struct() (*structpb.Struct, error) {
	bundles := make([]any, 0, len(inv.Bundles))
	for _, b := range inv.Bundles {
		bundles = append(bundles, map[string]any{
			"id":            b.ID,
			"symbolic_name": b.SymbolicName,
			"version":       b.Version,
			"location":      b.Location,
			"state":         b.State,
		})
	}
	return structpb.NewStruct(map[string]any{
		"framework_uuid": inv.FrameworkUUID,
		"bundles":        bundles,
	})
}

func toMessage(inv Inventory) (proto.Message, error) {
	return inv.Struct()
}
