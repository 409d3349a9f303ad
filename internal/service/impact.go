package service

import (
	"context"
	"fmt"
	"log"

	"topowatch/internal/domain"
	"topowatch/internal/repository"
)

// Impact computes the transitive set of leaf cameras downstream of a failing
// router or switch. Traversal depth is fixed at two tiers, matching the
// forest shape: router → switches → cameras, or switch → cameras directly.
type Impact struct {
	directory Directory
}

// NewImpact creates an impact resolver.
func NewImpact(directory Directory) *Impact {
	return &Impact{directory: directory}
}

// Resolve returns the impacted cameras for a down device of the given role.
// Display names come from the device directory; when the lookup fails the
// stored name is used instead.
func (i *Impact) Resolve(ctx context.Context, store repository.Store, serial string, role domain.Role) ([]domain.ImpactedDevice, error) {
	var cameras []domain.Device

	switch role {
	case domain.RoleRouter:
		switches, err := store.Downstream(ctx, serial, domain.RoleSwitch)
		if err != nil {
			return nil, fmt.Errorf("downstream switches of %s: %w", serial, err)
		}
		for _, sw := range switches {
			downstream, err := store.Downstream(ctx, sw.Serial, domain.RoleCamera)
			if err != nil {
				return nil, fmt.Errorf("downstream cameras of %s: %w", sw.Serial, err)
			}
			cameras = append(cameras, downstream...)
		}
	case domain.RoleSwitch:
		downstream, err := store.Downstream(ctx, serial, domain.RoleCamera)
		if err != nil {
			return nil, fmt.Errorf("downstream cameras of %s: %w", serial, err)
		}
		cameras = downstream
	default:
		return nil, fmt.Errorf("impact resolution starts at a router or switch, not %s", role)
	}

	impacted := make([]domain.ImpactedDevice, 0, len(cameras))
	for _, camera := range cameras {
		impacted = append(impacted, domain.ImpactedDevice{
			Serial: camera.Serial,
			Name:   i.displayName(ctx, camera),
		})
	}
	return impacted, nil
}

func (i *Impact) displayName(ctx context.Context, camera domain.Device) string {
	info, err := i.directory.Device(ctx, camera.Serial)
	if err != nil || info.Name == "" {
		if err != nil {
			log.Printf("impact: name lookup for %s: %v", camera.Serial, err)
		}
		return camera.Name
	}
	return info.Name
}
