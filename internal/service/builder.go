package service

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"topowatch/internal/adapter"
	"topowatch/internal/domain"
	"topowatch/internal/repository"
)

// Builder discovers devices and their physical link relationships from the
// device directory and upserts them into the topology store. Networks are
// independent, so building fans out one task per network over a bounded
// group; each task opens its own store connection, and serial-keyed upserts
// are commutative so no cross-task coordination is needed.
type Builder struct {
	directory Directory
	openStore func() (repository.Store, error)
	limit     int
	bus       *EventBus
}

// NewBuilder creates a builder. limit bounds the number of concurrent
// per-network build tasks.
func NewBuilder(directory Directory, openStore func() (repository.Store, error), limit int, bus *EventBus) *Builder {
	if limit <= 0 {
		limit = 1
	}
	return &Builder{directory: directory, openStore: openStore, limit: limit, bus: bus}
}

// lookups are the read-only tables shared by one organization's build tasks,
// fetched once before fan-out.
type lookups struct {
	macToSerial map[string]string
	bySerial    map[string]adapter.DeviceInfo
	status      map[string]domain.Status
}

// BuildAll rebuilds the topology for every organization and network visible
// to the directory. Per-network failures are logged and skipped; they never
// abort the other networks.
func (b *Builder) BuildAll(ctx context.Context) error {
	orgs, err := b.directory.Organizations(ctx)
	if err != nil {
		return fmt.Errorf("list organizations: %w", err)
	}

	for _, org := range orgs {
		lk, err := b.orgLookups(ctx, org.ID)
		if err != nil {
			log.Printf("builder: lookups for org %s: %v", org.ID, err)
			continue
		}
		networks, err := b.directory.Networks(ctx, org.ID)
		if err != nil {
			log.Printf("builder: networks for org %s: %v", org.ID, err)
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(b.limit)
		for _, network := range networks {
			network := network
			g.Go(func() error {
				if err := b.buildNetwork(gctx, org.ID, network, lk); err != nil {
					log.Printf("builder: network %s: %v", network.ID, err)
				}
				return nil
			})
		}
		g.Wait()
	}

	b.bus.Publish(Event{Type: EventTopologyRebuilt, Payload: map[string]string{"scope": "all"}})
	return nil
}

// BuildNetwork rebuilds a single network's topology, used when an alert
// surfaces a device the store does not know yet.
func (b *Builder) BuildNetwork(ctx context.Context, orgID, networkID, networkName string) error {
	lk, err := b.orgLookups(ctx, orgID)
	if err != nil {
		return fmt.Errorf("lookups for org %s: %w", orgID, err)
	}
	network := adapter.Network{ID: networkID, Name: networkName}
	if err := b.buildNetwork(ctx, orgID, network, lk); err != nil {
		return err
	}
	b.bus.Publish(Event{Type: EventTopologyRebuilt, Payload: map[string]string{"scope": networkID}})
	return nil
}

func (b *Builder) orgLookups(ctx context.Context, orgID string) (*lookups, error) {
	devices, err := b.directory.Devices(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}
	statuses, err := b.directory.DeviceStatuses(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("statuses: %w", err)
	}

	lk := &lookups{
		macToSerial: make(map[string]string, len(devices)),
		bySerial:    make(map[string]adapter.DeviceInfo, len(devices)),
		status:      make(map[string]domain.Status, len(statuses)),
	}
	for _, dev := range devices {
		lk.bySerial[dev.Serial] = dev
		if dev.MAC != "" {
			lk.macToSerial[dev.MAC] = dev.Serial
		}
	}
	for _, st := range statuses {
		lk.status[st.Serial] = domain.StatusFromLive(st.Status)
	}
	return lk, nil
}

// buildNetwork walks a network's link-layer topology, resolving each link
// end to a device. Links with fewer than two resolvable ends or whose role
// pair is not an adjacent tier are discarded without error.
func (b *Builder) buildNetwork(ctx context.Context, orgID string, network adapter.Network, lk *lookups) error {
	store, err := b.openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	topo, err := b.directory.LinkLayerTopology(ctx, network.ID)
	if err != nil {
		return fmt.Errorf("topology: %w", err)
	}

	nodeMAC := make(map[string]string, len(topo.Nodes))
	for _, node := range topo.Nodes {
		if node.MAC != "" {
			nodeMAC[node.DerivedID] = node.MAC
		}
	}

	for _, link := range topo.Links {
		var resolved []*domain.Device
		for _, end := range link.Ends {
			if dev := b.resolveEnd(ctx, orgID, network, end, nodeMAC, lk); dev != nil {
				resolved = append(resolved, dev)
			}
		}
		if len(resolved) < 2 {
			continue
		}

		upper, lower, ok := domain.OrderLink(resolved[0], resolved[1])
		if !ok {
			continue
		}
		lower.UpstreamSerial = upper.Serial

		// The upper device is upserted with an empty upstream pointer;
		// the store preserves any pointer set by the link one tier above.
		if err := store.UpsertDevice(ctx, upper); err != nil {
			return fmt.Errorf("upsert %s: %w", upper.Serial, err)
		}
		if err := store.UpsertDevice(ctx, lower); err != nil {
			return fmt.Errorf("upsert %s: %w", lower.Serial, err)
		}
	}
	return nil
}

// resolveEnd maps one link end to a device. Device ends resolve directly by
// serial; "discovered" ends (cross-scope links) resolve through the node
// table's derived ID to a MAC and from there to the inventory. Unresolvable
// ends return nil.
func (b *Builder) resolveEnd(ctx context.Context, orgID string, network adapter.Network, end adapter.LinkEnd, nodeMAC map[string]string, lk *lookups) *domain.Device {
	var serial string
	switch end.Node.Type {
	case "device":
		serial = end.Device.Serial
	case "discovered":
		mac := nodeMAC[end.Node.DerivedID]
		if mac == "" {
			return nil
		}
		serial = lk.macToSerial[mac]
		if serial == "" {
			info, err := b.directory.DeviceByMAC(ctx, orgID, mac)
			if err != nil || info == nil {
				return nil
			}
			serial = info.Serial
		}
	}
	if serial == "" {
		return nil
	}

	info, known := lk.bySerial[serial]
	if !known {
		fetched, err := b.directory.Device(ctx, serial)
		if err != nil {
			return nil
		}
		info = *fetched
	}

	status, tracked := lk.status[serial]
	if !tracked {
		status = domain.StatusDown
	}

	return &domain.Device{
		Serial:      serial,
		Name:        info.Name,
		Model:       info.Model,
		MAC:         info.MAC,
		Role:        domain.ClassifyModel(info.Model),
		Status:      status,
		NetworkID:   network.ID,
		NetworkName: network.Name,
	}
}

// Sweep deletes devices that no longer appear in the authoritative
// inventory. Any inventory fetch error short-circuits the sweep with no
// deletions, so a single failed fetch cannot wipe the topology.
func (b *Builder) Sweep(ctx context.Context) error {
	orgs, err := b.directory.Organizations(ctx)
	if err != nil {
		return fmt.Errorf("list organizations: %w", err)
	}

	inventory := make(map[string]struct{})
	for _, org := range orgs {
		devices, err := b.directory.Devices(ctx, org.ID)
		if err != nil {
			return fmt.Errorf("inventory for org %s: %w", org.ID, err)
		}
		for _, dev := range devices {
			inventory[dev.Serial] = struct{}{}
		}
	}

	store, err := b.openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	serials, err := store.ListSerials(ctx)
	if err != nil {
		return fmt.Errorf("list serials: %w", err)
	}
	for _, serial := range serials {
		if _, present := inventory[serial]; present {
			continue
		}
		log.Printf("builder: sweeping stale device %s", serial)
		if err := store.DeleteDevice(ctx, serial); err != nil {
			return fmt.Errorf("delete %s: %w", serial, err)
		}
	}
	return nil
}
