package control

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"
)

// CharacteristicUUID derives the UUID of ep from the service UUID by
// replacing octets 2-3 with the endpoint number plus two, the same scheme as
// the Nordic UART service.
func CharacteristicUUID(service uuid.UUID, ep Endpoint) uuid.UUID {
	u := service
	n := uint16(ep) + 2
	u[2] = byte(n >> 8)
	u[3] = byte(n)
	return u
}

// GATT exposes the endpoints as characteristics of one primary service on
// the local adapter and advertises it.
type GATT struct {
	adapterFn func() (*bluetooth.Adapter, error)
	service   uuid.UUID
	localName string
	log       *zap.Logger

	mu    sync.Mutex
	chars [4]bluetooth.Characteristic
	adv   *bluetooth.Advertisement
}

// NewGATT creates the transport. adapter returns the enabled adapter shared
// with BLE capture.
func NewGATT(adapter func() (*bluetooth.Adapter, error), serviceUUID, localName string, log *zap.Logger) (*GATT, error) {
	u, err := uuid.Parse(serviceUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid service uuid: %w", err)
	}
	return &GATT{
		adapterFn: adapter,
		service:   u,
		localName: localName,
		log:       log.With(zap.String("component", "gatt")),
	}, nil
}

// Name implements Transport.
func (g *GATT) Name() string { return "gatt" }

// Start implements Transport.
func (g *GATT) Start(_ context.Context, h Handler) error {
	adapter, err := g.adapterFn()
	if err != nil {
		return err
	}

	adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		g.log.Info("controller connection", zap.String("peer", device.Address.String()), zap.Bool("connected", connected))
		if !connected {
			h.HandleDisconnect()
		}
	})

	perms := map[Endpoint]bluetooth.CharacteristicPermissions{
		ListSize: bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicNotifyPermission,
		Bulk:     bluetooth.CharacteristicWritePermission | bluetooth.CharacteristicWriteWithoutResponsePermission | bluetooth.CharacteristicNotifyPermission,
		Settings: bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicWritePermission | bluetooth.CharacteristicNotifyPermission,
		Commands: bluetooth.CharacteristicWritePermission | bluetooth.CharacteristicNotifyPermission,
	}

	svc := bluetooth.Service{UUID: bluetooth.NewUUID(g.service)}
	for _, ep := range Endpoints {
		ep := ep
		cfg := bluetooth.CharacteristicConfig{
			Handle: &g.chars[ep],
			UUID:   bluetooth.NewUUID(CharacteristicUUID(g.service, ep)),
			Flags:  perms[ep],
		}
		if perms[ep]&bluetooth.CharacteristicWritePermission != 0 {
			cfg.WriteEvent = func(_ bluetooth.Connection, _ int, value []byte) {
				h.HandleWrite(ep, value)
			}
		}
		svc.Characteristics = append(svc.Characteristics, cfg)
	}
	if err := adapter.AddService(&svc); err != nil {
		return fmt.Errorf("failed to add GATT service: %w", err)
	}

	adv := adapter.DefaultAdvertisement()
	if err := adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    g.localName,
		ServiceUUIDs: []bluetooth.UUID{bluetooth.NewUUID(g.service)},
	}); err != nil {
		return fmt.Errorf("failed to configure advertisement: %w", err)
	}
	if err := adv.Start(); err != nil {
		return fmt.Errorf("failed to start advertising: %w", err)
	}
	g.mu.Lock()
	g.adv = adv
	g.mu.Unlock()
	return nil
}

// Notify implements Transport. Writing the characteristic value notifies
// subscribed centrals.
func (g *GATT) Notify(ep Endpoint, payload []byte) error {
	if int(ep) >= len(g.chars) {
		return fmt.Errorf("gatt: no characteristic for %s", ep)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := g.chars[ep].Write(payload); err != nil {
		return fmt.Errorf("gatt notify %s: %w", ep, err)
	}
	return nil
}

// SetValue implements Transport.
func (g *GATT) SetValue(ep Endpoint, payload []byte) error {
	return g.Notify(ep, payload)
}

// Close stops advertising.
func (g *GATT) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.adv == nil {
		return nil
	}
	err := g.adv.Stop()
	g.adv = nil
	return err
}
