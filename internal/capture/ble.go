package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"

	"airwatch.klederson.com/internal/hwaddr"
)

// BLESource scans for advertisements on the default adapter.
type BLESource struct {
	adapter *bluetooth.Adapter
	log     *zap.Logger

	enableOnce sync.Once
	enableErr  error
}

// NewBLESource creates a source on bluetooth.DefaultAdapter.
func NewBLESource(log *zap.Logger) *BLESource {
	return &BLESource{
		adapter: bluetooth.DefaultAdapter,
		log:     log.With(zap.String("component", "ble")),
	}
}

// Adapter returns the shared adapter, enabled. The GATT control transport
// runs on the same radio.
func (s *BLESource) Adapter() (*bluetooth.Adapter, error) {
	s.enableOnce.Do(func() {
		if err := s.adapter.Enable(); err != nil {
			s.enableErr = fmt.Errorf("failed to enable BLE adapter: %w (try running with sudo or setcap cap_net_admin+ep)", err)
		}
	})
	return s.adapter, s.enableErr
}

// Scan implements AdvertSource.
func (s *BLESource) Scan(ctx context.Context, emit func(Advert)) error {
	adapter, err := s.Adapter()
	if err != nil {
		return err
	}

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
		case <-stopped:
			return
		}
		// The scan may not have started yet; retry until it has stopped.
		for adapter.StopScan() != nil {
			select {
			case <-stopped:
				return
			case <-time.After(50 * time.Millisecond):
			}
		}
	}()

	err = adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		if ctx.Err() != nil {
			return
		}
		addr, err := hwaddr.Parse(result.Address.String())
		if err != nil {
			return
		}
		emit(Advert{
			Addr:   addr,
			Name:   result.LocalName(),
			RSSI:   clampRSSI(int(result.RSSI)),
			Public: !result.Address.IsRandom(),
			At:     time.Now(),
		})
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("ble scan: %w", err)
	}
	return nil
}
