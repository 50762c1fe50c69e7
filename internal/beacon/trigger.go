// Package beacon signals an external SOS peripheral over BLE. Everything
// here is best-effort: failures are logged and swallowed, never surfaced to
// the turn pipeline.
package beacon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"
)

// Payload written to the beacon's trigger characteristic.
var Payload = []byte("SOS_TRIGGER")

// attemptBudget caps one full discover-connect-write cycle.
const attemptBudget = 10 * time.Second

// scanTimeout bounds the discovery phase within the overall budget.
const scanTimeout = 5 * time.Second

// Trigger locates the SOS peripheral by advertised name and writes the
// trigger payload to its characteristic.
type Trigger struct {
	adapter    *bluetooth.Adapter
	deviceName string
	charUUID   string
	log        *logrus.Logger

	// onOutcome, when set, observes each attempt's result.
	onOutcome func(ok bool)
}

// NewTrigger builds a Trigger using the platform default BLE adapter.
func NewTrigger(deviceName, charUUID string, log *logrus.Logger) *Trigger {
	return &Trigger{
		adapter:    bluetooth.DefaultAdapter,
		deviceName: deviceName,
		charUUID:   charUUID,
		log:        log,
	}
}

// OnOutcome registers an observer for attempt results.
func (t *Trigger) OnOutcome(fn func(ok bool)) { t.onOutcome = fn }

// AttemptAsync runs Attempt on a detached goroutine and logs the outcome.
// The caller never waits on it and must not depend on its result.
func (t *Trigger) AttemptAsync() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), attemptBudget)
		defer cancel()
		if t.Attempt(ctx) {
			t.log.Info("SOS beacon triggered")
		} else {
			t.log.Warn("SOS beacon attempt failed")
		}
	}()
}

// Attempt performs one discover-connect-write cycle. Any failure at any
// step yields false; nothing propagates.
func (t *Trigger) Attempt(ctx context.Context) (ok bool) {
	defer func() {
		if t.onOutcome != nil {
			t.onOutcome(ok)
		}
	}()

	if err := t.adapter.Enable(); err != nil {
		t.log.WithError(err).Warn("BLE adapter unavailable")
		return false
	}

	result, err := t.scan(ctx)
	if err != nil {
		t.log.WithError(err).Warn("BLE scan failed")
		return false
	}
	t.log.WithFields(logrus.Fields{
		"name":    result.LocalName(),
		"address": result.Address.String(),
	}).Info("found SOS device")

	device, err := t.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		t.log.WithError(err).Warn("BLE connect failed")
		return false
	}
	defer func() { _ = device.Disconnect() }()

	if err := t.write(device); err != nil {
		t.log.WithError(err).Warn("BLE write failed")
		return false
	}
	return true
}

// scan discovers the peripheral by advertised name within scanTimeout.
func (t *Trigger) scan(ctx context.Context) (bluetooth.ScanResult, error) {
	found := make(chan bluetooth.ScanResult, 1)
	scanErr := make(chan error, 1)

	go func() {
		err := t.adapter.Scan(func(adapter *bluetooth.Adapter, device bluetooth.ScanResult) {
			if MatchesName(device.LocalName(), t.deviceName) {
				select {
				case found <- device:
				default:
				}
				_ = adapter.StopScan()
			}
		})
		if err != nil {
			scanErr <- err
		}
	}()

	scanCtx, cancel := context.WithTimeout(ctx, scanTimeout)
	defer cancel()
	select {
	case device := <-found:
		return device, nil
	case err := <-scanErr:
		return bluetooth.ScanResult{}, err
	case <-scanCtx.Done():
		_ = t.adapter.StopScan()
		return bluetooth.ScanResult{}, fmt.Errorf("no device named %q found: %w", t.deviceName, scanCtx.Err())
	}
}

// write locates the trigger characteristic and writes the payload.
func (t *Trigger) write(device bluetooth.Device) error {
	services, err := device.DiscoverServices(nil)
	if err != nil {
		return fmt.Errorf("discover services: %w", err)
	}
	for _, svc := range services {
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			continue
		}
		for _, char := range chars {
			if !strings.EqualFold(char.UUID().String(), t.charUUID) {
				continue
			}
			if _, err := char.WriteWithoutResponse(Payload); err != nil {
				return fmt.Errorf("write characteristic: %w", err)
			}
			return nil
		}
	}
	return fmt.Errorf("characteristic %s not found", t.charUUID)
}

// MatchesName reports whether an advertised device name matches the
// configured beacon name. Peripherals commonly append suffixes to their
// base name, so a substring match is used.
func MatchesName(advertised, want string) bool {
	return advertised != "" && strings.Contains(advertised, want)
}
