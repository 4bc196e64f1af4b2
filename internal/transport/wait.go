package transport

import (
	"context"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/rs/zerolog/log"
)

const waitDelay = 500 * time.Millisecond

// FindDevice returns the attached device with the given ID, or the first
// attached device when id is empty.
func FindDevice(ctx context.Context, enum Enumerator, id string) (Device, error) {
	devices, err := enum.Devices(ctx)
	if err != nil {
		return nil, err
	}

	if id == "" {
		if len(devices) == 0 {
			return nil, ErrNotFound
		}
		return devices[0], nil
	}

	for _, device := range devices {
		if device.ID() == id {
			return device, nil
		}
	}
	return nil, ErrNotFound
}

// WaitDevice polls the enumerator until the device shows up, rechecking
// every half second for at most attempts rounds. Devices drop off the bus
// around reboots, so discovery is the one place polling belongs; protocol
// operations are never retried.
func WaitDevice(ctx context.Context, enum Enumerator, id string, attempts uint) (Device, error) {
	var device Device

	err := retry.New(
		retry.Attempts(attempts),
		retry.Delay(waitDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	).Do(func() error {
		found, err := FindDevice(ctx, enum, id)
		if err != nil {
			log.Trace().Str("device", id).Err(err).Msg("Device not attached yet")
			return err
		}
		device = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Debug().Str("device", device.ID()).Msg("Device attached")
	return device, nil
}
