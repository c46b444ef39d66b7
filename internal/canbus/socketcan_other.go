//go:build !linux

package canbus

import "errors"

func openSocketCAN(channel string) (Bus, error) {
	return nil, errors.New("canbus: socketcan is only available on linux")
}
