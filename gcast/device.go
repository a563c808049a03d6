package gcast

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/grandcat/zeroconf"
)

// DeviceCapability represents one of the defined device capabilities.
type DeviceCapability uint

// String returns the string representation of the device capability.
func (c DeviceCapability) String() string {
	switch c {
	case None:
		return "none"
	case VideoOut:
		return "video_out"
	case VideoIn:
		return "video_in"
	case AudioOut:
		return "audio_out"
	case AudioIn:
		return "audio_in"
	case DevMode:
		return "dev_mode"
	case MultizoneGroup:
		return "multizone_group"
	default:
		return strconv.Itoa(int(c))
	}
}

// Defined Google Cast device capabilities.
//
// Source: https://github.com/chromium/chromium/blob/master/components/cast_channel/cast_socket.h#L46
const (
	None           DeviceCapability = 0
	VideoOut       DeviceCapability = 1 << 0
	VideoIn        DeviceCapability = 1 << 1
	AudioOut       DeviceCapability = 1 << 2
	AudioIn        DeviceCapability = 1 << 3
	DevMode        DeviceCapability = 1 << 4
	MultizoneGroup DeviceCapability = 1 << 5
)

// DeviceInfo describes a Cast device found on the network.
type DeviceInfo struct {
	UUID  uuid.UUID
	Name  string
	Model string

	IPv4 net.IP
	IPv6 net.IP
	Port int

	capabilities DeviceCapability
}

// TCPAddr returns IPv4 and Port as net.TCPAddr.
func (d *DeviceInfo) TCPAddr() *net.TCPAddr {
	return &net.TCPAddr{IP: d.IPv4, Port: d.Port}
}

// String returns the name and address of the device.
func (d *DeviceInfo) String() string {
	return d.Name + " (" + d.Model + ") at " + d.TCPAddr().String()
}

// Capabilities returns a list of device capabilities.
func (d *DeviceInfo) Capabilities() []DeviceCapability {
	result := make([]DeviceCapability, 0)

	if d.capabilities&VideoOut != 0 {
		result = append(result, VideoOut)
	}

	if d.capabilities&VideoIn != 0 {
		result = append(result, VideoIn)
	}

	if d.capabilities&AudioOut != 0 {
		result = append(result, AudioOut)
	}

	if d.capabilities&AudioIn != 0 {
		result = append(result, AudioIn)
	}

	if d.capabilities&DevMode != 0 {
		result = append(result, DevMode)
	}

	if d.capabilities&MultizoneGroup != 0 {
		result = append(result, MultizoneGroup)
	}

	return result
}

// CapableOf returns true if the device has all given capabilities.
func (d *DeviceInfo) CapableOf(capabilities ...DeviceCapability) bool {
	var mask DeviceCapability
	for _, c := range capabilities {
		mask |= c
	}

	return d.capabilities&mask == mask
}

// ServiceType is the mDNS service type announced by Cast devices.
const ServiceType = "_googlecast._tcp"

// parseEntry builds a DeviceInfo from an mDNS service entry.
func parseEntry(entry *zeroconf.ServiceEntry) *DeviceInfo {
	dev := new(DeviceInfo)

	if len(entry.AddrIPv4) > 0 {
		dev.IPv4 = entry.AddrIPv4[0]
	}
	if len(entry.AddrIPv6) > 0 {
		dev.IPv6 = entry.AddrIPv6[0]
	}

	dev.Port = entry.Port

	for _, value := range entry.Text {
		key, val, ok := strings.Cut(value, "=")
		if !ok {
			continue
		}

		switch key {
		case "id":
			dev.UUID, _ = uuid.Parse(val)
		case "fn":
			dev.Name = val
		case "md":
			dev.Model = val
		case "ca":
			ca, err := strconv.Atoi(val)
			if err != nil {
				ca = int(None)
			}

			dev.capabilities = DeviceCapability(ca)
		}
	}

	return dev
}

// Discover returns a channel with DeviceInfo found via mDNS. The channel
// is closed when ctx is done.
func Discover(ctx context.Context) (<-chan *DeviceInfo, error) {
	resolv, err := zeroconf.NewResolver()
	if err != nil {
		return nil, err
	}

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolv.Browse(ctx, ServiceType, "local.", entries); err != nil {
		return nil, err
	}

	devCh := make(chan *DeviceInfo)
	go func() {
		defer close(devCh)

		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}
				if entry == nil {
					continue
				}

				select {
				case devCh <- parseEntry(entry):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return devCh, nil
}

// ErrDeviceNotFound is returned by Lookup when no matching device
// answered in time.
var ErrDeviceNotFound = errors.New("gcast: device not found")

// Lookup returns the first audio capable device named name, or any audio
// capable device if name is empty.
func Lookup(ctx context.Context, name string) (*DeviceInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	devices, err := Discover(ctx)
	if err != nil {
		return nil, err
	}

	for dev := range devices {
		if !dev.CapableOf(AudioOut) || dev.IPv4 == nil {
			continue
		}
		if name == "" || dev.Name == name {
			return dev, nil
		}
	}

	return nil, ErrDeviceNotFound
}
