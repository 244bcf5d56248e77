// Package devices defines the interface an accelerator device layer needs to implement to hold
// vector buffers and transfer-index sets used by device-resident scatters.
//
// Implementations register themselves with Register. The hostdev sub-package provides a portable
// host-memory implementation, and is the default.
package devices

import (
	"os"
	"strings"

	"github.com/gomlx/exceptions"
)

// Buffer represents vector data resident on a device.
//
// It is opaque to the rest of the library: only the Device that created it knows how to
// interpret it.
type Buffer any

// TransferHandle is an opaque device-side representation of a pair of transfer-index buffers
// (send side and receive side), usable for device-side gather/scatter.
type TransferHandle any

// Device is the API a device layer needs to implement.
type Device interface {
	// Name returns the short name of the device layer, e.g. "host".
	Name() string

	// Description is a longer description of the device that can be used to pretty-print.
	Description() string

	// BufferFromFlatData transfers flat to the device and returns the corresponding Buffer.
	BufferFromFlatData(flat []float64) (Buffer, error)

	// BufferToFlatData transfers the values of buffer back into flat.
	// flat must have exactly the number of elements of the buffer.
	BufferToFlatData(buffer Buffer, flat []float64) error

	// BufferFinalize releases the device resources of buffer immediately.
	// A finalized buffer must not be used again.
	BufferFinalize(buffer Buffer) error

	// TransferIndices uploads the send-side and receive-side index buffers and returns an opaque
	// handle to their device-resident copies.
	TransferIndices(sendIndices, recvIndices []int32) (TransferHandle, error)

	// TransferFinalize releases the device resources held by a TransferHandle.
	TransferFinalize(handle TransferHandle) error
}

// Constructor takes a config string (optionally empty) and returns a Device.
type Constructor func(config string) Device

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register a device layer with the given name and its constructor.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// DefaultConfig is the device configuration to use if specified.
//
// See NewWithConfig for the format of the configuration string.
var DefaultConfig string

// PARVEC_DEVICE is the environment variable with the default device configuration.
//
// The format of config is "<device_name>:<device_configuration>", the latter part optional
// and device specific.
const PARVEC_DEVICE = "PARVEC_DEVICE"

// New returns a new default Device.
//
// The default is the environment PARVEC_DEVICE if defined, next the variable DefaultConfig if
// defined, and finally the first registered device with an empty configuration.
//
// It panics if no device layer was registered.
func New() Device {
	config, found := os.LookupEnv(PARVEC_DEVICE)
	if found {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}
	return NewWithConfig("")
}

// NewWithConfig creates a Device from a configuration string formatted as
// "<device_name>:<device_configuration>".
func NewWithConfig(config string) Device {
	if len(registeredConstructors) == 0 {
		exceptions.Panicf(`no registered device layers -- maybe import the default host one with import _ "github.com/parvec/parvec/devices/hostdev"?`)
	}
	deviceName := firstRegistered
	deviceConfig := ""
	if idx := strings.Index(config, ":"); idx != -1 {
		deviceName = config[:idx]
		deviceConfig = config[idx+1:]
	} else if config != "" {
		deviceName = config
	}
	constructor, found := registeredConstructors[deviceName]
	if !found {
		exceptions.Panicf("can't find device layer %q for configuration %q given", deviceName, config)
	}
	return constructor(deviceConfig)
}
