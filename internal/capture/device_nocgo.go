//go:build !cgo

package capture

// NewSystemDevice 无cgo构建时没有可用的系统采集设备
func NewSystemDevice(format Format) (Device, error) {
	return nil, ErrDeviceUnsupported
}
