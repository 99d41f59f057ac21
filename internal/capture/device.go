package capture

// Format 采集格式（会话期间固定）
type Format struct {
	SampleRate      int
	Channels        int
	FramesPerBuffer int
}

// ChunkHandler 音频块回调，由设备在自己的线程上调用。
// samples 只在回调期间有效，需要保留时必须复制。
type ChunkHandler func(samples []int16)

// Device 采集设备，一次会话打开一次
type Device interface {
	// Start 开始向 onChunk 推送音频块，立即返回
	Start(onChunk ChunkHandler) error
	// Close 停止设备流并释放资源，返回后不再调用 onChunk
	Close() error
}

// DeviceFactory 按格式创建设备
type DeviceFactory func(format Format) (Device, error)
