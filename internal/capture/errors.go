package capture

import "errors"

// 采集会话错误类型，调用方通过 errors.Is 判断类别
var (
	// ErrAlreadyRecording 已有活动会话时再次启动
	ErrAlreadyRecording = errors.New("already recording")
	// ErrNotRecording 没有活动会话时停止
	ErrNotRecording = errors.New("not recording")
	// ErrEmptyRecording 会话期间没有收到任何音频块，不写文件
	ErrEmptyRecording = errors.New("nothing recorded")
	// ErrInvalidFilename 输出文件名不是合法的纯文件名
	ErrInvalidFilename = errors.New("invalid filename")

	// ErrDevice 打开或关闭采集设备失败
	ErrDevice = errors.New("capture device error")
	// ErrEncoding 生成WAV数据失败
	ErrEncoding = errors.New("waveform encoding error")
	// ErrStorage 写入文件失败
	ErrStorage = errors.New("storage error")

	// ErrDeviceUnsupported 当前构建不支持系统采集设备
	ErrDeviceUnsupported = errors.New("system capture device not supported in this build")
)
