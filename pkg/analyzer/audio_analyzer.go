// Package analyzer 上传音频的分析入口。伪造检测模型尚未接入，
// 目前只返回占位结论和从 WAV 文件中读出的基础信息。
package analyzer

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/go-audio/wav"
)

const (
	StatusNotImplemented = "not_implemented"

	FormatWAV     = "wav"
	FormatUnknown = "unknown"

	minSampleRate = 16000
	minDuration   = time.Second
)

// FeatureNames 检测模型预留的特征槽位
var FeatureNames = []string{
	"spectral_flatness",
	"pitch_variance",
	"mfcc_delta",
	"phase_coherence",
	"breathing_pattern",
}

// AudioInfo 音频基础信息
type AudioInfo struct {
	Format     string  `json:"format"`
	SampleRate int     `json:"sample_rate,omitempty"`
	Channels   int     `json:"channels,omitempty"`
	BitDepth   int     `json:"bit_depth,omitempty"`
	Frames     int     `json:"frames,omitempty"`
	DurationMs int64   `json:"duration_ms,omitempty"`
	Peak       float64 `json:"peak,omitempty"` // 归一化到 [0,1]
	RMS        float64 `json:"rms,omitempty"`
}

// Issue 音频质量问题，不影响结论
type Issue struct {
	ID          string `json:"id"`
	Severity    string `json:"severity"` // "high", "medium", "low"
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Result 分析结果
type Result struct {
	File       string             `json:"file"`
	Status     string             `json:"status"`
	IsDeepfake bool               `json:"is_deepfake"`
	Confidence float64            `json:"confidence"`
	Features   map[string]float64 `json:"features"`
	Audio      *AudioInfo         `json:"audio"`
	Issues     []*Issue           `json:"issues,omitempty"`
	AnalyzedAt time.Time          `json:"analyzed_at"`
}

// AudioAnalyzer 音频分析器
type AudioAnalyzer struct{}

// NewAudioAnalyzer 创建分析器
func NewAudioAnalyzer() *AudioAnalyzer {
	return &AudioAnalyzer{}
}

// AnalyzeFile 分析磁盘上的音频文件，非 WAV 文件只返回占位结论
func (a *AudioAnalyzer) AnalyzeFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	return a.Analyze(path, f)
}

// Analyze 分析 r 中的音频数据
func (a *AudioAnalyzer) Analyze(name string, r io.ReadSeeker) (*Result, error) {
	result := &Result{
		File:       name,
		Status:     StatusNotImplemented,
		IsDeepfake: false,
		Confidence: 0,
		Features:   make(map[string]float64, len(FeatureNames)),
		Audio:      &AudioInfo{Format: FormatUnknown},
		AnalyzedAt: time.Now().UTC(),
	}
	for _, feature := range FeatureNames {
		result.Features[feature] = 0
	}

	info, err := inspectWAV(r)
	if err != nil {
		if errors.Is(err, errNotWAV) {
			return result, nil
		}
		return nil, err
	}
	result.Audio = info
	result.Issues = identifyIssues(info)
	return result, nil
}

var errNotWAV = errors.New("not a wav file")

func inspectWAV(r io.ReadSeeker) (*AudioInfo, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errNotWAV
	}

	info := &AudioInfo{
		Format:     FormatWAV,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	if buf == nil || len(buf.Data) == 0 || info.Channels == 0 || info.SampleRate == 0 {
		return info, nil
	}

	info.Frames = len(buf.Data) / info.Channels
	info.DurationMs = int64(info.Frames) * 1000 / int64(info.SampleRate)

	fullScale := math.Pow(2, float64(info.BitDepth-1))
	var peak, sumSquares float64
	for _, v := range buf.Data {
		s := math.Abs(float64(v)) / fullScale
		if s > peak {
			peak = s
		}
		sumSquares += s * s
	}
	info.Peak = math.Min(peak, 1)
	info.RMS = math.Sqrt(sumSquares / float64(len(buf.Data)))
	return info, nil
}

// identifyIssues 识别会影响后续检测的录音质量问题
func identifyIssues(info *AudioInfo) []*Issue {
	var issues []*Issue

	if info.Frames == 0 {
		return append(issues, &Issue{
			ID:          "AUDIO_001",
			Severity:    "high",
			Title:       "音频为空",
			Description: "文件中没有任何采样数据",
		})
	}

	if info.SampleRate < minSampleRate {
		issues = append(issues, &Issue{
			ID:          "AUDIO_002",
			Severity:    "medium",
			Title:       "采样率偏低",
			Description: fmt.Sprintf("采样率 %dHz 低于推荐值 %dHz", info.SampleRate, minSampleRate),
		})
	}

	if time.Duration(info.DurationMs)*time.Millisecond < minDuration {
		issues = append(issues, &Issue{
			ID:          "AUDIO_003",
			Severity:    "medium",
			Title:       "音频过短",
			Description: fmt.Sprintf("时长 %dms 不足 %v", info.DurationMs, minDuration),
		})
	}

	if info.Peak >= 0.999 {
		issues = append(issues, &Issue{
			ID:          "AUDIO_004",
			Severity:    "low",
			Title:       "存在削波",
			Description: "峰值达到满幅，录音可能失真",
		})
	}

	if info.RMS < 0.001 {
		issues = append(issues, &Issue{
			ID:          "AUDIO_005",
			Severity:    "low",
			Title:       "音量过低",
			Description: fmt.Sprintf("RMS %.5f 接近静音", info.RMS),
		})
	}

	return issues
}
