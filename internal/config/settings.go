package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"ytqueue/internal/domain"
)

// Settings is the persisted record of last-used download options. Each
// field falls back to its default independently when missing or invalid;
// loading never fails the caller.
type Settings struct {
	DownloadPath    string `toml:"download_path"`
	ToolPath        string `toml:"tool_path"`
	MediaKind       string `toml:"media_kind"`
	VideoResolution string `toml:"video_resolution"`
	AudioQuality    string `toml:"audio_quality"`
	AudioFormat     string `toml:"audio_format"`
}

// DefaultSettings returns the stock settings.
func DefaultSettings() Settings {
	return Settings{
		DownloadPath:    DefaultDownloadDir(),
		MediaKind:       string(domain.KindVideo),
		VideoResolution: "Best",
		AudioQuality:    "128k",
		AudioFormat:     "mp3",
	}
}

// LoadSettings reads the settings file at path. Unreadable files and
// unknown values silently fall back to defaults.
func LoadSettings(path string) Settings {
	s := DefaultSettings()
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return DefaultSettings()
	}
	return s.sanitized()
}

// Save writes the settings to path.
func (s Settings) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(s); err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return nil
}

func (s Settings) sanitized() Settings {
	def := DefaultSettings()
	if s.DownloadPath == "" {
		s.DownloadPath = def.DownloadPath
	}
	s.MediaKind = validated(s.MediaKind, []string{string(domain.KindVideo), string(domain.KindAudio)}, def.MediaKind)
	s.VideoResolution = validated(s.VideoResolution, domain.VideoQualities, def.VideoResolution)
	s.AudioQuality = validated(s.AudioQuality, domain.AudioQualities, def.AudioQuality)
	s.AudioFormat = validated(s.AudioFormat, domain.AudioFormats, def.AudioFormat)
	return s
}

func validated(value string, valid []string, fallback string) string {
	for _, v := range valid {
		if value == v {
			return value
		}
	}
	return fallback
}
