package config

import (
	"os"
	"path/filepath"
)

const (
	DefaultYouTubeFormat   = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/mp4"
	DefaultMaxFileBytes    = 50 * 1024 * 1024
	DefaultLookupEndpoint  = "https://saveinsta.app/api/lookup/"
	DefaultLookupUserAgent = "Mozilla/5.0"
	DefaultLookupTimeout   = 15
)

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:              "info",
			MaxConcurrentMessages: 10,
		},
		Telegram: TelegramConfig{
			PollTimeout: 30,
			SendRate:    20,
			SendBurst:   5,
		},
		YouTube: YouTubeConfig{
			BinaryPath:   "yt-dlp",
			Format:       DefaultYouTubeFormat,
			MaxFileBytes: DefaultMaxFileBytes,
		},
		Instagram: InstagramConfig{
			Endpoint:       DefaultLookupEndpoint,
			UserAgent:      DefaultLookupUserAgent,
			TimeoutSeconds: DefaultLookupTimeout,
		},
		Downloads: DownloadsConfig{
			TempDir: filepath.Join(os.TempDir(), "linkrelay"),
			Workers: 2,
		},
		History: HistoryConfig{
			Enabled: false,
			DBPath:  "~/.linkrelay/history.db",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Addr:     "127.0.0.1:9464",
			Endpoint: "/metrics",
		},
	}
}
