package core

import (
	"strconv"
	"strings"

	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Configuration defines the settings of the whole texture pipeline
type Configuration struct {
	Log    LogConfiguration
	Time   TimeConfiguration
	Loader LoaderConfiguration
	Cache  CacheConfiguration
	Device DeviceConfiguration
}

// LogConfiguration is used to configure logrus
type LogConfiguration struct {
	// Level is a logrus level name, "info" when empty
	Level string
	JSON  bool
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps how often the tools tick the loader.
	// To unlimit, set to 0
	FramesPerSecond int

	// WorkerPollDelay is how long the background worker sleeps,
	// in milliseconds, when it finds its queue empty
	WorkerPollDelay int
}

// LoaderConfiguration is used to configure the texture loader
type LoaderConfiguration struct {
	// Reduction is the number of top mip levels skipped by default
	Reduction int

	// MinDimension stops reduction once a side would drop below it
	MinDimension int

	AllowCompression bool

	// DropSmallMips drops the two smallest levels of every DDS chain
	DropSmallMips bool

	ThumbnailSize int
}

// CacheConfiguration is used to configure the content cache
type CacheConfiguration struct {
	// Path of the backing file. The cache is off when empty
	Path string

	// Resident is how many decompressed levels stay in memory
	Resident int

	// Compressor is one of "none", "lz4" or "zstd"
	Compressor string
}

// DeviceConfiguration describes the limits of the software device
type DeviceConfiguration struct {
	MaxTextureWidth  int
	MaxTextureHeight int
	MaxVolumeExtent  int
}

// DefaultConfiguration returns the settings used when nothing is configured
func DefaultConfiguration() Configuration {
	return Configuration{
		Log: LogConfiguration{
			Level: "info",
		},
		Time: TimeConfiguration{
			FramesPerSecond: 60,
			WorkerPollDelay: 10,
		},
		Loader: LoaderConfiguration{
			Reduction:        0,
			MinDimension:     1,
			AllowCompression: true,
			DropSmallMips:    true,
			ThumbnailSize:    64,
		},
		Cache: CacheConfiguration{
			Resident:   4,
			Compressor: "lz4",
		},
		Device: DeviceConfiguration{
			MaxTextureWidth:  4096,
			MaxTextureHeight: 4096,
			MaxVolumeExtent:  256,
		},
	}
}

// Environment keys understood by LoadConfiguration.
const (
	KeyLogLevel         = "TEXSTREAM_LOG_LEVEL"
	KeyLogJSON          = "TEXSTREAM_LOG_JSON"
	KeyFPS              = "TEXSTREAM_FPS"
	KeyWorkerPoll       = "TEXSTREAM_WORKER_POLL_MS"
	KeyReduction        = "TEXSTREAM_REDUCTION"
	KeyMinDimension     = "TEXSTREAM_MIN_DIMENSION"
	KeyAllowCompression = "TEXSTREAM_ALLOW_COMPRESSION"
	KeyDropSmallMips    = "TEXSTREAM_DROP_SMALL_MIPS"
	KeyThumbnailSize    = "TEXSTREAM_THUMBNAIL_SIZE"
	KeyCachePath        = "TEXSTREAM_CACHE_PATH"
	KeyCacheResident    = "TEXSTREAM_CACHE_RESIDENT"
	KeyCacheCompressor  = "TEXSTREAM_CACHE_COMPRESSOR"
	KeyMaxWidth         = "TEXSTREAM_MAX_TEXTURE_WIDTH"
	KeyMaxHeight        = "TEXSTREAM_MAX_TEXTURE_HEIGHT"
	KeyMaxVolume        = "TEXSTREAM_MAX_VOLUME_EXTENT"
)

// LoadConfiguration starts from DefaultConfiguration, applies the env
// files in order and then the process environment, which wins.
func LoadConfiguration(files ...string) (Configuration, error) {
	values := map[string]string{}
	if len(files) > 0 {
		read, err := godotenv.Read(files...)
		if err != nil {
			return Configuration{}, errors.Wrap(err, "read configuration")
		}
		values = read
	}

	r := resolver{files: values}
	cfg := DefaultConfiguration()

	cfg.Log.Level = r.str(KeyLogLevel, cfg.Log.Level)
	cfg.Log.JSON = r.boolean(KeyLogJSON, cfg.Log.JSON)
	cfg.Time.FramesPerSecond = r.integer(KeyFPS, cfg.Time.FramesPerSecond)
	cfg.Time.WorkerPollDelay = r.integer(KeyWorkerPoll, cfg.Time.WorkerPollDelay)
	cfg.Loader.Reduction = r.integer(KeyReduction, cfg.Loader.Reduction)
	cfg.Loader.MinDimension = r.integer(KeyMinDimension, cfg.Loader.MinDimension)
	cfg.Loader.AllowCompression = r.boolean(KeyAllowCompression, cfg.Loader.AllowCompression)
	cfg.Loader.DropSmallMips = r.boolean(KeyDropSmallMips, cfg.Loader.DropSmallMips)
	cfg.Loader.ThumbnailSize = r.integer(KeyThumbnailSize, cfg.Loader.ThumbnailSize)
	cfg.Cache.Path = r.str(KeyCachePath, cfg.Cache.Path)
	cfg.Cache.Resident = r.integer(KeyCacheResident, cfg.Cache.Resident)
	cfg.Cache.Compressor = strings.ToLower(r.str(KeyCacheCompressor, cfg.Cache.Compressor))
	cfg.Device.MaxTextureWidth = r.integer(KeyMaxWidth, cfg.Device.MaxTextureWidth)
	cfg.Device.MaxTextureHeight = r.integer(KeyMaxHeight, cfg.Device.MaxTextureHeight)
	cfg.Device.MaxVolumeExtent = r.integer(KeyMaxVolume, cfg.Device.MaxVolumeExtent)

	if r.err != nil {
		return Configuration{}, r.err
	}
	return cfg, nil
}

type resolver struct {
	files map[string]string
	err   error
}

func (r *resolver) str(key, def string) string {
	if v, ok := r.files[key]; ok {
		def = v
	}
	return envy.Get(key, def)
}

func (r *resolver) integer(key string, def int) int {
	v := r.str(key, strconv.Itoa(def))
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		if r.err == nil {
			r.err = errors.Wrapf(err, "configuration %s", key)
		}
		return def
	}
	return n
}

func (r *resolver) boolean(key string, def bool) bool {
	v := r.str(key, strconv.FormatBool(def))
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		if r.err == nil {
			r.err = errors.Wrapf(err, "configuration %s", key)
		}
		return def
	}
	return b
}
