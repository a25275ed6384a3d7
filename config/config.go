package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port      int
	DataDir   string
	OutputDir string

	FFmpegBin  string
	FFprobeBin string

	VoiceAPIURL string

	Workers          int
	QueueCapacity    int
	SceneConcurrency int

	WordsPerSecond  float64
	MinSceneSeconds float64
	MaxSceneSeconds float64

	ProviderTimeout   time.Duration
	JobTimeout        time.Duration
	ProgressHeartbeat time.Duration

	ProfilesPath string
}

func Load() (*Config, error) {
	port, err := intEnv("PORT", 8090)
	if err != nil {
		return nil, err
	}
	workers, err := intEnv("WORKERS", 2)
	if err != nil {
		return nil, err
	}
	queueCap, err := intEnv("QUEUE_CAPACITY", 256)
	if err != nil {
		return nil, err
	}
	sceneConc, err := intEnv("SCENE_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}
	wps, err := floatEnv("WORDS_PER_SECOND", 2.5)
	if err != nil {
		return nil, err
	}
	minScene, err := floatEnv("SCENE_MIN_SECONDS", 2.0)
	if err != nil {
		return nil, err
	}
	maxScene, err := floatEnv("SCENE_MAX_SECONDS", 10.0)
	if err != nil {
		return nil, err
	}
	providerTimeout, err := intEnv("PROVIDER_TIMEOUT_SECONDS", 15)
	if err != nil {
		return nil, err
	}
	jobTimeout, err := intEnv("JOB_TIMEOUT_MINUTES", 30)
	if err != nil {
		return nil, err
	}
	heartbeat, err := intEnv("PROGRESS_HEARTBEAT_SECONDS", 3)
	if err != nil {
		return nil, err
	}

	if minScene <= 0 || maxScene <= minScene {
		return nil, fmt.Errorf("invalid scene duration band [%v, %v]", minScene, maxScene)
	}
	if workers < 1 {
		return nil, fmt.Errorf("WORKERS must be at least 1")
	}

	dataDir := getEnv("DATA_DIR", "/data")
	return &Config{
		Port:              port,
		DataDir:           dataDir,
		OutputDir:         getEnv("OUTPUT_DIR", dataDir+"/output"),
		FFmpegBin:         getEnv("FFMPEG_BIN", "ffmpeg"),
		FFprobeBin:        getEnv("FFPROBE_BIN", "ffprobe"),
		VoiceAPIURL:       getEnv("VOICE_API_URL", "http://localhost:5002"),
		Workers:           workers,
		QueueCapacity:     queueCap,
		SceneConcurrency:  sceneConc,
		WordsPerSecond:    wps,
		MinSceneSeconds:   minScene,
		MaxSceneSeconds:   maxScene,
		ProviderTimeout:   time.Duration(providerTimeout) * time.Second,
		JobTimeout:        time.Duration(jobTimeout) * time.Minute,
		ProgressHeartbeat: time.Duration(heartbeat) * time.Second,
		ProfilesPath:      os.Getenv("PROFILES_PATH"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func intEnv(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func floatEnv(key string, defaultValue float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
