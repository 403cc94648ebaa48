package config

import (
	"os"
	"path/filepath"

	"github.com/lipvoice/voice-client/internal/utils"
)

const (
	appNameVar   = "APP_NAME"
	envVar       = "ENV"
	logLevelVar  = "LOG_LEVEL"
	logPrettyVar = "LOG_PRETTY"
	folderEnvVar = "FOLDER"
	storePathVar = "STORE_PATH"
)

type EnvVars struct {
	file *File
}

var _ EnvConfig = EnvVars{}
var _ StorageConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return GetEnv(appNameVar, utils.FirstNonEmpty(e.overlay().AppName, "LipVoice"))
}

func (e EnvVars) GetEnv() string {
	return GetEnv(envVar, utils.FirstNonEmpty(e.overlay().Env, "DEV"))
}

func (e EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, utils.FirstNonEmpty(e.overlay().LogLevel, "info"))
}

// GetLogPretty defaults to console output outside of PROD
func (e EnvVars) GetLogPretty() bool {
	return utils.ParseBool(GetEnv(logPrettyVar, e.overlay().LogPretty), e.GetEnv() != "PROD")
}

func (e EnvVars) GetDataFolder() string {
	return GetEnv(folderEnvVar, utils.FirstNonEmpty(e.overlay().DataFolder, "./data"))
}

// GetStorePath is the local store file. ":memory:" keeps everything in process.
func (e EnvVars) GetStorePath() string {
	return GetEnv(storePathVar, utils.FirstNonEmpty(e.overlay().StorePath, filepath.Join(e.GetDataFolder(), "lipvoice.db")))
}

func (e EnvVars) overlay() *File {
	if e.file == nil {
		return &File{}
	}
	return e.file
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
