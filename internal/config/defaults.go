package config

const (
	defaultOutputDir      = "~/penman"
	defaultStagingDir     = "~/.local/share/penman/staging"
	defaultDownloadDir    = "~/.local/share/penman/downloads"
	defaultLogDir         = "~/.local/share/penman/logs"
	defaultModel          = "turbo"
	defaultDevice         = "auto"
	defaultSegmentSeconds = 300
	defaultOutputFormat   = "txt"
	defaultRunPolicy      = RunPolicyStop
	defaultPollInterval   = 5
	defaultRetryInterval  = 10
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
	defaultRetentionDays  = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir:   defaultOutputDir,
			StagingDir:  defaultStagingDir,
			DownloadDir: defaultDownloadDir,
			LogDir:      defaultLogDir,
		},
		Transcription: Transcription{
			Model:          defaultModel,
			Device:         defaultDevice,
			SegmentSeconds: defaultSegmentSeconds,
			OutputFormat:   defaultOutputFormat,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultPollInterval,
			ErrorRetryInterval: defaultRetryInterval,
			RunPolicy:          defaultRunPolicy,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultRetentionDays,
		},
	}
}
