package config

const mebibyte = 1024 * 1024

const (
	defaultConfigPath             = "~/.config/likevault/config.toml"
	defaultDataDir                = "~/.local/share/likevault"
	defaultDownloadDir            = "~/.local/share/likevault/downloads"
	defaultLogDir                 = "~/.local/share/likevault/logs"
	defaultAPIBind                = "127.0.0.1:7489"
	defaultRedditFetchLimit       = 100
	defaultRedditAuthURL          = "https://www.reddit.com"
	defaultRedditAPIURL           = "https://oauth.reddit.com"
	defaultRedditRequestTimeout   = 30
	defaultTelegramEndpoint       = "https://api.telegram.org/bot%s/%s"
	defaultMediaGroupSize         = 10
	defaultTextLimit              = 4096
	defaultSendPauseMS            = 500
	defaultTelegramRequestTimeout = 60
	defaultMaxDiskUsageMB         = 3 * 1024
	defaultMaxFileSizeMB          = 2 * 1024
	defaultMinFreeSpaceMB         = 256
	defaultMaxRetries             = 15
	defaultAlertAfterRetry        = 5
	defaultInitialDelaySeconds    = 60
	defaultBackoffMultiplier      = 1.5
	defaultWorkerCount            = 4
	defaultDequeueTimeoutSeconds  = 10
	defaultDeferPosition          = 10
	defaultMaxDeferrals           = 5
	defaultFetchSchedule          = "@every 1h"
	defaultDownloadTimeoutSeconds = 300
	defaultShutdownGraceSeconds   = 30
	defaultNotifyRequestTimeout   = 10
	defaultNotifyQueueSize        = 64
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:     defaultDataDir,
			DownloadDir: defaultDownloadDir,
			LogDir:      defaultLogDir,
			APIBind:     defaultAPIBind,
		},
		Reddit: Reddit{
			FetchLimit:     defaultRedditFetchLimit,
			AuthURL:        defaultRedditAuthURL,
			APIURL:         defaultRedditAPIURL,
			RequestTimeout: defaultRedditRequestTimeout,
		},
		Telegram: Telegram{
			APIEndpoint:    defaultTelegramEndpoint,
			MediaGroupSize: defaultMediaGroupSize,
			TextLimit:      defaultTextLimit,
			SendPauseMS:    defaultSendPauseMS,
			RequestTimeout: defaultTelegramRequestTimeout,
			AdminCommands:  true,
		},
		Storage: Storage{
			MaxDiskUsageMB: defaultMaxDiskUsageMB,
			MaxFileSizeMB:  defaultMaxFileSizeMB,
			MinFreeSpaceMB: defaultMinFreeSpaceMB,
		},
		Retry: Retry{
			MaxRetries:          defaultMaxRetries,
			AlertAfterRetry:     defaultAlertAfterRetry,
			InitialDelaySeconds: defaultInitialDelaySeconds,
			BackoffMultiplier:   defaultBackoffMultiplier,
		},
		Workflow: Workflow{
			WorkerCount:            defaultWorkerCount,
			DequeueTimeoutSeconds:  defaultDequeueTimeoutSeconds,
			DeferPosition:          defaultDeferPosition,
			MaxDeferrals:           defaultMaxDeferrals,
			FetchSchedule:          defaultFetchSchedule,
			FetchOnStart:           true,
			DownloadTimeoutSeconds: defaultDownloadTimeoutSeconds,
			ShutdownGraceSeconds:   defaultShutdownGraceSeconds,
			ResumeOnStart:          true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			TelegramAdmin:  true,
			QueueSize:      defaultNotifyQueueSize,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
