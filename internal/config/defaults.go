package config

const (
	defaultStateDir        = "/var/lib/dartup"
	defaultLogDir          = "/var/log/dartup"
	defaultEnvFile         = "/etc/default/dartup"
	defaultCallerRepoDir   = "/opt/autodarts/darts-caller"
	defaultCallerService   = "darts-caller"
	defaultWLEDRepoDir     = "/opt/autodarts/darts-wled"
	defaultWLEDService     = "darts-wled"
	defaultRequirements    = "requirements.txt"
	defaultPanelBaseURL    = "https://get.autodarts-extras.io/web"
	defaultPanelInstallDir = "/opt/autodarts/autodarts-web"
	defaultPanelConfigDir  = "/var/lib/autodarts/config"
	defaultPanelService    = "autodarts-web"
	defaultConnectTimeout  = 10
	defaultRequestTimeout  = 60
	defaultDownloadRetries = 2
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		EnvFile: defaultEnvFile,
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Caller: Component{
			RepoDir:      defaultCallerRepoDir,
			Service:      defaultCallerService,
			Requirements: defaultRequirements,
			Overrides:    []string{"start-custom.sh"},
		},
		WLED: Component{
			RepoDir:      defaultWLEDRepoDir,
			Service:      defaultWLEDService,
			Requirements: defaultRequirements,
			Overrides:    []string{"start-custom.sh", "start.sh"},
		},
		WebPanel: WebPanel{
			BaseURL:         defaultPanelBaseURL,
			InstallDir:      defaultPanelInstallDir,
			ConfigDir:       defaultPanelConfigDir,
			Service:         defaultPanelService,
			ConnectTimeout:  defaultConnectTimeout,
			RequestTimeout:  defaultRequestTimeout,
			DownloadRetries: defaultDownloadRetries,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
