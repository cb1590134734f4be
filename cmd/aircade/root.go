package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/palemoky/aircade/internal/config"
	"github.com/palemoky/aircade/internal/logger"
)

// options 命令行选项，覆盖配置文件
type options struct {
	configPath string
	apiURL     string
	webURL     string
	storage    string
	storageDir string
	redisAddr  string
	profile    string
	logLevel   string
	logConsole bool
	renderDir  string
	resume     bool
}

func newRootCmd(opts *options) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("AIRCADE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "aircade",
		Short:         "Host or join an AirCade party-game session from the terminal.",
		Version:       releaseVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			applyEnv(v, cmd.Flags())
			return nil
		},
	}

	fs := cmd.PersistentFlags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file (env: AIRCADE_CONFIG)")
	fs.StringVar(&opts.apiURL, "api-url", "", "AirCade API base URL (env: AIRCADE_API_URL)")
	fs.StringVar(&opts.webURL, "web-url", "", "site players open to join, used for the QR code (env: AIRCADE_WEB_URL)")
	fs.StringVar(&opts.storage, "storage", "", "credential storage: file, memory or redis (env: AIRCADE_STORAGE)")
	fs.StringVar(&opts.storageDir, "storage-dir", "", "directory for --storage=file, default ~/.aircade (env: AIRCADE_STORAGE_DIR)")
	fs.StringVar(&opts.redisAddr, "redis-addr", "", "redis address for --storage=redis (env: AIRCADE_REDIS_ADDR)")
	fs.StringVar(&opts.profile, "profile", "", "name separating several terminals on one redis (env: AIRCADE_PROFILE)")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level (env: AIRCADE_LOG_LEVEL)")
	fs.BoolVar(&opts.logConsole, "log-console", false, "also log to stderr (env: AIRCADE_LOG_CONSOLE)")
	fs.StringVar(&opts.renderDir, "render-dir", "", "write loaded game screens as HTML pages here (env: AIRCADE_RENDER_DIR)")
	fs.BoolVar(&opts.resume, "resume", false, "resume the last saved session when possible (env: AIRCADE_RESUME)")

	cmd.AddCommand(
		newHostCmd(opts),
		newJoinCmd(opts),
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newRenderCmd(),
	)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("aircade v{{.Version}}\n")
	return cmd
}

// applyEnv 未显式传入的参数取环境变量
func applyEnv(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

// loadConfig 读取配置文件，再用命令行选项覆盖
func (o *options) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", o.configPath, err)
		}
		cfg = loaded
	}

	if o.apiURL != "" {
		cfg.API.BaseURL = o.apiURL
	}
	if o.storage != "" {
		cfg.Storage.Driver = o.storage
	}
	if o.storageDir != "" {
		cfg.Storage.Dir = o.storageDir
	}
	if o.redisAddr != "" {
		cfg.Storage.RedisAddr = o.redisAddr
	}
	if o.profile != "" {
		cfg.Storage.Profile = o.profile
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logConsole {
		cfg.Log.Console = true
	}
	if cfg.API.BaseURL == "" {
		return nil, errors.New("an API base URL is required")
	}
	return cfg, nil
}

// initLogging 终端界面占用 stdout，默认只写日志文件
func initLogging(cfg *config.Config) error {
	if !cfg.Log.Console {
		cfg.Log.File = true
	}
	return logger.Init(cfg.Log)
}
