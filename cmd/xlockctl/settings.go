package main

import (
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xlocks/pkg/config/xconf"
	"github.com/omeyang/xlocks/pkg/observability/xlog"
	"github.com/omeyang/xlocks/pkg/util/xlockmgr"
)

// Settings 配置文件结构。命令行参数优先于配置文件。
//
//	manager:
//	  shard_count: 32
//	  max_names: 0
//	log:
//	  level: info
//	  format: text
//	  rotation:
//	    filename: /var/log/xlockctl.log
//	soak:
//	  names: 16
//	  workers: 32
//	  shared_ratio: 0.5
//	  steal_ratio: 0.01
//	  if_available_ratio: 0.1
//	  hold_max: 2ms
//	  stats_interval: 1s
type Settings struct {
	Manager ManagerSettings `koanf:"manager"`
	Log     LogSettings     `koanf:"log"`
	Soak    SoakSettings    `koanf:"soak"`
}

type ManagerSettings struct {
	ShardCount int `koanf:"shard_count"`
	MaxNames   int `koanf:"max_names"`
}

type LogSettings struct {
	Level    string        `koanf:"level"`
	Format   string        `koanf:"format"`
	Rotation xlog.Rotation `koanf:"rotation"`
}

type SoakSettings struct {
	Names            int           `koanf:"names"`
	Workers          int           `koanf:"workers"`
	SharedRatio      float64       `koanf:"shared_ratio"`
	StealRatio       float64       `koanf:"steal_ratio"`
	IfAvailableRatio float64       `koanf:"if_available_ratio"`
	HoldMax          time.Duration `koanf:"hold_max"`
	StatsInterval    time.Duration `koanf:"stats_interval"`
}

func defaultSettings() Settings {
	return Settings{
		Manager: ManagerSettings{ShardCount: 32},
		Log:     LogSettings{Level: "info", Format: "text"},
		Soak: SoakSettings{
			Names:            16,
			Workers:          32,
			SharedRatio:      0.5,
			StealRatio:       0.01,
			IfAvailableRatio: 0.1,
			HoldMax:          2 * time.Millisecond,
			StatsInterval:    time.Second,
		},
	}
}

// env 单次命令运行所需的配置与日志。
type env struct {
	settings Settings
	cfg      xconf.Config // 未指定 --config 时为 nil
	logger   xlog.LoggerWithLevel
	cleanup  func() error
}

// loadEnv 依次应用默认值、配置文件、全局参数，然后构建 logger。
func loadEnv(cmd *cli.Command) (*env, error) {
	e := &env{settings: defaultSettings()}
	if path := cmd.String("config"); path != "" {
		cfg, err := xconf.New(path)
		if err != nil {
			return nil, err
		}
		if err := cfg.Unmarshal("", &e.settings); err != nil {
			return nil, err
		}
		e.cfg = cfg
	}
	if cmd.IsSet("log-level") {
		e.settings.Log.Level = cmd.String("log-level")
	}
	if cmd.IsSet("log-format") {
		e.settings.Log.Format = cmd.String("log-format")
	}
	if cmd.IsSet("log-file") {
		e.settings.Log.Rotation.Filename = cmd.String("log-file")
	}
	if _, err := xlog.ParseLevel(e.settings.Log.Level); err != nil {
		return nil, usageErrorf("%v", err)
	}

	b := xlog.New().
		SetOutput(cmd.Root().ErrWriter).
		SetLevelString(e.settings.Log.Level).
		SetFormat(e.settings.Log.Format)
	if e.settings.Log.Rotation.Filename != "" {
		b.SetRotation(e.settings.Log.Rotation)
	}
	logger, cleanup, err := b.Build()
	if err != nil {
		return nil, usageErrorf("%v", err)
	}
	e.logger = logger
	e.cleanup = cleanup
	return e, nil
}

func (e *env) managerOptions(extra ...xlockmgr.Option) []xlockmgr.Option {
	opts := []xlockmgr.Option{
		xlockmgr.WithLogger(e.logger),
		xlockmgr.WithMaxNames(e.settings.Manager.MaxNames),
	}
	if e.settings.Manager.ShardCount > 0 {
		opts = append(opts, xlockmgr.WithShardCount(e.settings.Manager.ShardCount))
	}
	return append(opts, extra...)
}
