package common

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/Laisky/zap"

	"github.com/relaygate/relaygate/common/config"
	"github.com/relaygate/relaygate/common/logger"
)

var (
	Port   = flag.Int("port", 3000, "the listening port")
	LogDir = flag.String("log-dir", "", "specify the log directory")
)

// Init parses process flags and prepares the log directory, if any.
func Init() {
	flag.Parse()

	SQLitePath = config.SQLitePath
	if *LogDir != "" {
		expanded := expandLogDirPath(*LogDir)
		lg := logger.Logger.With(zap.String("log_dir", expanded))
		lg.Debug("starting to set log dir")

		var err error
		expanded, err = filepath.Abs(expanded)
		if err != nil {
			lg.Fatal("failed to get absolute log dir", zap.Error(err))
		}

		if err = os.MkdirAll(expanded, 0o777); err != nil {
			lg.Fatal("failed to create log dir", zap.Error(err))
		}

		lg.Info("set log dir", zap.String("log_dir", expanded))
		logger.LogDir = expanded
		*LogDir = expanded
	}
}
