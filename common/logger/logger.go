// Package logger provides the process-wide structured logger.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/gin-gonic/gin"

	"github.com/relaygate/relaygate/common/config"
)

var (
	Logger glog.Logger
	// LogDir is set by SetupLogger's caller before the first call when file
	// logging is desired; empty means console-only.
	LogDir       string
	setupLogOnce sync.Once
	initLogOnce  sync.Once
)

func init() {
	initLogger()
}

func initLogger() {
	initLogOnce.Do(func() {
		var err error
		level := glog.LevelInfo
		if config.DebugEnabled {
			level = glog.LevelDebug
		}

		Logger, err = glog.NewConsoleWithName("gateway", level)
		if err != nil {
			panic(fmt.Sprintf("failed to create logger: %+v", err))
		}
	})
}

// SetupLogger, when LogDir is set, mirrors gin's default writers (stdout and
// stderr) into one file under LogDir named by the date SetupLogger first runs;
// the file is not rotated afterwards.
func SetupLogger() {
	setupLogOnce.Do(func() {
		if LogDir == "" {
			return
		}
		logPath := filepath.Join(LogDir, fmt.Sprintf("gateway-%s.log", time.Now().Format("20060102")))
		fd, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Fatal("failed to open log file")
		}
		gin.DefaultWriter = io.MultiWriter(os.Stdout, fd)
		gin.DefaultErrorWriter = io.MultiWriter(os.Stderr, fd)
	})
}
