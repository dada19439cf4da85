package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger zerolog.Logger
	once   sync.Once
)

func init() {
	// console-only until Init wires the file writer
	logger = zerolog.New(console()).Level(level()).With().Timestamp().Logger()
}

// Init attaches the rotating file writer under CONFIG_FOLDER/logs. Safe to
// call more than once; only the first call takes effect.
func Init() {
	once.Do(func() {
		writers := []io.Writer{console()}
		if folder := viper.GetString("CONFIG_FOLDER"); folder != "" {
			writers = append(writers, &lumberjack.Logger{
				Filename:   filepath.Join(folder, "logs", "mirrormaker.log"),
				MaxSize:    100, // megabytes
				MaxBackups: 5,
				MaxAge:     30, // days
				Compress:   true,
			})
		}
		logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level()).With().Timestamp().Logger()
	})
}

func console() zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
}

func level() zerolog.Level {
	if env := strings.ToLower(os.Getenv("LOG_LEVEL")); env != "" {
		if parsed, err := zerolog.ParseLevel(env); err == nil {
			return parsed
		}
	}
	return zerolog.InfoLevel
}

func Debug(v ...interface{}) {
	logger.Debug().Msg(fmt.Sprint(v...))
}

func Debugf(format string, v ...interface{}) {
	logger.Debug().Msgf(format, v...)
}

func Info(v ...interface{}) {
	logger.Info().Msg(fmt.Sprint(v...))
}

func Infof(format string, v ...interface{}) {
	logger.Info().Msgf(format, v...)
}

func Warn(v ...interface{}) {
	logger.Warn().Msg(fmt.Sprint(v...))
}

func Warnf(format string, v ...interface{}) {
	logger.Warn().Msgf(format, v...)
}

func Error(v ...interface{}) {
	logger.Error().Msg(fmt.Sprint(v...))
}

func Errorf(format string, v ...interface{}) {
	logger.Error().Msgf(format, v...)
}

// Fatal logs at fatal level and exits with status 1.
func Fatal(v ...interface{}) {
	logger.Fatal().Msg(fmt.Sprint(v...))
}

func Fatalf(format string, v ...interface{}) {
	logger.Fatal().Msgf(format, v...)
}
