package tools

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/rectcircle/loratun/internal/variable"
	"github.com/sirupsen/logrus"
)

// ToAddressString - return "$host:$port"
func ToAddressString(host string, port uint16) string {
	return net.JoinHostPort(host, strconv.FormatInt(int64(port), 10))
}

// PathExist - return whether exist of path
func PathExist(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReadOrCreateFile - read from config file, and return the file content
// if path not exist, will create the path and call `f()` to write to the file.
func ReadOrCreateFile(path string, f func() []byte) ([]byte, error) {
	if PathExist(path) {
		return os.ReadFile(path)
	}
	content := f()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if _, err := file.Write(content); err != nil {
		return nil, err
	}
	return content, nil
}

// If - ternary for log fields
func If[T any](cond bool, a, b T) T {
	if cond {
		return a
	}
	return b
}

// TraceF - debug log only when trace logging is enabled
func TraceF(format string, args ...interface{}) {
	if variable.EnableTraceLog {
		logrus.Debugf(format, args...)
	}
}

// SetupLogging - logrus text output with timestamps, debug when verbose
func SetupLogging(verbose bool) {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "02 Jan 15:04:05.000",
	})
	logrus.SetOutput(os.Stderr)
	logrus.SetLevel(If(verbose, logrus.DebugLevel, logrus.InfoLevel))
}

// RunCommand - run an external command bounded by CommandTimeout, return its combined output
func RunCommand(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, variable.CommandTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, name, args...)
	logrus.WithField("cmd", name+" "+strings.Join(args, " ")).Debug("exec")
	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		if output != "" {
			return output, fmt.Errorf("%s: %w: %s", name, err, output)
		}
		return output, fmt.Errorf("%s: %w", name, err)
	}
	return output, nil
}

// LogAndExitIfErr - will log and exit if err != nil
func LogAndExitIfErr(err error) {
	if err != nil {
		pterm.Error.Println(err.Error())
		os.Exit(1)
	}
}
