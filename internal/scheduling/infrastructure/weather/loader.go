package weather

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/services"
	"github.com/felixgeelhaar/crewplan/internal/shared/infrastructure/security"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"
)

// PluginLoader starts a forecast plugin binary and dispenses its provider.
type PluginLoader struct {
	logger *slog.Logger
	client *plugin.Client
}

// NewPluginLoader creates a loader.
func NewPluginLoader(logger *slog.Logger) *PluginLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &PluginLoader{logger: logger}
}

// Load starts the plugin at path. When checksum is set ("sha256:HEX" or
// bare hex) the binary must match it.
func (l *PluginLoader) Load(path, checksum string) (services.ForecastProvider, error) {
	if l.client != nil {
		return nil, fmt.Errorf("forecast plugin already loaded")
	}

	binary, err := security.ValidateExecutablePath(path)
	if err != nil {
		return nil, fmt.Errorf("forecast plugin: %w", err)
	}
	if checksum != "" {
		if err := verifyChecksum(binary, checksum); err != nil {
			return nil, err
		}
	}

	l.logger.Info("loading forecast plugin", "binary", binary)

	// #nosec G204 -- binary path is validated by security.ValidateExecutablePath
	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  Handshake,
		Plugins:          map[string]plugin.Plugin{pluginName: &ForecastPlugin{}},
		Cmd:              exec.Command(binary),
		Logger:           newHclogAdapter(l.logger),
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolGRPC},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("connect forecast plugin: %w", err)
	}
	raw, err := rpcClient.Dispense(pluginName)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("dispense forecast plugin: %w", err)
	}
	provider, ok := raw.(services.ForecastProvider)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("forecast plugin returned %T", raw)
	}

	l.client = client
	return provider, nil
}

// Close stops the plugin process.
func (l *PluginLoader) Close() {
	if l.client == nil {
		return
	}
	l.client.Kill()
	l.client = nil
	l.logger.Info("forecast plugin stopped")
}

func verifyChecksum(path, expected string) error {
	algorithm, hash := "sha256", expected
	if a, h, ok := strings.Cut(expected, ":"); ok {
		algorithm, hash = strings.ToLower(a), h
	}
	if algorithm != "sha256" {
		return fmt.Errorf("unsupported checksum algorithm: %s", algorithm)
	}

	// #nosec G304 -- path is validated by security.ValidateExecutablePath
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return err
	}
	if computed := hex.EncodeToString(hasher.Sum(nil)); !strings.EqualFold(computed, hash) {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", hash, computed)
	}
	return nil
}

// hclogAdapter routes go-plugin logs into slog.
type hclogAdapter struct {
	logger *slog.Logger
	name   string
}

func newHclogAdapter(logger *slog.Logger) *hclogAdapter {
	return &hclogAdapter{logger: logger.With("component", "forecast-plugin"), name: "forecast-plugin"}
}

func (h *hclogAdapter) Log(level hclog.Level, msg string, args ...interface{}) {
	switch level {
	case hclog.Info:
		h.Info(msg, args...)
	case hclog.Warn:
		h.Warn(msg, args...)
	case hclog.Error:
		h.Error(msg, args...)
	default:
		h.Debug(msg, args...)
	}
}

func (h *hclogAdapter) Trace(msg string, args ...interface{}) { h.logger.Debug(msg, args...) }
func (h *hclogAdapter) Debug(msg string, args ...interface{}) { h.logger.Debug(msg, args...) }
func (h *hclogAdapter) Info(msg string, args ...interface{})  { h.logger.Info(msg, args...) }
func (h *hclogAdapter) Warn(msg string, args ...interface{})  { h.logger.Warn(msg, args...) }
func (h *hclogAdapter) Error(msg string, args ...interface{}) { h.logger.Error(msg, args...) }

func (h *hclogAdapter) IsTrace() bool { return false }
func (h *hclogAdapter) IsDebug() bool { return true }
func (h *hclogAdapter) IsInfo() bool  { return true }
func (h *hclogAdapter) IsWarn() bool  { return true }
func (h *hclogAdapter) IsError() bool { return true }

func (h *hclogAdapter) ImpliedArgs() []interface{} { return nil }

func (h *hclogAdapter) With(args ...interface{}) hclog.Logger {
	return &hclogAdapter{logger: h.logger.With(args...), name: h.name}
}

func (h *hclogAdapter) Name() string { return h.name }

func (h *hclogAdapter) Named(name string) hclog.Logger {
	return &hclogAdapter{logger: h.logger, name: h.name + "." + name}
}

func (h *hclogAdapter) ResetNamed(name string) hclog.Logger {
	return &hclogAdapter{logger: h.logger, name: name}
}

func (h *hclogAdapter) SetLevel(hclog.Level) {}

func (h *hclogAdapter) GetLevel() hclog.Level { return hclog.Debug }

func (h *hclogAdapter) StandardLogger(*hclog.StandardLoggerOptions) *log.Logger {
	return slog.NewLogLogger(h.logger.Handler(), slog.LevelInfo)
}

func (h *hclogAdapter) StandardWriter(*hclog.StandardLoggerOptions) io.Writer {
	return os.Stderr
}
