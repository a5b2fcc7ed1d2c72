package config

import (
	"bytes"
	"errors"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Viper is a Config implementation backed by github.com/spf13/viper.
//
// Values resolve in this order: environment, config file, defaults.
// Environment keys are the upper-cased config keys with "." replaced by "_"
// (smtp.host -> SMTP_HOST), plus any aliases registered with WithEnvAlias.
//
// File reloads happen under the write lock; every getter holds the read lock.
type Viper struct {
	mu sync.RWMutex
	v  *viper.Viper

	watcher   *fsnotify.Watcher
	watchDone chan struct{}
	closeOnce sync.Once
}

// ViperOption customizes NewViper.
type ViperOption func(*viperOptions)

type viperOptions struct {
	aliases  map[string][]string
	defaults map[string]any
	dotenv   []string
	watch    bool
}

// WithEnvAlias binds key to additional environment variable names.
func WithEnvAlias(key string, envs ...string) ViperOption {
	return func(o *viperOptions) {
		o.aliases[key] = append(o.aliases[key], envs...)
	}
}

// WithDefault sets the value used when neither env nor file provide key.
func WithDefault(key string, value any) ViperOption {
	return func(o *viperOptions) {
		o.defaults[key] = value
	}
}

// WithDotEnv loads the given .env files into the process environment before
// reading. Missing files are ignored.
func WithDotEnv(files ...string) ViperOption {
	return func(o *viperOptions) {
		o.dotenv = append(o.dotenv, files...)
	}
}

// WithoutWatch disables reloading the config file on change.
func WithoutWatch() ViperOption {
	return func(o *viperOptions) {
		o.watch = false
	}
}

// NewViper loads configuration from the given file path and returns a Viper-backed Config.
//
// The config file type is inferred by Viper from the filename extension. A
// missing file is not an error so the service can run from environment only.
func NewViper(pathFile string, opts ...ViperOption) (*Viper, error) {
	o := &viperOptions{
		aliases:  make(map[string][]string),
		defaults: make(map[string]any),
		watch:    true,
	}
	for _, opt := range opts {
		opt(o)
	}

	for _, file := range o.dotenv {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	v := viper.New()
	if err := bindEnv(v, o); err != nil {
		return nil, err
	}

	vc := &Viper{v: v}
	if strings.TrimSpace(pathFile) == "" {
		return vc, nil
	}

	filename := path.Base(pathFile)
	filePath := path.Dir(pathFile)

	configName := path.Base(filename[:len(filename)-len(path.Ext(filename))])

	v.AddConfigPath(filePath)
	v.SetConfigName(configName)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			slog.Warn("config file not found, using environment only", "path", pathFile)
			return vc, nil
		}
		return nil, err
	}

	if o.watch {
		if err := vc.watch(v.ConfigFileUsed()); err != nil {
			return nil, err
		}
	}

	return vc, nil
}

// watch reloads file whenever it is written or recreated. The parent
// directory is watched so editors that replace the file are noticed too.
func (vc *Viper) watch(file string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	file = filepath.Clean(file)
	if err := w.Add(filepath.Dir(file)); err != nil {
		_ = w.Close()
		return err
	}

	vc.watcher = w
	vc.watchDone = make(chan struct{})

	go func() {
		defer close(vc.watchDone)

		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != file || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				vc.reload(file)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Error("config watcher failed", "path", file, "error", err)
			}
		}
	}()

	return nil
}

func (vc *Viper) reload(file string) {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	if err := vc.v.ReadInConfig(); err != nil {
		slog.Error("config reload failed", "path", file, "error", err)
		return
	}
	slog.Info("config success reloaded", "path", file)
}

// NewViperFromBytes loads configuration from memory and returns a Viper-backed Config.
// configType should be a format supported by Viper (e.g. "yaml", "json", "toml").
func NewViperFromBytes(configType string, data []byte, opts ...ViperOption) (*Viper, error) {
	if strings.TrimSpace(configType) == "" {
		return nil, errors.New("config type is required")
	}

	o := &viperOptions{
		aliases:  make(map[string][]string),
		defaults: make(map[string]any),
	}
	for _, opt := range opts {
		opt(o)
	}

	v := viper.New()
	v.SetConfigType(configType)
	if err := bindEnv(v, o); err != nil {
		return nil, err
	}

	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, err
	}

	return &Viper{v: v}, nil
}

func bindEnv(v *viper.Viper, o *viperOptions) error {
	for key, value := range o.defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, envs := range o.aliases {
		// BindEnv drops the automatic name once explicit names are given.
		names := append([]string{key}, strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
		names = append(names, envs...)
		if err := v.BindEnv(names...); err != nil {
			return err
		}
	}

	return nil
}

// GetInt returns the value for key as int.
func (vc *Viper) GetInt(key string) int {
	vc.mu.RLock()
	defer vc.mu.RUnlock()
	return vc.v.GetInt(key)
}

// GetBool returns the value for key as bool.
func (vc *Viper) GetBool(key string) bool {
	vc.mu.RLock()
	defer vc.mu.RUnlock()
	return vc.v.GetBool(key)
}

// GetFloat64 returns the value for key as float64.
func (vc *Viper) GetFloat64(key string) float64 {
	vc.mu.RLock()
	defer vc.mu.RUnlock()
	return vc.v.GetFloat64(key)
}

// GetSecond returns the value for key as seconds.
func (vc *Viper) GetSecond(key string) time.Duration {
	vc.mu.RLock()
	defer vc.mu.RUnlock()
	return time.Duration(vc.v.GetInt64(key)) * time.Second
}

// GetString returns the value for key as string.
func (vc *Viper) GetString(key string) string {
	vc.mu.RLock()
	defer vc.mu.RUnlock()
	return vc.v.GetString(key)
}

// GetArray returns the value for key split by commas.
//
// Elements are trimmed and empty elements dropped, so an unset key yields nil.
func (vc *Viper) GetArray(key string) []string {
	var out []string
	for _, item := range strings.Split(vc.GetString(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Close stops watching the config file.
func (vc *Viper) Close() error {
	var err error
	vc.closeOnce.Do(func() {
		if vc.watcher == nil {
			return
		}
		err = vc.watcher.Close()
		<-vc.watchDone
	})
	return err
}
