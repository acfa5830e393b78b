// Package config persists engine settings as JSON.
package config

import (
	"io/ioutil"
	"os"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/rigado/rfcomm"
)

// Config is the on-disk form of the engine options. Zero fields keep the
// engine defaults.
type Config struct {
	Credits       int      `json:"credits,omitempty"`
	SendQueueSize int      `json:"sendQueueSize,omitempty"`
	ConnTimeout   Duration `json:"connTimeout,omitempty"`
	DiscTimeout   Duration `json:"discTimeout,omitempty"`
	IdleTimeout   Duration `json:"idleTimeout,omitempty"`
	LogLevel      string   `json:"logLevel,omitempty"`

	// Servers lists channels to register and the security they require.
	Servers []Server `json:"servers,omitempty"`
}

type Server struct {
	Channel  uint8                `json:"channel"`
	Security rfcomm.SecurityLevel `json:"security"`
	MTU      int                  `json:"mtu,omitempty"`
}

// Duration reads and writes time.Duration as a string such as "20s".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return jsoniter.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := jsoniter.Unmarshal(b, &s); err != nil {
		return errors.Wrap(err, "duration must be a string")
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Default returns the settings the engine uses without a file.
func Default() Config {
	return Config{
		Credits:       rfcomm.DefaultCredits,
		SendQueueSize: rfcomm.DefaultSendQueueSize,
		ConnTimeout:   Duration(rfcomm.DefaultConnTimeout),
		DiscTimeout:   Duration(rfcomm.DefaultDiscTimeout),
		IdleTimeout:   Duration(rfcomm.DefaultIdleTimeout),
		LogLevel:      "info",
	}
}

// Options converts c to engine options.
func (c Config) Options() []rfcomm.Option {
	var opts []rfcomm.Option
	if c.Credits != 0 {
		opts = append(opts, rfcomm.OptCredits(c.Credits))
	}
	if c.SendQueueSize != 0 {
		opts = append(opts, rfcomm.OptSendQueueSize(c.SendQueueSize))
	}
	if c.ConnTimeout != 0 || c.DiscTimeout != 0 || c.IdleTimeout != 0 {
		opts = append(opts, rfcomm.OptTimeouts(time.Duration(c.ConnTimeout), time.Duration(c.DiscTimeout), time.Duration(c.IdleTimeout)))
	}
	return opts
}

// File loads and stores a Config at a fixed path.
type File struct {
	filename string
	lock     sync.RWMutex
}

func NewFile(filename string) *File {
	return &File{filename: filename}
}

// Load returns the stored config, or Default if the file does not exist.
func (f *File) Load() (Config, error) {
	f.lock.RLock()
	defer f.lock.RUnlock()

	c := Default()
	in, err := ioutil.ReadFile(f.filename)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return Config{}, errors.Wrapf(err, "can't read %s", f.filename)
	}

	if err := jsoniter.Unmarshal(in, &c); err != nil {
		return Config{}, errors.Wrapf(err, "can't parse %s", f.filename)
	}
	for _, s := range c.Servers {
		if s.Channel < rfcomm.MinChannel || s.Channel > rfcomm.MaxChannel {
			return Config{}, errors.Wrapf(rfcomm.ErrInvalidChannel, "%s: channel %d", f.filename, s.Channel)
		}
	}
	return c, nil
}

// Store replaces the file with c.
func (f *File) Store(c Config) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return errors.Wrapf(ioutil.WriteFile(f.filename, out, 0644), "can't write %s", f.filename)
}

// Clear removes the file.
func (f *File) Clear() error {
	f.lock.Lock()
	defer f.lock.Unlock()

	err := os.Remove(f.filename)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
