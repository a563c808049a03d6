package config

import (
	"github.com/spf13/pflag"
)

// Flag names registered by RegisterFlags.
const (
	FlagName     = "name"
	FlagHost     = "host"
	FlagPort     = "port"
	FlagBackend  = "backend"
	FlagPlayer   = "player"
	FlagDevice   = "device"
	FlagAutoPlay = "autoplay"
	FlagCache    = "cache"
	FlagLogLevel = "log-level"
)

// RegisterFlags defines the flags that override configuration values on
// fs. Flag defaults are taken from Default and only flags set explicitly
// take effect in ApplyFlags.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()

	fs.String(FlagName, d.Name, "friendly name of the renderer")
	fs.String(FlagHost, d.Host, "address to listen on")
	fs.IntP(FlagPort, "p", d.Port, "port to listen on")
	fs.StringP(FlagBackend, "b", d.Backend, "media backend: mpris, gcast or none")
	fs.String(FlagPlayer, d.MPRIS.Player, "MPRIS player bus name")
	fs.String(FlagDevice, d.Cast.Device, "Google Cast device name")
	fs.Bool(FlagAutoPlay, d.Renderer.AutoPlay, "start playback as soon as a URI is set")
	fs.Bool(FlagCache, d.Pipeline.Cache.Enabled, "download media that fails to stream")
	fs.String(FlagLogLevel, d.Log.Level, "log level: debug, info, warn or error")
}

// ApplyFlags copies the values of flags set on fs into the config.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	var err error

	if fs.Changed(FlagName) {
		if c.Name, err = fs.GetString(FlagName); err != nil {
			return err
		}
	}
	if fs.Changed(FlagHost) {
		if c.Host, err = fs.GetString(FlagHost); err != nil {
			return err
		}
	}
	if fs.Changed(FlagPort) {
		if c.Port, err = fs.GetInt(FlagPort); err != nil {
			return err
		}
	}
	if fs.Changed(FlagBackend) {
		if c.Backend, err = fs.GetString(FlagBackend); err != nil {
			return err
		}
	}
	if fs.Changed(FlagPlayer) {
		if c.MPRIS.Player, err = fs.GetString(FlagPlayer); err != nil {
			return err
		}
	}
	if fs.Changed(FlagDevice) {
		if c.Cast.Device, err = fs.GetString(FlagDevice); err != nil {
			return err
		}
	}
	if fs.Changed(FlagAutoPlay) {
		if c.Renderer.AutoPlay, err = fs.GetBool(FlagAutoPlay); err != nil {
			return err
		}
	}
	if fs.Changed(FlagCache) {
		if c.Pipeline.Cache.Enabled, err = fs.GetBool(FlagCache); err != nil {
			return err
		}
	}
	if fs.Changed(FlagLogLevel) {
		if c.Log.Level, err = fs.GetString(FlagLogLevel); err != nil {
			return err
		}
	}

	return nil
}
