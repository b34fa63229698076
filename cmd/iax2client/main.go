// iax2client runs a demo IAX2 client: it registers with a registrar,
// answers whatever the registrar throws at it, and pushes a small video
// payload once a call is established.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/viper"

	"github.com/arzzra/iax2/pkg/iax2/command"
	"github.com/arzzra/iax2/pkg/iax2/event"
	"github.com/arzzra/iax2/pkg/iax2/frame"
	"github.com/arzzra/iax2/pkg/iax2/peer"
)

func main() {
	viper.SetConfigName("iax2client")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/iax2")
	viper.SetEnvPrefix("iax2")
	viper.AutomaticEnv()

	viper.SetDefault("port", peer.DefaultPort+1)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("username", "test_client")
	viper.SetDefault("registrar.host", "127.0.0.1")
	viper.SetDefault("registrar.port", peer.DefaultPort)
	viper.SetDefault("capabilities", []string{"SLINEAR", "ULAW", "ALAW"})

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
	}

	setupLogging(viper.GetString("log_level"))

	c := peer.NewClient(uint16(viper.GetUint32("port")))
	c.SetCapabilities(capabilitiesFromConfig(viper.GetStringSlice("capabilities")))
	c.AddOutboundRegistration(
		viper.GetString("username"),
		viper.GetString("registrar.host"),
		uint16(viper.GetUint32("registrar.port")))

	var callNum atomic.Uint32
	c.RegisterEventHandler(func(ev *event.Event) {
		fmt.Println(ev)
		if ev.Type() == event.TypeCallEstablished {
			callNum.Store(uint32(ev.CallNum()))
		}
	})

	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ready)
	}()
	<-ready
	slog.Info("client running", "addr", c.LocalAddr())

	// Once the server has called us, test the video path with a fake
	// image payload.
	time.Sleep(6 * time.Second)
	if num := callNum.Load(); num != 0 {
		c.SendCommand(command.NewRaw(command.TypeVideo, uint16(num),
			[]byte{0x00, 0x01, 0x02, 0x03}))
	}

	if err := <-done; err != nil {
		slog.Error("client exited", "error", err)
		os.Exit(1)
	}
}

func capabilitiesFromConfig(names []string) uint32 {
	var mask uint32
	for _, name := range names {
		bit, ok := frame.FormatFromString(name)
		if !ok {
			slog.Warn("unknown codec in config", "codec", name)
			continue
		}
		mask |= bit
	}
	if mask == 0 {
		mask = frame.FormatSlinear
	}
	return mask
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr,
		&slog.HandlerOptions{Level: lvl})))
}
