// iax2server runs a demo IAX2 registrar. It accepts registrations, then
// drives a call, a text message and a lag measurement against the peer
// named in its config, printing every event it sees.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/arzzra/iax2/pkg/iax2/command"
	"github.com/arzzra/iax2/pkg/iax2/event"
	"github.com/arzzra/iax2/pkg/iax2/frame"
	"github.com/arzzra/iax2/pkg/iax2/peer"
)

func main() {
	viper.SetConfigName("iax2server")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/iax2")
	viper.SetEnvPrefix("iax2")
	viper.AutomaticEnv()

	viper.SetDefault("port", peer.DefaultPort)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("capabilities", []string{"SLINEAR"})
	viper.SetDefault("call_peer", "test_client")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
	}

	setupLogging(viper.GetString("log_level"))

	s := peer.NewServer(uint16(viper.GetUint32("port")))
	s.SetCapabilities(capabilitiesFromConfig(viper.GetStringSlice("capabilities")))

	s.RegisterEventHandler(func(ev *event.Event) {
		fmt.Println(ev)
		if ev.Type() == event.TypeLag {
			fmt.Printf("Lag Data: %d milliseconds (total round trip time)\n", ev.Uint())
		}
	})

	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ready)
	}()
	<-ready
	slog.Info("server running", "addr", s.LocalAddr())

	// Give the client a few seconds to register, then exercise a call, a
	// text frame and a lag measurement against it.
	uri := "iax2:" + viper.GetString("call_peer")

	time.Sleep(3 * time.Second)
	callNum := s.NewCall(uri)

	time.Sleep(3 * time.Second)
	s.SendCommand(command.NewString(command.TypeText, callNum, "Testing text frame"))

	time.Sleep(3 * time.Second)
	s.NewLag(uri)

	if err := <-done; err != nil {
		slog.Error("server exited", "error", err)
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
