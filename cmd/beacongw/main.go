package main

import (
	"errors"
	"flag"
	"os"

	"github.com/golang/glog"

	"github.com/robotalks/beacongw/pkg/gateway"
)

//go-build: CGO_ENABLED=0

var configFile string

func init() {
	gateway.SetupFlags()
	flag.StringVar(&configFile, "config", configFile, "YAML file overriding flags.")
}

func exit(code gateway.ExitCode) {
	glog.Flush()
	os.Exit(int(code))
}

func main() {
	flag.Parse()
	conf := gateway.NewConfig()
	if configFile != "" {
		if err := conf.LoadFile(configFile); err != nil {
			glog.Errorf("config: %v", err)
			exit(gateway.InitConfig)
		}
	}

	g := gateway.New(conf)
	if err := g.Init(); err != nil {
		glog.Errorf("init: %v", err)
		code := gateway.MainEventLoopFail
		var initErr *gateway.InitError
		if errors.As(err, &initErr) {
			code = initErr.Code
		}
		g.Close()
		exit(code)
	}

	stopSignals := g.HandleSignals()
	code := g.Run()
	stopSignals()
	if err := g.Close(); err != nil {
		glog.Warningf("close: %v", err)
	}
	exit(code)
}
