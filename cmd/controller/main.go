package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"controlplane/config"
	"controlplane/controller"
	"controlplane/installer"
)

// log init
func init() {
	logDir := "./logs"
	os.MkdirAll(logDir, 0755)

	// Log rotation with lumberjack
	fileLogger := &lumberjack.Logger{
		Filename:   logDir + "/controller.log",
		MaxSize:    100, // MB
		MaxBackups: 7,
		MaxAge:     30, // Days
		Compress:   true,
	}

	// Output to both file and stdout (for systemd)
	multiWriter := io.MultiWriter(os.Stdout, fileLogger)
	log.SetOutput(multiWriter)

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetLevel(log.InfoLevel)

	log.Infof("Logging initialized: file=%s/controller.log, stdout=enabled", logDir)
}

func main() {
	cfg, err := config.Load("controller_config.toml")
	if err != nil {
		log.Warnf("loading configuration failed, using defaults: %v", err)
		cfg = config.Default()
	}
	if level, lerr := log.ParseLevel(cfg.Log.Level); lerr == nil {
		log.SetLevel(level)
	}

	// The switch session attaches externally; without one, flow programs
	// are logged only.
	ctl, err := controller.New(cfg, installer.Logging{}, nil)
	if err != nil {
		log.Fatalf("building controller failed, err:%v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ctl.Start(ctx); err != nil {
		log.Fatalf("starting controller failed, err:%v", err)
		return
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	log.Infof("controller init success")
	<-signalChan
	log.Infof("received signal, shutting down")
	cancel()
	ctl.Stop()
	time.Sleep(100 * time.Millisecond)
}
