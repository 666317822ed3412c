// Demo PLC running against the virtual transport. Loads the slave
// topology from a YAML config, brings the bus to OPERATIONAL and runs
// a small counting program until interrupted.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/fieldforge/goecat/pkg/config"
	"github.com/fieldforge/goecat/pkg/image"
	"github.com/fieldforge/goecat/pkg/master"
	"github.com/fieldforge/goecat/pkg/plc"
	"github.com/fieldforge/goecat/pkg/transport/virtual"
	log "github.com/sirupsen/logrus"
)

var DEFAULT_CONFIG_PATH = "plc.yml"

func main() {
	configPath := flag.String("c", DEFAULT_CONFIG_PATH, "config file path")
	debug := flag.Bool("d", false, "enable debug logging")
	flag.Parse()

	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config failed : %v", err)
	}
	slaves, err := cfg.MappedSlaves()
	if err != nil {
		log.Fatalf("resolving device files failed : %v", err)
	}

	transport := virtual.NewTransport()
	table, err := transport.Configure(slaves)
	if err != nil {
		log.Fatalf("configuring bus failed : %v", err)
	}

	controller, err := plc.NewBuilder(cfg.Plc.Name).
		CycleTime(cfg.CycleTime()).
		ReceiveTimeout(cfg.ReceiveTimeout()).
		ExternSize(cfg.Plc.ExternSize).
		WithServer(cfg.Plc.ServerAddr).
		Transport(transport).
		Mapping(table).
		MasterConfig(master.Config{
			GateCycles:     cfg.Plc.GateCycles,
			FaultThreshold: cfg.Plc.FaultThreshold,
		}).
		Build()
	if err != nil {
		log.Fatalf("building plc failed : %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info("shutting down")
		cancel()
	}()

	outputs := outputSignals(table.Signals())
	counter := uint16(0)
	err = controller.Run(ctx, func(img *image.Image, ext []byte, mst *master.Master) {
		if mst.State() != master.StateOperational {
			return
		}
		// walk a counter over every output signal the topology offers
		counter++
		for _, name := range outputs {
			sig, _ := img.Lookup(name)
			switch sig.Type {
			case image.BOOLEAN:
				_ = img.Set(name, counter%2 == 0)
			case image.UNSIGNED16:
				_ = img.Set(name, counter)
			case image.UNSIGNED32:
				_ = img.Set(name, uint32(counter))
			}
		}
	})
	if err != nil && err != context.Canceled {
		log.Errorf("cyclic loop ended : %v", err)
	}
	if err := controller.Close(); err != nil {
		log.Errorf("shutdown failed : %v", err)
	}
}

func outputSignals(signals []image.Signal) []string {
	var names []string
	for _, sig := range signals {
		if sig.Dir == image.DirOutput {
			names = append(names, sig.Name)
		}
	}
	return names
}
