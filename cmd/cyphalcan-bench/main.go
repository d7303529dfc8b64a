// SPDX-FileCopyrightText: © 2026 cyphalgo contributors
// SPDX-License-Identifier: MIT

// Command cyphalcan-bench is a demonstration and benchmark harness for the
// cyphalcan transport library. It builds one Instance and one TxQueue from a
// TOML config, pushes a sequence of transfers, feeds the resulting frames
// straight back into RxAccept in memory, and reports delivered, dropped and
// expired counts. It never touches a CAN socket or any real hardware: the
// "transport" here is the harness's own loop.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/carlmjohnson/versioninfo"
	"github.com/charmbracelet/log"
	"github.com/fxamacker/cbor/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cyphalgo/cyphalcan"
)

type subscriptionConfig struct {
	Kind              string `toml:"kind"`
	PortID            uint16 `toml:"port_id"`
	Extent            int    `toml:"extent"`
	TransferIDTimeout int64  `toml:"transfer_id_timeout_ns"`
}

type config struct {
	QueueCapacity     int                  `toml:"queue_capacity"`
	MTU               int                  `toml:"mtu"`
	LocalNodeID       uint8                `toml:"local_node_id"`
	TransferIDTimeout int64                `toml:"transfer_id_timeout_ns"`
	MetricsListen     string               `toml:"metrics_listen"`
	FixtureFile       string               `toml:"fixture_file"`
	Subscriptions     []subscriptionConfig `toml:"subscriptions"`
}

// fixtureTransfer is the CBOR-encoded shape of one synthetic transfer in a
// fixture file, round-tripped through the harness's own loopback loop.
type fixtureTransfer struct {
	Kind       string `cbor:"kind"`
	PortID     uint16 `cbor:"port_id"`
	Priority   uint8  `cbor:"priority"`
	TransferID uint8  `cbor:"transfer_id"`
	Payload    []byte `cbor:"payload"`
}

func kindFromString(s string) (cyphalcan.TransferKind, error) {
	switch s {
	case "message":
		return cyphalcan.TransferKindMessage, nil
	case "response":
		return cyphalcan.TransferKindResponse, nil
	case "request":
		return cyphalcan.TransferKindRequest, nil
	default:
		return 0, fmt.Errorf("unknown transfer kind %q", s)
	}
}

func loadFixture(path string) ([]fixtureTransfer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var transfers []fixtureTransfer
	if err := cbor.Unmarshal(raw, &transfers); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	return transfers, nil
}

// pseudoFixture generates a deterministic sequence of transfers when no
// fixture file is configured, cycling payload sizes across the presentation
// layer MTU boundary so both single- and multi-frame paths are exercised.
func pseudoFixture(cfg *config) []fixtureTransfer {
	var out []fixtureTransfer
	sizes := []int{1, 4, 7, 8, 20, 64, 200}
	for i, sub := range cfg.Subscriptions {
		for j, size := range sizes {
			payload := make([]byte, size)
			for k := range payload {
				payload[k] = byte((i + j + k) % 256)
			}
			out = append(out, fixtureTransfer{
				Kind:       sub.Kind,
				PortID:     sub.PortID,
				Priority:   uint8(cyphalcan.PriorityNominal),
				TransferID: uint8(j % (cyphalcan.TransferIDMax + 1)),
				Payload:    payload,
			})
		}
	}
	return out
}

type runStats struct {
	pushed    int
	delivered int
	dropped   int
	expired   int
}

func run(cfg *config, mylog *log.Logger) (runStats, error) {
	var stats runStats

	rec := cyphalcan.NewPrometheusRecorder(prometheus.DefaultRegisterer)

	memory := cyphalcan.DefaultMemoryResource()
	queue := cyphalcan.NewTxQueue(cfg.QueueCapacity, cfg.MTU, memory)
	queue.Logger = mylog.WithPrefix("tx")
	queue.Rec = rec

	ins := cyphalcan.NewInstance(memory)
	ins.NodeID = cfg.LocalNodeID
	ins.Logger = mylog.WithPrefix("rx")
	ins.Rec = rec

	for _, sub := range cfg.Subscriptions {
		kind, err := kindFromString(sub.Kind)
		if err != nil {
			return stats, err
		}
		timeout := sub.TransferIDTimeout
		if timeout == 0 {
			timeout = cfg.TransferIDTimeout
		}
		if _, _, err := ins.Subscribe(kind, sub.PortID, sub.Extent, timeout); err != nil {
			return stats, fmt.Errorf("subscribe port %d: %w", sub.PortID, err)
		}
	}

	var transfers []fixtureTransfer
	if cfg.FixtureFile != "" {
		loaded, err := loadFixture(cfg.FixtureFile)
		if err != nil {
			return stats, err
		}
		transfers = loaded
	} else {
		transfers = pseudoFixture(cfg)
	}

	for _, tr := range transfers {
		kind, err := kindFromString(tr.Kind)
		if err != nil {
			mylog.Warnf("skipping fixture transfer: %v", err)
			continue
		}
		md := &cyphalcan.TransferMetadata{
			Priority:     cyphalcan.Priority(tr.Priority),
			TransferKind: kind,
			PortID:       tr.PortID,
			RemoteNodeID: cyphalcan.NodeIDUnset,
			TransferID:   tr.TransferID,
		}
		if _, _, err := queue.Push(cfg.LocalNodeID, 0, md, tr.Payload, 0); err != nil {
			mylog.Warnf("push failed: %v", err)
			stats.dropped++
			continue
		}
		stats.pushed++
	}

	for {
		item := queue.Peek()
		if item == nil {
			break
		}
		_, delivered, err := ins.RxAccept(0, item.Frame.ExtendedCANID, item.Frame.Payload, 0)
		if err != nil {
			mylog.Warnf("rx accept failed: %v", err)
		} else if delivered {
			stats.delivered++
		}
		popped := queue.Pop(item)
		queue.Free(popped)
	}

	qs := queue.Stats()
	stats.expired += int(qs.DroppedFramesExpiry)
	stats.dropped += int(qs.DroppedFramesPoll)

	return stats, nil
}

func main() {
	configPath := flag.String("config", "", "path to a TOML harness config (required)")
	showVersion := flag.Bool("version", false, "print build info and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(versioninfo.Short())
		return
	}

	mylog := log.NewWithOptions(os.Stderr, log.Options{Prefix: "cyphalcan-bench"})

	if *configPath == "" {
		mylog.Fatal("-config is required")
	}

	var cfg config
	if _, err := toml.DecodeFile(*configPath, &cfg); err != nil {
		mylog.Fatalf("load config: %v", err)
	}
	if cfg.TransferIDTimeout == 0 {
		cfg.TransferIDTimeout = cyphalcan.DefaultTransferIDTimeout
	}

	if cfg.MetricsListen != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			mylog.Infof("metrics listening on %s", cfg.MetricsListen)
			if err := http.ListenAndServe(cfg.MetricsListen, nil); err != nil {
				mylog.Warnf("metrics server stopped: %v", err)
			}
		}()
	}

	stats, err := run(&cfg, mylog)
	if err != nil {
		mylog.Fatalf("run: %v", err)
	}

	mylog.Infof("pushed=%d delivered=%d dropped=%d expired=%d",
		stats.pushed, stats.delivered, stats.dropped, stats.expired)
}
