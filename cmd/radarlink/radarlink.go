// Command radarlink streams measurement results from a radar sensor over a
// serial or TCP transport, optionally recording them to SQLite, and can
// replay an earlier recording without the sensor attached.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/radarlink/internal/config"
	"github.com/banshee-data/radarlink/internal/monitoring"
	"github.com/banshee-data/radarlink/internal/recorder"
	"github.com/banshee-data/radarlink/internal/regmap"
	"github.com/banshee-data/radarlink/internal/result"
	"github.com/banshee-data/radarlink/internal/session"
	"github.com/banshee-data/radarlink/internal/transport"
	"github.com/banshee-data/radarlink/internal/version"
)

var (
	serialPort  = flag.String("serial", "", "Serial device to use (e.g. /dev/ttyUSB0)")
	tcpAddr     = flag.String("tcp", "", "TCP address of a module server (e.g. 192.168.1.50:6110)")
	baudRate    = flag.Int("baud", 0, "Serial baud rate (0 uses the sensor default)")
	configPath  = flag.String("config", "", "Path to a client config JSON file")
	recordPath  = flag.String("record", "", "Record streamed results to this SQLite file")
	replayPath  = flag.String("replay", "", "Replay the latest recording from this SQLite file and exit")
	frameCount  = flag.Int("n", 0, "Stop after this many results (0 streams until interrupted)")
	metricsAddr = flag.String("metrics-listen", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("radarlink %s (%s)\n", version.Version, version.GitSHA)
		return
	}

	if *replayPath != "" {
		if err := replay(*replayPath); err != nil {
			log.Fatalf("replay failed: %v", err)
		}
		return
	}

	cfg := config.Empty()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	if cfg.Session == nil {
		log.Fatal("a session config is required; pass --config with a session block")
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", monitoring.MetricsHandler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Printf("metrics server stopped: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("%v", err)
	}
}

// openTransport applies the command line over the config file: flags win.
func openTransport(cfg *config.ClientConfig) (transport.Transport, error) {
	serialDev := *serialPort
	if serialDev == "" && cfg.SerialPort != nil {
		serialDev = *cfg.SerialPort
	}
	addr := *tcpAddr
	if addr == "" && cfg.TCPAddr != nil {
		addr = *cfg.TCPAddr
	}

	switch {
	case serialDev != "" && addr != "":
		return nil, fmt.Errorf("--serial and --tcp are mutually exclusive")
	case serialDev != "":
		baud := *baudRate
		if baud == 0 {
			baud = cfg.GetBaudRate()
		}
		return transport.OpenSerial(serialDev, transport.PortOptions{BaudRate: baud})
	case addr != "":
		return transport.DialTCP(addr, 5*time.Second)
	}
	return nil, fmt.Errorf("no transport selected; pass --serial or --tcp")
}

func run(ctx context.Context, cfg *config.ClientConfig) error {
	reg, err := regmap.DefaultRegistry()
	if err != nil {
		return fmt.Errorf("failed to load register schema: %w", err)
	}

	tr, err := openTransport(cfg)
	if err != nil {
		return err
	}

	s := session.New(reg, cfg.SessionOptions())
	if err := s.Connect(tr); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer s.Disconnect()

	info := s.ServerInfo()
	log.Printf("connected: firmware %s, %d sensor(s)", info.FirmwareVersion, info.SensorCount)

	meta, err := s.Configure(cfg.Session)
	if err != nil {
		return fmt.Errorf("failed to configure: %w", err)
	}
	log.Printf("configured %s: %d sweeps x %d points, base step %.4f m",
		cfg.Session.Mode, meta.SweepsPerFrame, meta.PointsPerSweep, meta.BaseStepLengthMeters)

	if *recordPath != "" {
		store, err := recorder.Open(*recordPath)
		if err != nil {
			return fmt.Errorf("failed to open recording store: %w", err)
		}
		defer store.Close()

		rec, err := store.StartRecording(info, cfg.Session, meta)
		if err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}
		defer func() {
			if err := rec.Close(); err != nil {
				log.Printf("failed to finalise recording: %v", err)
			} else {
				log.Printf("recorded to %s (recording %s)", *recordPath, rec.ID)
			}
		}()
		s.SetRecorder(rec)
	}

	if err := s.Start(); err != nil {
		return fmt.Errorf("failed to start streaming: %w", err)
	}
	defer s.Stop()

	delivered := 0
	for *frameCount == 0 || delivered < *frameCount {
		if ctx.Err() != nil {
			break
		}
		res, err := s.GetNext(time.Second)
		if err == session.ErrTimedOut {
			continue
		}
		if err != nil {
			return fmt.Errorf("stream ended: %w", err)
		}
		printResult(res)
		delivered++
	}
	log.Printf("streamed %d result(s), %d dropped", delivered, s.DropCount())
	return nil
}

func replay(path string) error {
	store, err := recorder.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	rp, err := store.OpenReplay("")
	if err != nil {
		return err
	}
	log.Printf("replaying %s: firmware %s, mode %s, %d result(s)",
		rp.ID, rp.Info.FirmwareVersion, rp.Config.Mode, rp.Count())

	for i := 0; i < rp.Count(); i++ {
		res, err := rp.ResultAt(i)
		if err != nil {
			return fmt.Errorf("failed to read result %d: %w", i, err)
		}
		printResult(res)
	}
	return nil
}

func printResult(r *result.Result) {
	line := fmt.Sprintf("tick=%d sensor=%d samples=%d", r.Tick, r.SensorID, len(r.Samples))
	if r.Status != 0 {
		line += " status=" + r.Status.String()
	}
	fmt.Fprintln(os.Stdout, line)
}
