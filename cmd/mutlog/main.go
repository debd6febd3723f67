// Command mutlog dumps calibration ROM and logs live telemetry from
// Mitsubishi ECUs over a CAN adapter or a K-line serial cable.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/roffe/gocan"
	"github.com/roffe/gocan/adapter"

	"github.com/hirotools/mutlog/pkg/datalogger"
	"github.com/hirotools/mutlog/pkg/debug"
	"github.com/hirotools/mutlog/pkg/fuzzymatch"
	"github.com/hirotools/mutlog/pkg/kline"
	"github.com/hirotools/mutlog/pkg/mut"
	"github.com/hirotools/mutlog/pkg/rax"
)

var (
	configPath = flag.String("config", "mutlog.yaml", "config file path")
	mode       = flag.String("mode", "", "rom | log")
	outPath    = flag.String("out", "", "output file (ROM image or CSV)")
	pidNames   = flag.String("pids", "", "comma separated parameter names for log mode")
	listParams = flag.Bool("list", false, "list available live parameters")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	defer debug.Close()

	if *listParams {
		printParams()
		return
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "rom":
		err = dumpROM(ctx, cfg)
	case "log":
		err = logLive(ctx, cfg)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func printParams() {
	for _, b := range rax.Blocks {
		fmt.Printf("%s block:\n", b.Name)
		for _, p := range b.Params {
			fmt.Printf("  %-16s %s\n", p.Name, p.Unit)
		}
	}
}

// openProtocol builds the protocol set the configured transport
// allows and probes for a usable one.
func openProtocol(ctx context.Context, cfg *Config) (mut.Protocol, func(), error) {
	switch cfg.Transport {
	case mut.TransportCAN:
		dev, err := adapter.New(cfg.CAN.Adapter, &gocan.AdapterConfig{
			Port:         cfg.CAN.Port,
			PortBaudrate: cfg.CAN.Baudrate,
			CANRate:      cfg.CAN.Rate,
			CANFilter:    []uint32{mut.ECUID},
			OnMessage:    func(s string) { log.Println(s) },
			OnError:      func(err error) { log.Println(err) },
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create adapter: %w", err)
		}
		cl, err := gocan.NewClient(ctx, dev)
		if err != nil {
			return nil, nil, fmt.Errorf("open CAN client: %w", err)
		}
		uds := mut.NewUDSClient(cl, mut.UDSConfig{
			ROMStart:  cfg.ROM.Start,
			ROMSize:   cfg.ROM.Size,
			BlockSize: cfg.ROM.BlockSize,
			OnMessage: func(s string) { log.Println(s) },
		})
		p, err := mut.Select([]mut.Protocol{uds}, cfg.Transport)
		if err != nil {
			cl.Close()
			return nil, nil, err
		}
		return p, func() { cl.Close() }, nil
	case mut.TransportKLine:
		port, err := kline.OpenPort(cfg.Serial.Port, cfg.Serial.Baudrate)
		if err != nil {
			return nil, nil, err
		}
		conn := kline.NewConnection(port, kline.Config{
			OnMessage: func(s string) { debug.Log(s) },
		})
		mc := mut.NewMUTClient(conn, mut.SerialConfig{
			PollInterval: time.Duration(cfg.Logging.PollIntervalMs) * time.Millisecond,
			OnMessage:    func(s string) { log.Println(s) },
		})
		p, err := mut.Select([]mut.Protocol{mc}, cfg.Transport)
		if err != nil {
			port.Close()
			return nil, nil, err
		}
		return p, func() { port.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}

func dumpROM(ctx context.Context, cfg *Config) error {
	if *outPath == "" {
		return fmt.Errorf("rom mode needs -out")
	}
	p, closer, err := openProtocol(ctx, cfg)
	if err != nil {
		return err
	}
	defer closer()

	start := time.Now()
	rom, err := p.ReadROM(ctx, func(pr mut.Progress) {
		fmt.Printf("\r%3.0f%% (%d/%d bytes)", pr.PercentComplete, pr.BytesProcessed, pr.TotalBytes)
	})
	fmt.Println()
	if err != nil {
		return err
	}
	if err := os.WriteFile(*outPath, rom, 0644); err != nil {
		return err
	}
	log.Printf("wrote %d bytes to %s in %s", len(rom), *outPath, time.Since(start).Round(time.Second))
	return nil
}

func logLive(ctx context.Context, cfg *Config) error {
	if *outPath == "" {
		return fmt.Errorf("log mode needs -out")
	}
	pids, err := resolvePIDs(*pidNames)
	if err != nil {
		return err
	}

	p, closer, err := openProtocol(ctx, cfg)
	if err != nil {
		return err
	}
	defer closer()

	file, err := os.OpenFile(*outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	lw := datalogger.NewCSVWriter(file, pids)
	defer lw.Close()

	client := datalogger.New(datalogger.Config{
		Protocol:  p,
		PIDs:      pids,
		OnMessage: func(s string) { log.Println(s) },
		CaptureCounter: func(n int) {
			fmt.Printf("\r%d samples", n)
		},
		ErrorCounter: func(n int) {
			if n > 0 {
				log.Printf("%d dropped frames", n)
			}
		},
	}, lw)

	go func() {
		<-ctx.Done()
		client.Close()
	}()

	return client.Start(context.Background())
}

// resolvePIDs maps user-supplied parameter names to synthetic PIDs,
// accepting close misspellings.
func resolvePIDs(names string) ([]int, error) {
	if names == "" {
		return nil, fmt.Errorf("log mode needs -pids (see -list)")
	}

	pidByName := make(map[string]int)
	var candidates []string
	for bi, b := range rax.Blocks {
		for pi, p := range b.Params {
			pidByName[p.Name] = rax.SyntheticPID(bi, pi)
			candidates = append(candidates, p.Name)
		}
	}

	var pids []int
	for _, raw := range strings.Split(names, ",") {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if pid, ok := pidByName[name]; ok {
			pids = append(pids, pid)
			continue
		}
		matches := fuzzymatch.FindClosestMatches(name, candidates, 1, 3)
		if len(matches) == 0 {
			return nil, fmt.Errorf("unknown parameter %q (see -list)", name)
		}
		log.Printf("using %q for %q", matches[0].Name, name)
		pids = append(pids, pidByName[matches[0].Name])
	}
	if len(pids) == 0 {
		return nil, fmt.Errorf("no parameters resolved from %q", names)
	}
	return pids, nil
}
