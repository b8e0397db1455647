// Command canbridge attaches to a CAN bus, decodes packed signals per
// a mapping configuration and republishes the decoded values under
// symbolic destination paths: into the journal, the latest-value
// cache, the HTTP API and the live tail stream.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/canbridge/internal/api"
	"github.com/banshee-data/canbridge/internal/canbus"
	"github.com/banshee-data/canbridge/internal/config"
	"github.com/banshee-data/canbridge/internal/convert"
	"github.com/banshee-data/canbridge/internal/journal"
	"github.com/banshee-data/canbridge/internal/replay"
	"github.com/banshee-data/canbridge/internal/timeutil"
)

// Overridden at link time with -ldflags -X.
var (
	buildVersion = "dev"
	buildSHA     = "unknown"
	buildTime    = "unknown"
)

var (
	configPath  = flag.String("config", "", "Path to daemon config JSON (flags override file values)")
	busKind     = flag.String("bus", "", "Bus kind: virtual, slcan, socketcan or udp")
	device      = flag.String("device", "", "Serial device (slcan) or CAN interface name (socketcan)")
	bitrate     = flag.Int("bitrate", 0, "Bus bitrate for slcan adapters")
	udpGroup    = flag.String("udp-group", "", "Multicast group for the udp bus")
	receiveOwn  = flag.Bool("receive-own", false, "Loop sent frames back to the receive path")
	mappingPath = flag.String("mapping", "", "Path to the JSON mapping table")
	dbcPath     = flag.String("dbc", "", "Optional DBC file merged over the mapping table")
	journalPath = flag.String("db", "", "Path to the SQLite signal journal")
	bufferCap   = flag.Int("buffer", 0, "Frame ring buffer capacity")
	listen      = flag.String("listen", "", "HTTP listen address")
	logInterval = flag.String("log-interval", "", "Interval between throughput log lines, e.g. 60s")
	replayPath  = flag.String("replay", "", "Capture file fed onto the bus at startup")
	replaySpeed = flag.Float64("replay-speed", 1.0, "Replay speed multiplier (0 = as fast as possible)")
	logSignals  = flag.Bool("log-signals", false, "Log every decoded value (bring-up aid)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("canbridge %s (%s, built %s)\n", buildVersion, buildSHA, buildTime)
		return
	}

	cfg := loadConfig()

	// Subcommand dispatch before any hardware is touched.
	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "migrate":
			journal.RunMigrateCommand(args[1:], cfg.GetJournalPath())
			return
		default:
			log.Fatalf("unknown command %q (did you mean 'migrate'?)", args[0])
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	j, err := journal.Open(cfg.GetJournalPath())
	if err != nil {
		log.Fatalf("Failed to open journal %s: %v", cfg.GetJournalPath(), err)
	}
	defer j.Close()
	if err := j.MigrateUp(); err != nil {
		log.Fatalf("Failed to migrate journal schema: %v", err)
	}

	table := convert.NewTable()
	if path := cfg.GetMappingPath(); path != "" {
		if err := table.LoadFile(path); err != nil {
			log.Fatalf("Failed to load mapping table %s: %v", path, err)
		}
	}
	if path := cfg.GetDBCPath(); path != "" {
		if err := table.LoadDBC(path); err != nil {
			log.Fatalf("Failed to load DBC %s: %v", path, err)
		}
	}
	messages := table.Messages()
	signals := 0
	for _, def := range messages {
		signals += len(def.Signals)
	}
	log.Printf("mapping table ready: %d messages, %d signals", len(messages), signals)

	bus, replayBus, err := openBus(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open %s bus: %v", cfg.GetBus(), err)
	}
	defer bus.Close()

	if _, err := j.StartSession(cfg.GetBus(), cfg.GetDevice()); err != nil {
		log.Fatalf("Failed to start journal session: %v", err)
	}

	buffer, err := canbus.NewRxBuffer(cfg.GetBufferCapacity())
	if err != nil {
		log.Fatalf("Failed to create frame buffer: %v", err)
	}
	defer buffer.Shutdown()

	engine := convert.NewEngine(table)
	latest := convert.NewLatest()
	tail := canbus.NewTail()

	publishers := []canbus.Publisher{latest, tail, j}
	if *logSignals {
		publishers = append(publishers, canbus.LogPublisher{})
	}

	pump, err := canbus.NewPump(canbus.PumpConfig{
		Bus:         bus,
		Buffer:      buffer,
		Converter:   engine,
		Publishers:  publishers,
		LogInterval: cfg.GetLogInterval(),
	})
	if err != nil {
		log.Fatalf("Failed to create pump: %v", err)
	}

	var wg sync.WaitGroup

	// run the pump routine to drive the receive side of the bus
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := pump.Run(ctx); err != nil && err != context.Canceled && err != canbus.ErrBusClosed {
			log.Printf("pump terminated: %v", err)
		}
		log.Print("pump routine terminated")
	}()

	// feed a capture onto the bus when one is configured
	if path := cfg.GetReplayPath(); path != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := replay.NewReplayer(replayBus, cfg.GetReplaySpeed(), timeutil.RealClock{})
			if err != nil {
				log.Printf("replay setup failed: %v", err)
				return
			}
			if err := r.Replay(ctx, path); err != nil && err != context.Canceled {
				log.Printf("replay of %s stopped: %v", path, err)
			}
			log.Printf("replayed %d frames from %s", r.Sent(), path)
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		srv := api.NewServer(api.ServerConfig{
			Table:       table,
			Engine:      engine,
			Buffer:      buffer,
			Latest:      latest,
			Journal:     j,
			Bus:         bus,
			Pump:        pump,
			Tail:        tail,
			MappingPath: cfg.GetMappingPath(),
			DBCPath:     cfg.GetDBCPath(),
		})
		mux := srv.ServeMux()
		srv.AttachAdminRoutes(mux)
		j.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    cfg.GetListen(),
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("HTTP server listening on %s", cfg.GetListen())
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	<-ctx.Done()
	// Closing the bus unblocks the pump's Receive so the wait below
	// cannot hang on a transport without read deadlines.
	bus.Close()

	wg.Wait()
	engine.LogStats()
	log.Printf("Graceful shutdown complete")
}

// loadConfig reads the config file when one is given, then lays any
// explicitly-set flags over it. Flags always win.
func loadConfig() *config.DaemonConfig {
	cfg := config.EmptyDaemonConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadDaemonConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config %s: %v", *configPath, err)
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "bus":
			cfg.Bus = busKind
		case "device":
			cfg.Device = device
		case "bitrate":
			cfg.Bitrate = bitrate
		case "udp-group":
			cfg.UDPGroup = udpGroup
		case "receive-own":
			cfg.ReceiveOwn = receiveOwn
		case "mapping":
			cfg.MappingPath = mappingPath
		case "dbc":
			cfg.DBCPath = dbcPath
		case "db":
			cfg.JournalPath = journalPath
		case "buffer":
			cfg.BufferCapacity = bufferCap
		case "listen":
			cfg.Listen = listen
		case "log-interval":
			cfg.LogInterval = logInterval
		case "replay":
			cfg.ReplayPath = replayPath
		case "replay-speed":
			cfg.ReplaySpeed = replaySpeed
		}
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

// openBus opens the configured transport. The second bus is where a
// replayed capture is sent: on the virtual bus that is a separate
// endpoint so the pump's endpoint receives the frames; on real
// transports the capture goes out over the same bus.
func openBus(ctx context.Context, cfg *config.DaemonConfig) (canbus.Bus, canbus.Bus, error) {
	switch cfg.GetBus() {
	case config.BusVirtual:
		hub := canbus.NewVirtualBus()
		ep, err := hub.Endpoint(cfg.GetReceiveOwn())
		if err != nil {
			return nil, nil, err
		}
		feed, err := hub.Endpoint(false)
		if err != nil {
			return nil, nil, err
		}
		return ep, feed, nil
	case config.BusSLCAN:
		bus, err := canbus.DialSLCAN(cfg.GetDevice(), cfg.GetBitrate())
		if err != nil {
			return nil, nil, err
		}
		return bus, bus, nil
	case config.BusSocketCAN:
		bus, err := dialSocketCAN(ctx, cfg.GetDevice())
		if err != nil {
			return nil, nil, err
		}
		return bus, bus, nil
	case config.BusUDP:
		bus, err := canbus.DialUDP(cfg.GetUDPGroup(), cfg.GetReceiveOwn())
		if err != nil {
			return nil, nil, err
		}
		return bus, bus, nil
	default:
		return nil, nil, fmt.Errorf("unknown bus kind %q", cfg.GetBus())
	}
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: canbridge [flags] [migrate <up|down|status|force>]\n\nFlags:\n")
		flag.PrintDefaults()
	}
}
