// fpc-ping is a small demo client/server for the FPC transport: run
// one process with -listen, then point others at the same socket path
// to round-trip pings.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	fpc "github.com/ehrlich-b/go-fpc"
	"github.com/ehrlich-b/go-fpc/internal/logging"
)

func main() {
	var (
		path    = flag.String("socket", "/tmp/fpc-ping.sock", "Unix socket path")
		listen  = flag.Bool("listen", false, "Run the server side")
		payload = flag.String("payload", "hello", "Ping payload")
		count   = flag.Int("count", 3, "Number of pings to send")
		timeout = flag.Duration("timeout", 5*time.Second, "Per-request timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	logConfig := &logging.Config{Level: logging.LevelInfo}
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logging.SetDefault(logging.NewLogger(logConfig))

	if *listen {
		runServer(*path)
		return
	}
	runClient(*path, []byte(*payload), *count, *timeout)
}

func runServer(path string) {
	_ = os.Remove(path)
	l, err := fpc.Listen(path, nil)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer l.Stop()
	if err := l.Start(); err != nil {
		log.Fatalf("start listener: %v", err)
	}

	conns, err := l.Connections()
	if err != nil {
		log.Fatalf("connections: %v", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		l.Stop()
	}()

	fmt.Printf("listening on %s\n", path)
	for ep := range conns {
		go serve(ep)
	}
}

func serve(ep *fpc.Endpoint) {
	if err := ep.Start(); err != nil {
		log.Printf("start endpoint: %v", err)
		return
	}
	defer ep.Stop()

	if cred, err := ep.PeerCred(); err == nil {
		fmt.Printf("peer connected: pid=%d uid=%d gid=%d\n", cred.PID, cred.UID, cred.GID)
	}

	incoming, err := ep.Incoming()
	if err != nil {
		log.Printf("incoming: %v", err)
		return
	}
	for msg := range incoming {
		switch msg.ID {
		case fpc.MsgPing:
			if err := ep.Reply(msg.Token(), fpc.MsgPong, msg.Payload); err != nil {
				log.Printf("reply: %v", err)
				return
			}
		case fpc.MsgLookup:
			if err := ep.Reply(msg.Token(), fpc.MsgLookupReply, []byte(time.Now().String())); err != nil {
				log.Printf("reply: %v", err)
				return
			}
		default:
			if err := ep.Reply(msg.Token(), fpc.MsgError, []byte("unknown message")); err != nil {
				log.Printf("reply: %v", err)
				return
			}
		}
	}
}

func runClient(path string, payload []byte, count int, timeout time.Duration) {
	metrics := fpc.NewMetrics()
	ep, err := fpc.Dial(path, &fpc.EndpointConfig{Observer: metrics})
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer ep.Stop()
	if err := ep.Start(); err != nil {
		log.Fatalf("start: %v", err)
	}

	for i := 0; i < count; i++ {
		start := time.Now()
		reply, err := ep.Request(context.Background(), fpc.NewRequest(fpc.MsgPing, payload), timeout)
		if err != nil {
			log.Fatalf("request: %v", err)
		}
		fmt.Printf("%s %d bytes corr=%d time=%v\n", reply.ID, len(reply.Payload), reply.CorrelationID, time.Since(start))
	}

	s := metrics.Snapshot()
	fmt.Printf("sent=%d recv=%d avg=%v\n", s.SendOps, s.RecvOps, s.AvgRequestLatency)
}
