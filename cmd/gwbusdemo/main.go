// Command gwbusdemo exercises the gwbus broker end to end outside of
// the unit tests: it builds a Broker, attaches a couple of trivial
// subscribers, publishes a handful of messages, and shuts down
// cleanly.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hexabus/gwbus/broker"
	"github.com/hexabus/gwbus/config"
	"github.com/hexabus/gwbus/message"
	"github.com/hexabus/gwbus/module"
)

func main() {
	var opts broker.Options
	var configSource string

	if len(os.Args) >= 2 {
		loaded, err := config.Load(os.Args[1])
		if err != nil {
			log.Fatalf("Failed to load config from %s: %v", os.Args[1], err)
		}
		opts = loaded
		configSource = fmt.Sprintf("config file: %s", os.Args[1])
	} else {
		opts = broker.DefaultOptions()
		configSource = "hardcoded defaults"
	}

	log.Printf("Starting gwbusdemo using %s (inbox_variant=%s)", configSource, opts.InboxVariant)

	b, err := broker.New(opts)
	if err != nil {
		log.Fatalf("Failed to create broker: %v", err)
	}
	defer b.DecRef()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	echoHandle := new(echoModule)
	if err := b.Attach(module.Subscriber{
		Handle:  echoHandle,
		Receive: echoHandle.receive,
		Start:   func(module.Handle) { log.Printf("echo module attached and ready") },
	}); err != nil {
		log.Fatalf("Failed to attach echo module: %v", err)
	}
	defer b.Detach(echoHandle)

	counterHandle := new(counterModule)
	if err := b.Attach(module.Subscriber{
		Handle:  counterHandle,
		Receive: counterHandle.receive,
	}); err != nil {
		log.Fatalf("Failed to attach counter module: %v", err)
	}
	defer b.Detach(counterHandle)

	log.Printf("Attached %d subscriber(s)", b.SubscriberCount())

	for i := 0; i < 5; i++ {
		m, err := message.New([]byte(fmt.Sprintf("tick-%d", i)), map[string]string{"seq": fmt.Sprintf("%d", i)})
		if err != nil {
			log.Printf("Failed to build message %d: %v", i, err)
			continue
		}
		if err := b.Publish(nil, m); err != nil {
			log.Printf("Publish %d reported a partial failure: %v", i, err)
		}
		m.Release()
		time.Sleep(20 * time.Millisecond)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %s, shutting down...", sig)
	case <-time.After(200 * time.Millisecond):
		log.Printf("Demo publication window elapsed, shutting down...")
	case <-ctx.Done():
	}

	log.Printf("counter module saw %d message(s)", counterHandle.count())
}

// echoModule logs every message it receives.
type echoModule struct{}

func (e *echoModule) receive(_ module.Handle, m *message.Message) {
	log.Printf("echo: %s %v", string(m.Content()), m.Properties())
}

// counterModule tallies deliveries. Receive calls for one subscriber
// are serialized by the broker, but count is read from main while the
// worker may still be delivering, so the tally carries its own lock.
type counterModule struct {
	mu sync.Mutex
	n  int
}

func (c *counterModule) receive(_ module.Handle, _ *message.Message) {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *counterModule) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
