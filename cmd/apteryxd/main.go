// Command apteryxd runs a minimal echo server for manual smoke testing of
// the transport: method 0 returns its input payload unchanged.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ShimQ88/apteryx/server"
	"github.com/ShimQ88/apteryx/service"
)

type echoService struct{}

func (echoService) Descriptor() *service.Descriptor {
	return &service.Descriptor{Methods: []service.Method{
		{Input: service.RawBytes, Output: service.RawBytes},
	}}
}

func (echoService) Invoke(methodIndex uint32, input interface{}, closure service.Closure) {
	closure(input)
}

func main() {
	url := flag.String("url", "unix:///tmp/apteryxd.sock", "address to bind")
	workers := flag.Int("workers", 4, "worker pool size (0 = inline)")
	flag.Parse()

	s, err := server.New(echoService{}, server.WithWorkers(*workers))
	if err != nil {
		log.Fatalf("apteryxd: %v", err)
	}
	if err := s.BindURL(*url); err != nil {
		log.Fatalf("apteryxd: bind %s: %v", *url, err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		s.Stop()
	}()

	log.Printf("apteryxd: listening on %s", *url)
	if err := s.ProvideService(); err != nil {
		log.Fatalf("apteryxd: %v", err)
	}
}
