// Command apteryxc sends one echo request to an apteryxd instance and
// prints the response payload.
package main

import (
	"flag"
	"log"
	"time"

	"github.com/ShimQ88/apteryx/client"
	"github.com/ShimQ88/apteryx/service"
)

func main() {
	url := flag.String("url", "unix:///tmp/apteryxd.sock", "address to connect to")
	payload := flag.String("payload", "hello", "payload to echo")
	timeout := flag.Duration("timeout", time.Second, "receive timeout")
	flag.Parse()

	desc := &service.Descriptor{Methods: []service.Method{
		{Input: service.RawBytes, Output: service.RawBytes},
	}}

	c, err := client.Connect(*url, desc, client.WithTimeout(*timeout))
	if err != nil {
		log.Fatalf("apteryxc: connect %s: %v", *url, err)
	}
	defer c.Close()

	c.Invoke(0, []byte(*payload), func(resp interface{}) {
		out, _ := resp.([]byte)
		if out == nil {
			log.Fatalf("apteryxc: no response")
		}
		log.Printf("apteryxc: %s", out)
	})
}
