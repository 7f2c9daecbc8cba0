// Command simnode-load-test drives a running simnode's control-plane
// gRPC surface with concurrent CreateMatch calls and reports startup
// latency, adapted from the teacher's anvil-load-test (which spawns
// WorldInstance CRDs and polls for Running) to instead call CreateMatch
// directly and measure the RPC's own latency — simnode has no
// asynchronous provisioning phase to poll for.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/anvil-platform/simnode/internal/controlplane"
)

func main() {
	var addr string
	var numMatches int
	var moduleName string

	flag.StringVar(&addr, "addr", "127.0.0.1:7420", "simnode control-plane address")
	flag.IntVar(&numMatches, "matches", 10, "number of matches to create concurrently")
	flag.StringVar(&moduleName, "module", "", "module name to enable on each match's container (optional)")
	flag.Parse()

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("dialing %s: %v", addr, err)
	}
	defer conn.Close()
	client := controlplane.NewClient(conn)

	fmt.Printf("Starting load test: %d matches against %s\n", numMatches, addr)

	var modules []string
	if moduleName != "" {
		modules = []string{moduleName}
	}

	var wg sync.WaitGroup
	start := time.Now()
	latencies := make(chan time.Duration, numMatches)
	errs := make(chan error, numMatches)

	for i := 0; i < numMatches; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			matchID := fmt.Sprintf("load-test-match-%d-%d", time.Now().UnixNano(), id)

			createStart := time.Now()
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if _, err := client.CreateMatch(ctx, "", matchID, modules); err != nil {
				errs <- fmt.Errorf("match %s: %w", matchID, err)
				return
			}
			latency := time.Since(createStart)
			latencies <- latency
			fmt.Printf("match %s created in %v\n", matchID, latency)
		}(i)
	}

	wg.Wait()
	close(latencies)
	close(errs)
	totalDuration := time.Since(start)

	errCount := 0
	for err := range errs {
		fmt.Printf("error: %v\n", err)
		errCount++
	}

	var totalLatency time.Duration
	count := 0
	for l := range latencies {
		totalLatency += l
		count++
	}

	if count > 0 {
		avgLatency := totalLatency / time.Duration(count)
		fmt.Printf("Load test completed in %v. %d succeeded, %d failed. Avg create latency: %v\n",
			totalDuration, count, errCount, avgLatency)
	} else {
		fmt.Printf("Load test completed in %v. No matches created successfully.\n", totalDuration)
	}
}
