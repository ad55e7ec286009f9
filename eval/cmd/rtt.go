//go:build unix

package cmd

import (
	"log"
	"net"
	"time"

	"github.com/andydunstall/dgram/eval/pkg/cluster"
	"github.com/spf13/cobra"
)

func init() {
	rttCmd.Flags().IntVar(&rttNodes, "nodes", 8, "number of echo nodes")
	rttCmd.Flags().IntVar(&rttSamples, "samples", 100, "datagrams sent per node")
	rootCmd.AddCommand(rttCmd)
}

var (
	rttNodes   int
	rttSamples int
)

var rttCmd = &cobra.Command{
	Use:   "rtt",
	Short: "Measure round-trip latency through a cluster of echo nodes",
	Run: func(cmd *cobra.Command, args []string) {
		c, err := cluster.NewCluster()
		if err != nil {
			log.Fatalf("failed to create cluster: %v", err)
		}
		defer c.Shutdown()

		if err := c.AddNodes(rttNodes); err != nil {
			log.Fatalf("failed to add nodes: %v", err)
		}

		var (
			min   time.Duration
			max   time.Duration
			total time.Duration
			count int
		)
		buf := make([]byte, 512)
		for _, addr := range c.Addrs() {
			conn, err := net.Dial("udp", addr)
			if err != nil {
				log.Fatalf("failed to dial node %s: %v", addr, err)
			}
			for i := 0; i != rttSamples; i++ {
				start := time.Now()
				if _, err := conn.Write([]byte("ping")); err != nil {
					log.Fatalf("failed to write to node %s: %v", addr, err)
				}
				conn.SetReadDeadline(time.Now().Add(time.Second * 3))
				if _, err := conn.Read(buf); err != nil {
					log.Fatalf("failed to read echo from node %s: %v", addr, err)
				}
				rtt := time.Since(start)

				if count == 0 || rtt < min {
					min = rtt
				}
				if rtt > max {
					max = rtt
				}
				total += rtt
				count++
			}
			conn.Close()
		}

		log.Printf(
			"rtt over %d samples: min %v avg %v max %v",
			count, min, total/time.Duration(count), max,
		)
	},
}
