//go:build unix

package cmd

import (
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/andydunstall/dgram"
	"github.com/andydunstall/dgram/eval/pkg/cluster"
	"github.com/andydunstall/dgram/reactor"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	echoCmd.Flags().StringVar(&echoAddr, "addr", "127.0.0.1:8119", "address to listen on")
	rootCmd.AddCommand(echoCmd)
}

var echoAddr string

var echoCmd = &cobra.Command{
	Use:   "echo",
	Short: "Run a single echo node until interrupted",
	Run: func(cmd *cobra.Command, args []string) {
		host, portStr, err := net.SplitHostPort(echoAddr)
		if err != nil {
			log.Fatalf("invalid addr %q: %v", echoAddr, err)
		}
		portNum, err := strconv.Atoi(portStr)
		if err != nil {
			log.Fatalf("invalid port %q: %v", portStr, err)
		}

		logger, err := zap.NewDevelopment()
		if err != nil {
			log.Fatalf("failed to create logger: %v", err)
		}

		r, err := reactor.New(reactor.WithLogger(logger))
		if err != nil {
			log.Fatalf("failed to create reactor: %v", err)
		}

		port, err := dgram.NewPort(
			portNum,
			cluster.NewEchoProtocol(logger),
			r,
			dgram.WithInterface(host),
			dgram.WithLogger(logger),
		)
		if err != nil {
			log.Fatalf("failed to create port: %v", err)
		}
		if err := port.StartListening(); err != nil {
			log.Fatalf("failed to listen: %v", err)
		}
		log.Printf("echo node listening on %s", port.LocalAddr())

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			r.ScheduleAfter(0, func() {
				if completion := port.StopListening(); completion != nil {
					go func() {
						<-completion.Done()
						r.Stop()
					}()
				} else {
					r.Stop()
				}
			})
		}()

		r.Run()
		r.Close()
	},
}
