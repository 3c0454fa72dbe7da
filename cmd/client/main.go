// Command client is a minimal line client for the account server: it
// connects, prints every server frame, and sends each stdin line as a
// raw protocol message (e.g. "LOGIN|alice|pw1"). Menus and prompting
// are intentionally absent; this is a transport pump for manual testing.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/Achbite/Server-System/pkg/protocol"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "Server address")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect failed: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	framer := protocol.NewFramer(conn)
	framer.ReadTimeout = 0 // interactive use, no read deadline

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			line, err := framer.ReadLine()
			if err != nil {
				fmt.Fprintln(os.Stderr, "connection closed")
				return
			}
			fmt.Println(line)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := framer.WriteLine(line); err != nil {
			fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
			break
		}
		if protocol.ParseMessage(line).Command == protocol.CmdQuit {
			break
		}
	}

	<-done
}
