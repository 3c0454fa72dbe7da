// Command loadtest drives many concurrent clients against a running
// account server. Each worker registers its own account and cycles
// login/profile/logout; in conflict mode two clients per account fight
// over the same login with FORCE_LOGIN, exercising the takeover path.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Achbite/Server-System/pkg/protocol"
	"golang.org/x/sync/errgroup"
)

var (
	commandsSent atomic.Int64
	errorsSeen   atomic.Int64
	conflictsHit atomic.Int64
	kicksSeen    atomic.Int64
)

type testClient struct {
	conn   net.Conn
	framer *protocol.Framer
}

func dial(addr string) (*testClient, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, err
	}
	framer := protocol.NewFramer(conn)

	// Consume the WELCOME frame.
	if _, err := framer.ReadLine(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("no welcome frame: %w", err)
	}
	return &testClient{conn: conn, framer: framer}, nil
}

func (c *testClient) close() {
	c.conn.Close()
}

// roundTrip sends one command and returns the next response frame.
// Asynchronous KICKED notices are counted and skipped.
func (c *testClient) roundTrip(m protocol.Message) (protocol.Message, error) {
	if err := c.framer.WriteMessage(m); err != nil {
		return protocol.Message{}, err
	}
	commandsSent.Add(1)

	for {
		line, err := c.framer.ReadLine()
		if err != nil {
			return protocol.Message{}, err
		}
		resp := protocol.ParseMessage(line)
		if resp.Command == protocol.RespKicked {
			kicksSeen.Add(1)
			continue
		}
		return resp, nil
	}
}

// runBasic is one worker's steady-state loop: register once, then
// login / set / get / logout per iteration.
func runBasic(ctx context.Context, addr string, id int, iterations int) error {
	account := fmt.Sprintf("load_%d", id)
	password := "hunter2"

	c, err := dial(addr)
	if err != nil {
		return err
	}
	defer c.close()

	resp, err := c.roundTrip(protocol.NewMessage(protocol.CmdRegister, account, password))
	if err != nil {
		return err
	}
	if resp.Command == protocol.RespError && !strings.Contains(strings.Join(resp.Params, " "), "exists") {
		errorsSeen.Add(1)
	}

	for i := 0; i < iterations; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		steps := []protocol.Message{
			protocol.NewMessage(protocol.CmdLogin, account, password),
			protocol.NewMessage(protocol.CmdSetString, fmt.Sprintf("iteration %d", i)),
			protocol.NewMessage(protocol.CmdGetString),
			protocol.NewMessage(protocol.CmdLogout),
		}
		for _, step := range steps {
			resp, err := c.roundTrip(step)
			if err != nil {
				return err
			}
			if resp.Command == protocol.RespError {
				errorsSeen.Add(1)
			}
		}
	}

	_, err = c.roundTrip(protocol.NewMessage(protocol.CmdQuit))
	return err
}

// runConflict has a pair of clients repeatedly steal the same account
// from each other with FORCE_LOGIN.
func runConflict(ctx context.Context, addr string, pair int, iterations int) error {
	account := fmt.Sprintf("fight_%d", pair)
	password := "hunter2"

	a, err := dial(addr)
	if err != nil {
		return err
	}
	defer a.close()
	b, err := dial(addr)
	if err != nil {
		return err
	}
	defer b.close()

	if _, err := a.roundTrip(protocol.NewMessage(protocol.CmdRegister, account, password)); err != nil {
		return err
	}

	clients := []*testClient{a, b}
	for i := 0; i < iterations; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c := clients[i%2]
		resp, err := c.roundTrip(protocol.NewMessage(protocol.CmdLogin, account, password))
		if err != nil {
			return err
		}
		if resp.Command == protocol.RespConflict {
			conflictsHit.Add(1)
			resp, err = c.roundTrip(protocol.NewMessage(protocol.CmdForceLogin, account, password, "Y"))
			if err != nil {
				return err
			}
		}
		if resp.Command == protocol.RespError {
			errorsSeen.Add(1)
		}
	}
	return nil
}

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "Server address")
	clients := flag.Int("clients", 50, "Number of concurrent basic clients")
	pairs := flag.Int("pairs", 10, "Number of conflict pairs")
	iterations := flag.Int("iterations", 100, "Iterations per client")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall test timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < *clients; i++ {
		id := i
		g.Go(func() error {
			return runBasic(ctx, *addr, id, *iterations)
		})
	}
	for i := 0; i < *pairs; i++ {
		pair := i
		g.Go(func() error {
			return runConflict(ctx, *addr, pair, *iterations)
		})
	}

	if err := g.Wait(); err != nil {
		log.Printf("loadtest aborted: %v", err)
	}

	elapsed := time.Since(start)
	sent := commandsSent.Load()
	log.Printf("done in %v", elapsed.Round(time.Millisecond))
	log.Printf("commands: %d (%.0f/s)", sent, float64(sent)/elapsed.Seconds())
	log.Printf("conflicts: %d, kicks observed: %d, errors: %d",
		conflictsHit.Load(), kicksSeen.Load(), errorsSeen.Load())
}
