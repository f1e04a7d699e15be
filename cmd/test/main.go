package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"signal-relay/src/models"
	"signal-relay/src/protocol"
	"signal-relay/src/utils"
)

// -----------------------------------------------------------------------------

// EA simulator. Speaks the same framed protocol MT5 EAs do, so it works
// against both the main server and the bridge. With no -action it runs the
// full scenario: a bad-auth probe, a BUY burst, a ping, and a CLOSE of the
// first opened signal.

const responseTimeout = 10 * time.Second

var (
	addr     = flag.String("addr", "127.0.0.1:5200", "server address")
	secret   = flag.String("secret", "", "secret key (defaults to SECRET_KEY env)")
	action   = flag.String("action", "", "BUY, SELL, CLOSE or ping; empty runs the full scenario")
	symbol   = flag.String("symbol", "EURUSD", "symbol to trade")
	price    = flag.Float64("price", 1.085, "signal price")
	openID   = flag.Int64("open", 0, "open signal id, required with -action CLOSE")
	count    = flag.Int("count", 1, "how many signals to send")
	interval = flag.Duration("interval", 2*time.Second, "pause between signals")
)

// -----------------------------------------------------------------------------

func main() {
	flag.Parse()

	if *secret == "" {
		*secret = os.Getenv("SECRET_KEY")
	}
	if *secret == "" {
		fmt.Println("No secret key. Pass -secret or set SECRET_KEY.")
		os.Exit(1)
	}

	var err error
	switch strings.ToUpper(*action) {
	case "":
		err = runScenario()
	case "PING":
		err = runSingle(models.MEnvelope{"type": utils.TypePing})
	case utils.ActionClose:
		if *openID == 0 {
			fmt.Println("CLOSE needs -open <signal id>.")
			os.Exit(1)
		}
		err = runBurst(utils.ActionClose)
	case utils.ActionBuy, utils.ActionSell:
		err = runBurst(strings.ToUpper(*action))
	default:
		fmt.Printf("Unknown action %q.\n", *action)
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("FAILED: %v\n", err)
		os.Exit(1)
	}
}

// -----------------------------------------------------------------------------

// runScenario walks the whole protocol the way a live EA would.
func runScenario() error {

	// 1. Probe with a wrong key first; the server must reject and hang up.
	fmt.Println("--- bad-auth probe ---")
	if conn, err := dial(); err == nil {
		reply, probeErr := exchange(conn, models.MEnvelope{"secret_key": *secret + "-wrong"})
		conn.Close()
		if probeErr == nil && reply.Status() == utils.StatusSuccess {
			return fmt.Errorf("server accepted a wrong secret key")
		}
		fmt.Println("rejected as expected")
	}

	// 2. The real session.
	fmt.Println("--- session ---")
	conn, err := connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	// 3. BUY burst. Remember the first granted id for the CLOSE below.
	var firstID int64
	for i := 0; i < *count; i++ {
		reply, err := exchange(conn, signalEnvelope(utils.ActionBuy))
		if err != nil {
			return err
		}
		if firstID == 0 && reply.Status() == utils.StatusSuccess {
			firstID = int64(reply.Float("signal_id"))
		}
		if i < *count-1 {
			time.Sleep(*interval)
		}
	}

	// 4. Heartbeat.
	if _, err := exchange(conn, models.MEnvelope{"type": utils.TypePing}); err != nil {
		return err
	}

	// 5. Close the first trade, if the server granted one.
	if firstID == 0 {
		fmt.Println("no signal id granted, skipping CLOSE")
		return nil
	}
	time.Sleep(*interval)
	env := signalEnvelope(utils.ActionClose)
	env["open_signal_id"] = firstID
	_, err = exchange(conn, env)
	return err
}

// -----------------------------------------------------------------------------

// runBurst sends count frames of one action over a single session.
func runBurst(act string) error {
	conn, err := connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	for i := 0; i < *count; i++ {
		env := signalEnvelope(act)
		if act == utils.ActionClose {
			env["open_signal_id"] = *openID
		}
		if _, err := exchange(conn, env); err != nil {
			return err
		}
		if i < *count-1 {
			time.Sleep(*interval)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func runSingle(env models.MEnvelope) error {
	conn, err := connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = exchange(conn, env)
	return err
}

// -----------------------------------------------------------------------------

// connect dials and authenticates in one go.
func connect() (net.Conn, error) {
	conn, err := dial()
	if err != nil {
		return nil, err
	}

	reply, err := exchange(conn, models.MEnvelope{"secret_key": *secret})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("auth: %w", err)
	}
	if reply.Status() != utils.StatusSuccess {
		conn.Close()
		return nil, fmt.Errorf("auth rejected: %s", reply.Str("message"))
	}
	return conn, nil
}

// -----------------------------------------------------------------------------

func dial() (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", *addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", *addr, err)
	}
	return conn, nil
}

// -----------------------------------------------------------------------------

// exchange writes one frame and waits for one frame back, printing both.
func exchange(conn net.Conn, env models.MEnvelope) (models.MEnvelope, error) {
	fmt.Printf("-> %s\n", compact(env))

	if err := conn.SetDeadline(time.Now().Add(responseTimeout)); err != nil {
		return nil, err
	}
	if err := protocol.WriteMessage(conn, env); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	reply, err := protocol.ReadMessage(conn, protocol.DefaultMaxFrameBytes)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	fmt.Printf("<- %s\n", compact(reply))
	return reply, nil
}

// -----------------------------------------------------------------------------

func signalEnvelope(act string) models.MEnvelope {
	return models.MEnvelope{
		"action":        act,
		"symbol":        *symbol,
		"price":         *price,
		"client_msg_id": uuid.NewString(),
	}
}

// -----------------------------------------------------------------------------

func compact(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
