// Package adminconsole implements the admin TCP console of spec §6.4: a
// 4-byte big-endian length-prefixed ASCII line protocol for reading and
// mutating the bribe policy at runtime.
package adminconsole

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"math/big"
	"net"
	"strconv"
	"strings"

	"github.com/sandodex/sandosearcher/internal/bribe"
)

// Server accepts TCP connections and serves the config/bribe-test/close
// line protocol against a shared bribe.Store.
type Server struct {
	bribes   *bribe.Store
	listener net.Listener
}

// Listen binds addr and returns a Server ready to Serve.
func Listen(addr string, bribes *bribe.Store) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("adminconsole: listen %s: %w", addr, err)
	}
	return &Server{bribes: bribes, listener: ln}, nil
}

// Serve accepts connections until the listener is closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if strings.Contains(err.Error(), "use of closed network connection") {
				return nil
			}
			return fmt.Errorf("adminconsole: accept: %w", err)
		}
		go s.handle(conn)
	}
}

func (s *Server) Close() error { return s.listener.Close() }

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	for {
		line, err := readFrame(conn)
		if err != nil {
			if err != io.EOF {
				log.Printf("adminconsole: read frame: %v", err)
			}
			return
		}
		reply, shouldClose := s.dispatch(strings.TrimSpace(line))
		if err := writeFrame(conn, reply); err != nil {
			log.Printf("adminconsole: write frame: %v", err)
			return
		}
		if shouldClose {
			return
		}
	}
}

func (s *Server) dispatch(line string) (reply string, shouldClose bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "error: empty command", false
	}

	switch fields[0] {
	case "close", "exit":
		return "bye", true
	case "config":
		return s.dispatchConfig(fields[1:]), false
	case "test":
		if len(fields) >= 3 && fields[1] == "bribe" {
			return s.dispatchTestBribe(fields[2]), false
		}
		return "error: usage: test bribe <revenue_wei>", false
	default:
		return fmt.Sprintf("error: unknown command %q", fields[0]), false
	}
}

func (s *Server) dispatchConfig(args []string) string {
	if len(args) == 0 {
		return "error: usage: config list|get <key>|set <key> <value>"
	}
	policy := s.bribes.Get()
	switch args[0] {
	case "list":
		return fmt.Sprintf("strategy=%s status=%s overpay_base=%g overpay_float=%g ratio_bp=%s ratio_float_bp=%s",
			policy.Strategy, policy.Status, policy.OverpayBase, policy.OverpayFloat,
			bigOrDash(policy.RatioBP), bigOrDash(policy.RatioFloatBP))
	case "get":
		if len(args) != 2 {
			return "error: usage: config get <key>"
		}
		return s.getField(policy, args[1])
	case "set":
		if len(args) != 3 {
			return "error: usage: config set <key> <value>"
		}
		if err := s.bribes.SetField(args[1], args[2]); err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		return "ok"
	default:
		return fmt.Sprintf("error: unknown config subcommand %q", args[0])
	}
}

func (s *Server) getField(p bribe.Policy, key string) string {
	switch key {
	case "strategy":
		return p.Strategy.String()
	case "status":
		return p.Status.String()
	case "overpay_base":
		return strconv.FormatFloat(p.OverpayBase, 'g', -1, 64)
	case "overpay_float":
		return strconv.FormatFloat(p.OverpayFloat, 'g', -1, 64)
	case "ratio_bp":
		return bigOrDash(p.RatioBP)
	case "ratio_float_bp":
		return bigOrDash(p.RatioFloatBP)
	default:
		return fmt.Sprintf("error: unknown config key %q", key)
	}
}

func (s *Server) dispatchTestBribe(revenueStr string) string {
	revenue, ok := new(big.Int).SetString(revenueStr, 10)
	if !ok {
		return fmt.Sprintf("error: invalid revenue_wei %q", revenueStr)
	}
	bribeAmount := s.bribes.Compute(revenue)
	return bribeAmount.String()
}

func bigOrDash(v *big.Int) string {
	if v == nil {
		return "-"
	}
	return v.String()
}

func readFrame(r io.Reader) (string, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeFrame(w io.Writer, s string) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}
