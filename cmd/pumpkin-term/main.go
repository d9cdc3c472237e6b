// Command pumpkin-term is a minimal REPL client: it reads PScript text
// from stdin, compiles it, sends it to a running pumpkindbd, and prints
// back the terminal stack.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/pumpkindb/pumpkindb/internal/bytecode"
	"github.com/pumpkindb/pumpkindb/internal/wire"
)

func main() {
	flag.Parse()
	addr := "127.0.0.1:9981"
	if flag.NArg() > 0 {
		addr = flag.Arg(0)
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "can't connect to %s: %v\n", addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Printf("Connected to PumpkinDB at %s\n", addr)
	fmt.Println("End an expression with `.` to send it. Ctrl-D to quit.")

	r := wire.NewReader(conn)
	scanner := bufio.NewScanner(os.Stdin)
	var pending strings.Builder

	for {
		fmt.Print("PumpkinDB> ")
		if !scanner.Scan() {
			return
		}
		pending.WriteString(scanner.Text())
		pending.WriteByte('\n')

		if !strings.Contains(pending.String(), ".") {
			continue
		}
		src := pending.String()
		pending.Reset()

		if err := sendAndPrint(conn, r, src); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func sendAndPrint(conn net.Conn, r *wire.Reader, src string) error {
	programs, err := bytecode.CompilePrograms(src)
	if err != nil {
		return fmt.Errorf("compiling: %w", err)
	}

	for _, program := range programs {
		if err := wire.WriteFrame(conn, program); err != nil {
			return fmt.Errorf("sending: %w", err)
		}

		reply, err := r.ReadFrame()
		if err != nil {
			return fmt.Errorf("reading reply: %w", err)
		}
		printStack(reply)
	}
	return nil
}

func printStack(frame []byte) {
	toks, err := bytecode.Parse(frame)
	if err != nil {
		fmt.Printf("<malformed reply: %v>\n", err)
		return
	}
	if len(toks) == 0 {
		fmt.Println("<empty stack>")
		return
	}
	for i := len(toks) - 1; i >= 0; i-- {
		fmt.Printf("%d: %q\n", len(toks)-1-i, toks[i].Bytes)
	}
}
