package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/joho/godotenv"

	"chat-relay/protocol"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress string `env:"CHAT_SERVER_ADDR,default=localhost:5000"`
	// Self-signed server certificates are the common case for this tool.
	InsecureSkipVerify bool `env:"CHAT_INSECURE_SKIP_VERIFY,default=true"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run connects, claims the username given as the first argument, then maps
// stdin lines to envelopes:
//
//	/msg <user> <text>   private message
//	/file <path>         upload a file
//	/search <keyword>    substring search over the log
//	anything else        group message
func run() (int, error) {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if len(os.Args) < 2 {
		return exitConfig, fmt.Errorf("usage: %s <username>", filepath.Base(os.Args[0]))
	}
	username := strings.TrimSpace(os.Args[1])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := tls.Dial("tcp", config.ServerAddress, &tls.Config{
		InsecureSkipVerify: config.InsecureSkipVerify,
	})
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to %s: %w", config.ServerAddress, err)
	}
	defer func() { _ = conn.Close() }()
	codecStop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer codecStop()

	codec := protocol.NewCodec(conn)
	if err := codec.WriteIdentity(username); err != nil {
		return exitRuntime, fmt.Errorf("handshake failed: %w", err)
	}
	color.Greenln(">>> Connected to", config.ServerAddress, "as", username, "(Ctrl+C to quit)")

	recvErr := make(chan error, 1)
	go func() { recvErr <- receive(codec) }()
	go send(codec)

	select {
	case <-ctx.Done():
		return exitOK, nil
	case err := <-recvErr:
		if err != nil && ctx.Err() == nil {
			return exitRuntime, err
		}
		return exitOK, nil
	}
}

// receive prints inbound envelopes until the stream ends.
func receive(codec *protocol.Codec) error {
	for {
		envelope, err := codec.ReadEnvelope()
		if err != nil {
			return err
		}
		switch envelope.Type {
		case protocol.TypeError:
			color.Redln("!!", envelope.Message)
			return nil
		case protocol.TypeStatus:
			color.Yellowln("** online:", strings.Join(envelope.Users, ", "))
		case protocol.TypeHistory:
			for _, entry := range envelope.Messages {
				printHistory(entry)
			}
		case protocol.TypeGroup:
			color.White.Println(fmt.Sprintf("[%s] %s", envelope.Sender, envelope.Content))
		case protocol.TypePrivate:
			color.Magentaln(fmt.Sprintf("[%s → you] %s", envelope.Sender, envelope.Content))
		case protocol.TypeFile:
			color.Cyanln(fmt.Sprintf("[%s] sent file %s (%d bytes encoded)",
				envelope.Sender, envelope.Filename, len(envelope.Filedata)))
		case protocol.TypeTyping:
			color.Grayln(envelope.Sender, "is typing...")
		case protocol.TypeSearchResult:
			color.Yellowln("--", len(envelope.Results), "result(s)")
			for _, result := range envelope.Results {
				color.White.Println(fmt.Sprintf("  %s  %s: %s", result.Timestamp, result.Sender, result.Content))
			}
		}
	}
}

// printHistory renders one replayed history entry.
func printHistory(entry protocol.HistoryEntry) {
	color.Grayln(fmt.Sprintf("  %s  %s: %s", entry.Timestamp, entry.Sender, entry.Content))
}

// send reads stdin and writes envelopes until stdin closes.
func send(codec *protocol.Codec) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		envelope, err := parseLine(line)
		if err != nil {
			color.Redln("!!", err)
			continue
		}
		if err := codec.WriteEnvelope(envelope); err != nil {
			color.Redln("!! send failed:", err)
			return
		}
	}
}

func parseLine(line string) (protocol.Envelope, error) {
	switch {
	case strings.HasPrefix(line, "/msg "):
		parts := strings.SplitN(strings.TrimPrefix(line, "/msg "), " ", 2)
		if len(parts) != 2 {
			return protocol.Envelope{}, fmt.Errorf("usage: /msg <user> <text>")
		}
		return protocol.Envelope{Type: protocol.TypePrivate, To: parts[0], Content: parts[1]}, nil
	case strings.HasPrefix(line, "/file "):
		path := strings.TrimSpace(strings.TrimPrefix(line, "/file "))
		data, err := os.ReadFile(path)
		if err != nil {
			return protocol.Envelope{}, fmt.Errorf("read %s: %w", path, err)
		}
		return protocol.Envelope{
			Type:     protocol.TypeFile,
			Filename: filepath.Base(path),
			Filedata: base64.StdEncoding.EncodeToString(data),
		}, nil
	case strings.HasPrefix(line, "/search "):
		return protocol.Envelope{Type: protocol.TypeSearch, Content: strings.TrimPrefix(line, "/search ")}, nil
	case strings.HasPrefix(line, "/"):
		return protocol.Envelope{}, fmt.Errorf("unknown command %q", strings.Fields(line)[0])
	default:
		return protocol.Envelope{Type: protocol.TypeGroup, Content: line}, nil
	}
}
