package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/omochice/talkwave/internal/api"
	"github.com/omochice/talkwave/internal/chat"
	"github.com/omochice/talkwave/internal/client"
	"github.com/omochice/talkwave/internal/config"
	"github.com/omochice/talkwave/pkg/protocol"
)

const help = `Commands:
  /login <username> <password>
  /register <username> <email> <password>
  /logout
  /rooms                  list your rooms
  /public                 list public rooms you can join
  /join <id>              join a public room
  /create <name> [desc]   create a room
  /private <name> [desc]  create a private room
  /open <id>              switch to a room
  /typing                 tell the room you are typing
  /dismiss                clear the current notice
  /quit
Anything else is sent to the active room.`

func main() {
	var cfg config.Client
	if err := config.ParseEnv(&cfg); err != nil {
		config.Exitf("Failed to load config: %v", err)
	}

	flag.StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Chat server URL (e.g., http://localhost:8080)")
	flag.StringVar(&cfg.WireFormat, "format", cfg.WireFormat, "Wire format for realtime frames (json or proto)")
	flag.Parse()

	format, err := protocol.ParseFormat(cfg.WireFormat)
	if err != nil {
		config.Exitf("Invalid wire format: %v", err)
	}

	apiClient, err := api.New(cfg.ServerURL, cfg.RequestTimeout)
	if err != nil {
		config.Exitf("Failed to create API client: %v", err)
	}
	transport := client.NewWebSocketClient(client.Options{
		URL:              cfg.SocketURL(),
		Header:           apiClient.SessionHeader,
		Format:           format,
		DialTimeout:      cfg.DialTimeout,
		ReconnectInitial: cfg.ReconnectInitial,
		ReconnectMax:     cfg.ReconnectMax,
	})

	v := &view{}
	sess := chat.NewSession(apiClient, transport, chat.Options{
		TypingTimeout: cfg.TypingTimeout,
		NoticeTTL:     cfg.NoticeTTL,
	}, chat.ObserverFunc(v.render))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.Run(ctx)
	}()

	if err := sess.RestoreSession(); err != nil {
		log.Printf("Failed to restore session: %v", err)
	}

	fmt.Println(help)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "/quit" || text == "/exit" {
			break
		}
		if err := run(sess, v, text); err != nil {
			fmt.Printf("! %v\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		log.Printf("Error reading input: %v", err)
	}

	cancel()
	<-done
	log.Println("Disconnected from server")
}

func run(sess *chat.Session, v *view, line string) error {
	if !strings.HasPrefix(line, "/") {
		return sess.SendMessage(line)
	}

	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "/login":
		if len(args) != 2 {
			return fmt.Errorf("usage: /login <username> <password>")
		}
		return sess.Login(args[0], args[1])
	case "/register":
		if len(args) != 3 {
			return fmt.Errorf("usage: /register <username> <email> <password>")
		}
		return sess.Register(args[0], args[1], args[2])
	case "/logout":
		return sess.Logout()
	case "/rooms", "/public":
		snap, err := sess.Snapshot()
		if err != nil {
			return err
		}
		if cmd == "/public" {
			v.await(publicRooms, snap.PublicRoomsLoads)
			return sess.ShowPublicRooms()
		}
		v.await(myRooms, snap.MyRoomsLoads)
		return sess.ShowMyRooms()
	case "/join", "/open":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s <id>", cmd)
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid room id %q", args[0])
		}
		if cmd == "/join" {
			return sess.JoinPublicRoom(id)
		}
		return sess.SelectRoom(id)
	case "/create", "/private":
		if len(args) == 0 {
			return fmt.Errorf("usage: %s <name> [description]", cmd)
		}
		return sess.CreateRoom(args[0], strings.Join(args[1:], " "), cmd == "/private")
	case "/typing":
		return sess.NotifyTyping()
	case "/dismiss":
		return sess.DismissNotice()
	case "/help":
		fmt.Println(help)
		return nil
	}
	return fmt.Errorf("unknown command %s, try /help", cmd)
}

type listing int

const (
	noListing listing = iota
	myRooms
	publicRooms
)

// view prints what changed between two snapshots.
type view struct {
	mu    sync.Mutex
	last  chat.Snapshot
	shown int

	// pending is printed once its list has loaded more than since times.
	pending listing
	since   uint64
}

func (v *view) await(l listing, since uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pending, v.since = l, since
}

func (v *view) render(s chat.Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if s.Auth != v.last.Auth && s.Auth == chat.Authenticated {
		fmt.Printf("*** Signed in as %s ***\n", s.Identity.Username)
	}
	if s.Auth != v.last.Auth && s.Auth == chat.Unauthenticated && v.last.Auth != chat.Authenticating {
		fmt.Println("*** Signed out ***")
	}
	if s.Connected != v.last.Connected && s.Auth == chat.Authenticated {
		if s.Connected {
			fmt.Println("*** Connected ***")
		} else {
			fmt.Println("*** Connection lost, reconnecting ***")
		}
	}

	if s.ActiveRoomID != v.last.ActiveRoomID || s.Room != v.last.Room {
		v.shown = 0
		if s.Room == chat.RoomActive {
			fmt.Printf("=== #%d %s ===\n", s.ActiveRoomID, s.ActiveRoom)
		}
	}
	if s.Room == chat.RoomActive {
		if len(s.Messages) < v.shown {
			v.shown = 0
		}
		for _, m := range s.Messages[v.shown:] {
			fmt.Printf("[%s]: %s\n", m.Author(), m.Content)
		}
		v.shown = len(s.Messages)
	}

	if s.Typing != v.last.Typing && s.Typing != "" {
		fmt.Printf("... %s\n", s.Typing)
	}
	if s.Notice != nil && (v.last.Notice == nil || *s.Notice != *v.last.Notice) {
		fmt.Printf("! %s\n", s.Notice.Text)
	}

	switch {
	case v.pending == myRooms && s.MyRoomsLoads > v.since:
		printRooms("Your rooms", s.MyRooms, s)
		v.pending = noListing
	case v.pending == publicRooms && s.PublicRoomsLoads > v.since:
		printRooms("Public rooms", s.PublicRooms, s)
		v.pending = noListing
	}

	v.last = s
}

func printRooms(title string, rooms []protocol.Room, s chat.Snapshot) {
	fmt.Printf("%s:\n", title)
	if len(rooms) == 0 {
		fmt.Println("  (none)")
	}
	for _, r := range rooms {
		marker := " "
		if s.IsActive(r.ID) {
			marker = "*"
		}
		fmt.Printf(" %s #%d %s - %s\n", marker, r.ID, r.Name, r.Preview())
	}
}
