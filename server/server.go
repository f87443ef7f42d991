package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
	"nhooyr.io/websocket"

	"netplay/pb"
	"netplay/utils"
)

var errSlowConsumer = errors.New("write would block")

type subscriber struct {
	Messages chan []byte
	PeerID   string
	Seq      uint64
	c        *websocket.Conn
	// slow is closed once Messages overflows; the connection's own goroutine
	// then closes the socket.
	slow     chan struct{}
	slowOnce sync.Once
}

func newSubscriber(peerID string, seq uint64, c *websocket.Conn) *subscriber {
	return &subscriber{
		Messages: make(chan []byte, 1024),
		PeerID:   peerID,
		Seq:      seq,
		c:        c,
		slow:     make(chan struct{}),
	}
}

func (sub *subscriber) markSlow() {
	sub.slowOnce.Do(func() { close(sub.slow) })
}

type room struct {
	name        string
	capacity    int
	nextSeq     uint64
	subscribers map[string]*subscriber
}

// Server is a room-addressed rendezvous. Peers connect to /<room>?next=<n>;
// the first n are admitted and told about each other, and after that the
// server only relays their traffic.
type Server struct {
	rooms    map[string]*room
	mu       sync.Mutex
	serveMux http.ServeMux
	logger   utils.Logger
}

func NewServer(logger utils.Logger) *Server {
	s := &Server{
		rooms:  make(map[string]*room),
		logger: utils.LoggerOr(logger),
	}

	s.serveMux.HandleFunc("/", s.onConnection)
	s.serveMux.HandleFunc("/debug/pprof/", pprof.Index)
	s.serveMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	s.serveMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	s.serveMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	s.serveMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.serveMux.ServeHTTP(w, r)
}

// parseRoom reads the room name from the path and its size from ?next=.
func parseRoom(r *http.Request) (string, int, error) {
	name := strings.Trim(r.URL.Path, "/")
	if name == "" {
		return "", 0, errors.New("missing room name")
	}
	capacity := 2
	if next := r.URL.Query().Get("next"); next != "" {
		n, err := strconv.Atoi(next)
		if err != nil || n < 1 || n > 255 {
			return "", 0, fmt.Errorf("bad next=%q", next)
		}
		capacity = n
	}
	return name, capacity, nil
}

func (s *Server) onConnection(w http.ResponseWriter, r *http.Request) {
	name, capacity, err := parseRoom(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{
			"localhost:*",
			"127.0.0.1:*",
		},
	})
	if err != nil {
		s.logger.Printf("accept: %v", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "")

	sub, err := s.join(name, capacity, c)
	if err != nil {
		s.logger.Printf("room %q: %v", name, err)
		c.Close(websocket.StatusPolicyViolation, err.Error())
		return
	}
	defer s.leave(name, sub)

	err = s.handleConnection(r.Context(), name, sub)
	if errors.Is(err, errSlowConsumer) {
		c.Close(websocket.StatusPolicyViolation, err.Error())
	}
	if err != nil && !isClosed(err) {
		s.logger.Printf("peer %s: %v", sub.PeerID, err)
	}
}

func isClosed(err error) bool {
	status := websocket.CloseStatus(err)
	return status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway ||
		errors.Is(err, context.Canceled)
}

func (s *Server) join(name string, capacity int, c *websocket.Conn) (*subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rm, ok := s.rooms[name]
	if !ok {
		rm = &room{
			name:        name,
			capacity:    capacity,
			subscribers: make(map[string]*subscriber),
		}
		s.rooms[name] = rm
	}
	if rm.capacity != capacity {
		return nil, fmt.Errorf("room holds %d players, not %d", rm.capacity, capacity)
	}
	if len(rm.subscribers) >= rm.capacity {
		return nil, errors.New("room is full")
	}

	sub := newSubscriber(ksuid.New().String(), rm.nextSeq, c)
	rm.nextSeq++

	s.send(sub, &pb.Envelope{Welcome: &pb.Welcome{
		Peer:     sub.PeerID,
		Seq:      sub.Seq,
		Room:     name,
		Capacity: uint32(rm.capacity),
	}})
	for _, other := range rm.subscribers {
		s.send(sub, &pb.Envelope{PeerJoined: &pb.PeerJoined{Peer: other.PeerID, Seq: other.Seq}})
		s.send(other, &pb.Envelope{PeerJoined: &pb.PeerJoined{Peer: sub.PeerID, Seq: sub.Seq}})
	}
	rm.subscribers[sub.PeerID] = sub
	s.logger.Printf("room %q: %s joined (%d/%d)", name, sub.PeerID, len(rm.subscribers), rm.capacity)
	return sub, nil
}

func (s *Server) leave(name string, sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rm, ok := s.rooms[name]
	if !ok {
		return
	}
	delete(rm.subscribers, sub.PeerID)
	for _, other := range rm.subscribers {
		s.send(other, &pb.Envelope{PeerLeft: &pb.PeerLeft{Peer: sub.PeerID}})
	}
	if len(rm.subscribers) == 0 {
		delete(s.rooms, name)
	}
	s.logger.Printf("room %q: %s left", name, sub.PeerID)
}

func (s *Server) handleConnection(ctx context.Context, name string, sub *subscriber) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		defer cancel()
		for {
			_, data, err := sub.c.Read(ctx)
			if err != nil {
				errc <- err
				return
			}
			var msg pb.Envelope
			if err := msg.Unmarshal(data); err != nil {
				s.logger.Printf("peer %s: %v", sub.PeerID, err)
				continue
			}
			if msg.Relay != nil {
				s.relay(name, sub, msg.Relay)
			}
		}
	}()

	for {
		select {
		case msg := <-sub.Messages:
			if err := sub.c.Write(ctx, websocket.MessageBinary, msg); err != nil {
				return err
			}
		case <-sub.slow:
			return errSlowConsumer
		case <-ctx.Done():
			select {
			case err := <-errc:
				return err
			default:
				return ctx.Err()
			}
		}
	}
}

// relay forwards a payload to its destination, stamping the sender.
func (s *Server) relay(name string, from *subscriber, msg *pb.Relay) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rm, ok := s.rooms[name]
	if !ok {
		return
	}
	to, ok := rm.subscribers[msg.Peer]
	if !ok {
		return
	}
	s.send(to, &pb.Envelope{Relay: &pb.Relay{Peer: from.PeerID, Payload: msg.Payload}})
}

// send must be called with s.mu held. It never blocks: a subscriber that
// cannot keep up is marked slow and dropped by its own goroutine.
func (s *Server) send(sub *subscriber, msg *pb.Envelope) {
	data, err := msg.Marshal()
	if err != nil {
		s.logger.Printf("marshal: %v", err)
		return
	}
	select {
	case sub.Messages <- data:
	default:
		sub.markSlow()
	}
}

// Rooms returns the number of open rooms.
func (s *Server) Rooms() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

func Run(args []string) error {
	log.SetFlags(log.LstdFlags | log.Llongfile)
	cfg, err := utils.Load("config.toml")
	if err != nil {
		return err
	}
	address := cfg.Network.ListenAddr
	if len(args) > 1 {
		address = args[1]
	}
	l, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	log.Printf("Listening on ws://%v", l.Addr())
	server := NewServer(log.Default())
	s := &http.Server{
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- s.Serve(l)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	select {
	case err := <-errc:
		log.Println(err)
	case sig := <-sigs:
		log.Printf("terminating: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}
