package smtptest

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/emersion/go-smtp"
)

// messageData includes the body content and created timestamp for an email
// message, allowing us to inspect message bodies before/after a timestamp
// for correctness.
type messageData struct {
	created time.Time
	from    string
	to      []string
	body    string
}

// Backend implements smtp.Backend. It only hands out a session to clients
// presenting the configured credentials.
type Backend struct {
	*InMemoryEmailStore
	username string
	password string
}

// Login implements smtp.Backend.
func (be *Backend) Login(_ *smtp.ConnectionState, username string, password string) (smtp.Session, error) {
	if username == be.username && password == be.password {
		return &session{store: be.InMemoryEmailStore}, nil
	}
	return nil, errors.New("invalid username or password")
}

// AnonymousLogin implements smtp.Backend. Not supported since we want to
// enforce AUTH.
func (be *Backend) AnonymousLogin(_ *smtp.ConnectionState) (smtp.Session, error) {
	return nil, smtp.ErrAuthUnsupported
}

// session implements smtp.Session, collecting the envelope for a single
// message before handing it to the store.
type session struct {
	store *InMemoryEmailStore
	from  string
	to    []string
}

// Reset implements smtp.Session.
func (s *session) Reset() {
	s.from = ""
	s.to = nil
}

// Logout implements smtp.Session. No-op here.
func (s *session) Logout() error { return nil }

// Mail implements smtp.Session.
func (s *session) Mail(from string, _ smtp.MailOptions) error {
	s.from = from
	return nil
}

// Rcpt implements smtp.Session.
func (s *session) Rcpt(to string) error {
	s.to = append(s.to, to)
	return nil
}

// Data implements smtp.Session. Stores the email data in memory for
// retrieval at the end of the test.
func (s *session) Data(r io.Reader) error {
	// doubtful we'll get an email this big, but we need a limit
	var maxEmailSize int64 = 10 * units.MiB
	buf, err := io.ReadAll(io.LimitReader(r, maxEmailSize))
	if err != nil {
		return err
	}

	str := &strings.Builder{}
	if _, err := str.Write(buf); err != nil {
		return err
	}
	s.store.saveEmail(messageData{
		from: s.from,
		to:   append([]string(nil), s.to...),
		body: str.String(),
	})
	return nil
}

// InMemoryEmailStore retains email bodies in memory for comparison against
// a test's expected output. Designed to be goroutine safe since the server
// handles each connection in its own goroutine.
type InMemoryEmailStore struct {
	mu       *sync.Mutex
	messages []messageData
}

// saveEmail stores the message along with a timestamp created just prior to
// saving
func (es *InMemoryEmailStore) saveEmail(m messageData) {
	es.mu.Lock()
	defer es.mu.Unlock()

	m.created = time.Now()
	es.messages = append(es.messages, m)
}

// RetrieveEmails returns a slice of all message bodies (as strings)
// received at or after epoch nanoseconds t
func (es *InMemoryEmailStore) RetrieveEmails(t int64) []string {
	es.mu.Lock()
	defer es.mu.Unlock()

	r := make([]string, 0, len(es.messages))
	for _, m := range es.messages {
		if m.created.UnixNano() >= t {
			r = append(r, m.body)
		}
	}
	return r
}

// Envelopes returns the MAIL FROM and RCPT TO addresses of every message
// received, in order.
func (es *InMemoryEmailStore) Envelopes() (from []string, to [][]string) {
	es.mu.Lock()
	defer es.mu.Unlock()

	for _, m := range es.messages {
		from = append(from, m.from)
		to = append(to, m.to)
	}
	return from, to
}

// InProcessServer is an SMTP server that runs in the same process as the
// test suite, letting us inspect sent emails. You must initialize this
// via NewInProcessServer
type InProcessServer struct {
	*smtp.Server
	*InMemoryEmailStore
	listener net.Listener
}

// NewInProcessServer creates an InProcessServer listening with implicit TLS
// on an ephemeral localhost port. Must provide the paths to the key and cert
// used for TLS, plus the only credentials the server will accept. Call Start
// to begin serving.
func NewInProcessServer(keypath, certpath, username, password string) (*InProcessServer, error) {
	cert, err := tls.LoadX509KeyPair(certpath, keypath)
	if err != nil {
		return nil, err
	}

	tlsc := &tls.Config{
		Certificates: []tls.Certificate{cert},
	}

	l, err := tls.Listen("tcp", "127.0.0.1:0", tlsc)
	if err != nil {
		return nil, err
	}

	is := &InMemoryEmailStore{
		mu:       &sync.Mutex{},
		messages: []messageData{},
	}

	srv := smtp.NewServer(&Backend{
		InMemoryEmailStore: is,
		username:           username,
		password:           password,
	})

	srv.Domain = "localhost"
	srv.TLSConfig = tlsc
	srv.AllowInsecureAuth = false // need AUTH over TLS here
	srv.AuthDisabled = false
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second

	return &InProcessServer{
		Server:             srv,
		InMemoryEmailStore: is,
		listener:           l,
	}, nil
}

// Start serves connections until Close is called. Blocking.
func (is *InProcessServer) Start() error {
	return is.Server.Serve(is.listener)
}

// Close shuts down the test server. You must initialize a new
// InProcessServer instead of restarting this one.
func (is *InProcessServer) Close() {
	is.Server.Close()
}

// Host returns the IP address the server listens on.
func (is *InProcessServer) Host() string {
	return is.listener.Addr().(*net.TCPAddr).IP.String()
}

// Port returns the TCP port the server listens on.
func (is *InProcessServer) Port() int {
	return is.listener.Addr().(*net.TCPAddr).Port
}

// Address returns the host:port of the test SMTP server.
func (is *InProcessServer) Address() string {
	return net.JoinHostPort(is.Host(), strconv.Itoa(is.Port()))
}
