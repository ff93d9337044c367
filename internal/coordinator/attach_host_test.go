package coordinator

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shareterm/shareterm/internal/hostrpc"
)

// fakeHostStream is an in-process stand-in for ChannelServerStream, driven
// by channels instead of a real gRPC transport.
type fakeHostStream struct {
	ctx  context.Context
	recv chan *hostrpc.ClientUpdate
	sent chan *hostrpc.ServerUpdate
	done chan struct{}
}

func newFakeHostStream(ctx context.Context) *fakeHostStream {
	return &fakeHostStream{
		ctx:  ctx,
		recv: make(chan *hostrpc.ClientUpdate, 16),
		sent: make(chan *hostrpc.ServerUpdate, 16),
		done: make(chan struct{}),
	}
}

func (f *fakeHostStream) Send(m *hostrpc.ServerUpdate) error {
	select {
	case f.sent <- m:
		return nil
	case <-f.done:
		return errors.New("stream closed")
	}
}

func (f *fakeHostStream) Recv() (*hostrpc.ClientUpdate, error) {
	select {
	case m, ok := <-f.recv:
		if !ok {
			return nil, io.EOF
		}
		return m, nil
	case <-f.done:
		return nil, io.EOF
	}
}

func (f *fakeHostStream) Context() context.Context { return f.ctx }
func (f *fakeHostStream) close()                    { close(f.done) }

func newTestSessionWithToken(t *testing.T, c *Coordinator) (name, token string) {
	t.Helper()
	resp, err := c.Open(context.Background(), &hostrpc.OpenRequest{
		Origin:         "https://example.test",
		EncryptedZeros: []byte("verifier-bytes-0123456789012345"),
		Name:           "",
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return resp.Name, resp.Token
}

func TestAttachHostSingleHostInvariant(t *testing.T) {
	c := New("test-secret", nil, "", nil)
	name, token := newTestSessionWithToken(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := newFakeHostStream(ctx)
	first.recv <- &hostrpc.ClientUpdate{Hello: &hostrpc.HelloFrame{SessionName: name, Token: token}}

	attachDone := make(chan error, 1)
	go func() { attachDone <- c.AttachHost(first) }()

	// Give the first host a moment to register before the second attempts.
	time.Sleep(20 * time.Millisecond)

	second := newFakeHostStream(ctx)
	second.recv <- &hostrpc.ClientUpdate{Hello: &hostrpc.HelloFrame{SessionName: name, Token: token}}
	err := c.AttachHost(second)

	var coordErr *Error
	if !errors.As(err, &coordErr) || coordErr.Kind != AlreadyAttached {
		t.Fatalf("expected AlreadyAttached, got %v", err)
	}

	first.close()
	<-attachDone
}

func TestAttachHostRejectsBadToken(t *testing.T) {
	c := New("test-secret", nil, "", nil)
	name, _ := newTestSessionWithToken(t, c)

	stream := newFakeHostStream(context.Background())
	stream.recv <- &hostrpc.ClientUpdate{Hello: &hostrpc.HelloFrame{SessionName: name, Token: "not-a-real-token"}}

	err := c.AttachHost(stream)
	var coordErr *Error
	if !errors.As(err, &coordErr) || coordErr.Kind != BadAuth {
		t.Fatalf("expected BadAuth, got %v", err)
	}
}

func TestHandleHostFrameCreatedAndClosedShell(t *testing.T) {
	c := New("test-secret", nil, "", nil)
	name, _ := newTestSessionWithToken(t, c)
	l := c.get(name)
	if l == nil {
		t.Fatal("expected the just-opened session to be registered")
	}

	c.handleHostFrame(l, &hostrpc.ClientUpdate{CreatedShell: &hostrpc.CreatedShellFrame{ID: 1, Rows: 24, Cols: 80}})
	if sh := l.sess.Shell(1); sh == nil {
		t.Fatal("expected shell 1 to exist after CreatedShell")
	}

	c.handleHostFrame(l, &hostrpc.ClientUpdate{ClosedShell: &hostrpc.ClosedShellFrame{ID: 1}})
	if sh := l.sess.Shell(1); sh != nil {
		t.Fatal("expected shell 1 to be gone after ClosedShell")
	}
}

func TestHandleHostFrameAnswerDeliversSignal(t *testing.T) {
	c := New("test-secret", nil, "", nil)
	name, _ := newTestSessionWithToken(t, c)
	l := c.get(name)

	c.handleHostFrame(l, &hostrpc.ClientUpdate{Answer: &hostrpc.AnswerFrame{UserID: 5, ShellID: 1, SDP: "v=0 answer"}})

	sig := l.takeSignal(5)
	if sig == nil || sig.Answer == nil || sig.Answer.SDP != "v=0 answer" {
		t.Fatalf("expected a queued Answer signal for user 5, got %+v", sig)
	}
	if l.takeSignal(5) != nil {
		t.Fatal("takeSignal should clear the mailbox after delivery")
	}
}
