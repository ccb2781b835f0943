package bytepipe

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestWriteReadRoundTrip(t *testing.T) {
	p := New(0)
	if _, err := p.Write([]byte("abc")); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if _, err := p.Write([]byte("def")); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	p.CloseWrite()

	got, err := io.ReadAll(p)
	if err != nil {
		t.Fatalf("ReadAll returned error: %v", err)
	}
	if !bytes.Equal(got, []byte("abcdef")) {
		t.Errorf("read %q, expected %q", got, "abcdef")
	}
}

func TestReadChunkReturnsWholeChunks(t *testing.T) {
	p := New(0)
	p.Write([]byte("abc"))
	p.Write([]byte("defg"))

	c1, err := p.ReadChunk(context.Background())
	if err != nil {
		t.Fatalf("ReadChunk returned error: %v", err)
	}
	if !bytes.Equal(c1, []byte("abc")) {
		t.Errorf("chunk = %q, expected %q", c1, "abc")
	}
	c2, err := p.ReadChunk(context.Background())
	if err != nil {
		t.Fatalf("ReadChunk returned error: %v", err)
	}
	if !bytes.Equal(c2, []byte("defg")) {
		t.Errorf("chunk = %q, expected %q", c2, "defg")
	}

	p.CloseWrite()
	if _, err := p.ReadChunk(context.Background()); err != io.EOF {
		t.Errorf("ReadChunk after CloseWrite = %v, expected io.EOF", err)
	}
}

func TestReadChunkCancelKeepsData(t *testing.T) {
	p := New(0)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.ReadChunk(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("ReadChunk on empty pipe = %v, expected deadline exceeded", err)
	}

	p.Write([]byte("late"))
	c, err := p.ReadChunk(context.Background())
	if err != nil {
		t.Fatalf("ReadChunk returned error: %v", err)
	}
	if !bytes.Equal(c, []byte("late")) {
		t.Errorf("chunk = %q, expected %q", c, "late")
	}
}

func TestBackpressureBlocksWriterUntilDrained(t *testing.T) {
	p := New(4)

	// Fill past the threshold; the flush must block.
	done := make(chan struct{})
	go func() {
		p.Write([]byte("abcdef"))
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("Write returned while pending bytes were above the threshold")
	case <-time.After(100 * time.Millisecond):
	}

	// Draining below the threshold releases the writer.
	if _, err := p.ReadChunk(context.Background()); err != nil {
		t.Fatalf("ReadChunk returned error: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Write did not return after the reader drained")
	}
}

func TestFlushCancelKeepsCommittedBytes(t *testing.T) {
	p := New(4)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	n, err := p.WriteContext(ctx, []byte("abcdef"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WriteContext = %v, expected deadline exceeded", err)
	}
	if n != 6 {
		t.Errorf("WriteContext committed %d bytes, expected 6", n)
	}

	// The committed bytes are still delivered.
	c, rerr := p.ReadChunk(context.Background())
	if rerr != nil {
		t.Fatalf("ReadChunk returned error: %v", rerr)
	}
	if !bytes.Equal(c, []byte("abcdef")) {
		t.Errorf("chunk = %q, expected %q", c, "abcdef")
	}
}

func TestCloseReadReleasesBlockedWriter(t *testing.T) {
	p := New(4)
	released := make(chan error, 1)
	go func() {
		_, err := p.Write([]byte("abcdef")) // blocks on flush
		released <- err
	}()
	time.Sleep(50 * time.Millisecond)
	p.CloseRead()
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("blocked writer was not released by CloseRead")
	}

	if _, err := p.Write([]byte("x")); err != ErrClosed {
		t.Errorf("Write after CloseRead = %v, expected ErrClosed", err)
	}
	if _, err := p.Read(make([]byte, 4)); err != ErrClosed {
		t.Errorf("Read after CloseRead = %v, expected ErrClosed", err)
	}
}

func TestReadCarriesPartialChunks(t *testing.T) {
	p := New(0)
	p.Write([]byte("abcdef"))
	p.CloseWrite()

	buf := make([]byte, 4)
	n, err := p.Read(buf)
	if err != nil || n != 4 {
		t.Fatalf("Read = (%d, %v), expected (4, nil)", n, err)
	}
	if !bytes.Equal(buf[:n], []byte("abcd")) {
		t.Errorf("read %q, expected %q", buf[:n], "abcd")
	}
	n, err = p.Read(buf)
	if err != nil || n != 2 {
		t.Fatalf("Read = (%d, %v), expected (2, nil)", n, err)
	}
	if !bytes.Equal(buf[:n], []byte("ef")) {
		t.Errorf("read %q, expected %q", buf[:n], "ef")
	}
	if _, err := p.Read(buf); err != io.EOF {
		t.Errorf("Read at end = %v, expected io.EOF", err)
	}
}

func TestWriteAfterCloseWrite(t *testing.T) {
	p := New(0)
	p.CloseWrite()
	if _, err := p.Write([]byte("x")); err != ErrClosed {
		t.Errorf("Write after CloseWrite = %v, expected ErrClosed", err)
	}
}
