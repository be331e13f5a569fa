package resource

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/attuneai/coach-gateway/internal/capture"
	"github.com/rs/zerolog"
)

type fakeDevice struct {
	mu      sync.Mutex
	openErr error
	closes  int
}

func (d *fakeDevice) Open(ctx context.Context) (*capture.Stream, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	ch := make(chan []byte)
	var once sync.Once
	return capture.NewStream(ch, nil, func() error {
		once.Do(func() {
			close(ch)
			d.mu.Lock()
			d.closes++
			d.mu.Unlock()
		})
		return nil
	}), nil
}

func (d *fakeDevice) closeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

func newTestManager(device capture.Device) *Manager {
	return NewManager(device, "/playback/test", zerolog.Nop())
}

func TestManager_AcquireAndRelease(t *testing.T) {
	device := &fakeDevice{}
	m := newTestManager(device)

	stream, err := m.AcquireMicrophone(context.Background())
	if err != nil {
		t.Fatalf("AcquireMicrophone() failed: %v", err)
	}
	if stream == nil {
		t.Fatal("Expected a stream")
	}

	m.ReleaseMicrophone()
	if device.closeCount() != 1 {
		t.Errorf("Expected 1 close, got %d", device.closeCount())
	}

	// Idempotent: releasing again does nothing
	m.ReleaseMicrophone()
	if device.closeCount() != 1 {
		t.Errorf("Expected still 1 close after second release, got %d", device.closeCount())
	}
}

func TestManager_AcquireFailure(t *testing.T) {
	device := &fakeDevice{openErr: errors.New("permission denied")}
	m := newTestManager(device)

	_, err := m.AcquireMicrophone(context.Background())
	if !errors.Is(err, capture.ErrDevice) {
		t.Errorf("Expected ErrDevice, got %v", err)
	}
}

func TestManager_ReacquireReleasesPriorStream(t *testing.T) {
	device := &fakeDevice{}
	m := newTestManager(device)

	if _, err := m.AcquireMicrophone(context.Background()); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if _, err := m.AcquireMicrophone(context.Background()); err != nil {
		t.Fatalf("second acquire failed: %v", err)
	}

	if device.closeCount() != 1 {
		t.Errorf("Expected prior stream closed on reacquire, got %d closes", device.closeCount())
	}
}

func TestManager_SetAudioResource_RevokeThenReplace(t *testing.T) {
	m := newTestManager(&fakeDevice{})

	first := m.SetAudioResource([]byte{1, 2, 3}, "audio/mpeg")
	second := m.SetAudioResource([]byte{4, 5}, "audio/ogg")

	if !first.Revoked() {
		t.Error("Expected first handle revoked after replacement")
	}
	if second.Revoked() {
		t.Error("Expected second handle live")
	}

	// Only the latest handle is retrievable
	if _, ok := m.Resolve(first.ID()); ok {
		t.Error("Expected revoked handle to not resolve")
	}
	got, ok := m.Resolve(second.ID())
	if !ok {
		t.Fatal("Expected latest handle to resolve")
	}
	if !bytes.Equal(got.Bytes(), []byte{4, 5}) {
		t.Errorf("Expected bytes [4 5], got %v", got.Bytes())
	}
	if got.ContentType() != "audio/ogg" {
		t.Errorf("Expected content type 'audio/ogg', got '%s'", got.ContentType())
	}
}

func TestManager_NoDoubleRevoke(t *testing.T) {
	m := newTestManager(&fakeDevice{})

	first := m.SetAudioResource([]byte{1}, "audio/mpeg")
	m.SetAudioResource([]byte{2}, "audio/mpeg")

	// The first handle was already revoked by the replacement; a second
	// revocation must be a no-op.
	if first.revoke() {
		t.Error("Expected revoke() to report already-revoked")
	}
}

func TestManager_ClearAudioResource(t *testing.T) {
	m := newTestManager(&fakeDevice{})

	h := m.SetAudioResource([]byte{1}, "audio/mpeg")
	m.ClearAudioResource()

	if !h.Revoked() {
		t.Error("Expected handle revoked after clear")
	}
	if m.AudioResource() != nil {
		t.Error("Expected no live handle after clear")
	}

	// Safe when nothing is held
	m.ClearAudioResource()
}

func TestHandle_URL(t *testing.T) {
	m := newTestManager(&fakeDevice{})
	h := m.SetAudioResource([]byte{1}, "audio/mpeg")

	want := "/playback/test/" + h.ID()
	if h.URL() != want {
		t.Errorf("Expected URL '%s', got '%s'", want, h.URL())
	}
}
