package audio

import (
	"context"
	"sync"
	"time"

	"nomvoice/internal/domain"
	"nomvoice/internal/ports"
)

// CapturePermissions infers microphone access by opening a short capture.
// Desktop hosts have no permission prompt; a capture that starts and yields
// bytes counts as granted.
type CapturePermissions struct {
	capture ports.AudioCapture
	cfg     ports.AudioConfig
	timeout time.Duration

	mu     sync.Mutex
	status domain.PermissionStatus
}

func NewCapturePermissions(capture ports.AudioCapture, cfg ports.AudioConfig) *CapturePermissions {
	return &CapturePermissions{
		capture: capture,
		cfg:     cfg,
		timeout: time.Second,
		status:  domain.PermissionUndetermined,
	}
}

func (p *CapturePermissions) Status(_ context.Context) (domain.PermissionStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, nil
}

func (p *CapturePermissions) Request(ctx context.Context) (domain.PermissionStatus, error) {
	checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	status := domain.PermissionGranted
	session, err := p.capture.Start(checkCtx, p.cfg)
	if err != nil {
		status = domain.PermissionDenied
	} else {
		buf := make([]byte, 512)
		n, _ := session.Read(buf)
		_ = session.Stop()
		if n == 0 {
			status = domain.PermissionDenied
		}
	}

	if ctx.Err() != nil {
		return domain.PermissionUndetermined, ctx.Err()
	}

	p.mu.Lock()
	p.status = status
	p.mu.Unlock()
	return status, nil
}
