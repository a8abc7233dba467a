package pb

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"
)

// Remote HAL Types (SPEC_FULL §6.6). These are hand-authored in the
// same low-fidelity style as mock.go rather than protoc-generated —
// RemoteHAL is not wired into orbitald's default hot path, it exists so
// a future out-of-process HAL backend has a transport contract to
// implement against.

type MailboxRequest struct {
	Pid uint64
}

type MailboxImage struct {
	Pid   uint64
	Image []byte
}

type WakeRequest struct {
	Pid uint64
}

type WakeResponse struct{}

type Ack struct {
	Ok bool
}

type KernelHALClient interface {
	ReadMailbox(ctx context.Context, in *MailboxRequest, opts ...grpc.CallOption) (*MailboxImage, error)
	WriteMailbox(ctx context.Context, in *MailboxImage, opts ...grpc.CallOption) (*Ack, error)
	WaitForWake(ctx context.Context, in *WakeRequest, opts ...grpc.CallOption) (*WakeResponse, error)
}

// MockKernelHALClient is an in-memory stand-in for a real gRPC
// connection, used by tests that exercise RemoteHAL without a server.
type MockKernelHALClient struct {
	mu     sync.Mutex
	images map[uint64][]byte
}

func NewMockKernelHALClient() *MockKernelHALClient {
	return &MockKernelHALClient{images: make(map[uint64][]byte)}
}

func (m *MockKernelHALClient) ReadMailbox(ctx context.Context, in *MailboxRequest, opts ...grpc.CallOption) (*MailboxImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[in.Pid]
	if !ok {
		return nil, fmt.Errorf("pb: no mailbox for pid %d", in.Pid)
	}
	return &MailboxImage{Pid: in.Pid, Image: img}, nil
}

func (m *MockKernelHALClient) WriteMailbox(ctx context.Context, in *MailboxImage, opts ...grpc.CallOption) (*Ack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[in.Pid] = in.Image
	return &Ack{Ok: true}, nil
}

func (m *MockKernelHALClient) WaitForWake(ctx context.Context, in *WakeRequest, opts ...grpc.CallOption) (*WakeResponse, error) {
	return &WakeResponse{}, nil
}

// KernelHALServer is the server-side counterpart a real out-of-process
// HAL backend would implement; orbitald never registers one today.
type KernelHALServer interface {
	ReadMailbox(context.Context, *MailboxRequest) (*MailboxImage, error)
	WriteMailbox(context.Context, *MailboxImage) (*Ack, error)
	WaitForWake(context.Context, *WakeRequest) (*WakeResponse, error)
}

type UnimplementedKernelHALServer struct{}

func (UnimplementedKernelHALServer) ReadMailbox(context.Context, *MailboxRequest) (*MailboxImage, error) {
	return nil, fmt.Errorf("pb: ReadMailbox not implemented")
}

func (UnimplementedKernelHALServer) WriteMailbox(context.Context, *MailboxImage) (*Ack, error) {
	return nil, fmt.Errorf("pb: WriteMailbox not implemented")
}

func (UnimplementedKernelHALServer) WaitForWake(context.Context, *WakeRequest) (*WakeResponse, error) {
	return nil, fmt.Errorf("pb: WaitForWake not implemented")
}
