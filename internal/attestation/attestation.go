// Package attestation verifies a WASM binary's provenance before
// spawn_process hands it to the HAL (SPEC_FULL §4.2.5 expansion). It sits
// outside the kernel package entirely — Step never performs I/O or
// cryptography — and is consulted by the gateway/supervisor wiring at
// spawn time; a rejection surfaces as ErrSpawnFailed directly, without ever
// reaching Step, since there is no commit-worthy fact to record about a
// binary the core refused to run.
package attestation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/spiffe/go-spiffe/v2/workloadapi"
)

// Attestor verifies a binary image's provenance, returning a non-nil
// error if it should not be spawned.
type Attestor interface {
	Attest(ctx context.Context, image []byte) error
}

// Noop accepts every binary unverified — the default for local/dev
// deployments and for halmem-backed tests.
type Noop struct{}

func (Noop) Attest(context.Context, []byte) error { return nil }

var _ Attestor = Noop{}

// Spiffe attests a binary by checking its SHA-256 digest against an
// allowlist signed off by identities reachable through the local SPIRE
// agent. It does not itself perform code signing verification — it
// confirms the workload calling spawn_process holds a live SVID from the
// expected trust domain, then checks the digest allowlist, mirroring the
// teacher's SPIFFEVerifier connection pattern adapted to binary
// provenance rather than peer identity.
type Spiffe struct {
	source      *workloadapi.X509Source
	trustDomain string
	allowed     map[string]struct{} // hex SHA-256 digests
	logger      *slog.Logger
}

// NewSpiffe connects to the SPIRE agent at socketPath with a short
// timeout so a missing agent fails startup fast instead of hanging.
func NewSpiffe(socketPath, trustDomain string, allowedDigests []string) (*Spiffe, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	source, err := workloadapi.NewX509Source(
		ctx,
		workloadapi.WithClientOptions(workloadapi.WithAddr(socketPath)),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to SPIRE agent at %s: %w", socketPath, err)
	}

	allowed := make(map[string]struct{}, len(allowedDigests))
	for _, d := range allowedDigests {
		allowed[d] = struct{}{}
	}

	slog.Info("attestation: connected to SPIRE agent", "socket_path", socketPath, "trust_domain", trustDomain)
	return &Spiffe{source: source, trustDomain: trustDomain, allowed: allowed, logger: slog.Default().With("component", "attestation")}, nil
}

// Attest confirms the calling workload still holds a live SVID for the
// configured trust domain, then checks the image digest against the
// allowlist. Either failure rejects the spawn.
func (s *Spiffe) Attest(ctx context.Context, image []byte) error {
	svid, err := s.source.GetX509SVID()
	if err != nil {
		return fmt.Errorf("fetch SVID: %w", err)
	}
	if svid.ID.TrustDomain().String() != s.trustDomain {
		return fmt.Errorf("SVID trust domain mismatch: want %s, got %s", s.trustDomain, svid.ID.TrustDomain())
	}

	digest := sha256.Sum256(image)
	hexDigest := hex.EncodeToString(digest[:])
	if _, ok := s.allowed[hexDigest]; !ok {
		return fmt.Errorf("binary digest %s not in attestation allowlist", hexDigest)
	}

	s.logger.Info("attested binary image", "digest", hexDigest, "svid", svid.ID.String())
	return nil
}

func (s *Spiffe) Close() error { return s.source.Close() }

var _ Attestor = (*Spiffe)(nil)
