package syncclient

import (
	"context"

	simlivev1 "github.com/victornm/simlive/internal/api/simlivev1"
	"github.com/victornm/simlive/internal/domain"
	"github.com/victornm/simlive/internal/errors"
)

// GRPCPuller reads session state from a remote server.
type GRPCPuller struct {
	Client *simlivev1.SessionServiceClient
}

func (p GRPCPuller) JoinByCode(ctx context.Context, code string) (*domain.Snapshot, error) {
	resp, err := p.Client.JoinByCode(ctx, &simlivev1.JoinByCodeRequest{Code: code})
	if err != nil {
		return nil, errors.FromGRPC(err)
	}
	return resp.Snapshot, nil
}

func (p GRPCPuller) Snapshot(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	resp, err := p.Client.GetSnapshot(ctx, &simlivev1.GetSnapshotRequest{SessionId: sessionID})
	if err != nil {
		return nil, errors.FromGRPC(err)
	}
	return resp.Snapshot, nil
}

func (p GRPCPuller) Fingerprint(ctx context.Context, sessionID string) (string, error) {
	resp, err := p.Client.GetFingerprint(ctx, &simlivev1.GetFingerprintRequest{SessionId: sessionID})
	if err != nil {
		return "", errors.FromGRPC(err)
	}
	return resp.Fingerprint, nil
}
