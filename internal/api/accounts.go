package api

import (
	"context"

	"github.com/matheus3301/imstore/internal/status"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Accounts drives per-account connection state.
type Accounts interface {
	Current(acct int64) status.Conn
	Transition(ctx context.Context, acct int64, to status.Conn) error
	SetPresence(ctx context.Context, acct int64, mode int) error
}

// Queue accepts outgoing reliable messages.
type Queue interface {
	Enqueue(ctx context.Context, typ string, data []byte) (int64, error)
}

// Status request: {"account"}. Response: {"account", "state"}.
func (s *Service) Status(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.accounts == nil {
		return nil, grpcstatus.Error(codes.Unavailable, "account tracking not available")
	}
	acct := accountOf(in)
	return stateReply(acct, s.accounts.Current(acct))
}

// Transition request: {"account", "state"}. Response: {"account", "state"}.
func (s *Service) Transition(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.accounts == nil {
		return nil, grpcstatus.Error(codes.Unavailable, "account tracking not available")
	}
	to, err := status.ParseConn(in.GetFields()["state"].GetStringValue())
	if err != nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	acct := accountOf(in)
	if err := s.accounts.Transition(ctx, acct, to); err != nil {
		return nil, toStatus(err)
	}
	return stateReply(acct, to)
}

// SetPresence request: {"account", "mode"}. Response: {}.
func (s *Service) SetPresence(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.accounts == nil {
		return nil, grpcstatus.Error(codes.Unavailable, "account tracking not available")
	}
	mode := int(in.GetFields()["mode"].GetNumberValue())
	if err := s.accounts.SetPresence(ctx, accountOf(in), mode); err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{})
}

// Enqueue request: {"type", "data"} where data is {"bytes": base64}.
// Response: {"sequence_id"}.
func (s *Service) Enqueue(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.queue == nil {
		return nil, grpcstatus.Error(codes.Unavailable, "outgoing queue not available")
	}
	var data []byte
	if raw, ok := in.GetFields()["data"]; ok {
		v, err := DecodeValue(raw.AsInterface())
		if err != nil {
			return nil, toStatus(err)
		}
		b, ok := v.([]byte)
		if !ok {
			return nil, grpcstatus.Error(codes.InvalidArgument, "data must be a bytes value")
		}
		data = b
	}
	typ := in.GetFields()["type"].GetStringValue()
	if typ == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "type is required")
	}
	seq, err := s.queue.Enqueue(ctx, typ, data)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{"sequence_id": float64(seq)})
}

func accountOf(in *structpb.Struct) int64 {
	return int64(in.GetFields()["account"].GetNumberValue())
}

func stateReply(acct int64, c status.Conn) (*structpb.Struct, error) {
	return newStruct(map[string]any{
		"account": float64(acct),
		"state":   c.String(),
	})
}
