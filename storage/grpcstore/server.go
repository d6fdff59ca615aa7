package grpcstore

import (
	"context"

	"github.com/ipfs/go-cid"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/privatefs/cidutil"
	"xdao.co/privatefs/storage"
)

// Server exposes a storage.BlockStore over the BlockStore gRPC service.
type Server struct {
	UnimplementedBlockStoreServer
	Store storage.BlockStore

	// Log is optional.
	Log logrus.FieldLogger
}

func (s *Server) log() logrus.FieldLogger {
	if s.Log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		return l
	}
	return s.Log
}

func (s *Server) Put(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing block store")
	}
	b := in.GetValue()
	// Enforce the CID contract on the server side too.
	expected, err := cidutil.CIDv1RawSHA256CID(b)
	if err != nil {
		return nil, status.Error(codes.Internal, "cid computation failed")
	}
	id, err := s.Store.Put(ctx, b)
	if err != nil {
		s.log().WithError(err).WithField("cid", expected.String()).Warn("put failed")
		return nil, toStatus(err)
	}
	if !id.Equals(expected) {
		return nil, status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	}
	s.log().WithFields(logrus.Fields{"cid": id.String(), "size": len(b)}).Debug("put")
	return wrapperspb.String(id.String()), nil
}

func (s *Server) Get(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing block store")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	b, err := s.Store.Get(ctx, id)
	if err != nil {
		if !storage.IsNotFound(err) {
			s.log().WithError(err).WithField("cid", id.String()).Warn("get failed")
		}
		return nil, toStatus(err)
	}
	if !cidutil.Verify(id, b) {
		return nil, status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing block store")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	ok, err := s.Store.Has(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bool(ok), nil
}
