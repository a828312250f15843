package grpc

import (
	"context"
	"log"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/shardsplit/shardsplit/internal/catalog"
	serrors "github.com/shardsplit/shardsplit/internal/errors"
	"github.com/shardsplit/shardsplit/pkg/split"
)

// SplitServer implements SplitServiceServer on top of the catalog.
type SplitServer struct {
	catalog catalog.Catalog
}

// NewSplitServer creates a new gRPC split server.
func NewSplitServer(c catalog.Catalog) *SplitServer {
	return &SplitServer{catalog: c}
}

// Assignments streams the worker's splits for the job named in the
// x-job-id header, in definition order.
func (s *SplitServer) Assignments(req *wrapperspb.Int32Value, stream AssignmentsStream) error {
	ctx := stream.Context()
	requestID := extractRequestID(ctx)

	jobID := firstHeader(ctx, JobIDHeader)
	if jobID == "" {
		return status.Error(codes.InvalidArgument, JobIDHeader+" header is required")
	}
	worker := req.GetValue()
	if worker < 0 {
		return status.Errorf(codes.InvalidArgument, "worker must be >= 0, got %d", worker)
	}

	records, err := s.catalog.SplitsForWorker(ctx, jobID, int(worker))
	if err != nil {
		log.Printf("grpc assignments [%s]: job %s worker %d: %v", requestID, jobID, worker, err)
		return toStatus(err)
	}

	for _, rec := range records {
		data, err := rec.Definition.Marshal()
		if err != nil {
			return status.Errorf(codes.Internal, "failed to encode %s: %v", rec.Key, err)
		}
		if err := stream.Send(wrapperspb.Bytes(data)); err != nil {
			log.Printf("grpc assignments [%s]: send failed after partial stream: %v", requestID, err)
			return err
		}
	}
	return nil
}

// Describe decodes the definition in req and returns its display string.
func (s *SplitServer) Describe(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	d, err := split.Unmarshal(req.GetValue())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "malformed definition: %v", err)
	}
	return wrapperspb.String(d.String()), nil
}

func toStatus(err error) error {
	switch serrors.GetCode(err) {
	case serrors.CodeJobNotFound:
		return status.Error(codes.NotFound, err.Error())
	case serrors.CodeWriteConflict:
		return status.Error(codes.Unavailable, err.Error())
	case serrors.CodeCorruptSplit:
		return status.Error(codes.DataLoss, err.Error())
	}
	if serrors.GetCategory(err) == serrors.ErrCategoryValidation {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

func firstHeader(ctx context.Context, key string) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(key); len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// extractRequestID extracts or generates a request ID from the gRPC context.
func extractRequestID(ctx context.Context) string {
	if id := firstHeader(ctx, RequestIDHeader); id != "" {
		return id
	}
	return uuid.New().String()
}
