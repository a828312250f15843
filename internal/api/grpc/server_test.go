package grpc_test

import (
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	splitgrpc "github.com/shardsplit/shardsplit/internal/api/grpc"
	"github.com/shardsplit/shardsplit/internal/catalog"
	"github.com/shardsplit/shardsplit/pkg/split"
)

func TestSplitService(t *testing.T) {
	ctx := context.Background()

	cat, err := catalog.NewCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer cat.Close()

	jobID, err := cat.CreateJob(ctx, "logs")
	require.NoError(t, err)

	settings := "es.resource=logs\n"
	s0 := split.NewSlice(0, 2)
	s1 := split.NewSlice(1, 2)
	_, err = cat.RegisterSplits(ctx, jobID, []catalog.Assignment{
		{Definition: split.NewFromPayloads("logs", 1, &s1, &settings, nil), Worker: 0},
		{Definition: split.NewFromPayloads("logs", 0, nil, &settings, nil), Worker: 0},
		{Definition: split.NewFromPayloads("logs", 1, &s0, nil, nil), Worker: 1},
	})
	require.NoError(t, err)

	// Create an RPC server/client pair.
	l := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	splitgrpc.RegisterSplitServiceServer(server, splitgrpc.NewSplitServer(cat))
	go func() {
		_ = server.Serve(l)
	}()
	defer server.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return l.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := splitgrpc.NewClient(conn)

	t.Run("AssignmentsInOrder", func(t *testing.T) {
		defs, err := client.Assignments(ctx, jobID, 0)
		require.NoError(t, err)
		require.Len(t, defs, 2)
		require.Equal(t, "logs/0", defs[0].Key())
		require.Equal(t, "logs/1/1_of_2", defs[1].Key())

		payload, ok := defs[0].SerializedSettings()
		require.True(t, ok)
		require.Equal(t, settings, payload)
	})

	t.Run("AssignmentsOtherWorker", func(t *testing.T) {
		defs, err := client.Assignments(ctx, jobID, 1)
		require.NoError(t, err)
		require.Len(t, defs, 1)
		require.Equal(t, "logs/1/0_of_2", defs[0].Key())
	})

	t.Run("AssignmentsIdleWorker", func(t *testing.T) {
		defs, err := client.Assignments(ctx, jobID, 7)
		require.NoError(t, err)
		require.Empty(t, defs)
	})

	t.Run("AssignmentsUnknownJob", func(t *testing.T) {
		_, err := client.Assignments(ctx, "no-such-job", 0)
		require.Equal(t, codes.NotFound, status.Code(err))
	})

	t.Run("AssignmentsNegativeWorker", func(t *testing.T) {
		_, err := client.Assignments(ctx, jobID, -1)
		require.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("AssignmentsMissingJobHeader", func(t *testing.T) {
		stream, err := conn.NewStream(ctx, &splitgrpc.SplitServiceDesc.Streams[0],
			"/"+splitgrpc.ServiceName+"/Assignments")
		require.NoError(t, err)
		require.NoError(t, stream.SendMsg(wrapperspb.Int32(0)))
		require.NoError(t, stream.CloseSend())
		err = stream.RecvMsg(new(wrapperspb.BytesValue))
		require.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("Describe", func(t *testing.T) {
		s := split.NewSlice(1, 4)
		encoded, err := split.NewFromPayloads("idx", 2, &s, nil, nil).Marshal()
		require.NoError(t, err)

		text, err := client.Describe(ctx, encoded)
		require.NoError(t, err)
		require.Equal(t, "SlicePartition [index=idx,shardId=2,id=1,max=4]", text)
	})

	t.Run("DescribeMalformed", func(t *testing.T) {
		_, err := client.Describe(ctx, []byte{0x00, 0x09, 'x'})
		require.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("RequestIDHeaderAccepted", func(t *testing.T) {
		rctx := metadata.AppendToOutgoingContext(ctx, splitgrpc.RequestIDHeader, "req-1")
		defs, err := client.Assignments(rctx, jobID, 1)
		require.NoError(t, err)
		require.Len(t, defs, 1)
	})
}

func TestSplitService_LargeDefinition(t *testing.T) {
	ctx := context.Background()

	cat, err := catalog.NewCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer cat.Close()

	jobID, err := cat.CreateJob(ctx, "logs")
	require.NoError(t, err)

	// Larger than grpc's default 4 MiB receive limit.
	settings := "es.query=" + strings.Repeat("x", 5<<20) + "\n"
	_, err = cat.RegisterSplits(ctx, jobID, []catalog.Assignment{
		{Definition: split.NewFromPayloads("logs", 0, nil, &settings, nil), Worker: 0},
	})
	require.NoError(t, err)

	l := bufconn.Listen(1 << 20)
	server := grpc.NewServer(splitgrpc.ServerOptions()...)
	splitgrpc.RegisterSplitServiceServer(server, splitgrpc.NewSplitServer(cat))
	go func() {
		_ = server.Serve(l)
	}()
	defer server.Stop()

	// The connection is dialed with default options; the client raises the
	// per-call limits itself.
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return l.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := splitgrpc.NewClient(conn)

	defs, err := client.Assignments(ctx, jobID, 0)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	payload, ok := defs[0].SerializedSettings()
	require.True(t, ok)
	require.Equal(t, settings, payload)

	encoded, err := defs[0].Marshal()
	require.NoError(t, err)
	text, err := client.Describe(ctx, encoded)
	require.NoError(t, err)
	require.Equal(t, "SlicePartition [index=logs,shardId=0]", text)
}
