package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/shardsplit/shardsplit/pkg/split"
)

// Client is a worker-side SplitService client.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection. Calls raise the message size
// limits to MaxMessageSize regardless of how cc was dialed.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Assignments fetches and decodes every definition assigned to worker in
// jobID.
func (c *Client) Assignments(ctx context.Context, jobID string, worker int32) ([]*split.PartitionDefinition, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, JobIDHeader, jobID)
	stream, err := c.cc.NewStream(ctx, &SplitServiceDesc.Streams[0], assignmentsMethod, callOptions...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(wrapperspb.Int32(worker)); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	var defs []*split.PartitionDefinition
	for {
		msg := new(wrapperspb.BytesValue)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				return defs, nil
			}
			return nil, err
		}
		d, err := split.Unmarshal(msg.GetValue())
		if err != nil {
			return nil, fmt.Errorf("grpc client: received undecodable definition: %w", err)
		}
		defs = append(defs, d)
	}
}

// Describe asks the server to render an encoded definition.
func (c *Client) Describe(ctx context.Context, encoded []byte) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, describeMethod, wrapperspb.Bytes(encoded), out, callOptions...); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}
