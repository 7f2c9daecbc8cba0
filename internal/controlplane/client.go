package controlplane

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls a remote simnode's control-plane Server over a plain
// *grpc.ClientConn, using grpc.Invoke directly instead of a generated
// stub (mirroring ServiceDesc's hand-registration on the server side).
type Client struct {
	conn *grpc.ClientConn
}

// NewClient wraps an already-dialed connection.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func (c *Client) DistributeModule(ctx context.Context, containerID, moduleName string) error {
	req, err := structpb.NewStruct(map[string]any{"containerId": containerID, "moduleName": moduleName})
	if err != nil {
		return err
	}
	out := new(wrapperspb.BoolValue)
	return c.conn.Invoke(ctx, fullMethod("DistributeModule"), req, out)
}

func (c *Client) CreateMatch(ctx context.Context, containerID, matchID string, moduleNames []string) (*structpb.Struct, error) {
	fields := map[string]any{"matchId": matchID, "moduleNames": toAnySlice(moduleNames)}
	if containerID != "" {
		fields["containerId"] = containerID
	}
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, fullMethod("CreateMatch"), req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FinishMatch(ctx context.Context, containerID, matchID string) error {
	req, err := structpb.NewStruct(map[string]any{"containerId": containerID, "matchId": matchID})
	if err != nil {
		return err
	}
	out := new(wrapperspb.BoolValue)
	return c.conn.Invoke(ctx, fullMethod("FinishMatch"), req, out)
}

func (c *Client) DeleteMatch(ctx context.Context, containerID, matchID string) error {
	req, err := structpb.NewStruct(map[string]any{"containerId": containerID, "matchId": matchID})
	if err != nil {
		return err
	}
	out := new(wrapperspb.BoolValue)
	return c.conn.Invoke(ctx, fullMethod("DeleteMatch"), req, out)
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
