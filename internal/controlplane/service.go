package controlplane

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/anvil-platform/simnode/internal/container"
	"github.com/anvil-platform/simnode/internal/errs"
	"github.com/anvil-platform/simnode/internal/match"
)

func matchLocator(matchID string, moduleNames []string) match.Match {
	return match.Match{MatchID: matchID, EnabledModules: moduleNames}
}

// Server implements the four inbound RPCs the control plane calls on a
// node (spec.md §6): DistributeModule, CreateMatch, FinishMatch,
// DeleteMatch. Request/response payloads are structpb.Struct and
// wrapperspb well-known types rather than a generated contract package —
// see DESIGN.md for why the teacher's protoc-generated enginev1 could not
// be reproduced here.
type Server struct {
	containers *container.Manager
}

// NewServer builds a Server over a node's container.Manager.
func NewServer(containers *container.Manager) *Server {
	return &Server{containers: containers}
}

// DistributeModule loads an artifact-backed module into a named
// container. req fields: containerId (string), moduleName (string).
func (s *Server) DistributeModule(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	containerID := req.Fields["containerId"].GetStringValue()
	moduleName := req.Fields["moduleName"].GetStringValue()
	c, err := s.containers.Get(containerID)
	if err != nil {
		return nil, err
	}
	if _, err := c.Modules.LoadFromArtifact(moduleName); err != nil {
		return nil, err
	}
	return wrapperspb.Bool(true), nil
}

// CreateMatch creates a container (if containerId is absent, a fresh one
// is provisioned) and a match on it. req fields: containerId (optional
// string), matchId (string), moduleNames (list of string).
func (s *Server) CreateMatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	containerID := req.Fields["containerId"].GetStringValue()
	matchID := req.Fields["matchId"].GetStringValue()
	moduleNames := stringListField(req, "moduleNames")

	var c *container.Container
	var err error
	if containerID == "" {
		c, err = s.containers.Create(matchID+"-container", moduleNames)
		if err != nil {
			return nil, err
		}
		containerID = c.ID
	} else {
		c, err = s.containers.Get(containerID)
		if err != nil {
			return nil, err
		}
	}

	if c.State() == container.StateCreated {
		if err := c.Start(); err != nil {
			return nil, err
		}
	}

	moduleExists := func(name string) bool { _, ok := c.Modules.Get(name); return ok }
	if err := c.Matches.Create(matchLocator(matchID, moduleNames), moduleExists); err != nil {
		return nil, err
	}

	return structpb.NewStruct(map[string]any{
		"containerId": containerID,
		"matchId":     matchID,
	})
}

// FinishMatch is a no-op signal distinct from DeleteMatch: the match
// keeps running (and its history keeps accumulating) but the control
// plane is told no further players will join. The core has no separate
// "finished" state for a match (spec.md's match data model names only
// matchId/enabledModules/enabledLogicUnits), so this is recorded purely
// as an acknowledgement.
func (s *Server) FinishMatch(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	containerID := req.Fields["containerId"].GetStringValue()
	matchID := req.Fields["matchId"].GetStringValue()
	c, err := s.containers.Get(containerID)
	if err != nil {
		return nil, err
	}
	if !c.Matches.Exists(matchID) {
		return nil, errs.Newf(errs.NotFound, "controlplane: match %q not found", matchID)
	}
	return wrapperspb.Bool(true), nil
}

// DeleteMatch deletes a match from its container.
func (s *Server) DeleteMatch(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	containerID := req.Fields["containerId"].GetStringValue()
	matchID := req.Fields["matchId"].GetStringValue()
	c, err := s.containers.Get(containerID)
	if err != nil {
		return nil, err
	}
	if err := c.Matches.Delete(matchID); err != nil {
		return nil, err
	}
	return wrapperspb.Bool(true), nil
}

func stringListField(s *structpb.Struct, key string) []string {
	list := s.Fields[key].GetListValue()
	if list == nil {
		return nil
	}
	out := make([]string, 0, len(list.Values))
	for _, v := range list.Values {
		out = append(out, v.GetStringValue())
	}
	return out
}

// ServiceName is the gRPC service path registered below.
const ServiceName = "anvil.simnode.v1.ControlPlane"

// ServiceDesc is the hand-registered grpc.ServiceDesc standing in for a
// protoc-generated one (see DESIGN.md). Each MethodDesc decodes a
// structpb.Struct request and returns either a structpb.Struct or a
// wrapperspb.BoolValue response, matching the teacher's generated
// enginev1 service shape (one method per RPC, proto.Message in/out) with
// well-known types instead of hand-rolled messages.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "DistributeModule", Handler: distributeModuleHandler},
		{MethodName: "CreateMatch", Handler: createMatchHandler},
		{MethodName: "FinishMatch", Handler: finishMatchHandler},
		{MethodName: "DeleteMatch", Handler: deleteMatchHandler},
	},
}

func distributeModuleHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(structpb.Struct)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.DistributeModule(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/DistributeModule"}
	handler := func(ctx context.Context, req any) (any, error) {
		return s.DistributeModule(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, req, info, handler)
}

func createMatchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(structpb.Struct)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.CreateMatch(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/CreateMatch"}
	handler := func(ctx context.Context, req any) (any, error) {
		return s.CreateMatch(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, req, info, handler)
}

func finishMatchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(structpb.Struct)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.FinishMatch(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/FinishMatch"}
	handler := func(ctx context.Context, req any) (any, error) {
		return s.FinishMatch(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, req, info, handler)
}

func deleteMatchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(structpb.Struct)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.DeleteMatch(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/DeleteMatch"}
	handler := func(ctx context.Context, req any) (any, error) {
		return s.DeleteMatch(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, req, info, handler)
}

// RegisterServer registers Server against a *grpc.Server under
// ServiceDesc, mirroring the teacher's generated
// RegisterEngineModuleServer.
func RegisterServer(s *grpc.Server, srv *Server) {
	s.RegisterService(&ServiceDesc, srv)
}
