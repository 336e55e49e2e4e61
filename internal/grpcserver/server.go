// Package grpcserver implements the SwipeService gRPC server.
//
// It delegates all business logic to swipe.Service and handles only the
// gRPC transport concerns: metadata extraction, error mapping and type
// conversion between the domain model and wire messages. Messages are plain
// structs carried by a JSON codec; the service descriptor is declared by
// hand.
package grpcserver

import (
	"context"
	"errors"
	"net/url"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"jobmate/swipe-service/internal/decision"
	"jobmate/swipe-service/internal/feed"
	"jobmate/swipe-service/internal/model"
	"jobmate/swipe-service/internal/store/resilient"
	"jobmate/swipe-service/internal/swipe"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "jobmate.swipe.v1.SwipeService"

// ─── Wire messages ────────────────────────────────────────────────────────────

// GetFeedRequest mirrors GET /feed: Query holds the same prefixed filter
// parameters (eq.location, min.salary_min, ...).
type GetFeedRequest struct {
	Limit int               `json:"limit"`
	Query map[string]string `json:"query,omitempty"`
}

// CardProto is one ranked posting.
type CardProto struct {
	JobID          string     `json:"jobId"`
	EmployerID     string     `json:"employerId"`
	Title          string     `json:"title"`
	Category       string     `json:"category"`
	Location       string     `json:"location"`
	IsRemote       bool       `json:"isRemote"`
	EmploymentType string     `json:"employmentType"`
	Score          int        `json:"score"`
	IsSaved        bool       `json:"isSaved"`
	CreatedAt      *Timestamp `json:"createdAt"`
	ExpiresAt      *Timestamp `json:"expiresAt,omitempty"`
}

// GetFeedResponse carries the ranked cards and the empty-state counters.
type GetFeedResponse struct {
	Cards     []*CardProto `json:"cards"`
	Total     int          `json:"total"`
	Visible   int          `json:"visible"`
	Remaining int          `json:"remaining"`
}

// DecideRequest applies one action on a job.
type DecideRequest struct {
	JobID  string `json:"jobId"`
	Action string `json:"action"`
}

// DecideResponse reports the seeker state after the decision.
type DecideResponse struct {
	JobID          string     `json:"jobId"`
	Action         string     `json:"action"`
	IsSaved        bool       `json:"isSaved"`
	AlreadyApplied bool       `json:"alreadyApplied"`
	ApplicationID  string     `json:"applicationId,omitempty"`
	AppliedAt      *Timestamp `json:"appliedAt,omitempty"`
}

// ToggleSaveRequest flips the saved state of a job.
type ToggleSaveRequest struct {
	JobID string `json:"jobId"`
}

// ToggleSaveResponse reports the new saved state.
type ToggleSaveResponse struct {
	JobID   string `json:"jobId"`
	IsSaved bool   `json:"isSaved"`
}

// SwipeServer is the server API of SwipeService.
type SwipeServer interface {
	GetFeed(ctx context.Context, req *GetFeedRequest) (*GetFeedResponse, error)
	Decide(ctx context.Context, req *DecideRequest) (*DecideResponse, error)
	ToggleSave(ctx context.Context, req *ToggleSaveRequest) (*ToggleSaveResponse, error)
}

// ─── Server ───────────────────────────────────────────────────────────────────

// Server implements SwipeServer.
type Server struct {
	svc *swipe.Service
	log *zap.Logger
}

var _ SwipeServer = (*Server)(nil)

// NewServer constructs a gRPC Server backed by the given swipe.Service.
func NewServer(svc *swipe.Service, log *zap.Logger) *Server {
	return &Server{svc: svc, log: log}
}

// Register mounts srv on gs.
func Register(gs *grpc.Server, srv SwipeServer) {
	gs.RegisterService(&serviceDesc, srv)
}

// ─── RPC implementations ──────────────────────────────────────────────────────

// GetFeed returns the caller's ranked feed.
func (s *Server) GetFeed(ctx context.Context, req *GetFeedRequest) (*GetFeedResponse, error) {
	userID, err := userIDFromCtx(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	for k, v := range req.Query {
		q.Set(k, v)
	}
	filters, err := feed.ParseQuery(q)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.Limit < 0 {
		return nil, status.Error(codes.InvalidArgument, "limit must not be negative")
	}

	fd, err := s.svc.Feed(ctx, userID, swipe.FeedRequest{Filters: filters, Limit: req.Limit})
	if err != nil {
		return nil, s.toGRPCError(err)
	}

	resp := &GetFeedResponse{
		Cards:     make([]*CardProto, 0, len(fd.Items)),
		Total:     fd.Total,
		Visible:   fd.Visible,
		Remaining: fd.Remaining,
	}
	for i := range fd.Items {
		resp.Cards = append(resp.Cards, cardToProto(&fd.Items[i]))
	}
	return resp, nil
}

// Decide applies apply, pass, save or unsave on a job.
func (s *Server) Decide(ctx context.Context, req *DecideRequest) (*DecideResponse, error) {
	userID, err := userIDFromCtx(ctx)
	if err != nil {
		return nil, err
	}

	out, err := s.svc.Decide(ctx, userID, req.JobID, model.Action(req.Action))
	if err != nil {
		return nil, s.toGRPCError(err)
	}

	resp := &DecideResponse{
		JobID:          req.JobID,
		Action:         string(out.Action),
		IsSaved:        out.IsSaved,
		AlreadyApplied: out.AlreadyApplied,
	}
	if out.Application != nil {
		resp.ApplicationID = out.Application.ID
		resp.AppliedAt = newTimestamp(out.Application.AppliedAt)
	}
	return resp, nil
}

// ToggleSave flips the saved state of a job.
func (s *Server) ToggleSave(ctx context.Context, req *ToggleSaveRequest) (*ToggleSaveResponse, error) {
	userID, err := userIDFromCtx(ctx)
	if err != nil {
		return nil, err
	}

	isSaved, err := s.svc.ToggleSave(ctx, userID, req.JobID)
	if err != nil {
		return nil, s.toGRPCError(err)
	}
	return &ToggleSaveResponse{JobID: req.JobID, IsSaved: isSaved}, nil
}

// ─── Service descriptor ───────────────────────────────────────────────────────

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SwipeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetFeed", Handler: unary("GetFeed", func(srv SwipeServer, ctx context.Context, req *GetFeedRequest) (any, error) {
			return srv.GetFeed(ctx, req)
		})},
		{MethodName: "Decide", Handler: unary("Decide", func(srv SwipeServer, ctx context.Context, req *DecideRequest) (any, error) {
			return srv.Decide(ctx, req)
		})},
		{MethodName: "ToggleSave", Handler: unary("ToggleSave", func(srv SwipeServer, ctx context.Context, req *ToggleSaveRequest) (any, error) {
			return srv.ToggleSave(ctx, req)
		})},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "swipe.proto",
}

// unary adapts a typed method to grpc.MethodDesc's handler signature,
// running the server's interceptor chain when one is installed.
func unary[Req any](method string, call func(SwipeServer, context.Context, *Req) (any, error)) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SwipeServer), ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, r any) (any, error) {
			return call(srv.(SwipeServer), ctx, r.(*Req))
		}
		return interceptor(ctx, req, info, handler)
	}
}

// LoggingInterceptor logs every failed call.
func LoggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			log.Info("rpc failed",
				zap.String("method", info.FullMethod),
				zap.String("code", status.Code(err).String()),
				zap.Error(err))
		}
		return resp, err
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// userIDFromCtx extracts the x-user-id value forwarded by the Gateway
// via gRPC metadata.
func userIDFromCtx(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "missing metadata")
	}
	vals := md.Get("x-user-id")
	if len(vals) == 0 || vals[0] == "" {
		return "", status.Error(codes.Unauthenticated, "missing x-user-id metadata")
	}
	return vals[0], nil
}

// toGRPCError maps domain errors to gRPC status errors.
func (s *Server) toGRPCError(err error) error {
	if errors.Is(err, swipe.ErrNotFound) {
		return status.Error(codes.NotFound, err.Error())
	}
	var ve *swipe.ValidationError
	if errors.As(err, &ve) {
		return status.Error(codes.InvalidArgument, ve.Msg)
	}
	if errors.Is(err, decision.ErrConflict) {
		return status.Error(codes.AlreadyExists, err.Error())
	}
	if resilient.IsUnavailable(err) {
		return status.Error(codes.Unavailable, "storage unavailable")
	}
	s.log.Error("rpc internal error", zap.Error(err))
	return status.Error(codes.Internal, "internal server error")
}

// cardToProto converts a feed item to its wire representation.
func cardToProto(it *feed.Item) *CardProto {
	p := &CardProto{
		JobID:          it.Job.ID,
		EmployerID:     it.Job.EmployerID,
		Title:          it.Job.Title,
		Category:       it.Job.Category,
		Location:       it.Job.Location,
		IsRemote:       it.Job.IsRemote,
		EmploymentType: string(it.Job.EmploymentType),
		Score:          it.Score,
		IsSaved:        it.IsSaved,
		CreatedAt:      newTimestamp(it.Job.CreatedAt),
	}
	if it.Job.ExpiresAt != nil {
		p.ExpiresAt = newTimestamp(*it.Job.ExpiresAt)
	}
	return p
}
