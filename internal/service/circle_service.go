package service

import (
	"context"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/susu/internal/engine"
	"github.com/mmynk/susu/internal/middleware"
	"github.com/mmynk/susu/internal/models"
)

// ServiceName is the fully-qualified name of the circle service.
const ServiceName = "susu.v1.CircleService"

// Procedure returns the full procedure path of a method.
func Procedure(method string) string {
	return "/" + ServiceName + "/" + method
}

// CircleService exposes the rotating group engine over Connect.
type CircleService struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewCircleService creates a new CircleService backed by the engine.
func NewCircleService(eng *engine.Engine, logger *slog.Logger) *CircleService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CircleService{engine: eng, logger: logger}
}

// Handler returns the path prefix to mount the service under and its handler.
// The JSON codec is always registered; opts typically carry the interceptors.
func (s *CircleService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)
	mux := http.NewServeMux()

	// Groups
	register(mux, s, "CreateGroup", s.createGroup, opts)
	register(mux, s, "GetGroup", s.getGroup, opts)
	register(mux, s, "ListGroups", s.listGroups, opts)
	register(mux, s, "UpdateGroup", s.updateGroup, opts)
	register(mux, s, "PublishGroup", s.publishGroup, opts)
	register(mux, s, "StartGroup", s.startGroup, opts)
	register(mux, s, "PauseGroup", s.pauseGroup, opts)
	register(mux, s, "ResumeGroup", s.resumeGroup, opts)
	register(mux, s, "CancelGroup", s.cancelGroup, opts)

	// Memberships
	register(mux, s, "JoinGroup", s.joinGroup, opts)
	register(mux, s, "ApproveMember", s.approveMember, opts)
	register(mux, s, "LeaveGroup", s.leaveGroup, opts)
	register(mux, s, "CheckLeave", s.checkLeave, opts)
	register(mux, s, "RemoveMember", s.removeMember, opts)
	register(mux, s, "BanMember", s.banMember, opts)
	register(mux, s, "BanUser", s.banUser, opts)
	register(mux, s, "ReinstateMember", s.reinstateMember, opts)
	register(mux, s, "ReorderQueue", s.reorderQueue, opts)
	register(mux, s, "ListMembers", s.listMembers, opts)

	// Contributions
	register(mux, s, "OpenCycle", s.openCycle, opts)
	register(mux, s, "MarkContributionPaid", s.markContributionPaid, opts)
	register(mux, s, "WaiveContribution", s.waiveContribution, opts)
	register(mux, s, "DueToday", s.dueToday, opts)
	register(mux, s, "Arrears", s.arrears, opts)
	register(mux, s, "Outstanding", s.outstanding, opts)
	register(mux, s, "Streak", s.streak, opts)

	// Payouts
	register(mux, s, "CurrentTurn", s.currentTurn, opts)
	register(mux, s, "SchedulePayout", s.schedulePayout, opts)
	register(mux, s, "ApprovePayout", s.approvePayout, opts)
	register(mux, s, "SettlePayout", s.settlePayout, opts)
	register(mux, s, "SkipPayout", s.skipPayout, opts)
	register(mux, s, "ListPayouts", s.listPayouts, opts)

	register(mux, s, "AuditTrail", s.auditTrail, opts)

	return "/" + ServiceName + "/", mux
}

// register mounts one unary method. The caller is taken from the context populated by
// middleware.RequireAuth.
func register[Req, Res any](mux *http.ServeMux, s *CircleService, method string, fn func(context.Context, models.Actor, *Req) (*Res, error), opts []connect.HandlerOption) {
	procedure := Procedure(method)
	mux.Handle(procedure, connect.NewUnaryHandler(procedure,
		func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
			res, err := fn(ctx, middleware.ActorFrom(ctx), req.Msg)
			if err != nil {
				return nil, s.toConnectError(ctx, procedure, err)
			}
			return connect.NewResponse(res), nil
		},
		opts...,
	))
}

func (s *CircleService) createGroup(ctx context.Context, actor models.Actor, req *CreateGroupRequest) (*GroupResponse, error) {
	g, err := s.engine.CreateGroup(ctx, actor, engine.CreateGroupInput{
		Name:              req.Name,
		Description:       req.Description,
		DailyAmount:       req.DailyAmount,
		GroupSize:         req.GroupSize,
		DaysPerTurn:       req.DaysPerTurn,
		PayoutAmount:      req.PayoutAmount,
		Type:              models.GroupType(req.Type),
		CanExitAfterStart: req.CanExitAfterStart,
	})
	if err != nil {
		return nil, err
	}
	return &GroupResponse{Group: toGroup(g)}, nil
}

func (s *CircleService) getGroup(ctx context.Context, actor models.Actor, req *GroupRequest) (*GetGroupResponse, error) {
	g, ms, err := s.engine.GetGroup(ctx, actor, req.GroupID)
	if err != nil {
		return nil, err
	}
	return &GetGroupResponse{Group: toGroup(g), Members: toMemberships(ms)}, nil
}

func (s *CircleService) listGroups(ctx context.Context, actor models.Actor, req *ListGroupsRequest) (*ListGroupsResponse, error) {
	statuses := make([]models.GroupStatus, len(req.Statuses))
	for i, st := range req.Statuses {
		statuses[i] = models.GroupStatus(st)
	}
	groups, err := s.engine.ListGroups(ctx, actor, statuses...)
	if err != nil {
		return nil, err
	}
	out := make([]*Group, len(groups))
	for i, g := range groups {
		out[i] = toGroup(g)
	}
	return &ListGroupsResponse{Groups: out}, nil
}

func (s *CircleService) updateGroup(ctx context.Context, actor models.Actor, req *UpdateGroupRequest) (*GroupResponse, error) {
	patch := models.GroupPatch{
		Name:              req.Name,
		Description:       req.Description,
		GroupSize:         req.GroupSize,
		DailyAmount:       req.DailyAmount,
		DaysPerTurn:       req.DaysPerTurn,
		PayoutAmount:      req.PayoutAmount,
		CanExitAfterStart: req.CanExitAfterStart,
	}
	if req.Type != nil {
		t := models.GroupType(*req.Type)
		patch.Type = &t
	}
	g, err := s.engine.UpdateGroup(ctx, actor, req.GroupID, patch)
	if err != nil {
		return nil, err
	}
	return &GroupResponse{Group: toGroup(g)}, nil
}

func (s *CircleService) publishGroup(ctx context.Context, actor models.Actor, req *GroupRequest) (*GroupResponse, error) {
	return groupResponse(s.engine.PublishGroup(ctx, actor, req.GroupID))
}

func (s *CircleService) startGroup(ctx context.Context, actor models.Actor, req *GroupRequest) (*GroupResponse, error) {
	return groupResponse(s.engine.StartGroup(ctx, actor, req.GroupID))
}

func (s *CircleService) pauseGroup(ctx context.Context, actor models.Actor, req *GroupTransitionRequest) (*GroupResponse, error) {
	return groupResponse(s.engine.PauseGroup(ctx, actor, req.GroupID, req.Reason))
}

func (s *CircleService) resumeGroup(ctx context.Context, actor models.Actor, req *GroupRequest) (*GroupResponse, error) {
	return groupResponse(s.engine.ResumeGroup(ctx, actor, req.GroupID))
}

func (s *CircleService) cancelGroup(ctx context.Context, actor models.Actor, req *GroupTransitionRequest) (*GroupResponse, error) {
	return groupResponse(s.engine.CancelGroup(ctx, actor, req.GroupID, req.Reason))
}

func groupResponse(g *models.Group, err error) (*GroupResponse, error) {
	if err != nil {
		return nil, err
	}
	return &GroupResponse{Group: toGroup(g)}, nil
}

func (s *CircleService) joinGroup(ctx context.Context, actor models.Actor, req *GroupRequest) (*MembershipResponse, error) {
	return membershipResponse(s.engine.JoinGroup(ctx, actor, req.GroupID))
}

func (s *CircleService) approveMember(ctx context.Context, actor models.Actor, req *MembershipRequest) (*MembershipResponse, error) {
	return membershipResponse(s.engine.ApproveMember(ctx, actor, req.MembershipID))
}

func (s *CircleService) leaveGroup(ctx context.Context, actor models.Actor, req *GroupRequest) (*MembershipResponse, error) {
	return membershipResponse(s.engine.LeaveGroup(ctx, actor, req.GroupID))
}

func (s *CircleService) checkLeave(ctx context.Context, actor models.Actor, req *MembershipRequest) (*CheckLeaveResponse, error) {
	d, err := s.engine.CheckLeave(ctx, actor, req.MembershipID)
	if err != nil {
		return nil, err
	}
	return &CheckLeaveResponse{Decision: toDecision(d)}, nil
}

func (s *CircleService) removeMember(ctx context.Context, actor models.Actor, req *MembershipRequest) (*MembershipResponse, error) {
	return membershipResponse(s.engine.RemoveMember(ctx, actor, req.MembershipID, req.Reason))
}

func (s *CircleService) banMember(ctx context.Context, actor models.Actor, req *MembershipRequest) (*MembershipResponse, error) {
	return membershipResponse(s.engine.BanMember(ctx, actor, req.MembershipID, req.Reason))
}

func (s *CircleService) banUser(ctx context.Context, actor models.Actor, req *BanUserRequest) (*MembersResponse, error) {
	return membersResponse(s.engine.BanUser(ctx, actor, req.UserID, req.Reason))
}

func (s *CircleService) reinstateMember(ctx context.Context, actor models.Actor, req *MembershipRequest) (*MembershipResponse, error) {
	return membershipResponse(s.engine.ReinstateMember(ctx, actor, req.MembershipID))
}

func (s *CircleService) reorderQueue(ctx context.Context, actor models.Actor, req *ReorderQueueRequest) (*MembersResponse, error) {
	return membersResponse(s.engine.ReorderQueue(ctx, actor, req.GroupID, req.MembershipIDs))
}

func (s *CircleService) listMembers(ctx context.Context, actor models.Actor, req *GroupRequest) (*MembersResponse, error) {
	return membersResponse(s.engine.Members(ctx, actor, req.GroupID))
}

func membershipResponse(m *models.Membership, err error) (*MembershipResponse, error) {
	if err != nil {
		return nil, err
	}
	return &MembershipResponse{Membership: toMembership(m)}, nil
}

func membersResponse(ms []*models.Membership, err error) (*MembersResponse, error) {
	if err != nil {
		return nil, err
	}
	return &MembersResponse{Members: toMemberships(ms)}, nil
}

func (s *CircleService) openCycle(ctx context.Context, actor models.Actor, req *GroupRequest) (*OpenCycleResponse, error) {
	opened, err := s.engine.OpenCycle(ctx, actor, req.GroupID)
	if err != nil {
		return nil, err
	}
	return &OpenCycleResponse{Opened: opened}, nil
}

func (s *CircleService) markContributionPaid(ctx context.Context, actor models.Actor, req *MarkContributionPaidRequest) (*ContributionResponse, error) {
	cs, err := s.engine.MarkContributionPaid(ctx, actor, req.ScheduleID, req.Amount, req.Method)
	if err != nil {
		return nil, err
	}
	return &ContributionResponse{Contribution: toContribution(cs)}, nil
}

func (s *CircleService) waiveContribution(ctx context.Context, actor models.Actor, req *WaiveContributionRequest) (*ContributionResponse, error) {
	cs, err := s.engine.WaiveContribution(ctx, actor, req.ScheduleID, req.Reason)
	if err != nil {
		return nil, err
	}
	return &ContributionResponse{Contribution: toContribution(cs)}, nil
}

func (s *CircleService) dueToday(ctx context.Context, actor models.Actor, req *DueTodayRequest) (*SummaryResponse, error) {
	sum, err := s.engine.DueToday(ctx, actor, engine.DueQuery{UserID: req.UserID, GroupID: req.GroupID})
	if err != nil {
		return nil, err
	}
	return &SummaryResponse{Summary: toSummary(sum)}, nil
}

func (s *CircleService) arrears(ctx context.Context, actor models.Actor, req *ArrearsRequest) (*SummaryResponse, error) {
	sum, err := s.engine.Arrears(ctx, actor, engine.ArrearsQuery{GroupID: req.GroupID, MembershipID: req.MembershipID})
	if err != nil {
		return nil, err
	}
	return &SummaryResponse{Summary: toSummary(sum)}, nil
}

func (s *CircleService) outstanding(ctx context.Context, actor models.Actor, req *MembershipRequest) (*SummaryResponse, error) {
	sum, err := s.engine.Outstanding(ctx, actor, req.MembershipID)
	if err != nil {
		return nil, err
	}
	return &SummaryResponse{Summary: toSummary(sum)}, nil
}

func (s *CircleService) streak(ctx context.Context, actor models.Actor, req *MembershipRequest) (*StreakResponse, error) {
	n, err := s.engine.Streak(ctx, actor, req.MembershipID)
	if err != nil {
		return nil, err
	}
	return &StreakResponse{MembershipID: req.MembershipID, Streak: n}, nil
}

func (s *CircleService) currentTurn(ctx context.Context, actor models.Actor, req *GroupRequest) (*CurrentTurnResponse, error) {
	m, err := s.engine.CurrentTurn(ctx, actor, req.GroupID)
	if err != nil {
		return nil, err
	}
	return &CurrentTurnResponse{Membership: toMembership(m)}, nil
}

func (s *CircleService) schedulePayout(ctx context.Context, actor models.Actor, req *GroupRequest) (*PayoutResponse, error) {
	return payoutResponse(s.engine.SchedulePayout(ctx, actor, req.GroupID))
}

func (s *CircleService) approvePayout(ctx context.Context, actor models.Actor, req *PayoutRequest) (*PayoutResponse, error) {
	return payoutResponse(s.engine.ApprovePayout(ctx, actor, req.PayoutID))
}

func (s *CircleService) settlePayout(ctx context.Context, actor models.Actor, req *PayoutRequest) (*PayoutResponse, error) {
	return payoutResponse(s.engine.SettlePayout(ctx, actor, req.PayoutID))
}

func (s *CircleService) skipPayout(ctx context.Context, actor models.Actor, req *PayoutRequest) (*PayoutResponse, error) {
	return payoutResponse(s.engine.SkipPayout(ctx, actor, req.PayoutID, req.Reason))
}

func payoutResponse(p *models.PayoutSchedule, err error) (*PayoutResponse, error) {
	if err != nil {
		return nil, err
	}
	return &PayoutResponse{Payout: toPayout(p)}, nil
}

func (s *CircleService) listPayouts(ctx context.Context, actor models.Actor, req *GroupRequest) (*ListPayoutsResponse, error) {
	payouts, err := s.engine.ListPayouts(ctx, actor, req.GroupID)
	if err != nil {
		return nil, err
	}
	out := make([]*Payout, len(payouts))
	for i, p := range payouts {
		out[i] = toPayout(p)
	}
	return &ListPayoutsResponse{Payouts: out}, nil
}

func (s *CircleService) auditTrail(ctx context.Context, actor models.Actor, req *AuditTrailRequest) (*AuditTrailResponse, error) {
	entries, err := s.engine.AuditTrail(ctx, actor, req.EntityType, req.EntityID)
	if err != nil {
		return nil, err
	}
	out := make([]*AuditEntry, len(entries))
	for i, e := range entries {
		out[i] = &AuditEntry{
			ID:         e.ID,
			ActorID:    e.ActorID,
			Action:     e.Action,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Details:    e.Details,
			CreatedAt:  e.CreatedAt,
		}
	}
	return &AuditTrailResponse{Entries: out}, nil
}
