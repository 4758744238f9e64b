package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/controlplane/internal/audit/domain"
	"github.com/smallbiznis/controlplane/internal/clock"
	obscontext "github.com/smallbiznis/controlplane/internal/observability/context"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 250
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, entry auditdomain.Entry) error {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}
	targetType := strings.TrimSpace(entry.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}

	actorType, actorID := obscontext.ActorFromContext(ctx)
	if actorType == "" {
		actorType = string(auditdomain.ActorTypeSystem)
	}

	payload := map[string]any{}
	for key, value := range entry.Metadata {
		if key == "" {
			continue
		}
		payload[key] = value
	}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		payload["request_id"] = requestID
	}

	row := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ActorType:  actorType,
		ActorID:    optional(actorID),
		Action:     action,
		TargetType: targetType,
		TargetID:   optional(entry.TargetID),
		Metadata:   datatypes.JSONMap(payload),
		CreatedAt:  s.clock.Now().UTC(),
	}
	if entry.TenantID != 0 {
		tenantID := entry.TenantID
		row.TenantID = &tenantID
	}

	if err := s.repo.Insert(ctx, s.db, &row); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListRequest) (auditdomain.ListResponse, error) {
	if req.TenantID == 0 {
		return auditdomain.ListResponse{}, auditdomain.ErrInvalidTenant
	}

	var cursor *auditdomain.Cursor
	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := decodeCursor(token)
		if err != nil {
			return auditdomain.ListResponse{}, auditdomain.ErrInvalidPageToken
		}
		cursor = decoded
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		TenantID: req.TenantID,
		Action:   req.Action,
		Cursor:   cursor,
		Limit:    pageSize,
	})
	if err != nil {
		return auditdomain.ListResponse{}, err
	}

	resp := auditdomain.ListResponse{AuditLogs: make([]auditdomain.AuditLog, 0, len(items))}
	if len(items) > pageSize {
		items = items[:pageSize]
		last := items[len(items)-1]
		resp.NextPageToken = encodeCursor(auditdomain.Cursor{ID: last.ID, CreatedAt: last.CreatedAt})
	}
	for _, item := range items {
		if item == nil {
			continue
		}
		resp.AuditLogs = append(resp.AuditLogs, *item)
	}
	return resp, nil
}

// Page tokens are "<unix nanos>.<id>" in url-safe base64.
func encodeCursor(c auditdomain.Cursor) string {
	raw := fmt.Sprintf("%d.%s", c.CreatedAt.UTC().UnixNano(), c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(token string) (*auditdomain.Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	nanos, id, ok := strings.Cut(string(raw), ".")
	if !ok {
		return nil, auditdomain.ErrInvalidPageToken
	}
	ts, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, err
	}
	parsed, err := snowflake.ParseString(id)
	if err != nil || parsed == 0 {
		return nil, auditdomain.ErrInvalidPageToken
	}
	return &auditdomain.Cursor{ID: parsed, CreatedAt: time.Unix(0, ts).UTC()}, nil
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
