package grpcsvc

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gwatkins2090/portfolio/internal/content"
)

const (
	contentServiceName = "portfolio.content.v1.ContentService"
	grpcMethodQuery    = "/" + contentServiceName + "/Query"
)

// ContentServer — серверная часть portfolio.content.v1.ContentService.
// Query принимает {"name": ..., "params": {...}} и возвращает {"result": ...}.
type ContentServer interface {
	Query(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ContentService выполняет именованные запросы к источнику контента.
type ContentService struct {
	source content.Source
	access AccessResolver
	logger *log.Entry
}

// NewContentService создаёт сервис. access может быть nil: тогда читается только опубликованное.
func NewContentService(source content.Source, access AccessResolver, logger *log.Entry) *ContentService {
	if logger == nil {
		logger = log.New().WithField("component", "grpc-content-service")
	}
	return &ContentService{source: source, access: access, logger: logger}
}

// RegisterContentService регистрирует сервис на gRPC-сервере.
func RegisterContentService(registrar grpc.ServiceRegistrar, srv ContentServer) {
	registrar.RegisterService(&contentServiceDesc, srv)
}

// Query выполняет запрос с доступом из draft-token metadata.
func (s *ContentService) Query(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	name := strings.TrimSpace(fields["name"].GetStringValue())
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}

	var params map[string]any
	if raw, ok := fields["params"]; ok {
		obj := raw.GetStructValue()
		if obj == nil {
			return nil, status.Error(codes.InvalidArgument, "params must be an object")
		}
		params = obj.AsMap()
	}

	access := content.Published()
	if s.access != nil {
		access = s.access.AccessFromToken(readMetadata(ctx, DraftTokenMetadataKey))
	}

	raw, err := s.source.Fetch(ctx, content.Query{
		Name:   name,
		Params: params,
		Tags:   content.TagsFor(name, params),
	}, access)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{"query": name, "perspective": access.Perspective()}).Debug("content query failed")
		return nil, toStatus(err, contentError)
	}

	result := &structpb.Value{}
	if err := protojson.Unmarshal(raw, result); err != nil {
		return nil, status.Errorf(codes.Internal, "decode content result: %v", err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{"result": result}}, nil
}

var contentServiceDesc = grpc.ServiceDesc{
	ServiceName: contentServiceName,
	HandlerType: (*ContentServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Query", Handler: unaryHandler(grpcMethodQuery, ContentServer.Query)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "portfolio/content/v1/content.proto",
}
